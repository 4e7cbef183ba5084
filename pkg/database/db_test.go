package database_test

import (
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/qianqian121/GIFT-Grab/pkg/database"
	"github.com/qianqian121/GIFT-Grab/pkg/database/dbconn"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoframe"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videotarget"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/suite"
	"github.com/tacusci/logging/v2"
)

func TestConnectFailsWhenPathCannotResolve(t *testing.T) {
	is := is.New(t)
	t.Setenv("GIFTGRAB_DB", "")
	reset := database.OverloadUC(func() (string, error) {
		return "", errors.New("test config dir error")
	})
	defer reset()

	_, err := database.Connect("")
	is.True(err != nil)
	is.Equal(err.Error(), "unable to resolve catalog.db database file location: test config dir error")
}

func TestConnectCreatesFileAndMigrates(t *testing.T) {
	is := is.New(t)
	fs := afero.NewMemMapFs()
	resetFS := database.OverloadFS(fs)
	defer resetFS()

	mock := dbconn.Mock()
	var opened string
	resetOpen := database.OverloadOpenDBConnection(func(path string) (dbconn.GormWrapper, error) {
		opened = path
		return mock, nil
	})
	defer resetOpen()

	db, err := database.Connect("/var/lib/giftgrab/catalog.db")
	is.NoErr(err)
	is.True(db == mock)
	is.Equal(opened, "/var/lib/giftgrab/catalog.db")
	exists, _ := afero.Exists(fs, "/var/lib/giftgrab/catalog.db")
	is.True(exists)
}

type CatalogTestSuite struct {
	suite.Suite
	catalog *database.Catalog
}

func (suite *CatalogTestSuite) SetupSuite() {
	logging.CurrentLoggingLevel = logging.SilentLevel
}

func (suite *CatalogTestSuite) TearDownSuite() {
	logging.CurrentLoggingLevel = logging.WarnLevel
}

func (suite *CatalogTestSuite) SetupTest() {
	resetFS := database.OverloadFS(afero.NewMemMapFs())
	defer resetFS()
	catalog, err := database.OpenCatalog("file::memory:?cache=shared")
	suite.Require().NoError(err)
	suite.catalog = catalog
}

func (suite *CatalogTestSuite) TearDownTest() {
	suite.NoError(suite.catalog.Close())
}

func (suite *CatalogTestSuite) TestRecordAndList() {
	base := time.Date(2021, 10, 27, 9, 0, 0, 0, time.UTC)
	for i, path := range []string{"/videos/a.avi", "/videos/b.avi"} {
		suite.Require().NoError(suite.catalog.Record("synthetic://150", videotarget.Summary{
			Path:       path,
			Codec:      videoframe.Xvid,
			FrameRate:  30,
			Frames:     uint64(150 + i),
			Dimensions: videoframe.Dimensions{W: 320, H: 240},
			Colour:     videoframe.BGRA,
			Started:    base.Add(time.Duration(i) * time.Minute),
			Finished:   base.Add(time.Duration(i)*time.Minute + 5*time.Second),
		}))
	}

	recs, err := suite.catalog.Recordings()
	suite.Require().NoError(err)
	suite.Require().Len(recs, 2)
	suite.Equal("/videos/b.avi", recs[0].Path)
	suite.Equal(uint64(151), recs[0].Frames)
	suite.Equal("Xvid", recs[1].Codec)
	suite.NotEmpty(recs[1].UUID)

	found, err := suite.catalog.Find(recs[1].UUID)
	suite.Require().NoError(err)
	suite.Equal("/videos/a.avi", found.Path)
}

func (suite *CatalogTestSuite) TestFindUnknown() {
	_, err := suite.catalog.Find("does-not-exist")
	suite.EqualError(err, "recording of uuid does-not-exist not found")
}

func TestCatalogTestSuite(t *testing.T) {
	suite.Run(t, &CatalogTestSuite{})
}
