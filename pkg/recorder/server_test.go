package recorder_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/qianqian121/GIFT-Grab/pkg/configdef"
	"github.com/qianqian121/GIFT-Grab/pkg/recorder"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videobackend"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videoerr"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videotarget"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/tacusci/logging/v2"
)

type testConfigResolver struct {
	resolveConfigs func() configdef.Values
	err            error
}

func (tcr testConfigResolver) Resolve() (configdef.Values, error) {
	if tcr.err != nil {
		return configdef.Values{}, tcr.err
	}
	return tcr.resolveConfigs(), nil
}

type record struct {
	source  string
	summary videotarget.Summary
}

type testCatalog struct {
	mu      sync.Mutex
	records []record
}

func (c *testCatalog) Record(source string, summary videotarget.Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record{source: source, summary: summary})
	return nil
}

func TestNewServerFailsWhenConfigDoesNotResolve(t *testing.T) {
	is := is.New(t)
	svr, err := recorder.NewServer(testConfigResolver{err: errors.New("no config")}, videobackend.Synthetic(afero.NewMemMapFs()))
	is.True(svr == nil)
	is.Equal(err.Error(), "no config")
}

func TestNewServerRejectsUnknownColourAndCodec(t *testing.T) {
	for _, tc := range []struct {
		name string
		rec  configdef.Recording
		want string
	}{
		{
			name: "colour",
			rec: configdef.Recording{
				Title:  "front",
				Source: configdef.Source{Locator: "synthetic://1", Colour: "PURPLE"},
				Target: configdef.Target{Path: "/recordings/front.avi"},
			},
			want: "PURPLE",
		},
		{
			name: "codec",
			rec: configdef.Recording{
				Title:  "front",
				Source: configdef.Source{Locator: "synthetic://1"},
				Target: configdef.Target{Codec: "H263", Path: "/recordings/front.avi"},
			},
			want: "H263",
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)
			svr, err := recorder.NewServer(testConfigResolver{
				resolveConfigs: func() configdef.Values {
					return configdef.Values{Recordings: []configdef.Recording{tc.rec}}
				},
			}, videobackend.Synthetic(afero.NewMemMapFs()))
			is.True(svr == nil)
			is.True(err != nil)
			is.True(strings.Contains(err.Error(), "validation failed"))
			is.True(strings.Contains(err.Error(), tc.want))
		})
	}
}

type ServerTestSuite struct {
	suite.Suite
	fs          afero.Fs
	backend     videobackend.Backend
	recordings  []configdef.Recording
	server      *recorder.Server
	catalog     *testCatalog
	warnLogs    []string
	resetFS     func()
	resetWarnLg func()
}

func (suite *ServerTestSuite) SetupSuite() {
	logging.CurrentLoggingLevel = logging.SilentLevel
}

func (suite *ServerTestSuite) TearDownSuite() {
	logging.CurrentLoggingLevel = logging.WarnLevel
}

func (suite *ServerTestSuite) SetupTest() {
	suite.fs = afero.NewMemMapFs()
	suite.Require().NoError(suite.fs.MkdirAll("/recordings", 0755))
	suite.backend = videobackend.Synthetic(suite.fs)
	suite.resetFS = recorder.OverloadFS(suite.fs)
	suite.recordings = nil
	suite.catalog = &testCatalog{}

	suite.warnLogs = []string{}
	var mu sync.Mutex
	suite.resetWarnLg = overloadWarnLog(func(format string, a ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		suite.warnLogs = append(suite.warnLogs, fmt.Sprintf(format, a...))
	})
}

func (suite *ServerTestSuite) TearDownTest() {
	if suite.server != nil {
		suite.server.Close()
		suite.server = nil
	}
	suite.resetWarnLg()
	suite.resetFS()
}

func (suite *ServerTestSuite) newServer() *recorder.Server {
	recordings := suite.recordings
	svr, err := recorder.NewServer(testConfigResolver{
		resolveConfigs: func() configdef.Values {
			return configdef.Values{Recordings: recordings}
		},
	}, suite.backend)
	suite.Require().NoError(err)
	svr.UseCatalog(suite.catalog)
	suite.server = svr
	return svr
}

func (suite *ServerTestSuite) run(svr *recorder.Server) {
	suite.Require().Empty(svr.Connect())
	suite.Require().Empty(svr.SetupProcesses())
	suite.Require().Empty(svr.RunProcesses())
}

func recording(title, locator, path string) configdef.Recording {
	return configdef.Recording{
		Title:  title,
		Source: configdef.Source{Locator: locator, Colour: "BGRA"},
		Target: configdef.Target{Codec: "Xvid", Path: path, FrameRate: 30},
	}
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, &ServerTestSuite{})
}

func (suite *ServerTestSuite) TestRecordsEveryFrameAndCatalogsIt() {
	t := suite.T()
	locator := "synthetic://30?width=32&height=24"
	suite.recordings = []configdef.Recording{recording("front", locator, "/recordings/front.avi")}
	svr := suite.newServer()
	suite.run(svr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, svr.Wait(ctx))

	progress := svr.Progress()
	require.Len(t, progress, 1)
	assert.Equal(t, "front", progress[0].Title)
	assert.EqualValues(t, 30, progress[0].Ticks)
	assert.EqualValues(t, 30, progress[0].Frames)
	assert.Equal(t, 30, progress[0].FrameCount)

	<-svr.Shutdown()

	info, err := suite.backend.Inspect("/recordings/front.avi")
	require.NoError(t, err)
	assert.Equal(t, 30, info.Frames)

	suite.catalog.mu.Lock()
	defer suite.catalog.mu.Unlock()
	require.Len(t, suite.catalog.records, 1)
	assert.Equal(t, locator, suite.catalog.records[0].source)
	assert.EqualValues(t, 30, suite.catalog.records[0].summary.Frames)
}

func (suite *ServerTestSuite) TestDisabledRecordingIsSkipped() {
	t := suite.T()
	disabled := recording("back", "synthetic://5", "/recordings/back.avi")
	disabled.Disabled = true
	suite.recordings = []configdef.Recording{disabled}
	svr := suite.newServer()
	suite.run(svr)

	assert.Empty(t, svr.Progress())
	assert.Contains(t, suite.warnLogs, "Recording [back] is disabled... skipping...")
}

func (suite *ServerTestSuite) TestBadRecordingIsReportedAndCreatesNoFile() {
	t := suite.T()
	suite.recordings = []configdef.Recording{
		recording("good", "synthetic://5?width=16&height=16", "/recordings/good.avi"),
		recording("bad", "synthetic://5?width=16&height=16", "/recordings/bad.mp4"),
	}
	svr := suite.newServer()

	errs := svr.Connect()
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], videoerr.ErrUnsupportedFileType))
	assert.True(t, errors.Is(errs[0], videoerr.ErrConfiguration))
	assert.Contains(t, errs[0].Error(), "recording [bad]")
	require.Len(t, svr.Progress(), 1)

	exists, err := afero.Exists(suite.fs, "/recordings/bad.mp4")
	require.NoError(t, err)
	assert.False(t, exists)
}

func (suite *ServerTestSuite) TestSharedSourceFeedsEveryTarget() {
	t := suite.T()
	locator := "synthetic://12?width=16&height=16"
	suite.recordings = []configdef.Recording{
		recording("a", locator, "/recordings/a.avi"),
		recording("b", locator, "/recordings/b.avi"),
	}
	svr := suite.newServer()
	suite.run(svr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, svr.Wait(ctx))
	require.NoError(t, svr.Close())

	for _, p := range []string{"/recordings/a.avi", "/recordings/b.avi"} {
		info, err := suite.backend.Inspect(p)
		require.NoError(t, err)
		assert.Equal(t, 12, info.Frames, p)
	}
}

func (suite *ServerTestSuite) TestSubFrameIsApplied() {
	t := suite.T()
	rec := recording("crop", "synthetic://3?width=32&height=24", "/recordings/crop.avi")
	rec.Source.SubFrame = &configdef.SubFrame{X: 4, Y: 4, Width: 10, Height: 8}
	suite.recordings = []configdef.Recording{rec}
	svr := suite.newServer()
	suite.run(svr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, svr.Wait(ctx))
	require.NoError(t, svr.Close())

	info, err := suite.backend.Inspect("/recordings/crop.avi")
	require.NoError(t, err)
	assert.Equal(t, 10, info.Dimensions.W)
	assert.Equal(t, 8, info.Dimensions.H)
}

func (suite *ServerTestSuite) TestWaitOnLiveSourceEndsWithContext() {
	t := suite.T()
	suite.recordings = []configdef.Recording{
		recording("live", "synthetic://live?width=16&height=16", "/recordings/live.avi"),
	}
	svr := suite.newServer()
	suite.run(svr)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.True(t, errors.Is(svr.Wait(ctx), context.DeadlineExceeded))

	require.NoError(t, svr.Close())
	progress := svr.Progress()
	require.Len(t, progress, 1)
	assert.Greater(t, progress[0].Ticks, uint64(0))
	assert.Equal(t, progress[0].Ticks, progress[0].Frames)
}

func (suite *ServerTestSuite) TestShutdownIsIdempotent() {
	svr := suite.newServer()
	suite.run(svr)
	<-svr.Shutdown()
	<-svr.Shutdown()
	suite.NoError(svr.Close())
}
