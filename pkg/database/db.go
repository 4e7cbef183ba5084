// Package database keeps a catalog of every recording a target
// finalised, in a sqlite file.
package database

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/qianqian121/GIFT-Grab/pkg/database/dbconn"
	"github.com/qianqian121/GIFT-Grab/pkg/database/models"
	"github.com/qianqian121/GIFT-Grab/pkg/database/repos"
	"github.com/qianqian121/GIFT-Grab/pkg/log"
	"github.com/qianqian121/GIFT-Grab/pkg/video/videotarget"
	"github.com/spf13/afero"
	"github.com/tauraamui/xerror"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	appName          = "giftgrab"
	databaseFileName = "catalog.db"
	databaseEnvVar   = "GIFTGRAB_DB"
)

var ErrCreateDBFile = xerror.New("unable to create database file")

var uc = os.UserConfigDir
var fs = afero.NewOsFs()

// Connect opens the catalog at path, creating the file and its schema
// when missing. An empty path resolves to GIFTGRAB_DB, or the catalog
// in the user config dir.
func Connect(path string) (dbconn.GormWrapper, error) {
	dbPath, err := resolveDBPath(path, uc)
	if err != nil {
		return nil, err
	}

	if err := createFile(dbPath); err != nil {
		return nil, err
	}

	log.Debug("Connecting to DB: %s", dbPath) //nolint
	db, err := openDBConnection(dbPath)
	if err != nil {
		return nil, xerror.Errorf("unable to open db connection: %w", err)
	}

	err = models.AutoMigrate(db)
	if err != nil {
		return nil, xerror.Errorf("unable to run automigrations: %w", err)
	}

	return db, nil
}

var openDBConnection = func(path string) (dbconn.GormWrapper, error) {
	logger := logger.New(nil, logger.Config{LogLevel: logger.Silent})
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger})
	if err != nil {
		return nil, err
	}
	return dbconn.Wrap(db), nil
}

func resolveDBPath(path string, uc func() (string, error)) (string, error) {
	if len(path) > 0 {
		return path, nil
	}

	databasePath := os.Getenv(databaseEnvVar)
	if len(databasePath) > 0 {
		return databasePath, nil
	}

	databaseParentDir, err := uc()
	if err != nil {
		return "", xerror.Errorf("unable to resolve %s database file location: %w", databaseFileName, err)
	}

	return filepath.Join(
		databaseParentDir,
		appName,
		databaseFileName), nil
}

func createFile(path string) error {
	if _, err := fs.Stat(path); !errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err := fs.MkdirAll(filepath.Dir(path), os.ModeDir|os.ModePerm); err != nil {
		return xerror.Errorf("%v: %w", ErrCreateDBFile, err)
	}
	f, err := fs.Create(path)
	if err != nil {
		return xerror.Errorf("%v: %w", ErrCreateDBFile, err)
	}
	return f.Close()
}

// Catalog records finalised targets.
type Catalog struct {
	db   dbconn.GormWrapper
	repo repos.RecordingRepository
}

func OpenCatalog(path string) (*Catalog, error) {
	db, err := Connect(path)
	if err != nil {
		return nil, err
	}
	return NewCatalog(db), nil
}

func NewCatalog(db dbconn.GormWrapper) *Catalog {
	return &Catalog{db: db, repo: repos.RecordingRepository{DB: db}}
}

func (c *Catalog) Record(source string, summary videotarget.Summary) error {
	rec := models.NewRecording(source, summary)
	if err := c.repo.Create(&rec); err != nil {
		return xerror.Errorf("unable to record %s: %w", summary.Path, err)
	}
	log.Info("Recorded [%s]: %d frames", summary.Path, summary.Frames)
	return nil
}

func (c *Catalog) Recordings() ([]models.Recording, error) {
	return c.repo.List()
}

func (c *Catalog) Find(uuid string) (models.Recording, error) {
	return c.repo.FindByUUID(uuid)
}

func (c *Catalog) Close() error {
	return c.db.Close()
}
