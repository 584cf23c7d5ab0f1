package datastore

import (
	"path/filepath"

	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteStore implements DataStore for SQLite.
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// Open sets up the SQLite database connection and migrates the schema.
func (store *SQLiteStore) Open() error {
	path := store.Settings.Output.SQLite.Path
	dir := filepath.Dir(path)
	if dir != "." {
		if err := ensureDir(dir); err != nil {
			return err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("driver", "sqlite").
			Context("path", path).
			Build()
	}

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, "SQLite", path)
}
