package datastore

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/herdwatch/herdwatch-go/internal/errors"
	"github.com/herdwatch/herdwatch-go/internal/logging"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQueryThreshold defines the duration after which a query is
// considered slow and logged at warn level.
const DefaultSlowQueryThreshold = 1 * time.Second

var storeLogger *slog.Logger

// GetLogger returns the datastore service logger.
func GetLogger() *slog.Logger {
	if storeLogger == nil {
		storeLogger = logging.ForService("datastore")
		if storeLogger == nil {
			storeLogger = slog.Default().With("service", "datastore")
		}
	}
	return storeLogger
}

// createGormLogger configures and returns a GORM logger instance.
func createGormLogger() gormlogger.Interface {
	return gormlogger.New(
		slogWriter{},
		gormlogger.Config{
			SlowThreshold:             DefaultSlowQueryThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}

// slogWriter adapts the slog logger to GORM's logger.Writer interface.
type slogWriter struct{}

func (slogWriter) Printf(format string, args ...any) {
	GetLogger().Warn("gorm", "message", fmt.Sprintf(format, args...))
}

// performAutoMigration migrates the schema for all entities.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&Animal{}, &HealthRecord{}, &Attendance{}, &Alert{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("db_type", dbType).
			Context("operation", "auto-migration").
			Build()
	}

	if debug {
		GetLogger().Debug("Database initialized",
			"db_type", dbType,
			"connection", connectionInfo)
	}

	return nil
}

// ensureDir creates a directory path when missing.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}
	return nil
}
