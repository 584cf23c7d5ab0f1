// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"time"

	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/errors"
	"gorm.io/gorm"
)

// Interface abstracts the underlying database implementation and defines the
// operations available to the rest of the application.
type Interface interface {
	Open() error
	Close() error

	// Transaction runs fn against a transactional view of the store.
	// Returning an error rolls back every write made inside fn.
	Transaction(fn func(tx Interface) error) error

	// Animals
	CreateAnimal(animal *Animal) error
	GetAnimal(id uint) (Animal, error)
	GetAnimalByTag(tagID string) (Animal, error)
	ListAnimals(query AnimalQuery) ([]Animal, int64, error)
	UpdateAnimal(animal *Animal) error
	DeleteAnimal(id uint) error
	GetAllTagIDs() (map[string]uint, error)
	GetAllMuzzleHashes() (map[string]uint, error)
	CountAnimals() (int64, error)
	UpdateAnimalHealthCache(animalID uint, status string, checkedAt time.Time) error

	// Health records
	SaveHealthRecord(record *HealthRecord) error
	GetHealthRecord(id uint) (HealthRecord, error)
	GetHealthHistory(animalID uint, limit int) ([]HealthRecord, error)
	LatestHealthRecord(animalID uint) (*HealthRecord, error)
	VerifyHealthRecord(id uint, vetNotes, vetDiagnosis string) error
	CountByHealthStatus() (map[string]int64, error)
	HealthStatusTrend(days int) ([]DayStatusCount, error)

	// Attendance
	UpsertAttendance(record *Attendance) (bool, error)
	GetAttendance(animalID uint, date string) (*Attendance, error)
	GetAttendanceByDate(date string) ([]Attendance, error)
	GetAttendanceHistory(animalID uint, days int) ([]Attendance, error)
	LastAttendance(animalID uint) (*Attendance, error)
	MissingOnDate(date string) ([]Animal, error)

	// Alerts
	GetOpenAlert(animalID *uint, alertType string) (*Alert, error)
	GetAlert(id uint) (Alert, error)
	SaveAlert(alert *Alert) error
	UpdateAlert(alert *Alert) error
	ResolveAlert(id uint, resolvedBy, notes string) error
	ListAlerts(query AlertQuery) ([]Alert, int64, error)
	CountOpenAlerts() (int64, error)
}

// AnimalQuery holds filters and pagination for animal listings.
type AnimalQuery struct {
	Species      string
	HealthStatus string
	Search       string // matches tag ID or name
	Limit        int
	Offset       int
}

// AlertQuery holds filters and pagination for alert listings.
type AlertQuery struct {
	AnimalID  *uint
	AlertType string
	Severity  string
	Resolved  *bool
	Limit     int
	Offset    int
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore based on the provided settings.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}
	default:
		return nil
	}
}

// Open is implemented by the concrete store types; the embedded DataStore
// only carries an already opened connection.
func (ds *DataStore) Open() error {
	return errors.Newf("store is not configured for opening").
		Component("datastore").
		Category(errors.CategoryDatabase).
		Build()
}

// Close closes the underlying database connection.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	sqlDB, err := ds.DB.DB()
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get-generic-db").
			Build()
	}
	return sqlDB.Close()
}

// Transaction runs fn inside a database transaction. The Interface passed to
// fn shares the transaction; any error rolls the whole unit back.
func (ds *DataStore) Transaction(fn func(tx Interface) error) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		return fn(&DataStore{DB: tx})
	})
}
