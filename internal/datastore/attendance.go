package datastore

import (
	"time"

	"github.com/herdwatch/herdwatch-go/internal/errors"
	"gorm.io/gorm"
)

// UpsertAttendance reconciles an attendance record against the
// (animal_id, date) key. Semantics:
//
//   - no record for the key: the record is created
//   - a record exists with lower confidence: it is overwritten in place
//   - a record exists with equal or higher confidence: it is left untouched
//
// The overwrite is a single conditional UPDATE so two concurrent writers
// cannot both win the strictly-greater race; the losing write is silently
// discarded. Returns true when the stored row was created or changed, and
// always leaves the stored row's state in record.
func (ds *DataStore) UpsertAttendance(record *Attendance) (bool, error) {
	result := ds.DB.Model(&Attendance{}).
		Where("animal_id = ? AND date = ? AND detection_confidence < ?",
			record.AnimalID, record.Date, record.DetectionConfidence).
		Updates(map[string]any{
			"detected_at":           record.DetectedAt,
			"detection_confidence":  record.DetectionConfidence,
			"identification_method": record.IdentificationMethod,
			"image_path":            record.ImagePath,
		})
	if result.Error != nil {
		return false, errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("animal_id", record.AnimalID).
			Context("date", record.Date).
			Build()
	}
	if result.RowsAffected > 0 {
		return true, ds.readAttendance(record)
	}

	// No row updated: either a record with >= confidence exists, or no
	// record exists yet for the key.
	var existing Attendance
	err := ds.DB.Where("animal_id = ? AND date = ?", record.AnimalID, record.Date).
		First(&existing).Error
	switch {
	case err == nil:
		*record = existing
		return false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		// fall through to create
	default:
		return false, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}

	if err := ds.DB.Create(record).Error; err != nil {
		// A concurrent writer may have created the row first; the unique
		// index rejects the duplicate and the stored row wins.
		if readErr := ds.readAttendance(record); readErr == nil {
			return false, nil
		}
		return false, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("animal_id", record.AnimalID).
			Context("date", record.Date).
			Build()
	}
	return true, nil
}

// readAttendance refreshes record with the stored row for its key.
func (ds *DataStore) readAttendance(record *Attendance) error {
	return ds.DB.Where("animal_id = ? AND date = ?", record.AnimalID, record.Date).
		First(record).Error
}

// GetAttendance returns the attendance record for the key, or nil when none exists.
func (ds *DataStore) GetAttendance(animalID uint, date string) (*Attendance, error) {
	var record Attendance
	err := ds.DB.Where("animal_id = ? AND date = ?", animalID, date).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return &record, nil
}

// GetAttendanceByDate returns all attendance records for a calendar day.
func (ds *DataStore) GetAttendanceByDate(date string) ([]Attendance, error) {
	var records []Attendance
	if err := ds.DB.Where("date = ?", date).Find(&records).Error; err != nil {
		return nil, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return records, nil
}

// GetAttendanceHistory returns an animal's attendance for the past N days,
// newest first.
func (ds *DataStore) GetAttendanceHistory(animalID uint, days int) ([]Attendance, error) {
	if days <= 0 {
		days = 30
	}
	startDate := time.Now().AddDate(0, 0, -days).Format(DateFormat)

	var records []Attendance
	err := ds.DB.Where("animal_id = ? AND date >= ?", animalID, startDate).
		Order("date DESC").
		Find(&records).Error
	if err != nil {
		return nil, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return records, nil
}

// LastAttendance returns an animal's most recent attendance record, or nil.
func (ds *DataStore) LastAttendance(animalID uint) (*Attendance, error) {
	var record Attendance
	err := ds.DB.Where("animal_id = ?", animalID).Order("date DESC").First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return &record, nil
}

// MissingOnDate returns animals without an attendance record on the given day.
func (ds *DataStore) MissingOnDate(date string) ([]Animal, error) {
	var animals []Animal
	err := ds.DB.Where("id NOT IN (?)",
		ds.DB.Model(&Attendance{}).Select("animal_id").Where("date = ?", date)).
		Find(&animals).Error
	if err != nil {
		return nil, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return animals, nil
}
