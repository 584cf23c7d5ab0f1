package datastore

import (
	"time"

	"github.com/herdwatch/herdwatch-go/internal/errors"
	"gorm.io/gorm"
)

// SaveHealthRecord inserts a new health record.
func (ds *DataStore) SaveHealthRecord(record *HealthRecord) error {
	if err := ds.DB.Create(record).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("animal_id", record.AnimalID).
			Build()
	}
	return nil
}

// GetHealthRecord retrieves a health record by ID.
func (ds *DataStore) GetHealthRecord(id uint) (HealthRecord, error) {
	var record HealthRecord
	if err := ds.DB.First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return HealthRecord{}, errors.Newf("health record %d not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return HealthRecord{}, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return record, nil
}

// GetHealthHistory returns an animal's health records, newest first.
func (ds *DataStore) GetHealthHistory(animalID uint, limit int) ([]HealthRecord, error) {
	if limit <= 0 {
		limit = 30
	}
	var records []HealthRecord
	err := ds.DB.Where("animal_id = ?", animalID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return records, nil
}

// LatestHealthRecord returns the newest health record for an animal, or nil
// when the animal has no assessments yet.
func (ds *DataStore) LatestHealthRecord(animalID uint) (*HealthRecord, error) {
	var record HealthRecord
	err := ds.DB.Where("animal_id = ?", animalID).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return &record, nil
}

// VerifyHealthRecord marks a record as veterinarian verified. This is the only
// permitted mutation of a committed health record.
func (ds *DataStore) VerifyHealthRecord(id uint, vetNotes, vetDiagnosis string) error {
	result := ds.DB.Model(&HealthRecord{}).Where("id = ?", id).Updates(map[string]any{
		"vet_verified":  true,
		"vet_notes":     vetNotes,
		"vet_diagnosis": vetDiagnosis,
	})
	if result.Error != nil {
		return errors.New(result.Error).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	if result.RowsAffected == 0 {
		return errors.Newf("health record %d not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}

// DayStatusCount is one (day, status) bucket in a health trend.
type DayStatusCount struct {
	Date   string `json:"date"`
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// HealthStatusTrend buckets committed assessments by calendar day and status
// over a trailing window. Aggregation happens in Go so the query stays
// portable across SQLite and MySQL date functions.
func (ds *DataStore) HealthStatusTrend(days int) ([]DayStatusCount, error) {
	if days <= 0 {
		days = 7
	}
	cutoff := time.Now().AddDate(0, 0, -days+1).Format(DateFormat)

	var rows []struct {
		Status    string
		CreatedAt time.Time
	}
	err := ds.DB.Model(&HealthRecord{}).
		Select("status, created_at").
		Where("created_at >= ?", cutoff).
		Scan(&rows).Error
	if err != nil {
		return nil, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}

	buckets := make(map[string]map[string]int64)
	for _, row := range rows {
		day := row.CreatedAt.Format(DateFormat)
		if buckets[day] == nil {
			buckets[day] = make(map[string]int64)
		}
		buckets[day][row.Status]++
	}

	var trend []DayStatusCount
	for offset := days - 1; offset >= 0; offset-- {
		day := time.Now().AddDate(0, 0, -offset).Format(DateFormat)
		for _, status := range []string{HealthStatusHealthy, HealthStatusAttention, HealthStatusCritical} {
			if count := buckets[day][status]; count > 0 {
				trend = append(trend, DayStatusCount{Date: day, Status: status, Count: count})
			}
		}
	}
	return trend, nil
}

// CountByHealthStatus returns the number of animals per cached health status.
func (ds *DataStore) CountByHealthStatus() (map[string]int64, error) {
	var rows []struct {
		CurrentHealthStatus string
		Count               int64
	}
	err := ds.DB.Model(&Animal{}).
		Select("current_health_status, COUNT(*) as count").
		Group("current_health_status").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.CurrentHealthStatus] = row.Count
	}
	return counts, nil
}
