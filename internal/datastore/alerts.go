package datastore

import (
	"time"

	"github.com/herdwatch/herdwatch-go/internal/errors"
	"gorm.io/gorm"
)

// GetOpenAlert returns the unresolved alert for (animal, type), or nil when
// none is open. A nil animalID matches herd-wide alerts that reference no
// single animal.
func (ds *DataStore) GetOpenAlert(animalID *uint, alertType string) (*Alert, error) {
	tx := ds.DB.Where("alert_type = ? AND resolved = ?", alertType, false)
	if animalID != nil {
		tx = tx.Where("animal_id = ?", *animalID)
	} else {
		tx = tx.Where("animal_id IS NULL")
	}

	var alert Alert
	if err := tx.First(&alert).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return &alert, nil
}

// GetAlert retrieves an alert by ID.
func (ds *DataStore) GetAlert(id uint) (Alert, error) {
	var alert Alert
	if err := ds.DB.First(&alert, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Alert{}, errors.Newf("alert %d not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return Alert{}, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return alert, nil
}

// SaveAlert inserts a new alert.
func (ds *DataStore) SaveAlert(alert *Alert) error {
	if err := ds.DB.Create(alert).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("alert_type", alert.AlertType).
			Build()
	}
	return nil
}

// UpdateAlert persists changes to an existing alert.
func (ds *DataStore) UpdateAlert(alert *Alert) error {
	if err := ds.DB.Save(alert).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("alert_id", alert.ID).
			Build()
	}
	return nil
}

// ResolveAlert closes an alert with the supplied resolution notes. Resolving
// an already resolved alert is a conflict, the stored resolution is kept.
func (ds *DataStore) ResolveAlert(id uint, resolvedBy, notes string) error {
	now := time.Now()
	result := ds.DB.Model(&Alert{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]any{
			"resolved":         true,
			"resolved_at":      now,
			"resolved_by":      resolvedBy,
			"resolution_notes": notes,
		})
	if result.Error != nil {
		return errors.New(result.Error).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	if result.RowsAffected == 0 {
		return errors.Newf("alert %d not found or already resolved", id).
			Component("datastore").
			Category(errors.CategoryConflict).
			Build()
	}
	return nil
}

// ListAlerts returns a filtered, paginated alert listing, newest first.
func (ds *DataStore) ListAlerts(query AlertQuery) ([]Alert, int64, error) {
	tx := ds.DB.Model(&Alert{})

	if query.AnimalID != nil {
		tx = tx.Where("animal_id = ?", *query.AnimalID)
	}
	if query.AlertType != "" {
		tx = tx.Where("alert_type = ?", query.AlertType)
	}
	if query.Severity != "" {
		tx = tx.Where("severity = ?", query.Severity)
	}
	if query.Resolved != nil {
		tx = tx.Where("resolved = ?", *query.Resolved)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}

	var alerts []Alert
	if err := tx.Order("created_at DESC").Limit(limit).Offset(query.Offset).Find(&alerts).Error; err != nil {
		return nil, 0, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return alerts, total, nil
}

// CountOpenAlerts returns the number of unresolved alerts.
func (ds *DataStore) CountOpenAlerts() (int64, error) {
	var count int64
	if err := ds.DB.Model(&Alert{}).Where("resolved = ?", false).Count(&count).Error; err != nil {
		return 0, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return count, nil
}
