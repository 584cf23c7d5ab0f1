package datastore

import (
	"time"

	"github.com/herdwatch/herdwatch-go/internal/errors"
	"gorm.io/gorm"
)

// CreateAnimal inserts a new animal record.
func (ds *DataStore) CreateAnimal(animal *Animal) error {
	if err := ds.DB.Create(animal).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("tag_id", animal.TagID).
			Build()
	}
	return nil
}

// GetAnimal retrieves an animal by its ID.
func (ds *DataStore) GetAnimal(id uint) (Animal, error) {
	var animal Animal
	if err := ds.DB.First(&animal, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Animal{}, errors.Newf("animal %d not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return Animal{}, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return animal, nil
}

// GetAnimalByTag retrieves an animal by its unique tag ID.
func (ds *DataStore) GetAnimalByTag(tagID string) (Animal, error) {
	var animal Animal
	if err := ds.DB.Where("tag_id = ?", tagID).First(&animal).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Animal{}, errors.Newf("animal with tag %s not found", tagID).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return Animal{}, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return animal, nil
}

// ListAnimals returns a filtered, paginated animal listing and the total count.
func (ds *DataStore) ListAnimals(query AnimalQuery) ([]Animal, int64, error) {
	tx := ds.DB.Model(&Animal{})

	if query.Species != "" {
		tx = tx.Where("species = ?", query.Species)
	}
	if query.HealthStatus != "" {
		tx = tx.Where("current_health_status = ?", query.HealthStatus)
	}
	if query.Search != "" {
		pattern := "%" + query.Search + "%"
		tx = tx.Where("tag_id LIKE ? OR name LIKE ?", pattern, pattern)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}

	var animals []Animal
	if err := tx.Order("id").Limit(limit).Offset(query.Offset).Find(&animals).Error; err != nil {
		return nil, 0, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return animals, total, nil
}

// UpdateAnimal persists changes to an existing animal.
func (ds *DataStore) UpdateAnimal(animal *Animal) error {
	if err := ds.DB.Save(animal).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("animal_id", animal.ID).
			Build()
	}
	return nil
}

// DeleteAnimal removes an animal and its owned records in one transaction.
func (ds *DataStore) DeleteAnimal(id uint) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("animal_id = ?", id).Delete(&HealthRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("animal_id = ?", id).Delete(&Attendance{}).Error; err != nil {
			return err
		}
		if err := tx.Where("animal_id = ?", id).Delete(&Alert{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Animal{}, id).Error
	})
}

// GetAllTagIDs returns every registered tag ID mapped to its animal ID.
// Used to refresh the identification registry cache.
func (ds *DataStore) GetAllTagIDs() (map[string]uint, error) {
	var rows []struct {
		ID    uint
		TagID string
	}
	if err := ds.DB.Model(&Animal{}).Select("id", "tag_id").Scan(&rows).Error; err != nil {
		return nil, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}

	tags := make(map[string]uint, len(rows))
	for _, row := range rows {
		tags[row.TagID] = row.ID
	}
	return tags, nil
}

// GetAllMuzzleHashes returns every stored muzzle print hash mapped to its
// animal ID. Animals without a reference print are omitted.
func (ds *DataStore) GetAllMuzzleHashes() (map[string]uint, error) {
	var rows []struct {
		ID              uint
		MuzzlePrintHash string
	}
	err := ds.DB.Model(&Animal{}).
		Select("id", "muzzle_print_hash").
		Where("muzzle_print_hash <> ''").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}

	hashes := make(map[string]uint, len(rows))
	for _, row := range rows {
		hashes[row.MuzzlePrintHash] = row.ID
	}
	return hashes, nil
}

// CountAnimals returns the total number of registered animals.
func (ds *DataStore) CountAnimals() (int64, error) {
	var count int64
	if err := ds.DB.Model(&Animal{}).Count(&count).Error; err != nil {
		return 0, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return count, nil
}

// UpdateAnimalHealthCache updates the cached health status fields on the
// animal row. The cache mirrors the animal's latest committed health record.
func (ds *DataStore) UpdateAnimalHealthCache(animalID uint, status string, checkedAt time.Time) error {
	result := ds.DB.Model(&Animal{}).Where("id = ?", animalID).Updates(map[string]any{
		"current_health_status": status,
		"last_health_check":     checkedAt,
	})
	if result.Error != nil {
		return errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("animal_id", animalID).
			Build()
	}
	if result.RowsAffected == 0 {
		return errors.Newf("animal %d not found", animalID).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}
