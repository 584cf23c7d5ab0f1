package datastore

import (
	"testing"
	"time"

	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createDatabase initializes a temporary SQLite database for testing purposes.
func createDatabase(t *testing.T) Interface {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = t.TempDir() + "/test.db"

	dataStore := New(settings)
	require.NoError(t, dataStore.Open(), "Failed to open database")

	t.Cleanup(func() {
		assert.NoError(t, dataStore.Close(), "Failed to close datastore")
	})

	return dataStore
}

// createTestAnimal registers an animal and returns it.
func createTestAnimal(t *testing.T, ds Interface, tagID string) Animal {
	t.Helper()
	animal := Animal{
		TagID:   tagID,
		Name:    "Test " + tagID,
		Species: SpeciesCattle,
	}
	require.NoError(t, ds.CreateAnimal(&animal))
	return animal
}

func TestAnimalCRUD(t *testing.T) {
	ds := createDatabase(t)

	animal := createTestAnimal(t, ds, "COW-001")
	require.NotZero(t, animal.ID)
	assert.Equal(t, HealthStatusUnknown, animal.CurrentHealthStatus)

	byID, err := ds.GetAnimal(animal.ID)
	require.NoError(t, err)
	assert.Equal(t, "COW-001", byID.TagID)

	byTag, err := ds.GetAnimalByTag("COW-001")
	require.NoError(t, err)
	assert.Equal(t, animal.ID, byTag.ID)

	byID.Name = "Renamed"
	require.NoError(t, ds.UpdateAnimal(&byID))
	updated, err := ds.GetAnimal(animal.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	require.NoError(t, ds.DeleteAnimal(animal.ID))
	_, err = ds.GetAnimal(animal.ID)
	assert.Error(t, err)
}

func TestListAnimalsFiltering(t *testing.T) {
	ds := createDatabase(t)

	cow := createTestAnimal(t, ds, "COW-001")
	createTestAnimal(t, ds, "COW-002")
	goat := Animal{TagID: "GOAT-001", Species: SpeciesGoat}
	require.NoError(t, ds.CreateAnimal(&goat))

	all, total, err := ds.ListAnimals(AnimalQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)

	goats, total, err := ds.ListAnimals(AnimalQuery{Species: SpeciesGoat})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, goats, 1)
	assert.Equal(t, "GOAT-001", goats[0].TagID)

	matched, _, err := ds.ListAnimals(AnimalQuery{Search: "COW-001"})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, cow.ID, matched[0].ID)
}

func TestUpdateAnimalHealthCache(t *testing.T) {
	ds := createDatabase(t)
	animal := createTestAnimal(t, ds, "COW-001")

	checkedAt := time.Now()
	require.NoError(t, ds.UpdateAnimalHealthCache(animal.ID, HealthStatusCritical, checkedAt))

	updated, err := ds.GetAnimal(animal.ID)
	require.NoError(t, err)
	assert.Equal(t, HealthStatusCritical, updated.CurrentHealthStatus)
	require.NotNil(t, updated.LastHealthCheck)

	assert.Error(t, ds.UpdateAnimalHealthCache(9999, HealthStatusHealthy, checkedAt))
}

func TestHealthRecordHistory(t *testing.T) {
	ds := createDatabase(t)
	animal := createTestAnimal(t, ds, "COW-001")

	latest, err := ds.LatestHealthRecord(animal.ID)
	require.NoError(t, err)
	assert.Nil(t, latest, "animal without assessments has no latest record")

	first := HealthRecord{
		AnimalID:     animal.ID,
		Status:       HealthStatusAttention,
		Confidence:   0.7,
		OverallScore: 0.6,
		Symptoms:     []string{"dull_coat"},
		CreatedAt:    time.Now().Add(-time.Hour),
	}
	require.NoError(t, ds.SaveHealthRecord(&first))

	second := HealthRecord{
		AnimalID:     animal.ID,
		Status:       HealthStatusHealthy,
		Confidence:   0.9,
		OverallScore: 0.9,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, ds.SaveHealthRecord(&second))

	latest, err = ds.LatestHealthRecord(animal.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, HealthStatusHealthy, latest.Status)

	history, err := ds.GetHealthHistory(animal.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID, "history is newest first")
	assert.Equal(t, []string{"dull_coat"}, history[1].Symptoms)
}

func TestVerifyHealthRecord(t *testing.T) {
	ds := createDatabase(t)
	animal := createTestAnimal(t, ds, "COW-001")

	record := HealthRecord{AnimalID: animal.ID, Status: HealthStatusCritical, CreatedAt: time.Now()}
	require.NoError(t, ds.SaveHealthRecord(&record))

	require.NoError(t, ds.VerifyHealthRecord(record.ID, "confirmed lameness", "laminitis"))

	stored, err := ds.GetHealthRecord(record.ID)
	require.NoError(t, err)
	assert.True(t, stored.VetVerified)
	assert.Equal(t, "laminitis", stored.VetDiagnosis)
}

func TestTransactionRollback(t *testing.T) {
	ds := createDatabase(t)
	animal := createTestAnimal(t, ds, "COW-001")

	failure := assert.AnError
	err := ds.Transaction(func(tx Interface) error {
		record := HealthRecord{AnimalID: animal.ID, Status: HealthStatusCritical, CreatedAt: time.Now()}
		if err := tx.SaveHealthRecord(&record); err != nil {
			return err
		}
		if err := tx.UpdateAnimalHealthCache(animal.ID, HealthStatusCritical, time.Now()); err != nil {
			return err
		}
		return failure
	})
	require.ErrorIs(t, err, failure)

	latest, err := ds.LatestHealthRecord(animal.ID)
	require.NoError(t, err)
	assert.Nil(t, latest, "health record write must be rolled back")

	stored, err := ds.GetAnimal(animal.ID)
	require.NoError(t, err)
	assert.Equal(t, HealthStatusUnknown, stored.CurrentHealthStatus, "cache update must be rolled back")
}
