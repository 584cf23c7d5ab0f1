package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/datastore"
)

func createDatabase(t *testing.T) datastore.Interface {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = t.TempDir() + "/test.db"

	ds := datastore.New(settings)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func registerAnimal(t *testing.T, ds datastore.Interface, tagID string) datastore.Animal {
	t.Helper()
	animal := datastore.Animal{TagID: tagID, Species: datastore.SpeciesCattle}
	require.NoError(t, ds.CreateAnimal(&animal))
	return animal
}

func TestMarkCreatesRecord(t *testing.T) {
	ds := createDatabase(t)
	reconciler := NewReconciler(ds)
	animal := registerAnimal(t, ds, "COW-001")

	now := time.Now()
	record, changed, err := reconciler.Mark(context.Background(), MarkRequest{
		AnimalID:   animal.ID,
		Timestamp:  now,
		Confidence: 0.85,
		Method:     datastore.MethodTagOCR,
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, now.Format(datastore.DateFormat), record.Date)
	assert.InDelta(t, 0.85, record.DetectionConfidence, 1e-9)
}

func TestMarkIdempotentUnderLowerConfidence(t *testing.T) {
	ds := createDatabase(t)
	reconciler := NewReconciler(ds)
	animal := registerAnimal(t, ds, "COW-001")
	now := time.Now()

	_, _, err := reconciler.Mark(context.Background(), MarkRequest{
		AnimalID: animal.ID, Timestamp: now, Confidence: 0.8, Method: datastore.MethodTagOCR,
	})
	require.NoError(t, err)

	record, changed, err := reconciler.Mark(context.Background(), MarkRequest{
		AnimalID: animal.ID, Timestamp: now, Confidence: 0.6, Method: datastore.MethodMuzzlePattern,
	})
	require.NoError(t, err)
	assert.False(t, changed, "lower confidence never overwrites")
	assert.InDelta(t, 0.8, record.DetectionConfidence, 1e-9)
	assert.Equal(t, datastore.MethodTagOCR, record.IdentificationMethod)
}

func TestConcurrentMarksSameKey(t *testing.T) {
	ds := createDatabase(t)
	reconciler := NewReconciler(ds)
	animal := registerAnimal(t, ds, "COW-001")
	now := time.Now()

	confidences := []float64{0.5, 0.9, 0.7, 0.6, 0.8}
	var wg sync.WaitGroup
	for _, confidence := range confidences {
		wg.Add(1)
		go func(c float64) {
			defer wg.Done()
			_, _, err := reconciler.Mark(context.Background(), MarkRequest{
				AnimalID: animal.ID, Timestamp: now, Confidence: c, Method: datastore.MethodTagOCR,
			})
			assert.NoError(t, err)
		}(confidence)
	}
	wg.Wait()

	records, err := ds.GetAttendanceByDate(now.Format(datastore.DateFormat))
	require.NoError(t, err)
	require.Len(t, records, 1, "exactly one record per key regardless of concurrency")
	assert.InDelta(t, 0.9, records[0].DetectionConfidence, 1e-9)
}

func TestDaysSinceLastSeen(t *testing.T) {
	ds := createDatabase(t)
	reconciler := NewReconciler(ds)
	animal := registerAnimal(t, ds, "COW-001")
	never := registerAnimal(t, ds, "COW-002")

	fourDaysAgo := time.Now().AddDate(0, 0, -4)
	_, _, err := reconciler.Mark(context.Background(), MarkRequest{
		AnimalID: animal.ID, Timestamp: fourDaysAgo, Confidence: 0.9, Method: datastore.MethodTagOCR,
	})
	require.NoError(t, err)

	days, seen, err := reconciler.DaysSinceLastSeen(animal.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, 4, days)

	_, seen, err = reconciler.DaysSinceLastSeen(never.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestSummaryForDate(t *testing.T) {
	ds := createDatabase(t)
	reconciler := NewReconciler(ds)
	present := registerAnimal(t, ds, "COW-001")
	registerAnimal(t, ds, "COW-002")

	now := time.Now()
	_, _, err := reconciler.Mark(context.Background(), MarkRequest{
		AnimalID: present.ID, Timestamp: now, Confidence: 0.9, Method: datastore.MethodTagOCR,
	})
	require.NoError(t, err)

	summary, err := reconciler.SummaryForDate(now.Format(datastore.DateFormat))
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.TotalAnimals)
	assert.Equal(t, 1, summary.Present)
	assert.Equal(t, int64(1), summary.Absent)
	assert.InDelta(t, 0.5, summary.AttendanceRate, 1e-9)

	missing, err := reconciler.Missing(now.Format(datastore.DateFormat))
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "COW-002", missing[0].TagID)
}

func TestStatsWindow(t *testing.T) {
	ds := createDatabase(t)
	reconciler := NewReconciler(ds)
	animal := registerAnimal(t, ds, "COW-001")

	for offset := 0; offset < 3; offset++ {
		_, _, err := reconciler.Mark(context.Background(), MarkRequest{
			AnimalID:   animal.ID,
			Timestamp:  time.Now().AddDate(0, 0, -offset),
			Confidence: 0.9,
			Method:     datastore.MethodTagOCR,
		})
		require.NoError(t, err)
	}

	stats, err := reconciler.Stats(7)
	require.NoError(t, err)
	require.Len(t, stats.Days, 7)
	assert.Equal(t, time.Now().Format(datastore.DateFormat), stats.Days[6].Date, "window is oldest first")
	assert.InDelta(t, 1.0, stats.Days[6].Rate, 1e-9)
	assert.InDelta(t, 3.0/7.0, stats.AverageRate, 1e-9)
}
