package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herdwatch/herdwatch-go/internal/attendance"
	"github.com/herdwatch/herdwatch-go/internal/datastore"
)

func markOn(t *testing.T, reconciler *attendance.Reconciler, animalID uint, daysAgo int) {
	t.Helper()
	_, _, err := reconciler.Mark(context.Background(), attendance.MarkRequest{
		AnimalID:   animalID,
		Timestamp:  time.Now().AddDate(0, 0, -daysAgo),
		Confidence: 0.9,
		Method:     datastore.MethodManual,
	})
	require.NoError(t, err)
}

func TestSweepAbsencesFlagsUnseenAnimals(t *testing.T) {
	engine, ds := newTestEngine(t)
	reconciler := attendance.NewReconciler(ds)

	seenToday := registerAnimal(t, ds, "COW-001")
	missing := registerAnimal(t, ds, "COW-002")
	neverSeen := registerAnimal(t, ds, "COW-003")

	markOn(t, reconciler, seenToday.ID, 0)
	markOn(t, reconciler, missing.ID, 4)

	flagged, err := engine.SweepAbsences(context.Background(), reconciler, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)

	open, err := ds.GetOpenAlert(&missing.ID, datastore.AlertMissingAttendance)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, datastore.SeverityHigh, open.Severity)

	// Seen and never-seen animals stay unflagged.
	open, err = ds.GetOpenAlert(&seenToday.ID, datastore.AlertMissingAttendance)
	require.NoError(t, err)
	assert.Nil(t, open)
	open, err = ds.GetOpenAlert(&neverSeen.ID, datastore.AlertMissingAttendance)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestSweepAbsencesEscalatesExistingAlert(t *testing.T) {
	engine, ds := newTestEngine(t)
	reconciler := attendance.NewReconciler(ds)
	animal := registerAnimal(t, ds, "COW-001")
	markOn(t, reconciler, animal.ID, 2)

	_, err := engine.SweepAbsences(context.Background(), reconciler, 1)
	require.NoError(t, err)
	open, err := ds.GetOpenAlert(&animal.ID, datastore.AlertMissingAttendance)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, datastore.SeverityMedium, open.Severity)
	firstID := open.ID

	// A later sweep updates the same alert instead of opening another.
	flagged, err := engine.SweepAbsences(context.Background(), reconciler, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)

	open, err = ds.GetOpenAlert(&animal.ID, datastore.AlertMissingAttendance)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, firstID, open.ID)
}
