package alerts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/datastore"
	"github.com/herdwatch/herdwatch-go/internal/health"
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

func newTestEngine(t *testing.T) (*Engine, datastore.Interface) {
	t.Helper()
	ds := createDatabase(t)
	settings := &conf.Settings{}
	settings.Health.MinActionableConfidence = 0.5
	return NewEngine(settings, ds), ds
}

func registerAnimal(t *testing.T, ds datastore.Interface, tagID string) datastore.Animal {
	t.Helper()
	animal := datastore.Animal{TagID: tagID, Species: datastore.SpeciesCattle}
	require.NoError(t, ds.CreateAnimal(&animal))
	return animal
}

func criticalAssessment(confidence float64) health.Assessment {
	return health.Assessment{
		Status:       datastore.HealthStatusCritical,
		Confidence:   confidence,
		OverallScore: 0.35,
		Symptoms:     []string{"poor_posture", "lethargy"},
	}
}

func TestReconcileHealthOpensCriticalAlert(t *testing.T) {
	engine, ds := newTestEngine(t)
	animal := registerAnimal(t, ds, "COW-001")

	err := engine.ReconcileHealth(context.Background(), animal.ID, animal.TagID, criticalAssessment(0.8), nil, "")
	require.NoError(t, err)

	open, err := ds.GetOpenAlert(&animal.ID, datastore.AlertHealthCritical)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, datastore.SeverityCritical, open.Severity)
	assert.Contains(t, open.Title, "COW-001")
	assert.Contains(t, open.Message, "poor_posture")
}

func TestReconcileHealthNoDuplicateOnRepeat(t *testing.T) {
	engine, ds := newTestEngine(t)
	animal := registerAnimal(t, ds, "COW-001")

	require.NoError(t, engine.ReconcileHealth(context.Background(), animal.ID, animal.TagID, criticalAssessment(0.8), nil, ""))
	require.NoError(t, engine.ReconcileHealth(context.Background(), animal.ID, animal.TagID, criticalAssessment(0.9), nil, ""))

	unresolved := false
	open, total, err := ds.ListAlerts(datastore.AlertQuery{
		AnimalID:  &animal.ID,
		AlertType: datastore.AlertHealthCritical,
		Resolved:  &unresolved,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "consecutive critical assessments share one open alert")
	require.Len(t, open, 1)
	assert.Contains(t, open[0].Message, "0.90")
}

func TestReconcileHealthLowConfidenceSuppressed(t *testing.T) {
	engine, ds := newTestEngine(t)
	animal := registerAnimal(t, ds, "COW-001")

	require.NoError(t, engine.ReconcileHealth(context.Background(), animal.ID, animal.TagID, criticalAssessment(0.4), nil, ""))

	open, err := ds.GetOpenAlert(&animal.ID, datastore.AlertHealthCritical)
	require.NoError(t, err)
	assert.Nil(t, open, "low-confidence critical readings never escalate")
}

func TestReconcileHealthAttentionSeverity(t *testing.T) {
	engine, ds := newTestEngine(t)
	animal := registerAnimal(t, ds, "COW-001")

	assessment := health.Assessment{
		Status:       datastore.HealthStatusAttention,
		Confidence:   0.7,
		OverallScore: 0.62,
	}
	require.NoError(t, engine.ReconcileHealth(context.Background(), animal.ID, animal.TagID, assessment, nil, ""))

	open, err := ds.GetOpenAlert(&animal.ID, datastore.AlertHealthAttention)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, datastore.SeverityMedium, open.Severity)
}

func TestHealthyAssessmentAutoResolves(t *testing.T) {
	engine, ds := newTestEngine(t)
	animal := registerAnimal(t, ds, "COW-001")

	require.NoError(t, engine.ReconcileHealth(context.Background(), animal.ID, animal.TagID, criticalAssessment(0.8), nil, ""))

	healthy := health.Assessment{Status: datastore.HealthStatusHealthy, Confidence: 0.9, OverallScore: 0.9}
	require.NoError(t, engine.ReconcileHealth(context.Background(), animal.ID, animal.TagID, healthy, nil, ""))

	open, err := ds.GetOpenAlert(&animal.ID, datastore.AlertHealthCritical)
	require.NoError(t, err)
	assert.Nil(t, open)

	all, _, err := ds.ListAlerts(datastore.AlertQuery{AnimalID: &animal.ID})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Resolved)
	assert.Equal(t, "system", all[0].ResolvedBy)
	assert.NotEmpty(t, all[0].ResolutionNotes)
}

func TestEscalationResolvesAttentionAlert(t *testing.T) {
	engine, ds := newTestEngine(t)
	animal := registerAnimal(t, ds, "COW-001")

	attention := health.Assessment{Status: datastore.HealthStatusAttention, Confidence: 0.7, OverallScore: 0.6}
	require.NoError(t, engine.ReconcileHealth(context.Background(), animal.ID, animal.TagID, attention, nil, ""))
	require.NoError(t, engine.ReconcileHealth(context.Background(), animal.ID, animal.TagID, criticalAssessment(0.9), nil, ""))

	openAttention, err := ds.GetOpenAlert(&animal.ID, datastore.AlertHealthAttention)
	require.NoError(t, err)
	assert.Nil(t, openAttention, "escalation closes the stale attention alert")

	openCritical, err := ds.GetOpenAlert(&animal.ID, datastore.AlertHealthCritical)
	require.NoError(t, err)
	assert.NotNil(t, openCritical)
}

func TestAbsenceSeverityScale(t *testing.T) {
	assert.Equal(t, datastore.SeverityLow, AbsenceSeverity(1))
	assert.Equal(t, datastore.SeverityMedium, AbsenceSeverity(2))
	assert.Equal(t, datastore.SeverityMedium, AbsenceSeverity(3))
	assert.Equal(t, datastore.SeverityHigh, AbsenceSeverity(4))
	assert.Equal(t, datastore.SeverityHigh, AbsenceSeverity(10))
}

func TestReconcileAbsenceLifecycle(t *testing.T) {
	engine, ds := newTestEngine(t)
	animal := registerAnimal(t, ds, "COW-001")

	require.NoError(t, engine.ReconcileAbsence(context.Background(), animal.ID, animal.TagID, 4))

	open, err := ds.GetOpenAlert(&animal.ID, datastore.AlertMissingAttendance)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, datastore.SeverityHigh, open.Severity)

	// A longer gap updates the same alert in place.
	require.NoError(t, engine.ReconcileAbsence(context.Background(), animal.ID, animal.TagID, 6))
	all, total, err := ds.ListAlerts(datastore.AlertQuery{AnimalID: &animal.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Contains(t, all[0].Message, "6 day")

	// A successful mark resolves it.
	require.NoError(t, engine.ResolveAbsence(context.Background(), animal.ID))
	open, err = ds.GetOpenAlert(&animal.ID, datastore.AlertMissingAttendance)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestReconcileAbsenceBelowThresholdNoop(t *testing.T) {
	engine, ds := newTestEngine(t)
	animal := registerAnimal(t, ds, "COW-001")

	require.NoError(t, engine.ReconcileAbsence(context.Background(), animal.ID, animal.TagID, 0))

	count, err := ds.CountOpenAlerts()
	require.NoError(t, err)
	assert.Zero(t, count)
}
