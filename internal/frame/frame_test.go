package frame

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herdwatch/herdwatch-go/internal/alerts"
	"github.com/herdwatch/herdwatch-go/internal/attendance"
	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/datastore"
	"github.com/herdwatch/herdwatch-go/internal/detection"
	"github.com/herdwatch/herdwatch-go/internal/health"
	"github.com/herdwatch/herdwatch-go/internal/identify"
	"github.com/herdwatch/herdwatch-go/internal/vision"
)

// pipelineBackend scripts every perception capability for a frame.
type pipelineBackend struct {
	detections []vision.RawDetection
	tag        vision.TagReading
	pattern    vision.PatternMatch
	scores     vision.HealthScores
}

func (b *pipelineBackend) Detect(img *vision.ImageData) ([]vision.RawDetection, error) {
	return b.detections, nil
}

func (b *pipelineBackend) ReadTag(img *vision.ImageData, region *vision.Region) (vision.TagReading, error) {
	return b.tag, nil
}

func (b *pipelineBackend) MatchPattern(img *vision.ImageData, region *vision.Region) (vision.PatternMatch, error) {
	return b.pattern, nil
}

func (b *pipelineBackend) ScoreHealth(img *vision.ImageData, region *vision.Region) (vision.HealthScores, error) {
	return b.scores, nil
}

func (b *pipelineBackend) Mode() vision.Mode { return vision.ModeDeterministicFallback }

func pipelineSettings() *conf.Settings {
	settings := &conf.Settings{}
	settings.Vision.Threshold = 0.3
	settings.Identify.TagReading = true
	settings.Identify.PatternMatching = true
	settings.Identify.TagFloor = 0.6
	settings.Identify.PatternFloor = 0.7
	settings.Identify.MaxEditDistance = 1
	settings.Health.HealthyFloor = 0.8
	settings.Health.AttentionFloor = 0.5
	settings.Health.MinActionableConfidence = 0.5
	return settings
}

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

func newTestOrchestrator(t *testing.T, backend vision.Backend) (*Orchestrator, datastore.Interface) {
	t.Helper()
	settings := pipelineSettings()
	ds := createDatabase(t)
	registry := identify.NewRegistry(ds, time.Minute)
	orchestrator := New(
		settings,
		ds,
		detection.NewEngine(settings, backend),
		identify.NewResolver(settings, backend, registry),
		health.NewAssessor(settings, backend),
		attendance.NewReconciler(ds),
		alerts.NewEngine(settings, ds),
		nil,
	)
	return orchestrator, ds
}

func registerAnimal(t *testing.T, ds datastore.Interface, tagID string) datastore.Animal {
	t.Helper()
	animal := datastore.Animal{TagID: tagID, Species: datastore.SpeciesCattle}
	require.NoError(t, ds.CreateAnimal(&animal))
	return animal
}

func singleDetection(confidence float64) []vision.RawDetection {
	return []vision.RawDetection{{
		Box:        vision.Region{X1: 0.1, Y1: 0.1, X2: 0.6, Y2: 0.7},
		Species:    datastore.SpeciesCattle,
		Confidence: confidence,
	}}
}

func uniformScores(v, confidence float64) vision.HealthScores {
	return vision.HealthScores{Posture: v, Coat: v, Mobility: v, Alertness: v, Confidence: confidence}
}

func uploadRequest() Request {
	return Request{
		Image:      &vision.ImageData{Path: "frame.jpg", Bytes: []byte("jpegbytes")},
		Source:     SourceUpload,
		CapturedAt: time.Now(),
		Options:    identify.Options{UseTagReading: true, UsePatternMatching: true},
	}
}

func TestProcessFrameZeroDetections(t *testing.T) {
	backend := &pipelineBackend{}
	orchestrator, ds := newTestOrchestrator(t, backend)
	registerAnimal(t, ds, "COW-001")

	result, err := orchestrator.ProcessFrame(context.Background(), uploadRequest())
	require.NoError(t, err)
	assert.Equal(t, StateDetected, result.State)
	assert.Empty(t, result.Detections)

	// Nothing is written for an empty frame.
	count, err := ds.CountOpenAlerts()
	require.NoError(t, err)
	assert.Zero(t, count)
	records, err := ds.GetAttendanceByDate(time.Now().Format(datastore.DateFormat))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestProcessFrameFullCommit(t *testing.T) {
	backend := &pipelineBackend{
		detections: singleDetection(0.9),
		tag:        vision.TagReading{OK: true, Text: "COW-001", Confidence: 0.92},
		scores:     uniformScores(0.9, 0.9),
	}
	orchestrator, ds := newTestOrchestrator(t, backend)
	animal := registerAnimal(t, ds, "COW-001")

	result, err := orchestrator.ProcessFrame(context.Background(), uploadRequest())
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, result.State)
	require.Len(t, result.Detections, 1)

	outcome := result.Detections[0]
	assert.True(t, outcome.Committed)
	assert.Equal(t, datastore.MethodTagOCR, outcome.Resolution.Method)
	require.NotNil(t, outcome.AnimalID)
	assert.Equal(t, animal.ID, *outcome.AnimalID)
	require.NotNil(t, outcome.HealthRecordID)
	assert.True(t, outcome.AttendanceChanged)

	// Health record committed and the animal cache updated.
	latest, err := ds.LatestHealthRecord(animal.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, datastore.HealthStatusHealthy, latest.Status)

	stored, err := ds.GetAnimal(animal.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.HealthStatusHealthy, stored.CurrentHealthStatus)
	require.NotNil(t, stored.LastHealthCheck)

	// Attendance marked with the identification confidence and method.
	att, err := ds.GetAttendance(animal.ID, time.Now().Format(datastore.DateFormat))
	require.NoError(t, err)
	require.NotNil(t, att)
	assert.InDelta(t, 0.92, att.DetectionConfidence, 1e-9)
	assert.Equal(t, datastore.MethodTagOCR, att.IdentificationMethod)
}

func TestProcessFrameCriticalOpensAlert(t *testing.T) {
	backend := &pipelineBackend{
		detections: singleDetection(0.85),
		tag:        vision.TagReading{OK: true, Text: "COW-001", Confidence: 0.9},
		scores:     uniformScores(0.3, 0.8),
	}
	orchestrator, ds := newTestOrchestrator(t, backend)
	animal := registerAnimal(t, ds, "COW-001")

	result, err := orchestrator.ProcessFrame(context.Background(), uploadRequest())
	require.NoError(t, err)
	require.Len(t, result.Detections, 1)
	assert.True(t, result.Detections[0].Committed)

	open, err := ds.GetOpenAlert(&animal.ID, datastore.AlertHealthCritical)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, datastore.SeverityCritical, open.Severity)
	assert.Equal(t, *result.Detections[0].HealthRecordID, *open.HealthRecordID)

	stored, err := ds.GetAnimal(animal.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.HealthStatusCritical, stored.CurrentHealthStatus)
}

func TestProcessFrameHealthyAutoResolvesAlert(t *testing.T) {
	backend := &pipelineBackend{
		detections: singleDetection(0.85),
		tag:        vision.TagReading{OK: true, Text: "COW-001", Confidence: 0.9},
		scores:     uniformScores(0.3, 0.8),
	}
	orchestrator, ds := newTestOrchestrator(t, backend)
	animal := registerAnimal(t, ds, "COW-001")

	_, err := orchestrator.ProcessFrame(context.Background(), uploadRequest())
	require.NoError(t, err)

	// The animal recovers; the next frame auto-resolves the open alert.
	backend.scores = uniformScores(0.9, 0.9)
	_, err = orchestrator.ProcessFrame(context.Background(), uploadRequest())
	require.NoError(t, err)

	open, err := ds.GetOpenAlert(&animal.ID, datastore.AlertHealthCritical)
	require.NoError(t, err)
	assert.Nil(t, open)

	stored, err := ds.GetAnimal(animal.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.HealthStatusHealthy, stored.CurrentHealthStatus)
}

func TestProcessFrameUnresolvedWithExplicitAnimal(t *testing.T) {
	backend := &pipelineBackend{
		detections: singleDetection(0.8),
		scores:     uniformScores(0.65, 0.7),
	}
	orchestrator, ds := newTestOrchestrator(t, backend)
	animal := registerAnimal(t, ds, "COW-001")

	req := uploadRequest()
	req.AnimalID = &animal.ID
	result, err := orchestrator.ProcessFrame(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Detections, 1)

	outcome := result.Detections[0]
	assert.True(t, outcome.Committed)
	assert.Equal(t, datastore.MethodUnresolved, outcome.Resolution.Method)
	require.NotNil(t, outcome.HealthRecordID)

	// Health committed against the explicit animal; attendance skipped.
	latest, err := ds.LatestHealthRecord(animal.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	att, err := ds.GetAttendance(animal.ID, time.Now().Format(datastore.DateFormat))
	require.NoError(t, err)
	assert.Nil(t, att, "unresolved identity never produces attendance")
}

func TestProcessFrameUnresolvedWithoutAnimalWritesNothing(t *testing.T) {
	backend := &pipelineBackend{
		detections: singleDetection(0.8),
		scores:     uniformScores(0.3, 0.9),
	}
	orchestrator, ds := newTestOrchestrator(t, backend)
	registerAnimal(t, ds, "COW-001")

	result, err := orchestrator.ProcessFrame(context.Background(), uploadRequest())
	require.NoError(t, err)
	require.Len(t, result.Detections, 1)

	outcome := result.Detections[0]
	assert.False(t, outcome.Committed)
	assert.Empty(t, outcome.Error)
	assert.NotNil(t, outcome.Assessment, "assessment is still produced as ephemeral data")

	count, err := ds.CountOpenAlerts()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestProcessFrameMarkResolvesMissingAlert(t *testing.T) {
	backend := &pipelineBackend{
		detections: singleDetection(0.85),
		tag:        vision.TagReading{OK: true, Text: "COW-001", Confidence: 0.9},
		scores:     uniformScores(0.9, 0.9),
	}
	orchestrator, ds := newTestOrchestrator(t, backend)
	animal := registerAnimal(t, ds, "COW-001")

	alertEngine := alerts.NewEngine(pipelineSettings(), ds)
	require.NoError(t, alertEngine.ReconcileAbsence(context.Background(), animal.ID, animal.TagID, 4))

	_, err := orchestrator.ProcessFrame(context.Background(), uploadRequest())
	require.NoError(t, err)

	open, err := ds.GetOpenAlert(&animal.ID, datastore.AlertMissingAttendance)
	require.NoError(t, err)
	assert.Nil(t, open, "a successful mark auto-resolves the missing alert")
}

func TestProcessFrameUnknownExplicitAnimal(t *testing.T) {
	backend := &pipelineBackend{
		detections: singleDetection(0.8),
		scores:     uniformScores(0.9, 0.9),
	}
	orchestrator, _ := newTestOrchestrator(t, backend)

	missing := uint(9999)
	req := uploadRequest()
	req.AnimalID = &missing

	result, err := orchestrator.ProcessFrame(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Detections, 1)
	assert.False(t, result.Detections[0].Committed)
	assert.NotEmpty(t, result.Detections[0].Error)
}

func TestProcessFrameMultipleDetectionsIsolated(t *testing.T) {
	backend := &pipelineBackend{
		detections: []vision.RawDetection{
			{Box: vision.Region{X1: 0.1, Y1: 0.1, X2: 0.4, Y2: 0.5}, Species: datastore.SpeciesCattle, Confidence: 0.9},
			{Box: vision.Region{X1: 0.5, Y1: 0.2, X2: 0.9, Y2: 0.8}, Species: datastore.SpeciesGoat, Confidence: 0.7},
		},
		tag:    vision.TagReading{OK: true, Text: "COW-001", Confidence: 0.9},
		scores: uniformScores(0.9, 0.9),
	}
	orchestrator, ds := newTestOrchestrator(t, backend)
	animal := registerAnimal(t, ds, "COW-001")

	result, err := orchestrator.ProcessFrame(context.Background(), uploadRequest())
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, result.State)
	require.Len(t, result.Detections, 2)

	// Both detections resolve to the same tag; attendance still holds a
	// single record for the day.
	records, err := ds.GetAttendanceByDate(time.Now().Format(datastore.DateFormat))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, animal.ID, records[0].AnimalID)

	history, err := ds.GetHealthHistory(animal.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2, "each committed detection writes its own health record")
}
