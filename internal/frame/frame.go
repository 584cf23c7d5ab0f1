// Package frame orchestrates the per-image pipeline: detection, identity
// resolution, health assessment, attendance reconciliation and alert
// reconciliation, committed atomically per detection.
package frame

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/herdwatch/herdwatch-go/internal/alerts"
	"github.com/herdwatch/herdwatch-go/internal/attendance"
	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/datastore"
	"github.com/herdwatch/herdwatch-go/internal/detection"
	"github.com/herdwatch/herdwatch-go/internal/errors"
	"github.com/herdwatch/herdwatch-go/internal/health"
	"github.com/herdwatch/herdwatch-go/internal/identify"
	"github.com/herdwatch/herdwatch-go/internal/logging"
	"github.com/herdwatch/herdwatch-go/internal/observability"
	"github.com/herdwatch/herdwatch-go/internal/vision"
)

// State is a frame's position in the processing state machine.
type State string

const (
	StateReceived             State = "received"
	StateDetected             State = "detected"
	StateIdentified           State = "identified"
	StateAssessedHealth       State = "assessed_health"
	StateAttendanceReconciled State = "attendance_reconciled"
	StateAlertsReconciled     State = "alerts_reconciled"
	StateCommitted            State = "committed"
)

// Source labels for frame requests.
const (
	SourceUpload    = "upload"
	SourceCamera    = "camera"
	SourceSimulator = "simulator"
)

// Request describes one frame to process. AnimalID optionally ties the
// frame to a known animal out-of-band, e.g. an operator-specified upload.
type Request struct {
	Image      *vision.ImageData
	Source     string
	CapturedAt time.Time
	AnimalID   *uint
	Options    identify.Options
}

// DetectionOutcome is the per-detection result within a frame.
type DetectionOutcome struct {
	Detection  detection.Detection `json:"detection"`
	Resolution identify.Resolution `json:"identity"`
	Assessment *health.Assessment  `json:"assessment,omitempty"`

	AnimalID          *uint                 `json:"animal_id,omitempty"`
	HealthRecordID    *uint                 `json:"health_record_id,omitempty"`
	Attendance        *datastore.Attendance `json:"attendance,omitempty"`
	AttendanceChanged bool                  `json:"attendance_changed"`

	Committed bool   `json:"committed"`
	Error     string `json:"error,omitempty"`
}

// Result is the terminal outcome of one frame.
type Result struct {
	FrameID          string             `json:"frame_id"`
	Source           string             `json:"source"`
	State            State              `json:"state"`
	Mode             vision.Mode        `json:"mode"`
	Detections       []DetectionOutcome `json:"detections"`
	TotalDetected    int                `json:"total_detected"`
	ProcessingTimeMs float64            `json:"processing_time_ms"`
}

// perception is the intermediate result of the blocking model calls for
// one detection, gathered before any write happens.
type perception struct {
	resolution identify.Resolution
	assessment health.Assessment
	err        error
}

// Orchestrator sequences the pipeline. Perception calls run in a bounded
// worker pool; reconciliation is synchronous and each detection commits in
// its own transaction.
type Orchestrator struct {
	settings   *conf.Settings
	ds         datastore.Interface
	engine     *detection.Engine
	resolver   *identify.Resolver
	assessor   *health.Assessor
	reconciler *attendance.Reconciler
	alerts     *alerts.Engine
	metrics    *observability.Metrics

	workers chan struct{}
	logger  *slog.Logger
}

// New builds the orchestrator. metrics may be nil.
func New(
	settings *conf.Settings,
	ds datastore.Interface,
	engine *detection.Engine,
	resolver *identify.Resolver,
	assessor *health.Assessor,
	reconciler *attendance.Reconciler,
	alertEngine *alerts.Engine,
	metrics *observability.Metrics,
) *Orchestrator {
	log := logging.ForService("frame")
	if log == nil {
		log = slog.Default().With("service", "frame")
	}
	return &Orchestrator{
		settings:   settings,
		ds:         ds,
		engine:     engine,
		resolver:   resolver,
		assessor:   assessor,
		reconciler: reconciler,
		alerts:     alertEngine,
		metrics:    metrics,
		workers:    make(chan struct{}, max(2, runtime.NumCPU())),
		logger:     log,
	}
}

// ProcessFrame runs one frame through the pipeline. Zero detections is a
// valid empty result that writes nothing. A persistence failure rolls back
// the affected detection only; sibling detections continue.
func (o *Orchestrator) ProcessFrame(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if req.CapturedAt.IsZero() {
		req.CapturedAt = time.Now()
	}

	result := &Result{
		FrameID: "frm_" + uuid.New().String()[:8],
		Source:  req.Source,
		State:   StateReceived,
		Mode:    o.engine.Mode(),
	}
	if o.metrics != nil {
		o.metrics.FramesInFlight.Inc()
		defer o.metrics.FramesInFlight.Dec()
	}

	detected, err := o.detect(ctx, req.Image)
	if err != nil {
		return nil, err
	}
	result.State = StateDetected
	result.TotalDetected = detected.TotalDetected

	if len(detected.Detections) == 0 {
		o.finish(result, start)
		o.logger.Debug("frame empty", "frame_id", result.FrameID, "source", req.Source)
		return result, nil
	}

	// Perception for all detections runs concurrently in the worker pool;
	// nothing is written until a detection's commit step.
	perceptions := o.perceiveAll(ctx, req, detected.Detections)

	result.Detections = make([]DetectionOutcome, 0, len(detected.Detections))
	for i, det := range detected.Detections {
		outcome := o.commitDetection(ctx, req, det, perceptions[i])
		result.Detections = append(result.Detections, outcome)
		if o.metrics != nil {
			o.metrics.DetectionsTotal.WithLabelValues(det.Species, string(result.Mode)).Inc()
			o.metrics.Identifications.WithLabelValues(outcome.Resolution.Method).Inc()
			if outcome.Committed && outcome.Assessment != nil {
				o.metrics.HealthStatuses.WithLabelValues(outcome.Assessment.Status).Inc()
			}
			if outcome.Error != "" {
				o.metrics.CommitFailures.Inc()
			}
		}
	}

	result.State = StateCommitted
	o.finish(result, start)
	o.logger.Info("frame committed",
		"frame_id", result.FrameID,
		"source", req.Source,
		"detections", len(result.Detections),
		"elapsed_ms", result.ProcessingTimeMs)
	return result, nil
}

func (o *Orchestrator) finish(result *Result, start time.Time) {
	result.ProcessingTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	if o.metrics != nil {
		o.metrics.FramesTotal.WithLabelValues(result.Source, string(result.State)).Inc()
		o.metrics.FrameDuration.WithLabelValues(result.Source).Observe(time.Since(start).Seconds())
	}
}

// detect runs the detection stage inside the worker pool.
func (o *Orchestrator) detect(ctx context.Context, img *vision.ImageData) (*detection.Result, error) {
	select {
	case o.workers <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.New(ctx.Err()).Component("frame").Category(errors.CategoryCancellation).Build()
	}
	defer func() { <-o.workers }()

	start := time.Now()
	detected, err := o.engine.Detect(ctx, img)
	if o.metrics != nil {
		o.metrics.PerceptionDur.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	}
	return detected, err
}

// perceiveAll runs identification and health assessment for every
// detection concurrently, each bounded by the worker pool.
func (o *Orchestrator) perceiveAll(ctx context.Context, req Request, detections []detection.Detection) []perception {
	perceptions := make([]perception, len(detections))
	var wg sync.WaitGroup
	for i := range detections {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			perceptions[i] = o.perceive(ctx, req, &detections[i])
		}(i)
	}
	wg.Wait()
	return perceptions
}

func (o *Orchestrator) perceive(ctx context.Context, req Request, det *detection.Detection) perception {
	select {
	case o.workers <- struct{}{}:
	case <-ctx.Done():
		return perception{err: ctx.Err()}
	}
	defer func() { <-o.workers }()

	region := det.Box

	identStart := time.Now()
	resolution := o.resolver.Identify(ctx, req.Image, &region, req.Options)
	if o.metrics != nil {
		o.metrics.PerceptionDur.WithLabelValues("identify").Observe(time.Since(identStart).Seconds())
	}

	assessStart := time.Now()
	assessment, err := o.assessor.Assess(ctx, req.Image, &region)
	if o.metrics != nil {
		o.metrics.PerceptionDur.WithLabelValues("assess").Observe(time.Since(assessStart).Seconds())
	}
	return perception{resolution: resolution, assessment: assessment, err: err}
}

// commitDetection runs the reconciliation stages for one detection and
// commits them in a single transaction. Failures abort only this
// detection.
func (o *Orchestrator) commitDetection(ctx context.Context, req Request, det detection.Detection, p perception) DetectionOutcome {
	outcome := DetectionOutcome{Detection: det, Resolution: p.resolution}
	if p.err != nil {
		outcome.Error = p.err.Error()
		return outcome
	}
	assessment := p.assessment
	outcome.Assessment = &assessment

	// Identity: a resolved identity wins; otherwise an out-of-band animal
	// ID still lets health assessment commit, with attendance skipped.
	animalID := p.resolution.AnimalID
	markAttendance := p.resolution.Resolved()
	if animalID == nil && req.AnimalID != nil {
		animalID = req.AnimalID
	}
	if animalID == nil {
		// Nothing to attach the assessment to; the detection terminates
		// uncommitted with its ephemeral results intact.
		return outcome
	}
	outcome.AnimalID = animalID

	animal, err := o.ds.GetAnimal(*animalID)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	err = o.ds.Transaction(func(tx datastore.Interface) error {
		record := o.buildHealthRecord(*animalID, &assessment, req.Image.Path)
		if err := tx.SaveHealthRecord(record); err != nil {
			return err
		}
		if err := tx.UpdateAnimalHealthCache(*animalID, assessment.Status, req.CapturedAt); err != nil {
			return err
		}
		outcome.HealthRecordID = &record.ID

		txAlerts := o.alerts.WithStore(tx)
		if markAttendance {
			att, changed, err := o.reconciler.WithStore(tx).Mark(ctx, attendance.MarkRequest{
				AnimalID:   *animalID,
				Timestamp:  req.CapturedAt,
				Confidence: p.resolution.Confidence,
				Method:     p.resolution.Method,
				ImagePath:  req.Image.Path,
			})
			if err != nil {
				return err
			}
			outcome.Attendance = att
			outcome.AttendanceChanged = changed
			if err := txAlerts.ResolveAbsence(ctx, *animalID); err != nil {
				return err
			}
			if o.metrics != nil {
				label := "unchanged"
				if changed {
					label = "recorded"
				}
				o.metrics.AttendanceMarks.WithLabelValues(label).Inc()
			}
		}

		return txAlerts.ReconcileHealth(ctx, *animalID, animal.TagID, assessment, outcome.HealthRecordID, req.Image.Path)
	})
	if err != nil {
		// Rolled back: the outcome keeps its ephemeral data but nothing
		// from this detection was persisted.
		outcome.HealthRecordID = nil
		outcome.Attendance = nil
		outcome.AttendanceChanged = false
		outcome.Error = err.Error()
		o.logger.Warn("detection commit rolled back",
			"animal_id", *animalID,
			"species", det.Species,
			"error", err)
		return outcome
	}

	outcome.Committed = true
	return outcome
}

func (o *Orchestrator) buildHealthRecord(animalID uint, assessment *health.Assessment, imagePath string) *datastore.HealthRecord {
	return &datastore.HealthRecord{
		AnimalID:           animalID,
		Status:             assessment.Status,
		Confidence:         assessment.Confidence,
		PostureScore:       assessment.PostureScore,
		CoatConditionScore: assessment.CoatConditionScore,
		MobilityScore:      assessment.MobilityScore,
		AlertnessScore:     assessment.AlertnessScore,
		OverallScore:       assessment.OverallScore,
		Symptoms:           assessment.Symptoms,
		PositiveIndicators: assessment.PositiveIndicators,
		Recommendations:    assessment.Recommendations,
		ImagePath:          imagePath,
		AnalysisType:       "image",
		FallbackMode:       assessment.FallbackMode,
		CreatedAt:          time.Now(),
	}
}
