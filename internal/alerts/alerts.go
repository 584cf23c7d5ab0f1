// Package alerts opens, updates and auto-resolves alerts derived from
// health assessments and attendance gaps. At most one unresolved alert
// exists per (animal, alert type); a repeated trigger updates the open
// alert in place.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/datastore"
	"github.com/herdwatch/herdwatch-go/internal/errors"
	"github.com/herdwatch/herdwatch-go/internal/health"
	"github.com/herdwatch/herdwatch-go/internal/logging"
)

const systemResolver = "system"

// keyedLocks serializes reconciliation per (animal, alert type).
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocks) get(animalID *uint, alertType string) *sync.Mutex {
	key := "herd:" + alertType
	if animalID != nil {
		key = fmt.Sprintf("%d:%s", *animalID, alertType)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	return lock
}

// Engine reconciles alert state. Health triggers below the minimum
// actionable confidence never escalate; healthy assessments auto-resolve
// open health alerts.
type Engine struct {
	ds            datastore.Interface
	minActionable float64
	locks         *keyedLocks
	logger        *slog.Logger
}

// NewEngine builds the alert engine over the datastore.
func NewEngine(settings *conf.Settings, ds datastore.Interface) *Engine {
	log := logging.ForService("alerts")
	if log == nil {
		log = slog.Default().With("service", "alerts")
	}
	return &Engine{
		ds:            ds,
		minActionable: settings.Health.MinActionableConfidence,
		locks:         &keyedLocks{locks: make(map[string]*sync.Mutex)},
		logger:        log,
	}
}

// WithStore returns an engine bound to a different store, typically a
// transaction. The per-key locks are shared with the parent engine.
func (e *Engine) WithStore(ds datastore.Interface) *Engine {
	clone := *e
	clone.ds = ds
	return &clone
}

// ReconcileHealth applies one committed assessment to the alert state for
// the animal identified by tagID (display only).
func (e *Engine) ReconcileHealth(ctx context.Context, animalID uint, tagID string, assessment health.Assessment, healthRecordID *uint, imagePath string) error {
	if err := ctx.Err(); err != nil {
		return errors.New(err).Component("alerts").Category(errors.CategoryCancellation).Build()
	}

	if assessment.Status == datastore.HealthStatusHealthy {
		return e.resolveHealthAlerts(animalID, "status returned to healthy on automated assessment")
	}
	if assessment.Confidence < e.minActionable {
		e.logger.Debug("health trigger below actionable confidence, suppressed",
			"animal_id", animalID,
			"status", assessment.Status,
			"confidence", assessment.Confidence)
		return nil
	}

	var alertType, severity, title string
	switch assessment.Status {
	case datastore.HealthStatusCritical:
		alertType = datastore.AlertHealthCritical
		severity = datastore.SeverityCritical
		title = fmt.Sprintf("Critical health status: %s", tagID)
	case datastore.HealthStatusAttention:
		alertType = datastore.AlertHealthAttention
		severity = datastore.SeverityMedium
		title = fmt.Sprintf("Health attention needed: %s", tagID)
	default:
		return nil
	}

	// An open alert of the opposite health type no longer reflects the
	// latest assessment; close it before opening the current one.
	other := datastore.AlertHealthAttention
	if alertType == datastore.AlertHealthAttention {
		other = datastore.AlertHealthCritical
	}
	if err := e.resolveOpenAlert(animalID, other, "superseded by new assessment"); err != nil {
		return err
	}

	message := fmt.Sprintf(
		"Automated assessment scored %.2f overall (confidence %.2f). Symptoms: %s.",
		assessment.OverallScore, assessment.Confidence, joinOrNone(assessment.Symptoms))

	lock := e.locks.get(&animalID, alertType)
	lock.Lock()
	defer lock.Unlock()

	open, err := e.ds.GetOpenAlert(&animalID, alertType)
	if err != nil {
		return err
	}
	if open != nil {
		open.Severity = severity
		open.Title = title
		open.Message = message
		open.HealthRecordID = healthRecordID
		if imagePath != "" {
			open.ImagePath = imagePath
		}
		if err := e.ds.UpdateAlert(open); err != nil {
			return err
		}
		e.logger.Debug("health alert updated", "animal_id", animalID, "alert_type", alertType)
		return nil
	}

	alert := &datastore.Alert{
		AnimalID:       &animalID,
		AlertType:      alertType,
		Severity:       severity,
		Title:          title,
		Message:        message,
		HealthRecordID: healthRecordID,
		ImagePath:      imagePath,
	}
	if err := e.ds.SaveAlert(alert); err != nil {
		return err
	}
	e.logger.Info("health alert opened",
		"animal_id", animalID,
		"alert_type", alertType,
		"severity", severity)
	return nil
}

// ReconcileAbsence opens or updates a missing_attendance alert for an
// animal unseen for gapDays whole days. Severity scales with the gap.
func (e *Engine) ReconcileAbsence(ctx context.Context, animalID uint, tagID string, gapDays int) error {
	if err := ctx.Err(); err != nil {
		return errors.New(err).Component("alerts").Category(errors.CategoryCancellation).Build()
	}
	if gapDays < 1 {
		return nil
	}

	severity := AbsenceSeverity(gapDays)
	title := fmt.Sprintf("Animal missing: %s", tagID)
	message := fmt.Sprintf("No attendance record for %d day(s).", gapDays)

	lock := e.locks.get(&animalID, datastore.AlertMissingAttendance)
	lock.Lock()
	defer lock.Unlock()

	open, err := e.ds.GetOpenAlert(&animalID, datastore.AlertMissingAttendance)
	if err != nil {
		return err
	}
	if open != nil {
		open.Severity = severity
		open.Title = title
		open.Message = message
		if err := e.ds.UpdateAlert(open); err != nil {
			return err
		}
		return nil
	}

	alert := &datastore.Alert{
		AnimalID:  &animalID,
		AlertType: datastore.AlertMissingAttendance,
		Severity:  severity,
		Title:     title,
		Message:   message,
	}
	if err := e.ds.SaveAlert(alert); err != nil {
		return err
	}
	e.logger.Info("absence alert opened",
		"animal_id", animalID,
		"gap_days", gapDays,
		"severity", severity)
	return nil
}

// ResolveAbsence closes any open missing_attendance alert after a
// successful attendance mark.
func (e *Engine) ResolveAbsence(ctx context.Context, animalID uint) error {
	if err := ctx.Err(); err != nil {
		return errors.New(err).Component("alerts").Category(errors.CategoryCancellation).Build()
	}
	return e.resolveOpenAlert(animalID, datastore.AlertMissingAttendance,
		"attendance mark recorded")
}

// AbsenceSeverity maps an attendance gap in days to an alert severity.
func AbsenceSeverity(gapDays int) string {
	switch {
	case gapDays <= 1:
		return datastore.SeverityLow
	case gapDays <= 3:
		return datastore.SeverityMedium
	default:
		return datastore.SeverityHigh
	}
}

// resolveHealthAlerts closes both health alert types for an animal.
func (e *Engine) resolveHealthAlerts(animalID uint, note string) error {
	for _, alertType := range []string{datastore.AlertHealthAttention, datastore.AlertHealthCritical} {
		if err := e.resolveOpenAlert(animalID, alertType, note); err != nil {
			return err
		}
	}
	return nil
}

// resolveOpenAlert closes the open alert of the given type, if any.
func (e *Engine) resolveOpenAlert(animalID uint, alertType, note string) error {
	lock := e.locks.get(&animalID, alertType)
	lock.Lock()
	defer lock.Unlock()

	open, err := e.ds.GetOpenAlert(&animalID, alertType)
	if err != nil {
		return err
	}
	if open == nil {
		return nil
	}
	if err := e.ds.ResolveAlert(open.ID, systemResolver, note); err != nil {
		// A concurrent resolver winning the race is not a failure.
		var enhanced *errors.EnhancedError
		if errors.As(err, &enhanced) && enhanced.GetCategory() == string(errors.CategoryConflict) {
			return nil
		}
		return err
	}
	e.logger.Debug("alert auto-resolved",
		"animal_id", animalID,
		"alert_type", alertType,
		"note", note)
	return nil
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	out := items[0]
	for _, item := range items[1:] {
		out += ", " + item
	}
	return out
}
