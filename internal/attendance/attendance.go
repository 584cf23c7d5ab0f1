// Package attendance reconciles once-per-day presence marks. The
// reconciliation key is (animal, calendar day); repeated detections only
// upgrade a day's record when they carry strictly higher confidence.
package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/herdwatch/herdwatch-go/internal/datastore"
	"github.com/herdwatch/herdwatch-go/internal/errors"
	"github.com/herdwatch/herdwatch-go/internal/logging"
)

// MarkRequest describes a presence detection for one animal.
type MarkRequest struct {
	AnimalID     uint
	Timestamp    time.Time
	Confidence   float64
	Method       string
	ImagePath    string
	LocationZone string
}

// DaySummary aggregates attendance for one calendar day.
type DaySummary struct {
	Date           string                 `json:"date"`
	TotalAnimals   int64                  `json:"total_animals"`
	Present        int                    `json:"present"`
	Absent         int64                  `json:"absent"`
	AttendanceRate float64                `json:"attendance_rate"`
	Records        []datastore.Attendance `json:"records"`
}

// DayRate is one day's attendance rate within a stats range.
type DayRate struct {
	Date    string  `json:"date"`
	Present int     `json:"present"`
	Rate    float64 `json:"rate"`
}

// RangeStats summarizes attendance over a trailing window of days.
type RangeStats struct {
	Days        []DayRate `json:"days"`
	AverageRate float64   `json:"average_rate"`
}

// keyedLocks hands out one mutex per reconciliation key.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocks) get(animalID uint, date string) *sync.Mutex {
	key := fmt.Sprintf("%d:%s", animalID, date)
	k.mu.Lock()
	defer k.mu.Unlock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	return lock
}

// Reconciler serializes marks per (animal, date) key on top of the
// conditional write in the datastore, so concurrent frames resolving the
// same animal cannot race the confidence comparison.
type Reconciler struct {
	ds     datastore.Interface
	keys   *keyedLocks
	logger *slog.Logger
}

// NewReconciler builds a reconciler over the datastore.
func NewReconciler(ds datastore.Interface) *Reconciler {
	log := logging.ForService("attendance")
	if log == nil {
		log = slog.Default().With("service", "attendance")
	}
	return &Reconciler{
		ds:     ds,
		keys:   &keyedLocks{locks: make(map[string]*sync.Mutex)},
		logger: log,
	}
}

// WithStore returns a reconciler bound to a different store, typically a
// transaction. Per-key locks are shared with the parent.
func (r *Reconciler) WithStore(ds datastore.Interface) *Reconciler {
	clone := *r
	clone.ds = ds
	return &clone
}

// Mark records the animal as present for the calendar day of the request
// timestamp. Returns the stored record and whether it was created or
// upgraded; a losing lower-confidence write returns the existing record
// unchanged with changed=false.
func (r *Reconciler) Mark(ctx context.Context, req MarkRequest) (*datastore.Attendance, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, errors.New(err).
			Component("attendance").
			Category(errors.CategoryCancellation).
			Build()
	}

	date := req.Timestamp.Format(datastore.DateFormat)
	lock := r.keys.get(req.AnimalID, date)
	lock.Lock()
	defer lock.Unlock()

	record := &datastore.Attendance{
		AnimalID:             req.AnimalID,
		Date:                 date,
		DetectedAt:           req.Timestamp,
		DetectionConfidence:  req.Confidence,
		IdentificationMethod: req.Method,
		ImagePath:            req.ImagePath,
		LocationZone:         req.LocationZone,
	}
	changed, err := r.ds.UpsertAttendance(record)
	if err != nil {
		return nil, false, err
	}

	if changed {
		r.logger.Debug("attendance marked",
			"animal_id", req.AnimalID,
			"date", date,
			"confidence", req.Confidence,
			"method", req.Method)
	}
	return record, changed, nil
}

// DaysSinceLastSeen returns how many whole days have passed since the
// animal's latest attendance record. seen is false for animals never
// marked present.
func (r *Reconciler) DaysSinceLastSeen(animalID uint, asOf time.Time) (days int, seen bool, err error) {
	last, err := r.ds.LastAttendance(animalID)
	if err != nil {
		return 0, false, err
	}
	if last == nil {
		return 0, false, nil
	}

	lastDay, err := time.Parse(datastore.DateFormat, last.Date)
	if err != nil {
		return 0, false, errors.New(err).
			Component("attendance").
			Category(errors.CategoryValidation).
			Context("date", last.Date).
			Build()
	}
	today, _ := time.Parse(datastore.DateFormat, asOf.Format(datastore.DateFormat))
	days = int(today.Sub(lastDay).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, true, nil
}

// SummaryForDate aggregates one day's attendance against the herd size.
func (r *Reconciler) SummaryForDate(date string) (*DaySummary, error) {
	records, err := r.ds.GetAttendanceByDate(date)
	if err != nil {
		return nil, err
	}
	total, err := r.ds.CountAnimals()
	if err != nil {
		return nil, err
	}

	summary := &DaySummary{
		Date:         date,
		TotalAnimals: total,
		Present:      len(records),
		Absent:       total - int64(len(records)),
		Records:      records,
	}
	if total > 0 {
		summary.AttendanceRate = float64(len(records)) / float64(total)
	}
	return summary, nil
}

// TodaySummary aggregates attendance for the current calendar day.
func (r *Reconciler) TodaySummary() (*DaySummary, error) {
	return r.SummaryForDate(time.Now().Format(datastore.DateFormat))
}

// Missing lists animals without an attendance record on the given day.
func (r *Reconciler) Missing(date string) ([]datastore.Animal, error) {
	return r.ds.MissingOnDate(date)
}

// Stats computes per-day attendance rates over the trailing N days,
// oldest first.
func (r *Reconciler) Stats(days int) (*RangeStats, error) {
	if days <= 0 {
		days = 7
	}
	total, err := r.ds.CountAnimals()
	if err != nil {
		return nil, err
	}

	stats := &RangeStats{Days: make([]DayRate, 0, days)}
	var sum float64
	for offset := days - 1; offset >= 0; offset-- {
		date := time.Now().AddDate(0, 0, -offset).Format(datastore.DateFormat)
		records, err := r.ds.GetAttendanceByDate(date)
		if err != nil {
			return nil, err
		}
		rate := 0.0
		if total > 0 {
			rate = float64(len(records)) / float64(total)
		}
		stats.Days = append(stats.Days, DayRate{Date: date, Present: len(records), Rate: rate})
		sum += rate
	}
	stats.AverageRate = sum / float64(days)
	return stats, nil
}
