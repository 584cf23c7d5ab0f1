// Package simulator exercises the pipeline with synthetic detections of
// registered animals, for demos and load testing when no camera is
// available.
package simulator

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/herdwatch/herdwatch-go/internal/attendance"
	"github.com/herdwatch/herdwatch-go/internal/datastore"
	"github.com/herdwatch/herdwatch-go/internal/errors"
	"github.com/herdwatch/herdwatch-go/internal/logging"
)

// Simulator marks random registered animals present on a fixed interval,
// using the same reconciliation path as real detections.
type Simulator struct {
	ds         datastore.Interface
	reconciler *attendance.Reconciler
	interval   time.Duration
	rng        *rand.Rand
	logger     *slog.Logger
}

// New builds a simulator over the datastore and attendance reconciler.
func New(ds datastore.Interface, reconciler *attendance.Reconciler, interval time.Duration) *Simulator {
	log := logging.ForService("simulator")
	if log == nil {
		log = slog.Default().With("service", "simulator")
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Simulator{
		ds:         ds,
		reconciler: reconciler,
		interval:   interval,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // demo traffic, not security sensitive
		logger:     log,
	}
}

// Run cycles until the context is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info("simulator started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Cycle(ctx); err != nil {
				s.logger.Warn("simulation cycle failed", "error", err)
			}
		}
	}
}

// Cycle detects a random subset of the herd once and marks attendance for
// each detected animal.
func (s *Simulator) Cycle(ctx context.Context) error {
	animals, _, err := s.ds.ListAnimals(datastore.AnimalQuery{Limit: 100})
	if err != nil {
		return err
	}
	if len(animals) == 0 {
		s.logger.Debug("no registered animals, skipping cycle")
		return nil
	}

	count := 1 + s.rng.Intn(min(5, len(animals)))
	s.rng.Shuffle(len(animals), func(i, j int) {
		animals[i], animals[j] = animals[j], animals[i]
	})

	marked := 0
	for _, animal := range animals[:count] {
		confidence := 0.85 + s.rng.Float64()*0.14
		_, changed, err := s.reconciler.Mark(ctx, attendance.MarkRequest{
			AnimalID:   animal.ID,
			Timestamp:  time.Now(),
			Confidence: confidence,
			Method:     datastore.MethodManual,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			s.logger.Warn("mark failed", "animal_id", animal.ID, "error", err)
			continue
		}
		if changed {
			marked++
		}
	}

	s.logger.Info("simulation cycle complete",
		"detected", count,
		"marked", marked,
		"herd_size", len(animals))
	return nil
}
