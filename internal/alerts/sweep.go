package alerts

import (
	"context"
	"time"

	"github.com/herdwatch/herdwatch-go/internal/attendance"
	"github.com/herdwatch/herdwatch-go/internal/datastore"
	"github.com/herdwatch/herdwatch-go/internal/errors"
)

// SweepAbsences walks the herd and opens or escalates missing_attendance
// alerts for animals unseen for at least thresholdDays whole days. Animals
// with no attendance history are skipped; there is no baseline to measure a
// gap from. Returns the number of animals flagged.
func (e *Engine) SweepAbsences(ctx context.Context, reconciler *attendance.Reconciler, thresholdDays int) (int, error) {
	if thresholdDays < 1 {
		thresholdDays = 1
	}
	now := time.Now()

	flagged := 0
	const pageSize = 200
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return flagged, errors.New(err).Component("alerts").Category(errors.CategoryCancellation).Build()
		}

		animals, _, err := e.ds.ListAnimals(datastore.AnimalQuery{Limit: pageSize, Offset: offset})
		if err != nil {
			return flagged, err
		}
		if len(animals) == 0 {
			break
		}

		for i := range animals {
			animal := &animals[i]
			gap, seen, err := reconciler.DaysSinceLastSeen(animal.ID, now)
			if err != nil {
				return flagged, err
			}
			if !seen || gap < thresholdDays {
				continue
			}
			if err := e.ReconcileAbsence(ctx, animal.ID, animal.TagID, gap); err != nil {
				return flagged, err
			}
			flagged++
		}

		if len(animals) < pageSize {
			break
		}
	}

	e.logger.Info("absence sweep complete", "flagged", flagged, "threshold_days", thresholdDays)
	return flagged, nil
}
