package analysis

import (
	"context"

	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/errors"
	"github.com/herdwatch/herdwatch-go/internal/simulator"
)

// SimulateAnalysis drives the attendance pipeline with synthetic herd
// activity until the context is cancelled.
func SimulateAnalysis(ctx context.Context, settings *conf.Settings) error {
	rt, err := buildRuntime(settings)
	if err != nil {
		return err
	}
	defer rt.Close()

	sim := simulator.New(rt.DS, rt.Reconciler, settings.CaptureInterval())
	if err := sim.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
