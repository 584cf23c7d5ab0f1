package camera

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/herdwatch/herdwatch-go/internal/errors"
	"github.com/herdwatch/herdwatch-go/internal/frame"
	"github.com/herdwatch/herdwatch-go/internal/identify"
	"github.com/herdwatch/herdwatch-go/internal/logging"
	"github.com/herdwatch/herdwatch-go/internal/mqtt"
	"github.com/herdwatch/herdwatch-go/internal/observability"
)

// Monitor drives the orchestrator from a frame source on a fixed
// interval. At most one frame is in flight; ticks arriving while a frame
// is processing are dropped, never queued, and an in-flight frame always
// runs to completion.
type Monitor struct {
	source       FrameSource
	orchestrator *frame.Orchestrator
	interval     time.Duration
	options      identify.Options
	publisher    *mqtt.Publisher
	metrics      *observability.Metrics

	inFlight atomic.Bool
	logger   *slog.Logger
}

// NewMonitor builds a camera monitor. publisher and metrics may be nil.
func NewMonitor(
	source FrameSource,
	orchestrator *frame.Orchestrator,
	interval time.Duration,
	options identify.Options,
	publisher *mqtt.Publisher,
	metrics *observability.Metrics,
) *Monitor {
	log := logging.ForService("camera")
	if log == nil {
		log = slog.Default().With("service", "camera")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		source:       source,
		orchestrator: orchestrator,
		interval:     interval,
		options:      options,
		publisher:    publisher,
		metrics:      metrics,
		logger:       log,
	}
}

// Run ticks until the context is cancelled. It returns the context error
// on shutdown.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("camera monitor started",
		"source", m.source.Name(),
		"interval", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("camera monitor stopped", "source", m.source.Name())
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick captures and processes one frame unless a frame is already in
// flight.
func (m *Monitor) tick(ctx context.Context) {
	if !m.inFlight.CompareAndSwap(false, true) {
		if m.metrics != nil {
			m.metrics.DroppedTicks.Inc()
		}
		m.logger.Debug("tick dropped, frame in flight", "source", m.source.Name())
		return
	}

	go func() {
		defer m.inFlight.Store(false)
		m.processOne(ctx)
	}()
}

func (m *Monitor) processOne(ctx context.Context) {
	captured, err := m.source.NextFrame(ctx)
	if err != nil {
		if errors.Is(err, ErrNoFrame) || ctx.Err() != nil {
			return
		}
		m.logger.Warn("frame capture failed", "source", m.source.Name(), "error", err)
		return
	}

	result, err := m.orchestrator.ProcessFrame(ctx, frame.Request{
		Image:      captured.Image,
		Source:     frame.SourceCamera,
		CapturedAt: captured.CapturedAt,
		Options:    m.options,
	})
	if err != nil {
		m.logger.Error("frame processing failed", "source", m.source.Name(), "error", err)
		return
	}

	if m.publisher != nil && len(result.Detections) > 0 {
		if err := m.publisher.PublishJSON(ctx, "frames", result); err != nil {
			m.logger.Warn("frame publish failed", "error", err)
		}
	}
}
