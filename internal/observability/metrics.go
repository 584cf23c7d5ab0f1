// Package observability provides Prometheus metrics for the frame
// processing pipeline.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all Prometheus metrics emitted by the pipeline.
type Metrics struct {
	FramesTotal     *prometheus.CounterVec
	FrameDuration   *prometheus.HistogramVec
	FramesInFlight  prometheus.Gauge
	DroppedTicks    prometheus.Counter
	DetectionsTotal *prometheus.CounterVec
	Identifications *prometheus.CounterVec
	HealthStatuses  *prometheus.CounterVec
	AttendanceMarks *prometheus.CounterVec
	AlertsOpened    *prometheus.CounterVec
	CommitFailures  prometheus.Counter
	PerceptionDur   *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers the pipeline metrics on the given
// registry.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.FramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herdwatch_frames_total",
			Help: "Total number of processed frames partitioned by source and terminal state.",
		},
		[]string{"source", "state"},
	)
	m.FrameDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "herdwatch_frame_duration_seconds",
			Help:    "End to end frame processing time.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"source"},
	)
	m.FramesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "herdwatch_frames_in_flight",
			Help: "Number of frames currently being processed.",
		},
	)
	m.DroppedTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "herdwatch_camera_ticks_dropped_total",
			Help: "Camera ticks dropped because a frame was already in flight.",
		},
	)
	m.DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herdwatch_detections_total",
			Help: "Detections surfaced above the confidence threshold, partitioned by species and backend mode.",
		},
		[]string{"species", "mode"},
	)
	m.Identifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herdwatch_identifications_total",
			Help: "Identity resolutions partitioned by method.",
		},
		[]string{"method"},
	)
	m.HealthStatuses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herdwatch_health_assessments_total",
			Help: "Committed health assessments partitioned by status.",
		},
		[]string{"status"},
	)
	m.AttendanceMarks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herdwatch_attendance_marks_total",
			Help: "Attendance reconciliation outcomes.",
		},
		[]string{"outcome"},
	)
	m.AlertsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herdwatch_alerts_total",
			Help: "Alert reconciliation actions partitioned by alert type.",
		},
		[]string{"alert_type", "action"},
	)
	m.CommitFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "herdwatch_detection_commit_failures_total",
			Help: "Per-detection commits rolled back due to persistence failures.",
		},
	)
	m.PerceptionDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "herdwatch_perception_duration_seconds",
			Help:    "Time spent in perception calls partitioned by stage.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"stage"},
	)
}

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.FramesTotal.Describe(ch)
	m.FrameDuration.Describe(ch)
	m.FramesInFlight.Describe(ch)
	m.DroppedTicks.Describe(ch)
	m.DetectionsTotal.Describe(ch)
	m.Identifications.Describe(ch)
	m.HealthStatuses.Describe(ch)
	m.AttendanceMarks.Describe(ch)
	m.AlertsOpened.Describe(ch)
	m.CommitFailures.Describe(ch)
	m.PerceptionDur.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.FramesTotal.Collect(ch)
	m.FrameDuration.Collect(ch)
	m.FramesInFlight.Collect(ch)
	m.DroppedTicks.Collect(ch)
	m.DetectionsTotal.Collect(ch)
	m.Identifications.Collect(ch)
	m.HealthStatuses.Collect(ch)
	m.AttendanceMarks.Collect(ch)
	m.AlertsOpened.Collect(ch)
	m.CommitFailures.Collect(ch)
	m.PerceptionDur.Collect(ch)
}

// Registry returns the underlying registry for HTTP exposure.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
