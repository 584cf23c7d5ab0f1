// Package analysis wires the processing pipeline together for the CLI
// entry points: single-file analysis, realtime monitoring and herd
// simulation.
package analysis

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/herdwatch/herdwatch-go/internal/alerts"
	"github.com/herdwatch/herdwatch-go/internal/attendance"
	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/datastore"
	"github.com/herdwatch/herdwatch-go/internal/detection"
	"github.com/herdwatch/herdwatch-go/internal/errors"
	"github.com/herdwatch/herdwatch-go/internal/frame"
	"github.com/herdwatch/herdwatch-go/internal/health"
	"github.com/herdwatch/herdwatch-go/internal/identify"
	"github.com/herdwatch/herdwatch-go/internal/observability"
	"github.com/herdwatch/herdwatch-go/internal/vision"
)

// Runtime holds the assembled pipeline components shared by all commands.
type Runtime struct {
	Settings     *conf.Settings
	DS           datastore.Interface
	Backend      vision.Backend
	Registry     *identify.Registry
	Engine       *detection.Engine
	Resolver     *identify.Resolver
	Assessor     *health.Assessor
	Reconciler   *attendance.Reconciler
	Alerts       *alerts.Engine
	Metrics      *observability.Metrics
	Orchestrator *frame.Orchestrator
}

// buildRuntime opens the datastore and constructs the full pipeline.
func buildRuntime(settings *conf.Settings) (*Runtime, error) {
	ds := datastore.New(settings)
	if ds == nil {
		return nil, errors.Newf("no database output enabled, enable sqlite or mysql").
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := ds.Open(); err != nil {
		return nil, err
	}

	metrics, err := observability.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		_ = ds.Close()
		return nil, err
	}

	backend := vision.New(settings)
	registry := identify.NewRegistry(ds, time.Duration(settings.Identify.RegistryTTL)*time.Minute)
	engine := detection.NewEngine(settings, backend)
	resolver := identify.NewResolver(settings, backend, registry)
	assessor := health.NewAssessor(settings, backend)
	reconciler := attendance.NewReconciler(ds)
	alertEngine := alerts.NewEngine(settings, ds)

	return &Runtime{
		Settings:     settings,
		DS:           ds,
		Backend:      backend,
		Registry:     registry,
		Engine:       engine,
		Resolver:     resolver,
		Assessor:     assessor,
		Reconciler:   reconciler,
		Alerts:       alertEngine,
		Metrics:      metrics,
		Orchestrator: frame.New(settings, ds, engine, resolver, assessor, reconciler, alertEngine, metrics),
	}, nil
}

// Close releases the runtime's resources.
func (r *Runtime) Close() {
	_ = r.DS.Close()
}
