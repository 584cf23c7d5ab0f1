package analysis

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/herdwatch/herdwatch-go/internal/api"
	"github.com/herdwatch/herdwatch-go/internal/camera"
	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/identify"
	"github.com/herdwatch/herdwatch-go/internal/logging"
	"github.com/herdwatch/herdwatch-go/internal/mqtt"
)

// absenceSweepInterval is how often registered animals are checked for
// attendance gaps while realtime monitoring runs.
const absenceSweepInterval = time.Hour

// RealtimeAnalysis starts the full monitoring stack: camera monitor, web
// server, MQTT publishing and the periodic absence sweep. It blocks until
// the context is cancelled, then shuts everything down.
func RealtimeAnalysis(ctx context.Context, settings *conf.Settings) error {
	log := logging.ForService("analysis")
	if log == nil {
		log = slog.Default().With("service", "analysis")
	}

	rt, err := buildRuntime(settings)
	if err != nil {
		return err
	}
	defer rt.Close()

	publisher, mqttClient := connectMQTT(ctx, settings, log)

	source, err := frameSource(settings)
	if err != nil {
		return err
	}
	monitor := camera.NewMonitor(
		source,
		rt.Orchestrator,
		settings.CaptureInterval(),
		identify.DefaultOptions(settings),
		publisher,
		rt.Metrics,
	)

	var server *api.Server
	if settings.WebServer.Enabled {
		server, err = api.NewServer(settings, rt.DS, api.Pipeline{
			Orchestrator: rt.Orchestrator,
			Engine:       rt.Engine,
			Resolver:     rt.Resolver,
			Assessor:     rt.Assessor,
			Reconciler:   rt.Reconciler,
			Alerts:       rt.Alerts,
			Registry:     rt.Registry,
		}, rt.Metrics)
		if err != nil {
			return err
		}
		go func() {
			if err := server.Start(); err != nil {
				log.Error("http server failed", "error", err)
			}
		}()
	}

	go runAbsenceSweep(ctx, rt, log)
	go func() {
		_ = monitor.Run(ctx)
	}()

	log.Info("realtime monitoring started",
		"source", source.Name(),
		"interval", settings.CaptureInterval(),
		"web_server", settings.WebServer.Enabled,
		"mqtt", publisher != nil)

	<-ctx.Done()
	log.Info("shutting down")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("http server shutdown failed", "error", err)
		}
	}
	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	return nil
}

// frameSource builds the camera source from configuration: "simulated", a
// directory to watch, or a single snapshot file.
func frameSource(settings *conf.Settings) (camera.FrameSource, error) {
	configured := settings.Realtime.Camera.Source
	switch {
	case configured == "" || configured == "simulated":
		return camera.NewSimulatedSource(), nil
	default:
		if info, err := os.Stat(configured); err == nil && info.IsDir() {
			return camera.NewDirectorySource(configured), nil
		}
		return camera.NewFileSource(configured), nil
	}
}

// connectMQTT builds the publisher when MQTT is enabled. A broker that is
// unreachable at startup is tolerated; the client reconnects in the
// background.
func connectMQTT(ctx context.Context, settings *conf.Settings, log *slog.Logger) (*mqtt.Publisher, mqtt.Client) {
	if !settings.Realtime.MQTT.Enabled {
		return nil, nil
	}
	client, err := mqtt.NewClient(settings)
	if err != nil {
		log.Warn("mqtt client init failed, continuing without publishing", "error", err)
		return nil, nil
	}
	if err := client.Connect(ctx); err != nil {
		log.Warn("mqtt broker unreachable, client will retry in background", "error", err)
	}
	return mqtt.NewPublisher(settings, client), client
}

// runAbsenceSweep checks for attendance gaps immediately and then on a
// fixed interval until the context ends.
func runAbsenceSweep(ctx context.Context, rt *Runtime, log *slog.Logger) {
	threshold := rt.Settings.Attendance.MissingThresholdDays

	sweep := func() {
		flagged, err := rt.Alerts.SweepAbsences(ctx, rt.Reconciler, threshold)
		if err != nil {
			log.Warn("absence sweep failed", "error", err)
			return
		}
		if flagged > 0 {
			log.Info("absence sweep flagged animals", "count", flagged)
		}
	}

	sweep()
	ticker := time.NewTicker(absenceSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
