// Package telemetry reports high priority errors to Sentry when enabled.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/errors"
	"github.com/herdwatch/herdwatch-go/internal/logging"
)

var enabled bool

// Init configures Sentry from settings and registers the error reporter.
// When telemetry is disabled this is a no-op and errors stay local.
func Init(settings *conf.Settings) error {
	if !settings.Sentry.Enabled {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		ServerName:       settings.Main.Name,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	enabled = true
	errors.SetTelemetryReporter(reportError)
	if log := logging.ForService("telemetry"); log != nil {
		log.Info("Sentry telemetry enabled")
	}
	return nil
}

// reportError forwards enhanced errors to Sentry. Low priority errors are
// skipped to keep the event volume down.
func reportError(ee *errors.EnhancedError) {
	if !enabled || ee.Priority == errors.PriorityLow {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", ee.GetCategory())
		for key, value := range ee.GetContext() {
			scope.SetExtra(key, value)
		}
		sentry.CaptureException(ee.Err)
	})
}

// Flush waits for buffered events to be sent. Call before process exit.
func Flush(timeout time.Duration) {
	if enabled {
		sentry.Flush(timeout)
	}
}
