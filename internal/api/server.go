package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/datastore"
	"github.com/herdwatch/herdwatch-go/internal/errors"
	"github.com/herdwatch/herdwatch-go/internal/logging"
	"github.com/herdwatch/herdwatch-go/internal/observability"
)

// Server owns the Echo instance and its lifecycle. The API controller and
// the operational endpoints (/healthz, /metrics) are mounted here.
type Server struct {
	Echo       *echo.Echo
	Controller *Controller

	settings *conf.Settings
	logger   *slog.Logger
}

// NewServer builds the HTTP server with all routes registered.
func NewServer(settings *conf.Settings, ds datastore.Interface,
	pipeline Pipeline, metrics *observability.Metrics) (*Server, error) {

	log := logging.ForService("httpserver")
	if log == nil {
		log = slog.Default().With("service", "httpserver")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	controller, err := New(e, ds, settings, pipeline, metrics)
	if err != nil {
		return nil, err
	}

	e.GET("/healthz", controller.HealthCheck)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
	}

	return &Server{
		Echo:       e,
		Controller: controller,
		settings:   settings,
		logger:     log,
	}, nil
}

// Start listens on the configured port and blocks until the server stops.
// A closed listener after Shutdown is reported as nil.
func (s *Server) Start() error {
	port := s.settings.WebServer.Port
	if port == "" {
		port = "8080"
	}
	s.logger.Info("http server listening", "port", port)

	err := s.Echo.Start(":" + port)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(err).
			Component("httpserver").
			Category(errors.CategoryNetwork).
			Context("port", port).
			Build()
	}
	return nil
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping")
	return s.Echo.Shutdown(ctx)
}
