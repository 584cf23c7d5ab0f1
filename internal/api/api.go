// Package api exposes the HerdWatch HTTP API under /api/v2.
package api

import (
	"crypto/rand"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/herdwatch/herdwatch-go/internal/alerts"
	"github.com/herdwatch/herdwatch-go/internal/attendance"
	"github.com/herdwatch/herdwatch-go/internal/conf"
	"github.com/herdwatch/herdwatch-go/internal/datastore"
	"github.com/herdwatch/herdwatch-go/internal/detection"
	"github.com/herdwatch/herdwatch-go/internal/errors"
	"github.com/herdwatch/herdwatch-go/internal/frame"
	"github.com/herdwatch/herdwatch-go/internal/health"
	"github.com/herdwatch/herdwatch-go/internal/identify"
	"github.com/herdwatch/herdwatch-go/internal/logging"
	"github.com/herdwatch/herdwatch-go/internal/observability"
)

// Pipeline bundles the processing components the API drives.
type Pipeline struct {
	Orchestrator *frame.Orchestrator
	Engine       *detection.Engine
	Resolver     *identify.Resolver
	Assessor     *health.Assessor
	Reconciler   *attendance.Reconciler
	Alerts       *alerts.Engine
	Registry     *identify.Registry
}

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	DS       datastore.Interface
	Settings *conf.Settings
	Pipeline Pipeline

	metrics   *observability.Metrics
	apiLogger *slog.Logger
	startTime time.Time
}

// New creates the API controller and registers all routes on the given Echo
// instance. metrics may be nil.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	pipeline Pipeline, metrics *observability.Metrics) (*Controller, error) {

	if ds == nil {
		return nil, errors.Newf("api requires a datastore").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	log := logging.ForService("api")
	if log == nil {
		log = slog.Default().With("service", "api")
	}

	c := &Controller{
		Echo:      e,
		DS:        ds,
		Settings:  settings,
		Pipeline:  pipeline,
		metrics:   metrics,
		apiLogger: log,
		startTime: time.Now(),
	}

	c.Group = e.Group("/api/v2")
	c.Group.Use(middleware.Recover())
	c.Group.Use(middleware.CORS())
	c.Group.Use(middleware.BodyLimit("32M")) // image uploads
	c.Group.Use(c.LoggingMiddleware())

	c.initRoutes()
	return c, nil
}

// initRoutes registers all API endpoints.
func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	routeInitializers := []struct {
		name string
		fn   func()
	}{
		{"animal routes", c.initAnimalRoutes},
		{"pipeline routes", c.initPipelineRoutes},
		{"attendance routes", c.initAttendanceRoutes},
		{"alert routes", c.initAlertRoutes},
		{"dashboard routes", c.initDashboardRoutes},
	}
	for _, initializer := range routeInitializers {
		initializer.fn()
		c.apiLogger.Debug("initialized route group", "group", initializer.name)
	}
}

// LoggingMiddleware logs every API request with latency and status.
func (c *Controller) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			req := ctx.Request()
			res := ctx.Response()
			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", res.Status),
				slog.String("ip", ctx.RealIP()),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			}
			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
			}
			c.apiLogger.LogAttrs(req.Context(), slog.LevelInfo, "api request", attrs...)
			return err
		}
	}
}

// HealthCheck reports service liveness and database connectivity.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	response := map[string]any{
		"status":         "healthy",
		"timestamp":      time.Now().Format(time.RFC3339),
		"uptime_seconds": time.Since(c.startTime).Seconds(),
	}

	if _, err := c.DS.CountAnimals(); err != nil {
		response["status"] = "degraded"
		response["database_status"] = "disconnected"
		response["database_error"] = err.Error()
	} else {
		response["database_status"] = "connected"
	}

	return ctx.JSON(http.StatusOK, response)
}

// ErrorResponse is the envelope for API errors.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// PaginatedResponse wraps a list with pagination metadata.
type PaginatedResponse struct {
	Data   any   `json:"data"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// generateCorrelationID creates a short random identifier for error tracking.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError logs the failure and returns a JSON error response. The HTTP
// status is derived from the error category when the caller passes 0.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	if code == 0 {
		code = statusForError(err)
	}
	resp := &ErrorResponse{
		Error:         errorString(err, message),
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}

	c.apiLogger.Error("api error",
		"correlation_id", resp.CorrelationID,
		"message", message,
		"error", resp.Error,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP())

	return ctx.JSON(code, resp)
}

func errorString(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	var enhanced *errors.EnhancedError
	if errors.As(err, &enhanced) {
		switch enhanced.GetCategory() {
		case string(errors.CategoryNotFound):
			return http.StatusNotFound
		case string(errors.CategoryConflict):
			return http.StatusConflict
		case string(errors.CategoryValidation):
			return http.StatusBadRequest
		case string(errors.CategoryImageDecode), string(errors.CategoryFileIO):
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// parsePagination reads limit/offset query parameters with bounds applied.
func parsePagination(ctx echo.Context, defaultLimit, maxLimit int) (limit, offset int) {
	limit = queryInt(ctx, "limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset = queryInt(ctx, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
