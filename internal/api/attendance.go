package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/herdwatch/herdwatch-go/internal/attendance"
	"github.com/herdwatch/herdwatch-go/internal/datastore"
	"github.com/herdwatch/herdwatch-go/internal/errors"
)

// initAttendanceRoutes registers the attendance endpoints.
func (c *Controller) initAttendanceRoutes() {
	c.Group.POST("/attendance/mark", c.MarkAttendance)
	c.Group.GET("/attendance/today", c.GetTodayAttendance)
	c.Group.GET("/attendance/date/:date", c.GetAttendanceByDate)
	c.Group.GET("/attendance/stats", c.GetAttendanceStats)
	c.Group.GET("/attendance/missing", c.GetMissingAnimals)
}

// MarkAttendanceRequest is a manual presence mark for one animal.
type MarkAttendanceRequest struct {
	AnimalID     uint    `json:"animal_id"`
	Confidence   float64 `json:"confidence"`
	Method       string  `json:"method"`
	LocationZone string  `json:"location_zone"`
	Timestamp    string  `json:"timestamp"` // RFC3339, defaults to now
}

// MarkAttendance records an animal as present today (or at the supplied
// timestamp) and resolves any open missing-animal alert.
func (c *Controller) MarkAttendance(ctx echo.Context) error {
	var req MarkAttendanceRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if req.AnimalID == 0 {
		err := errors.Newf("animal_id is required").
			Component("api").
			Category(errors.CategoryValidation).
			Build()
		return c.HandleError(ctx, err, "Invalid mark request", 0)
	}
	if _, err := c.DS.GetAnimal(req.AnimalID); err != nil {
		return c.HandleError(ctx, err, "Failed to get animal", 0)
	}

	timestamp := time.Now()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid timestamp", http.StatusBadRequest)
		}
		timestamp = parsed
	}
	if req.Confidence <= 0 || req.Confidence > 1 {
		req.Confidence = 1.0
	}
	if req.Method == "" {
		req.Method = datastore.MethodManual
	}

	record, changed, err := c.Pipeline.Reconciler.Mark(ctx.Request().Context(), attendance.MarkRequest{
		AnimalID:     req.AnimalID,
		Timestamp:    timestamp,
		Confidence:   req.Confidence,
		Method:       req.Method,
		LocationZone: req.LocationZone,
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to mark attendance", 0)
	}
	if err := c.Pipeline.Alerts.ResolveAbsence(ctx.Request().Context(), req.AnimalID); err != nil {
		return c.HandleError(ctx, err, "Failed to resolve absence alert", 0)
	}

	if c.metrics != nil {
		label := "unchanged"
		if changed {
			label = "recorded"
		}
		c.metrics.AttendanceMarks.WithLabelValues(label).Inc()
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"record":  record,
		"changed": changed,
	})
}

// GetTodayAttendance summarizes today's attendance.
func (c *Controller) GetTodayAttendance(ctx echo.Context) error {
	summary, err := c.Pipeline.Reconciler.TodaySummary()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to summarize attendance", 0)
	}
	return ctx.JSON(http.StatusOK, summary)
}

// GetAttendanceByDate summarizes attendance for one calendar day.
func (c *Controller) GetAttendanceByDate(ctx echo.Context) error {
	date := ctx.Param("date")
	if _, err := time.Parse(datastore.DateFormat, date); err != nil {
		return c.HandleError(ctx, err, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
	}

	summary, err := c.Pipeline.Reconciler.SummaryForDate(date)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to summarize attendance", 0)
	}
	return ctx.JSON(http.StatusOK, summary)
}

// GetAttendanceStats returns per-day attendance rates over a trailing window.
func (c *Controller) GetAttendanceStats(ctx echo.Context) error {
	days := queryInt(ctx, "days", 7)
	if days < 1 {
		days = 7
	} else if days > 90 {
		days = 90
	}

	stats, err := c.Pipeline.Reconciler.Stats(days)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute attendance stats", 0)
	}
	return ctx.JSON(http.StatusOK, stats)
}

// GetMissingAnimals lists registered animals without an attendance record on
// the given date (today by default).
func (c *Controller) GetMissingAnimals(ctx echo.Context) error {
	date := ctx.QueryParam("date")
	if date == "" {
		date = time.Now().Format(datastore.DateFormat)
	} else if _, err := time.Parse(datastore.DateFormat, date); err != nil {
		return c.HandleError(ctx, err, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
	}

	missing, err := c.Pipeline.Reconciler.Missing(date)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list missing animals", 0)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"date":    date,
		"missing": missing,
		"count":   len(missing),
	})
}
