package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/herdwatch/herdwatch-go/internal/datastore"
)

// initAlertRoutes registers the alert endpoints.
func (c *Controller) initAlertRoutes() {
	c.Group.GET("/alerts", c.GetAlerts)
	c.Group.GET("/alerts/:id", c.GetAlert)
	c.Group.PUT("/alerts/:id/resolve", c.ResolveAlert)
}

// GetAlerts lists alerts with filtering and pagination, newest first.
func (c *Controller) GetAlerts(ctx echo.Context) error {
	limit, offset := parsePagination(ctx, 50, 500)
	query := datastore.AlertQuery{
		AlertType: ctx.QueryParam("type"),
		Severity:  ctx.QueryParam("severity"),
		Limit:     limit,
		Offset:    offset,
	}

	if raw := ctx.QueryParam("animal_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid animal_id", http.StatusBadRequest)
		}
		id := uint(parsed)
		query.AnimalID = &id
	}
	if raw := ctx.QueryParam("resolved"); raw != "" {
		resolved := strings.EqualFold(raw, "true")
		query.Resolved = &resolved
	}

	alerts, total, err := c.DS.ListAlerts(query)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list alerts", 0)
	}
	return ctx.JSON(http.StatusOK, PaginatedResponse{
		Data:   alerts,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetAlert returns one alert by ID.
func (c *Controller) GetAlert(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid alert ID", http.StatusBadRequest)
	}
	alert, err := c.DS.GetAlert(id)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get alert", 0)
	}
	return ctx.JSON(http.StatusOK, alert)
}

// ResolveAlertRequest carries an operator's resolution of an alert.
type ResolveAlertRequest struct {
	ResolvedBy string `json:"resolved_by"`
	Notes      string `json:"notes"`
}

// ResolveAlert closes an open alert with resolution notes. Resolving an
// already resolved alert returns a conflict.
func (c *Controller) ResolveAlert(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid alert ID", http.StatusBadRequest)
	}
	var req ResolveAlertRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if strings.TrimSpace(req.ResolvedBy) == "" {
		req.ResolvedBy = "operator"
	}

	if err := c.DS.ResolveAlert(id, req.ResolvedBy, req.Notes); err != nil {
		return c.HandleError(ctx, err, "Failed to resolve alert", 0)
	}

	alert, err := c.DS.GetAlert(id)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get alert", 0)
	}
	return ctx.JSON(http.StatusOK, alert)
}
