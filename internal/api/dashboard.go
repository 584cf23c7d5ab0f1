package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/herdwatch/herdwatch-go/internal/vision"
)

// initDashboardRoutes registers the dashboard aggregate endpoints.
func (c *Controller) initDashboardRoutes() {
	c.Group.GET("/dashboard/stats", c.GetDashboardStats)
	c.Group.GET("/dashboard/quick-stats", c.GetQuickStats)
	c.Group.GET("/dashboard/trends/health", c.GetHealthTrend)
	c.Group.GET("/dashboard/trends/attendance", c.GetAttendanceTrend)
}

// GetDashboardStats aggregates herd, health, attendance and alert numbers
// into one dashboard payload.
func (c *Controller) GetDashboardStats(ctx echo.Context) error {
	totalAnimals, err := c.DS.CountAnimals()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to count animals", 0)
	}
	healthCounts, err := c.DS.CountByHealthStatus()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to count health statuses", 0)
	}
	openAlerts, err := c.DS.CountOpenAlerts()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to count alerts", 0)
	}
	today, err := c.Pipeline.Reconciler.TodaySummary()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to summarize attendance", 0)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"total_animals": totalAnimals,
		"health_status": healthCounts,
		"open_alerts":   openAlerts,
		"attendance": map[string]any{
			"date":    today.Date,
			"present": today.Present,
			"absent":  today.Absent,
			"rate":    today.AttendanceRate,
		},
		"vision_mode": c.Pipeline.Engine.Mode(),
		"generated":   time.Now().Format(time.RFC3339),
	})
}

// GetQuickStats returns lightweight numbers for the dashboard header along
// with host load figures.
func (c *Controller) GetQuickStats(ctx echo.Context) error {
	totalAnimals, err := c.DS.CountAnimals()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to count animals", 0)
	}
	openAlerts, err := c.DS.CountOpenAlerts()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to count alerts", 0)
	}
	today, err := c.Pipeline.Reconciler.TodaySummary()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to summarize attendance", 0)
	}

	system := map[string]any{
		"goroutines": runtime.NumGoroutine(),
		"uptime_sec": time.Since(c.startTime).Seconds(),
	}
	// Host metrics are best effort; a probe failure never fails the request.
	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		system["cpu_percent"] = percentages[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		system["memory_percent"] = vm.UsedPercent
		system["memory_total_mb"] = vm.Total / 1024 / 1024
	}
	if usage, err := disk.Usage("/"); err == nil {
		system["disk_percent"] = usage.UsedPercent
		system["disk_free_gb"] = float64(usage.Free) / 1024 / 1024 / 1024
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"total_animals":    totalAnimals,
		"present_today":    today.Present,
		"attendance_rate":  today.AttendanceRate,
		"open_alerts":      openAlerts,
		"system":           system,
		"fallback_running": c.Pipeline.Engine.Mode() == vision.ModeDeterministicFallback,
	})
}

// GetHealthTrend returns per-day assessment status counts over a trailing
// window.
func (c *Controller) GetHealthTrend(ctx echo.Context) error {
	days := trendDays(ctx)
	trend, err := c.DS.HealthStatusTrend(days)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute health trend", 0)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"days":  days,
		"trend": trend,
	})
}

// GetAttendanceTrend returns per-day attendance rates over a trailing window.
func (c *Controller) GetAttendanceTrend(ctx echo.Context) error {
	days := trendDays(ctx)
	stats, err := c.Pipeline.Reconciler.Stats(days)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute attendance trend", 0)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"days":  days,
		"trend": stats.Days,
		"rate":  stats.AverageRate,
	})
}

func trendDays(ctx echo.Context) int {
	days := queryInt(ctx, "days", 7)
	if days < 1 {
		days = 7
	} else if days > 90 {
		days = 90
	}
	return days
}
