package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"go-cropwatch/epidemic"
	"go-cropwatch/types"
)

// GetAlerts lists alerts with optional province/district/disease/status
// filters. Defaults to active alerts.
func GetAlerts(c *gin.Context, svc *epidemic.Service) {
	filter := epidemic.AlertFilter{
		Province: c.Query("province"),
		District: c.Query("district"),
		Disease:  c.Query("disease"),
	}
	if status := c.Query("status"); status != "" {
		filter.Status = types.AlertStatus(status)
	}

	alerts := svc.ListAlerts(filter)
	c.JSON(http.StatusOK, gin.H{
		"total":  len(alerts),
		"alerts": alerts,
	})
}

const (
	minHeatmapDays = 1
	maxHeatmapDays = 365
)

// GetHeatmap returns raw observation points for map overlays. Not
// filtered by confidence: this is the density view of reports.
func GetHeatmap(c *gin.Context, svc *epidemic.Service) {
	filter := epidemic.HeatmapFilter{
		Disease:  c.Query("disease"),
		Province: c.Query("province"),
	}

	if daysStr := c.Query("days"); daysStr != "" {
		days, err := strconv.Atoi(daysStr)
		if err != nil || days < minHeatmapDays || days > maxHeatmapDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer between 1 and 365"})
			return
		}
		filter.Since = time.Now().UTC().AddDate(0, 0, -days)
	}

	points := svc.Heatmap(filter)
	c.JSON(http.StatusOK, gin.H{
		"disease":     c.Query("disease"),
		"province":    c.Query("province"),
		"total_cases": len(points),
		"data_points": points,
	})
}

// GetStats summarizes the active alert set: severity breakdown, top
// diseases, affected provinces.
func GetStats(c *gin.Context, svc *epidemic.Service) {
	stats := svc.GetStats(epidemic.StatsFilter{Province: c.Query("province")})
	c.JSON(http.StatusOK, stats)
}
