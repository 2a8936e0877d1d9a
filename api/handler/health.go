package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/siteprobe/models"
)

// PoolReporter reports browser session pool usage.
type PoolReporter interface {
	Stats() models.PoolStats
}

// Health returns a handler for GET /api/v1/health.
//
// Reports pool utilisation and degrades status when more than 80% of the
// sessions are leased.
func Health(pool PoolReporter, startTime time.Time, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var stats models.PoolStats
		if pool != nil {
			stats = pool.Stats()
		}

		status := "healthy"
		if stats.MaxSessions > 0 && stats.ActiveSessions > int(float64(stats.MaxSessions)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			PoolStats: stats,
			Version:   version,
		})
	}
}
