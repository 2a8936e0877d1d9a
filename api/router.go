package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/siteprobe/api/handler"
	"github.com/use-agent/siteprobe/api/middleware"
	"github.com/use-agent/siteprobe/config"
	"github.com/use-agent/siteprobe/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Scraper handler.Scraper
	Pool    handler.PoolReporter // nil when no browser is running

	// Metrics serves /metrics; nil disables the route.
	Metrics http.Handler

	// Notifier posts async batch results; nil rejects batches with a
	// webhook_url.
	Notifier handler.Notifier

	Config    *config.Config
	StartTime time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics stay outside auth so probes always work. ctx bounds
// background work started by the middleware.
func NewRouter(ctx context.Context, d Deps) *gin.Engine {
	gin.SetMode(d.Config.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(d.Pool, d.StartTime, Version))

	protected := v1.Group("")
	if d.Config.Auth.Enabled {
		protected.Use(middleware.Auth(d.Config.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, d.Config.RateLimit))

	protected.POST("/scrape/website", handler.Scrape(d.Scraper, models.KindWebsite))
	protected.POST("/scrape/channel", handler.Scrape(d.Scraper, models.KindChannel))
	protected.POST("/scrape/batch", handler.Batch(ctx, d.Scraper, d.Config.Batch.Concurrency, d.Notifier))

	return r
}
