// Package app assembles the scrape core from configuration. Both binaries
// build on it so the HTTP service, the CLI and the MCP server run the same
// engines, retry policy and extraction pipeline.
package app

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/use-agent/siteprobe/config"
	"github.com/use-agent/siteprobe/engine"
	"github.com/use-agent/siteprobe/extract"
	"github.com/use-agent/siteprobe/metrics"
	"github.com/use-agent/siteprobe/models"
	"github.com/use-agent/siteprobe/scraper"
)

// App holds the long-lived collaborators of one process.
type App struct {
	Scraper *scraper.Scraper
	Pool    *engine.SessionPool
	Metrics *metrics.Metrics // nil when metrics are disabled

	launcher *scraper.Launcher
}

// New wires the HTTP engine, the pooled browser engine and the pipeline
// into a Scraper. The browser starts lazily on the first channel request.
// reg receives the collectors when metrics are enabled; nil means the
// default registry.
func New(cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	policy, err := cfg.Retry.Policy()
	if err != nil {
		return nil, err
	}

	httpEngine := engine.NewHTTPEngine(engine.HTTPConfig{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.Fetch.Timeout,
		MaxBodyBytes: cfg.Fetch.MaxPageSize,
		MaxRedirects: cfg.Fetch.MaxRedirects,
	})

	launcher := scraper.NewLauncher(cfg.Browser)
	pool := engine.NewSessionPool(engine.PoolConfig{
		MinSessions:  cfg.Browser.MinSessions,
		MaxSessions:  cfg.Browser.MaxSessions,
		MaxUses:      cfg.Browser.MaxUses,
		MaxAge:       cfg.Browser.MaxAge,
		MemThreshold: cfg.Browser.MemThreshold,
	}, launcher.NewSession)

	browserEngine := engine.NewBrowserEngine(pool, engine.BrowserConfig{
		ChannelHost:        cfg.Browser.ChannelHost,
		ContentMarker:      cfg.Browser.ChannelMarker,
		Timeout:            cfg.Fetch.Timeout,
		SessionWaitTimeout: cfg.Browser.SessionWaitTimeout,
		MarkerWaitTimeout:  cfg.Browser.MarkerWaitTimeout,
		ConsentTimeout:     cfg.Browser.ConsentTimeout,
		SnapshotDir:        cfg.Browser.SnapshotDir,
	})

	engines := map[models.RequestKind]engine.Engine{
		models.KindWebsite: httpEngine,
		models.KindChannel: browserEngine,
	}

	a := &App{Pool: pool, launcher: launcher}

	var opts []scraper.Option
	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New(reg)
		metrics.RegisterPool(reg, pool.Stats)
		opts = append(opts,
			scraper.WithAttemptObserver(a.Metrics.AttemptObserver),
			scraper.WithResultObserver(a.Metrics),
		)
	}

	a.Scraper = scraper.New(policy, engines, extract.NewPipeline(cfg.Fetch.UserAgent), opts...)

	slog.Info("scrape core ready",
		"max_attempts", policy.MaxAttempts,
		"max_sessions", cfg.Browser.MaxSessions,
		"metrics", cfg.Metrics.Enabled,
	)
	return a, nil
}

// Close drains the session pool, then stops the browser.
func (a *App) Close() {
	a.Pool.Close()
	a.launcher.Close()
}
