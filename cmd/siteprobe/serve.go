package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/siteprobe/api"
	"github.com/use-agent/siteprobe/app"
	"github.com/use-agent/siteprobe/webhook"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("siteprobe starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxSessions", cfg.Browser.MaxSessions,
	)

	// ── 3. Assemble the scrape core ─────────────────────────────────
	core, err := app.New(cfg, nil)
	if err != nil {
		return fmt.Errorf("initialise scrape core: %w", err)
	}
	defer core.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 4. Setup router ─────────────────────────────────────────────
	deps := api.Deps{
		Scraper:   core.Scraper,
		Pool:      core.Pool,
		Config:    cfg,
		StartTime: time.Now(),
	}
	if core.Metrics != nil {
		deps.Metrics = core.Metrics.Handler()
	}
	if cfg.Webhook.Enabled {
		policy, err := cfg.Webhook.Policy()
		if err != nil {
			return err
		}
		deps.Notifier = webhook.NewSender(policy, cfg.Webhook.Timeout)
	}
	router := api.NewRouter(ctx, deps)

	// ── 5. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// ── 6. Graceful shutdown ────────────────────────────────────────
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	// Give in-flight requests 5 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// core.Close() runs via defer: drains the session pool and kills the browser.
	slog.Info("siteprobe stopped")
	return nil
}
