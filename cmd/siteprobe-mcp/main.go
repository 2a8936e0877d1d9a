package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/siteprobe/api"
	"github.com/use-agent/siteprobe/app"
	"github.com/use-agent/siteprobe/config"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the MCP protocol; logs must stay on stderr.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	cfg.Metrics.Enabled = false
	core, err := app.New(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialise scrape core: %v\n", err)
		os.Exit(1)
	}
	defer core.Close()

	s := server.NewMCPServer(
		"siteprobe",
		api.Version,
		server.WithToolCapabilities(false),
	)
	registerTools(s, core.Scraper)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		core.Close()
		os.Exit(1)
	}
}
