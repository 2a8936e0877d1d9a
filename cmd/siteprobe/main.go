package main

import (
	"log/slog"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/use-agent/siteprobe/config"
)

var configDir string

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "siteprobe",
		Short: "Resilient website and channel scraper",
		Long: heredoc.Doc(`
			siteprobe fetches business websites over plain HTTP and video channel pages
			in a headless browser, retries transient failures with backoff, and extracts
			structured records with a confidence score.
		`),
		Example: heredoc.Doc(`
			$ siteprobe serve
			$ siteprobe scrape https://acme.it --shape seo --subresources
		`),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory holding siteprobe.yaml (default: working directory)")

	rootCmd.AddCommand(newServeCmd(), newScrapeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configDir != "" {
		return config.Load(configDir)
	}
	return config.Load()
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	// scrape prints its result on stdout, so logs go to stderr.
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
