package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/use-agent/siteprobe/app"
	"github.com/use-agent/siteprobe/models"
)

var errScrapeFailed = errors.New("scrape failed")

func newScrapeCmd() *cobra.Command {
	var (
		kind         string
		shape        string
		maxPages     int
		subresources bool
	)

	cmd := &cobra.Command{
		Use:   "scrape <target>",
		Short: "Scrape one target and print the JSON result",
		Long: heredoc.Doc(`
			Scrape one target and print the result as JSON on stdout. The exit code
			is non-zero when the scrape fails; the printed result carries the error kind.
		`),
		Example: heredoc.Doc(`
			$ siteprobe scrape https://acme.it --shape business
			$ siteprobe scrape acme.it --max-pages 5 --subresources
			$ siteprobe scrape acme.it --shape structure
			$ siteprobe scrape @acmechannel --kind channel
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.ScrapeRequest{
				Target: args[0],
				Kind:   models.RequestKind(kind),
				Shape:  models.ShapeName(shape),
				Options: models.Options{
					MaxPagesToAnalyze:   maxPages,
					IncludeSubresources: subresources,
				},
			}
			return scrape(cmd.Context(), req)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(models.KindWebsite), "Target kind: website or channel")
	cmd.Flags().StringVar(&shape, "shape", "", "Output shape (default: website for websites, channel for channels)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 1, "Same-site pages to analyze, the target included (1-10)")
	cmd.Flags().BoolVar(&subresources, "subresources", false, "Also fetch robots.txt and sitemap.xml")
	return cmd
}

func scrape(parent context.Context, req models.ScrapeRequest) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogger(cfg.Log)

	if req.Options.MaxPagesToAnalyze < 1 || req.Options.MaxPagesToAnalyze > 10 {
		return fmt.Errorf("--max-pages must be within [1, 10], got %d", req.Options.MaxPagesToAnalyze)
	}

	// A one-shot run has no scrape endpoint to expose metrics on.
	cfg.Metrics.Enabled = false
	core, err := app.New(cfg, nil)
	if err != nil {
		return fmt.Errorf("initialise scrape core: %w", err)
	}
	defer core.Close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := core.Scraper.Scrape(ctx, req)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("%w: %s", errScrapeFailed, res.ErrorKind)
	}
	return nil
}
