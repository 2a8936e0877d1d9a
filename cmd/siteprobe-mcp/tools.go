package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/siteprobe/models"
)

type scraper interface {
	Scrape(ctx context.Context, req models.ScrapeRequest) models.ScrapeResult
}

func registerTools(s *server.MCPServer, sc scraper) {
	websiteTool := mcp.NewTool("scrape_website",
		mcp.WithDescription("Fetch a business website and extract a structured record (business contacts, technologies, SEO, performance, content or site structure) with a confidence score."),
		mcp.WithString("target",
			mcp.Required(),
			mcp.Description("Website URL or bare domain, e.g. 'acme.it'"),
		),
		mcp.WithString("shape",
			mcp.Description("Record shape: 'website' (default, all fields), 'business', 'technology', 'seo', 'performance', 'content' or 'structure'"),
			mcp.Enum(
				string(models.ShapeWebsite),
				string(models.ShapeBusiness),
				string(models.ShapeTechnology),
				string(models.ShapeSEO),
				string(models.ShapePerformance),
				string(models.ShapeContent),
				string(models.ShapeStructure),
			),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Same-site pages to analyze, the target included (default: 1, max: 10)"),
		),
		mcp.WithBoolean("include_subresources",
			mcp.Description("Also fetch robots.txt and sitemap.xml (default: false)"),
		),
	)
	s.AddTool(websiteTool, handleScrape(sc, models.KindWebsite))

	channelTool := mcp.NewTool("scrape_channel",
		mcp.WithDescription("Render a video channel page in a headless browser and extract its name, handle, subscriber and video counts, description and recent videos."),
		mcp.WithString("target",
			mcp.Required(),
			mcp.Description("Channel handle ('@name'), channel path or full channel URL"),
		),
	)
	s.AddTool(channelTool, handleScrape(sc, models.KindChannel))
}

func handleScrape(sc scraper, kind models.RequestKind) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, err := request.RequireString("target")
		if err != nil {
			return mcp.NewToolResultError("target is required"), nil
		}

		req := models.ScrapeRequest{
			Target: target,
			Kind:   kind,
			Shape:  models.ShapeName(request.GetString("shape", "")),
		}
		if kind == models.KindWebsite {
			maxPages := request.GetInt("max_pages", 1)
			if maxPages < 1 || maxPages > 10 {
				return mcp.NewToolResultError(fmt.Sprintf("max_pages must be within [1, 10], got %d", maxPages)), nil
			}
			req.Options = models.Options{
				MaxPagesToAnalyze:   maxPages,
				IncludeSubresources: request.GetBool("include_subresources", false),
			}
		}

		res := sc.Scrape(ctx, req)

		body, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
		}
		if !res.Success {
			return mcp.NewToolResultError(fmt.Sprintf("[%s] %s\n\n%s", res.ErrorKind, res.Error, body)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}
