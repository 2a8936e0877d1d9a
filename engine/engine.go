package engine

import (
	"context"
	"time"

	"github.com/use-agent/siteprobe/models"
)

// Engine is a fetch capability. Every implementation turns a target into a
// raw Page or fails with an error the retry classifier understands.
type Engine interface {
	// Name returns the engine identifier ("http", "browser").
	Name() string

	// Fetch performs a single attempt. It never retries on its own.
	Fetch(ctx context.Context, req *FetchRequest) (*models.Page, error)
}

// FetchRequest contains everything an engine needs for one attempt.
type FetchRequest struct {
	Target  string
	Options models.Options
	// Timeout bounds this attempt. Zero means the engine default.
	Timeout time.Duration
}
