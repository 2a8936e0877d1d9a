package engine

import (
	"context"
	"time"
)

// ResourceMode selects which subresources a session loads while rendering.
type ResourceMode int

const (
	// ResourcesLean skips images, fonts, media and tracker hosts.
	ResourcesLean ResourceMode = iota
	// ResourcesFull loads the page as a regular visitor's browser would.
	ResourcesFull
)

func (m ResourceMode) String() string {
	if m == ResourcesFull {
		return "full"
	}
	return "lean"
}

// Session is one exclusively-owned scripted browser tab. Implementations
// live next to the browser driver; the engine only needs this surface.
type Session interface {
	// SetResources applies mode to every request from the next navigation
	// on. Pooled sessions get it set again by each lease holder.
	SetResources(mode ResourceMode)

	// Navigate loads url and waits for the document to settle.
	Navigate(ctx context.Context, url string) error

	// DismissConsent clicks away a cookie-consent dialog if one is shown.
	// It is best-effort and reports whether anything was clicked.
	DismissConsent(ctx context.Context, timeout time.Duration) bool

	// WaitVisible blocks until selector matches a visible element or
	// timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// HTML returns the rendered document.
	HTML(ctx context.Context) (string, error)

	// URL returns the current location.
	URL(ctx context.Context) string

	// StatusCode returns the main document's HTTP status, 0 if unknown.
	StatusCode(ctx context.Context) int

	// Snapshot returns a PNG screenshot of the viewport.
	Snapshot(ctx context.Context) ([]byte, error)

	// Reset returns the tab to a blank state before it goes back to the pool.
	Reset() error

	// Close tears the tab down for good.
	Close() error
}

// SessionFactory opens a fresh session.
type SessionFactory func(ctx context.Context) (Session, error)
