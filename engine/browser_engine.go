package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/use-agent/siteprobe/models"
)

// BrowserConfig configures the scripted-session engine.
type BrowserConfig struct {
	// ChannelHost is the video platform host channel targets resolve to.
	ChannelHost string

	// ContentMarker is the CSS selector whose appearance means the channel
	// header has rendered.
	ContentMarker string

	// Timeout bounds navigation plus extraction for one attempt.
	Timeout time.Duration

	// SessionWaitTimeout bounds how long an attempt waits for a free session.
	SessionWaitTimeout time.Duration

	// MarkerWaitTimeout bounds the wait for ContentMarker after navigation.
	MarkerWaitTimeout time.Duration

	// ConsentTimeout bounds the search for a cookie-consent button.
	ConsentTimeout time.Duration

	// SnapshotDir receives a PNG of the page when an attempt fails.
	// Empty disables snapshots.
	SnapshotDir string
}

// DefaultContentMarker matches the channel header across recent layouts.
const DefaultContentMarker = "yt-page-header-renderer, yt-page-header-view-model, #page-header, ytd-c4-tabbed-header-renderer"

// BrowserEngine renders channel pages in a pooled headless browser session.
type BrowserEngine struct {
	pool   *SessionPool
	cfg    BrowserConfig
	logger *slog.Logger
}

// NewBrowserEngine creates a BrowserEngine over pool.
func NewBrowserEngine(pool *SessionPool, cfg BrowserConfig) *BrowserEngine {
	if cfg.ChannelHost == "" {
		cfg.ChannelHost = "www.youtube.com"
	}
	if cfg.ContentMarker == "" {
		cfg.ContentMarker = DefaultContentMarker
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SessionWaitTimeout <= 0 {
		cfg.SessionWaitTimeout = 15 * time.Second
	}
	if cfg.MarkerWaitTimeout <= 0 {
		cfg.MarkerWaitTimeout = 10 * time.Second
	}
	if cfg.ConsentTimeout <= 0 {
		cfg.ConsentTimeout = 3 * time.Second
	}
	return &BrowserEngine{
		pool:   pool,
		cfg:    cfg,
		logger: slog.With("component", "browser_engine"),
	}
}

func (e *BrowserEngine) Name() string { return "browser" }

// Fetch performs one scripted load of a channel page.
//
// Lifecycle:
//
//  1. Normalise target   – bad handles fail before any session is touched
//  2. Acquire session    – bounded wait, KindFatal on timeout
//  3. DEFER: release     – back to the pool, or closed when cancelled
//  4. Navigate           – per-attempt deadline, resource mode from options
//  5. Consent            – best-effort dismissal of the cookie dialog
//  6. Status check       – 4xx/5xx from the main document
//  7. Marker wait        – separate, shorter deadline than the attempt
//  8. Extract            – rendered HTML, interstitial check
func (e *BrowserEngine) Fetch(ctx context.Context, req *FetchRequest) (*models.Page, error) {
	// ── 1. Normalise target ──────────────────────────────────────────
	target, err := NormalizeChannel(req.Target, e.cfg.ChannelHost)
	if err != nil {
		return nil, err
	}

	// ── 2. Acquire session ───────────────────────────────────────────
	h, err := e.pool.Acquire(ctx, e.cfg.SessionWaitTimeout)
	if err != nil {
		return nil, err
	}

	// ── 3. DEFER: guarantee the lease ends on every path ─────────────
	success := false
	defer func() {
		if ctx.Err() != nil {
			e.pool.Discard(h)
			return
		}
		e.pool.Release(h, success)
	}()

	s := h.Session()
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	// ── 4. Navigate ──────────────────────────────────────────────────
	mode := ResourcesLean
	if req.Options.IncludeSubresources {
		mode = ResourcesFull
	}
	s.SetResources(mode)
	if err := s.Navigate(actx, target); err != nil {
		return nil, e.fail(s, target, fmt.Errorf("browser_engine: navigate: %w", err))
	}

	// ── 5. Consent dialog ────────────────────────────────────────────
	if s.DismissConsent(actx, e.cfg.ConsentTimeout) {
		e.logger.Debug("consent dialog dismissed", "url", target)
	}
	current := s.URL(actx)
	if isConsentWall(current) {
		return nil, e.fail(s, target, &models.FetchError{
			Kind:    models.KindBlocked,
			URL:     target,
			Message: "stuck on consent wall " + current,
		})
	}

	// ── 6. Status check ──────────────────────────────────────────────
	status := s.StatusCode(actx)
	if status >= 400 {
		return nil, e.fail(s, target, models.NewStatusError(target, status))
	}

	// ── 7. Wait for the content marker ───────────────────────────────
	if waitErr := s.WaitVisible(actx, e.cfg.ContentMarker, e.cfg.MarkerWaitTimeout); waitErr != nil {
		return nil, e.fail(s, target, e.explainMissingMarker(actx, s, target, waitErr))
	}

	// ── 8. Extract rendered HTML ─────────────────────────────────────
	body, err := s.HTML(actx)
	if err != nil {
		return nil, e.fail(s, target, fmt.Errorf("browser_engine: read html: %w", err))
	}
	if ferr := DetectInterstitial(body); ferr != nil {
		ferr.URL = target
		return nil, e.fail(s, target, ferr)
	}

	if current == "" {
		current = target
	}
	if status == 0 {
		status = 200
	}
	success = true
	return &models.Page{
		RequestedURL: req.Target,
		FinalURL:     current,
		StatusCode:   status,
		ContentType:  "text/html",
		Body:         body,
		Elapsed:      time.Since(start),
		Engine:       e.Name(),
	}, nil
}

var channelMissingMarkers = []string{
	"this channel doesn't exist",
	"this channel does not exist",
	"this channel is not available",
	"this account has been terminated",
}

// explainMissingMarker looks at whatever did render to tell a missing
// channel or a throttling page apart from a slow load.
func (e *BrowserEngine) explainMissingMarker(ctx context.Context, s Session, target string, waitErr error) error {
	body, err := s.HTML(ctx)
	if err == nil {
		if ferr := DetectInterstitial(body); ferr != nil {
			ferr.URL = target
			return ferr
		}
		lower := strings.ToLower(body)
		for _, m := range channelMissingMarkers {
			if strings.Contains(lower, m) {
				return &models.FetchError{Kind: models.KindNotFound, URL: target, Message: "channel not found"}
			}
		}
	}
	if errors.Is(waitErr, context.Canceled) {
		return waitErr
	}
	return &models.FetchError{
		Kind:    models.KindTransient,
		URL:     target,
		Message: "content marker did not appear within " + e.cfg.MarkerWaitTimeout.String(),
		Err:     waitErr,
	}
}

// fail captures a diagnostic snapshot (if enabled) and passes err through.
func (e *BrowserEngine) fail(s Session, target string, err error) error {
	e.logger.Debug("browser attempt failed", "url", target, "error", err)
	if e.cfg.SnapshotDir == "" {
		return err
	}

	// The attempt context may already be gone; give the snapshot its own.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	png, snapErr := s.Snapshot(ctx)
	if snapErr != nil {
		e.logger.Debug("snapshot failed", "url", target, "error", snapErr)
		return err
	}
	path := filepath.Join(e.cfg.SnapshotDir, snapshotName(target, time.Now()))
	if writeErr := os.WriteFile(path, png, 0o644); writeErr != nil {
		e.logger.Warn("snapshot write failed", "path", path, "error", writeErr)
		return err
	}
	e.logger.Info("failure snapshot saved", "url", target, "path", path)
	return err
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func snapshotName(target string, at time.Time) string {
	name := target
	if u, err := url.Parse(target); err == nil {
		name = u.Host + u.Path
	}
	name = strings.Trim(unsafeFileChars.ReplaceAllString(name, "_"), "_")
	return fmt.Sprintf("%s_%s.png", at.UTC().Format("20060102T150405.000"), name)
}

func isConsentWall(current string) bool {
	u, err := url.Parse(current)
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(u.Hostname()), "consent.")
}
