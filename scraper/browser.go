package scraper

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/siteprobe/config"
	"github.com/use-agent/siteprobe/engine"
	"github.com/use-agent/siteprobe/models"
)

// Browser owns the headless browser process and opens pooled sessions.
type Browser struct {
	browser *rod.Browser
	cfg     config.BrowserConfig
	logger  *slog.Logger
}

// LaunchBrowser starts a headless browser with automation fingerprints
// removed.
func LaunchBrowser(cfg config.BrowserConfig) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("lang"), "en-US")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewFetchError(models.KindFatal, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewFetchError(models.KindFatal, "failed to connect to browser", err)
	}

	return &Browser{
		browser: browser,
		cfg:     cfg,
		logger:  slog.With("component", "browser"),
	}, nil
}

// NewSession opens a stealth tab. It satisfies engine.SessionFactory.
//
// Stealth scripts, headers and the resource filter are installed before
// the first navigation; they only apply to navigations that follow.
func (b *Browser) NewSession(ctx context.Context) (engine.Session, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewFetchError(models.KindFatal, "failed to open browser tab", err)
	}

	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		b.logger.Warn("stealth injection failed, proceeding without stealth", "error", err)
	}

	// English labels keep the channel header parseable.
	if err := (proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{"Accept-Language": "en-US,en;q=0.9"}),
	}).Call(page); err != nil {
		b.logger.Debug("failed to set extra headers", "error", err)
	}

	if ctx.Err() != nil {
		_ = page.Close()
		return nil, ctx.Err()
	}

	filter := newResourceFilter(b.cfg.BlockedResourceTypes)
	return &rodSession{
		page:   page,
		router: filter.install(page),
		filter: filter,
		logger: b.logger,
	}, nil
}

// Close kills the browser process.
func (b *Browser) Close() {
	b.logger.Info("closing browser")
	if err := b.browser.Close(); err != nil {
		b.logger.Warn("browser close failed", "error", err)
	}
}

// Launcher starts the browser on the first session request, so processes
// that only serve websites never spawn one. A failed launch is retried on
// the next request.
type Launcher struct {
	cfg config.BrowserConfig

	mu      sync.Mutex
	browser *Browser
	closed  bool
}

// NewLauncher creates a Launcher; nothing is started yet.
func NewLauncher(cfg config.BrowserConfig) *Launcher {
	return &Launcher{cfg: cfg}
}

// NewSession launches the browser if needed and opens a session. It
// satisfies engine.SessionFactory.
func (l *Launcher) NewSession(ctx context.Context) (engine.Session, error) {
	b, err := l.get()
	if err != nil {
		return nil, err
	}
	return b.NewSession(ctx)
}

func (l *Launcher) get() (*Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, models.NewFetchError(models.KindFatal, "browser is shut down", nil)
	}
	if l.browser == nil {
		b, err := LaunchBrowser(l.cfg)
		if err != nil {
			return nil, err
		}
		l.browser = b
	}
	return l.browser, nil
}

// Close kills the browser if it was started.
func (l *Launcher) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.browser != nil {
		l.browser.Close()
		l.browser = nil
	}
}
