package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/siteprobe/engine"
	"github.com/use-agent/siteprobe/models"
	"github.com/ysmood/gson"
)

// consentButtons matches "Reject all" on the cookie dialog of the video
// host, in both the inline and the consent.* page variants.
const consentButtons = `button[aria-label*="Reject"], tp-yt-paper-button[aria-label*="Reject"], form[action*="consent"] button[aria-label*="Reject"]`

// rodSession is one pooled browser tab.
type rodSession struct {
	page   *rod.Page
	router *rod.HijackRouter
	filter *resourceFilter
	logger *slog.Logger
}

var _ engine.Session = (*rodSession)(nil)

func (s *rodSession) SetResources(mode engine.ResourceMode) {
	s.filter.setMode(mode)
}

// Navigate loads url and waits for the DOM to settle. Failures are tagged
// transient: a tab that could not load now may load on the next attempt.
func (s *rodSession) Navigate(ctx context.Context, url string) error {
	s.filter.dropped.Store(0)
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return navigationError(ctx, err, "navigation failed")
	}
	if err := p.WaitLoad(); err != nil {
		return navigationError(ctx, err, "page load did not finish")
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		s.logger.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}
	s.logger.Debug("page loaded",
		"url", url,
		"resources", s.filter.currentMode().String(),
		"blocked_requests", s.filter.dropped.Load(),
	)
	return nil
}

func (s *rodSession) DismissConsent(ctx context.Context, timeout time.Duration) bool {
	p := s.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	btn, err := p.Element(consentButtons)
	if err != nil {
		return false
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		s.logger.Debug("consent click failed", "error", err)
		return false
	}
	if err := s.page.Context(ctx).WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		s.logger.Debug("page did not settle after consent", "error", err)
	}
	return true
}

func (s *rodSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	p := s.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	el, err := p.Element(selector)
	if err != nil {
		return err
	}
	return el.WaitVisible()
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", navigationError(ctx, err, "failed to read page HTML")
	}
	return html, nil
}

func (s *rodSession) URL(ctx context.Context) string {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// StatusCode reads the main document status from the Navigation Timing
// entry; event listeners on the Network domain would clash with hijacking.
func (s *rodSession) StatusCode(ctx context.Context) int {
	res, err := s.page.Context(ctx).Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

func (s *rodSession) Snapshot(ctx context.Context) ([]byte, error) {
	return s.page.Context(ctx).Screenshot(false, nil)
}

// Reset blanks the tab without the request context, so it works even
// after the request deadline has passed.
func (s *rodSession) Reset() error {
	return s.page.Navigate("about:blank")
}

func (s *rodSession) Close() error {
	if s.router != nil {
		_ = s.router.Stop()
	}
	return s.page.Close()
}

// navigationError keeps context errors intact for the classifier and
// tags everything else as transient.
func navigationError(ctx context.Context, err error, msg string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", msg, ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return models.NewFetchError(models.KindTransient, msg, err)
}

// toHeadersMap converts a plain string map to proto.NetworkHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
