package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/siteprobe/models"
	"github.com/use-agent/siteprobe/simhash"
	"golang.org/x/sync/errgroup"
)

// HTTPConfig configures the plain-fetch engine.
type HTTPConfig struct {
	UserAgent    string
	Timeout      time.Duration // per attempt
	MaxBodyBytes int64
	MaxRedirects int
}

// HTTPEngine fetches pages with a single stateless request per URL. It is
// the capability used for generic websites.
type HTTPEngine struct {
	client *http.Client
	cfg    HTTPConfig
	logger *slog.Logger
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls conn.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewHTTPEngine creates an HTTPEngine with a Chrome-like TLS fingerprint.
func NewHTTPEngine(cfg HTTPConfig) *HTTPEngine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 5
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	maxRedirects := cfg.MaxRedirects
	return &HTTPEngine{
		cfg:    cfg,
		logger: slog.With("component", "http_engine"),
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
}

func (e *HTTPEngine) Name() string { return "http" }

// Fetch loads the target page, then best-effort extra pages and site files
// when the options ask for them. Only the main page can fail the attempt.
func (e *HTTPEngine) Fetch(ctx context.Context, req *FetchRequest) (*models.Page, error) {
	target, err := ValidateURL(req.Target)
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.get(ctx, target)
	if err != nil {
		return nil, err
	}
	if resp.status < 200 || resp.status > 299 {
		return nil, models.NewStatusError(target, resp.status)
	}
	if resp.contentType != "" && !isTextContentType(resp.contentType) {
		return nil, &models.FetchError{
			Kind:       models.KindFatal,
			StatusCode: resp.status,
			URL:        target,
			Message:    "unsupported content type " + resp.contentType,
		}
	}
	if ferr := DetectInterstitial(resp.body); ferr != nil {
		ferr.URL = target
		ferr.StatusCode = resp.status
		return nil, ferr
	}

	page := &models.Page{
		RequestedURL: req.Target,
		FinalURL:     resp.finalURL,
		StatusCode:   resp.status,
		ContentType:  resp.contentType,
		Body:         resp.body,
		Elapsed:      time.Since(start),
		Engine:       e.Name(),
	}

	if n := req.Options.MaxPagesToAnalyze - 1; n > 0 {
		page.Subpages = e.fetchSubpages(ctx, page, n)
	}
	if req.Options.IncludeSubresources {
		page.Subresources = e.fetchSubresources(ctx, page.FinalURL)
	}
	return page, nil
}

type rawResponse struct {
	status      int
	finalURL    string
	contentType string
	body        string
}

func (e *HTTPEngine) get(ctx context.Context, target string) (*rawResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, models.NewFetchError(models.KindInvalidInput, "build request", errors.Join(models.ErrInvalidTarget, err))
	}

	httpReq.Header.Set("User-Agent", e.cfg.UserAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9,it;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "identity")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http_engine: do request: %w", err)
	}
	defer resp.Body.Close()

	// One byte past the cap tells a full page from a cut one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("http_engine: read body: %w", err)
	}
	if int64(len(body)) > e.cfg.MaxBodyBytes {
		body = body[:e.cfg.MaxBodyBytes]
		e.logger.Warn("page exceeds size limit, body truncated",
			"url", target,
			"limit_bytes", e.cfg.MaxBodyBytes,
		)
	}

	return &rawResponse{
		status:      resp.StatusCode,
		finalURL:    resp.Request.URL.String(),
		contentType: resp.Header.Get("Content-Type"),
		body:        string(body),
	}, nil
}

// fetchSubpages loads up to limit same-site pages linked from the main page.
// Failures are logged and skipped.
func (e *HTTPEngine) fetchSubpages(ctx context.Context, main *models.Page, limit int) []models.Page {
	links := PickSubpages(main.Body, main.FinalURL, limit)
	if len(links) == 0 {
		return nil
	}

	pages := make([]*models.Page, len(links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for i, link := range links {
		g.Go(func() error {
			start := time.Now()
			resp, err := e.get(gctx, link)
			if err != nil || resp.status < 200 || resp.status > 299 || !isTextContentType(resp.contentType) {
				e.logger.Debug("subpage skipped", "url", link, "error", err)
				return nil
			}
			pages[i] = &models.Page{
				RequestedURL: link,
				FinalURL:     resp.finalURL,
				StatusCode:   resp.status,
				ContentType:  resp.contentType,
				Body:         resp.body,
				Elapsed:      time.Since(start),
				Engine:       e.Name(),
			}
			return nil
		})
	}
	_ = g.Wait()

	// Catch-all routes often serve the home page (or one shared page) for
	// every path; such copies add nothing to the analysis.
	seen := simhash.Set{Threshold: duplicateDistance}
	seen.Add(simhash.FingerprintHTML(main.Body))
	out := make([]models.Page, 0, len(pages))
	for _, p := range pages {
		if p == nil {
			continue
		}
		if !seen.Add(simhash.FingerprintHTML(p.Body)) {
			e.logger.Debug("subpage skipped as duplicate", "url", p.FinalURL)
			continue
		}
		out = append(out, *p)
	}
	return out
}

// duplicateDistance is the largest fingerprint distance at which two
// pages count as the same page.
const duplicateDistance = 3

// fetchSubresources loads robots.txt and sitemap.xml from the site root.
// A transport error leaves the entry out; an HTTP error is kept with its
// status so the extractor can report the file as missing.
func (e *HTTPEngine) fetchSubresources(ctx context.Context, pageURL string) map[string]models.Subresource {
	root, err := SiteRoot(pageURL)
	if err != nil {
		return nil
	}

	out := make(map[string]models.Subresource, 2)
	for _, path := range []string{models.RobotsPath, models.SitemapPath} {
		resp, err := e.get(ctx, root+path)
		if err != nil {
			e.logger.Debug("subresource skipped", "path", path, "error", err)
			continue
		}
		out[path] = models.Subresource{
			URL:        resp.finalURL,
			StatusCode: resp.status,
			Body:       resp.body,
		}
	}
	return out
}

// isTextContentType returns true for HTML, XML and plain text responses.
func isTextContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") ||
		strings.Contains(ct, "application/xhtml+xml") ||
		strings.Contains(ct, "xml") ||
		strings.HasPrefix(ct, "text/")
}
