package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/siteprobe/config"
	"github.com/use-agent/siteprobe/models"
	"github.com/use-agent/siteprobe/webhook"
)

// fakeScraper answers by target so tests can pick the outcome.
type fakeScraper struct {
	mu   sync.Mutex
	seen []models.ScrapeRequest
}

var outcomes = map[string]models.ErrorKind{
	"missing":  models.KindNotFound,
	"bad":      models.KindInvalidInput,
	"blocked":  models.KindBlocked,
	"busy":     models.KindRateLimited,
	"slow":     models.KindTransient,
	"crash":    models.KindFatal,
}

func (f *fakeScraper) Scrape(_ context.Context, req models.ScrapeRequest) models.ScrapeResult {
	f.mu.Lock()
	f.seen = append(f.seen, req)
	f.mu.Unlock()

	if kind, ok := outcomes[req.Target]; ok {
		return models.ScrapeResult{Target: req.Target, ErrorKind: kind, Error: "failed", AttemptsUsed: 1}
	}
	return models.ScrapeResult{
		Target:          req.Target,
		Success:         true,
		Data:            &models.Record{Shape: req.Shape, Fields: map[string]any{"title_tag": "Acme", "phone": nil}},
		AttemptsUsed:    1,
		ConfidenceScore: 0.5,
	}
}

type fakePool struct{ stats models.PoolStats }

func (p fakePool) Stats() models.PoolStats { return p.stats }

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Mode: gin.TestMode},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		Batch:     config.BatchConfig{Concurrency: 2},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config, sc *fakeScraper) *gin.Engine {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewRouter(ctx, Deps{
		Scraper:   sc,
		Pool:      fakePool{models.PoolStats{MaxSessions: 4, ActiveSessions: 1, Available: 3}},
		Metrics:   http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("# metrics")) }),
		Config:    cfg,
		StartTime: time.Now(),
	})
}

func do(r http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestScrapeWebsite_Success(t *testing.T) {
	sc := &fakeScraper{}
	r := newTestRouter(t, testConfig(), sc)

	rec := do(r, http.MethodPost, "/api/v1/scrape/website", `{"target":"https://acme.it","shape":"seo","options":{"max_pages_to_analyze":3}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Nil(t, body["error_kind"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "Acme", data["title_tag"])
	assert.Contains(t, data, "phone")
	assert.Nil(t, data["phone"])

	require.Len(t, sc.seen, 1)
	assert.Equal(t, models.KindWebsite, sc.seen[0].Kind)
	assert.Equal(t, models.ShapeSEO, sc.seen[0].Shape)
	assert.Equal(t, 3, sc.seen[0].Options.MaxPagesToAnalyze)
}

func TestScrape_StatusMapping(t *testing.T) {
	r := newTestRouter(t, testConfig(), &fakeScraper{})
	tests := map[string]int{
		"missing": http.StatusNotFound,
		"bad":     http.StatusBadRequest,
		"blocked": http.StatusServiceUnavailable,
		"busy":    http.StatusServiceUnavailable,
		"slow":    http.StatusGatewayTimeout,
		"crash":   http.StatusInternalServerError,
	}
	for target, want := range tests {
		rec := do(r, http.MethodPost, "/api/v1/scrape/channel", `{"target":"`+target+`"}`)
		assert.Equal(t, want, rec.Code, target)

		var res models.ScrapeResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.False(t, res.Success)
		assert.Equal(t, outcomes[target], res.ErrorKind)
	}
}

func TestScrape_RejectsBadBody(t *testing.T) {
	r := newTestRouter(t, testConfig(), &fakeScraper{})

	for _, body := range []string{`{}`, `not json`, `{"target":"x","options":{"max_pages_to_analyze":50}}`} {
		rec := do(r, http.MethodPost, "/api/v1/scrape/website", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), models.ErrCodeInvalidInput)
	}
}

func TestBatch_KeepsOrderAndCounts(t *testing.T) {
	sc := &fakeScraper{}
	r := newTestRouter(t, testConfig(), sc)

	rec := do(r, http.MethodPost, "/api/v1/scrape/batch", `{"requests":[
		{"kind":"website","target":"https://a.it"},
		{"kind":"channel","target":"missing"},
		{"kind":"website","target":"https://c.it","shape":"content"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "https://a.it", resp.Results[0].Target)
	assert.Equal(t, models.KindNotFound, resp.Results[1].ErrorKind)
	assert.Equal(t, "https://c.it", resp.Results[2].Target)
	assert.Len(t, sc.seen, 3)
}

func TestBatch_Validation(t *testing.T) {
	r := newTestRouter(t, testConfig(), &fakeScraper{})

	var many []string
	for i := 0; i < 21; i++ {
		many = append(many, `{"kind":"website","target":"https://a.it"}`)
	}
	for _, body := range []string{
		`{"requests":[]}`,
		`{"requests":[{"kind":"instagram","target":"x"}]}`,
		`{"requests":[` + strings.Join(many, ",") + `]}`,
	} {
		rec := do(r, http.MethodPost, "/api/v1/scrape/batch", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKeys: []string{"secret"}}
	r := newTestRouter(t, cfg, &fakeScraper{})
	body := `{"target":"https://acme.it"}`

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/api/v1/scrape/website", body).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/api/v1/scrape/website", body, "X-API-Key", "wrong").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/scrape/website", body, "X-API-Key", "secret").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/scrape/website", body, "Authorization", "Bearer secret").Code)

	// Health and metrics stay open.
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/health", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/metrics", "").Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.5, Burst: 1}
	r := newTestRouter(t, cfg, &fakeScraper{})
	body := `{"target":"https://acme.it"}`

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/scrape/website", body).Code)
	rec := do(r, http.MethodPost, "/api/v1/scrape/website", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, testConfig(), &fakeScraper{})

	rec := do(r, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 3, resp.PoolStats.Available)
	assert.Equal(t, Version, resp.Version)
}

type chanNotifier struct {
	events chan *webhook.Event
	urls   chan string
}

func (n *chanNotifier) Send(_ context.Context, url, _ string, event *webhook.Event) error {
	n.urls <- url
	n.events <- event
	return nil
}

func TestBatch_WebhookRunsAsync(t *testing.T) {
	notifier := &chanNotifier{events: make(chan *webhook.Event, 1), urls: make(chan string, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRouter(ctx, Deps{Scraper: &fakeScraper{}, Notifier: notifier, Config: testConfig(), StartTime: time.Now()})

	w := do(r, http.MethodPost, "/api/v1/scrape/batch", `{
		"webhook_url": "https://hooks.acme.it/done",
		"requests": [
			{"kind": "website", "target": "acme.it"},
			{"kind": "website", "target": "missing"}
		]}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var accepted models.BatchAccepted
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.Equal(t, "accepted", accepted.Status)
	assert.Equal(t, 2, accepted.Total)
	assert.NotEmpty(t, accepted.BatchID)

	select {
	case ev := <-notifier.events:
		assert.Equal(t, "https://hooks.acme.it/done", <-notifier.urls)
		assert.Equal(t, webhook.EventBatchCompleted, ev.Type)
		assert.Equal(t, accepted.BatchID, ev.BatchID)
		resp, ok := ev.Data.(models.BatchResponse)
		require.True(t, ok)
		assert.Equal(t, 1, resp.Succeeded)
		assert.Equal(t, 1, resp.Failed)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was never sent")
	}
}

func TestBatch_WebhookWithoutNotifierIsRejected(t *testing.T) {
	r := newTestRouter(t, testConfig(), &fakeScraper{})

	w := do(r, http.MethodPost, "/api/v1/scrape/batch", `{
		"webhook_url": "https://hooks.acme.it/done",
		"requests": [{"kind": "website", "target": "acme.it"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
