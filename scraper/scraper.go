package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/siteprobe/engine"
	"github.com/use-agent/siteprobe/extract"
	"github.com/use-agent/siteprobe/models"
	"github.com/use-agent/siteprobe/retry"
)

// State is the lifecycle position of one scrape request.
type State int

const (
	StatePending State = iota
	StateFetching
	StateExtracting
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	case StateExtracting:
		return "extracting"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ResultObserver is told about every finished request.
type ResultObserver interface {
	ObserveResult(kind models.RequestKind, shape models.ShapeName, res *models.ScrapeResult)
}

// Scraper runs scrape requests end to end: pick the engine for the
// request kind, fetch with retries, extract the record. It is safe for
// concurrent use; the only shared mutable state lives in the engines.
type Scraper struct {
	engines  map[models.RequestKind]engine.Engine
	retriers map[models.RequestKind]*retry.Retrier
	pipeline *extract.Pipeline
	results  ResultObserver
	onState  func(requestID string, s State)
	logger   *slog.Logger
}

// Option configures a Scraper.
type Option func(*scraperOptions)

type scraperOptions struct {
	retryOpts []retry.Option
	attempts  func(engineName string) retry.Observer
	results   ResultObserver
	onState   func(string, State)
}

// WithRetryOptions passes options to every per-engine retrier.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(o *scraperOptions) { o.retryOpts = append(o.retryOpts, opts...) }
}

// WithAttemptObserver adds an attempt observer built per engine name,
// alongside the log observer.
func WithAttemptObserver(fn func(engineName string) retry.Observer) Option {
	return func(o *scraperOptions) { o.attempts = fn }
}

// WithResultObserver reports every finished request to obs.
func WithResultObserver(obs ResultObserver) Option {
	return func(o *scraperOptions) { o.results = obs }
}

// WithStateHook calls fn on every state transition.
func WithStateHook(fn func(requestID string, s State)) Option {
	return func(o *scraperOptions) { o.onState = fn }
}

// New creates a Scraper. engines maps each request kind to the only
// capability allowed to serve it.
func New(policy retry.Policy, engines map[models.RequestKind]engine.Engine, pipeline *extract.Pipeline, opts ...Option) *Scraper {
	var o scraperOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := slog.With("component", "scraper")
	s := &Scraper{
		engines:  engines,
		retriers: make(map[models.RequestKind]*retry.Retrier, len(engines)),
		pipeline: pipeline,
		results:  o.results,
		onState:  o.onState,
		logger:   logger,
	}
	for kind, eng := range engines {
		obs := retry.MultiObserver{retry.LogObserver{Logger: logger.With("engine", eng.Name())}}
		if o.attempts != nil {
			obs = append(obs, o.attempts(eng.Name()))
		}
		ropts := append([]retry.Option{retry.WithObserver(obs)}, o.retryOpts...)
		s.retriers[kind] = retry.New(policy, ropts...)
	}
	return s
}

// Scrape runs one request and always returns a result; it never panics
// and never returns partial data. Success is true exactly when Data is
// set and ErrorKind is KindNone.
//
// Lifecycle:
//
//  1. Validate:  kind and shape resolve before any I/O
//  2. Fetch:     engine attempts under the retry policy
//  3. Extract:   independent field lookups and confidence score
func (s *Scraper) Scrape(ctx context.Context, req models.ScrapeRequest) (res models.ScrapeResult) {
	start := time.Now()
	req = req.WithDefaults()
	res = models.ScrapeResult{
		RequestID: uuid.NewString(),
		Target:    req.Target,
	}
	logger := s.logger.With(
		"request_id", res.RequestID,
		"kind", req.Kind,
		"shape", req.Shape,
		"target", req.Target,
	)
	s.transition(res.RequestID, StatePending)

	// attempted counts engine calls, so a panic mid-retry still reports
	// how many attempts ran.
	var attempted int
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scrape panicked", "panic", fmt.Sprint(r), "attempts", attempted, "stack", string(debug.Stack()))
			res = failure(res, models.KindFatal, fmt.Errorf("internal error: %v", r))
			res.AttemptsUsed = max(res.AttemptsUsed, attempted, 1)
		}
		res.DurationSeconds = time.Since(start).Seconds()
		s.transition(res.RequestID, StateDone)
		if s.results != nil {
			s.results.ObserveResult(req.Kind, req.Shape, &res)
		}
	}()

	// ── 1. Validate ──────────────────────────────────────────────────
	eng, ok := s.engines[req.Kind]
	if !ok {
		res.AttemptsUsed = 1
		return failure(res, models.KindInvalidInput, fmt.Errorf("unsupported request kind %q", req.Kind))
	}
	res.Engine = eng.Name()
	if !extract.Supports(req.Kind, req.Shape) {
		res.AttemptsUsed = 1
		return failure(res, models.KindInvalidInput, fmt.Errorf("shape %q is not available for %s requests", req.Shape, req.Kind))
	}

	// ── 2. Fetch with retries ────────────────────────────────────────
	s.transition(res.RequestID, StateFetching)
	out := retry.Execute(ctx, s.retriers[req.Kind], func(ctx context.Context) (*models.Page, error) {
		attempted++
		return eng.Fetch(ctx, &engine.FetchRequest{Target: req.Target, Options: req.Options})
	})
	res.AttemptsUsed = out.Attempts
	if !out.OK() {
		res = failure(res, out.Kind, out.Err)
		if out.Kind == models.KindFatal {
			logger.Error("scrape failed", "attempts", out.Attempts, "error", out.Err)
		} else {
			logger.Warn("scrape failed", "error_kind", out.Kind.String(), "attempts", out.Attempts, "error", out.Err)
		}
		return res
	}
	if err := ctx.Err(); err != nil {
		return failure(res, models.KindTransient, err)
	}
	if out.Value == nil {
		logger.Error("engine returned no page", "attempts", out.Attempts)
		return failure(res, models.KindFatal, fmt.Errorf("%s engine returned no page", eng.Name()))
	}

	// ── 3. Extract ───────────────────────────────────────────────────
	s.transition(res.RequestID, StateExtracting)
	rec, confidence := s.pipeline.Extract(out.Value, req.Shape, req.Options)

	res.Success = true
	res.Data = &rec
	res.ConfidenceScore = confidence
	logger.Info("scrape completed",
		"attempts", out.Attempts,
		"confidence", confidence,
		"final_url", out.Value.FinalURL,
	)
	return res
}

func (s *Scraper) transition(requestID string, st State) {
	if s.onState != nil {
		s.onState(requestID, st)
	}
}

// failure clears any data and records the error.
func failure(res models.ScrapeResult, kind models.ErrorKind, err error) models.ScrapeResult {
	res.Success = false
	res.Data = nil
	res.ConfidenceScore = 0
	res.ErrorKind = kind
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
