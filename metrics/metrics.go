package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/use-agent/siteprobe/models"
	"github.com/use-agent/siteprobe/retry"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	registry prometheus.Gatherer

	Attempts        *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	BackoffWait     *prometheus.HistogramVec
	Results         *prometheus.CounterVec
	ScrapeDuration  *prometheus.HistogramVec
	Confidence      *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	m := &Metrics{
		Attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteprobe_fetch_attempts_total",
				Help: "Fetch attempts by engine and error kind",
			},
			[]string{"engine", "kind"},
		),
		AttemptDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "siteprobe_fetch_attempt_duration_seconds",
				Help:    "Time spent in a single fetch attempt",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 11),
			},
			[]string{"engine"},
		),
		BackoffWait: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "siteprobe_backoff_wait_seconds",
				Help:    "Backoff scheduled before the next attempt",
				Buckets: []float64{0.5, 1, 2, 3, 5, 7.5, 10, 20},
			},
			[]string{"engine"},
		),
		Results: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteprobe_scrape_results_total",
				Help: "Finished scrape requests by kind, shape and outcome",
			},
			[]string{"kind", "shape", "outcome"},
		),
		ScrapeDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "siteprobe_scrape_duration_seconds",
				Help:    "Wall-clock time of a scrape request including retries",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"kind"},
		),
		Confidence: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "siteprobe_confidence_score",
				Help:    "Confidence score of successful extractions",
				Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
			},
			[]string{"shape"},
		),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.registry = g
	} else {
		m.registry = prometheus.DefaultGatherer
	}
	return m
}

// AttemptObserver records attempts made through the named engine.
func (m *Metrics) AttemptObserver(engine string) retry.Observer {
	return retry.ObserverFunc(func(_ context.Context, a retry.Attempt) {
		kind := a.Kind.String()
		if a.Kind == models.KindNone {
			kind = "ok"
		}
		m.Attempts.WithLabelValues(engine, kind).Inc()
		m.AttemptDuration.WithLabelValues(engine).Observe(a.Elapsed.Seconds())
		if a.WaitBeforeNext > 0 {
			m.BackoffWait.WithLabelValues(engine).Observe(a.WaitBeforeNext.Seconds())
		}
	})
}

// ObserveResult records a finished scrape.
func (m *Metrics) ObserveResult(kind models.RequestKind, shape models.ShapeName, res *models.ScrapeResult) {
	outcome := "success"
	if !res.Success {
		outcome = res.ErrorKind.String()
	}
	m.Results.WithLabelValues(string(kind), string(shape), outcome).Inc()
	m.ScrapeDuration.WithLabelValues(string(kind)).Observe(res.DurationSeconds)
	if res.Success {
		m.Confidence.WithLabelValues(string(shape)).Observe(res.ConfidenceScore)
	}
}

// RegisterPool exports live session pool gauges.
func RegisterPool(reg prometheus.Registerer, stats func() models.PoolStats) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "siteprobe_browser_sessions_available",
		Help: "Session leases currently available",
	}, func() float64 { return float64(stats().Available) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "siteprobe_browser_sessions_live",
		Help: "Open browser sessions, idle or leased",
	}, func() float64 { return float64(stats().LiveSessions) })
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
