package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the sales agent.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration    *prometheus.HistogramVec
	externalErrors     *prometheus.CounterVec
	strategySelections *prometheus.CounterVec
	strategyOutcomes   *prometheus.CounterVec
	funnelTransitions  *prometheus.CounterVec
	replies            *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vende_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vende_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		strategySelections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vende_strategy_selections_total",
				Help: "Total strategy selections by strategy and mode (explore/exploit/default).",
			},
			[]string{"strategy", "mode"},
		),
		strategyOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vende_strategy_outcomes_total",
				Help: "Recorded strategy outcomes (success/failure).",
			},
			[]string{"strategy", "outcome"},
		),
		funnelTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vende_funnel_transitions_total",
				Help: "Funnel state transitions by origin state.",
			},
			[]string{"from", "to"},
		),
		replies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vende_replies_total",
				Help: "Outbound replies by source (templated/model/fallback).",
			},
			[]string{"source"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vende_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vende_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrStrategySelection counts one strategy selection.
// mode is "explore", "exploit" or "default" (error fallback).
func (m *Metrics) IncrStrategySelection(strategy, mode string) {
	m.strategySelections.WithLabelValues(strategy, mode).Inc()
}

// IncrStrategyOutcome counts a recorded success or failure.
func (m *Metrics) IncrStrategyOutcome(strategy, outcome string) {
	m.strategyOutcomes.WithLabelValues(strategy, outcome).Inc()
}

// IncrFunnelTransition counts one funnel state transition.
func (m *Metrics) IncrFunnelTransition(from, to string) {
	m.funnelTransitions.WithLabelValues(from, to).Inc()
}

// IncrReply counts one outbound reply by source.
func (m *Metrics) IncrReply(source string) {
	m.replies.WithLabelValues(source).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// FallbackCount returns the cumulative number of fallback replies.
// Used by the learning-stats endpoint to expose a fallback rate without
// scraping Prometheus.
func (m *Metrics) FallbackCount() float64 {
	return getCounterValue(m.replies, "fallback")
}

// ReplyCount returns the cumulative number of replies for a source label.
func (m *Metrics) ReplyCount(source string) float64 {
	return getCounterValue(m.replies, source)
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
