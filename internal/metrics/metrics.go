// Package metrics exposes Prometheus instruments for the profile store,
// the provider gateway, the conversation orchestrator and the HTTP API.
//
// Every recording method is safe on a nil *Metrics so components can be
// constructed without instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all bizdna instruments.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Profile store
	ProfileBuildsTotal   *prometheus.CounterVec
	ProfileBuildDuration prometheus.Histogram
	ProfileCacheHits     prometheus.Counter
	PartialDataTotal     *prometheus.CounterVec

	// Provider gateway
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec
	ProviderTokensTotal     *prometheus.CounterVec

	// Orchestrator
	TurnsTotal *prometheus.CounterVec

	// Scheduler
	SchedulerCyclesTotal prometheus.Counter

	// WebSocket
	WSConnectionsActive prometheus.Gauge

	registry prometheus.Gatherer
}

// New creates the instruments and registers them with reg. A nil reg uses
// a fresh private registry, which is what tests want.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		ProfileBuildsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "profile_builds_total",
				Help:      "Profile builds by outcome",
			},
			[]string{"outcome"},
		),
		ProfileBuildDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "profile_build_duration_seconds",
				Help:      "Profile build duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		ProfileCacheHits: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "profile_cache_hits_total",
				Help:      "Profile reads served from a fresh cached row",
			},
		),
		PartialDataTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "profile_partial_data_total",
				Help:      "Record facet fetches that failed during a profile build",
			},
			[]string{"facet"},
		),
		ProviderRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Provider completions by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		ProviderRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Provider completion latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"provider"},
		),
		ProviderTokensTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_tokens_total",
				Help:      "Tokens reported by providers",
			},
			[]string{"provider"},
		),
		TurnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversation_turns_total",
				Help:      "Conversation turns by terminal state",
			},
			[]string{"state"},
		),
		SchedulerCyclesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_cycles_total",
				Help:      "Total profile refresh cycles",
			},
		),
		WSConnectionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections_active",
				Help:      "Active WebSocket connections",
			},
		),
		registry: reg,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordProfileBuild records a finished build; outcome is "ok" or "failed".
func (m *Metrics) RecordProfileBuild(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProfileBuildsTotal.WithLabelValues(outcome).Inc()
	m.ProfileBuildDuration.Observe(d.Seconds())
}

// RecordCacheHit counts a profile served from cache.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.ProfileCacheHits.Inc()
}

// RecordPartialData counts a failed facet fetch.
func (m *Metrics) RecordPartialData(facet string) {
	if m == nil {
		return
	}
	m.PartialDataTotal.WithLabelValues(facet).Inc()
}

// RecordProviderCall records one gateway call.
func (m *Metrics) RecordProviderCall(provider, outcome string, tokens int, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderRequestsTotal.WithLabelValues(provider, outcome).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider).Observe(d.Seconds())
	if tokens > 0 {
		m.ProviderTokensTotal.WithLabelValues(provider).Add(float64(tokens))
	}
}

// RecordTurn counts a conversation turn reaching a terminal state.
func (m *Metrics) RecordTurn(state string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(state).Inc()
}

// RecordSchedulerCycle counts one scheduler tick.
func (m *Metrics) RecordSchedulerCycle() {
	if m == nil {
		return
	}
	m.SchedulerCyclesTotal.Inc()
}

// WSConnected adjusts the active WebSocket gauge by delta.
func (m *Metrics) WSConnected(delta int) {
	if m == nil {
		return
	}
	m.WSConnectionsActive.Add(float64(delta))
}
