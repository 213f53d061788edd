// Package metrics defines the Prometheus metric collectors used across the
// expansion services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the expansion services.
type Metrics struct {
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	HTTPRequestsInFlight   prometheus.Gauge
	ExpansionLookupsTotal  *prometheus.CounterVec
	ExpansionLatency       *prometheus.HistogramVec
	ExpansionTermsReturned prometheus.Histogram
	CacheHitsTotal         prometheus.Counter
	CacheMissesTotal       prometheus.Counter
	ExpansionsRegistered   prometheus.Counter
	SnapshotWritesTotal    *prometheus.CounterVec
	RegistryEntries        *prometheus.GaugeVec
	ConsumerEventsTotal    *prometheus.CounterVec
	FeedbackEventsTotal    *prometheus.CounterVec
	RPCRequestsTotal       *prometheus.CounterVec
	CircuitBreakerState    *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ExpansionLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expansion_lookups_total",
				Help: "Total expansion lookups by result (hit, miss, error).",
			},
			[]string{"result"},
		),
		ExpansionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "expansion_lookup_latency_seconds",
				Help:    "Expansion lookup latency in seconds by serving source.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"source"},
		),
		ExpansionTermsReturned: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "expansion_terms_returned",
				Help:    "Number of candidate terms returned per lookup.",
				Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "expansion_cache_hits_total",
				Help: "Total number of Redis cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "expansion_cache_misses_total",
				Help: "Total number of Redis cache misses.",
			},
		),
		ExpansionsRegistered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "expansions_registered_total",
				Help: "Total completed expansions registered from the event stream.",
			},
		),
		SnapshotWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_snapshot_writes_total",
				Help: "Total registry snapshot writes by status.",
			},
			[]string{"status"},
		),
		RegistryEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "registry_entries",
				Help: "Number of registered expansions per registry shard.",
			},
			[]string{"shard"},
		),
		ConsumerEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consumer_events_total",
				Help: "Total Kafka events consumed by topic and status.",
			},
			[]string{"topic", "status"},
		),
		FeedbackEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedback_events_total",
				Help: "Total relevance feedback submissions by status.",
			},
			[]string{"status"},
		),
		RPCRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_requests_total",
				Help: "Total internal RPC requests by method and status.",
			},
			[]string{"method", "status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ExpansionLookupsTotal,
		m.ExpansionLatency,
		m.ExpansionTermsReturned,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ExpansionsRegistered,
		m.SnapshotWritesTotal,
		m.RegistryEntries,
		m.ConsumerEventsTotal,
		m.FeedbackEventsTotal,
		m.RPCRequestsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
