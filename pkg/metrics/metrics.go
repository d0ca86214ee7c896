// Package metrics defines the Prometheus collectors used by the search server
// and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the server.
type Metrics struct {
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	HTTPRequestsInFlight   prometheus.Gauge
	RateLimitedTotal       prometheus.Counter
	SearchQueriesTotal     *prometheus.CounterVec
	SearchLatency          *prometheus.HistogramVec
	SearchResultsCount     prometheus.Histogram
	CacheHitsTotal         *prometheus.CounterVec
	CacheMissesTotal       prometheus.Counter
	DocumentsTotal         prometheus.Gauge
	DocumentOpsTotal       *prometheus.CounterVec
	DuplicatesRemovedTotal prometheus.Counter
	EmptyRequestsInWindow  prometheus.Gauge
	CircuitBreakerState    *prometheus.GaugeVec
	AnalyticsDropped       prometheus.Counter
}

// New creates all collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
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
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "http_rate_limited_total",
				Help: "Requests rejected by the rate limiter.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by execution mode and result type (hit, zero_result, error).",
			},
			[]string{"mode", "result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"mode", "cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 2, 3, 4, 5},
			},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits by layer (local, redis).",
			},
			[]string{"layer"},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		DocumentsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "documents_total",
				Help: "Number of documents currently indexed.",
			},
		),
		DocumentOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "document_operations_total",
				Help: "Document add and remove operations by source and outcome.",
			},
			[]string{"op", "source", "status"},
		),
		DuplicatesRemovedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "duplicates_removed_total",
				Help: "Documents removed as duplicates.",
			},
		),
		EmptyRequestsInWindow: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "empty_requests_in_window",
				Help: "Requests in the recent window that returned no documents.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
			},
			[]string{"name"},
		),
		AnalyticsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analytics_events_dropped_total",
				Help: "Analytics events dropped because the buffer was full or publishing kept failing.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RateLimitedTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocumentsTotal,
		m.DocumentOpsTotal,
		m.DuplicatesRemovedTotal,
		m.EmptyRequestsInWindow,
		m.CircuitBreakerState,
		m.AnalyticsDropped,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
