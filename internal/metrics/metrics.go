// Package metrics holds the Prometheus instruments for the pikflix service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline

	CandidateOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pikflix_candidate_outcomes_total",
			Help: "Candidates by the state they reached",
		},
		[]string{"mode", "state"}, // mode: batch|stream, state: cache_fresh|cache_stale|cache_miss|resolved|unresolved
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pikflix_recommendation_duration_seconds",
			Help:    "End-to-end duration of a recommendation request",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"mode"},
	)

	StreamOutOfOrder = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pikflix_stream_out_of_order_total",
			Help: "Streamed items emitted with a lower rank than the previous item",
		},
	)

	// Recommendation source

	SourceSuggestions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pikflix_source_suggestions_total",
			Help: "Suggestions produced by the recommendation source",
		},
		[]string{"result"}, // accepted|malformed|dropped
	)

	SourceFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pikflix_source_failures_total",
			Help: "Recommendation source calls that failed and yielded nothing",
		},
	)

	// Metadata provider

	MetadataRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pikflix_metadata_requests_total",
			Help: "Calls to the metadata provider",
		},
		[]string{"operation", "result"}, // result: ok|not_found|error|rejected
	)

	MetadataDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pikflix_metadata_request_duration_seconds",
			Help:    "Duration of metadata provider calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pikflix_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pikflix_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Catalog

	CatalogQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pikflix_catalog_queries_total",
			Help: "Catalog store operations",
		},
		[]string{"operation", "result"}, // result: hit|miss|ok|error
	)

	// Write-back

	WritebackJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pikflix_writeback_jobs_total",
			Help: "Background persistence jobs by outcome",
		},
		[]string{"kind", "result"}, // result: ok|error|dropped
	)

	WritebackQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pikflix_writeback_queue_depth",
			Help: "Jobs waiting in the persistence queue",
		},
	)

	// HTTP

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pikflix_api_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pikflix_api_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pikflix_rate_limited_total",
			Help: "Requests rejected by the inbound rate limiter",
		},
		[]string{"route"},
	)
)

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordMetadataCall records one metadata provider call.
func RecordMetadataCall(operation, result string, duration time.Duration) {
	MetadataRequests.WithLabelValues(operation, result).Inc()
	MetadataDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCandidate counts a candidate reaching a state.
func RecordCandidate(mode, state string) {
	CandidateOutcomes.WithLabelValues(mode, state).Inc()
}

// RecordWriteback counts a finished or dropped persistence job.
func RecordWriteback(kind, result string) {
	WritebackJobs.WithLabelValues(kind, result).Inc()
}
