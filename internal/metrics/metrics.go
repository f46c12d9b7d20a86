// Package metrics defines the Prometheus metrics exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache metrics
var (
	// CacheHitsTotal tracks snapshot cache hits per tier (local/distributed)
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reputation_cache_hits_total",
			Help: "Snapshot cache hits by tier",
		},
		[]string{"tier"},
	)

	// CacheMissesTotal tracks snapshot cache misses per tier
	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reputation_cache_misses_total",
			Help: "Snapshot cache misses by tier",
		},
		[]string{"tier"},
	)

	// CacheTierErrors tracks absorbed distributed-tier failures
	CacheTierErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reputation_cache_tier_errors_total",
			Help: "Cache tier operation errors absorbed in degraded mode",
		},
		[]string{"tier", "operation"},
	)

	// LocalCacheEvictions tracks expired local-tier entries removed
	LocalCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reputation_local_cache_evictions_total",
			Help: "Expired local cache entries evicted",
		},
	)

	// LocalCacheSize tracks current local-tier entry count
	LocalCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reputation_local_cache_size",
			Help: "Current number of local cache entries",
		},
	)
)

// Recompute metrics
var (
	// RecomputesTotal tracks aggregation passes by trigger (query/event/forced)
	RecomputesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reputation_recomputes_total",
			Help: "Aggregation passes by trigger and status",
		},
		[]string{"trigger", "status"},
	)

	// RecomputeDuration tracks aggregation pass latency
	RecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reputation_recompute_duration_seconds",
			Help:    "Aggregation pass duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// SingleflightSharedTotal counts callers that shared an in-flight recompute
	SingleflightSharedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reputation_singleflight_shared_total",
			Help: "Callers that awaited an already in-flight recomputation",
		},
	)

	// InvalidReviewsDropped counts upstream records dropped during aggregation
	InvalidReviewsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reputation_invalid_reviews_dropped_total",
			Help: "Malformed or out-of-range review records dropped",
		},
	)
)

// Sentiment classifier metrics
var (
	// ClassifierRequestsTotal tracks classifier calls by outcome
	ClassifierRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_classifier_requests_total",
			Help: "Sentiment classifier calls by status",
		},
		[]string{"status"},
	)

	// ClassifierFallbacksTotal counts degraded-mode rating-proxy fallbacks
	ClassifierFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_classifier_fallbacks_total",
			Help: "Rating-proxy fallbacks by reason",
		},
		[]string{"reason"},
	)

	// ClassifierDuration tracks classifier call latency
	ClassifierDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentiment_classifier_duration_seconds",
			Help:    "Sentiment classifier call duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
)

// Event feed metrics
var (
	// EventsProcessedTotal counts review events handled by the worker loop
	EventsProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_events_processed_total",
			Help: "Review-submitted events processed",
		},
	)

	// EventsDroppedTotal counts events dropped by reason (malformed/queue_full)
	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_events_dropped_total",
			Help: "Review-submitted events dropped by reason",
		},
		[]string{"reason"},
	)

	// EventQueueDepth tracks current listener queue depth
	EventQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_event_queue_depth",
			Help: "Current depth of the review event queue",
		},
	)
)

// Subscriber hub metrics
var (
	// HubConnectedClients tracks total live subscriber connections
	HubConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connected_clients",
			Help: "Live subscriber connections across all subjects",
		},
	)

	// HubBroadcastsTotal counts snapshot fan-outs
	HubBroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_broadcasts_total",
			Help: "Snapshot broadcasts delivered to subjects",
		},
	)

	// HubSlowClientsEvicted counts subscribers disconnected for full buffers
	HubSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_slow_clients_evicted_total",
			Help: "Subscribers evicted because their send buffer was full",
		},
	)
)

// Redis metrics
var (
	// RedisOpsTotal tracks Redis operations by command and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks breaker transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)
