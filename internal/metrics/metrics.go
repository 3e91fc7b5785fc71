package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache access metrics, labelled by cache name
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of entries evicted to make room",
		},
		[]string{"cache"},
	)

	CacheExpirations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_expirations_total",
			Help: "Total number of entries removed because their TTL elapsed",
		},
		[]string{"cache"},
	)

	CacheCorruptEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_corrupt_entries_total",
			Help: "Total number of entries dropped because their payload could not be decoded",
		},
		[]string{"cache", "source"}, // source: memory, load, sync
	)

	// Cache occupancy gauges, refreshed by the Collector
	CacheSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_size_bytes",
			Help: "Current estimated size of cached entries in bytes",
		},
		[]string{"cache"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of cached entries",
		},
		[]string{"cache"},
	)

	CacheHitRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_hit_rate",
			Help: "Ratio of hits to total lookups since start",
		},
		[]string{"cache"},
	)

	// Persistence metrics
	CachePersistenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_persistence_errors_total",
			Help: "Total number of failed durable backend operations",
		},
		[]string{"cache", "operation"}, // operation: probe, load, save, remove, clear, flush
	)

	CacheFlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_flush_duration_seconds",
			Help:    "Duration of cache flushes to the durable backend",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"cache"},
	)

	CacheSyncEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_sync_events_total",
			Help: "Total number of cross-context notifications applied",
		},
		[]string{"cache", "action"}, // action: upsert, remove, ignored
	)

	// Preload metrics
	CachePreloadFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_preload_fetches_total",
			Help: "Total number of preload fetches by outcome",
		},
		[]string{"cache", "status"}, // status: success, failed, skipped
	)

	CachePreloadFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_preload_fetch_duration_seconds",
			Help:    "Duration of preload fetcher calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"cache"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"component"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"component"},
	)

	// Admin API request metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"endpoint", "method", "status"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent to clients",
		},
	)
)
