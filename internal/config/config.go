package config

import (
	"os"
	"strings"
	"time"

	"github.com/onnwee/blogcache/internal/utils"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	// Cache engine
	CacheName                 string
	CacheNamespace            string        // durable key prefix
	CacheDefaultTTL           time.Duration // TTL used when callers pass none
	CacheMaxTotalBytes        int64         // upper bound on the sum of entry sizes
	CacheEnablePersistence    bool
	CacheCompressionThreshold int64 // payloads above this many bytes are compressed
	CacheCleanupInterval      time.Duration
	CachePersistTimeout       time.Duration // bound on each durable backend call
	CachePreloadConcurrency   int
	CachePreloadRPS           float64 // 0 disables preload throttling
	// Durable backend
	CacheBackend         string // memory, file or postgres
	CacheDir             string // file backend directory
	CacheBackendCapacity int64  // byte capacity of the durable backend, 0 = unlimited
	DatabaseURL          string
	// Admin server
	HTTPAddr          string
	StatsPushInterval time.Duration // websocket stats stream period
	AdminRPS          float64       // admin API rate limit, 0 disables
	AdminBurst        int
	// Observability settings
	LogLevel          string  // log level: debug, info, warn, error
	LogFormat         string  // json or text; empty follows ENV
	OTELEnabled       bool    // enable OpenTelemetry tracing
	OTELEndpoint      string  // OpenTelemetry collector endpoint
	OTELSampleRate    float64 // trace sampling rate (0.0 to 1.0)
	SentryDSN         string  // Sentry DSN for error reporting
	SentryEnvironment string  // Sentry environment (dev, staging, production)
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	cached = &Config{
		CacheName:                 utils.GetEnvAsString("CACHE_NAME", "default"),
		CacheNamespace:            utils.GetEnvAsString("CACHE_NAMESPACE", "blog_cache_"),
		CacheDefaultTTL:           utils.GetEnvAsMillis("CACHE_DEFAULT_TTL_MS", 5*time.Minute),
		CacheMaxTotalBytes:        utils.GetEnvAsInt64("CACHE_MAX_TOTAL_BYTES", 50*1024*1024),
		CacheEnablePersistence:    utils.GetEnvAsBool("CACHE_ENABLE_PERSISTENCE", true),
		CacheCompressionThreshold: utils.GetEnvAsInt64("CACHE_COMPRESSION_THRESHOLD_BYTES", 1024),
		CacheCleanupInterval:      utils.GetEnvAsMillis("CACHE_CLEANUP_INTERVAL_MS", time.Minute),
		CachePersistTimeout:       utils.GetEnvAsMillis("CACHE_PERSIST_TIMEOUT_MS", 2*time.Second),
		CachePreloadConcurrency:   utils.GetEnvAsInt("CACHE_PRELOAD_CONCURRENCY", 4),
		CachePreloadRPS:           utils.GetEnvAsFloat("CACHE_PRELOAD_RPS", 0),
		CacheBackend:              strings.ToLower(utils.GetEnvAsString("CACHE_BACKEND", "memory")),
		CacheDir:                  utils.GetEnvAsString("CACHE_DIR", "./data/cache"),
		CacheBackendCapacity:      utils.GetEnvAsInt64("CACHE_BACKEND_CAPACITY_BYTES", 0),
		DatabaseURL:               strings.TrimSpace(os.Getenv("DATABASE_URL")),
		HTTPAddr:                  utils.GetEnvAsString("HTTP_ADDR", ":8000"),
		StatsPushInterval:         utils.GetEnvAsMillis("CACHE_STATS_PUSH_INTERVAL_MS", 5*time.Second),
		AdminRPS:                  utils.GetEnvAsFloat("ADMIN_RATE_LIMIT_RPS", 50),
		AdminBurst:                utils.GetEnvAsInt("ADMIN_RATE_LIMIT_BURST", 100),
		// Observability settings
		LogLevel:          strings.ToLower(utils.GetEnvAsString("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(utils.GetEnvAsString("LOG_FORMAT", "")),
		OTELEnabled:       utils.GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:      strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTELSampleRate:    utils.GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		SentryDSN:         strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		SentryEnvironment: strings.TrimSpace(os.Getenv("SENTRY_ENVIRONMENT")),
	}
	if cached.SentryEnvironment == "" {
		if env := os.Getenv("ENV"); env != "" {
			cached.SentryEnvironment = env
		} else {
			cached.SentryEnvironment = "development"
		}
	}
	if cached.CachePreloadConcurrency < 1 {
		cached.CachePreloadConcurrency = 1
	}
	return cached
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }
