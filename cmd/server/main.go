package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/blogcache/internal/api"
	"github.com/onnwee/blogcache/internal/api/handlers"
	"github.com/onnwee/blogcache/internal/cache"
	"github.com/onnwee/blogcache/internal/config"
	"github.com/onnwee/blogcache/internal/errorreporting"
	"github.com/onnwee/blogcache/internal/kvstore"
	"github.com/onnwee/blogcache/internal/logger"
	"github.com/onnwee/blogcache/internal/metrics"
	"github.com/onnwee/blogcache/internal/secrets"
	"github.com/onnwee/blogcache/internal/tracing"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (falling back to system env)")
	}

	cfg := config.Load()

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Initializing cache server", "log_level", cfg.LogLevel, "backend", cfg.CacheBackend)

	if err := errorreporting.Init(errorreporting.Options{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
	}); err != nil {
		logger.Warn("Failed to initialize error reporting", "error", err)
	} else if errorreporting.IsSentryEnabled() {
		logger.Info("Error reporting initialized", "environment", cfg.SentryEnvironment)
		defer func() {
			logger.Info("Flushing error reports...")
			errorreporting.Flush(2 * time.Second)
		}()
	}

	shutdownTracing, err := tracing.Init(tracing.Settings{
		ServiceName: "blogcache",
		Enabled:     cfg.OTELEnabled,
		Endpoint:    cfg.OTELEndpoint,
		SampleRate:  cfg.OTELSampleRate,
	})
	if err != nil {
		logger.Warn("Failed to initialize tracing", "error", err)
	} else if cfg.OTELEnabled {
		logger.Info("Tracing initialized", "endpoint", cfg.OTELEndpoint, "sample_rate", cfg.OTELSampleRate)
		defer func() {
			logger.Info("Shutting down tracer...")
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("Failed to shutdown tracer", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var opts []cache.Option
	opts = append(opts, cache.WithSerializer[[]byte](cache.BytesSerializer{}))
	if cfg.CacheEnablePersistence {
		backend, err := openBackend(ctx, cfg)
		if err != nil {
			// The manager degrades to memory-only when it has no usable backend.
			logger.Error("Failed to open cache backend", "backend", cfg.CacheBackend, "error", err)
			errorreporting.CaptureError(err)
		} else {
			defer backend.Close()
			opts = append(opts, cache.WithBackend(backend))
		}
	}

	manager := cache.New[[]byte](cache.Config{
		Name:                 cfg.CacheName,
		Namespace:            cfg.CacheNamespace,
		DefaultTTL:           cfg.CacheDefaultTTL,
		MaxTotalSize:         cfg.CacheMaxTotalBytes,
		EnablePersistence:    cfg.CacheEnablePersistence,
		CompressionThreshold: cfg.CacheCompressionThreshold,
		CleanupInterval:      cfg.CacheCleanupInterval,
		PersistTimeout:       cfg.CachePersistTimeout,
		PreloadConcurrency:   cfg.CachePreloadConcurrency,
		PreloadRPS:           cfg.CachePreloadRPS,
	}, opts...)
	defer manager.Destroy()

	collector := metrics.NewCollector(15 * time.Second)
	collector.Register(manager.Name(), manager.Gauges)
	go collector.Start(ctx)
	defer collector.Stop()

	hub := handlers.NewHub(manager, cfg.StatsPushInterval)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(api.Deps{
			Cache:          manager,
			Hub:            hub,
			RateLimitRPS:   cfg.AdminRPS,
			RateLimitBurst: cfg.AdminBurst,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server running", "addr", cfg.HTTPAddr, "cache", manager.Name(), "persistent", manager.Persistent())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("Received shutdown signal")
	case err := <-serverErr:
		logger.Error("Server failed", "error", err)
		errorreporting.CaptureError(err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down server", "error", err)
	}
	cancel()
	logger.Info("Shutting down cache server")
}

func openBackend(ctx context.Context, cfg *config.Config) (kvstore.Backend, error) {
	switch cfg.CacheBackend {
	case "memory":
		return kvstore.NewMemory(cfg.CacheBackendCapacity), nil
	case "file":
		return kvstore.OpenFile(cfg.CacheDir, cfg.CacheBackendCapacity)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres backend")
		}
		logger.Info("Connecting to postgres backend", "dsn", secrets.RedactDSN(cfg.DatabaseURL))
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return kvstore.OpenPostgres(connectCtx, cfg.DatabaseURL, cfg.CacheBackendCapacity)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
