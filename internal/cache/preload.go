package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/onnwee/blogcache/internal/metrics"
	"github.com/onnwee/blogcache/internal/tracing"
)

// ErrNoFetcher is reported for preload items without a Fetch function.
var ErrNoFetcher = errors.New("cache: preload item has no fetcher")

// PreloadItem names a key to warm and how to produce its value.
type PreloadItem[T any] struct {
	Key   string
	TTL   time.Duration // <= 0 uses the default TTL
	Fetch func(ctx context.Context) (T, error)
}

// PreloadResult summarizes a Preload call.
type PreloadResult struct {
	Loaded  []string         // fetched and stored
	Skipped []string         // already cached, or a duplicate within the batch
	Failed  map[string]error // fetch or store failures
}

// Preload fetches and stores every item whose key is not already cached. Fetches run
// concurrently up to PreloadConcurrency and are throttled to PreloadRPS when set. A
// failing item is logged and recorded in the result; it never affects the others.
func (m *Manager[T]) Preload(ctx context.Context, items []PreloadItem[T]) PreloadResult {
	ctx, span := tracing.StartSpan(ctx, "cache.Preload",
		trace.WithAttributes(
			attribute.String("cache.name", m.cfg.Name),
			attribute.Int("cache.preload.items", len(items)),
		),
	)
	defer span.End()

	res := PreloadResult{Failed: make(map[string]error)}

	seen := make(map[string]bool, len(items))
	todo := make([]PreloadItem[T], 0, len(items))
	for _, item := range items {
		if seen[item.Key] || m.Has(item.Key) {
			res.Skipped = append(res.Skipped, item.Key)
			metrics.CachePreloadFetches.WithLabelValues(m.cfg.Name, "skipped").Inc()
			continue
		}
		seen[item.Key] = true
		todo = append(todo, item)
	}

	var limiter *rate.Limiter
	if m.cfg.PreloadRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(m.cfg.PreloadRPS), max(1, int(m.cfg.PreloadRPS)))
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, m.cfg.PreloadConcurrency)
	)
	for _, item := range todo {
		item := item
		wg.Add(1)
		go func() {
			defer wg.Done()

			var err error
			select {
			case sem <- struct{}{}:
				err = m.preloadOne(ctx, item, limiter)
				<-sem
			case <-ctx.Done():
				err = ctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed[item.Key] = err
				return
			}
			res.Loaded = append(res.Loaded, item.Key)
		}()
	}
	wg.Wait()

	sort.Strings(res.Loaded)
	span.SetAttributes(
		attribute.Int("cache.preload.loaded", len(res.Loaded)),
		attribute.Int("cache.preload.skipped", len(res.Skipped)),
		attribute.Int("cache.preload.failed", len(res.Failed)),
	)
	if len(res.Failed) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d preload fetches failed", len(res.Failed)))
	}
	m.log.Info("Preload finished",
		"loaded", len(res.Loaded), "skipped", len(res.Skipped), "failed", len(res.Failed))
	return res
}

func (m *Manager[T]) preloadOne(ctx context.Context, item PreloadItem[T], limiter *rate.Limiter) (err error) {
	ctx, span := tracing.StartSpan(ctx, "cache.Preload.fetch",
		trace.WithAttributes(attribute.String("cache.key", item.Key)),
	)
	defer span.End()

	defer func() {
		if err != nil {
			tracing.Fail(span, err)
			metrics.CachePreloadFetches.WithLabelValues(m.cfg.Name, "failed").Inc()
			m.log.Warn("Preload fetch failed", "key", item.Key, "error", err)
			return
		}
		metrics.CachePreloadFetches.WithLabelValues(m.cfg.Name, "success").Inc()
	}()

	if item.Fetch == nil {
		return ErrNoFetcher
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("preload throttle: %w", err)
		}
	}

	value, err := m.fetch(ctx, item)
	if err != nil {
		return err
	}
	return m.TrySet(item.Key, value, item.TTL)
}

// fetch runs the caller's fetcher, turning a panic into an error.
func (m *Manager[T]) fetch(ctx context.Context, item PreloadItem[T]) (value T, err error) {
	start := time.Now()
	defer func() {
		metrics.CachePreloadFetchDuration.WithLabelValues(m.cfg.Name).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			err = fmt.Errorf("preload fetch for %q panicked: %v", item.Key, r)
		}
	}()

	value, err = item.Fetch(ctx)
	if err != nil {
		return value, fmt.Errorf("preload fetch for %q: %w", item.Key, err)
	}
	return value, nil
}
