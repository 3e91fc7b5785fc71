package cache

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/onnwee/blogcache/internal/circuitbreaker"
	"github.com/onnwee/blogcache/internal/errorreporting"
	"github.com/onnwee/blogcache/internal/kvstore"
	"github.com/onnwee/blogcache/internal/tracing"
)

// loop is the only background goroutine. Cleanup ticks and remote changes are handled
// one at a time in arrival order.
func (m *Manager[T]) loop(ticker *clock.Ticker, changes <-chan kvstore.Change, cancelWatch context.CancelFunc) {
	defer close(m.done)
	defer cancelWatch()
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Cleanup()
			// Ticks that fired during the sweep are dropped, not queued.
			select {
			case <-ticker.C:
			default:
			}
		case c, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			m.applyChange(c)
		}
	}
}

// Cleanup removes expired entries and, with persistence enabled, flushes the live set.
// It returns the number of expired entries removed, or -1 if another cleanup was
// already running.
func (m *Manager[T]) Cleanup() int {
	if !m.sweeping.CompareAndSwap(false, true) {
		m.log.Debug("Cleanup already running, skipping")
		return -1
	}
	defer m.sweeping.Store(false)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.store.sweepExpired()
	if removed > 0 {
		m.log.Debug("Swept expired entries", "removed", removed)
	}
	m.flushLocked()
	return removed
}

// flushLocked writes the live set to the backend, sweeping and retrying once on failure.
// m.mu must be held.
func (m *Manager[T]) flushLocked() {
	if !m.persist.Enabled() {
		return
	}
	ctx, span := tracing.StartSpan(context.Background(), "cache.Flush",
		trace.WithAttributes(attribute.String("cache.name", m.cfg.Name)))
	defer span.End()
	start := time.Now()

	err := m.persist.Flush(ctx, m.store.snapshot(), m.stats.snapshot())
	if err == nil {
		return
	}
	defer func() { tracing.Fail(span, err) }()
	m.log.Warn("Cache flush failed, retrying after sweep", "error", err)

	m.store.sweepExpired()
	err = m.persist.Flush(ctx, m.store.snapshot(), m.stats.snapshot())
	if err == nil {
		return
	}

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		m.log.Warn("Cache flush skipped, durable backend circuit open")
		return
	}
	m.log.Error("Cache flush failed after retry", "error", err, "elapsed", time.Since(start))
	errorreporting.CaptureErrorWithContext(err,
		map[string]string{"component": "cache", "cache": m.cfg.Name},
		map[string]interface{}{"entries": m.stats.entries, "size_bytes": m.stats.size},
	)
}
