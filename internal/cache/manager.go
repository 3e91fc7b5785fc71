package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/onnwee/blogcache/internal/circuitbreaker"
	"github.com/onnwee/blogcache/internal/kvstore"
	"github.com/onnwee/blogcache/internal/logger"
	"github.com/onnwee/blogcache/internal/metrics"
)

// Manager is the cache facade. Build one with New, share it, and call Destroy when done.
type Manager[T any] struct {
	cfg     Config
	clock   clock.Clock
	log     *slog.Logger
	persist *Persistence

	mu       sync.Mutex
	store    *store[T]
	stats    *statsTracker
	applying bool // set while installing remote or loaded entries; suppresses write-through

	sweeping    atomic.Bool
	stop        chan struct{}
	done        chan struct{}
	destroyOnce sync.Once
}

var _ Cache[[]byte] = (*Manager[[]byte])(nil)

// New builds a manager, restores persisted state and starts background maintenance.
// It never fails: an unusable backend puts the manager in memory-only mode.
func New[T any](cfg Config, opts ...Option) *Manager[T] {
	cfg = cfg.withDefaults()

	o := options{codec: DefaultCodec, clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.WithComponent("cache")
	}
	log := o.logger.With("cache", cfg.Name)

	var ser Serializer[T] = JSONSerializer[T]{}
	if o.serializer != nil {
		s, ok := o.serializer.(Serializer[T])
		if !ok {
			panic(fmt.Sprintf("cache: serializer %T does not match value type", o.serializer))
		}
		ser = s
	}

	backend := o.backend
	if !cfg.EnablePersistence {
		backend = nil
	}
	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:   "cache_persistence_" + cfg.Name,
		Ignore: func(err error) bool { return errors.Is(err, kvstore.ErrQuotaExceeded) },
		Clock:  o.clock,
		OnStateChange: func(_ string, from, to circuitbreaker.State) {
			log.Warn("Persistence circuit changed state", "from", from.String(), "to", to.String())
		},
	})

	stats := newStatsTracker(cfg.Name)
	m := &Manager[T]{
		cfg:     cfg,
		clock:   o.clock,
		log:     log,
		persist: NewPersistence(backend, cfg, breaker, log),
		stats:   stats,
		store:   newStore[T](cfg, o.codec, ser, o.clock, stats, log),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	m.store.onDrop = m.writeThroughRemove

	m.restore()

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	changes := m.watch(watchCtx, backend)
	ticker := m.clock.Ticker(cfg.CleanupInterval)
	go m.loop(ticker, changes, cancelWatch)

	return m
}

// restore probes the backend and loads persisted stats and entries.
func (m *Manager[T]) restore() {
	if !m.persist.Enabled() {
		return
	}
	ctx := context.Background()
	if err := m.persist.Probe(ctx); err != nil {
		m.log.Warn("Durable backend unavailable, running in memory only", "error", err)
		return
	}

	if prev, ok := m.persist.LoadStats(ctx); ok {
		m.stats.restore(prev)
	}

	loaded, err := m.persist.LoadAll(ctx)
	if err != nil {
		m.log.Warn("Failed to load persisted entries", "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.applying = true
	defer func() { m.applying = false }()

	now := m.clock.Now()
	restored := 0
	for _, le := range loaded {
		if le.Entry.Expired(now) {
			continue
		}
		e := le.Entry
		m.store.apply(le.Key, &e)
		restored++
	}
	m.log.Info("Restored cache from durable backend", "entries", restored, "records", len(loaded))
}

func (m *Manager[T]) watch(ctx context.Context, backend kvstore.Backend) <-chan kvstore.Change {
	w, ok := backend.(kvstore.Watcher)
	if !ok || !m.persist.Enabled() {
		return nil
	}
	changes, err := w.Watch(ctx)
	if err != nil {
		m.log.Warn("Cross-context sync unavailable", "error", err)
		return nil
	}
	return changes
}

func (m *Manager[T]) writeThroughRemove(key string) {
	if m.applying {
		return
	}
	if err := m.persist.Remove(context.Background(), key); err != nil {
		m.log.Warn("Failed to remove persisted entry", "key", key, "error", err)
	}
}

func (m *Manager[T]) reserved(key string) bool {
	return key == probeSuffix || key == statsSuffix
}

// Get returns the value for key if present and unexpired.
func (m *Manager[T]) Get(key string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.get(key)
}

// Set stores value under key. Failures are logged, never returned; use TrySet to see them.
func (m *Manager[T]) Set(key string, value T, ttl time.Duration) {
	if err := m.TrySet(key, value, ttl); err != nil {
		m.log.Warn("Cache set failed", "key", key, "error", err)
	}
}

// TrySet stores value under key and writes it through to the durable backend.
// Only in-memory failures are returned; durable write failures are logged.
func (m *Manager[T]) TrySet(key string, value T, ttl time.Duration) error {
	if m.reserved(key) {
		return fmt.Errorf("%w: %q", ErrReservedKey, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.store.set(key, value, ttl)
	if err != nil {
		m.writeThroughRemove(key)
		return err
	}
	if err := m.persist.Save(context.Background(), key, *e); err != nil {
		m.log.Warn("Failed to persist cache entry", "key", key, "error", err)
	}
	return nil
}

// Delete removes key and reports whether it was present.
func (m *Manager[T]) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	existed := m.store.delete(key)
	m.writeThroughRemove(key)
	return existed
}

// Clear removes every entry here and in the durable namespace. Cumulative counters survive.
func (m *Manager[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store.clear()
	if err := m.persist.ClearNamespace(context.Background()); err != nil {
		m.log.Warn("Failed to clear durable namespace", "error", err)
	}
}

// Has reports whether key is present and unexpired without counting as an access.
func (m *Manager[T]) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.has(key)
}

// Keys lists unexpired keys in insertion order.
func (m *Manager[T]) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.keys()
}

// Stats returns a snapshot of the counters.
func (m *Manager[T]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats.snapshot()
}

// Gauges reports occupancy for the metrics collector.
func (m *Manager[T]) Gauges() metrics.CacheGauges {
	s := m.Stats()
	return metrics.CacheGauges{
		Entries:   s.TotalEntries,
		SizeBytes: s.TotalSizeBytes,
		HitRate:   s.HitRate,
	}
}

// Name returns the configured cache name.
func (m *Manager[T]) Name() string {
	return m.cfg.Name
}

// MaxTotalSize returns the configured byte limit.
func (m *Manager[T]) MaxTotalSize() int64 {
	return m.cfg.MaxTotalSize
}

// Persistent reports whether entries are being written to a durable backend.
func (m *Manager[T]) Persistent() bool {
	return m.persist.Enabled()
}

// Destroy stops background work and performs one final flush. The manager keeps
// working in memory afterwards but no longer touches the backend.
func (m *Manager[T]) Destroy() {
	m.destroyOnce.Do(func() {
		close(m.stop)
		<-m.done

		m.mu.Lock()
		defer m.mu.Unlock()
		m.flushLocked()
		m.persist.Disable()
	})
}
