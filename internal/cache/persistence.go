package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onnwee/blogcache/internal/circuitbreaker"
	"github.com/onnwee/blogcache/internal/kvstore"
	"github.com/onnwee/blogcache/internal/metrics"
)

const (
	probeSuffix = "__probe__"
	statsSuffix = "__stats__"
)

// record is the durable form of an Entry.
type record struct {
	Data           []byte    `json:"data"`
	CreatedAt      time.Time `json:"created_at"`
	TTLMillis      int64     `json:"ttl_ms"`
	Size           int64     `json:"size"`
	Compressed     bool      `json:"compressed"`
	AccessCount    int64     `json:"access_count"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

func encodeRecord(e Entry) ([]byte, error) {
	return json.Marshal(record{
		Data:           e.Data,
		CreatedAt:      e.CreatedAt,
		TTLMillis:      ttlMillis(e.TTL),
		Size:           e.Size,
		Compressed:     e.Compressed,
		AccessCount:    e.AccessCount,
		LastAccessedAt: e.LastAccessedAt,
	})
}

// ttlMillis rounds up so a positive sub-millisecond TTL never encodes as zero.
func ttlMillis(d time.Duration) int64 {
	return int64((d + time.Millisecond - 1) / time.Millisecond)
}

func decodeRecord(raw []byte) (*Entry, error) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	switch {
	case r.CreatedAt.IsZero():
		return nil, fmt.Errorf("%w: missing created_at", ErrCorruptPayload)
	case r.TTLMillis <= 0:
		return nil, fmt.Errorf("%w: ttl_ms %d", ErrCorruptPayload, r.TTLMillis)
	case r.Size < 0:
		return nil, fmt.Errorf("%w: size %d", ErrCorruptPayload, r.Size)
	case !r.Compressed && int64(len(r.Data)) != r.Size:
		return nil, fmt.Errorf("%w: size %d does not match %d data bytes", ErrCorruptPayload, r.Size, len(r.Data))
	}
	last := r.LastAccessedAt
	if last.IsZero() {
		last = r.CreatedAt
	}
	return &Entry{
		Data:           r.Data,
		CreatedAt:      r.CreatedAt,
		TTL:            time.Duration(r.TTLMillis) * time.Millisecond,
		Size:           r.Size,
		Compressed:     r.Compressed,
		AccessCount:    r.AccessCount,
		LastAccessedAt: last,
	}, nil
}

// LoadedEntry is one record read back from the durable backend.
type LoadedEntry struct {
	Key   string
	Entry Entry
}

// Persistence stores entries in a kvstore.Backend under a namespace prefix.
//
// Every call is bounded by a timeout and goes through a circuit breaker. Once disabled
// (no backend, or a failed Probe) every method is a no-op returning nil.
type Persistence struct {
	backend kvstore.Backend
	ns      string
	name    string
	timeout time.Duration
	breaker *circuitbreaker.CircuitBreaker
	log     *slog.Logger

	disabled atomic.Bool

	// Keys this handle failed to remove. Flush retries them unless they came back.
	mu      sync.Mutex
	pending map[string]struct{}
}

// NewPersistence wraps backend. A nil backend yields a disabled Persistence.
func NewPersistence(backend kvstore.Backend, cfg Config, breaker *circuitbreaker.CircuitBreaker, log *slog.Logger) *Persistence {
	p := &Persistence{
		backend: backend,
		ns:      cfg.Namespace,
		name:    cfg.Name,
		timeout: cfg.PersistTimeout,
		breaker: breaker,
		log:     log,
		pending: make(map[string]struct{}),
	}
	if backend == nil {
		p.disabled.Store(true)
	}
	return p
}

// Enabled reports whether durable calls are being made.
func (p *Persistence) Enabled() bool {
	return !p.disabled.Load()
}

// Disable turns every subsequent call into a no-op.
func (p *Persistence) Disable() {
	p.disabled.Store(true)
}

func (p *Persistence) probeKey() string { return p.ns + probeSuffix }
func (p *Persistence) statsKey() string { return p.ns + statsSuffix }

// internal reports whether a namespaced durable key is bookkeeping rather than an entry.
func (p *Persistence) internal(durableKey string) bool {
	return durableKey == p.probeKey() || durableKey == p.statsKey()
}

func (p *Persistence) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.breaker.Do(ctx, fn)
	if err != nil {
		metrics.CachePersistenceErrors.WithLabelValues(p.name, op).Inc()
	}
	return err
}

// Probe writes and removes a sentinel record. On failure the adapter disables itself.
func (p *Persistence) Probe(ctx context.Context) error {
	if p.backend == nil {
		return ErrPersistenceDisabled
	}
	if !p.Enabled() {
		return nil
	}
	err := p.call(ctx, "probe", func(ctx context.Context) error {
		if err := p.backend.Put(ctx, p.probeKey(), []byte("1")); err != nil {
			return err
		}
		return p.backend.Delete(ctx, p.probeKey())
	})
	if err != nil {
		p.Disable()
		return fmt.Errorf("persistence probe failed: %w", err)
	}
	return nil
}

// LoadAll reads every entry record under the namespace. Records that cannot be read or
// parsed are logged, deleted and skipped.
func (p *Persistence) LoadAll(ctx context.Context) ([]LoadedEntry, error) {
	if !p.Enabled() {
		return nil, nil
	}

	var keys []string
	err := p.call(ctx, "list", func(ctx context.Context) error {
		var err error
		keys, err = p.backend.Keys(ctx, p.ns)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list persisted keys: %w", err)
	}

	loaded := make([]LoadedEntry, 0, len(keys))
	for _, durableKey := range keys {
		if p.internal(durableKey) {
			continue
		}
		var raw []byte
		err := p.call(ctx, "load", func(ctx context.Context) error {
			var err error
			raw, err = p.backend.Get(ctx, durableKey)
			return err
		})
		if errors.Is(err, kvstore.ErrNotFound) {
			continue
		}
		if err != nil {
			p.log.Warn("Failed to read persisted entry", "key", durableKey, "error", err)
			continue
		}
		entry, err := decodeRecord(raw)
		if err != nil {
			p.log.Warn("Discarding corrupt persisted entry", "key", durableKey, "error", err)
			metrics.CacheCorruptEntries.WithLabelValues(p.name, "persistence").Inc()
			if err := p.call(ctx, "remove", func(ctx context.Context) error {
				return p.backend.Delete(ctx, durableKey)
			}); err != nil {
				p.log.Warn("Failed to delete corrupt persisted entry", "key", durableKey, "error", err)
			}
			continue
		}
		loaded = append(loaded, LoadedEntry{Key: strings.TrimPrefix(durableKey, p.ns), Entry: *entry})
	}
	return loaded, nil
}

// Save writes one entry.
func (p *Persistence) Save(ctx context.Context, key string, e Entry) error {
	if !p.Enabled() {
		return nil
	}
	raw, err := encodeRecord(e)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	err = p.call(ctx, "save", func(ctx context.Context) error {
		return p.backend.Put(ctx, p.ns+key, raw)
	})
	if err == nil {
		p.Forget(key)
	}
	return err
}

// Remove deletes one entry.
func (p *Persistence) Remove(ctx context.Context, key string) error {
	if !p.Enabled() {
		return nil
	}
	err := p.call(ctx, "remove", func(ctx context.Context) error {
		return p.backend.Delete(ctx, p.ns+key)
	})
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.pending[key] = struct{}{}
	} else {
		delete(p.pending, key)
	}
	return err
}

// Forget drops key from the pending removals once a newer value exists for it,
// written by this or another context.
func (p *Persistence) Forget(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, key)
}

func (p *Persistence) pendingRemovals() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.pending))
	for k := range p.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ClearNamespace deletes every record under the namespace, stats included.
func (p *Persistence) ClearNamespace(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return p.call(ctx, "clear", func(ctx context.Context) error {
		keys, err := p.backend.Keys(ctx, p.ns)
		if err != nil {
			return err
		}
		var errs []error
		for _, k := range keys {
			if err := p.backend.Delete(ctx, k); err != nil {
				errs = append(errs, fmt.Errorf("delete %q: %w", k, err))
			}
		}
		return errors.Join(errs...)
	})
}

// SaveStats stores a stats snapshot under the fixed stats key.
func (p *Persistence) SaveStats(ctx context.Context, s Stats) error {
	if !p.Enabled() {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}
	return p.call(ctx, "save_stats", func(ctx context.Context) error {
		return p.backend.Put(ctx, p.statsKey(), raw)
	})
}

// LoadStats reads the last stats snapshot. ok is false when there is none or it is unreadable.
func (p *Persistence) LoadStats(ctx context.Context) (Stats, bool) {
	var s Stats
	if !p.Enabled() {
		return s, false
	}
	var raw []byte
	err := p.call(ctx, "load_stats", func(ctx context.Context) error {
		var err error
		raw, err = p.backend.Get(ctx, p.statsKey())
		return err
	})
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			p.log.Warn("Failed to read persisted stats", "error", err)
		}
		return s, false
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		p.log.Warn("Ignoring corrupt persisted stats", "error", err)
		return s, false
	}
	return s, true
}

// Flush writes every live entry in snapshot and the stats. Removals this handle failed
// to write through earlier are retried first so their space is available. Durable keys
// this handle never removed are left alone: they may belong to another context.
func (p *Persistence) Flush(ctx context.Context, snapshot map[string]Entry, stats Stats) error {
	if !p.Enabled() {
		return nil
	}
	start := time.Now()
	defer func() {
		metrics.CacheFlushDuration.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
	}()

	var errs []error
	for _, k := range p.pendingRemovals() {
		if _, live := snapshot[k]; live {
			p.Forget(k)
			continue
		}
		if err := p.Remove(ctx, k); err != nil {
			errs = append(errs, fmt.Errorf("remove %q: %w", k, err))
		}
	}

	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := p.Save(ctx, k, snapshot[k]); err != nil {
			errs = append(errs, fmt.Errorf("save %q: %w", k, err))
		}
	}

	if err := p.SaveStats(ctx, stats); err != nil {
		errs = append(errs, fmt.Errorf("save stats: %w", err))
	}
	return errors.Join(errs...)
}
