package cache

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
)

// store maps keys to entries and owns their lifecycle: TTL checks, size accounting,
// compression and eviction. It is not safe for concurrent use; Manager serializes it.
type store[T any] struct {
	entries    map[string]*Entry
	totalSize  int64
	maxSize    int64
	threshold  int64
	defaultTTL time.Duration
	seq        uint64

	codec      Codec
	serializer Serializer[T]
	clock      clock.Clock
	stats      *statsTracker
	log        *slog.Logger

	// onDrop is told about every removal the caller did not ask for
	// (eviction, expiry, corruption).
	onDrop func(key string)
}

func newStore[T any](cfg Config, codec Codec, ser Serializer[T], clk clock.Clock, stats *statsTracker, log *slog.Logger) *store[T] {
	return &store[T]{
		entries:    make(map[string]*Entry),
		maxSize:    cfg.MaxTotalSize,
		threshold:  cfg.CompressionThreshold,
		defaultTTL: cfg.DefaultTTL,
		codec:      codec,
		serializer: ser,
		clock:      clk,
		stats:      stats,
		log:        log,
	}
}

func (s *store[T]) get(key string) (T, bool) {
	var zero T

	e, ok := s.entries[key]
	if !ok {
		s.stats.miss()
		return zero, false
	}

	now := s.clock.Now()
	if e.Expired(now) {
		s.drop(key, e)
		s.stats.expiration(1)
		s.stats.miss()
		return zero, false
	}

	value, err := s.decode(e)
	if err != nil {
		s.log.Warn("Dropping undecodable cache entry", "key", key, "error", err)
		s.drop(key, e)
		s.stats.corruption("memory")
		s.stats.miss()
		return zero, false
	}

	e.AccessCount++
	e.LastAccessedAt = now
	s.stats.hit()
	return value, true
}

func (s *store[T]) decode(e *Entry) (T, error) {
	payload := e.Data
	if e.Compressed {
		var err error
		payload, err = s.codec.Decompress(e.Data)
		if err != nil {
			var zero T
			return zero, err
		}
	}
	return s.serializer.Unmarshal(payload)
}

// set inserts or replaces key. A replaced entry is gone even when the new value is
// rejected, so a failed write never leaves a stale value behind.
func (s *store[T]) set(key string, value T, ttl time.Duration) (*Entry, error) {
	if old, ok := s.entries[key]; ok {
		s.remove(key, old)
	}

	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	payload, err := s.serializer.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %q: %w", key, err)
	}

	size := EstimateSize(payload)
	if size > s.maxSize {
		return nil, fmt.Errorf("%w: %q is %d bytes, limit %d", ErrEntryTooLarge, key, size, s.maxSize)
	}

	data, compressed := payload, false
	if s.threshold > 0 && size > s.threshold {
		packed, err := s.codec.Compress(payload)
		if err != nil {
			s.log.Warn("Compression failed, storing raw payload", "key", key, "error", err)
		} else {
			data, compressed = packed, true
		}
	}

	now := s.clock.Now()
	e := &Entry{
		Data:           data,
		CreatedAt:      now,
		TTL:            ttl,
		Size:           size,
		Compressed:     compressed,
		LastAccessedAt: now,
	}
	s.insert(key, e)
	return e, nil
}

// apply installs an entry received from persistence or another context. A nil or
// expired entry removes the key.
func (s *store[T]) apply(key string, e *Entry) {
	if old, ok := s.entries[key]; ok {
		s.remove(key, old)
	}
	if e == nil || e.Expired(s.clock.Now()) {
		return
	}
	if e.Size > s.maxSize {
		s.log.Warn("Ignoring entry larger than cache", "key", key, "size", e.Size)
		return
	}
	cp := *e
	s.insert(key, &cp)
}

// insert makes room for e and stores it. e.Size must not exceed maxSize.
func (s *store[T]) insert(key string, e *Entry) {
	if need := s.totalSize + e.Size - s.maxSize; need > 0 {
		s.evict(need)
	}
	s.seq++
	e.seq = s.seq
	s.entries[key] = e
	s.totalSize += e.Size
	s.stats.added(e.Size)
}

func (s *store[T]) delete(key string) bool {
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	s.remove(key, e)
	return true
}

func (s *store[T]) clear() {
	s.entries = make(map[string]*Entry)
	s.totalSize = 0
	s.stats.resetCurrent()
}

func (s *store[T]) remove(key string, e *Entry) {
	delete(s.entries, key)
	s.totalSize -= e.Size
	s.stats.removed(e.Size)
}

func (s *store[T]) drop(key string, e *Entry) {
	s.remove(key, e)
	if s.onDrop != nil {
		s.onDrop(key)
	}
}

// sweepExpired removes every expired entry whether or not anyone reads it.
func (s *store[T]) sweepExpired() int {
	now := s.clock.Now()
	removed := 0
	for _, key := range s.orderedKeys() {
		e := s.entries[key]
		if e.Expired(now) {
			s.drop(key, e)
			removed++
		}
	}
	s.stats.expiration(removed)
	return removed
}

// has reports whether key holds an unexpired entry without touching access bookkeeping.
func (s *store[T]) has(key string) bool {
	e, ok := s.entries[key]
	return ok && !e.Expired(s.clock.Now())
}

// keys returns the unexpired keys in insertion order.
func (s *store[T]) keys() []string {
	now := s.clock.Now()
	keys := make([]string, 0, len(s.entries))
	for _, key := range s.orderedKeys() {
		if !s.entries[key].Expired(now) {
			keys = append(keys, key)
		}
	}
	return keys
}

// snapshot copies every unexpired entry.
func (s *store[T]) snapshot() map[string]Entry {
	now := s.clock.Now()
	out := make(map[string]Entry, len(s.entries))
	for key, e := range s.entries {
		if !e.Expired(now) {
			out[key] = *e
		}
	}
	return out
}

// orderedKeys lists every stored key, expired or not, in insertion order.
func (s *store[T]) orderedKeys() []string {
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return s.entries[keys[i]].seq < s.entries[keys[j]].seq
	})
	return keys
}
