package cache

import "github.com/onnwee/blogcache/internal/metrics"

// Stats is a point-in-time copy of cache statistics.
type Stats struct {
	HitCount       int64   `json:"hit_count"`
	MissCount      int64   `json:"miss_count"`
	EvictionCount  int64   `json:"eviction_count"`  // removals to make room
	ExpiredCount   int64   `json:"expired_count"`   // removals because the TTL elapsed
	CorruptCount   int64   `json:"corrupt_count"`   // removals because the payload was undecodable
	TotalEntries   int64   `json:"total_entries"`
	TotalSizeBytes int64   `json:"total_size_bytes"`
	HitRate        float64 `json:"hit_rate"`
}

// statsTracker keeps the running counters for one manager. It is not synchronized; the
// owning manager serializes access.
type statsTracker struct {
	name string

	hits      int64
	misses    int64
	evictions int64
	expired   int64
	corrupt   int64
	entries   int64
	size      int64
}

func newStatsTracker(name string) *statsTracker {
	return &statsTracker{name: name}
}

func (s *statsTracker) hit() {
	s.hits++
	metrics.CacheHits.WithLabelValues(s.name).Inc()
}

func (s *statsTracker) miss() {
	s.misses++
	metrics.CacheMisses.WithLabelValues(s.name).Inc()
}

func (s *statsTracker) eviction() {
	s.evictions++
	metrics.CacheEvictions.WithLabelValues(s.name).Inc()
}

func (s *statsTracker) expiration(n int) {
	if n == 0 {
		return
	}
	s.expired += int64(n)
	metrics.CacheExpirations.WithLabelValues(s.name).Add(float64(n))
}

func (s *statsTracker) corruption(source string) {
	s.corrupt++
	metrics.CacheCorruptEntries.WithLabelValues(s.name, source).Inc()
}

func (s *statsTracker) added(size int64) {
	s.entries++
	s.size += size
}

func (s *statsTracker) removed(size int64) {
	s.entries--
	s.size -= size
}

// resetCurrent zeroes occupancy; cumulative counters survive a Clear.
func (s *statsTracker) resetCurrent() {
	s.entries = 0
	s.size = 0
}

// restore carries cumulative counters over from a persisted snapshot.
func (s *statsTracker) restore(prev Stats) {
	s.hits += prev.HitCount
	s.misses += prev.MissCount
	s.evictions += prev.EvictionCount
	s.expired += prev.ExpiredCount
	s.corrupt += prev.CorruptCount
}

func (s *statsTracker) snapshot() Stats {
	return Stats{
		HitCount:       s.hits,
		MissCount:      s.misses,
		EvictionCount:  s.evictions,
		ExpiredCount:   s.expired,
		CorruptCount:   s.corrupt,
		TotalEntries:   s.entries,
		TotalSizeBytes: s.size,
		HitRate:        hitRate(s.hits, s.misses),
	}
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
