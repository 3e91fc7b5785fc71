package cache

import "time"

// Entry is one cached record.
type Entry struct {
	Data           []byte // serialized value, or its compressed form when Compressed
	CreatedAt      time.Time
	TTL            time.Duration
	Size           int64 // size of the serialized value before compression
	Compressed     bool
	AccessCount    int64
	LastAccessedAt time.Time

	seq uint64 // insertion order, breaks recency ties during eviction
}

// ExpiresAt is the instant from which the entry is logically absent.
func (e *Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// Expired reports whether the entry is past its expiry instant at now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}
