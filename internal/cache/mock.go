package cache

import (
	"sync"
	"time"
)

// MockCache is a map-backed Cache for handler tests. It ignores TTLs and never evicts.
type MockCache[T any] struct {
	mu     sync.Mutex
	data   map[string]T
	hits   int64
	misses int64
}

// NewMockCache creates an empty mock cache.
func NewMockCache[T any]() *MockCache[T] {
	return &MockCache[T]{data: make(map[string]T)}
}

func (m *MockCache[T]) Get(key string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, found := m.data[key]
	if found {
		m.hits++
	} else {
		m.misses++
	}
	return val, found
}

func (m *MockCache[T]) Set(key string, value T, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

func (m *MockCache[T]) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, found := m.data[key]
	delete(m.data, key)
	return found
}

func (m *MockCache[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]T)
}

func (m *MockCache[T]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		HitCount:     m.hits,
		MissCount:    m.misses,
		TotalEntries: int64(len(m.data)),
		HitRate:      hitRate(m.hits, m.misses),
	}
}
