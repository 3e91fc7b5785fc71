package cache

import (
	"strings"

	"github.com/onnwee/blogcache/internal/kvstore"
	"github.com/onnwee/blogcache/internal/metrics"
)

// applyChange reconciles one mutation made by another context sharing the backend.
// The last change observed wins; nothing is written back.
func (m *Manager[T]) applyChange(c kvstore.Change) {
	if !strings.HasPrefix(c.Key, m.cfg.Namespace) || m.persist.internal(c.Key) {
		return
	}
	key := strings.TrimPrefix(c.Key, m.cfg.Namespace)
	m.persist.Forget(key)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.applying = true
	defer func() { m.applying = false }()

	if c.Deleted {
		m.store.delete(key)
		metrics.CacheSyncEvents.WithLabelValues(m.cfg.Name, "remove").Inc()
		return
	}

	e, err := decodeRecord(c.Value)
	if err != nil {
		m.log.Warn("Dropping undecodable remote entry", "key", key, "error", err)
		m.store.delete(key)
		m.stats.corruption("sync")
		metrics.CacheSyncEvents.WithLabelValues(m.cfg.Name, "ignored").Inc()
		return
	}
	m.store.apply(key, e)
	metrics.CacheSyncEvents.WithLabelValues(m.cfg.Name, "upsert").Inc()
}
