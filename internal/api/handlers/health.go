package handlers

import (
	"encoding/json"
	"net/http"
)

// CacheStatus describes the manager backing the admin API.
type CacheStatus interface {
	Name() string
	Persistent() bool
}

// Health reports liveness and whether the cache is writing to its durable backend.
// A cache running in memory only is degraded, not down.
func Health(c CacheStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode := "persistent"
		if !c.Persistent() {
			mode = "memory_only"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
			"cache":  c.Name(),
			"mode":   mode,
		})
	}
}
