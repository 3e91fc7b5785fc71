package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/onnwee/blogcache/internal/apierr"
	"github.com/onnwee/blogcache/internal/cache"
	"github.com/onnwee/blogcache/internal/logger"
)

// maxEntryBody bounds PUT bodies before they reach the cache's own size check.
const maxEntryBody = 64 << 20

// Notifier is told when an admin call changed the cache.
type Notifier interface {
	Broadcast()
}

// CacheAdminHandler handles cache administration endpoints.
type CacheAdminHandler struct {
	cache    cache.Cache[[]byte]
	notifier Notifier
	maxBody  int64
}

// NewCacheAdminHandler creates a new cache admin handler.
func NewCacheAdminHandler(c cache.Cache[[]byte]) *CacheAdminHandler {
	return &CacheAdminHandler{cache: c, maxBody: maxEntryBody}
}

// WithNotifier pushes a stats update through n after every mutating call.
func (h *CacheAdminHandler) WithNotifier(n Notifier) *CacheAdminHandler {
	h.notifier = n
	return h
}

func (h *CacheAdminHandler) changed() {
	if h.notifier != nil {
		h.notifier.Broadcast()
	}
}

type invalidateRequest struct {
	Keys []string `json:"keys"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// InvalidateCache deletes the listed keys, or every entry when no keys are given.
// POST /api/cache/invalidate
func (h *CacheAdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
			return
		}
	}

	if len(req.Keys) == 0 {
		h.cache.Clear()
		h.changed()
		logger.InfoContext(r.Context(), "Cache invalidated")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"message": "Cache invalidated successfully",
		})
		return
	}

	deleted := 0
	for _, key := range req.Keys {
		if h.cache.Delete(key) {
			deleted++
		}
	}
	if deleted > 0 {
		h.changed()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"deleted": deleted,
	})
}

// GetCacheStats returns current cache statistics.
// GET /api/cache/stats
func (h *CacheAdminHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

// RunCleanup sweeps expired entries and flushes to the durable backend.
// POST /api/cache/cleanup
func (h *CacheAdminHandler) RunCleanup(w http.ResponseWriter, r *http.Request) {
	c, ok := h.cache.(interface{ Cleanup() int })
	if !ok {
		apierr.WriteErrorWithContext(w, r, apierr.SystemUnavailable("Cache does not support manual cleanup"))
		return
	}

	removed := c.Cleanup()
	if removed > 0 {
		h.changed()
	}
	if removed < 0 {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"status":  "skipped",
			"message": "Cleanup already running",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"removed": removed,
	})
}

// GetEntry returns the raw bytes cached under key.
// GET /api/cache/entries/{key}
func (h *CacheAdminHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	value, ok := h.cache.Get(key)
	if !ok {
		apierr.WriteErrorWithContext(w, r, apierr.CacheMiss(key))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(value)))
	w.WriteHeader(http.StatusOK)
	w.Write(value)
}

// PutEntry stores the request body under key. The optional ttl_ms query parameter
// overrides the default TTL.
// PUT /api/cache/entries/{key}
func (h *CacheAdminHandler) PutEntry(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var ttl time.Duration
	if raw := r.URL.Query().Get("ttl_ms"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms <= 0 {
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("ttl_ms", "ttl_ms must be a positive integer"))
			return
		}
		ttl = time.Duration(ms) * time.Millisecond
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			// ContentLength is -1 for chunked bodies; the size is then unknown.
			apierr.WriteErrorWithContext(w, r, apierr.CacheEntryTooLarge(r.ContentLength, tooBig.Limit))
			return
		}
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("body", "Failed to read request body"))
		return
	}

	setter, ok := h.cache.(interface {
		TrySet(key string, value []byte, ttl time.Duration) error
	})
	if !ok {
		h.cache.Set(key, body, ttl)
		h.changed()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := setter.TrySet(key, body, ttl); err != nil {
		var limit int64
		if l, ok := h.cache.(interface{ MaxTotalSize() int64 }); ok {
			limit = l.MaxTotalSize()
		}
		apiErr := apierr.FromCache(err, key, int64(len(body)), limit)
		if apiErr.Code == apierr.ErrSystemInternal {
			logger.ErrorContext(r.Context(), "Failed to store cache entry", "key", key, "error", err)
		}
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}
	h.changed()
	w.WriteHeader(http.StatusNoContent)
}

// DeleteEntry removes key.
// DELETE /api/cache/entries/{key}
func (h *CacheAdminHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if !h.cache.Delete(key) {
		apierr.WriteErrorWithContext(w, r, apierr.CacheMiss(key))
		return
	}
	h.changed()
	w.WriteHeader(http.StatusNoContent)
}
