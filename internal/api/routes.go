// Package api wires the cache admin HTTP surface.
package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/blogcache/internal/api/handlers"
	"github.com/onnwee/blogcache/internal/cache"
	"github.com/onnwee/blogcache/internal/middleware"
)

// Deps are the components the router serves.
type Deps struct {
	Cache *cache.Manager[[]byte]
	Hub   *handlers.Hub

	RateLimitRPS   float64 // <= 0 disables rate limiting
	RateLimitBurst int
}

func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RecoverWithSentry)
	r.Use(middleware.Metrics)

	// Probes and scraping stay outside the rate limit.
	r.HandleFunc("/health", handlers.Health(d.Cache)).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	apiRouter := r.PathPrefix("/api/cache").Subrouter()
	if d.RateLimitRPS > 0 {
		burst := d.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		apiRouter.Use(middleware.RateLimit(d.RateLimitRPS, burst))
	}

	admin := handlers.NewCacheAdminHandler(d.Cache)
	if d.Hub != nil {
		admin.WithNotifier(d.Hub)
	}
	apiRouter.HandleFunc("/stats", admin.GetCacheStats).Methods("GET")
	apiRouter.HandleFunc("/invalidate", admin.InvalidateCache).Methods("POST")
	apiRouter.HandleFunc("/cleanup", admin.RunCleanup).Methods("POST")
	apiRouter.HandleFunc("/entries/{key}", admin.GetEntry).Methods("GET")
	apiRouter.HandleFunc("/entries/{key}", admin.PutEntry).Methods("PUT")
	apiRouter.HandleFunc("/entries/{key}", admin.DeleteEntry).Methods("DELETE")

	if d.Hub != nil {
		apiRouter.HandleFunc("/ws", handlers.NewWebSocketHandler(d.Hub).HandleWebSocket).Methods("GET")
	}

	return r
}
