package middleware

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/onnwee/blogcache/internal/apierr"
)

// RateLimit caps the admin API at rps requests per second with the given burst.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				apierr.WriteErrorWithContext(w, r, apierr.RateLimitGlobal())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
