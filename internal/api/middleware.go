package api

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit applies a global token bucket to the wrapped routes. Upload and
// processing endpoints are CPU-heavy, so the bucket guards the whole API
// rather than per-client state.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
