package api

import (
	"net"
	"net/http"

	"github.com/kevinms/leakybucket-go"
)

type RateLimitConfig struct {
	// PerSecond is the steady refill rate per client IP; zero disables
	// limiting.
	PerSecond float64 `env:"API_RATE_PER_SECOND" default:"2"`
	Burst     int64   `env:"API_RATE_BURST" default:"10"`
}

// rateLimit caps transaction-submitting requests per client IP with a leaky
// bucket.
func rateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.PerSecond <= 0 || cfg.Burst <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	buckets := leakybucket.NewCollector(cfg.PerSecond, cfg.Burst, true)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)

			if buckets.Add(key, 1) == 0 {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
