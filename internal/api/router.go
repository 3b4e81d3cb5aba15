package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gometrics "github.com/rcrowley/go-metrics"

	"github.com/fastprodman/sealedrps/internal/infra/metrics"
)

// NewRouter constructs a chi router with all API endpoints registered.
// Routes that submit transactions are rate limited per client IP.
func NewRouter(h *HandlerProvider, limits RateLimitConfig, registry gometrics.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/session", h.Session)
	r.Get("/pool", h.Pool)
	r.Get("/players/{address}/history", h.History)
	r.Get("/matches/{matchId}", h.Status)
	r.Get("/debug/metrics", metrics.Handler(registry))

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(limits))

		r.Post("/matches/play", h.Play)
		r.Post("/matches/{matchId}/resolve", h.Resolve)
		r.Post("/matches/{matchId}/finalize", h.Finalize)
		r.Post("/matches/{matchId}/settle", h.Settle)
		r.Post("/matches/{matchId}/claim", h.Claim)
		r.Post("/matches/{matchId}/expire", h.Expire)
	})

	return r
}

// echoRequestID returns the id chi's RequestID middleware assigned, so
// clients can quote it when reporting a failed call.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(middleware.RequestIDHeader, middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r)
	})
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.InfoContext(r.Context(), "http request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"took", time.Since(start),
			)
		})
	}
}
