/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request logging (zap)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the host UI

ROUTE GROUPS:
  /api/medications/*    Medication, dose and refill actions
  /api/today            Home screen
  /api/refills          Refill tracker
  /api/calendar         Calendar month
  /api/doses            Ledger entries for a day
  /metrics              Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterOptions holds the outer-surface settings of the router.
type RouterOptions struct {
	CORSOrigins []string
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
	Logger  *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/medications", func(r chi.Router) {
			r.Get("/", h.ListMedications)
			r.Post("/", h.CreateMedication)
			r.Get("/{id}", h.GetMedication)
			r.Delete("/{id}", h.DeleteMedication)
			r.Put("/{id}/schedule", h.UpdateSchedule)
			r.Post("/{id}/doses", h.TakeDose)
			r.Delete("/{id}/doses/last", h.UndoDose)
			r.Post("/{id}/refill", h.Refill)
		})

		r.Get("/today", h.Today)
		r.Get("/refills", h.ListRefills)
		r.Get("/calendar", h.Calendar)
		r.Get("/doses", h.ListDoses)
	})

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	return r
}

// requestLogger logs one line per request with the chi request ID.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
