/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zerolog request line (logging.Middleware)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus request counters (when configured)
  5. CORS:       Cross-origin requests for the app

ROUTE GROUPS:
  /api/subscriptions/*  Subscription management and renewals
  /api/calendar         Month view
  /api/summary          Overview numbers
  /api/reminders        Upcoming reminders
  /api/export|import    Data files
  /api/seed|reset       Demo data (dev)
  /api/renewal-runs     Renewal advancer
  /metrics              Prometheus
  /healthz              Liveness + store ping

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/subtrack/serve.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/subtrack/logging"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:8081", "http://localhost:19006"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(logging.Component("http")))
	r.Use(middleware.Recoverer)
	if h.Metrics != nil {
		r.Use(h.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)
	if h.Metrics != nil {
		r.Method("GET", "/metrics", h.Metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", h.ListSubscriptions)
			r.Post("/", h.CreateSubscription)
			r.Get("/{id}", h.GetSubscription)
			r.Put("/{id}", h.UpdateSubscription)
			r.Delete("/{id}", h.DeleteSubscription)
			r.Post("/{id}/cancel", h.CancelSubscription)
			r.Get("/{id}/renewals", h.GetRenewals)
		})

		r.Get("/calendar", h.GetCalendar)
		r.Get("/summary", h.GetSummary)
		r.Get("/reminders", h.GetReminders)

		// Data management
		r.Get("/export", h.Export)
		r.Post("/import", h.Import)
		r.Post("/seed", h.Seed)
		r.Post("/reset", h.Reset)

		// Renewal advancer
		r.Route("/renewal-runs", func(r chi.Router) {
			r.Get("/", h.ListRenewalRuns)
			r.Post("/", h.TriggerRenewalRun)
		})
	})

	return r
}
