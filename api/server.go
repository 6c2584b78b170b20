/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/users/*      User directory
  /api/requests/*   Leave/WFH submission and decisions
  /api/approvals/*  Approver inbox
  /api/documents/*  Generated-document signing
  /api/advisor/*    Conflict advisor
  /api/admin/*      Rules, settings, delegates, sweep, seed
  /metrics          Prometheus metrics

SECURITY NOTE:
  Identity comes from the X-User-ID header; there is no authentication
  middleware. An API gateway in front of the service is expected to own
  authentication in production.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Get("/{id}/balance", h.GetBalance)
		})

		// Request routes
		r.Route("/requests", func(r chi.Router) {
			r.Get("/", h.ListMyRequests)
			r.Post("/", h.SubmitRequest)
			r.Get("/{id}", h.GetRequest)
			r.Post("/{id}/decision", h.RecordDecision)
			r.Post("/{id}/cancel", h.CancelRequest)
			r.Post("/{id}/document", h.GenerateDocument)
		})

		// Approver inbox
		r.Route("/approvals", func(r chi.Router) {
			r.Get("/pending", h.ListPendingApprovals)
		})

		// Document routes
		r.Route("/documents", func(r chi.Router) {
			r.Get("/{id}", h.GetDocument)
			r.Post("/{id}/sign", h.SignDocument)
		})

		// Advisor routes
		r.Route("/advisor", func(r chi.Router) {
			r.Get("/suggest", h.Suggest)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/rules", h.ListRules)
			r.Post("/rules", h.SaveRule)
			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.UpdateSettings)
			r.Post("/delegates", h.CreateDelegate)
			r.Post("/balances", h.SetBalance)
			r.Get("/holidays", h.ListHolidays)
			r.Post("/holidays", h.CreateHoliday)
			r.Post("/sweep", h.TriggerSweep)
			r.Post("/seed", h.LoadSeed)
			r.Get("/audit", h.QueryAudit)
		})
	})

	return r
}
