/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for admin frontends

SECURITY NOTE:
  No authentication middleware. Authorization policy is owned by the
  surrounding deployment, not this engine.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/assignments", func(r chi.Router) {
			r.Post("/", h.CreateAssignment)
			r.Delete("/{id}", h.DeleteAssignment)
		})

		r.Route("/employees/{id}", func(r chi.Router) {
			r.Post("/balances", h.CreateBalanceEntry)
			r.Get("/balances", h.ListBalances)
			r.Get("/overview", h.GetOverview)
			r.Post("/contract-end", h.ContractEnd)
			r.Post("/rehire", h.Rehire)
		})

		r.Route("/balances", func(r chi.Router) {
			r.Delete("/{id}", h.DeleteBalanceEntry)
		})

		r.Get("/categories", h.ListCategories)
		r.Get("/recompute/runs", h.ListRecomputeRuns)
	})

	return r
}
