/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/resolve          Price + capacity resolution
  /api/layers/*         Policy layer management
  /api/nodes/*          Hierarchy management
  /api/surge-configs/*  Surge configuration
  /api/snapshots        Demand snapshot ingest
  /api/materialize      Manual surge materialization
  /api/runs             Materialization run history
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Resolution
		r.Post("/resolve", h.Resolve)

		// Layer routes
		r.Route("/layers", func(r chi.Router) {
			r.Get("/", h.ListLayers)
			r.Post("/", h.CreateLayer)
			r.Get("/{id}", h.GetLayer)
			r.Post("/{id}/approve", h.ApproveLayer)
			r.Post("/{id}/reject", h.RejectLayer)
			r.Post("/{id}/deactivate", h.DeactivateLayer)
		})

		// Hierarchy routes
		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", h.ListNodes)
			r.Post("/", h.CreateNode)
			r.Get("/{id}", h.GetNode)
		})

		// Surge routes
		r.Route("/surge-configs", func(r chi.Router) {
			r.Get("/", h.ListSurgeConfigs)
			r.Post("/", h.CreateSurgeConfig)
			r.Get("/{id}", h.GetSurgeConfig)
		})
		r.Post("/snapshots", h.IngestSnapshot)
		r.Post("/materialize", h.TriggerMaterialize)
		r.Get("/runs", h.ListRuns)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
