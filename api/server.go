/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for a browser frontend

ROUTE GROUPS:
  /api/production/*     Production runs and reverts
  /api/waste            Waste entries
  /api/invoices/*       Supplier invoices
  /api/inventory/*      Stock, valuation and dashboard
  /api/items/*          Catalog, cost and usage
  /api/recipes/*        Recipe edges
  /api/admin/*          Manual expiry sweep
  /api/scenarios/*      Demo catalogs
  /health               Liveness

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

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

// CORSOrigins are the browser origins allowed by default.
var CORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/production", func(r chi.Router) {
			r.Get("/", h.ListRuns)
			r.Post("/", h.RecordProduction)
			r.Get("/{id}", h.GetRun)
			r.Post("/{id}/revert", h.RevertRun)
		})

		r.Post("/waste", h.LogWaste)

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/", h.CreateInvoice)
			r.Delete("/{id}", h.DeleteInvoice)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/summary", h.InventorySummary)
			r.Get("/batches", h.ListBatches)
			r.Get("/check-stock/{itemID}", h.CheckStock)
			r.Get("/dashboard", h.Dashboard)
		})

		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Get("/{id}/cost", h.GetItemCost)
			r.Get("/{id}/usage", h.GetItemUsage)
		})

		r.Route("/recipes/{id}", func(r chi.Router) {
			r.Get("/", h.GetRecipe)
			r.Put("/", h.SetRecipe)
			r.Post("/ingredients", h.AddIngredient)
			r.Delete("/ingredients/{inputID}", h.RemoveIngredient)
		})

		r.Post("/admin/expire", h.ExpireBatches)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
