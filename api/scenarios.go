/*
scenarios.go - Demo catalog loaders for testing and demonstrations

PURPOSE:
  Exposes the built-in demo seeds of package catalog over HTTP. Loading a
  scenario upserts its items, replaces its recipes and receives its opening
  stock as invoices, all through the same validation as API input.

USAGE VIA API:

	GET  /api/scenarios
	POST /api/scenarios/load
	{"scenario_id": "bakery"}

NOTE:
  Loading is additive: existing batches and runs are kept, so loading the
  same scenario twice receives its stock twice.

SEE ALSO:
  - catalog/demo/*.yaml: the scenario definitions
  - catalog/seed.go: Seed.Apply
*/
package api

import (
	"fmt"
	"net/http"

	"github.com/warp/batch-ledger/catalog"
)

// ListScenarios returns all built-in demo catalogs.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	names := catalog.Demos()
	dtos := make([]ScenarioDTO, 0, len(names))
	for _, name := range names {
		seed, err := catalog.Demo(name)
		if err != nil {
			h.writeDomainError(w, fmt.Errorf("demo %s: %w", name, err))
			return
		}
		dtos = append(dtos, ScenarioDTO{ID: name, Name: seed.Name, Description: seed.Description})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LoadScenario applies a demo catalog to the current store.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}

	seed, err := catalog.Demo(req.ScenarioID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown scenario", err)
		return
	}

	e := h.Engine
	if err := seed.Apply(r.Context(), e.Store, e.Recipes, e.Invoices); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.log.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"scenario": req.ScenarioID,
		"items":    len(seed.Items),
		"recipes":  len(seed.Recipes),
		"invoices": len(seed.Stock),
	})
}
