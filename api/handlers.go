/*
handlers.go - HTTP API handlers for the batch ledger

PURPOSE:
  Exposes the engine via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the domain packages.

ENDPOINTS:
  Production:
    POST   /api/production                 Record a production run
    GET    /api/production                 List runs, newest first (?limit=)
    GET    /api/production/{id}            Run with its consumption rows
    POST   /api/production/{id}/revert     Revert a run

  Stock movements:
    POST   /api/waste                      Write off part of a batch
    POST   /api/invoices                   Receive an invoice (creates batches)
    GET    /api/invoices                   List invoices
    DELETE /api/invoices/{id}              Delete an untouched invoice

  Inventory:
    GET    /api/inventory/summary          Per-item stock and valuation
    GET    /api/inventory/batches          Batches in FIFO order (?item_id=&active=)
    GET    /api/inventory/check-stock/{id} Can we make ?quantity= of it
    GET    /api/inventory/dashboard        Headline figures

  Items & recipes:
    GET    /api/items                      Catalog
    GET    /api/items/{id}/cost            Rolled-up unit cost
    GET    /api/items/{id}/usage           Daily consumption history
    GET    /api/recipes/{id}               Recipe edges
    PUT    /api/recipes/{id}               Replace a recipe
    POST   /api/recipes/{id}/ingredients   Add or replace one edge
    DELETE /api/recipes/{id}/ingredients/{inputID}

  Admin & scenarios:
    POST   /api/admin/expire               Write off expired batches now
    GET    /api/scenarios                  List demo catalogs
    POST   /api/scenarios/load             Load a demo catalog

ERROR HANDLING:
  Ledger error kinds map to statuses in writeDomainError:
  - 400: Validation, cycle, missing recipe, unit mismatch
  - 404: Resource not found
  - 409: Already reverted, output consumed, invoice in use, restore overflow
  - 422: Insufficient stock (shortfalls in the body)
  - 503: Concurrency conflict (safe to retry)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo catalog loading
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/batch-ledger/engine"
	"github.com/warp/batch-ledger/intake"
	"github.com/warp/batch-ledger/ledger"
	"github.com/warp/batch-ledger/production"
	"github.com/warp/batch-ledger/recipe"
	"github.com/warp/batch-ledger/units"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *engine.Engine
	log    zerolog.Logger
}

// NewHandler creates a handler over e. Internal errors are logged to log.
func NewHandler(e *engine.Engine, log zerolog.Logger) *Handler {
	return &Handler{Engine: e, log: log.With().Str("component", "api").Logger()}
}

// =============================================================================
// PRODUCTION HANDLERS
// =============================================================================

// RecordProduction consumes ingredients and creates the output batch.
func (h *Handler) RecordProduction(w http.ResponseWriter, r *http.Request) {
	var req RecordProductionRequest
	if !decode(w, r, &req) {
		return
	}

	var manual map[ledger.ItemID]ledger.BatchID
	if len(req.ManualBatches) > 0 {
		manual = make(map[ledger.ItemID]ledger.BatchID, len(req.ManualBatches))
		for item, batch := range req.ManualBatches {
			manual[ledger.ItemID(item)] = ledger.BatchID(batch)
		}
	}

	res, err := h.Engine.Production.Record(r.Context(), production.Request{
		OutputItemID:  ledger.ItemID(req.OutputItemID),
		Quantity:      req.Quantity,
		ManualBatches: manual,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductionDTO(res))
}

// ListRuns returns production runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", fmt.Errorf("limit %q", s))
			return
		}
		limit = n
	}

	runs, err := h.Engine.Queries.ListRuns(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRun returns one run with its production logs.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Engine.Queries.GetRun(r.Context(), ledger.RunID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDetailDTO(detail))
}

// RevertRun restores a run's inputs and voids its output.
func (h *Handler) RevertRun(w http.ResponseWriter, r *http.Request) {
	res, err := h.Engine.Reverts.Revert(r.Context(), ledger.RunID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.log.Info().Str("run_id", string(res.RunID)).Msg("production reverted")
	writeJSON(w, http.StatusOK, toRevertDTO(res))
}

// =============================================================================
// WASTE & INVOICE HANDLERS
// =============================================================================

func (h *Handler) LogWaste(w http.ResponseWriter, r *http.Request) {
	var req LogWasteRequest
	if !decode(w, r, &req) {
		return
	}

	entry, err := h.Engine.Waste.LogWaste(r.Context(), intake.WasteRequest{
		BatchID:  ledger.BatchID(req.BatchID),
		Quantity: req.Quantity,
		Reason:   ledger.WasteReason(req.Reason),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWasteDTO(*entry))
}

// CreateInvoice stores an invoice and one batch per line.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if !decode(w, r, &req) {
		return
	}

	input := intake.InvoiceInput{
		SupplierName: req.SupplierName,
		TotalCost:    req.TotalCost,
		Lines:        make([]intake.Line, 0, len(req.Lines)),
	}
	if req.InvoiceDate != "" {
		date, err := time.Parse(dateLayout, req.InvoiceDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid invoice_date (expected YYYY-MM-DD)", err)
			return
		}
		input.InvoiceDate = &date
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, intake.Line{
			ItemID:        ledger.ItemID(l.ItemID),
			Quantity:      l.Quantity,
			Unit:          l.Unit,
			UnitCost:      l.UnitCost,
			ShortShipment: l.ShortShipment,
		})
	}

	res, err := h.Engine.Invoices.CreateFromInvoiceLines(r.Context(), input)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, InvoiceResultDTO{
		Invoice:      toInvoiceDTO(res.Invoice),
		Batches:      toBatchDTOs(res.Batches),
		CreditNeeded: res.CreditNeeded,
	})
}

func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.Engine.Queries.ListInvoices(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]InvoiceDTO, 0, len(invoices))
	for _, inv := range invoices {
		dtos = append(dtos, toInvoiceDTO(inv))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DeleteInvoice removes an invoice whose batches are all untouched.
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Invoices.DeleteInvoice(r.Context(), ledger.InvoiceID(chi.URLParam(r, "id"))); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// INVENTORY HANDLERS
// =============================================================================

func (h *Handler) InventorySummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Engine.Queries.InventorySummary(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemSummaryDTOs(rows))
}

// ListBatches returns batches in allocation order.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.BatchFilter{
		ItemID:    ledger.ItemID(q.Get("item_id")),
		InvoiceID: ledger.InvoiceID(q.Get("invoice_id")),
	}
	if s := q.Get("active"); s != "" {
		active, err := strconv.ParseBool(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid active flag", err)
			return
		}
		filter.ActiveOnly = active
	}

	batches, err := h.Engine.Queries.ListBatches(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTOs(batches))
}

// CheckStock reports whether ?quantity= (default 1) of an item can be made.
func (h *Handler) CheckStock(w http.ResponseWriter, r *http.Request) {
	qty := decimal.NewFromInt(1)
	if s := r.URL.Query().Get("quantity"); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid quantity", err)
			return
		}
		qty = d
	}

	check, err := h.Engine.Queries.CheckStock(r.Context(), ledger.ItemID(chi.URLParam(r, "itemID")), qty)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockCheckDTO(check))
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Engine.Queries.Dashboard(r.Context(), h.Engine.Ledger.Now())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardDTO{
		LowStockItems:        d.LowStockItems,
		TodaysProductionCost: round(d.TodaysProductionCost),
		Invoices:             d.Invoices,
		WasteValueWeek:       round(d.WasteValueWeek),
	})
}

// =============================================================================
// ITEM & RECIPE HANDLERS
// =============================================================================

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Engine.Store.ListItems(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]ItemDTO, 0, len(items))
	for _, it := range items {
		dtos = append(dtos, toItemDTO(it))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetItemCost returns the rolled-up unit cost with its first-level breakdown.
func (h *Handler) GetItemCost(w http.ResponseWriter, r *http.Request) {
	breakdown, err := h.Engine.Recipes.Breakdown(r.Context(), ledger.ItemID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCostDTO(breakdown))
}

func (h *Handler) GetItemUsage(w http.ResponseWriter, r *http.Request) {
	days, err := h.Engine.Queries.UsageHistory(r.Context(), ledger.ItemID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]UsageDTO, 0, len(days))
	for _, d := range days {
		dtos = append(dtos, UsageDTO{Date: d.Date.Format(dateLayout), Quantity: round(d.Quantity)})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetRecipe(w http.ResponseWriter, r *http.Request) {
	item := ledger.ItemID(chi.URLParam(r, "id"))
	edges, err := h.Engine.Recipes.GetRecipe(r.Context(), item)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecipeDTO(item, edges))
}

// SetRecipe replaces every edge of a recipe in one transaction.
func (h *Handler) SetRecipe(w http.ResponseWriter, r *http.Request) {
	var req SetRecipeRequest
	if !decode(w, r, &req) {
		return
	}
	item := ledger.ItemID(chi.URLParam(r, "id"))

	ings := make([]recipe.Ingredient, 0, len(req.Ingredients))
	for _, ing := range req.Ingredients {
		ings = append(ings, recipe.Ingredient{
			InputItemID: ledger.ItemID(ing.InputItemID),
			Quantity:    ing.Quantity,
			Unit:        ing.Unit,
		})
	}
	if err := h.Engine.Recipes.SetRecipe(r.Context(), item, ings); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.GetRecipe(w, r)
}

// AddIngredient inserts or replaces one edge.
func (h *Handler) AddIngredient(w http.ResponseWriter, r *http.Request) {
	var req IngredientDTO
	if !decode(w, r, &req) {
		return
	}
	item := ledger.ItemID(chi.URLParam(r, "id"))

	if err := h.Engine.Recipes.AddEdge(r.Context(), item, ledger.ItemID(req.InputItemID), req.Quantity, req.Unit); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.GetRecipe(w, r)
}

func (h *Handler) RemoveIngredient(w http.ResponseWriter, r *http.Request) {
	item := ledger.ItemID(chi.URLParam(r, "id"))
	input := ledger.ItemID(chi.URLParam(r, "inputID"))
	if err := h.Engine.Recipes.RemoveEdge(r.Context(), item, input); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ExpireBatches runs one expiry sweep as of now.
func (h *Handler) ExpireBatches(w http.ResponseWriter, r *http.Request) {
	res, err := h.Engine.Expiry.Sweep(r.Context(), h.Engine.Ledger.Now())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSweepDTO(res))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body into dst, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

// statusFor maps a ledger error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrConcurrencyConflict):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrAlreadyReverted),
		errors.Is(err, ledger.ErrPartialConsumptionConflict),
		errors.Is(err, ledger.ErrInvoiceInUse),
		errors.Is(err, ledger.ErrRestoreOverflow):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrValidation),
		errors.Is(err, ledger.ErrCycleDetected),
		errors.Is(err, ledger.ErrNoRecipeDefined),
		errors.Is(err, units.ErrIncompatible):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError answers with the status for err and copies the payload
// of structured errors into the body.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: http.StatusText(status), Details: err.Error()}

	var (
		short    *ledger.InsufficientStockError
		cycle    *ledger.CycleError
		conflict *ledger.ConsumptionConflictError
		inUse    *ledger.InvoiceInUseError
	)
	switch {
	case errors.As(err, &short):
		resp.Shortfalls = toShortfallDTOs(short.Shortfalls)
	case errors.As(err, &cycle):
		for _, id := range cycle.Path {
			resp.CyclePath = append(resp.CyclePath, string(id))
		}
	case errors.As(err, &conflict):
		for _, id := range conflict.ConsumedBy {
			resp.ConsumedBy = append(resp.ConsumedBy, string(id))
		}
	case errors.As(err, &inUse):
		for _, id := range inUse.BatchIDs {
			resp.BatchIDs = append(resp.BatchIDs, string(id))
		}
	}

	switch status {
	case http.StatusInternalServerError:
		h.log.Error().Err(err).Msg("request failed")
		resp.Details = ""
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, resp)
}
