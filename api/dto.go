/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Decimals travel as
  JSON strings (shopspring/decimal's default encoding) so no precision is
  lost to float parsing; responses are rounded to ledger.Precision places,
  requests are taken as given.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done by the domain packages, not in DTOs. Handlers only
  parse ids, dates and query parameters.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/batch-ledger/intake"
	"github.com/warp/batch-ledger/ledger"
	"github.com/warp/batch-ledger/production"
	"github.com/warp/batch-ledger/recipe"
	"github.com/warp/batch-ledger/report"
)

// dateLayout is used for invoice dates in requests and responses.
const dateLayout = "2006-01-02"

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(ledger.Precision)
}

// =============================================================================
// ITEMS
// =============================================================================

type ItemDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Unit          string `json:"unit"`
	Type          string `json:"type"`
	ShelfLifeDays int    `json:"shelf_life_days"`
}

func toItemDTO(it ledger.Item) ItemDTO {
	return ItemDTO{
		ID:            string(it.ID),
		Name:          it.Name,
		Unit:          it.Unit,
		Type:          string(it.Type),
		ShelfLifeDays: it.ShelfLifeDays,
	}
}

// =============================================================================
// BATCHES
// =============================================================================

type BatchDTO struct {
	ID              string          `json:"id"`
	ItemID          string          `json:"item_id"`
	QuantityInitial decimal.Decimal `json:"quantity_initial"`
	QuantityCurrent decimal.Decimal `json:"quantity_current"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
	InvoiceID       string          `json:"invoice_id,omitempty"`
	RunID           string          `json:"run_id,omitempty"`
	Voided          bool            `json:"voided"`
	CreatedAt       time.Time       `json:"created_at"`
}

func toBatchDTO(b ledger.Batch) BatchDTO {
	return BatchDTO{
		ID:              string(b.ID),
		ItemID:          string(b.ItemID),
		QuantityInitial: round(b.QuantityInitial),
		QuantityCurrent: round(b.QuantityCurrent),
		UnitCost:        round(b.UnitCost),
		ExpiresAt:       b.ExpiresAt,
		InvoiceID:       string(b.Source.InvoiceID),
		RunID:           string(b.Source.RunID),
		Voided:          b.Voided,
		CreatedAt:       b.CreatedAt,
	}
}

func toBatchDTOs(bs []ledger.Batch) []BatchDTO {
	out := make([]BatchDTO, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBatchDTO(b))
	}
	return out
}

// AllocationDTO is one batch's share of a deduction or restore.
type AllocationDTO struct {
	BatchID  string          `json:"batch_id"`
	ItemID   string          `json:"item_id"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

func toAllocationDTOs(as []ledger.Allocation) []AllocationDTO {
	out := make([]AllocationDTO, 0, len(as))
	for _, a := range as {
		out = append(out, AllocationDTO{
			BatchID:  string(a.BatchID),
			ItemID:   string(a.ItemID),
			Quantity: round(a.Quantity),
			UnitCost: round(a.UnitCost),
		})
	}
	return out
}

// =============================================================================
// PRODUCTION
// =============================================================================

// RecordProductionRequest is the body of POST /api/production.
// ManualBatches maps an ingredient item id to the batch it must come from.
type RecordProductionRequest struct {
	OutputItemID  string            `json:"output_item_id"`
	Quantity      decimal.Decimal   `json:"quantity"`
	ManualBatches map[string]string `json:"manual_batches,omitempty"`
}

type IngredientUsageDTO struct {
	ItemID       string          `json:"item_id"`
	PerUnit      decimal.Decimal `json:"per_unit"`
	QuantityUsed decimal.Decimal `json:"quantity_used"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	Cost         decimal.Decimal `json:"cost"`
	Batches      []AllocationDTO `json:"batches"`
}

type ProductionDTO struct {
	RunID            string               `json:"run_id"`
	OutputItemID     string               `json:"output_item_id"`
	OutputBatchID    string               `json:"output_batch_id"`
	QuantityProduced decimal.Decimal      `json:"quantity_produced"`
	UnitCost         decimal.Decimal      `json:"unit_cost"`
	ExpiresAt        *time.Time           `json:"expires_at,omitempty"`
	IngredientsUsed  []IngredientUsageDTO `json:"ingredients_used"`
}

func toProductionDTO(r *production.Result) ProductionDTO {
	used := make([]IngredientUsageDTO, 0, len(r.IngredientsUsed))
	for _, u := range r.IngredientsUsed {
		used = append(used, IngredientUsageDTO{
			ItemID:       string(u.ItemID),
			PerUnit:      round(u.PerUnit),
			QuantityUsed: round(u.QuantityUsed),
			UnitCost:     round(u.UnitCost),
			Cost:         round(u.Cost),
			Batches:      toAllocationDTOs(u.Batches),
		})
	}
	return ProductionDTO{
		RunID:            string(r.RunID),
		OutputItemID:     string(r.OutputItemID),
		OutputBatchID:    string(r.OutputBatchID),
		QuantityProduced: round(r.QuantityProduced),
		UnitCost:         round(r.UnitCost),
		ExpiresAt:        r.ExpiresAt,
		IngredientsUsed:  used,
	}
}

type RunDTO struct {
	ID               string          `json:"id"`
	OutputItemID     string          `json:"output_item_id"`
	OutputBatchID    string          `json:"output_batch_id"`
	QuantityProduced decimal.Decimal `json:"quantity_produced"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	CreatedAt        time.Time       `json:"created_at"`
	RevertedAt       *time.Time      `json:"reverted_at,omitempty"`
}

func toRunDTO(r ledger.ProductionRun) RunDTO {
	return RunDTO{
		ID:               string(r.ID),
		OutputItemID:     string(r.OutputItemID),
		OutputBatchID:    string(r.OutputBatchID),
		QuantityProduced: round(r.QuantityProduced),
		UnitCost:         round(r.UnitCost),
		CreatedAt:        r.CreatedAt,
		RevertedAt:       r.RevertedAt,
	}
}

type ProductionLogDTO struct {
	ID           string          `json:"id"`
	InputBatchID string          `json:"input_batch_id"`
	InputItemID  string          `json:"input_item_id"`
	QuantityUsed decimal.Decimal `json:"quantity_used"`
	CreatedAt    time.Time       `json:"created_at"`
}

// RunDetailDTO is a run with its consumption rows.
type RunDetailDTO struct {
	RunDTO
	Logs []ProductionLogDTO `json:"logs"`
}

func toRunDetailDTO(d *report.RunDetail) RunDetailDTO {
	logs := make([]ProductionLogDTO, 0, len(d.Logs))
	for _, l := range d.Logs {
		logs = append(logs, ProductionLogDTO{
			ID:           string(l.ID),
			InputBatchID: string(l.InputBatchID),
			InputItemID:  string(l.InputItemID),
			QuantityUsed: round(l.QuantityUsed),
			CreatedAt:    l.CreatedAt,
		})
	}
	return RunDetailDTO{RunDTO: toRunDTO(d.Run), Logs: logs}
}

type RevertDTO struct {
	RunID         string          `json:"run_id"`
	OutputBatchID string          `json:"output_batch_id"`
	Restored      []AllocationDTO `json:"restored"`
}

func toRevertDTO(r *production.RevertResult) RevertDTO {
	return RevertDTO{
		RunID:         string(r.RunID),
		OutputBatchID: string(r.OutputBatchID),
		Restored:      toAllocationDTOs(r.Restored),
	}
}

// =============================================================================
// WASTE
// =============================================================================

type LogWasteRequest struct {
	BatchID  string          `json:"batch_id"`
	Quantity decimal.Decimal `json:"quantity"`
	Reason   string          `json:"reason"`
}

type WasteDTO struct {
	ID        string          `json:"id"`
	BatchID   string          `json:"batch_id"`
	ItemID    string          `json:"item_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Reason    string          `json:"reason"`
	CostLoss  decimal.Decimal `json:"cost_loss"`
	CreatedAt time.Time       `json:"created_at"`
}

func toWasteDTO(w ledger.WasteLog) WasteDTO {
	return WasteDTO{
		ID:        string(w.ID),
		BatchID:   string(w.BatchID),
		ItemID:    string(w.ItemID),
		Quantity:  round(w.Quantity),
		Reason:    string(w.Reason),
		CostLoss:  round(w.CostLoss),
		CreatedAt: w.CreatedAt,
	}
}

// SweepDTO reports a manual expiry sweep.
type SweepDTO struct {
	WrittenOff []WasteDTO `json:"written_off"`
	Skipped    []string   `json:"skipped"`
}

func toSweepDTO(r *intake.SweepResult) SweepDTO {
	dto := SweepDTO{WrittenOff: make([]WasteDTO, 0, len(r.WrittenOff)), Skipped: make([]string, 0, len(r.Skipped))}
	for _, w := range r.WrittenOff {
		dto.WrittenOff = append(dto.WrittenOff, toWasteDTO(w))
	}
	for _, id := range r.Skipped {
		dto.Skipped = append(dto.Skipped, string(id))
	}
	return dto
}

// =============================================================================
// INVOICES
// =============================================================================

type InvoiceLineRequest struct {
	ItemID        string          `json:"item_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          string          `json:"unit,omitempty"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	ShortShipment bool            `json:"short_shipment,omitempty"`
}

// CreateInvoiceRequest is the body of POST /api/invoices. An omitted total
// is the sum of the lines; InvoiceDate is YYYY-MM-DD.
type CreateInvoiceRequest struct {
	SupplierName string               `json:"supplier_name"`
	InvoiceDate  string               `json:"invoice_date,omitempty"`
	TotalCost    decimal.Decimal      `json:"total_cost"`
	Lines        []InvoiceLineRequest `json:"lines"`
}

type InvoiceDTO struct {
	ID           string          `json:"id"`
	SupplierName string          `json:"supplier_name"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	InvoiceDate  string          `json:"invoice_date,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func toInvoiceDTO(inv ledger.Invoice) InvoiceDTO {
	dto := InvoiceDTO{
		ID:           string(inv.ID),
		SupplierName: inv.SupplierName,
		TotalCost:    round(inv.TotalCost),
		CreatedAt:    inv.CreatedAt,
	}
	if inv.InvoiceDate != nil {
		dto.InvoiceDate = inv.InvoiceDate.Format(dateLayout)
	}
	return dto
}

type InvoiceResultDTO struct {
	Invoice      InvoiceDTO `json:"invoice"`
	Batches      []BatchDTO `json:"batches"`
	CreditNeeded bool       `json:"credit_needed"`
}

// =============================================================================
// INVENTORY & REPORTS
// =============================================================================

type ItemSummaryDTO struct {
	ItemID           string          `json:"item_id"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	TotalStock       decimal.Decimal `json:"total_stock"`
	WeightedUnitCost decimal.Decimal `json:"weighted_unit_cost"`
	TotalValue       decimal.Decimal `json:"total_value"`
	ActiveBatches    int             `json:"active_batches"`
}

func toItemSummaryDTOs(rows []report.ItemSummary) []ItemSummaryDTO {
	out := make([]ItemSummaryDTO, 0, len(rows))
	for _, s := range rows {
		out = append(out, ItemSummaryDTO{
			ItemID:           string(s.ItemID),
			Name:             s.Name,
			Unit:             s.Unit,
			TotalStock:       round(s.TotalStock),
			WeightedUnitCost: round(s.WeightedUnitCost),
			TotalValue:       round(s.TotalValue),
			ActiveBatches:    s.ActiveBatches,
		})
	}
	return out
}

type ShortfallDTO struct {
	ItemID    string          `json:"item_id"`
	BatchID   string          `json:"batch_id,omitempty"`
	Needed    decimal.Decimal `json:"needed"`
	Available decimal.Decimal `json:"available"`
	Missing   decimal.Decimal `json:"missing"`
}

func toShortfallDTOs(ss []ledger.Shortfall) []ShortfallDTO {
	out := make([]ShortfallDTO, 0, len(ss))
	for _, s := range ss {
		out = append(out, ShortfallDTO{
			ItemID:    string(s.ItemID),
			BatchID:   string(s.BatchID),
			Needed:    round(s.Needed),
			Available: round(s.Available),
			Missing:   round(s.Missing()),
		})
	}
	return out
}

type IngredientStockDTO struct {
	ItemID    string          `json:"item_id"`
	PerUnit   decimal.Decimal `json:"per_unit"`
	Needed    decimal.Decimal `json:"needed"`
	Available decimal.Decimal `json:"available"`
}

type StockCheckDTO struct {
	ItemID        string               `json:"item_id"`
	Requested     decimal.Decimal      `json:"requested"`
	Available     decimal.Decimal      `json:"available"`
	MaxProducible decimal.Decimal      `json:"max_producible"`
	CanProduce    bool                 `json:"can_produce"`
	Ingredients   []IngredientStockDTO `json:"ingredients"`
	Shortfalls    []ShortfallDTO       `json:"shortfalls"`
}

func toStockCheckDTO(c *report.StockCheck) StockCheckDTO {
	ings := make([]IngredientStockDTO, 0, len(c.Ingredients))
	for _, i := range c.Ingredients {
		ings = append(ings, IngredientStockDTO{
			ItemID:    string(i.ItemID),
			PerUnit:   round(i.PerUnit),
			Needed:    round(i.Needed),
			Available: round(i.Available),
		})
	}
	return StockCheckDTO{
		ItemID:        string(c.ItemID),
		Requested:     round(c.Requested),
		Available:     round(c.Available),
		MaxProducible: c.MaxProducible,
		CanProduce:    c.CanProduce,
		Ingredients:   ings,
		Shortfalls:    toShortfallDTOs(c.Shortfalls),
	}
}

type DashboardDTO struct {
	LowStockItems        int             `json:"low_stock_items"`
	TodaysProductionCost decimal.Decimal `json:"todays_production_cost"`
	Invoices             int             `json:"invoices"`
	WasteValueWeek       decimal.Decimal `json:"waste_value_week"`
}

type IngredientCostDTO struct {
	InputItemID string          `json:"input_item_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Cost        decimal.Decimal `json:"cost"`
}

type CostDTO struct {
	ItemID      string              `json:"item_id"`
	UnitCost    decimal.Decimal     `json:"unit_cost"`
	Ingredients []IngredientCostDTO `json:"ingredients"`
}

func toCostDTO(b *recipe.CostBreakdown) CostDTO {
	ings := make([]IngredientCostDTO, 0, len(b.Ingredients))
	for _, i := range b.Ingredients {
		ings = append(ings, IngredientCostDTO{
			InputItemID: string(i.InputItemID),
			Quantity:    round(i.Quantity),
			UnitCost:    round(i.UnitCost),
			Cost:        round(i.Cost),
		})
	}
	return CostDTO{ItemID: string(b.ItemID), UnitCost: round(b.UnitCost), Ingredients: ings}
}

type UsageDTO struct {
	Date     string          `json:"date"`
	Quantity decimal.Decimal `json:"quantity"`
}

// =============================================================================
// RECIPES
// =============================================================================

// IngredientDTO is one recipe edge. Unit is optional; empty means the input
// item's own unit.
type IngredientDTO struct {
	InputItemID string          `json:"input_item_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit,omitempty"`
}

type RecipeDTO struct {
	ItemID      string          `json:"item_id"`
	Ingredients []IngredientDTO `json:"ingredients"`
}

type SetRecipeRequest struct {
	Ingredients []IngredientDTO `json:"ingredients"`
}

func toRecipeDTO(item ledger.ItemID, edges []ledger.Composition) RecipeDTO {
	ings := make([]IngredientDTO, 0, len(edges))
	for _, e := range edges {
		ings = append(ings, IngredientDTO{
			InputItemID: string(e.InputItemID),
			Quantity:    e.QuantityRequired,
			Unit:        e.Unit,
		})
	}
	return RecipeDTO{ItemID: string(item), Ingredients: ings}
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx reply. The optional fields are
// filled from structured ledger errors.
type ErrorResponse struct {
	Error      string         `json:"error"`
	Details    string         `json:"details,omitempty"`
	Shortfalls []ShortfallDTO `json:"shortfalls,omitempty"`
	CyclePath  []string       `json:"cycle_path,omitempty"`
	ConsumedBy []string       `json:"consumed_by,omitempty"`
	BatchIDs   []string       `json:"batch_ids,omitempty"`
}
