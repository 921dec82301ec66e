/*
Package report answers read-only questions about the ledger.

PURPOSE:
  Stock checks before production, the inventory valuation summary,
  forecasting inputs (current stock, daily usage) and dashboard figures.
  Nothing here takes ledger locks; answers reflect committed state.

SEE ALSO:
  - recipe.Graph.Requirements: the demand CheckStock compares against
*/
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/batch-ledger/ledger"
	"github.com/warp/batch-ledger/recipe"
)

// DefaultLowStockThreshold is the total stock below which an item counts as
// low on the dashboard.
var DefaultLowStockThreshold = decimal.NewFromInt(5)

type Queries struct {
	store    ledger.Store
	graph    *recipe.Graph
	lowStock decimal.Decimal
}

func NewQueries(store ledger.Store, graph *recipe.Graph, lowStock decimal.Decimal) *Queries {
	if !lowStock.IsPositive() {
		lowStock = DefaultLowStockThreshold
	}
	return &Queries{store: store, graph: graph, lowStock: lowStock}
}

// =============================================================================
// STOCK
// =============================================================================

// CurrentStock is the sum of quantity_current over active batches.
func (q *Queries) CurrentStock(ctx context.Context, item ledger.ItemID) (decimal.Decimal, error) {
	batches, err := q.store.ListBatches(ctx, ledger.BatchFilter{ItemID: item, ActiveOnly: true})
	if err != nil {
		return decimal.Zero, fmt.Errorf("list batches: %w", err)
	}
	return sumCurrent(batches), nil
}

func sumCurrent(batches []ledger.Batch) decimal.Decimal {
	total := decimal.Zero
	for _, b := range batches {
		if b.Active() {
			total = total.Add(b.QuantityCurrent)
		}
	}
	return total
}

type IngredientStock struct {
	ItemID    ledger.ItemID
	PerUnit   decimal.Decimal
	Needed    decimal.Decimal
	Available decimal.Decimal
}

type StockCheck struct {
	ItemID    ledger.ItemID
	Requested decimal.Decimal
	// Available is the item's own stock.
	Available decimal.Decimal
	// MaxProducible is the whole number of units the ingredients allow; for
	// raw items it is the whole units in stock.
	MaxProducible decimal.Decimal
	CanProduce    bool
	Ingredients   []IngredientStock
	Shortfalls    []ledger.Shortfall
}

// CheckStock reports whether qty of item can be produced (or, for raw items,
// drawn) right now.
func (q *Queries) CheckStock(ctx context.Context, item ledger.ItemID, qty decimal.Decimal) (*StockCheck, error) {
	if !qty.IsPositive() {
		return nil, ledger.Invalid("quantity", "must be positive, got %s", qty)
	}
	it, err := q.store.GetItem(ctx, item)
	if err != nil {
		return nil, err
	}
	own, err := q.CurrentStock(ctx, item)
	if err != nil {
		return nil, err
	}
	res := &StockCheck{ItemID: item, Requested: qty, Available: own}

	if it.Type == ledger.ItemRaw {
		res.MaxProducible = own.Floor()
		if own.LessThan(qty) {
			res.Shortfalls = []ledger.Shortfall{{ItemID: item, Needed: qty, Available: own}}
		}
		res.CanProduce = len(res.Shortfalls) == 0
		return res, nil
	}

	reqs, err := q.graph.Requirements(ctx, item, qty)
	if err != nil {
		return nil, err
	}
	var maxUnits *decimal.Decimal
	for _, rq := range reqs {
		avail, err := q.CurrentStock(ctx, rq.InputItemID)
		if err != nil {
			return nil, err
		}
		res.Ingredients = append(res.Ingredients, IngredientStock{
			ItemID: rq.InputItemID, PerUnit: rq.PerUnit, Needed: rq.Needed, Available: avail,
		})
		if avail.LessThan(rq.Needed) {
			res.Shortfalls = append(res.Shortfalls, ledger.Shortfall{
				ItemID: rq.InputItemID, Needed: rq.Needed, Available: avail,
			})
		}
		n := avail.Div(rq.PerUnit).Floor()
		if maxUnits == nil || n.LessThan(*maxUnits) {
			maxUnits = &n
		}
	}
	if maxUnits != nil {
		res.MaxProducible = *maxUnits
	}
	res.CanProduce = len(res.Shortfalls) == 0
	return res, nil
}

// =============================================================================
// VALUATION
// =============================================================================

type ItemSummary struct {
	ItemID           ledger.ItemID
	Name             string
	Unit             string
	TotalStock       decimal.Decimal
	WeightedUnitCost decimal.Decimal
	TotalValue       decimal.Decimal
	ActiveBatches    int
}

// InventorySummary lists every item with active stock, by item id.
func (q *Queries) InventorySummary(ctx context.Context) ([]ItemSummary, error) {
	batches, err := q.store.ListBatches(ctx, ledger.BatchFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}

	byItem := make(map[ledger.ItemID]*ItemSummary)
	for _, b := range batches {
		s, ok := byItem[b.ItemID]
		if !ok {
			s = &ItemSummary{ItemID: b.ItemID}
			byItem[b.ItemID] = s
		}
		s.TotalStock = s.TotalStock.Add(b.QuantityCurrent)
		s.TotalValue = s.TotalValue.Add(b.Value())
		s.ActiveBatches++
	}

	out := make([]ItemSummary, 0, len(byItem))
	for id, s := range byItem {
		if item, err := q.store.GetItem(ctx, id); err == nil {
			s.Name, s.Unit = item.Name, item.Unit
		} else if !ledger.IsNotFound(err) {
			return nil, err
		}
		if s.TotalStock.IsPositive() {
			s.WeightedUnitCost = s.TotalValue.Div(s.TotalStock)
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// =============================================================================
// FORECASTING INPUTS
// =============================================================================

type DailyUsage struct {
	Date     time.Time // UTC midnight
	Quantity decimal.Decimal
}

// UsageHistory is the daily quantity of item consumed by production, oldest
// first. Reverted runs are excluded.
func (q *Queries) UsageHistory(ctx context.Context, item ledger.ItemID) ([]DailyUsage, error) {
	if _, err := q.store.GetItem(ctx, item); err != nil {
		return nil, err
	}
	logs, err := q.store.LogsSince(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load production logs: %w", err)
	}
	reverted, err := q.revertedRuns(ctx)
	if err != nil {
		return nil, err
	}

	byDay := make(map[time.Time]decimal.Decimal)
	for _, l := range logs {
		if l.InputItemID != item || reverted[l.RunID] {
			continue
		}
		d := startOfDay(l.CreatedAt)
		byDay[d] = byDay[d].Add(l.QuantityUsed)
	}

	out := make([]DailyUsage, 0, len(byDay))
	for d, qty := range byDay {
		out = append(out, DailyUsage{Date: d, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (q *Queries) revertedRuns(ctx context.Context) (map[ledger.RunID]bool, error) {
	runs, err := q.store.ListRuns(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make(map[ledger.RunID]bool)
	for _, r := range runs {
		if r.Reverted() {
			out[r.ID] = true
		}
	}
	return out, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// DASHBOARD
// =============================================================================

type Dashboard struct {
	LowStockItems        int
	TodaysProductionCost decimal.Decimal
	Invoices             int
	WasteValueWeek       decimal.Decimal
}

// Dashboard aggregates the headline figures as of now.
func (q *Queries) Dashboard(ctx context.Context, now time.Time) (*Dashboard, error) {
	items, err := q.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	d := &Dashboard{}
	for _, it := range items {
		stock, err := q.CurrentStock(ctx, it.ID)
		if err != nil {
			return nil, err
		}
		if stock.LessThan(q.lowStock) {
			d.LowStockItems++
		}
	}

	logs, err := q.store.LogsSince(ctx, startOfDay(now))
	if err != nil {
		return nil, fmt.Errorf("load production logs: %w", err)
	}
	reverted, err := q.revertedRuns(ctx)
	if err != nil {
		return nil, err
	}
	d.TodaysProductionCost = decimal.Zero
	for _, l := range logs {
		if reverted[l.RunID] {
			continue
		}
		b, err := q.store.GetBatch(ctx, l.InputBatchID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				continue
			}
			return nil, err
		}
		d.TodaysProductionCost = d.TodaysProductionCost.Add(l.QuantityUsed.Mul(b.UnitCost))
	}

	invoices, err := q.store.ListInvoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	d.Invoices = len(invoices)

	waste, err := q.store.WasteSince(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		return nil, fmt.Errorf("load waste: %w", err)
	}
	d.WasteValueWeek = decimal.Zero
	for _, w := range waste {
		d.WasteValueWeek = d.WasteValueWeek.Add(w.CostLoss)
	}
	return d, nil
}

// =============================================================================
// LISTINGS
// =============================================================================

func (q *Queries) ListBatches(ctx context.Context, filter ledger.BatchFilter) ([]ledger.Batch, error) {
	return q.store.ListBatches(ctx, filter)
}

func (q *Queries) ListRuns(ctx context.Context, limit int) ([]ledger.ProductionRun, error) {
	return q.store.ListRuns(ctx, limit)
}

type RunDetail struct {
	Run  ledger.ProductionRun
	Logs []ledger.ProductionLog
}

func (q *Queries) GetRun(ctx context.Context, id ledger.RunID) (*RunDetail, error) {
	run, err := q.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	logs, err := q.store.LogsByRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load production logs: %w", err)
	}
	return &RunDetail{Run: *run, Logs: logs}, nil
}

func (q *Queries) ListInvoices(ctx context.Context) ([]ledger.Invoice, error) {
	return q.store.ListInvoices(ctx)
}
