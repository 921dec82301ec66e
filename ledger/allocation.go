/*
allocation.go - Allocation plans and selection strategies

PURPOSE:
  A Plan says which batches an item's demand is drawn from and how much of
  each. Plans are computed against current state without mutating anything;
  Tx.CommitDeduction applies them and Tx.RestoreDeduction undoes them.

STRATEGIES:
  FIFO:    expiration ascending (nulls last), then batch id ascending.
           Voided and exhausted batches are skipped.
  Manual:  caller picks batch -> amount. Amounts must be positive, belong to
           the item, and sum exactly to the demand.

EXAMPLE:
  B1(qty=3, exp=d1), B2(qty=5, exp=d2>d1), needed=4
  FIFO plan = [(B1, 3), (B2, 1)]

SEE ALSO:
  - ledger.go: Tx.SelectForDeduction, Tx.CommitDeduction
*/
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PLAN
// =============================================================================

// Allocation is one batch's share of a plan. UnitCost is copied from the
// batch at planning time so the plan carries its own cost basis.
type Allocation struct {
	BatchID  BatchID
	ItemID   ItemID
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
}

func (a Allocation) Cost() decimal.Decimal {
	return a.Quantity.Mul(a.UnitCost)
}

type Plan struct {
	ItemID      ItemID
	Needed      decimal.Decimal
	Allocations []Allocation
}

// Total is the quantity drawn across all batches.
func (p Plan) Total() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.Quantity)
	}
	return total
}

// Cost is the actual cost of the batches drawn.
func (p Plan) Cost() decimal.Decimal {
	cost := decimal.Zero
	for _, a := range p.Allocations {
		cost = cost.Add(a.Cost())
	}
	return cost
}

// WeightedUnitCost is Cost / Total, or zero for an empty plan.
func (p Plan) WeightedUnitCost() decimal.Decimal {
	total := p.Total()
	if total.IsZero() {
		return decimal.Zero
	}
	return p.Cost().Div(total)
}

// =============================================================================
// STRATEGY
// =============================================================================

// Strategy selects batches for a demand. The zero value is FIFO.
type Strategy struct {
	picks map[BatchID]decimal.Decimal
}

func FIFO() Strategy { return Strategy{} }

// Manual draws exactly the given amounts from the given batches.
func Manual(picks map[BatchID]decimal.Decimal) Strategy {
	return Strategy{picks: picks}
}

func (s Strategy) IsManual() bool { return s.picks != nil }

// =============================================================================
// SELECTION (pure)
// =============================================================================

// SortFIFO orders batches for consumption.
func SortFIFO(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		return fifoLess(batches[i], batches[j])
	})
}

func fifoLess(a, b Batch) bool {
	switch {
	case a.ExpiresAt == nil && b.ExpiresAt != nil:
		return false
	case a.ExpiresAt != nil && b.ExpiresAt == nil:
		return true
	case a.ExpiresAt != nil && b.ExpiresAt != nil && !a.ExpiresAt.Equal(*b.ExpiresAt):
		return a.ExpiresAt.Before(*b.ExpiresAt)
	}
	return a.ID < b.ID
}

// planFIFO walks batches in FIFO order until the demand is covered.
// batches must all belong to itemID.
func planFIFO(itemID ItemID, needed decimal.Decimal, batches []Batch) (Plan, error) {
	ordered := make([]Batch, 0, len(batches))
	available := decimal.Zero
	for _, b := range batches {
		if b.Active() {
			ordered = append(ordered, b)
			available = available.Add(b.QuantityCurrent)
		}
	}
	if available.LessThan(needed) {
		return Plan{}, &InsufficientStockError{Shortfalls: []Shortfall{{
			ItemID: itemID, Needed: needed, Available: available,
		}}}
	}
	SortFIFO(ordered)

	plan := Plan{ItemID: itemID, Needed: needed}
	remaining := needed
	for _, b := range ordered {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, b.QuantityCurrent)
		plan.Allocations = append(plan.Allocations, Allocation{
			BatchID:  b.ID,
			ItemID:   itemID,
			Quantity: take,
			UnitCost: b.UnitCost,
		})
		remaining = remaining.Sub(take)
	}
	return plan, nil
}

// planManual validates caller picks against the picked batches.
// Allocations come out in FIFO order so logs are deterministic.
func planManual(itemID ItemID, needed decimal.Decimal, picks map[BatchID]decimal.Decimal, batches map[BatchID]Batch) (Plan, error) {
	if len(picks) == 0 {
		return Plan{}, Invalid("batches", "manual selection for item %s is empty", itemID)
	}

	sum := decimal.Zero
	picked := make([]Batch, 0, len(picks))
	var shortfalls []Shortfall
	for id, qty := range picks {
		if !qty.IsPositive() {
			return Plan{}, Invalid("batches", "amount for batch %s must be positive", id)
		}
		b, ok := batches[id]
		if !ok {
			return Plan{}, NotFound("batch", id)
		}
		if b.ItemID != itemID {
			return Plan{}, Invalid("batches", "batch %s holds item %s, not %s", id, b.ItemID, itemID)
		}
		available := b.QuantityCurrent
		if b.Voided {
			available = decimal.Zero
		}
		if available.LessThan(qty) {
			shortfalls = append(shortfalls, Shortfall{
				ItemID: itemID, BatchID: id, Needed: qty, Available: available,
			})
		}
		sum = sum.Add(qty)
		picked = append(picked, b)
	}
	if !sum.Equal(needed) {
		return Plan{}, Invalid("batches", "manual amounts for item %s sum to %s, need %s", itemID, sum, needed)
	}
	if len(shortfalls) > 0 {
		sort.Slice(shortfalls, func(i, j int) bool { return shortfalls[i].BatchID < shortfalls[j].BatchID })
		return Plan{}, &InsufficientStockError{Shortfalls: shortfalls}
	}

	SortFIFO(picked)
	plan := Plan{ItemID: itemID, Needed: needed}
	for _, b := range picked {
		plan.Allocations = append(plan.Allocations, Allocation{
			BatchID:  b.ID,
			ItemID:   itemID,
			Quantity: picks[b.ID],
			UnitCost: b.UnitCost,
		})
	}
	return plan, nil
}
