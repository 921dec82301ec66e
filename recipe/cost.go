package recipe

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/batch-ledger/ledger"
)

// =============================================================================
// COST ROLLUP
// =============================================================================
//
// Leaf items (Raw, or any item without edges) cost the weighted average of
// their active batches, else the last known batch cost, else zero.
// Composite cost = sum(converted quantity_required x cost(input)).
//
// Evaluation uses an explicit stack. Frames on the current path are in the
// visiting set; reaching one again is a cycle. The memo lives for one call.

// IngredientCost is one edge's contribution to a unit cost.
type IngredientCost struct {
	InputItemID ledger.ItemID
	Quantity    decimal.Decimal // per unit of output, in the input's unit
	UnitCost    decimal.Decimal
	Cost        decimal.Decimal
}

type CostBreakdown struct {
	ItemID      ledger.ItemID
	UnitCost    decimal.Decimal
	Ingredients []IngredientCost // empty for leaf items
}

// UnitCost rolls up the cost of one unit of item.
func (g *Graph) UnitCost(ctx context.Context, item ledger.ItemID) (decimal.Decimal, error) {
	r := g.newRollup(ctx)
	if err := r.run(item); err != nil {
		return decimal.Zero, err
	}
	return r.memo[item], nil
}

// Breakdown is UnitCost plus the first level of contributions.
func (g *Graph) Breakdown(ctx context.Context, item ledger.ItemID) (*CostBreakdown, error) {
	r := g.newRollup(ctx)
	if err := r.run(item); err != nil {
		return nil, err
	}
	out := &CostBreakdown{ItemID: item, UnitCost: r.memo[item]}
	for _, e := range r.edges[item] {
		qty, err := g.perUnit(ctx, g.store, e)
		if err != nil {
			return nil, err
		}
		unit := r.memo[e.InputItemID]
		out.Ingredients = append(out.Ingredients, IngredientCost{
			InputItemID: e.InputItemID,
			Quantity:    qty,
			UnitCost:    unit,
			Cost:        qty.Mul(unit),
		})
	}
	return out, nil
}

type rollup struct {
	g     *Graph
	ctx   context.Context
	memo  map[ledger.ItemID]decimal.Decimal
	edges map[ledger.ItemID][]ledger.Composition
}

func (g *Graph) newRollup(ctx context.Context) *rollup {
	return &rollup{
		g:     g,
		ctx:   ctx,
		memo:  make(map[ledger.ItemID]decimal.Decimal),
		edges: make(map[ledger.ItemID][]ledger.Composition),
	}
}

type frame struct {
	id       ledger.ItemID
	expanded bool
}

func (r *rollup) run(root ledger.ItemID) error {
	if _, err := r.g.store.GetItem(r.ctx, root); err != nil {
		return err
	}

	visiting := make(map[ledger.ItemID]bool)
	stack := []frame{{id: root}}

	path := func(closing ledger.ItemID) []ledger.ItemID {
		var p []ledger.ItemID
		for _, f := range stack {
			if f.expanded {
				p = append(p, f.id)
			}
		}
		return append(p, closing)
	}

	for len(stack) > 0 {
		top := len(stack) - 1
		f := stack[top]

		if _, done := r.memo[f.id]; done {
			stack = stack[:top]
			continue
		}

		if !f.expanded {
			if visiting[f.id] {
				return &ledger.CycleError{Path: path(f.id)}
			}
			edges, err := r.g.store.Compositions(r.ctx, f.id)
			if err != nil {
				return fmt.Errorf("load recipe: %w", err)
			}
			if len(edges) == 0 {
				cost, err := r.g.leafCost(r.ctx, f.id)
				if err != nil {
					return err
				}
				r.memo[f.id] = cost
				stack = stack[:top]
				continue
			}

			r.edges[f.id] = edges
			visiting[f.id] = true
			stack[top].expanded = true
			for i := len(edges) - 1; i >= 0; i-- {
				in := edges[i].InputItemID
				if visiting[in] {
					return &ledger.CycleError{Path: path(in)}
				}
				if _, done := r.memo[in]; !done {
					stack = append(stack, frame{id: in})
				}
			}
			continue
		}

		total := decimal.Zero
		for _, e := range r.edges[f.id] {
			qty, err := r.g.perUnit(r.ctx, r.g.store, e)
			if err != nil {
				return err
			}
			total = total.Add(qty.Mul(r.memo[e.InputItemID]))
		}
		r.memo[f.id] = total
		delete(visiting, f.id)
		stack = stack[:top]
	}
	return nil
}

// leafCost is the weighted average of active batches, falling back to the
// most recent batch's cost.
func (g *Graph) leafCost(ctx context.Context, item ledger.ItemID) (decimal.Decimal, error) {
	batches, err := g.store.ListBatches(ctx, ledger.BatchFilter{ItemID: item, ActiveOnly: true})
	if err != nil {
		return decimal.Zero, fmt.Errorf("list batches: %w", err)
	}
	if avg, ok := WeightedAverage(batches); ok {
		return avg, nil
	}
	latest, err := g.store.LatestBatch(ctx, item)
	if err != nil {
		return decimal.Zero, fmt.Errorf("latest batch: %w", err)
	}
	if latest == nil {
		return decimal.Zero, nil
	}
	return latest.UnitCost, nil
}

// WeightedAverage is sum(current x unit_cost) / sum(current) over active
// batches. ok is false when there is no active stock.
func WeightedAverage(batches []ledger.Batch) (avg decimal.Decimal, ok bool) {
	qty, value := decimal.Zero, decimal.Zero
	for _, b := range batches {
		if !b.Active() {
			continue
		}
		qty = qty.Add(b.QuantityCurrent)
		value = value.Add(b.Value())
	}
	if qty.IsZero() {
		return decimal.Zero, false
	}
	return value.Div(qty), true
}
