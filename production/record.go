/*
Package production records production runs and reverts them.

RECORD:
  1. Resolve the output item and expand its recipe (recipe.Requirements)
  2. Lock the output item and every ingredient item
  3. Plan every ingredient (FIFO or the caller's batch); shortfalls are
     collected across all ingredients before anything is committed
  4. Commit all plans
  5. Output unit cost = sum(per-unit quantity x weighted cost actually drawn)
  6. Create the output batch (provenance = this run)
  7. Store the run and one log row per consumed input batch

REVERT:
  See revert.go.

Both run inside a single ledger.Atomically call, so a rejected run leaves no
trace.
*/
package production

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/batch-ledger/ledger"
	"github.com/warp/batch-ledger/recipe"
)

// =============================================================================
// RECORDER
// =============================================================================

type Recorder struct {
	ledger *ledger.Ledger
	graph  *recipe.Graph
	log    zerolog.Logger
}

func NewRecorder(l *ledger.Ledger, g *recipe.Graph) *Recorder {
	return &Recorder{ledger: l, graph: g, log: l.Logger()}
}

// Request asks for Quantity units of OutputItemID. ManualBatches pins an
// ingredient item to one batch, which must then cover that ingredient's whole
// demand; other ingredients are drawn FIFO.
type Request struct {
	OutputItemID  ledger.ItemID
	Quantity      decimal.Decimal
	ManualBatches map[ledger.ItemID]ledger.BatchID
}

// IngredientUsage is what one ingredient contributed to a run.
type IngredientUsage struct {
	ItemID       ledger.ItemID
	PerUnit      decimal.Decimal
	QuantityUsed decimal.Decimal
	UnitCost     decimal.Decimal // weighted over the batches drawn
	Cost         decimal.Decimal
	Batches      []ledger.Allocation
}

type Result struct {
	RunID            ledger.RunID
	OutputItemID     ledger.ItemID
	OutputBatchID    ledger.BatchID
	QuantityProduced decimal.Decimal
	UnitCost         decimal.Decimal
	ExpiresAt        *time.Time
	IngredientsUsed  []IngredientUsage
}

// Record produces req.Quantity of the output item.
func (r *Recorder) Record(ctx context.Context, req Request) (*Result, error) {
	if !req.Quantity.IsPositive() {
		return nil, ledger.Invalid("quantity", "must be positive, got %s", req.Quantity)
	}

	store := r.ledger.Store()
	output, err := store.GetItem(ctx, req.OutputItemID)
	if err != nil {
		return nil, err
	}
	reqs, err := r.graph.Requirements(ctx, output.ID, req.Quantity)
	if err != nil {
		return nil, err
	}

	inRecipe := make(map[ledger.ItemID]bool, len(reqs))
	scope := ledger.Scope{Items: []ledger.ItemID{output.ID}}
	for _, rq := range reqs {
		inRecipe[rq.InputItemID] = true
		scope.Items = append(scope.Items, rq.InputItemID)
	}
	for itemID := range req.ManualBatches {
		if !inRecipe[itemID] {
			return nil, ledger.Invalid("manual_batches", "%s is not an ingredient of %s", itemID, output.ID)
		}
	}

	var res *Result
	err = r.ledger.Atomically(ctx, scope, func(tx *ledger.Tx) error {
		plans, err := planAll(ctx, tx, reqs, req.ManualBatches)
		if err != nil {
			return err
		}
		if err := tx.CommitDeduction(ctx, plans...); err != nil {
			return err
		}

		now := tx.Now()
		runID := ledger.NewRunID()

		usage := make([]IngredientUsage, len(reqs))
		unitCost := decimal.Zero
		for i, rq := range reqs {
			p := plans[i]
			weighted := p.WeightedUnitCost()
			unitCost = unitCost.Add(rq.PerUnit.Mul(weighted))
			usage[i] = IngredientUsage{
				ItemID:       rq.InputItemID,
				PerUnit:      rq.PerUnit,
				QuantityUsed: p.Total(),
				UnitCost:     weighted,
				Cost:         p.Cost(),
				Batches:      p.Allocations,
			}
		}

		var expires *time.Time
		if output.ShelfLifeDays > 0 {
			e := now.AddDate(0, 0, output.ShelfLifeDays)
			expires = &e
		}

		batch, err := tx.CreateBatch(ctx, ledger.NewBatch{
			ItemID:    output.ID,
			Quantity:  req.Quantity,
			UnitCost:  unitCost,
			ExpiresAt: expires,
			Source:    ledger.FromRun(runID),
		})
		if err != nil {
			return err
		}

		if err := tx.Store().InsertRun(ctx, ledger.ProductionRun{
			ID:               runID,
			OutputItemID:     output.ID,
			OutputBatchID:    batch.ID,
			QuantityProduced: req.Quantity,
			UnitCost:         unitCost,
			CreatedAt:        now,
		}); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		var logs []ledger.ProductionLog
		for _, p := range plans {
			for _, a := range p.Allocations {
				logs = append(logs, ledger.ProductionLog{
					ID:            ledger.NewLogID(),
					RunID:         runID,
					OutputBatchID: batch.ID,
					InputBatchID:  a.BatchID,
					InputItemID:   a.ItemID,
					QuantityUsed:  a.Quantity,
					CreatedAt:     now,
				})
			}
		}
		if err := tx.Store().AppendProductionLogs(ctx, logs); err != nil {
			return fmt.Errorf("append production logs: %w", err)
		}

		res = &Result{
			RunID:            runID,
			OutputItemID:     output.ID,
			OutputBatchID:    batch.ID,
			QuantityProduced: req.Quantity,
			UnitCost:         unitCost,
			ExpiresAt:        expires,
			IngredientsUsed:  usage,
		}
		return nil
	})
	if err != nil {
		r.log.Info().Err(err).Str("item_id", string(req.OutputItemID)).
			Str("quantity", req.Quantity.String()).Msg("production rejected")
		return nil, err
	}

	r.log.Info().Str("run_id", string(res.RunID)).Str("item_id", string(res.OutputItemID)).
		Str("batch_id", string(res.OutputBatchID)).Str("quantity", res.QuantityProduced.String()).
		Str("unit_cost", res.UnitCost.StringFixed(ledger.Precision)).Msg("production recorded")
	return res, nil
}

// planAll builds one plan per requirement, in requirement order. Stock
// shortfalls are merged into one error so the caller sees every short
// ingredient at once; any other failure is returned as is.
func planAll(ctx context.Context, tx *ledger.Tx, reqs []recipe.Requirement, manual map[ledger.ItemID]ledger.BatchID) ([]ledger.Plan, error) {
	plans := make([]ledger.Plan, len(reqs))
	var shortfalls []ledger.Shortfall

	for i, rq := range reqs {
		strategy := ledger.FIFO()
		if batchID, ok := manual[rq.InputItemID]; ok {
			strategy = ledger.Manual(map[ledger.BatchID]decimal.Decimal{batchID: rq.Needed})
		}
		p, err := tx.SelectForDeduction(ctx, rq.InputItemID, rq.Needed, strategy)
		if err != nil {
			if short, ok := asShortage(err); ok {
				shortfalls = append(shortfalls, short.Shortfalls...)
				continue
			}
			return nil, err
		}
		plans[i] = p
	}

	if len(shortfalls) > 0 {
		sort.SliceStable(shortfalls, func(i, j int) bool { return shortfalls[i].ItemID < shortfalls[j].ItemID })
		return nil, &ledger.InsufficientStockError{Shortfalls: shortfalls}
	}
	return plans, nil
}
