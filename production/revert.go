package production

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/warp/batch-ledger/ledger"
)

// =============================================================================
// REVERTER - Exact inverse of a production run
// =============================================================================
//
// A run can be reverted only while no non-reverted run has drawn on its
// output batch (else PartialConsumptionConflict). Waste and expiry write-offs
// against the output do not block: voiding zeroes whatever is left.
//
// Consumed outputs are never cascaded; the caller has to revert the
// downstream runs first.

type Reverter struct {
	ledger *ledger.Ledger
	log    zerolog.Logger
}

func NewReverter(l *ledger.Ledger) *Reverter {
	return &Reverter{ledger: l, log: l.Logger()}
}

type RevertResult struct {
	RunID         ledger.RunID
	OutputBatchID ledger.BatchID
	Restored      []ledger.Allocation
}

// Revert restores every input batch of the run and voids its output batch.
func (r *Reverter) Revert(ctx context.Context, runID ledger.RunID) (*RevertResult, error) {
	store := r.ledger.Store()
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Reverted() {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAlreadyReverted, runID)
	}
	logs, err := store.LogsByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load production logs: %w", err)
	}

	scope := ledger.Scope{
		Items:   []ledger.ItemID{run.OutputItemID},
		Batches: []ledger.BatchID{run.OutputBatchID},
	}
	for _, l := range logs {
		scope.Items = append(scope.Items, l.InputItemID)
	}

	var res *RevertResult
	err = r.ledger.Atomically(ctx, scope, func(tx *ledger.Tx) error {
		s := tx.Store()

		// Re-read under lock: a concurrent revert may have won.
		run, err := s.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if run.Reverted() {
			return fmt.Errorf("%w: %s", ledger.ErrAlreadyReverted, runID)
		}

		if err := checkUnconsumed(ctx, s, run); err != nil {
			return err
		}

		plans := plansFromLogs(logs)
		if err := tx.RestoreDeduction(ctx, plans...); err != nil {
			return err
		}
		if err := tx.VoidBatch(ctx, run.OutputBatchID); err != nil {
			return err
		}
		if err := s.MarkRunReverted(ctx, runID, tx.Now()); err != nil {
			return fmt.Errorf("mark run reverted: %w", err)
		}

		res = &RevertResult{RunID: runID, OutputBatchID: run.OutputBatchID}
		for _, p := range plans {
			res.Restored = append(res.Restored, p.Allocations...)
		}
		return nil
	})
	if err != nil {
		r.log.Info().Err(err).Str("run_id", string(runID)).Msg("revert rejected")
		return nil, err
	}

	r.log.Info().Str("run_id", string(runID)).Str("batch_id", string(res.OutputBatchID)).
		Int("restored", len(res.Restored)).Msg("production reverted")
	return res, nil
}

func checkUnconsumed(ctx context.Context, s ledger.Store, run *ledger.ProductionRun) error {
	downstream, err := s.LogsByInputBatch(ctx, run.OutputBatchID)
	if err != nil {
		return fmt.Errorf("load downstream logs: %w", err)
	}
	seen := make(map[ledger.RunID]bool)
	var consumers []ledger.RunID
	for _, l := range downstream {
		if seen[l.RunID] {
			continue
		}
		seen[l.RunID] = true
		other, err := s.GetRun(ctx, l.RunID)
		if err != nil {
			return err
		}
		if !other.Reverted() {
			consumers = append(consumers, l.RunID)
		}
	}
	if len(consumers) > 0 {
		sort.Slice(consumers, func(i, j int) bool { return consumers[i] < consumers[j] })
		return &ledger.ConsumptionConflictError{RunID: run.ID, OutputBatchID: run.OutputBatchID, ConsumedBy: consumers}
	}
	return nil
}

// plansFromLogs turns a run's log rows back into per-item plans.
func plansFromLogs(logs []ledger.ProductionLog) []ledger.Plan {
	idx := make(map[ledger.ItemID]int)
	var plans []ledger.Plan
	for _, l := range logs {
		i, ok := idx[l.InputItemID]
		if !ok {
			i = len(plans)
			idx[l.InputItemID] = i
			plans = append(plans, ledger.Plan{ItemID: l.InputItemID})
		}
		plans[i].Needed = plans[i].Needed.Add(l.QuantityUsed)
		plans[i].Allocations = append(plans[i].Allocations, ledger.Allocation{
			BatchID:  l.InputBatchID,
			ItemID:   l.InputItemID,
			Quantity: l.QuantityUsed,
		})
	}
	return plans
}

func asShortage(err error) (*ledger.InsufficientStockError, bool) {
	var short *ledger.InsufficientStockError
	if errors.As(err, &short) {
		return short, true
	}
	return nil, false
}
