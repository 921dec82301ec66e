// Package intake holds the thin stock mutators: waste entries, and invoices
// that create batches or take them back. Both go through ledger.Atomically
// like production does.
package intake

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/batch-ledger/ledger"
)

// =============================================================================
// WASTE
// =============================================================================

type WasteRecorder struct {
	ledger *ledger.Ledger
	log    zerolog.Logger
}

func NewWasteRecorder(l *ledger.Ledger) *WasteRecorder {
	return &WasteRecorder{ledger: l, log: l.Logger()}
}

type WasteRequest struct {
	BatchID  ledger.BatchID
	Quantity decimal.Decimal
	Reason   ledger.WasteReason
}

// LogWaste removes quantity from one batch and records the loss at the
// batch's unit cost.
func (w *WasteRecorder) LogWaste(ctx context.Context, req WasteRequest) (*ledger.WasteLog, error) {
	if !req.Quantity.IsPositive() {
		return nil, ledger.Invalid("quantity", "must be positive, got %s", req.Quantity)
	}
	if !req.Reason.Valid() {
		return nil, ledger.Invalid("reason", "unknown waste reason %q", req.Reason)
	}

	batch, err := w.ledger.Store().GetBatch(ctx, req.BatchID)
	if err != nil {
		return nil, err
	}

	scope := ledger.Scope{Items: []ledger.ItemID{batch.ItemID}, Batches: []ledger.BatchID{batch.ID}}
	var entry *ledger.WasteLog
	err = w.ledger.Atomically(ctx, scope, func(tx *ledger.Tx) error {
		plan, err := tx.SelectForDeduction(ctx, batch.ItemID, req.Quantity,
			ledger.Manual(map[ledger.BatchID]decimal.Decimal{batch.ID: req.Quantity}))
		if err != nil {
			return err
		}
		if err := tx.CommitDeduction(ctx, plan); err != nil {
			return err
		}

		entry = &ledger.WasteLog{
			ID:        ledger.NewWasteID(),
			BatchID:   batch.ID,
			ItemID:    batch.ItemID,
			Quantity:  req.Quantity,
			Reason:    req.Reason,
			CostLoss:  plan.Cost(),
			CreatedAt: tx.Now(),
		}
		if err := tx.Store().AppendWasteLog(ctx, *entry); err != nil {
			return fmt.Errorf("append waste log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.log.Info().Str("batch_id", string(entry.BatchID)).Str("item_id", string(entry.ItemID)).
		Str("quantity", entry.Quantity.String()).Str("reason", string(entry.Reason)).
		Str("cost_loss", entry.CostLoss.StringFixed(ledger.Precision)).Msg("waste logged")
	return entry, nil
}
