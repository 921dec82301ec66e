package intake

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/batch-ledger/ledger"
	"github.com/warp/batch-ledger/units"
)

// =============================================================================
// INVOICES
// =============================================================================
//
// Creating an invoice creates one batch per line. Deleting it takes those
// batches back, which is only allowed while every one of them is untouched
// and no production log refers to it.

type InvoiceIntake struct {
	ledger *ledger.Ledger
	units  units.Converter
	log    zerolog.Logger
}

func NewInvoiceIntake(l *ledger.Ledger, conv units.Converter) *InvoiceIntake {
	if conv == nil {
		conv = units.Default()
	}
	return &InvoiceIntake{ledger: l, units: conv, log: l.Logger()}
}

// Line is one structured invoice line. Unit is the supplier's unit; empty
// means the item's own unit. ShortShipment marks a line where less arrived
// than was billed: Quantity is what arrived, the invoice total is kept.
type Line struct {
	ItemID        ledger.ItemID
	Quantity      decimal.Decimal
	Unit          string
	UnitCost      decimal.Decimal
	ShortShipment bool
}

type InvoiceInput struct {
	SupplierName string
	InvoiceDate  *time.Time
	TotalCost    decimal.Decimal // zero means sum of lines
	Lines        []Line
}

type InvoiceResult struct {
	Invoice ledger.Invoice
	Batches []ledger.Batch
	// CreditNeeded is set when any line was a short shipment.
	CreditNeeded bool
}

type preparedLine struct {
	item     *ledger.Item
	quantity decimal.Decimal
	unitCost decimal.Decimal
}

// CreateFromInvoiceLines validates every line, then stores the invoice and
// its batches in one transaction.
func (in *InvoiceIntake) CreateFromInvoiceLines(ctx context.Context, input InvoiceInput) (*InvoiceResult, error) {
	if strings.TrimSpace(input.SupplierName) == "" {
		return nil, ledger.Invalid("supplier_name", "is required")
	}
	if len(input.Lines) == 0 {
		return nil, ledger.Invalid("lines", "at least one line is required")
	}
	if input.TotalCost.IsNegative() {
		return nil, ledger.Invalid("total_cost", "must not be negative")
	}

	store := in.ledger.Store()
	prepared := make([]preparedLine, 0, len(input.Lines))
	scope := ledger.Scope{}
	lineTotal := decimal.Zero
	credit := false
	for i, l := range input.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if !l.Quantity.IsPositive() {
			return nil, ledger.Invalid(field+".quantity", "must be positive, got %s", l.Quantity)
		}
		if l.UnitCost.IsNegative() {
			return nil, ledger.Invalid(field+".unit_cost", "must not be negative, got %s", l.UnitCost)
		}
		item, err := store.GetItem(ctx, l.ItemID)
		if err != nil {
			return nil, err
		}

		qty, err := in.units.Convert(l.Quantity, l.Unit, item.Unit)
		if err != nil {
			return nil, ledger.Invalid(field+".unit", "%v", err)
		}
		if !qty.IsPositive() {
			return nil, ledger.Invalid(field+".quantity", "converts to %s %s", qty, item.Unit)
		}
		lineValue := l.Quantity.Mul(l.UnitCost)
		prepared = append(prepared, preparedLine{
			item:     item,
			quantity: qty,
			unitCost: lineValue.Div(qty),
		})
		scope.Items = append(scope.Items, item.ID)
		lineTotal = lineTotal.Add(lineValue)
		credit = credit || l.ShortShipment
	}

	inv := ledger.Invoice{
		ID:           ledger.NewInvoiceID(),
		SupplierName: strings.TrimSpace(input.SupplierName),
		TotalCost:    input.TotalCost,
		InvoiceDate:  input.InvoiceDate,
	}
	if inv.TotalCost.IsZero() {
		inv.TotalCost = lineTotal
	}

	res := &InvoiceResult{CreditNeeded: credit}
	err := in.ledger.Atomically(ctx, scope, func(tx *ledger.Tx) error {
		now := tx.Now()
		inv.CreatedAt = now
		if err := tx.Store().InsertInvoice(ctx, inv); err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}
		for _, p := range prepared {
			var expires *time.Time
			if p.item.ShelfLifeDays > 0 {
				e := now.AddDate(0, 0, p.item.ShelfLifeDays)
				expires = &e
			}
			b, err := tx.CreateBatch(ctx, ledger.NewBatch{
				ItemID:    p.item.ID,
				Quantity:  p.quantity,
				UnitCost:  p.unitCost,
				ExpiresAt: expires,
				Source:    ledger.FromInvoice(inv.ID),
			})
			if err != nil {
				return err
			}
			res.Batches = append(res.Batches, *b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Invoice = inv

	level := zerolog.InfoLevel
	if credit {
		level = zerolog.WarnLevel
	}
	in.log.WithLevel(level).Str("invoice_id", string(inv.ID)).Str("supplier", inv.SupplierName).
		Int("lines", len(res.Batches)).Bool("credit_needed", credit).Msg("invoice recorded")
	return res, nil
}

// DeleteInvoice removes an invoice and its batches, or fails with
// ErrInvoiceInUse naming the batches already drawn on.
func (in *InvoiceIntake) DeleteInvoice(ctx context.Context, id ledger.InvoiceID) error {
	store := in.ledger.Store()
	if _, err := store.GetInvoice(ctx, id); err != nil {
		return err
	}
	batches, err := store.ListBatches(ctx, ledger.BatchFilter{InvoiceID: id})
	if err != nil {
		return fmt.Errorf("list batches: %w", err)
	}

	scope := ledger.Scope{}
	for _, b := range batches {
		scope.Items = append(scope.Items, b.ItemID)
		scope.Batches = append(scope.Batches, b.ID)
	}

	err = in.ledger.Atomically(ctx, scope, func(tx *ledger.Tx) error {
		s := tx.Store()
		if _, err := s.GetInvoice(ctx, id); err != nil {
			return err
		}
		current, err := s.ListBatches(ctx, ledger.BatchFilter{InvoiceID: id})
		if err != nil {
			return fmt.Errorf("list batches: %w", err)
		}

		var inUse []ledger.BatchID
		for _, b := range current {
			logs, err := s.LogsByInputBatch(ctx, b.ID)
			if err != nil {
				return fmt.Errorf("load production logs: %w", err)
			}
			if !b.Intact() || len(logs) > 0 {
				inUse = append(inUse, b.ID)
			}
		}
		if len(inUse) > 0 {
			sort.Slice(inUse, func(i, j int) bool { return inUse[i] < inUse[j] })
			return &ledger.InvoiceInUseError{InvoiceID: id, BatchIDs: inUse}
		}

		for _, b := range current {
			if err := tx.DeleteBatch(ctx, b.ID); err != nil {
				return err
			}
		}
		if err := s.DeleteInvoice(ctx, id); err != nil {
			return fmt.Errorf("delete invoice: %w", err)
		}
		return nil
	})
	if err != nil {
		in.log.Info().Err(err).Str("invoice_id", string(id)).Msg("invoice deletion rejected")
		return err
	}

	in.log.Info().Str("invoice_id", string(id)).Int("batches", len(batches)).Msg("invoice deleted")
	return nil
}
