/*
ledger.go - The single commit path for batch mutations

PURPOSE:
  Ledger is the only component that writes batches. Every workflow
  (production, revert, waste, invoice intake and deletion) calls
  Ledger.Atomically and does its work through the Tx it receives.

ATOMICALLY:
  1. Acquire the scope's locks (items sorted, then batches sorted)
  2. Open one store transaction
  3. Run fn with a Tx bound to that transaction
  4. Commit if fn returns nil, roll back otherwise
  5. Release locks

  Because plans are built before any commit and the store transaction rolls
  back on error, a rejected operation leaves no observable mutation.

INVARIANTS ENFORCED BY Tx:
  - 0 <= quantity_current <= quantity_initial for every batch
  - deductions strictly decrease, restorations strictly increase
  - unit_cost and provenance are set once at creation
  - a batch may only be mutated if its item is in the Tx scope

SEE ALSO:
  - allocation.go: plans and strategies
  - locks.go: per-item / per-batch locks
  - store.go: persistence ports
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store       TxStore
	locks       *Locks
	now         func() time.Time
	log         zerolog.Logger
	lockTimeout time.Duration
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithLockTimeout bounds how long Atomically waits for locks. Zero waits
// until the caller's context is done.
func WithLockTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.lockTimeout = d }
}

func New(store TxStore, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		locks: NewLocks(),
		now:   func() time.Time { return time.Now().UTC() },
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store gives read access outside a transaction. Writes must go through
// Atomically.
func (l *Ledger) Store() Store { return l.store }

func (l *Ledger) Now() time.Time { return l.now() }

func (l *Ledger) Logger() zerolog.Logger { return l.log }

// Atomically runs fn under the scope's locks inside one store transaction.
func (l *Ledger) Atomically(ctx context.Context, scope Scope, fn func(tx *Tx) error) error {
	lockCtx := ctx
	if l.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, l.lockTimeout)
		defer cancel()
	}

	release, err := l.locks.Acquire(lockCtx, scope)
	if err != nil {
		l.log.Warn().Err(err).Int("items", len(scope.Items)).Int("batches", len(scope.Batches)).
			Msg("lock wait abandoned")
		return err
	}
	defer release()

	return l.store.WithTx(ctx, func(s Store) error {
		return fn(&Tx{store: s, scope: scope, now: l.now(), log: l.log})
	})
}

// =============================================================================
// TX - Mutations within one Atomically call
// =============================================================================

// Tx is only valid inside the fn passed to Atomically.
type Tx struct {
	store Store
	scope Scope
	now   time.Time
	log   zerolog.Logger
}

// Store is the transaction-bound store. Records (runs, logs, invoices) are
// written through it; batch writes go through the Tx methods.
func (t *Tx) Store() Store { return t.store }

// Now is fixed for the whole transaction so every row shares a timestamp.
func (t *Tx) Now() time.Time { return t.now }

func (t *Tx) guard(itemID ItemID) error {
	if !t.scope.HasItem(itemID) {
		return fmt.Errorf("%w: item %s is not locked by this operation", ErrConcurrencyConflict, itemID)
	}
	return nil
}

// NewBatch describes a batch to create.
type NewBatch struct {
	ItemID    ItemID
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
	ExpiresAt *time.Time
	Source    Provenance
}

func (nb NewBatch) Validate() error {
	if nb.ItemID == "" {
		return Invalid("item_id", "is required")
	}
	if !nb.Quantity.IsPositive() {
		return Invalid("quantity", "must be positive, got %s", nb.Quantity)
	}
	if nb.UnitCost.IsNegative() {
		return Invalid("unit_cost", "must not be negative, got %s", nb.UnitCost)
	}
	if !nb.Source.Valid() {
		return Invalid("provenance", "exactly one of invoice or production run is required")
	}
	return nil
}

// CreateBatch inserts a full batch: quantity_current = quantity_initial.
func (t *Tx) CreateBatch(ctx context.Context, nb NewBatch) (*Batch, error) {
	if err := nb.Validate(); err != nil {
		return nil, err
	}
	if err := t.guard(nb.ItemID); err != nil {
		return nil, err
	}
	b := Batch{
		ID:              NewBatchID(),
		ItemID:          nb.ItemID,
		QuantityInitial: nb.Quantity,
		QuantityCurrent: nb.Quantity,
		UnitCost:        nb.UnitCost,
		ExpiresAt:       nb.ExpiresAt,
		Source:          nb.Source,
		CreatedAt:       t.now,
	}
	if err := t.store.InsertBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}
	t.log.Debug().Str("batch_id", string(b.ID)).Str("item_id", string(b.ItemID)).
		Str("quantity", b.QuantityInitial.String()).Msg("batch created")
	return &b, nil
}

// SelectForDeduction builds a plan for needed units of itemID. Nothing is
// mutated.
func (t *Tx) SelectForDeduction(ctx context.Context, itemID ItemID, needed decimal.Decimal, strategy Strategy) (Plan, error) {
	if !needed.IsPositive() {
		return Plan{}, Invalid("quantity", "must be positive, got %s", needed)
	}
	if err := t.guard(itemID); err != nil {
		return Plan{}, err
	}

	if !strategy.IsManual() {
		batches, err := t.store.ListBatches(ctx, BatchFilter{ItemID: itemID, ActiveOnly: true})
		if err != nil {
			return Plan{}, fmt.Errorf("list batches: %w", err)
		}
		return planFIFO(itemID, needed, batches)
	}

	batches := make(map[BatchID]Batch, len(strategy.picks))
	for id := range strategy.picks {
		b, err := t.store.GetBatch(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return Plan{}, fmt.Errorf("get batch: %w", err)
		}
		batches[id] = *b
	}
	return planManual(itemID, needed, strategy.picks, batches)
}

// loadForUpdate returns the current state of every batch the plans touch,
// with the per-batch total delta.
func (t *Tx) loadForUpdate(ctx context.Context, plans []Plan) ([]BatchID, map[BatchID]*Batch, map[BatchID]decimal.Decimal, error) {
	var order []BatchID
	batches := make(map[BatchID]*Batch)
	deltas := make(map[BatchID]decimal.Decimal)
	for _, p := range plans {
		for _, a := range p.Allocations {
			if !a.Quantity.IsPositive() {
				return nil, nil, nil, Invalid("quantity", "allocation for batch %s must be positive", a.BatchID)
			}
			if _, seen := batches[a.BatchID]; !seen {
				b, err := t.store.GetBatch(ctx, a.BatchID)
				if err != nil {
					if IsNotFound(err) {
						return nil, nil, nil, fmt.Errorf("%w: batch %s disappeared", ErrConcurrencyConflict, a.BatchID)
					}
					return nil, nil, nil, fmt.Errorf("get batch: %w", err)
				}
				if b.ItemID != a.ItemID {
					return nil, nil, nil, Invalid("plan", "batch %s holds item %s, not %s", b.ID, b.ItemID, a.ItemID)
				}
				if err := t.guard(b.ItemID); err != nil {
					return nil, nil, nil, err
				}
				batches[a.BatchID] = b
				deltas[a.BatchID] = decimal.Zero
				order = append(order, a.BatchID)
			}
			deltas[a.BatchID] = deltas[a.BatchID].Add(a.Quantity)
		}
	}
	return order, batches, deltas, nil
}

// CommitDeduction applies every plan or none. Each batch is re-checked
// against its current state; a plan that no longer fits fails with
// ErrConcurrencyConflict.
func (t *Tx) CommitDeduction(ctx context.Context, plans ...Plan) error {
	order, batches, deltas, err := t.loadForUpdate(ctx, plans)
	if err != nil {
		return err
	}
	for _, id := range order {
		b := batches[id]
		if b.Voided || b.QuantityCurrent.LessThan(deltas[id]) {
			return fmt.Errorf("%w: batch %s has %s, plan draws %s",
				ErrConcurrencyConflict, id, b.QuantityCurrent, deltas[id])
		}
	}
	for _, id := range order {
		b := batches[id]
		b.QuantityCurrent = b.QuantityCurrent.Sub(deltas[id])
		if err := t.store.UpdateBatchQuantity(ctx, *b); err != nil {
			return fmt.Errorf("update batch: %w", err)
		}
	}
	t.log.Debug().Int("batches", len(order)).Msg("deduction committed")
	return nil
}

// RestoreDeduction is the exact inverse of CommitDeduction. It fails with
// ErrRestoreOverflow if any batch would exceed its initial quantity or has
// been voided.
func (t *Tx) RestoreDeduction(ctx context.Context, plans ...Plan) error {
	order, batches, deltas, err := t.loadForUpdate(ctx, plans)
	if err != nil {
		return err
	}
	for _, id := range order {
		b := batches[id]
		if b.Voided {
			return fmt.Errorf("%w: batch %s is voided", ErrRestoreOverflow, id)
		}
		if b.QuantityCurrent.Add(deltas[id]).GreaterThan(b.QuantityInitial) {
			return fmt.Errorf("%w: batch %s has %s of %s, restoring %s",
				ErrRestoreOverflow, id, b.QuantityCurrent, b.QuantityInitial, deltas[id])
		}
	}
	for _, id := range order {
		b := batches[id]
		b.QuantityCurrent = b.QuantityCurrent.Add(deltas[id])
		if err := t.store.UpdateBatchQuantity(ctx, *b); err != nil {
			return fmt.Errorf("update batch: %w", err)
		}
	}
	t.log.Debug().Int("batches", len(order)).Msg("deduction restored")
	return nil
}

// VoidBatch zeroes a batch and makes it non-consumable.
func (t *Tx) VoidBatch(ctx context.Context, id BatchID) error {
	b, err := t.store.GetBatch(ctx, id)
	if err != nil {
		return err
	}
	if err := t.guard(b.ItemID); err != nil {
		return err
	}
	b.QuantityCurrent = decimal.Zero
	b.Voided = true
	if err := t.store.UpdateBatchQuantity(ctx, *b); err != nil {
		return fmt.Errorf("void batch: %w", err)
	}
	return nil
}

// DeleteBatch removes an untouched batch. Anything else fails with
// ErrInvoiceInUse, since invoice deletion is the only caller.
func (t *Tx) DeleteBatch(ctx context.Context, id BatchID) error {
	b, err := t.store.GetBatch(ctx, id)
	if err != nil {
		return err
	}
	if err := t.guard(b.ItemID); err != nil {
		return err
	}
	if !b.Intact() {
		return fmt.Errorf("%w: batch %s is not intact", ErrInvoiceInUse, id)
	}
	if err := t.store.DeleteBatch(ctx, id); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	return nil
}
