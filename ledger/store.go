/*
store.go - Persistence ports for the ledger

PURPOSE:
  Defines the interface between the ledger workflows and the database.
  Implementations: ledger/store (memory), store/sqlite, store/postgres.

KEY INTERFACES:
  Catalog:         read-only item lookups (external catalog collaborator)
  BatchStore:      batch rows; writes are only reached through Ledger
  RecipeStore:     ingredient edges
  RecordStore:     production runs/logs, waste logs, invoices
  Store:           all of the above
  TxStore:         Store + WithTx for atomic multi-table writes

APPEND-ONLY CONTRACT:
  production_logs and waste_logs have no update or delete methods.
  Runs are only ever marked reverted.

TRANSACTIONS:
  WithTx hands fn a Store bound to one database transaction. fn must use that
  Store only; calling back into the outer TxStore from inside fn may block
  (memory and SQLite stores serialize writers).

SEE ALSO:
  - ledger.go: Atomically, the only caller of WithTx for batch mutations
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// CATALOG - External item collaborator (read-only)
// =============================================================================

type Catalog interface {
	GetItem(ctx context.Context, id ItemID) (*Item, error)
	ListItems(ctx context.Context) ([]Item, error)
}

// CatalogWriter is used by seeding and tests; the engine never writes items.
type CatalogWriter interface {
	SaveItem(ctx context.Context, item Item) error
}

// =============================================================================
// BATCHES
// =============================================================================

type BatchStore interface {
	// GetBatch returns ErrNotFound (wrapped) if the batch does not exist.
	GetBatch(ctx context.Context, id BatchID) (*Batch, error)

	// ListBatches returns batches in FIFO order: expiration ascending with
	// nulls last, then batch id ascending.
	ListBatches(ctx context.Context, filter BatchFilter) ([]Batch, error)

	// LatestBatch returns the most recently created batch of an item, active or
	// not, or nil if the item never had one.
	LatestBatch(ctx context.Context, itemID ItemID) (*Batch, error)

	InsertBatch(ctx context.Context, b Batch) error

	// UpdateBatchQuantity sets quantity_current and the voided flag.
	UpdateBatchQuantity(ctx context.Context, b Batch) error

	// DeleteBatch physically removes a batch. Only used for untouched invoice
	// batches on invoice deletion.
	DeleteBatch(ctx context.Context, id BatchID) error
}

// =============================================================================
// RECIPES
// =============================================================================

type RecipeStore interface {
	// Compositions returns the edges of one output item ordered by input id.
	Compositions(ctx context.Context, outputID ItemID) ([]Composition, error)

	// AllCompositions returns every edge, ordered by output then input id.
	AllCompositions(ctx context.Context) ([]Composition, error)

	// UpsertComposition inserts or replaces the (output, input) edge.
	UpsertComposition(ctx context.Context, c Composition) error

	DeleteComposition(ctx context.Context, outputID, inputID ItemID) error
}

// =============================================================================
// RECORDS - Runs, logs, waste, invoices
// =============================================================================

type RecordStore interface {
	InsertRun(ctx context.Context, run ProductionRun) error
	GetRun(ctx context.Context, id RunID) (*ProductionRun, error)
	ListRuns(ctx context.Context, limit int) ([]ProductionRun, error)
	MarkRunReverted(ctx context.Context, id RunID, at time.Time) error

	// AppendProductionLogs persists rows atomically with the caller's tx.
	AppendProductionLogs(ctx context.Context, logs []ProductionLog) error
	LogsByRun(ctx context.Context, runID RunID) ([]ProductionLog, error)
	LogsByInputBatch(ctx context.Context, batchID BatchID) ([]ProductionLog, error)
	// LogsSince returns rows created at or after since, oldest first.
	LogsSince(ctx context.Context, since time.Time) ([]ProductionLog, error)

	AppendWasteLog(ctx context.Context, w WasteLog) error
	WasteSince(ctx context.Context, since time.Time) ([]WasteLog, error)

	InsertInvoice(ctx context.Context, inv Invoice) error
	GetInvoice(ctx context.Context, id InvoiceID) (*Invoice, error)
	ListInvoices(ctx context.Context) ([]Invoice, error)
	DeleteInvoice(ctx context.Context, id InvoiceID) error
}

// =============================================================================
// STORE - Everything, plus transactions
// =============================================================================

type Store interface {
	Catalog
	CatalogWriter
	BatchStore
	RecipeStore
	RecordStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
