/*
Package ledger provides the batch-level inventory ledger.

PURPOSE:
  Every unit of stock lives in a discrete batch with its own cost basis and
  expiration. The ledger plans allocations against those batches (FIFO or
  caller-chosen), commits them atomically, and can restore a committed plan
  exactly. Production, waste, revert and invoice deletion all go through the
  same plan/commit discipline implemented here.

KEY CONCEPTS IN THIS FILE (types.go):
  - Item:        catalog entity (read-only to the ledger)
  - Batch:       a discrete quantity of one item, with provenance
  - ProductionRun / ProductionLog: traceability of production
  - WasteLog:    recorded loss against a batch
  - Invoice:     supplier delivery that creates batches

DESIGN PRINCIPLES:
  1. Precision: all quantities and costs are decimal.Decimal
  2. Provenance: a batch comes from exactly one invoice or one production run
  3. Append-only logs: production and waste logs are never edited or removed
  4. Soft exhaustion: batches reach zero, they are not deleted

SEE ALSO:
  - allocation.go: plans and strategies
  - ledger.go: the atomic commit path
  - errors.go: error kinds
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places used when presenting quantities
// and costs. Internal arithmetic is never rounded.
const Precision int32 = 4

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID string
type BatchID string
type RunID string
type LogID string
type InvoiceID string
type WasteID string

// =============================================================================
// ITEM - Catalog entity
// =============================================================================

// ItemType is the tier of an item in the recipe hierarchy.
type ItemType string

const (
	ItemRaw     ItemType = "Raw"
	ItemPrepped ItemType = "Prepped"
	ItemDish    ItemType = "Dish"
)

// Tier orders item types: Raw < Prepped < Dish. Unknown types return -1.
func (t ItemType) Tier() int {
	switch t {
	case ItemRaw:
		return 0
	case ItemPrepped:
		return 1
	case ItemDish:
		return 2
	}
	return -1
}

func (t ItemType) Valid() bool { return t.Tier() >= 0 }

// Item is owned by the external catalog. The ledger only reads it.
type Item struct {
	ID            ItemID
	Name          string
	Unit          string
	Type          ItemType
	ShelfLifeDays int
}

// =============================================================================
// BATCH - Discrete stock with its own cost basis
// =============================================================================

// Provenance records the single creation event a batch traces back to.
type Provenance struct {
	InvoiceID InvoiceID
	RunID     RunID
}

func FromInvoice(id InvoiceID) Provenance { return Provenance{InvoiceID: id} }
func FromRun(id RunID) Provenance         { return Provenance{RunID: id} }

// Valid reports whether exactly one source is set.
func (p Provenance) Valid() bool {
	return (p.InvoiceID == "") != (p.RunID == "")
}

type Batch struct {
	ID              BatchID
	ItemID          ItemID
	QuantityInitial decimal.Decimal
	QuantityCurrent decimal.Decimal
	UnitCost        decimal.Decimal
	ExpiresAt       *time.Time
	Source          Provenance
	Voided          bool
	CreatedAt       time.Time
}

// Active batches can be allocated.
func (b Batch) Active() bool {
	return !b.Voided && b.QuantityCurrent.IsPositive()
}

// Intact reports whether nothing has been drawn from the batch.
func (b Batch) Intact() bool {
	return !b.Voided && b.QuantityCurrent.Equal(b.QuantityInitial)
}

// Value is the cost of the stock still in the batch.
func (b Batch) Value() decimal.Decimal {
	return b.QuantityCurrent.Mul(b.UnitCost)
}

// BatchFilter narrows ListBatches. Zero value lists everything.
type BatchFilter struct {
	ItemID     ItemID
	InvoiceID  InvoiceID
	ActiveOnly bool
}

// =============================================================================
// PRODUCTION - Runs and their per-batch consumption rows
// =============================================================================

type ProductionRun struct {
	ID               RunID
	OutputItemID     ItemID
	OutputBatchID    BatchID
	QuantityProduced decimal.Decimal
	UnitCost         decimal.Decimal
	CreatedAt        time.Time
	RevertedAt       *time.Time
}

func (r ProductionRun) Reverted() bool { return r.RevertedAt != nil }

// ProductionLog is one (output batch, consumed input batch) pair.
type ProductionLog struct {
	ID            LogID
	RunID         RunID
	OutputBatchID BatchID
	InputBatchID  BatchID
	InputItemID   ItemID
	QuantityUsed  decimal.Decimal
	CreatedAt     time.Time
}

// =============================================================================
// WASTE
// =============================================================================

type WasteReason string

const (
	WasteSpoiled WasteReason = "Spoiled"
	WasteDropped WasteReason = "Dropped"
	WasteBurned  WasteReason = "Burned"
	WasteTheft   WasteReason = "Theft"
	WasteExpired WasteReason = "Expired"
)

func (r WasteReason) Valid() bool {
	switch r {
	case WasteSpoiled, WasteDropped, WasteBurned, WasteTheft, WasteExpired:
		return true
	}
	return false
}

type WasteLog struct {
	ID        WasteID
	BatchID   BatchID
	ItemID    ItemID
	Quantity  decimal.Decimal
	Reason    WasteReason
	CostLoss  decimal.Decimal
	CreatedAt time.Time
}

// =============================================================================
// INVOICE
// =============================================================================

type Invoice struct {
	ID           InvoiceID
	SupplierName string
	TotalCost    decimal.Decimal
	InvoiceDate  *time.Time
	CreatedAt    time.Time
}

// =============================================================================
// RECIPE EDGE
// =============================================================================

// Composition is one ingredient edge: producing one unit of OutputItemID
// requires QuantityRequired of InputItemID, expressed in Unit (empty means
// the input item's own unit).
type Composition struct {
	OutputItemID     ItemID
	InputItemID      ItemID
	QuantityRequired decimal.Decimal
	Unit             string
}
