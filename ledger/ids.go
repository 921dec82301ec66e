package ledger

import "github.com/google/uuid"

// NewID returns a UUIDv7 string. v7 ids sort by creation time, which keeps
// the batch-id tie-break of FIFO in creation order.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func NewBatchID() BatchID     { return BatchID(NewID()) }
func NewRunID() RunID         { return RunID(NewID()) }
func NewLogID() LogID         { return LogID(NewID()) }
func NewWasteID() WasteID     { return WasteID(NewID()) }
func NewInvoiceID() InvoiceID { return InvoiceID(NewID()) }
