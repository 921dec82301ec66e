/*
errors.go - Error kinds for the ledger and the workflows built on it

PURPOSE:
  Every mutating operation returns a success value or exactly one of these
  failures. Workflow packages (recipe, production, intake) return them
  unchanged so callers can switch on kind with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Input errors   - ValidationError, NotFound, NoRecipeDefined, CycleDetected
  2. Stock errors   - InsufficientStock (with per-item shortfalls)
  3. State errors   - AlreadyReverted, PartialConsumptionConflict, InvoiceInUse,
                      RestoreOverflow
  4. Concurrency    - ConcurrencyConflict (stale plan, lock wait cancelled)

USAGE:
  var short *ledger.InsufficientStockError
  if errors.As(err, &short) {
      for _, s := range short.Shortfalls { ... }
  }
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")

	ErrNotFound = errors.New("not found")

	// ErrNoRecipeDefined is returned when a non-raw item has no ingredient edges.
	ErrNoRecipeDefined = errors.New("no recipe defined")

	// ErrCycleDetected is returned when a recipe edge would make an item depend
	// on itself, or when a cost rollup reaches an item already on its path.
	ErrCycleDetected = errors.New("recipe cycle detected")

	ErrInsufficientStock = errors.New("insufficient stock")

	ErrAlreadyReverted = errors.New("production run already reverted")

	// ErrPartialConsumptionConflict is returned when the output of a run has
	// already been drawn on downstream; reverting would corrupt later cost bases.
	ErrPartialConsumptionConflict = errors.New("production output already consumed downstream")

	ErrInvoiceInUse = errors.New("invoice batches already in use")

	// ErrConcurrencyConflict is returned when a plan no longer matches the
	// stored batches at commit time, or a lock wait was abandoned.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrRestoreOverflow is returned when restoring would push a batch above
	// its initial quantity (double restore or corrupted log).
	ErrRestoreOverflow = errors.New("restore exceeds initial quantity")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(kind string, id any) error {
	return &NotFoundError{Kind: kind, ID: fmt.Sprint(id)}
}

// Shortfall is the missing quantity for one item.
type Shortfall struct {
	ItemID    ItemID
	BatchID   BatchID // set when a specific (manual) batch was short
	Needed    decimal.Decimal
	Available decimal.Decimal
}

// Missing is Needed - Available.
func (s Shortfall) Missing() decimal.Decimal {
	return s.Needed.Sub(s.Available)
}

// InsufficientStockError lists every short item of one operation.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		target := string(s.ItemID)
		if s.BatchID != "" {
			target += "/" + string(s.BatchID)
		}
		parts = append(parts, fmt.Sprintf("%s (need %s, have %s, short %s)",
			target, s.Needed.String(), s.Available.String(), s.Missing().String()))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// CycleError carries the path that closes the cycle.
type CycleError struct {
	Path []ItemID
}

func (e *CycleError) Error() string {
	ids := make([]string, len(e.Path))
	for i, id := range e.Path {
		ids[i] = string(id)
	}
	return "recipe cycle detected: " + strings.Join(ids, " -> ")
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// ConsumptionConflictError names the runs that drew on a run's output.
type ConsumptionConflictError struct {
	RunID         RunID
	OutputBatchID BatchID
	ConsumedBy    []RunID
}

func (e *ConsumptionConflictError) Error() string {
	if len(e.ConsumedBy) == 0 {
		return fmt.Sprintf("cannot revert run %s: output batch %s is no longer intact", e.RunID, e.OutputBatchID)
	}
	runs := make([]string, len(e.ConsumedBy))
	for i, id := range e.ConsumedBy {
		runs[i] = string(id)
	}
	return fmt.Sprintf("cannot revert run %s: output batch %s consumed by %s",
		e.RunID, e.OutputBatchID, strings.Join(runs, ", "))
}

func (e *ConsumptionConflictError) Unwrap() error { return ErrPartialConsumptionConflict }

// InvoiceInUseError lists the batches that block deletion.
type InvoiceInUseError struct {
	InvoiceID InvoiceID
	BatchIDs  []BatchID
}

func (e *InvoiceInUseError) Error() string {
	ids := make([]string, len(e.BatchIDs))
	for i, id := range e.BatchIDs {
		ids[i] = string(id)
	}
	return fmt.Sprintf("invoice %s in use: batches %s already drawn on", e.InvoiceID, strings.Join(ids, ", "))
}

func (e *InvoiceInUseError) Unwrap() error { return ErrInvoiceInUse }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is due to the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNoRecipeDefined) ||
		errors.Is(err, ErrCycleDetected) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrAlreadyReverted) ||
		errors.Is(err, ErrPartialConsumptionConflict) ||
		errors.Is(err, ErrInvoiceInUse)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
