/*
Package sqlite provides a SQLite-backed ledger.TxStore.

PURPOSE:
  Persists items, batches, recipe edges, production runs and logs, waste
  logs and invoices in a single SQLite file. The same Go types flow through
  the in-memory store and the Postgres store; only the SQL differs.

KEY TABLES:
  items:             catalog rows (written by seeding only)
  batches:           discrete stock with cost basis and provenance
  item_compositions: recipe edges, primary key (output, input)
  production_runs:   one row per recorded production, reverted_at when undone
  production_logs:   append-only (output batch, input batch, quantity) rows
  waste_logs:        append-only loss rows
  invoices:          supplier deliveries

REPRESENTATION:
  Decimals are stored as TEXT and parsed with shopspring/decimal so no
  precision is lost to REAL. Times are UTC TEXT in a fixed-width layout so
  lexical order is chronological order (FIFO relies on it).

CONCURRENCY:
  The pool is capped at one connection. An open transaction owns that
  connection, so writers are serialized by database/sql itself. Callers
  inside WithTx must use the Store they are handed.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.New(store)

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for tests
  - store/postgres: the same schema on PostgreSQL
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/batch-ledger/ledger"
)

// timeLayout is fixed width so TEXT comparison orders chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	queries
}

var _ ledger.TxStore = (*Store)(nil)

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for a throwaway database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, queries: queries{q: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		unit TEXT NOT NULL,
		item_type TEXT NOT NULL CHECK (item_type IN ('Raw', 'Prepped', 'Dish')),
		shelf_life_days INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		supplier_name TEXT NOT NULL,
		total_cost TEXT NOT NULL,
		invoice_date TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES items(id),
		quantity_initial TEXT NOT NULL,
		quantity_current TEXT NOT NULL,
		unit_cost TEXT NOT NULL,
		expires_at TEXT,
		source_invoice_id TEXT REFERENCES invoices(id),
		source_run_id TEXT,
		voided INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		CHECK ((source_invoice_id IS NULL) <> (source_run_id IS NULL))
	);

	-- FIFO scan: active batches of one item by expiration
	CREATE INDEX IF NOT EXISTS idx_batches_item_expiry
		ON batches(item_id, expires_at, id);
	CREATE INDEX IF NOT EXISTS idx_batches_invoice
		ON batches(source_invoice_id) WHERE source_invoice_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS item_compositions (
		output_item_id TEXT NOT NULL REFERENCES items(id),
		input_item_id TEXT NOT NULL REFERENCES items(id),
		quantity_required TEXT NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (output_item_id, input_item_id)
	);

	CREATE TABLE IF NOT EXISTS production_runs (
		id TEXT PRIMARY KEY,
		output_item_id TEXT NOT NULL REFERENCES items(id),
		output_batch_id TEXT NOT NULL REFERENCES batches(id),
		quantity_produced TEXT NOT NULL,
		unit_cost TEXT NOT NULL,
		created_at TEXT NOT NULL,
		reverted_at TEXT
	);

	CREATE TABLE IF NOT EXISTS production_logs (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES production_runs(id),
		output_batch_id TEXT NOT NULL REFERENCES batches(id),
		input_batch_id TEXT NOT NULL REFERENCES batches(id),
		input_item_id TEXT NOT NULL,
		quantity_used TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_production_logs_run
		ON production_logs(run_id);
	CREATE INDEX IF NOT EXISTS idx_production_logs_input_batch
		ON production_logs(input_batch_id);
	CREATE INDEX IF NOT EXISTS idx_production_logs_created
		ON production_logs(created_at);

	CREATE TABLE IF NOT EXISTS waste_logs (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL REFERENCES batches(id),
		item_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		reason TEXT NOT NULL,
		cost_loss TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_waste_logs_created
		ON waste_logs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements ledger.Store against either the pool or one transaction.
type queries struct {
	q querier
}

var _ ledger.Store = queries{}

// =============================================================================
// CATALOG
// =============================================================================

const itemColumns = `id, name, unit, item_type, shelf_life_days`

func (s queries) GetItem(ctx context.Context, id ledger.ItemID) (*ledger.Item, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("item", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

func (s queries) ListItems(ctx context.Context) ([]ledger.Item, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []ledger.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s queries) SaveItem(ctx context.Context, item ledger.Item) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO items (id, name, unit, item_type, shelf_life_days)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			unit = excluded.unit,
			item_type = excluded.item_type,
			shelf_life_days = excluded.shelf_life_days
	`, item.ID, item.Name, item.Unit, string(item.Type), item.ShelfLifeDays)
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

// =============================================================================
// BATCHES
// =============================================================================

const batchColumns = `id, item_id, quantity_initial, quantity_current, unit_cost,
	expires_at, source_invoice_id, source_run_id, voided, created_at`

// fifoOrder sorts expiring batches first, then by id.
const fifoOrder = ` ORDER BY expires_at IS NULL, expires_at, id`

func (s queries) GetBatch(ctx context.Context, id ledger.BatchID) (*ledger.Batch, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("batch", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return &b, nil
}

func (s queries) ListBatches(ctx context.Context, f ledger.BatchFilter) ([]ledger.Batch, error) {
	var (
		where []string
		args  []any
	)
	if f.ItemID != "" {
		where = append(where, "item_id = ?")
		args = append(args, f.ItemID)
	}
	if f.InvoiceID != "" {
		where = append(where, "source_invoice_id = ?")
		args = append(args, f.InvoiceID)
	}
	query := `SELECT ` + batchColumns + ` FROM batches`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fifoOrder

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var out []ledger.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		// quantities are TEXT, so positivity is checked after parsing
		if f.ActiveOnly && !b.Active() {
			continue
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s queries) LatestBatch(ctx context.Context, itemID ledger.ItemID) (*ledger.Batch, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+batchColumns+` FROM batches
		WHERE item_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, itemID)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest batch: %w", err)
	}
	return &b, nil
}

func (s queries) InsertBatch(ctx context.Context, b ledger.Batch) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO batches (`+batchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID, b.ItemID,
		b.QuantityInitial.String(), b.QuantityCurrent.String(), b.UnitCost.String(),
		nullTime(b.ExpiresAt),
		nullString(string(b.Source.InvoiceID)), nullString(string(b.Source.RunID)),
		b.Voided, formatTime(b.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

func (s queries) UpdateBatchQuantity(ctx context.Context, b ledger.Batch) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE batches SET quantity_current = ?, voided = ? WHERE id = ?`,
		b.QuantityCurrent.String(), b.Voided, b.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}
	return requireRow(res, "batch", b.ID)
}

func (s queries) DeleteBatch(ctx context.Context, id ledger.BatchID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM batches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	return requireRow(res, "batch", id)
}

// =============================================================================
// RECIPES
// =============================================================================

const compositionColumns = `output_item_id, input_item_id, quantity_required, unit`

func (s queries) Compositions(ctx context.Context, outputID ledger.ItemID) ([]ledger.Composition, error) {
	return s.queryCompositions(ctx, `
		SELECT `+compositionColumns+` FROM item_compositions
		WHERE output_item_id = ?
		ORDER BY input_item_id
	`, outputID)
}

func (s queries) AllCompositions(ctx context.Context) ([]ledger.Composition, error) {
	return s.queryCompositions(ctx, `
		SELECT `+compositionColumns+` FROM item_compositions
		ORDER BY output_item_id, input_item_id
	`)
}

func (s queries) queryCompositions(ctx context.Context, query string, args ...any) ([]ledger.Composition, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query compositions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Composition
	for rows.Next() {
		var (
			c   ledger.Composition
			qty string
		)
		if err := rows.Scan(&c.OutputItemID, &c.InputItemID, &qty, &c.Unit); err != nil {
			return nil, fmt.Errorf("failed to scan composition: %w", err)
		}
		if c.QuantityRequired, err = parseDecimal(qty); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s queries) UpsertComposition(ctx context.Context, c ledger.Composition) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO item_compositions (`+compositionColumns+`)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(output_item_id, input_item_id) DO UPDATE SET
			quantity_required = excluded.quantity_required,
			unit = excluded.unit
	`, c.OutputItemID, c.InputItemID, c.QuantityRequired.String(), c.Unit)
	if err != nil {
		return fmt.Errorf("failed to upsert composition: %w", err)
	}
	return nil
}

func (s queries) DeleteComposition(ctx context.Context, outputID, inputID ledger.ItemID) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM item_compositions WHERE output_item_id = ? AND input_item_id = ?`,
		outputID, inputID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete composition: %w", err)
	}
	return requireRow(res, "composition", string(outputID)+"->"+string(inputID))
}

// =============================================================================
// PRODUCTION RUNS AND LOGS
// =============================================================================

const runColumns = `id, output_item_id, output_batch_id, quantity_produced, unit_cost, created_at, reverted_at`

func (s queries) InsertRun(ctx context.Context, run ledger.ProductionRun) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO production_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.OutputItemID, run.OutputBatchID,
		run.QuantityProduced.String(), run.UnitCost.String(),
		formatTime(run.CreatedAt), nullTime(run.RevertedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert production run: %w", err)
	}
	return nil
}

func (s queries) GetRun(ctx context.Context, id ledger.RunID) (*ledger.ProductionRun, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+runColumns+` FROM production_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("production run", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get production run: %w", err)
	}
	return &run, nil
}

func (s queries) ListRuns(ctx context.Context, limit int) ([]ledger.ProductionRun, error) {
	query := `SELECT ` + runColumns + ` FROM production_runs ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list production runs: %w", err)
	}
	defer rows.Close()

	var out []ledger.ProductionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan production run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s queries) MarkRunReverted(ctx context.Context, id ledger.RunID, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE production_runs SET reverted_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to mark run reverted: %w", err)
	}
	return requireRow(res, "production run", id)
}

const logColumns = `id, run_id, output_batch_id, input_batch_id, input_item_id, quantity_used, created_at`

func (s queries) AppendProductionLogs(ctx context.Context, logs []ledger.ProductionLog) error {
	for _, l := range logs {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO production_logs (`+logColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			l.ID, l.RunID, l.OutputBatchID, l.InputBatchID, l.InputItemID,
			l.QuantityUsed.String(), formatTime(l.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to append production log: %w", err)
		}
	}
	return nil
}

func (s queries) LogsByRun(ctx context.Context, runID ledger.RunID) ([]ledger.ProductionLog, error) {
	return s.queryLogs(ctx, `SELECT `+logColumns+` FROM production_logs WHERE run_id = ? ORDER BY rowid`, runID)
}

func (s queries) LogsByInputBatch(ctx context.Context, batchID ledger.BatchID) ([]ledger.ProductionLog, error) {
	return s.queryLogs(ctx, `SELECT `+logColumns+` FROM production_logs WHERE input_batch_id = ? ORDER BY rowid`, batchID)
}

func (s queries) LogsSince(ctx context.Context, since time.Time) ([]ledger.ProductionLog, error) {
	return s.queryLogs(ctx, `
		SELECT `+logColumns+` FROM production_logs
		WHERE created_at >= ?
		ORDER BY created_at, rowid
	`, formatTime(since))
}

func (s queries) queryLogs(ctx context.Context, query string, args ...any) ([]ledger.ProductionLog, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query production logs: %w", err)
	}
	defer rows.Close()

	var out []ledger.ProductionLog
	for rows.Next() {
		var (
			l            ledger.ProductionLog
			qty, created string
		)
		err := rows.Scan(&l.ID, &l.RunID, &l.OutputBatchID, &l.InputBatchID, &l.InputItemID, &qty, &created)
		if err != nil {
			return nil, fmt.Errorf("failed to scan production log: %w", err)
		}
		if l.QuantityUsed, err = parseDecimal(qty); err != nil {
			return nil, err
		}
		if l.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// =============================================================================
// WASTE
// =============================================================================

func (s queries) AppendWasteLog(ctx context.Context, w ledger.WasteLog) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO waste_logs (id, batch_id, item_id, quantity, reason, cost_loss, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		w.ID, w.BatchID, w.ItemID, w.Quantity.String(), string(w.Reason),
		w.CostLoss.String(), formatTime(w.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append waste log: %w", err)
	}
	return nil
}

func (s queries) WasteSince(ctx context.Context, since time.Time) ([]ledger.WasteLog, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, batch_id, item_id, quantity, reason, cost_loss, created_at
		FROM waste_logs
		WHERE created_at >= ?
		ORDER BY created_at, rowid
	`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query waste logs: %w", err)
	}
	defer rows.Close()

	var out []ledger.WasteLog
	for rows.Next() {
		var (
			w                  ledger.WasteLog
			qty, loss, created string
		)
		if err := rows.Scan(&w.ID, &w.BatchID, &w.ItemID, &qty, &w.Reason, &loss, &created); err != nil {
			return nil, fmt.Errorf("failed to scan waste log: %w", err)
		}
		if w.Quantity, err = parseDecimal(qty); err != nil {
			return nil, err
		}
		if w.CostLoss, err = parseDecimal(loss); err != nil {
			return nil, err
		}
		if w.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// =============================================================================
// INVOICES
// =============================================================================

const invoiceColumns = `id, supplier_name, total_cost, invoice_date, created_at`

func (s queries) InsertInvoice(ctx context.Context, inv ledger.Invoice) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?)
	`,
		inv.ID, inv.SupplierName, inv.TotalCost.String(),
		nullTime(inv.InvoiceDate), formatTime(inv.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

func (s queries) GetInvoice(ctx context.Context, id ledger.InvoiceID) (*ledger.Invoice, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("invoice", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return &inv, nil
}

func (s queries) ListInvoices(ctx context.Context) ([]ledger.Invoice, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var out []ledger.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s queries) DeleteInvoice(ctx context.Context, id ledger.InvoiceID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM invoices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	return requireRow(res, "invoice", id)
}

// =============================================================================
// SCANNING
// =============================================================================

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (ledger.Item, error) {
	var (
		item     ledger.Item
		itemType string
	)
	err := row.Scan(&item.ID, &item.Name, &item.Unit, &itemType, &item.ShelfLifeDays)
	item.Type = ledger.ItemType(itemType)
	return item, err
}

func scanBatch(row scanner) (ledger.Batch, error) {
	var (
		b                       ledger.Batch
		initial, current, cost  string
		expires, invoice, runID sql.NullString
		created                 string
	)
	err := row.Scan(&b.ID, &b.ItemID, &initial, &current, &cost,
		&expires, &invoice, &runID, &b.Voided, &created)
	if err != nil {
		return b, err
	}
	if b.QuantityInitial, err = parseDecimal(initial); err != nil {
		return b, err
	}
	if b.QuantityCurrent, err = parseDecimal(current); err != nil {
		return b, err
	}
	if b.UnitCost, err = parseDecimal(cost); err != nil {
		return b, err
	}
	if b.ExpiresAt, err = parseNullTime(expires); err != nil {
		return b, err
	}
	b.Source = ledger.Provenance{
		InvoiceID: ledger.InvoiceID(invoice.String),
		RunID:     ledger.RunID(runID.String),
	}
	b.CreatedAt, err = parseTime(created)
	return b, err
}

func scanRun(row scanner) (ledger.ProductionRun, error) {
	var (
		run       ledger.ProductionRun
		qty, cost string
		created   string
		reverted  sql.NullString
	)
	err := row.Scan(&run.ID, &run.OutputItemID, &run.OutputBatchID, &qty, &cost, &created, &reverted)
	if err != nil {
		return run, err
	}
	if run.QuantityProduced, err = parseDecimal(qty); err != nil {
		return run, err
	}
	if run.UnitCost, err = parseDecimal(cost); err != nil {
		return run, err
	}
	if run.CreatedAt, err = parseTime(created); err != nil {
		return run, err
	}
	run.RevertedAt, err = parseNullTime(reverted)
	return run, err
}

func scanInvoice(row scanner) (ledger.Invoice, error) {
	var (
		inv         ledger.Invoice
		total       string
		invoiceDate sql.NullString
		created     string
	)
	err := row.Scan(&inv.ID, &inv.SupplierName, &total, &invoiceDate, &created)
	if err != nil {
		return inv, err
	}
	if inv.TotalCost, err = parseDecimal(total); err != nil {
		return inv, err
	}
	if inv.InvoiceDate, err = parseNullTime(invoiceDate); err != nil {
		return inv, err
	}
	inv.CreatedAt, err = parseTime(created)
	return inv, err
}

// Helper functions

func requireRow(res sql.Result, kind string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ledger.NotFound(kind, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse decimal %q: %w", s, err)
	}
	return d, nil
}
