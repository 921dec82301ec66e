/*
Package postgres provides a PostgreSQL-backed ledger.TxStore on pgx.

PURPOSE:
  The multi-process deployment of the ledger. Same tables as store/sqlite,
  with NUMERIC columns mapped to shopspring/decimal by pgx-shopspring-decimal
  and TIMESTAMPTZ columns mapped to time.Time.

CONCURRENCY:
  Inside WithTx every batch read takes a row lock (SELECT ... FOR UPDATE).
  The ledger's in-process locks serialize writers of one process; the row
  locks extend that to several processes sharing a database.

SEE ALSO:
  - store/sqlite: single-file variant
  - ledger/store.go: interface definitions
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/batch-ledger/ledger"
)

type Store struct {
	pool *pgxpool.Pool
	queries
}

var _ ledger.TxStore = (*Store)(nil)

// New connects to databaseURL, registers the decimal codec on every pooled
// connection and migrates the schema.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}
	cfg.MaxConns = 25
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{pool: pool, queries: queries{q: pool}}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
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
		total_cost NUMERIC NOT NULL,
		invoice_date TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES items(id),
		quantity_initial NUMERIC NOT NULL CHECK (quantity_initial > 0),
		quantity_current NUMERIC NOT NULL CHECK (quantity_current >= 0),
		unit_cost NUMERIC NOT NULL CHECK (unit_cost >= 0),
		expires_at TIMESTAMPTZ,
		source_invoice_id TEXT REFERENCES invoices(id),
		source_run_id TEXT,
		voided BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		CHECK (quantity_current <= quantity_initial),
		CHECK ((source_invoice_id IS NULL) <> (source_run_id IS NULL))
	);

	CREATE INDEX IF NOT EXISTS idx_batches_item_expiry ON batches(item_id, expires_at, id);
	CREATE INDEX IF NOT EXISTS idx_batches_invoice ON batches(source_invoice_id);

	CREATE TABLE IF NOT EXISTS item_compositions (
		output_item_id TEXT NOT NULL REFERENCES items(id),
		input_item_id TEXT NOT NULL REFERENCES items(id),
		quantity_required NUMERIC NOT NULL CHECK (quantity_required > 0),
		unit TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (output_item_id, input_item_id)
	);

	CREATE TABLE IF NOT EXISTS production_runs (
		id TEXT PRIMARY KEY,
		output_item_id TEXT NOT NULL REFERENCES items(id),
		output_batch_id TEXT NOT NULL REFERENCES batches(id),
		quantity_produced NUMERIC NOT NULL,
		unit_cost NUMERIC NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		reverted_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS production_logs (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES production_runs(id),
		output_batch_id TEXT NOT NULL REFERENCES batches(id),
		input_batch_id TEXT NOT NULL REFERENCES batches(id),
		input_item_id TEXT NOT NULL,
		quantity_used NUMERIC NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_production_logs_run ON production_logs(run_id);
	CREATE INDEX IF NOT EXISTS idx_production_logs_input_batch ON production_logs(input_batch_id);
	CREATE INDEX IF NOT EXISTS idx_production_logs_created ON production_logs(created_at);

	CREATE TABLE IF NOT EXISTS waste_logs (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL REFERENCES batches(id),
		item_id TEXT NOT NULL,
		quantity NUMERIC NOT NULL,
		reason TEXT NOT NULL,
		cost_loss NUMERIC NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_waste_logs_created ON waste_logs(created_at);
	`)
	return err
}

// Reset empties every table. Used by tests.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE waste_logs, production_logs, production_runs,
		item_compositions, batches, invoices, items`)
	return err
}

// WithTx runs fn in one transaction; batch reads inside fn lock their rows.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(queries{q: tx, forUpdate: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// dbtx is satisfied by *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	q         dbtx
	forUpdate bool
}

var _ ledger.Store = queries{}

func (s queries) lock() string {
	if s.forUpdate {
		return ` FOR UPDATE`
	}
	return ""
}

// =============================================================================
// CATALOG
// =============================================================================

const itemColumns = `id, name, unit, item_type, shelf_life_days`

func (s queries) GetItem(ctx context.Context, id ledger.ItemID) (*ledger.Item, error) {
	var it ledger.Item
	err := s.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id).
		Scan(&it.ID, &it.Name, &it.Unit, &it.Type, &it.ShelfLifeDays)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound("item", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &it, nil
}

func (s queries) ListItems(ctx context.Context) ([]ledger.Item, error) {
	rows, err := s.q.Query(ctx, `SELECT `+itemColumns+` FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []ledger.Item
	for rows.Next() {
		var it ledger.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Unit, &it.Type, &it.ShelfLifeDays); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s queries) SaveItem(ctx context.Context, it ledger.Item) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO items (`+itemColumns+`) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, unit = EXCLUDED.unit,
			item_type = EXCLUDED.item_type, shelf_life_days = EXCLUDED.shelf_life_days`,
		it.ID, it.Name, it.Unit, string(it.Type), it.ShelfLifeDays)
	if err != nil {
		return fmt.Errorf("save item: %w", err)
	}
	return nil
}

// =============================================================================
// BATCHES
// =============================================================================

const batchColumns = `id, item_id, quantity_initial, quantity_current, unit_cost,
	expires_at, source_invoice_id, source_run_id, voided, created_at`

func scanBatch(row pgx.Row) (ledger.Batch, error) {
	var (
		b              ledger.Batch
		invoice, runID *string
	)
	err := row.Scan(&b.ID, &b.ItemID, &b.QuantityInitial, &b.QuantityCurrent, &b.UnitCost,
		&b.ExpiresAt, &invoice, &runID, &b.Voided, &b.CreatedAt)
	if invoice != nil {
		b.Source.InvoiceID = ledger.InvoiceID(*invoice)
	}
	if runID != nil {
		b.Source.RunID = ledger.RunID(*runID)
	}
	return b, err
}

func (s queries) GetBatch(ctx context.Context, id ledger.BatchID) (*ledger.Batch, error) {
	b, err := scanBatch(s.q.QueryRow(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = $1`+s.lock(), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound("batch", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &b, nil
}

func (s queries) ListBatches(ctx context.Context, f ledger.BatchFilter) ([]ledger.Batch, error) {
	var (
		where []string
		args  []any
	)
	if f.ItemID != "" {
		args = append(args, f.ItemID)
		where = append(where, fmt.Sprintf("item_id = $%d", len(args)))
	}
	if f.InvoiceID != "" {
		args = append(args, f.InvoiceID)
		where = append(where, fmt.Sprintf("source_invoice_id = $%d", len(args)))
	}
	if f.ActiveOnly {
		where = append(where, "NOT voided AND quantity_current > 0")
	}
	query := `SELECT ` + batchColumns + ` FROM batches`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY expires_at ASC NULLS LAST, id` + s.lock()

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []ledger.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s queries) LatestBatch(ctx context.Context, itemID ledger.ItemID) (*ledger.Batch, error) {
	b, err := scanBatch(s.q.QueryRow(ctx, `
		SELECT `+batchColumns+` FROM batches WHERE item_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1`, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest batch: %w", err)
	}
	return &b, nil
}

func (s queries) InsertBatch(ctx context.Context, b ledger.Batch) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO batches (`+batchColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.ItemID, b.QuantityInitial, b.QuantityCurrent, b.UnitCost, b.ExpiresAt,
		nullable(string(b.Source.InvoiceID)), nullable(string(b.Source.RunID)),
		b.Voided, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (s queries) UpdateBatchQuantity(ctx context.Context, b ledger.Batch) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE batches SET quantity_current = $2, voided = $3 WHERE id = $1`,
		b.ID, b.QuantityCurrent, b.Voided)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	return affected(tag, "batch", b.ID)
}

func (s queries) DeleteBatch(ctx context.Context, id ledger.BatchID) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM batches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	return affected(tag, "batch", id)
}

// =============================================================================
// RECIPES
// =============================================================================

const compositionColumns = `output_item_id, input_item_id, quantity_required, unit`

func (s queries) Compositions(ctx context.Context, outputID ledger.ItemID) ([]ledger.Composition, error) {
	return s.queryCompositions(ctx, `SELECT `+compositionColumns+` FROM item_compositions
		WHERE output_item_id = $1 ORDER BY input_item_id`, outputID)
}

func (s queries) AllCompositions(ctx context.Context) ([]ledger.Composition, error) {
	return s.queryCompositions(ctx, `SELECT `+compositionColumns+` FROM item_compositions
		ORDER BY output_item_id, input_item_id`)
}

func (s queries) queryCompositions(ctx context.Context, sql string, args ...any) ([]ledger.Composition, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query compositions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Composition
	for rows.Next() {
		var c ledger.Composition
		if err := rows.Scan(&c.OutputItemID, &c.InputItemID, &c.QuantityRequired, &c.Unit); err != nil {
			return nil, fmt.Errorf("scan composition: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s queries) UpsertComposition(ctx context.Context, c ledger.Composition) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO item_compositions (`+compositionColumns+`) VALUES ($1, $2, $3, $4)
		ON CONFLICT (output_item_id, input_item_id) DO UPDATE SET
			quantity_required = EXCLUDED.quantity_required, unit = EXCLUDED.unit`,
		c.OutputItemID, c.InputItemID, c.QuantityRequired, c.Unit)
	if err != nil {
		return fmt.Errorf("upsert composition: %w", err)
	}
	return nil
}

func (s queries) DeleteComposition(ctx context.Context, outputID, inputID ledger.ItemID) error {
	tag, err := s.q.Exec(ctx,
		`DELETE FROM item_compositions WHERE output_item_id = $1 AND input_item_id = $2`,
		outputID, inputID)
	if err != nil {
		return fmt.Errorf("delete composition: %w", err)
	}
	return affected(tag, "composition", string(outputID)+"->"+string(inputID))
}

// =============================================================================
// PRODUCTION RUNS AND LOGS
// =============================================================================

const runColumns = `id, output_item_id, output_batch_id, quantity_produced, unit_cost, created_at, reverted_at`

func scanRun(row pgx.Row) (ledger.ProductionRun, error) {
	var r ledger.ProductionRun
	err := row.Scan(&r.ID, &r.OutputItemID, &r.OutputBatchID, &r.QuantityProduced, &r.UnitCost,
		&r.CreatedAt, &r.RevertedAt)
	return r, err
}

func (s queries) InsertRun(ctx context.Context, r ledger.ProductionRun) error {
	_, err := s.q.Exec(ctx, `INSERT INTO production_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.OutputItemID, r.OutputBatchID, r.QuantityProduced, r.UnitCost, r.CreatedAt, r.RevertedAt)
	if err != nil {
		return fmt.Errorf("insert production run: %w", err)
	}
	return nil
}

func (s queries) GetRun(ctx context.Context, id ledger.RunID) (*ledger.ProductionRun, error) {
	r, err := scanRun(s.q.QueryRow(ctx, `SELECT `+runColumns+` FROM production_runs WHERE id = $1`+s.lock(), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound("production run", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get production run: %w", err)
	}
	return &r, nil
}

func (s queries) ListRuns(ctx context.Context, limit int) ([]ledger.ProductionRun, error) {
	query := `SELECT ` + runColumns + ` FROM production_runs ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list production runs: %w", err)
	}
	defer rows.Close()

	var out []ledger.ProductionRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan production run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s queries) MarkRunReverted(ctx context.Context, id ledger.RunID, at time.Time) error {
	tag, err := s.q.Exec(ctx, `UPDATE production_runs SET reverted_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark run reverted: %w", err)
	}
	return affected(tag, "production run", id)
}

const logColumns = `id, run_id, output_batch_id, input_batch_id, input_item_id, quantity_used, created_at`

func (s queries) AppendProductionLogs(ctx context.Context, logs []ledger.ProductionLog) error {
	if len(logs) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, []any{
			string(l.ID), string(l.RunID), string(l.OutputBatchID), string(l.InputBatchID),
			string(l.InputItemID), l.QuantityUsed, l.CreatedAt,
		})
	}
	_, err := s.q.Exec(ctx, insertLogsSQL(len(rows)), flatten(rows)...)
	if err != nil {
		return fmt.Errorf("append production logs: %w", err)
	}
	return nil
}

// insertLogsSQL builds one multi-row INSERT so seq preserves slice order.
func insertLogsSQL(n int) string {
	var b strings.Builder
	b.WriteString(`INSERT INTO production_logs (` + logColumns + `) VALUES `)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		p := i * 7
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)", p+1, p+2, p+3, p+4, p+5, p+6, p+7)
	}
	return b.String()
}

func flatten(rows [][]any) []any {
	var out []any
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

func (s queries) LogsByRun(ctx context.Context, runID ledger.RunID) ([]ledger.ProductionLog, error) {
	return s.queryLogs(ctx, `SELECT `+logColumns+` FROM production_logs WHERE run_id = $1 ORDER BY seq`, runID)
}

func (s queries) LogsByInputBatch(ctx context.Context, batchID ledger.BatchID) ([]ledger.ProductionLog, error) {
	return s.queryLogs(ctx, `SELECT `+logColumns+` FROM production_logs WHERE input_batch_id = $1 ORDER BY seq`, batchID)
}

func (s queries) LogsSince(ctx context.Context, since time.Time) ([]ledger.ProductionLog, error) {
	return s.queryLogs(ctx, `SELECT `+logColumns+` FROM production_logs
		WHERE created_at >= $1 ORDER BY created_at, seq`, since)
}

func (s queries) queryLogs(ctx context.Context, sql string, args ...any) ([]ledger.ProductionLog, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query production logs: %w", err)
	}
	defer rows.Close()

	var out []ledger.ProductionLog
	for rows.Next() {
		var l ledger.ProductionLog
		err := rows.Scan(&l.ID, &l.RunID, &l.OutputBatchID, &l.InputBatchID, &l.InputItemID, &l.QuantityUsed, &l.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan production log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// =============================================================================
// WASTE
// =============================================================================

func (s queries) AppendWasteLog(ctx context.Context, w ledger.WasteLog) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO waste_logs (id, batch_id, item_id, quantity, reason, cost_loss, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.BatchID, w.ItemID, w.Quantity, string(w.Reason), w.CostLoss, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("append waste log: %w", err)
	}
	return nil
}

func (s queries) WasteSince(ctx context.Context, since time.Time) ([]ledger.WasteLog, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, batch_id, item_id, quantity, reason, cost_loss, created_at
		FROM waste_logs WHERE created_at >= $1 ORDER BY created_at, seq`, since)
	if err != nil {
		return nil, fmt.Errorf("query waste logs: %w", err)
	}
	defer rows.Close()

	var out []ledger.WasteLog
	for rows.Next() {
		var w ledger.WasteLog
		if err := rows.Scan(&w.ID, &w.BatchID, &w.ItemID, &w.Quantity, &w.Reason, &w.CostLoss, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan waste log: %w", err)
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
	_, err := s.q.Exec(ctx, `INSERT INTO invoices (`+invoiceColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		inv.ID, inv.SupplierName, inv.TotalCost, inv.InvoiceDate, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

func (s queries) GetInvoice(ctx context.Context, id ledger.InvoiceID) (*ledger.Invoice, error) {
	var inv ledger.Invoice
	err := s.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id).
		Scan(&inv.ID, &inv.SupplierName, &inv.TotalCost, &inv.InvoiceDate, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound("invoice", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &inv, nil
}

func (s queries) ListInvoices(ctx context.Context) ([]ledger.Invoice, error) {
	rows, err := s.q.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []ledger.Invoice
	for rows.Next() {
		var inv ledger.Invoice
		if err := rows.Scan(&inv.ID, &inv.SupplierName, &inv.TotalCost, &inv.InvoiceDate, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s queries) DeleteInvoice(ctx context.Context, id ledger.InvoiceID) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	return affected(tag, "invoice", id)
}

func affected(tag pgconn.CommandTag, kind string, id any) error {
	if tag.RowsAffected() == 0 {
		return ledger.NotFound(kind, id)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
