// Package store provides an in-memory ledger.TxStore.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/batch-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory guards a state with a RWMutex. WithTx holds the write lock for the
// whole transaction and rolls back by swapping in a snapshot.
type Memory struct {
	mu sync.RWMutex
	s  *state
}

func NewMemory() *Memory {
	return &Memory{s: newState()}
}

var _ ledger.TxStore = (*Memory)(nil)

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s.clone()
	if err := fn(m.s); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

func (m *Memory) read(fn func(s *state) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.s)
}

func (m *Memory) write(fn func(s *state) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.s)
}

// --- catalog ---

func (m *Memory) GetItem(ctx context.Context, id ledger.ItemID) (item *ledger.Item, err error) {
	err = m.read(func(s *state) error { item, err = s.GetItem(ctx, id); return err })
	return item, err
}

func (m *Memory) ListItems(ctx context.Context) (items []ledger.Item, err error) {
	err = m.read(func(s *state) error { items, err = s.ListItems(ctx); return err })
	return items, err
}

func (m *Memory) SaveItem(ctx context.Context, item ledger.Item) error {
	return m.write(func(s *state) error { return s.SaveItem(ctx, item) })
}

// --- batches ---

func (m *Memory) GetBatch(ctx context.Context, id ledger.BatchID) (b *ledger.Batch, err error) {
	err = m.read(func(s *state) error { b, err = s.GetBatch(ctx, id); return err })
	return b, err
}

func (m *Memory) ListBatches(ctx context.Context, f ledger.BatchFilter) (bs []ledger.Batch, err error) {
	err = m.read(func(s *state) error { bs, err = s.ListBatches(ctx, f); return err })
	return bs, err
}

func (m *Memory) LatestBatch(ctx context.Context, itemID ledger.ItemID) (b *ledger.Batch, err error) {
	err = m.read(func(s *state) error { b, err = s.LatestBatch(ctx, itemID); return err })
	return b, err
}

func (m *Memory) InsertBatch(ctx context.Context, b ledger.Batch) error {
	return m.write(func(s *state) error { return s.InsertBatch(ctx, b) })
}

func (m *Memory) UpdateBatchQuantity(ctx context.Context, b ledger.Batch) error {
	return m.write(func(s *state) error { return s.UpdateBatchQuantity(ctx, b) })
}

func (m *Memory) DeleteBatch(ctx context.Context, id ledger.BatchID) error {
	return m.write(func(s *state) error { return s.DeleteBatch(ctx, id) })
}

// --- recipes ---

func (m *Memory) Compositions(ctx context.Context, outputID ledger.ItemID) (cs []ledger.Composition, err error) {
	err = m.read(func(s *state) error { cs, err = s.Compositions(ctx, outputID); return err })
	return cs, err
}

func (m *Memory) AllCompositions(ctx context.Context) (cs []ledger.Composition, err error) {
	err = m.read(func(s *state) error { cs, err = s.AllCompositions(ctx); return err })
	return cs, err
}

func (m *Memory) UpsertComposition(ctx context.Context, c ledger.Composition) error {
	return m.write(func(s *state) error { return s.UpsertComposition(ctx, c) })
}

func (m *Memory) DeleteComposition(ctx context.Context, outputID, inputID ledger.ItemID) error {
	return m.write(func(s *state) error { return s.DeleteComposition(ctx, outputID, inputID) })
}

// --- records ---

func (m *Memory) InsertRun(ctx context.Context, run ledger.ProductionRun) error {
	return m.write(func(s *state) error { return s.InsertRun(ctx, run) })
}

func (m *Memory) GetRun(ctx context.Context, id ledger.RunID) (run *ledger.ProductionRun, err error) {
	err = m.read(func(s *state) error { run, err = s.GetRun(ctx, id); return err })
	return run, err
}

func (m *Memory) ListRuns(ctx context.Context, limit int) (runs []ledger.ProductionRun, err error) {
	err = m.read(func(s *state) error { runs, err = s.ListRuns(ctx, limit); return err })
	return runs, err
}

func (m *Memory) MarkRunReverted(ctx context.Context, id ledger.RunID, at time.Time) error {
	return m.write(func(s *state) error { return s.MarkRunReverted(ctx, id, at) })
}

func (m *Memory) AppendProductionLogs(ctx context.Context, logs []ledger.ProductionLog) error {
	return m.write(func(s *state) error { return s.AppendProductionLogs(ctx, logs) })
}

func (m *Memory) LogsByRun(ctx context.Context, runID ledger.RunID) (logs []ledger.ProductionLog, err error) {
	err = m.read(func(s *state) error { logs, err = s.LogsByRun(ctx, runID); return err })
	return logs, err
}

func (m *Memory) LogsByInputBatch(ctx context.Context, batchID ledger.BatchID) (logs []ledger.ProductionLog, err error) {
	err = m.read(func(s *state) error { logs, err = s.LogsByInputBatch(ctx, batchID); return err })
	return logs, err
}

func (m *Memory) LogsSince(ctx context.Context, since time.Time) (logs []ledger.ProductionLog, err error) {
	err = m.read(func(s *state) error { logs, err = s.LogsSince(ctx, since); return err })
	return logs, err
}

func (m *Memory) AppendWasteLog(ctx context.Context, w ledger.WasteLog) error {
	return m.write(func(s *state) error { return s.AppendWasteLog(ctx, w) })
}

func (m *Memory) WasteSince(ctx context.Context, since time.Time) (ws []ledger.WasteLog, err error) {
	err = m.read(func(s *state) error { ws, err = s.WasteSince(ctx, since); return err })
	return ws, err
}

func (m *Memory) InsertInvoice(ctx context.Context, inv ledger.Invoice) error {
	return m.write(func(s *state) error { return s.InsertInvoice(ctx, inv) })
}

func (m *Memory) GetInvoice(ctx context.Context, id ledger.InvoiceID) (inv *ledger.Invoice, err error) {
	err = m.read(func(s *state) error { inv, err = s.GetInvoice(ctx, id); return err })
	return inv, err
}

func (m *Memory) ListInvoices(ctx context.Context) (invs []ledger.Invoice, err error) {
	err = m.read(func(s *state) error { invs, err = s.ListInvoices(ctx); return err })
	return invs, err
}

func (m *Memory) DeleteInvoice(ctx context.Context, id ledger.InvoiceID) error {
	return m.write(func(s *state) error { return s.DeleteInvoice(ctx, id) })
}

// =============================================================================
// STATE - Unlocked tables; also the transactional view handed to WithTx
// =============================================================================

type state struct {
	items    map[ledger.ItemID]ledger.Item
	batches  map[ledger.BatchID]ledger.Batch
	comps    map[ledger.ItemID]map[ledger.ItemID]ledger.Composition
	runs     map[ledger.RunID]ledger.ProductionRun
	logs     []ledger.ProductionLog
	waste    []ledger.WasteLog
	invoices map[ledger.InvoiceID]ledger.Invoice
}

var _ ledger.Store = (*state)(nil)

func newState() *state {
	return &state{
		items:    make(map[ledger.ItemID]ledger.Item),
		batches:  make(map[ledger.BatchID]ledger.Batch),
		comps:    make(map[ledger.ItemID]map[ledger.ItemID]ledger.Composition),
		runs:     make(map[ledger.RunID]ledger.ProductionRun),
		invoices: make(map[ledger.InvoiceID]ledger.Invoice),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.batches {
		c.batches[k] = v
	}
	for out, edges := range s.comps {
		cp := make(map[ledger.ItemID]ledger.Composition, len(edges))
		for in, e := range edges {
			cp[in] = e
		}
		c.comps[out] = cp
	}
	for k, v := range s.runs {
		c.runs[k] = v
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	c.logs = append([]ledger.ProductionLog(nil), s.logs...)
	c.waste = append([]ledger.WasteLog(nil), s.waste...)
	return c
}

func (s *state) GetItem(_ context.Context, id ledger.ItemID) (*ledger.Item, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, ledger.NotFound("item", id)
	}
	return &item, nil
}

func (s *state) ListItems(_ context.Context) ([]ledger.Item, error) {
	items := make([]ledger.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *state) SaveItem(_ context.Context, item ledger.Item) error {
	s.items[item.ID] = item
	return nil
}

func (s *state) GetBatch(_ context.Context, id ledger.BatchID) (*ledger.Batch, error) {
	b, ok := s.batches[id]
	if !ok {
		return nil, ledger.NotFound("batch", id)
	}
	return &b, nil
}

func (s *state) ListBatches(_ context.Context, f ledger.BatchFilter) ([]ledger.Batch, error) {
	var out []ledger.Batch
	for _, b := range s.batches {
		if f.ItemID != "" && b.ItemID != f.ItemID {
			continue
		}
		if f.InvoiceID != "" && b.Source.InvoiceID != f.InvoiceID {
			continue
		}
		if f.ActiveOnly && !b.Active() {
			continue
		}
		out = append(out, b)
	}
	ledger.SortFIFO(out)
	return out, nil
}

func (s *state) LatestBatch(_ context.Context, itemID ledger.ItemID) (*ledger.Batch, error) {
	var latest *ledger.Batch
	for _, b := range s.batches {
		if b.ItemID != itemID {
			continue
		}
		if latest == nil || b.CreatedAt.After(latest.CreatedAt) ||
			(b.CreatedAt.Equal(latest.CreatedAt) && b.ID > latest.ID) {
			b := b
			latest = &b
		}
	}
	return latest, nil
}

func (s *state) InsertBatch(_ context.Context, b ledger.Batch) error {
	if _, exists := s.batches[b.ID]; exists {
		return fmt.Errorf("batch %s already exists", b.ID)
	}
	s.batches[b.ID] = b
	return nil
}

func (s *state) UpdateBatchQuantity(_ context.Context, b ledger.Batch) error {
	cur, ok := s.batches[b.ID]
	if !ok {
		return ledger.NotFound("batch", b.ID)
	}
	cur.QuantityCurrent = b.QuantityCurrent
	cur.Voided = b.Voided
	s.batches[b.ID] = cur
	return nil
}

func (s *state) DeleteBatch(_ context.Context, id ledger.BatchID) error {
	if _, ok := s.batches[id]; !ok {
		return ledger.NotFound("batch", id)
	}
	delete(s.batches, id)
	return nil
}

func (s *state) Compositions(_ context.Context, outputID ledger.ItemID) ([]ledger.Composition, error) {
	edges := s.comps[outputID]
	out := make([]ledger.Composition, 0, len(edges))
	for _, e := range edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InputItemID < out[j].InputItemID })
	return out, nil
}

func (s *state) AllCompositions(ctx context.Context) ([]ledger.Composition, error) {
	outputs := make([]ledger.ItemID, 0, len(s.comps))
	for out := range s.comps {
		outputs = append(outputs, out)
	}
	sort.Slice(outputs, func(i, j int) bool { return outputs[i] < outputs[j] })

	var all []ledger.Composition
	for _, out := range outputs {
		edges, _ := s.Compositions(ctx, out)
		all = append(all, edges...)
	}
	return all, nil
}

func (s *state) UpsertComposition(_ context.Context, c ledger.Composition) error {
	edges, ok := s.comps[c.OutputItemID]
	if !ok {
		edges = make(map[ledger.ItemID]ledger.Composition)
		s.comps[c.OutputItemID] = edges
	}
	edges[c.InputItemID] = c
	return nil
}

func (s *state) DeleteComposition(_ context.Context, outputID, inputID ledger.ItemID) error {
	edges := s.comps[outputID]
	if _, ok := edges[inputID]; !ok {
		return ledger.NotFound("composition", string(outputID)+"->"+string(inputID))
	}
	delete(edges, inputID)
	if len(edges) == 0 {
		delete(s.comps, outputID)
	}
	return nil
}

func (s *state) InsertRun(_ context.Context, run ledger.ProductionRun) error {
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("production run %s already exists", run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

func (s *state) GetRun(_ context.Context, id ledger.RunID) (*ledger.ProductionRun, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, ledger.NotFound("production run", id)
	}
	return &run, nil
}

func (s *state) ListRuns(_ context.Context, limit int) ([]ledger.ProductionRun, error) {
	runs := make([]ledger.ProductionRun, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID > runs[j].ID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *state) MarkRunReverted(_ context.Context, id ledger.RunID, at time.Time) error {
	run, ok := s.runs[id]
	if !ok {
		return ledger.NotFound("production run", id)
	}
	run.RevertedAt = &at
	s.runs[id] = run
	return nil
}

func (s *state) AppendProductionLogs(_ context.Context, logs []ledger.ProductionLog) error {
	s.logs = append(s.logs, logs...)
	return nil
}

func (s *state) LogsByRun(_ context.Context, runID ledger.RunID) ([]ledger.ProductionLog, error) {
	var out []ledger.ProductionLog
	for _, l := range s.logs {
		if l.RunID == runID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *state) LogsByInputBatch(_ context.Context, batchID ledger.BatchID) ([]ledger.ProductionLog, error) {
	var out []ledger.ProductionLog
	for _, l := range s.logs {
		if l.InputBatchID == batchID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *state) LogsSince(_ context.Context, since time.Time) ([]ledger.ProductionLog, error) {
	var out []ledger.ProductionLog
	for _, l := range s.logs {
		if !l.CreatedAt.Before(since) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *state) AppendWasteLog(_ context.Context, w ledger.WasteLog) error {
	s.waste = append(s.waste, w)
	return nil
}

func (s *state) WasteSince(_ context.Context, since time.Time) ([]ledger.WasteLog, error) {
	var out []ledger.WasteLog
	for _, w := range s.waste {
		if !w.CreatedAt.Before(since) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *state) InsertInvoice(_ context.Context, inv ledger.Invoice) error {
	if _, exists := s.invoices[inv.ID]; exists {
		return fmt.Errorf("invoice %s already exists", inv.ID)
	}
	s.invoices[inv.ID] = inv
	return nil
}

func (s *state) GetInvoice(_ context.Context, id ledger.InvoiceID) (*ledger.Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok {
		return nil, ledger.NotFound("invoice", id)
	}
	return &inv, nil
}

func (s *state) ListInvoices(_ context.Context) ([]ledger.Invoice, error) {
	out := make([]ledger.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *state) DeleteInvoice(_ context.Context, id ledger.InvoiceID) error {
	if _, ok := s.invoices[id]; !ok {
		return ledger.NotFound("invoice", id)
	}
	delete(s.invoices, id)
	return nil
}
