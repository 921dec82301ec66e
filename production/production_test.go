package production_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/batch-ledger/intake"
	"github.com/warp/batch-ledger/ledger"
	"github.com/warp/batch-ledger/ledger/store"
	"github.com/warp/batch-ledger/production"
	"github.com/warp/batch-ledger/recipe"
	"github.com/warp/batch-ledger/units"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)

type env struct {
	mem      *store.Memory
	ledger   *ledger.Ledger
	graph    *recipe.Graph
	recorder *production.Recorder
	reverter *production.Reverter
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	for _, item := range []ledger.Item{
		{ID: "a", Name: "A", Unit: "kg", Type: ledger.ItemRaw},
		{ID: "b", Name: "B", Unit: "kg", Type: ledger.ItemRaw},
		{ID: "flour", Name: "Flour", Unit: "kg", Type: ledger.ItemRaw},
		{ID: "butter", Name: "Butter", Unit: "kg", Type: ledger.ItemRaw},
		{ID: "mix", Name: "Mix", Unit: "kg", Type: ledger.ItemPrepped},
		{ID: "dough", Name: "Dough", Unit: "kg", Type: ledger.ItemPrepped, ShelfLifeDays: 3},
		{ID: "pie", Name: "Pie", Unit: "portion", Type: ledger.ItemDish},
	} {
		require.NoError(t, mem.SaveItem(ctx, item))
	}
	l := ledger.New(mem, ledger.WithClock(func() time.Time { return testNow }))
	g := recipe.NewGraph(mem, units.Default(), zerolog.Nop())
	return &env{
		mem:      mem,
		ledger:   l,
		graph:    g,
		recorder: production.NewRecorder(l, g),
		reverter: production.NewReverter(l),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (e *env) stock(t *testing.T, item ledger.ItemID, qty, cost string, expiresInDays int) ledger.BatchID {
	t.Helper()
	ctx := context.Background()
	var exp *time.Time
	if expiresInDays > 0 {
		d := testNow.AddDate(0, 0, expiresInDays)
		exp = &d
	}
	var id ledger.BatchID
	require.NoError(t, e.ledger.Atomically(ctx, ledger.Scope{Items: []ledger.ItemID{item}}, func(tx *ledger.Tx) error {
		b, err := tx.CreateBatch(ctx, ledger.NewBatch{
			ItemID: item, Quantity: dec(qty), UnitCost: dec(cost), ExpiresAt: exp,
			Source: ledger.FromInvoice("inv-test"),
		})
		if err != nil {
			return err
		}
		id = b.ID
		return nil
	}))
	return id
}

func (e *env) edge(t *testing.T, out, in ledger.ItemID, qty string) {
	t.Helper()
	require.NoError(t, e.graph.AddEdge(context.Background(), out, in, dec(qty), ""))
}

func (e *env) current(t *testing.T, id ledger.BatchID) decimal.Decimal {
	t.Helper()
	b, err := e.mem.GetBatch(context.Background(), id)
	require.NoError(t, err)
	return b.QuantityCurrent
}

func (e *env) record(item ledger.ItemID, qty string) (*production.Result, error) {
	return e.recorder.Record(context.Background(), production.Request{OutputItemID: item, Quantity: dec(qty)})
}

// =============================================================================
// RECORD
// =============================================================================

func TestRecord_ConsumesFIFOAndCostsFromActualBatches(t *testing.T) {
	// GIVEN: dough = 2 flour + 1 butter
	//        flour 3@1 (exp d1), 5@2 (exp d2); butter 10@4
	// WHEN: Producing 2 dough (needs 4 flour, 2 butter)
	// THEN: flour drawn 3@1 + 1@2 -> weighted 1.25; unit cost = 2x1.25 + 1x4 = 6.5

	e := newEnv(t)
	f1 := e.stock(t, "flour", "3", "1", 1)
	f2 := e.stock(t, "flour", "5", "2", 2)
	bu := e.stock(t, "butter", "10", "4", 0)
	e.edge(t, "dough", "flour", "2")
	e.edge(t, "dough", "butter", "1")

	res, err := e.record("dough", "2")
	require.NoError(t, err)

	assert.True(t, res.UnitCost.Equal(dec("6.5")), "unit cost %s", res.UnitCost)
	assert.True(t, e.current(t, f1).IsZero())
	assert.True(t, e.current(t, f2).Equal(dec("4")))
	assert.True(t, e.current(t, bu).Equal(dec("8")))

	out, err := e.mem.GetBatch(context.Background(), res.OutputBatchID)
	require.NoError(t, err)
	assert.True(t, out.QuantityInitial.Equal(dec("2")))
	assert.Equal(t, res.RunID, out.Source.RunID)
	require.NotNil(t, out.ExpiresAt)
	assert.Equal(t, testNow.AddDate(0, 0, 3), *out.ExpiresAt)

	logs, err := e.mem.LogsByRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Len(t, logs, 3, "one row per consumed input batch")

	perItem := map[ledger.ItemID]decimal.Decimal{}
	for _, l := range logs {
		assert.Equal(t, res.OutputBatchID, l.OutputBatchID)
		perItem[l.InputItemID] = perItem[l.InputItemID].Add(l.QuantityUsed)
	}
	assert.True(t, perItem["flour"].Equal(dec("4")))
	assert.True(t, perItem["butter"].Equal(dec("2")))
}

func TestRecord_Shortfall_AbortsWithZeroMutation(t *testing.T) {
	// GIVEN: recipe 2A + 1B, stock exactly 6A and 2B
	// WHEN: Producing 3 (needs 6A + 3B)
	// THEN: InsufficientStock for B with shortfall 1; A untouched; no run

	e := newEnv(t)
	a := e.stock(t, "a", "6", "1", 0)
	b := e.stock(t, "b", "2", "1", 0)
	e.edge(t, "mix", "a", "2")
	e.edge(t, "mix", "b", "1")

	_, err := e.record("mix", "3")

	var short *ledger.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Len(t, short.Shortfalls, 1)
	assert.Equal(t, ledger.ItemID("b"), short.Shortfalls[0].ItemID)
	assert.True(t, short.Shortfalls[0].Missing().Equal(dec("1")))

	assert.True(t, e.current(t, a).Equal(dec("6")))
	assert.True(t, e.current(t, b).Equal(dec("2")))

	runs, err := e.mem.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
	mixes, err := e.mem.ListBatches(context.Background(), ledger.BatchFilter{ItemID: "mix"})
	require.NoError(t, err)
	assert.Empty(t, mixes)
}

func TestRecord_ReportsEveryShortIngredient(t *testing.T) {
	e := newEnv(t)
	e.stock(t, "a", "1", "1", 0)
	e.edge(t, "mix", "a", "2")
	e.edge(t, "mix", "b", "1")

	_, err := e.record("mix", "1")

	var short *ledger.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Len(t, short.Shortfalls, 2)
	assert.Equal(t, ledger.ItemID("a"), short.Shortfalls[0].ItemID)
	assert.Equal(t, ledger.ItemID("b"), short.Shortfalls[1].ItemID)
	assert.True(t, short.Shortfalls[1].Available.IsZero())
}

func TestRecord_ManualBatch(t *testing.T) {
	e := newEnv(t)
	early := e.stock(t, "flour", "5", "1", 1)
	late := e.stock(t, "flour", "5", "3", 5)
	e.stock(t, "butter", "5", "2", 0)
	e.edge(t, "dough", "flour", "2")
	e.edge(t, "dough", "butter", "1")

	res, err := e.recorder.Record(context.Background(), production.Request{
		OutputItemID:  "dough",
		Quantity:      dec("1"),
		ManualBatches: map[ledger.ItemID]ledger.BatchID{"flour": late},
	})
	require.NoError(t, err)

	assert.True(t, e.current(t, early).Equal(dec("5")))
	assert.True(t, e.current(t, late).Equal(dec("3")))
	assert.True(t, res.UnitCost.Equal(dec("8")), "2x3 + 1x2")

	_, err = e.recorder.Record(context.Background(), production.Request{
		OutputItemID:  "dough",
		Quantity:      dec("1"),
		ManualBatches: map[ledger.ItemID]ledger.BatchID{"a": early},
	})
	assert.ErrorIs(t, err, ledger.ErrValidation, "a is not an ingredient of dough")
}

func TestRecord_InputErrors(t *testing.T) {
	e := newEnv(t)

	_, err := e.record("flour", "1")
	assert.ErrorIs(t, err, ledger.ErrValidation, "raw items are not produced")

	_, err = e.record("pie", "1")
	assert.ErrorIs(t, err, ledger.ErrNoRecipeDefined)

	_, err = e.record("ghost", "1")
	assert.True(t, ledger.IsNotFound(err))

	e.edge(t, "dough", "flour", "1")
	_, err = e.record("dough", "0")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// REVERT
// =============================================================================

func TestRevert_RoundTrip(t *testing.T) {
	// GIVEN: A recorded run drawing from three batches
	// WHEN: Reverting it immediately
	// THEN: Every input batch is back at its pre-production quantity and the
	//       output batch is zeroed and voided

	e := newEnv(t)
	f1 := e.stock(t, "flour", "3", "1", 1)
	f2 := e.stock(t, "flour", "5", "2", 2)
	bu := e.stock(t, "butter", "10", "4", 0)
	e.edge(t, "dough", "flour", "2")
	e.edge(t, "dough", "butter", "1")

	res, err := e.record("dough", "2")
	require.NoError(t, err)

	rev, err := e.reverter.Revert(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Len(t, rev.Restored, 3)

	assert.True(t, e.current(t, f1).Equal(dec("3")))
	assert.True(t, e.current(t, f2).Equal(dec("5")))
	assert.True(t, e.current(t, bu).Equal(dec("10")))

	out, err := e.mem.GetBatch(context.Background(), res.OutputBatchID)
	require.NoError(t, err)
	assert.True(t, out.QuantityCurrent.IsZero())
	assert.True(t, out.Voided)

	run, err := e.mem.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	require.NotNil(t, run.RevertedAt)

	logs, err := e.mem.LogsByRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Len(t, logs, 3, "logs are kept after revert")
}

func TestRevert_Twice_AlreadyReverted(t *testing.T) {
	e := newEnv(t)
	f := e.stock(t, "flour", "5", "1", 0)
	e.edge(t, "dough", "flour", "1")
	res, err := e.record("dough", "2")
	require.NoError(t, err)

	_, err = e.reverter.Revert(context.Background(), res.RunID)
	require.NoError(t, err)

	_, err = e.reverter.Revert(context.Background(), res.RunID)
	assert.ErrorIs(t, err, ledger.ErrAlreadyReverted)
	assert.True(t, e.current(t, f).Equal(dec("5")), "no double restore")
}

func TestRevert_UnknownRun(t *testing.T) {
	e := newEnv(t)
	_, err := e.reverter.Revert(context.Background(), "nope")
	assert.True(t, ledger.IsNotFound(err))
}

func TestRevert_OutputConsumedDownstream_Conflict(t *testing.T) {
	// GIVEN: dough run D, then pie run P drawing on D's output
	// WHEN: Reverting D
	// THEN: PartialConsumptionConflict naming P; after reverting P, D reverts

	e := newEnv(t)
	f := e.stock(t, "flour", "10", "1", 0)
	e.edge(t, "dough", "flour", "1")
	e.edge(t, "pie", "dough", "1")

	dough, err := e.record("dough", "4")
	require.NoError(t, err)
	pie, err := e.record("pie", "1")
	require.NoError(t, err)

	_, err = e.reverter.Revert(context.Background(), dough.RunID)
	var conflict *ledger.ConsumptionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []ledger.RunID{pie.RunID}, conflict.ConsumedBy)
	assert.True(t, e.current(t, f).Equal(dec("6")), "nothing restored")

	_, err = e.reverter.Revert(context.Background(), pie.RunID)
	require.NoError(t, err)
	_, err = e.reverter.Revert(context.Background(), dough.RunID)
	require.NoError(t, err)
	assert.True(t, e.current(t, f).Equal(dec("10")))
}

func TestRevert_WastedOutputStillReverts(t *testing.T) {
	// GIVEN: 4 dough made from 10 flour, then 1 dough dropped
	// WHEN: Reverting the run
	// THEN: The flour is fully restored and the output batch is voided at zero

	e := newEnv(t)
	flour := e.stock(t, "flour", "10", "1", 0)
	e.edge(t, "dough", "flour", "1")
	res, err := e.record("dough", "4")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = intake.NewWasteRecorder(e.ledger).LogWaste(ctx, intake.WasteRequest{
		BatchID: res.OutputBatchID, Quantity: dec("1"), Reason: ledger.WasteDropped,
	})
	require.NoError(t, err)

	_, err = e.reverter.Revert(ctx, res.RunID)
	require.NoError(t, err)

	f, err := e.mem.GetBatch(ctx, flour)
	require.NoError(t, err)
	assert.True(t, f.QuantityCurrent.Equal(dec("10")), "got %s", f.QuantityCurrent)

	out, err := e.mem.GetBatch(ctx, res.OutputBatchID)
	require.NoError(t, err)
	assert.True(t, out.Voided)
	assert.True(t, out.QuantityCurrent.IsZero())
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestRecord_ConcurrentRunsNeverOverdraw(t *testing.T) {
	// GIVEN: 10 flour, dough = 1 flour
	// WHEN: 20 goroutines each produce 1 dough
	// THEN: exactly 10 succeed, the rest fail InsufficientStock, flour is 0

	e := newEnv(t)
	f := e.stock(t, "flour", "10", "1", 0)
	e.edge(t, "dough", "flour", "1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, short := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.record("dough", "1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, ledger.ErrInsufficientStock):
				short++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, 10, short)
	assert.True(t, e.current(t, f).IsZero())
}
