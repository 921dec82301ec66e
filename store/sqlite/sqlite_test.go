package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/batch-ledger/intake"
	"github.com/warp/batch-ledger/ledger"
	"github.com/warp/batch-ledger/production"
	"github.com/warp/batch-ledger/recipe"
	"github.com/warp/batch-ledger/store/sqlite"
	"github.com/warp/batch-ledger/units"
)

var testNow = time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	for _, item := range []ledger.Item{
		{ID: "flour", Name: "Flour", Unit: "kg", Type: ledger.ItemRaw, ShelfLifeDays: 90},
		{ID: "butter", Name: "Butter", Unit: "kg", Type: ledger.ItemRaw},
		{ID: "dough", Name: "Dough", Unit: "kg", Type: ledger.ItemPrepped, ShelfLifeDays: 2},
	} {
		require.NoError(t, s.SaveItem(ctx, item))
	}
	return s
}

func insertBatch(t *testing.T, s *sqlite.Store, id ledger.BatchID, qty string, exp *time.Time) {
	t.Helper()
	ctx := context.Background()
	inv := ledger.InvoiceID("inv-" + string(id))
	require.NoError(t, s.InsertInvoice(ctx, ledger.Invoice{ID: inv, SupplierName: "Mill", TotalCost: dec("0"), CreatedAt: testNow}))
	require.NoError(t, s.InsertBatch(ctx, ledger.Batch{
		ID: id, ItemID: "flour",
		QuantityInitial: dec(qty), QuantityCurrent: dec(qty), UnitCost: dec("1.25"),
		ExpiresAt: exp, Source: ledger.FromInvoice(inv), CreatedAt: testNow,
	}))
}

func TestItems_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item, err := s.GetItem(ctx, "dough")
	require.NoError(t, err)
	assert.Equal(t, ledger.ItemPrepped, item.Type)
	assert.Equal(t, 2, item.ShelfLifeDays)

	items, err := s.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	_, err = s.GetItem(ctx, "ghost")
	assert.True(t, ledger.IsNotFound(err))
}

func TestListBatches_FIFOOrder(t *testing.T) {
	// GIVEN: Batches expiring in 5 days, never, in 1 day, and two tied at 3 days
	// WHEN: Listing flour batches
	// THEN: Expiration ascending with the non-expiring batch last, ties by id

	s := newTestStore(t)
	at := func(days int) *time.Time { d := testNow.AddDate(0, 0, days); return &d }
	insertBatch(t, s, "b5", "1", at(5))
	insertBatch(t, s, "never", "1", nil)
	insertBatch(t, s, "b1", "1", at(1))
	insertBatch(t, s, "tie-b", "1", at(3))
	insertBatch(t, s, "tie-a", "1", at(3))

	batches, err := s.ListBatches(context.Background(), ledger.BatchFilter{ItemID: "flour"})
	require.NoError(t, err)

	var ids []ledger.BatchID
	for _, b := range batches {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []ledger.BatchID{"b1", "tie-a", "tie-b", "b5", "never"}, ids)
	assert.True(t, batches[0].UnitCost.Equal(dec("1.25")))
	assert.Equal(t, *at(1), *batches[0].ExpiresAt)
}

func TestUpdateBatchQuantity_ActiveFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertBatch(t, s, "b1", "4", nil)
	insertBatch(t, s, "b2", "4", nil)

	b, err := s.GetBatch(ctx, "b1")
	require.NoError(t, err)
	b.QuantityCurrent = decimal.Zero
	require.NoError(t, s.UpdateBatchQuantity(ctx, *b))

	active, err := s.ListBatches(ctx, ledger.BatchFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, ledger.BatchID("b2"), active[0].ID)

	err = s.UpdateBatchQuantity(ctx, ledger.Batch{ID: "ghost"})
	assert.True(t, ledger.IsNotFound(err))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.InsertInvoice(ctx, ledger.Invoice{ID: "inv-1", SupplierName: "Mill", TotalCost: dec("3"), CreatedAt: testNow}); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	_, err = s.GetInvoice(ctx, "inv-1")
	assert.True(t, ledger.IsNotFound(err))
}

func TestCompositions_UpsertAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertComposition(ctx, ledger.Composition{OutputItemID: "dough", InputItemID: "flour", QuantityRequired: dec("2")}))
	require.NoError(t, s.UpsertComposition(ctx, ledger.Composition{OutputItemID: "dough", InputItemID: "flour", QuantityRequired: dec("2.5"), Unit: "kg"}))
	require.NoError(t, s.UpsertComposition(ctx, ledger.Composition{OutputItemID: "dough", InputItemID: "butter", QuantityRequired: dec("1")}))

	edges, err := s.Compositions(ctx, "dough")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, ledger.ItemID("butter"), edges[0].InputItemID)
	assert.True(t, edges[1].QuantityRequired.Equal(dec("2.5")))
	assert.Equal(t, "kg", edges[1].Unit)

	require.NoError(t, s.DeleteComposition(ctx, "dough", "butter"))
	assert.True(t, ledger.IsNotFound(s.DeleteComposition(ctx, "dough", "butter")))
}

func TestEngine_ProduceAndRevertOnSQLite(t *testing.T) {
	// GIVEN: A SQLite-backed engine with 10 kg flour and 3 kg butter received
	// WHEN: Producing 2 dough (2 flour + 1 butter each) and reverting it
	// THEN: Stock, runs and logs survive the round trip through SQL

	s := newTestStore(t)
	ctx := context.Background()
	l := ledger.New(s, ledger.WithClock(func() time.Time { return testNow }))
	g := recipe.NewGraph(s, units.Default(), zerolog.Nop())
	require.NoError(t, g.AddEdge(ctx, "dough", "flour", dec("2"), ""))
	require.NoError(t, g.AddEdge(ctx, "dough", "butter", dec("1"), ""))

	_, err := intake.NewInvoiceIntake(l, units.Default()).CreateFromInvoiceLines(ctx, intake.InvoiceInput{
		SupplierName: "Wholesale",
		Lines: []intake.Line{
			{ItemID: "flour", Quantity: dec("10"), UnitCost: dec("2")},
			{ItemID: "butter", Quantity: dec("3"), UnitCost: dec("4")},
		},
	})
	require.NoError(t, err)

	res, err := production.NewRecorder(l, g).Record(ctx, production.Request{OutputItemID: "dough", Quantity: dec("2")})
	require.NoError(t, err)
	assert.True(t, res.UnitCost.Equal(dec("8")))

	logs, err := s.LogsByRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	_, err = production.NewReverter(l).Revert(ctx, res.RunID)
	require.NoError(t, err)

	run, err := s.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	require.True(t, run.Reverted())
	assert.Equal(t, testNow, *run.RevertedAt)

	flour, err := s.ListBatches(ctx, ledger.BatchFilter{ItemID: "flour"})
	require.NoError(t, err)
	assert.True(t, flour[0].QuantityCurrent.Equal(dec("10")))

	out, err := s.GetBatch(ctx, res.OutputBatchID)
	require.NoError(t, err)
	assert.True(t, out.Voided)
	assert.Equal(t, res.RunID, out.Source.RunID)
}
