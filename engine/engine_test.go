package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/batch-ledger/catalog"
	"github.com/warp/batch-ledger/engine"
	"github.com/warp/batch-ledger/ledger"
	"github.com/warp/batch-ledger/ledger/store"
	"github.com/warp/batch-ledger/production"
)

func TestEngine_DemoProductionFlow(t *testing.T) {
	// GIVEN: An engine over the in-memory store seeded with the bakery demo
	// WHEN: Producing dough, then tarts from that dough and custard
	// THEN: The tart run draws from the freshly produced batches and the
	//       dough run can no longer be reverted

	ctx := context.Background()
	now := time.Date(2025, time.July, 1, 6, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	e := engine.New(mem, engine.Options{Clock: func() time.Time { return now }})

	seed, err := catalog.Demo("bakery")
	require.NoError(t, err)
	require.NoError(t, seed.Apply(ctx, mem, e.Recipes, e.Invoices))

	dough, err := e.Production.Record(ctx, production.Request{OutputItemID: "dough", Quantity: decimal.NewFromInt(2)})
	require.NoError(t, err)
	_, err = e.Production.Record(ctx, production.Request{OutputItemID: "custard", Quantity: decimal.NewFromInt(1)})
	require.NoError(t, err)
	tarts, err := e.Production.Record(ctx, production.Request{OutputItemID: "tart", Quantity: decimal.NewFromInt(4)})
	require.NoError(t, err)

	require.Len(t, tarts.IngredientsUsed, 2)
	var drawn []ledger.BatchID
	for _, u := range tarts.IngredientsUsed {
		if u.ItemID == "dough" {
			for _, a := range u.Batches {
				drawn = append(drawn, a.BatchID)
			}
		}
	}
	assert.Equal(t, []ledger.BatchID{dough.OutputBatchID}, drawn)

	_, err = e.Reverts.Revert(ctx, dough.RunID)
	assert.ErrorIs(t, err, ledger.ErrPartialConsumptionConflict)

	_, err = e.Reverts.Revert(ctx, tarts.RunID)
	require.NoError(t, err)
	_, err = e.Reverts.Revert(ctx, dough.RunID)
	assert.NoError(t, err, "downstream run reverted first")
}
