package recipe_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/batch-ledger/ledger"
	"github.com/warp/batch-ledger/ledger/store"
	"github.com/warp/batch-ledger/recipe"
	"github.com/warp/batch-ledger/units"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestGraph(t *testing.T) (*recipe.Graph, *store.Memory) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	for _, item := range []ledger.Item{
		{ID: "flour", Name: "Flour", Unit: "kg", Type: ledger.ItemRaw},
		{ID: "butter", Name: "Butter", Unit: "kg", Type: ledger.ItemRaw},
		{ID: "dough", Name: "Dough", Unit: "kg", Type: ledger.ItemPrepped, ShelfLifeDays: 2},
		{ID: "filling", Name: "Filling", Unit: "kg", Type: ledger.ItemPrepped},
		{ID: "pie", Name: "Pie", Unit: "portion", Type: ledger.ItemDish},
	} {
		require.NoError(t, mem.SaveItem(ctx, item))
	}
	return recipe.NewGraph(mem, units.Default(), zerolog.Nop()), mem
}

func addBatch(t *testing.T, mem *store.Memory, item ledger.ItemID, qty, cost string) ledger.BatchID {
	t.Helper()
	id := ledger.NewBatchID()
	require.NoError(t, mem.InsertBatch(context.Background(), ledger.Batch{
		ID:              id,
		ItemID:          item,
		QuantityInitial: dec(qty),
		QuantityCurrent: dec(qty),
		UnitCost:        dec(cost),
		Source:          ledger.FromInvoice("inv-1"),
	}))
	return id
}

// =============================================================================
// EDGE INSERTION
// =============================================================================

func TestAddEdge_SelfLoop_CycleDetected(t *testing.T) {
	g, _ := newTestGraph(t)

	err := g.AddEdge(context.Background(), "pie", "pie", dec("1"), "")

	assert.ErrorIs(t, err, ledger.ErrCycleDetected)
}

func TestAddEdge_IndirectCycle_DetectedAtInsertion(t *testing.T) {
	// GIVEN: pie -> dough -> flour
	// WHEN: Making dough depend on pie
	// THEN: CycleDetected, with the closing path, and no edge is stored

	g, mem := newTestGraph(t)
	ctx := context.Background()
	require.NoError(t, g.AddEdge(ctx, "dough", "flour", dec("0.5"), ""))
	require.NoError(t, g.AddEdge(ctx, "pie", "dough", dec("2"), ""))

	err := g.AddEdge(ctx, "dough", "pie", dec("1"), "")

	var cycle *ledger.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []ledger.ItemID{"dough", "pie", "dough"}, cycle.Path)

	edges, err := mem.Compositions(ctx, "dough")
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestAddEdge_TierViolation(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	cases := []struct{ output, input ledger.ItemID }{
		{"flour", "butter"},  // Raw <- Raw
		{"dough", "filling"}, // Prepped <- Prepped
		{"dough", "pie"},     // Prepped <- Dish
		{"flour", "dough"},   // Raw <- Prepped
	}
	for _, tc := range cases {
		err := g.AddEdge(ctx, tc.output, tc.input, dec("1"), "")
		assert.ErrorIs(t, err, ledger.ErrValidation, "%s <- %s", tc.output, tc.input)
	}
}

func TestAddEdge_Validation(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()

	assert.ErrorIs(t, g.AddEdge(ctx, "dough", "flour", dec("0"), ""), ledger.ErrValidation)
	assert.ErrorIs(t, g.AddEdge(ctx, "dough", "flour", dec("1"), "liter"), ledger.ErrValidation)
	assert.True(t, ledger.IsNotFound(g.AddEdge(ctx, "dough", "ghost", dec("1"), "")))
}

func TestSetRecipe_ReplacesAllOrNothing(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()
	require.NoError(t, g.AddEdge(ctx, "dough", "flour", dec("0.5"), ""))

	err := g.SetRecipe(ctx, "dough", []recipe.Ingredient{
		{InputItemID: "butter", Quantity: dec("0.2")},
		{InputItemID: "filling", Quantity: dec("1")}, // same tier
	})
	require.ErrorIs(t, err, ledger.ErrValidation)

	edges, err := g.GetRecipe(ctx, "dough")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, ledger.ItemID("flour"), edges[0].InputItemID)

	require.NoError(t, g.SetRecipe(ctx, "dough", []recipe.Ingredient{
		{InputItemID: "butter", Quantity: dec("0.2")},
	}))
	edges, err = g.GetRecipe(ctx, "dough")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, ledger.ItemID("butter"), edges[0].InputItemID)
}

// =============================================================================
// COST ROLLUP
// =============================================================================

func TestUnitCost_ThreeTierChain(t *testing.T) {
	// GIVEN: flour avg 1.5 (2@1 + 2@2), butter 4
	//        dough = 0.5 flour + 0.25 butter        = 0.75 + 1.00 = 1.75
	//        pie   = 2 dough   + 100 g butter       = 3.50 + 0.40 = 3.90
	// THEN: rollup equals the weighted sum down the chain

	g, mem := newTestGraph(t)
	ctx := context.Background()
	addBatch(t, mem, "flour", "2", "1")
	addBatch(t, mem, "flour", "2", "2")
	addBatch(t, mem, "butter", "5", "4")

	require.NoError(t, g.AddEdge(ctx, "dough", "flour", dec("0.5"), ""))
	require.NoError(t, g.AddEdge(ctx, "dough", "butter", dec("0.25"), ""))
	require.NoError(t, g.AddEdge(ctx, "pie", "dough", dec("2"), ""))
	require.NoError(t, g.AddEdge(ctx, "pie", "butter", dec("100"), "g"))

	flour, err := g.UnitCost(ctx, "flour")
	require.NoError(t, err)
	assert.True(t, flour.Equal(dec("1.5")), "flour %s", flour)

	dough, err := g.UnitCost(ctx, "dough")
	require.NoError(t, err)
	assert.True(t, dough.Equal(dec("1.75")), "dough %s", dough)

	pie, err := g.UnitCost(ctx, "pie")
	require.NoError(t, err)
	assert.True(t, pie.Equal(dec("3.9")), "pie %s", pie)

	bd, err := g.Breakdown(ctx, "pie")
	require.NoError(t, err)
	require.Len(t, bd.Ingredients, 2)
	assert.Equal(t, ledger.ItemID("butter"), bd.Ingredients[0].InputItemID)
	assert.True(t, bd.Ingredients[0].Quantity.Equal(dec("0.1")))
	assert.True(t, bd.Ingredients[1].Cost.Equal(dec("3.5")))
}

func TestUnitCost_FallsBackToLastKnownCost(t *testing.T) {
	g, mem := newTestGraph(t)
	ctx := context.Background()
	id := addBatch(t, mem, "flour", "2", "3")
	require.NoError(t, mem.UpdateBatchQuantity(ctx, ledger.Batch{ID: id, QuantityCurrent: decimal.Zero}))

	cost, err := g.UnitCost(ctx, "flour")
	require.NoError(t, err)
	assert.True(t, cost.Equal(dec("3")))

	none, err := g.UnitCost(ctx, "butter")
	require.NoError(t, err)
	assert.True(t, none.IsZero())
}

func TestUnitCost_CorruptedGraph_CycleDetected(t *testing.T) {
	// Edges written behind the graph's back still cannot loop the rollup.
	g, mem := newTestGraph(t)
	ctx := context.Background()
	require.NoError(t, mem.UpsertComposition(ctx, ledger.Composition{OutputItemID: "dough", InputItemID: "filling", QuantityRequired: dec("1")}))
	require.NoError(t, mem.UpsertComposition(ctx, ledger.Composition{OutputItemID: "filling", InputItemID: "dough", QuantityRequired: dec("1")}))

	_, err := g.UnitCost(ctx, "dough")

	var cycle *ledger.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []ledger.ItemID{"dough", "filling", "dough"}, cycle.Path)
}

func TestUnitCost_SharedSubRecipeComputedOnce(t *testing.T) {
	g, mem := newTestGraph(t)
	ctx := context.Background()
	addBatch(t, mem, "flour", "10", "2")
	require.NoError(t, g.AddEdge(ctx, "dough", "flour", dec("1"), ""))
	require.NoError(t, g.AddEdge(ctx, "filling", "flour", dec("1"), ""))
	require.NoError(t, g.AddEdge(ctx, "pie", "dough", dec("1"), ""))
	require.NoError(t, g.AddEdge(ctx, "pie", "filling", dec("1"), ""))
	require.NoError(t, g.AddEdge(ctx, "pie", "flour", dec("1"), ""))

	cost, err := g.UnitCost(ctx, "pie")
	require.NoError(t, err)
	assert.True(t, cost.Equal(dec("6")))
}

// =============================================================================
// REQUIREMENTS
// =============================================================================

func TestRequirements(t *testing.T) {
	g, _ := newTestGraph(t)
	ctx := context.Background()
	require.NoError(t, g.AddEdge(ctx, "dough", "flour", dec("500"), "g"))
	require.NoError(t, g.AddEdge(ctx, "dough", "butter", dec("0.25"), ""))

	reqs, err := g.Requirements(ctx, "dough", dec("4"))
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, ledger.ItemID("butter"), reqs[0].InputItemID)
	assert.True(t, reqs[0].Needed.Equal(dec("1")))
	assert.True(t, reqs[1].Needed.Equal(dec("2")), "500 g x 4 = 2 kg")

	_, err = g.Requirements(ctx, "flour", dec("1"))
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = g.Requirements(ctx, "filling", dec("1"))
	assert.ErrorIs(t, err, ledger.ErrNoRecipeDefined)
}
