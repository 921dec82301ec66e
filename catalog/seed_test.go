package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/batch-ledger/catalog"
	"github.com/warp/batch-ledger/intake"
	"github.com/warp/batch-ledger/ledger"
	"github.com/warp/batch-ledger/ledger/store"
	"github.com/warp/batch-ledger/recipe"
	"github.com/warp/batch-ledger/units"
)

const seedYAML = `
items:
  - id: flour
    name: Flour
    unit: kg
    type: Raw
    shelf_life_days: 180
  - id: dough
    name: Dough
    unit: kg
    type: Prepped
    shelf_life_days: 2
recipes:
  - output: dough
    ingredients:
      - input: flour
        quantity: "600"
        unit: g
stock:
  - supplier: Opening balance
    lines:
      - item: flour
        quantity: "25"
        unit_cost: "1.10"
`

func TestLoadAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	seed, err := catalog.Load(path)
	require.NoError(t, err)
	require.Len(t, seed.Items, 2)

	ctx := context.Background()
	mem := store.NewMemory()
	l := ledger.New(mem)
	g := recipe.NewGraph(mem, units.Default(), zerolog.Nop())
	require.NoError(t, seed.Apply(ctx, mem, g, intake.NewInvoiceIntake(l, units.Default())))

	dough, err := mem.GetItem(ctx, "dough")
	require.NoError(t, err)
	assert.Equal(t, ledger.ItemPrepped, dough.Type)

	reqs, err := g.Requirements(ctx, "dough", decimal.NewFromInt(1))
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].PerUnit.Equal(decimal.RequireFromString("0.6")))

	batches, err := mem.ListBatches(ctx, ledger.BatchFilter{ItemID: "flour"})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.True(t, batches[0].QuantityInitial.Equal(decimal.NewFromInt(25)))
}

func TestParse_Rejects(t *testing.T) {
	_, err := catalog.Parse([]byte("items:\n  - id: x\n    type: Snack\n"))
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = catalog.Parse([]byte("items:\n  - id: x\n    type: Raw\n  - id: x\n    type: Raw\n"))
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = catalog.Parse([]byte("items: [:"))
	assert.Error(t, err)
}

func TestApply_CyclicRecipeRejected(t *testing.T) {
	seed, err := catalog.Parse([]byte(`
items:
  - {id: a, unit: kg, type: Prepped}
recipes:
  - output: a
    ingredients:
      - {input: a, quantity: "1"}
`))
	require.NoError(t, err)

	mem := store.NewMemory()
	l := ledger.New(mem)
	g := recipe.NewGraph(mem, units.Default(), zerolog.Nop())
	err = seed.Apply(context.Background(), mem, g, intake.NewInvoiceIntake(l, units.Default()))

	assert.ErrorIs(t, err, ledger.ErrCycleDetected)
}

func TestDemo_BakeryAppliesCleanly(t *testing.T) {
	// GIVEN: The built-in bakery demo
	// WHEN: Applying it to an empty store
	// THEN: Every recipe is accepted and a tart has a positive rolled-up cost

	require.Contains(t, catalog.Demos(), "bakery")
	seed, err := catalog.Demo("bakery")
	require.NoError(t, err)

	ctx := context.Background()
	mem := store.NewMemory()
	l := ledger.New(mem)
	g := recipe.NewGraph(mem, units.Default(), zerolog.Nop())
	require.NoError(t, seed.Apply(ctx, mem, g, intake.NewInvoiceIntake(l, units.Default())))

	cost, err := g.UnitCost(ctx, "tart")
	require.NoError(t, err)
	assert.True(t, cost.IsPositive())

	milk, err := mem.ListBatches(ctx, ledger.BatchFilter{ItemID: "milk"})
	require.NoError(t, err)
	require.Len(t, milk, 1)
	assert.True(t, milk[0].QuantityInitial.Equal(decimal.NewFromInt(12)), "one case is 12 liters")

	_, err = catalog.Demo("nope")
	assert.Error(t, err)
}
