package postgres_test

import (
	"context"
	"os"
	"sync"
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
	"github.com/warp/batch-ledger/store/postgres"
	"github.com/warp/batch-ledger/units"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// newTestStore connects to TEST_DATABASE_URL and empties it. Tests are
// skipped when the variable is unset.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := postgres.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Reset(ctx))

	for _, item := range []ledger.Item{
		{ID: "flour", Name: "Flour", Unit: "kg", Type: ledger.ItemRaw},
		{ID: "butter", Name: "Butter", Unit: "kg", Type: ledger.ItemRaw},
		{ID: "dough", Name: "Dough", Unit: "kg", Type: ledger.ItemPrepped, ShelfLifeDays: 2},
	} {
		require.NoError(t, s.SaveItem(ctx, item))
	}
	return s
}

func TestPostgres_DecimalsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, s.InsertInvoice(ctx, ledger.Invoice{ID: "inv-1", SupplierName: "Mill", TotalCost: dec("12.3456"), CreatedAt: now}))
	require.NoError(t, s.InsertBatch(ctx, ledger.Batch{
		ID: "b1", ItemID: "flour",
		QuantityInitial: dec("10.125"), QuantityCurrent: dec("10.125"), UnitCost: dec("1.2193"),
		Source: ledger.FromInvoice("inv-1"), CreatedAt: now,
	}))

	b, err := s.GetBatch(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, b.QuantityInitial.Equal(dec("10.125")))
	assert.True(t, b.UnitCost.Equal(dec("1.2193")))
	assert.Nil(t, b.ExpiresAt)
	assert.Equal(t, ledger.InvoiceID("inv-1"), b.Source.InvoiceID)
	assert.True(t, b.CreatedAt.Equal(now))

	_, err = s.GetBatch(ctx, "ghost")
	assert.True(t, ledger.IsNotFound(err))
}

func TestPostgres_ConcurrentProductionNeverOversells(t *testing.T) {
	// GIVEN: 10 kg flour and a recipe needing 1 kg per unit
	// WHEN: 20 goroutines each produce one unit
	// THEN: Exactly 10 succeed and the flour batch ends at zero

	s := newTestStore(t)
	ctx := context.Background()
	l := ledger.New(s)
	g := recipe.NewGraph(s, units.Default(), zerolog.Nop())
	require.NoError(t, g.AddEdge(ctx, "dough", "flour", dec("1"), ""))
	_, err := intake.NewInvoiceIntake(l, units.Default()).CreateFromInvoiceLines(ctx, intake.InvoiceInput{
		SupplierName: "Mill",
		Lines:        []intake.Line{{ItemID: "flour", Quantity: dec("10"), UnitCost: dec("1")}},
	})
	require.NoError(t, err)

	rec := production.NewRecorder(l, g)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := rec.Record(ctx, production.Request{OutputItemID: "dough", Quantity: dec("1")}); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	flour, err := s.ListBatches(ctx, ledger.BatchFilter{ItemID: "flour"})
	require.NoError(t, err)
	require.Len(t, flour, 1)
	assert.True(t, flour[0].QuantityCurrent.IsZero())
}
