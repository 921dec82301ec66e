package intake_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/batch-ledger/intake"
	"github.com/warp/batch-ledger/ledger"
)

func TestExpirySweeper_WritesOffExpiredBatchesOnly(t *testing.T) {
	// GIVEN: A flour batch expiring after 30 days and a milk batch without expiry
	// WHEN: Sweeping on day 29, then on day 31
	// THEN: Nothing on day 29; the flour batch is written off as Expired on day 31

	in, waste, l, mem := newTestIntake(t)
	ctx := context.Background()
	res := receive(t, in,
		intake.Line{ItemID: "flour", Quantity: dec("5"), UnitCost: dec("2")},
		intake.Line{ItemID: "milk", Quantity: dec("3"), UnitCost: dec("1")},
	)
	flour := res.Batches[0]
	sweeper := intake.NewExpirySweeper(l, waste, 0)

	early, err := sweeper.Sweep(ctx, testNow.AddDate(0, 0, 29))
	require.NoError(t, err)
	assert.Empty(t, early.WrittenOff)

	late, err := sweeper.Sweep(ctx, testNow.AddDate(0, 0, 31))
	require.NoError(t, err)

	require.Len(t, late.WrittenOff, 1)
	entry := late.WrittenOff[0]
	assert.Equal(t, flour.ID, entry.BatchID)
	assert.Equal(t, ledger.WasteExpired, entry.Reason)
	assert.True(t, entry.CostLoss.Equal(dec("10")))

	got, err := mem.GetBatch(ctx, flour.ID)
	require.NoError(t, err)
	assert.True(t, got.QuantityCurrent.IsZero())
	milk, err := mem.GetBatch(ctx, res.Batches[1].ID)
	require.NoError(t, err)
	assert.True(t, milk.QuantityCurrent.Equal(dec("3")))

	again, err := sweeper.Sweep(ctx, testNow.AddDate(0, 0, 32))
	require.NoError(t, err)
	assert.Empty(t, again.WrittenOff, "exhausted batch is no longer active")
}

func TestExpirySweeper_StartStop(t *testing.T) {
	_, waste, l, _ := newTestIntake(t)
	sweeper := intake.NewExpirySweeper(l, waste, time.Hour)

	sweeper.Start()
	sweeper.Start()
	sweeper.Stop()
	sweeper.Stop()
}
