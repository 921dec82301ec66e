package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeKeys_ItemsBeforeBatchesSortedAndDeduplicated(t *testing.T) {
	s := Scope{
		Items:   []ItemID{"sugar", "flour", "sugar", ""},
		Batches: []BatchID{"b2", "b1"},
	}

	keys := s.keys()

	assert.Equal(t, []lockKey{
		{kind: lockItem, id: "flour"},
		{kind: lockItem, id: "sugar"},
		{kind: lockBatch, id: "b1"},
		{kind: lockBatch, id: "b2"},
	}, keys)
}

func TestLocks_SameItemSerializes(t *testing.T) {
	locks := NewLocks()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locks.Acquire(ctx, Scope{Items: []ItemID{"flour"}})
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, locks.size(), "idle slots are dropped")
}

func TestLocks_DifferentItemsDoNotBlock(t *testing.T) {
	locks := NewLocks()
	ctx := context.Background()

	release, err := locks.Acquire(ctx, Scope{Items: []ItemID{"flour"}})
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	other, err := locks.Acquire(ctx, Scope{Items: []ItemID{"sugar"}})
	require.NoError(t, err)
	other()
}

func TestLocks_CancelledWait_ConcurrencyConflictAndNothingHeld(t *testing.T) {
	// GIVEN: flour is held
	// WHEN: A scope {egg, flour} gives up waiting
	// THEN: ConcurrencyConflict wrapping the deadline, and egg is released

	locks := NewLocks()
	held, err := locks.Acquire(context.Background(), Scope{Items: []ItemID{"flour"}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Acquire(ctx, Scope{Items: []ItemID{"flour", "egg"}})

	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	egg, err := locks.Acquire(context.Background(), Scope{Items: []ItemID{"egg"}})
	require.NoError(t, err)
	egg()

	held()
	held() // idempotent
	assert.Equal(t, 0, locks.size())
}

func TestLocks_OpposingOrdersDoNotDeadlock(t *testing.T) {
	locks := NewLocks()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			release, err := locks.Acquire(ctx, Scope{Items: []ItemID{"a", "b"}, Batches: []BatchID{"x"}})
			if assert.NoError(t, err) {
				release()
			}
		}()
		go func() {
			defer wg.Done()
			release, err := locks.Acquire(ctx, Scope{Items: []ItemID{"b", "a"}, Batches: []BatchID{"x"}})
			if assert.NoError(t, err) {
				release()
			}
		}()
	}
	wg.Wait()
}
