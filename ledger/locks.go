package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// =============================================================================
// SCOPE - What an atomic operation is allowed to touch
// =============================================================================

// Scope names the items whose batch sets an operation mutates, and the
// batches that need their own lock (output batches checked by revert).
type Scope struct {
	Items   []ItemID
	Batches []BatchID
}

func (s Scope) HasItem(id ItemID) bool {
	for _, it := range s.Items {
		if it == id {
			return true
		}
	}
	return false
}

type lockKind int

const (
	lockItem lockKind = iota
	lockBatch
)

type lockKey struct {
	kind lockKind
	id   string
}

func (k lockKey) String() string {
	if k.kind == lockItem {
		return "item " + k.id
	}
	return "batch " + k.id
}

// keys returns the deduplicated lock keys in acquisition order: all items
// sorted by id, then all batches sorted by id.
func (s Scope) keys() []lockKey {
	seen := make(map[lockKey]bool, len(s.Items)+len(s.Batches))
	keys := make([]lockKey, 0, len(s.Items)+len(s.Batches))
	add := func(k lockKey) {
		if k.id == "" || seen[k] {
			return
		}
		seen[k] = true
		keys = append(keys, k)
	}
	for _, id := range s.Items {
		add(lockKey{kind: lockItem, id: string(id)})
	}
	for _, id := range s.Batches {
		add(lockKey{kind: lockBatch, id: string(id)})
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].kind != keys[j].kind {
			return keys[i].kind < keys[j].kind
		}
		return keys[i].id < keys[j].id
	})
	return keys
}

// =============================================================================
// LOCKS - Per-item / per-batch mutual exclusion
// =============================================================================

// Locks serializes mutations per item and per batch. Keys are always taken in
// Scope.keys() order, so two scopes can never wait on each other in a cycle.
// Idle slots are dropped; the map only holds keys that are locked or awaited.
type Locks struct {
	mu    sync.Mutex
	slots map[lockKey]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocks() *Locks {
	return &Locks{slots: make(map[lockKey]*lockSlot)}
}

// Acquire blocks until every key of scope is held or ctx is done. The returned
// release func is idempotent. On cancellation nothing stays held and the error
// wraps both ErrConcurrencyConflict and ctx.Err().
func (l *Locks) Acquire(ctx context.Context, scope Scope) (func(), error) {
	keys := scope.keys()
	held := make([]lockKey, 0, len(keys))

	for _, k := range keys {
		s := l.ref(k)
		select {
		case s.ch <- struct{}{}:
			held = append(held, k)
		case <-ctx.Done():
			l.unref(k)
			l.releaseAll(held)
			return nil, fmt.Errorf("%w: waiting for %s: %w", ErrConcurrencyConflict, k, ctx.Err())
		}
	}

	var once sync.Once
	return func() { once.Do(func() { l.releaseAll(held) }) }, nil
}

func (l *Locks) ref(k lockKey) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[k]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[k] = s
	}
	s.refs++
	return s
}

func (l *Locks) unref(k lockKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropLocked(k)
}

func (l *Locks) releaseAll(held []lockKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(held) - 1; i >= 0; i-- {
		s := l.slots[held[i]]
		<-s.ch
		l.dropLocked(held[i])
	}
}

func (l *Locks) dropLocked(k lockKey) {
	s := l.slots[k]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, k)
	}
}

// size reports the number of live slots (tests).
func (l *Locks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
