// Package keylock provides per-key mutual exclusion whose waits honor context
// cancellation. Idle keys are released so the table does not grow without
// bound.
package keylock

import (
	"context"
	"sync"
)

// Table serializes holders of the same key. The zero value is not usable; call
// New.
type Table struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

// New creates an empty lock table.
func New() *Table {
	return &Table{locks: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done. The returned release func is
// idempotent.
func (t *Table) Lock(ctx context.Context, key string) (func(), error) {
	e := t.acquireRef(key)
	select {
	case e.sem <- struct{}{}:
		return t.releaser(key, e), nil
	case <-ctx.Done():
		t.dropRef(key, e)
		return nil, ctx.Err()
	}
}

// TryLock takes key only if nobody holds it.
func (t *Table) TryLock(key string) (func(), bool) {
	e := t.acquireRef(key)
	select {
	case e.sem <- struct{}{}:
		return t.releaser(key, e), true
	default:
		t.dropRef(key, e)
		return nil, false
	}
}

// Len reports how many keys are currently held or awaited.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

func (t *Table) acquireRef(key string) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.locks[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		t.locks[key] = e
	}
	e.refs++
	return e
}

func (t *Table) dropRef(key string, e *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(t.locks, key)
	}
}

func (t *Table) releaser(key string, e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			t.dropRef(key, e)
		})
	}
}
