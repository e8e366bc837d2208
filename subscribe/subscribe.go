// Package subscribe implements the reactive subscription engine (C9): it
// indexes outstanding read-set tokens and invalidates them as commits
// arrive over the write log, waking whatever is waiting on each token.
package subscribe

import (
	"sync"

	"github.com/riftdb/rift/store"
)

// Handle identifies one registered subscription. Handles are
// generation-indexed so a token can reference registry state without
// preventing its retirement (§9 Design Notes, "Cyclic ownership in
// subscriptions").
type Handle uint64

type entry struct {
	token    store.Token
	notifyCh chan struct{}
	closed   bool
}

// Engine is the §4.9 subscription engine.
type Engine struct {
	mu         sync.Mutex
	next       Handle
	byHandle   map[Handle]*entry
	generation uint64
}

func NewEngine() *Engine {
	return &Engine{byHandle: make(map[Handle]*entry)}
}

// Register freezes token into a new subscription and returns a handle plus
// a channel that's closed exactly once, when the token is invalidated.
func (e *Engine) Register(token store.Token) (Handle, <-chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	h := e.next
	ch := make(chan struct{})
	e.byHandle[h] = &entry{token: token, notifyCh: ch}
	return h, ch
}

// Drop releases a handle once no waiter holds it, per §4.9.
func (e *Engine) Drop(h Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.byHandle, h)
}

// Outstanding reports how many tokens are currently registered, used by
// tests and diagnostics.
func (e *Engine) Outstanding() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.byHandle)
}

// OnCommit evaluates every outstanding token's read set against a
// committed batch and wakes the ones that intersect it, per §4.9's
// "(index_id, key_range)" and "(table, id)" indexing description —
// implemented here as a linear scan, adequate at the scale of a single
// deployment's outstanding subscriptions; a future optimization would
// replace this with the interval-tree-plus-hashmap structure §4.9
// describes for O(W · log T) complexity.
func (e *Engine) OnCommit(batch store.Batch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for h, ent := range e.byHandle {
		if ent.closed {
			continue
		}
		for _, w := range batch.Writes {
			if ent.token.ReadSet.Intersects(w, batch.IndexDeltas) {
				ent.closed = true
				close(ent.notifyCh)
				delete(e.byHandle, h)
				break
			}
		}
	}
}

// Run subscribes to wl and feeds every commit into OnCommit until stop is
// closed or the write log closes the channel; callers typically start
// this once at startup.
func (e *Engine) Run(stop <-chan struct{}, wl *store.WriteLog) {
	ch, cancel := wl.Subscribe()
	defer cancel()
	for {
		select {
		case <-stop:
			return
		case batch, ok := <-ch:
			if !ok {
				return
			}
			e.OnCommit(batch)
		}
	}
}
