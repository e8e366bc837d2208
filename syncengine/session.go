package syncengine

import (
	"context"
	"sync"

	"github.com/riftdb/rift/funrun"
	"github.com/riftdb/rift/metrics"
	"github.com/riftdb/rift/store"
	"github.com/riftdb/rift/value"
)

// deltaBufferSize bounds how many deltas a slow consumer lets pile up
// before the dispatcher starts coalescing per-query updates instead of
// blocking the whole session (§4.15 "drops intermediate results").
const deltaBufferSize = 1

type watchedQuery struct {
	src        funrun.Source
	args       value.Value
	lastResult value.Value
	haveResult bool
	cancel     context.CancelFunc
}

// Session is one client connection's subscription state: its open
// queries, its identity, and the ordered outbound delta stream.
type Session struct {
	engine   *Engine
	identity store.Identity

	mu      sync.Mutex
	queries map[QueryKey]*watchedQuery
	pending map[QueryKey]Delta
	wake    chan struct{}

	out        chan Delta
	lastSentTS int64
	lastAckTS  int64

	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(e *Engine, identity store.Identity) *Session {
	s := &Session{
		engine:   e,
		identity: identity,
		queries:  make(map[QueryKey]*watchedQuery),
		pending:  make(map[QueryKey]Delta),
		wake:     make(chan struct{}, 1),
		out:      make(chan Delta, deltaBufferSize),
		closed:   make(chan struct{}),
	}
	metrics.SyncSessionsActive.Inc()
	go s.dispatch()
	return s
}

// Deltas is the ordered stream of result updates for this session.
// Messages arrive in strictly increasing ts order (§4.15).
func (s *Session) Deltas() <-chan Delta {
	return s.out
}

// Ack records the highest ts the client has processed. Sync engines
// that want to trim replay state on reconnect consult this.
func (s *Session) Ack(ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts > s.lastAckTS {
		s.lastAckTS = ts
	}
}

// Subscribe opens a new query, runs it immediately, and pushes its
// first result as the session's initial delta for that key.
func (s *Session) Subscribe(ctx context.Context, key QueryKey, src funrun.Source, args value.Value) error {
	result, token, err := s.engine.runQuery(ctx, s.identity, src, args)

	qctx, cancel := context.WithCancel(context.Background())
	wq := &watchedQuery{src: src, args: args, lastResult: result, haveResult: err == nil, cancel: cancel}

	s.mu.Lock()
	old, replacing := s.queries[key]
	s.queries[key] = wq
	s.mu.Unlock()
	if replacing {
		old.cancel()
	} else {
		metrics.SyncSubscriptionsActive.Inc()
	}

	s.enqueue(Delta{Query: key, TS: token.TS, Result: result, Err: err})
	go s.watch(qctx, key, token)
	return err
}

// Unsubscribe stops watching key and drops its subscription handle.
func (s *Session) Unsubscribe(key QueryKey) {
	s.mu.Lock()
	wq, ok := s.queries[key]
	if ok {
		delete(s.queries, key)
	}
	s.mu.Unlock()
	if ok {
		wq.cancel()
		metrics.SyncSubscriptionsActive.Dec()
	}
}

// Close tears down every open query and the dispatcher, closing the
// delta stream.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		for _, wq := range s.queries {
			wq.cancel()
			metrics.SyncSubscriptionsActive.Dec()
		}
		s.queries = make(map[QueryKey]*watchedQuery)
		s.mu.Unlock()
		close(s.closed)
		metrics.SyncSessionsActive.Dec()
	})
}

// watch waits for token's read set to be invalidated, re-runs the
// query, and enqueues a fresh delta when the result changed, looping
// with the newly observed token until the query is unsubscribed.
func (s *Session) watch(ctx context.Context, key QueryKey, token store.Token) {
	for {
		handle, invalidated := s.engine.sub.Register(token)
		select {
		case <-ctx.Done():
			s.engine.sub.Drop(handle)
			return
		case <-invalidated:
		}

		s.mu.Lock()
		wq, ok := s.queries[key]
		s.mu.Unlock()
		if !ok {
			return
		}

		result, newToken, err := s.engine.runQuery(ctx, s.identity, wq.src, wq.args)
		token = newToken

		s.mu.Lock()
		changed := err != nil || !wq.haveResult || !value.Equal(wq.lastResult, result)
		if err == nil {
			wq.lastResult = result
			wq.haveResult = true
		}
		s.mu.Unlock()

		if changed {
			s.enqueue(Delta{Query: key, TS: newToken.TS, Result: result, Err: err})
		}
	}
}

// enqueue records d as the latest pending update for its query and
// wakes the dispatcher. A query already pending is overwritten, never
// appended: §4.15's "drops intermediate results, delivers the latest".
func (s *Session) enqueue(d Delta) {
	s.mu.Lock()
	s.pending[d.Query] = d
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatch drains pending deltas in ascending ts order and blocking-sends
// each to out, which is what turns per-query coalescing into a
// session-wide strictly-increasing delivery order: any delta still
// pending when a new invalidation arrives always carries a ts greater
// than everything already sent, because commit ts is globally monotone
// (§5 "A single sync session observes commits in ts order").
func (s *Session) dispatch() {
	for {
		select {
		case <-s.closed:
			return
		case <-s.wake:
		}

		for {
			next, ok := s.popLowestPending()
			if !ok {
				break
			}
			select {
			case s.out <- next:
				s.lastSentTS = next.TS
				metrics.SyncDeltasSentTotal.Inc()
			case <-s.closed:
				return
			}
		}
	}
}

func (s *Session) popLowestPending() (Delta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		found bool
		key   QueryKey
		best  Delta
	)
	for k, d := range s.pending {
		if !found || d.TS < best.TS {
			found, key, best = true, k, d
		}
	}
	if !found {
		return Delta{}, false
	}
	delete(s.pending, key)
	return best, true
}
