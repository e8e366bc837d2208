// Package syncengine implements the reactive sync protocol (C15): it
// holds per-client session state, re-runs a session's open queries when
// the subscription engine reports their read set has been invalidated,
// and streams result deltas back in strictly increasing ts order.
package syncengine

import (
	"context"

	"github.com/riftdb/rift/funrun"
	"github.com/riftdb/rift/store"
	"github.com/riftdb/rift/subscribe"
	"github.com/riftdb/rift/value"
)

// QueryKey identifies one subscribed query within a session: a function
// reference plus its arguments, per §4.15's "function ref + args ->
// token".
type QueryKey string

// KeyFor derives a QueryKey from a function source and its arguments.
// Arguments are folded into the key via their canonical encoding so two
// calls with equal args collapse onto the same subscription.
func KeyFor(src funrun.Source, args value.Value) QueryKey {
	enc := value.EncodeIndexKey(args)
	return QueryKey(src.ModuleSpecifier + "#" + src.ExportName + ":" + string(enc))
}

// Delta is one pushed update: the query it belongs to, the commit ts
// that produced it, and either a fresh result or the error the query
// raised on re-execution.
type Delta struct {
	Query  QueryKey
	TS     int64
	Result value.Value
	Err    error
}

// Engine wires the store, the subscription engine, and the function
// runtime together to drive session query re-execution.
type Engine struct {
	store  *store.Store
	sub    *subscribe.Engine
	fetch  funrun.FetchClient
	limits funrun.Limits
}

func NewEngine(s *store.Store, sub *subscribe.Engine, fetch funrun.FetchClient, limits funrun.Limits) *Engine {
	return &Engine{store: s, sub: sub, fetch: fetch, limits: limits}
}

// NewSession opens per-connection state for identity: open queries, the
// last acknowledged ts, and the outbound delta stream (§4.15).
func (e *Engine) NewSession(identity store.Identity) *Session {
	return newSession(e, identity)
}

func (e *Engine) tableOf() map[string]uint16 {
	out := make(map[string]uint16)
	for _, info := range e.store.Snapshots().Latest().Tables.Tables() {
		out[info.Name] = info.Number
	}
	return out
}

// runQuery executes src as a read-only function call against a fresh
// transaction and hands back its result alongside the read-set token the
// subscription engine needs to detect the next invalidating commit.
func (e *Engine) runQuery(ctx context.Context, identity store.Identity, src funrun.Source, args value.Value) (value.Value, store.Token, error) {
	txn, handle := e.store.Begin(identity)
	defer handle.Release()

	clockTS := txn.Snapshot().TS
	outcome := funrun.Execute(ctx, funrun.KindQuery, e.limits, clockTS, txn, e.tableOf(), src, args, e.fetch)
	token := txn.IntoToken()
	if outcome.Err != nil {
		return value.Null(), token, outcome.Err
	}
	return outcome.Result, token, nil
}
