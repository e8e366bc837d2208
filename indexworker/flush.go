package indexworker

import (
	"context"
	"time"

	"github.com/riftdb/rift/store"
)

// flushOrFastForward seals the overlay into a new segment if it has any
// content, or bumps the index's snapshot ts without rewriting segments if
// no writes landed within FastForwardWindow, per §4.12's flush and
// fast-forward workers.
func (o *Orchestrator) flushOrFastForward(ctx context.Context, indexID uint32) {
	snap := o.store.Snapshots().Latest()
	meta, ok := snap.Indexes.ByID(indexID)
	if !ok || meta.Phase != store.PhaseSnapshottedAt {
		return
	}

	o.mu.Lock()
	last, seen := o.lastWrite[indexID]
	o.mu.Unlock()
	idle := seen && time.Since(last) >= o.cfg.FastForwardWindow

	flushed := false
	switch meta.Kind {
	case store.IndexKindText:
		idx := o.texts.Get(indexID)
		if idx != nil {
			if err := idx.Flush(snap.TS); err != nil {
				o.logger.Warn().Err(err).Uint32("index_id", indexID).Msg("text flush failed")
				return
			}
			flushed = true
		}
	case store.IndexKindVector:
		idx := o.vecs.Get(indexID)
		if idx != nil {
			if err := idx.Flush(); err != nil {
				o.logger.Warn().Err(err).Uint32("index_id", indexID).Msg("vector flush failed")
				return
			}
			flushed = true
		}
	}

	if !flushed && !idle {
		return
	}
	if err := o.store.ChangeIndexState(ctx, indexID, store.PhaseSnapshottedAt, snap.TS); err != nil {
		o.logger.Warn().Err(err).Uint32("index_id", indexID).Msg("failed to advance index snapshot ts")
	}
}
