package indexworker

import (
	"context"

	"github.com/riftdb/rift/search/text"
	"github.com/riftdb/rift/search/vector"
	"github.com/riftdb/rift/store"
	"github.com/riftdb/rift/value"
)

// maybeCompact merges every currently published segment into one
// replacement once the segment count reaches CompactionMinSmall,
// per §4.12's "merges adjacent small segments when fragmentation exceeds
// a threshold; produces a replacement segment committed atomically" —
// committed here via Index.ReplaceSegments, an in-process atomic swap
// rather than a store-level commit since segments aren't persisted
// through the document/index keyspace.
func (o *Orchestrator) maybeCompact(ctx context.Context, indexID uint32) {
	if ctx.Err() != nil {
		return
	}
	snap := o.store.Snapshots().Latest()
	meta, ok := snap.Indexes.ByID(indexID)
	if !ok {
		return
	}

	switch meta.Kind {
	case store.IndexKindText:
		idx := o.texts.Get(indexID)
		if idx == nil {
			return
		}
		segs := idx.Segments()
		if len(segs) < o.cfg.CompactionMinSmall {
			return
		}
		var inputs []text.DocInput
		for _, seg := range segs {
			for i := 0; i < seg.DocCount(); i++ {
				id := uint32(i)
				if seg.Tombstoned(id) {
					continue
				}
				inputs = append(inputs, text.DocInput{
					ID:           seg.DocID(id),
					Tokens:       seg.Tokens(id),
					Filters:      seg.Filters(id).Fields,
					CreationTime: seg.CreationTime(id),
				})
			}
		}
		if len(inputs) == 0 {
			return
		}
		merged, err := text.BuildSegment(snap.TS, inputs)
		if err != nil {
			o.logger.Warn().Err(err).Uint32("index_id", indexID).Msg("text compaction failed")
			return
		}
		ids := make([]value.DocumentID, len(inputs))
		for i, in := range inputs {
			ids[i] = in.ID
		}
		idx.ReplaceSegments(segs, merged, ids)

	case store.IndexKindVector:
		idx := o.vecs.Get(indexID)
		if idx == nil {
			return
		}
		segs := idx.Segments()
		if len(segs) < o.cfg.CompactionMinSmall {
			return
		}
		var inputs []vector.VecInput
		for _, seg := range segs {
			for i := 0; i < seg.DocCount(); i++ {
				id := uint32(i)
				if seg.Tombstoned(id) {
					continue
				}
				inputs = append(inputs, vector.VecInput{
					ID:      seg.DocID(id),
					Vector:  seg.Vector(id),
					Filters: seg.Filters(id),
				})
			}
		}
		if len(inputs) == 0 {
			return
		}
		merged := vector.BuildSegment(meta.Dimensions, inputs)
		ids := make([]value.DocumentID, len(inputs))
		for i, in := range inputs {
			ids[i] = in.ID
		}
		idx.ReplaceSegments(segs, merged, ids)
	}
}
