package indexworker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/riftdb/rift/metrics"
	"github.com/riftdb/rift/rifterr"
	"github.com/riftdb/rift/search/text"
	"github.com/riftdb/rift/search/vector"
	"github.com/riftdb/rift/store"
	"github.com/riftdb/rift/value"
)

// backfill streams the owning table by id order in SegmentBatchSize
// pages, writes a segment per page, and requests a transition to
// Backfilled/SnapshottedAt once the scan completes, per §4.12's backfill
// worker. Retries the whole scan on a tolerated error (OCC, overloaded)
// with the shared exponential backoff policy.
func (o *Orchestrator) backfill(ctx context.Context, indexID uint32) error {
	timer := metrics.NewTimer()
	kindLabel := "unknown"
	if meta, ok := o.store.Snapshots().Latest().Indexes.ByID(indexID); ok {
		kindLabel = meta.Kind.String()
	}
	defer timer.ObserveDurationVec(metrics.IndexBackfillDuration, kindLabel)

	b := o.newBackoff()
	for {
		err := o.backfillOnce(ctx, indexID)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isTolerated(err) {
			return err
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (o *Orchestrator) backfillOnce(ctx context.Context, indexID uint32) error {
	snap := o.store.Snapshots().Latest()
	meta, ok := snap.Indexes.ByID(indexID)
	if !ok {
		return rifterr.BadRequest(rifterr.CodeIndexNotFound, "index %d not found", indexID)
	}
	byID, ok := snap.Indexes.ByName(meta.TableNumber, store.ByIDIndexName)
	if !ok {
		return rifterr.Corrupt(nil, "table %d missing its by_id index", meta.TableNumber)
	}
	table, ok := snap.Tables.ByNumber(meta.TableNumber)
	if !ok {
		return rifterr.Corrupt(nil, "table number %d missing from snapshot", meta.TableNumber)
	}

	asOf := snap.TS
	lo := []byte{}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		hits, err := o.store.Reader().LoadIndexRange(byID.ID, lo, unboundedHi, asOf, false, o.cfg.SegmentBatchSize)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			break
		}
		if err := o.sealBatch(meta, table.TabletID, hits, asOf); err != nil {
			return err
		}
		lo = append(append([]byte(nil), hits[len(hits)-1].Key...), 0x00)
		if len(hits) < o.cfg.SegmentBatchSize {
			break
		}
	}

	return o.store.ChangeIndexState(ctx, indexID, store.PhaseSnapshottedAt, asOf)
}

// sealBatch loads each hit's document and folds it into a freshly built
// segment for meta's index kind, publishing it directly (bypassing the
// overlay, since these documents already existed before this index
// started backfilling).
func (o *Orchestrator) sealBatch(meta store.IndexMeta, tabletID uint64, hits []store.IndexHit, asOf int64) error {
	switch meta.Kind {
	case store.IndexKindText:
		return o.sealTextBatch(meta, tabletID, hits, asOf)
	case store.IndexKindVector:
		return o.sealVectorBatch(meta, tabletID, hits, asOf)
	}
	return nil
}

func (o *Orchestrator) sealTextBatch(meta store.IndexMeta, tabletID uint64, hits []store.IndexHit, asOf int64) error {
	var inputs []text.DocInput
	for _, h := range hits {
		doc, err := o.store.Reader().LoadDocument(h.DocID, tabletID, asOf)
		if err != nil {
			return err
		}
		if doc == nil {
			continue
		}
		fv, ok := doc.Value.Field(meta.SearchField)
		if !ok {
			continue
		}
		str, ok := fv.AsString()
		if !ok {
			continue
		}
		inputs = append(inputs, text.DocInput{
			ID:           h.DocID,
			Tokens:       text.Tokenize(str),
			Filters:      filterValues(doc.Value, meta.FilterFields),
			CreationTime: doc.CreationTime,
		})
	}
	if len(inputs) == 0 {
		return nil
	}
	seg, err := text.BuildSegment(asOf, inputs)
	if err != nil {
		return err
	}
	ids := make([]value.DocumentID, len(inputs))
	for i, in := range inputs {
		ids[i] = in.ID
	}
	o.texts.Ensure(meta).AppendSegment(seg, ids)
	return nil
}

func (o *Orchestrator) sealVectorBatch(meta store.IndexMeta, tabletID uint64, hits []store.IndexHit, asOf int64) error {
	var inputs []vector.VecInput
	for _, h := range hits {
		doc, err := o.store.Reader().LoadDocument(h.DocID, tabletID, asOf)
		if err != nil {
			return err
		}
		if doc == nil {
			continue
		}
		fv, ok := doc.Value.Field(meta.SearchField)
		if !ok {
			continue
		}
		elems, ok := fv.AsElements()
		if !ok || len(elems) != meta.Dimensions {
			continue
		}
		vec := make([]float32, len(elems))
		for i, e := range elems {
			f, ok := e.AsFloat64()
			if !ok {
				i64, ok := e.AsInt64()
				if !ok {
					continue
				}
				f = float64(i64)
			}
			vec[i] = float32(f)
		}
		inputs = append(inputs, vector.VecInput{
			ID:      h.DocID,
			Vector:  vec,
			Filters: filterValues(doc.Value, meta.FilterFields),
		})
	}
	if len(inputs) == 0 {
		return nil
	}
	seg := vector.BuildSegment(meta.Dimensions, inputs)
	ids := make([]value.DocumentID, len(inputs))
	for i, in := range inputs {
		ids[i] = in.ID
	}
	o.vecs.Ensure(meta).AppendSegment(seg, ids)
	return nil
}

func filterValues(v value.Value, fields []string) map[string]value.Value {
	out := make(map[string]value.Value, len(fields))
	for _, f := range fields {
		if fv, ok := v.Field(f); ok {
			out[f] = fv
		}
	}
	return out
}

func (o *Orchestrator) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.InitialBackoff
	b.MaxInterval = o.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	return b
}

// isTolerated reports whether an error should be retried with backoff
// rather than surfaced, per §4.12's shared policy: OCC and overloaded
// errors are expected and tolerated, up to MAX_OCC_FAILURES handled by
// the caller's own retry ceiling (here, an unbounded backoff loop since
// the orchestrator itself has no caller to surface a final error to).
func isTolerated(err error) bool {
	var e *rifterr.Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == rifterr.CodeOptimisticConcurrencyControl || e.Code == rifterr.CodeOverloaded
}
