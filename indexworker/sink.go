package indexworker

import "github.com/riftdb/rift/store"

// WrapSink returns a store.IndexSink that forwards to inner and records
// the write against the orchestrator's fast-forward idle tracking, so a
// single RegisterSink call keeps both the search manager and the
// fast-forward worker current.
func (o *Orchestrator) WrapSink(inner store.IndexSink) store.IndexSink {
	return wrappedSink{o: o, inner: inner}
}

type wrappedSink struct {
	o     *Orchestrator
	inner store.IndexSink
}

func (s wrappedSink) IndexWrite(meta store.IndexMeta, w store.Write, ts int64) {
	s.o.NoteWrite(meta.ID)
	s.inner.IndexWrite(meta, w, ts)
}
