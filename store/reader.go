package store

import (
	"bytes"

	"github.com/riftdb/rift/persist"
	"github.com/riftdb/rift/value"
)

// Reader resolves documents and index ranges "as of" a snapshot ts,
// merging persisted revisions down to the latest one not newer than the
// requested ts. This is the concrete half of §4.2's load_documents /
// load_index, generalized from the teacher's per-table badgerKeyEncoder
// into the tablet_id|doc_id|ts keyspace in keys.go.
type Reader struct {
	db persist.Store
}

func NewReader(db persist.Store) *Reader { return &Reader{db: db} }

// LoadDocument returns the latest revision of id with ts <= asOf, or nil
// if the document doesn't exist yet (or is a tombstone) at that ts.
func (r *Reader) LoadDocument(id value.DocumentID, tabletID uint64, asOf int64) (*Document, error) {
	var result *Document
	err := persist.View(r.db, func(txn persist.Txn) error {
		prefix := docKeyPrefix(tabletID, id)
		it := txn.NewIterator(persist.IterOptions{Prefix: prefix, Reverse: true})
		defer it.Close()
		it.Seek(tsUpperBound(prefix, asOf))
		if !it.Valid() {
			return nil
		}
		val, err := it.Value()
		if err != nil {
			return err
		}
		doc, err := decodeDocValue(id, val)
		if err != nil {
			return err
		}
		if !doc.Deleted {
			result = &doc
		}
		return nil
	})
	return result, err
}

// IndexHit is one resolved index-range result: the document id and its
// ordered key bytes (without the ts suffix), in ascending/descending order.
type IndexHit struct {
	Key   []byte
	DocID value.DocumentID
}

// LoadIndexRange streams index entries for indexID within [lo, hi]
// (inclusive), honoring tombstones and keeping only the latest revision
// of each distinct key with ts <= asOf, per §4.2.
func (r *Reader) LoadIndexRange(indexID uint32, lo, hi []byte, asOf int64, reverse bool, limit int) ([]IndexHit, error) {
	var out []IndexHit
	err := persist.View(r.db, func(txn persist.Txn) error {
		prefix := indexKeyPrefix(indexID)
		fullLo := append(append([]byte(nil), prefix...), lo...)
		fullHi := append(append([]byte(nil), prefix...), hi...)

		it := txn.NewIterator(persist.IterOptions{Prefix: prefix})
		defer it.Close()

		type group struct {
			key     []byte
			ts      int64
			val     IndexEntryValue
			hasSeen bool
		}
		var cur group
		flush := func() {
			if cur.hasSeen && !cur.val.Deleted && cur.ts <= asOf {
				out = append(out, IndexHit{Key: append([]byte(nil), cur.key...), DocID: cur.val.DocID})
			}
			cur = group{}
		}

		for it.Seek(fullLo); it.Valid(); it.Next() {
			k := it.Key()
			if bytes.Compare(k, fullHi) > 0 {
				break
			}
			orderedKey := k[len(prefix) : len(k)-8]
			ts := int64(beUint64(k[len(k)-8:]))
			if ts > asOf {
				continue
			}
			if cur.hasSeen && !bytes.Equal(cur.key, orderedKey) {
				flush()
			}
			val, err := it.Value()
			if err != nil {
				return err
			}
			decoded, err := decodeIndexValue(val)
			if err != nil {
				return err
			}
			if !cur.hasSeen || ts >= cur.ts {
				cur = group{key: orderedKey, ts: ts, val: decoded, hasSeen: true}
			}
		}
		flush()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
