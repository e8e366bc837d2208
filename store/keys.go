package store

import (
	"encoding/binary"
	"math"

	"github.com/riftdb/rift/rifterr"
	"github.com/riftdb/rift/value"
)

// Persisted keyspace layout, generalized from the teacher's
// dynamodb/ddbstore badgerKeyEncoder (which concatenated table name,
// index name and encoded primary key into one badger key) into the
// content-addressed "tablet_id | doc_id | ts" scheme named in §4.2:
//
//	'D' tablet_id(8 BE) doc_id(16) ts(8 BE)       -> document revision
//	'I' index_id(4 BE) ordered_key(var) ts(8 BE)  -> index entry revision
//
// ts is always non-negative and strictly monotone, so big-endian encoding
// already preserves chronological order without a sign-bit flip.
const (
	docPrefixByte   = 'D'
	indexPrefixByte = 'I'
)

func docKeyPrefix(tabletID uint64, id value.DocumentID) []byte {
	buf := make([]byte, 0, 1+8+16)
	buf = append(buf, docPrefixByte)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], tabletID)
	buf = append(buf, tmp[:]...)
	buf = append(buf, id[:]...)
	return buf
}

func docKey(tabletID uint64, id value.DocumentID, ts int64) []byte {
	buf := docKeyPrefix(tabletID, id)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(ts))
	return append(buf, tmp[:]...)
}

func tsUpperBound(prefix []byte, ts int64) []byte {
	buf := append([]byte(nil), prefix...)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(ts))
	return append(buf, tmp[:]...)
}

func encodeDocValue(d Document) []byte {
	buf := make([]byte, 0, 16)
	if d.Deleted {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(d.CreationTime))
	buf = append(buf, tmp[:]...)
	buf = append(buf, value.EncodeDoc(d.Value)...)
	return buf
}

func decodeDocValue(id value.DocumentID, b []byte) (Document, error) {
	if len(b) < 9 {
		return Document{}, rifterr.Corrupt(nil, "truncated document revision")
	}
	deleted := b[0] != 0
	creation := math.Float64frombits(binary.BigEndian.Uint64(b[1:9]))
	v, err := value.DecodeDoc(b[9:])
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, CreationTime: creation, Value: v, Deleted: deleted}, nil
}

func indexKeyPrefix(indexID uint32) []byte {
	buf := make([]byte, 0, 5)
	buf = append(buf, indexPrefixByte)
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], indexID)
	return append(buf, tmp[:]...)
}

func indexKey(indexID uint32, orderedKey []byte, ts int64) []byte {
	buf := indexKeyPrefix(indexID)
	buf = append(buf, orderedKey...)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(ts))
	return append(buf, tmp[:]...)
}

// IndexEntryValue is the persisted payload of an index entry revision:
// the document id it refers to, its deletion state at this ts (§3
// "(index_id, key_bytes, ts, deleted, document_id_ref)").
type IndexEntryValue struct {
	DocID   value.DocumentID
	Deleted bool
}

func encodeIndexValue(v IndexEntryValue) []byte {
	buf := make([]byte, 0, 17)
	buf = append(buf, v.DocID[:]...)
	if v.Deleted {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func decodeIndexValue(b []byte) (IndexEntryValue, error) {
	if len(b) != 17 {
		return IndexEntryValue{}, rifterr.Corrupt(nil, "malformed index entry value")
	}
	var out IndexEntryValue
	copy(out.DocID[:], b[:16])
	out.Deleted = b[16] != 0
	return out, nil
}
