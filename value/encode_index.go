package value

import (
	"encoding/binary"
	"math"
)

// IndexKeySplitThreshold is the §3 "Keys longer than 2500 bytes are split
// into prefix(2500) and suffix(rest)" boundary.
const IndexKeySplitThreshold = 2500

// type tags for the order-preserving encoding. These intentionally match
// Kind's declaration order so the cross-type tag order from Compare holds
// byte-for-byte once encoded.
const (
	tagNull    byte = 0x10
	tagInt64   byte = 0x20
	tagFloat64 byte = 0x30
	tagBool    byte = 0x40
	tagString  byte = 0x50
	tagBytes   byte = 0x60
	tagArray   byte = 0x70
	tagSet     byte = 0x80
	tagMap     byte = 0x90
	tagObject  byte = 0xA0

	escEnd  byte = 0x00 // terminates an escaped string/bytes run
	escLit0 byte = 0x01 // escapes a literal 0x00
	escLit1 byte = 0x02 // escapes a literal 0x01, immediately following escByte
	escByte byte = 0x01
)

// EncodeIndexKey produces the order-preserving byte encoding of v, such
// that for any x, y of the same Kind, Compare(x,y) < 0 iff
// EncodeIndexKey(x) < EncodeIndexKey(y) lexicographically (§4.1, §8).
func EncodeIndexKey(v Value) []byte {
	return appendIndexKey(nil, v)
}

func appendIndexKey(buf []byte, v Value) []byte {
	switch v.kind {
	case KindNull:
		return append(buf, tagNull)
	case KindBool:
		buf = append(buf, tagBool)
		if v.b {
			return append(buf, 1)
		}
		return append(buf, 0)
	case KindInt64:
		buf = append(buf, tagInt64)
		return appendOrderedInt64(buf, v.i64)
	case KindFloat64:
		buf = append(buf, tagFloat64)
		return appendOrderedFloat64(buf, v.f64)
	case KindString:
		buf = append(buf, tagString)
		buf = appendEscaped(buf, []byte(v.str))
		return append(buf, escEnd)
	case KindBytes:
		buf = append(buf, tagBytes)
		buf = appendEscaped(buf, v.bin)
		return append(buf, escEnd)
	case KindArray, KindSet:
		tag := tagArray
		if v.kind == KindSet {
			tag = tagSet
		}
		buf = append(buf, tag)
		for _, e := range v.elem {
			buf = appendIndexKey(buf, e)
		}
		return append(buf, escEnd)
	case KindMap, KindObject:
		tag := tagMap
		if v.kind == KindObject {
			tag = tagObject
		}
		buf = append(buf, tag)
		for _, f := range v.flds {
			buf = appendEscaped(buf, []byte(f.Key))
			buf = append(buf, escEnd)
			buf = appendIndexKey(buf, f.Val)
		}
		return append(buf, escEnd)
	default:
		return buf
	}
}

// appendOrderedInt64 maps int64's signed range onto an unsigned big-endian
// encoding that preserves order, by flipping the sign bit.
func appendOrderedInt64(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v)^(1<<63))
	return append(buf, tmp[:]...)
}

// appendOrderedFloat64 is the teacher's dynamodb/ddbstore/encoding.go
// encodeNumber scheme, generalized from DynamoDB's string-encoded N type
// to a native float64, plus canonical-NaN handling so NaN always sorts
// last (§3 "NaN carries ... a total order that places NaN last").
func appendOrderedFloat64(buf []byte, f float64) []byte {
	if f == 0 {
		f = 0 // -0 encodes as +0, matching Compare
	}
	if isNaN(f) {
		// All 0xFF bytes sort after any finite/infinite encoding below.
		var tmp [9]byte
		for i := range tmp {
			tmp[i] = 0xFF
		}
		return append(buf, tmp[:]...)
	}
	bits := math.Float64bits(f)
	var tmp [9]byte
	if !math.Signbit(f) {
		tmp[0] = 0x80
		bits ^= 1 << 63
	} else {
		tmp[0] = 0x7F
		bits = ^bits
	}
	binary.BigEndian.PutUint64(tmp[1:], bits)
	return append(buf, tmp[:]...)
}

// appendEscaped escapes 0x00/0x01 bytes so that escEnd terminators remain
// unambiguous, exactly the scheme in the teacher's escapeBytes/unescapeBytes.
func appendEscaped(buf, data []byte) []byte {
	for _, c := range data {
		switch c {
		case 0x00:
			buf = append(buf, escByte, escLit0)
		case 0x01:
			buf = append(buf, escByte, escLit1)
		default:
			buf = append(buf, c)
		}
	}
	return buf
}

// SplitIndexKey implements the §3 2500-byte split: keys longer than the
// threshold are stored as (prefix, suffix) so the persistence layer's
// underlying key space never holds an oversized key, while ordering on
// the concatenation is preserved because prefix is always exactly
// IndexKeySplitThreshold bytes when a suffix is present.
func SplitIndexKey(key []byte) (prefix, suffix []byte) {
	if len(key) <= IndexKeySplitThreshold {
		return key, nil
	}
	return key[:IndexKeySplitThreshold], key[IndexKeySplitThreshold:]
}

// JoinIndexKey reassembles a key split by SplitIndexKey.
func JoinIndexKey(prefix, suffix []byte) []byte {
	if len(suffix) == 0 {
		return prefix
	}
	out := make([]byte, 0, len(prefix)+len(suffix))
	out = append(out, prefix...)
	return append(out, suffix...)
}
