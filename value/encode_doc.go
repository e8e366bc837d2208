package value

import (
	"encoding/binary"
	"math"

	"github.com/riftdb/rift/rifterr"
)

// EncodeDoc produces the self-describing persisted form of a Value: each
// node is a one-byte Kind tag followed by a kind-specific payload. This is
// the single canonical persisted encoding referenced by the Open Question
// in §9 — there is no second, externally-facing JSON form in this core.
func EncodeDoc(v Value) []byte {
	buf := make([]byte, 0, 64)
	return appendDoc(buf, v)
}

func appendDoc(buf []byte, v Value) []byte {
	buf = append(buf, byte(v.kind))
	switch v.kind {
	case KindNull:
		// tag only
	case KindBool:
		if v.b {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindInt64:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(v.i64))
		buf = append(buf, tmp[:]...)
	case KindFloat64:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], math.Float64bits(canonicalFloat(v.f64)))
		buf = append(buf, tmp[:]...)
	case KindString:
		buf = appendLenPrefixed(buf, []byte(v.str))
	case KindBytes:
		buf = appendLenPrefixed(buf, v.bin)
	case KindArray, KindSet:
		buf = appendUvarint(buf, uint64(len(v.elem)))
		for _, e := range v.elem {
			buf = appendDoc(buf, e)
		}
	case KindMap, KindObject:
		buf = appendUvarint(buf, uint64(len(v.flds)))
		for _, f := range v.flds {
			buf = appendLenPrefixed(buf, []byte(f.Key))
			buf = appendDoc(buf, f.Val)
		}
	}
	return buf
}

// canonicalFloat maps every NaN bit pattern to one canonical NaN so that
// decode(encode(v)) round-trips to a value Equal() considers identical.
func canonicalFloat(f float64) float64 {
	if isNaN(f) {
		return math.NaN()
	}
	return f
}

func appendLenPrefixed(buf, data []byte) []byte {
	buf = appendUvarint(buf, uint64(len(data)))
	return append(buf, data...)
}

func appendUvarint(buf []byte, n uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	l := binary.PutUvarint(tmp[:], n)
	return append(buf, tmp[:l]...)
}

// DecodeDoc reverses EncodeDoc. It returns a Corrupt error if any bytes
// are left unconsumed after a single value.
func DecodeDoc(b []byte) (Value, error) {
	v, rest, err := decodeDoc(b)
	if err != nil {
		return Value{}, err
	}
	if len(rest) != 0 {
		return Value{}, rifterr.Corrupt(nil, "%d trailing bytes after decoding value", len(rest))
	}
	return v, nil
}

func decodeDoc(b []byte) (Value, []byte, error) {
	if len(b) == 0 {
		return Value{}, nil, rifterr.Corrupt(nil, "empty buffer while decoding value")
	}
	kind := Kind(b[0])
	b = b[1:]
	switch kind {
	case KindNull:
		return Null(), b, nil
	case KindBool:
		if len(b) < 1 {
			return Value{}, nil, rifterr.Corrupt(nil, "truncated bool")
		}
		return Bool(b[0] != 0), b[1:], nil
	case KindInt64:
		if len(b) < 8 {
			return Value{}, nil, rifterr.Corrupt(nil, "truncated int64")
		}
		return Int64(int64(binary.BigEndian.Uint64(b[:8]))), b[8:], nil
	case KindFloat64:
		if len(b) < 8 {
			return Value{}, nil, rifterr.Corrupt(nil, "truncated float64")
		}
		return Float64(math.Float64frombits(binary.BigEndian.Uint64(b[:8]))), b[8:], nil
	case KindString:
		data, rest, err := readLenPrefixed(b)
		if err != nil {
			return Value{}, nil, err
		}
		return String(string(data)), rest, nil
	case KindBytes:
		data, rest, err := readLenPrefixed(b)
		if err != nil {
			return Value{}, nil, err
		}
		return Bytes(data), rest, nil
	case KindArray, KindSet:
		n, rest, err := readUvarint(b)
		if err != nil {
			return Value{}, nil, err
		}
		elems := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			var e Value
			e, rest, err = decodeDoc(rest)
			if err != nil {
				return Value{}, nil, err
			}
			elems = append(elems, e)
		}
		if kind == KindSet {
			return Value{kind: KindSet, elem: elems}, rest, nil
		}
		return Value{kind: KindArray, elem: elems}, rest, nil
	case KindMap, KindObject:
		n, rest, err := readUvarint(b)
		if err != nil {
			return Value{}, nil, err
		}
		flds := make([]Field, 0, n)
		for i := uint64(0); i < n; i++ {
			var key []byte
			key, rest, err = readLenPrefixed(rest)
			if err != nil {
				return Value{}, nil, err
			}
			var val Value
			val, rest, err = decodeDoc(rest)
			if err != nil {
				return Value{}, nil, err
			}
			flds = append(flds, Field{Key: string(key), Val: val})
		}
		return Value{kind: kind, flds: flds}, rest, nil
	default:
		return Value{}, nil, rifterr.Corrupt(nil, "unknown kind tag %d", kind)
	}
}

func readLenPrefixed(b []byte) (data, rest []byte, err error) {
	n, rest, err := readUvarint(b)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < n {
		return nil, nil, rifterr.Corrupt(nil, "truncated length-prefixed field")
	}
	return rest[:n], rest[n:], nil
}

func readUvarint(b []byte) (uint64, []byte, error) {
	n, l := binary.Uvarint(b)
	if l <= 0 {
		return 0, nil, rifterr.Corrupt(nil, "invalid varint")
	}
	return n, b[l:], nil
}
