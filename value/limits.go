package value

import (
	"unicode/utf8"

	"github.com/riftdb/rift/rifterr"
)

const (
	// MaxSerializedSize is the §3 "Size bound: total serialized size ≤ 1 MiB".
	MaxSerializedSize = 1 << 20
	// MaxNestingDepth is the §3 "nesting depth ≤ 16" cap.
	MaxNestingDepth = 16
)

// Validate checks a value against the size/nesting/utf8 caps from §3,
// returning the first violation found. Callers should validate once at
// the transaction boundary (insert/replace/patch), per §4.7.
func Validate(v Value) error {
	if err := validateDepth(v, 1); err != nil {
		return err
	}
	size, err := sizeOf(v)
	if err != nil {
		return err
	}
	if size > MaxSerializedSize {
		return rifterr.BadRequest(rifterr.CodeValueTooLarge,
			"value is %d bytes, exceeds the %d byte cap", size, MaxSerializedSize)
	}
	return nil
}

func validateDepth(v Value, depth int) error {
	if depth > MaxNestingDepth {
		return rifterr.BadRequest(rifterr.CodeNestingTooDeep,
			"nesting exceeds the %d level cap", MaxNestingDepth)
	}
	switch v.kind {
	case KindString:
		if !utf8.ValidString(v.str) {
			return rifterr.BadRequest(rifterr.CodeInvalidUtf8, "string is not valid utf-8")
		}
	case KindArray, KindSet:
		for _, e := range v.elem {
			if err := validateDepth(e, depth+1); err != nil {
				return err
			}
		}
	case KindMap, KindObject:
		for _, f := range v.flds {
			if !utf8.ValidString(f.Key) {
				return rifterr.BadRequest(rifterr.CodeInvalidUtf8, "field name is not valid utf-8")
			}
			if err := validateDepth(f.Val, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// sizeOf estimates the self-describing encoded size without allocating the
// encoding itself, used only to enforce the size cap cheaply.
func sizeOf(v Value) (int, error) {
	switch v.kind {
	case KindNull, KindBool:
		return 1, nil
	case KindInt64, KindFloat64:
		return 9, nil
	case KindString:
		return 1 + len(v.str), nil
	case KindBytes:
		return 1 + len(v.bin), nil
	case KindArray, KindSet:
		total := 5
		for _, e := range v.elem {
			n, err := sizeOf(e)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	case KindMap, KindObject:
		total := 5
		for _, f := range v.flds {
			total += 2 + len(f.Key)
			n, err := sizeOf(f.Val)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	default:
		return 0, rifterr.Bug("unknown value kind %d", v.kind)
	}
}
