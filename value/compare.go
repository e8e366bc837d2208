package value

import "bytes"

// Compare implements the total order required by §4.1/§8: for values of the
// same kind a natural order is used; across kinds the Kind tag order wins.
// NaN sorts after every other float64, including +Inf.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindInt64:
		switch {
		case a.i64 < b.i64:
			return -1
		case a.i64 > b.i64:
			return 1
		default:
			return 0
		}
	case KindFloat64:
		return compareFloat64(a.f64, b.f64)
	case KindBool:
		if a.b == b.b {
			return 0
		}
		if !a.b {
			return -1
		}
		return 1
	case KindString:
		return cmpString(a.str, b.str)
	case KindBytes:
		return bytes.Compare(a.bin, b.bin)
	case KindArray, KindSet:
		return compareSlices(a.elem, b.elem)
	case KindMap, KindObject:
		return compareFields(a.flds, b.flds)
	default:
		return 0
	}
}

// compareFloat64 orders -Inf < ... < -0 == +0 < ... < +Inf < NaN.
func compareFloat64(a, b float64) int {
	aNaN, bNaN := isNaN(a), isNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareSlices(a, b []Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func compareFields(a, b []Field) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := cmpString(a[i].Key, b[i].Key); c != 0 {
			return c
		}
		if c := Compare(a[i].Val, b[i].Val); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Less is a convenience wrapper for use with sort.Slice and btree.NewG,
// mirroring the teacher's `less` comparator in dynamodb/ddbstore/store.go.
func Less(a, b Value) bool { return Compare(a, b) < 0 }
