// Package value implements the closed, typed document value model (C1):
// a single tagged variant used everywhere inside the core instead of a
// dynamically-typed any, per the "Value typing" design note. It replaces
// the teacher's dependency on dynamodb/types.AttributeValue, which exists
// only to mirror AWS's wire shape; this core has no such external wire
// contract, so the same "sum of kinds" idea is reimplemented as a closed
// Go type instead.
package value

import "sort"

// Kind discriminates the variant held by a Value. Order matches the type
// list in spec.md §3 and doubles as the cross-type tag order used by
// index-key encoding (encode_index.go).
type Kind uint8

const (
	KindNull Kind = iota
	KindInt64
	KindFloat64
	KindBool
	KindString
	KindBytes
	KindArray
	KindSet
	KindMap
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindSet:
		return "set"
	case KindMap:
		return "map"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Field is one key/value pair of an Object. Object preserves declaration
// order (unlike Map, whose fields are logically unordered and are sorted
// by key before encoding).
type Field struct {
	Key string
	Val Value
}

// Value is the closed tagged union every document, index key component,
// and function-runtime argument is built from.
type Value struct {
	kind Kind
	i64  int64
	f64  float64
	b    bool
	str  string
	bin  []byte
	elem []Value // Array, Set
	flds []Field // Map, Object
}

func Null() Value                 { return Value{kind: KindNull} }
func Int64(v int64) Value         { return Value{kind: KindInt64, i64: v} }
func Float64(v float64) Value     { return Value{kind: KindFloat64, f64: v} }
func Bool(v bool) Value           { return Value{kind: KindBool, b: v} }
func String(v string) Value       { return Value{kind: KindString, str: v} }
func Bytes(v []byte) Value        { return Value{kind: KindBytes, bin: append([]byte(nil), v...)} }
func Array(items ...Value) Value  { return Value{kind: KindArray, elem: items} }
func Set(items ...Value) Value    { return Value{kind: KindSet, elem: items} }

// Map builds an unordered Map value; fields are sorted by key internally
// so two maps built from the same key/value pairs compare and encode
// identically regardless of construction order.
func Map(fields map[string]Value) Value {
	flds := make([]Field, 0, len(fields))
	for k, v := range fields {
		flds = append(flds, Field{Key: k, Val: v})
	}
	sort.Slice(flds, func(i, j int) bool { return flds[i].Key < flds[j].Key })
	return Value{kind: KindMap, flds: flds}
}

// Object builds a document-shaped value that preserves field order.
func Object(fields ...Field) Value {
	return Value{kind: KindObject, flds: fields}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsInt64() (int64, bool)     { return v.i64, v.kind == KindInt64 }
func (v Value) AsFloat64() (float64, bool) { return v.f64, v.kind == KindFloat64 }
func (v Value) AsBool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) AsString() (string, bool)   { return v.str, v.kind == KindString }
func (v Value) AsBytes() ([]byte, bool)    { return v.bin, v.kind == KindBytes }

// AsElements returns the elements of an Array or Set.
func (v Value) AsElements() ([]Value, bool) {
	if v.kind != KindArray && v.kind != KindSet {
		return nil, false
	}
	return v.elem, true
}

// AsFields returns the fields of a Map or Object, in their canonical order
// (sorted for Map, declaration order for Object).
func (v Value) AsFields() ([]Field, bool) {
	if v.kind != KindMap && v.kind != KindObject {
		return nil, false
	}
	return v.flds, true
}

// Field looks up a field by name on a Map or Object value.
func (v Value) Field(name string) (Value, bool) {
	for _, f := range v.flds {
		if f.Key == name {
			return f.Val, true
		}
	}
	return Value{}, false
}

// Equal reports deep structural equality, per C1's "NaN normalization"
// rule: all NaN bit patterns are considered equal to each other.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindInt64:
		return a.i64 == b.i64
	case KindFloat64:
		if isNaN(a.f64) && isNaN(b.f64) {
			return true
		}
		return a.f64 == b.f64
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.str == b.str
	case KindBytes:
		return string(a.bin) == string(b.bin)
	case KindArray, KindSet:
		if len(a.elem) != len(b.elem) {
			return false
		}
		for i := range a.elem {
			if !Equal(a.elem[i], b.elem[i]) {
				return false
			}
		}
		return true
	case KindMap, KindObject:
		if len(a.flds) != len(b.flds) {
			return false
		}
		for i := range a.flds {
			if a.flds[i].Key != b.flds[i].Key || !Equal(a.flds[i].Val, b.flds[i].Val) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func isNaN(f float64) bool { return f != f }
