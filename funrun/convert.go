package funrun

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/riftdb/rift/value"
)

// toValue converts a goja runtime value, as produced by user JS, into the
// closed value.Value variant every store operation expects.
func toValue(v goja.Value) (value.Value, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return value.Null(), nil
	}
	export := v.Export()
	return fromNative(export)
}

func fromNative(export any) (value.Value, error) {
	switch x := export.(type) {
	case nil:
		return value.Null(), nil
	case bool:
		return value.Bool(x), nil
	case int64:
		return value.Int64(x), nil
	case int:
		return value.Int64(int64(x)), nil
	case float64:
		return value.Float64(x), nil
	case string:
		return value.String(x), nil
	case []byte:
		return value.Bytes(x), nil
	case []any:
		elems := make([]value.Value, len(x))
		for i, e := range x {
			ev, err := fromNative(e)
			if err != nil {
				return value.Value{}, err
			}
			elems[i] = ev
		}
		return value.Array(elems...), nil
	case map[string]any:
		fields := make([]value.Field, 0, len(x))
		for k, e := range x {
			ev, err := fromNative(e)
			if err != nil {
				return value.Value{}, err
			}
			fields = append(fields, value.Field{Key: k, Val: ev})
		}
		return value.Object(fields...), nil
	default:
		return value.Value{}, fmt.Errorf("funrun: unsupported JS value type %T", export)
	}
}

// fromValue converts a core value.Value into a goja value. goja's ToValue
// on a map[string]any does not guarantee order, so Object values are
// built by newObject as a goja.Object with ordered Set calls, and their
// field order survives the conversion.
func fromValue(rt *goja.Runtime, v value.Value) goja.Value {
	switch v.Kind() {
	case value.KindNull:
		return goja.Null()
	case value.KindInt64:
		i, _ := v.AsInt64()
		return rt.ToValue(i)
	case value.KindFloat64:
		f, _ := v.AsFloat64()
		return rt.ToValue(f)
	case value.KindBool:
		b, _ := v.AsBool()
		return rt.ToValue(b)
	case value.KindString:
		s, _ := v.AsString()
		return rt.ToValue(s)
	case value.KindBytes:
		b, _ := v.AsBytes()
		return rt.ToValue(append([]byte(nil), b...))
	case value.KindArray, value.KindSet:
		elems, _ := v.AsElements()
		out := make([]goja.Value, len(elems))
		for i, e := range elems {
			out[i] = fromValue(rt, e)
		}
		return rt.ToValue(out)
	case value.KindMap, value.KindObject:
		return newObject(rt, v)
	default:
		return goja.Undefined()
	}
}

// newObject builds a goja.Object field by field so declaration order
// survives the round trip back into JS, matching value.Object's own
// order-preserving contract.
func newObject(rt *goja.Runtime, v value.Value) *goja.Object {
	obj := rt.NewObject()
	fields, _ := v.AsFields()
	for _, f := range fields {
		_ = obj.Set(f.Key, fromValue(rt, f.Val))
	}
	return obj
}
