package funrun

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/riftdb/rift/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToValueConvertsPrimitives(t *testing.T) {
	rt := goja.New()

	v, err := toValue(rt.ToValue(int64(42)))
	require.NoError(t, err)
	i, ok := v.AsInt64()
	require.True(t, ok)
	assert.Equal(t, int64(42), i)

	v, err = toValue(rt.ToValue("hello"))
	require.NoError(t, err)
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "hello", s)

	v, err = toValue(goja.Null())
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestToValueConvertsObjectAndArray(t *testing.T) {
	rt := goja.New()
	jsVal, err := rt.RunString(`({ name: "a", tags: [1, 2, 3] })`)
	require.NoError(t, err)

	v, err := toValue(jsVal)
	require.NoError(t, err)
	name, ok := v.Field("name")
	require.True(t, ok)
	s, _ := name.AsString()
	assert.Equal(t, "a", s)

	tags, ok := v.Field("tags")
	require.True(t, ok)
	elems, ok := tags.AsElements()
	require.True(t, ok)
	require.Len(t, elems, 3)
}

func TestFromValuePreservesObjectFieldOrder(t *testing.T) {
	rt := goja.New()
	v := value.Object(
		value.Field{Key: "z", Val: value.Int64(1)},
		value.Field{Key: "a", Val: value.Int64(2)},
	)
	jsVal := fromValue(rt, v)
	_ = rt.Set("obj", jsVal)
	keysVal, err := rt.RunString(`Object.keys(obj)`)
	require.NoError(t, err)
	keys := keysVal.Export().([]any)
	require.Len(t, keys, 2)
	assert.Equal(t, "z", keys[0])
	assert.Equal(t, "a", keys[1])
}

func TestFromValueRoundTripsArray(t *testing.T) {
	rt := goja.New()
	v := value.Array(value.Int64(1), value.Int64(2), value.Int64(3))
	jsVal := fromValue(rt, v)
	back, err := toValue(jsVal)
	require.NoError(t, err)
	assert.True(t, value.Equal(v, back))
}
