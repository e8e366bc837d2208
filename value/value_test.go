package value

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocRoundTrip(t *testing.T) {
	samples := []Value{
		Null(),
		Int64(0),
		Int64(-1),
		Int64(math.MaxInt64),
		Int64(math.MinInt64),
		Float64(0),
		Float64(-0.0),
		Float64(math.Inf(1)),
		Float64(math.Inf(-1)),
		Float64(math.NaN()),
		Float64(3.14159),
		Bool(true),
		Bool(false),
		String(""),
		String("hello, \x00 world"),
		Bytes([]byte{0x00, 0x01, 0xff}),
		Array(Int64(1), String("a"), Null()),
		Set(Int64(1), Int64(2)),
		Map(map[string]Value{"b": Int64(2), "a": Int64(1)}),
		Object(Field{Key: "name", Val: String("alex")}, Field{Key: "age", Val: Int64(30)}),
		Object(Field{Key: "nested", Val: Array(Map(map[string]Value{"x": Bool(true)}))}),
	}

	for _, v := range samples {
		enc := EncodeDoc(v)
		got, err := DecodeDoc(enc)
		require.NoError(t, err)
		assert.True(t, Equal(v, got), "round trip mismatch for kind %s", v.Kind())
	}
}

func TestIndexOrderMatchesCompare(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	gens := []func() Value{
		func() Value { return Int64(r.Int63() - (1 << 62)) },
		func() Value { return Float64(r.NormFloat64()) },
		func() Value { return String(randString(r, 8)) },
		func() Value { return Bytes([]byte(randString(r, 8))) },
		func() Value { return Bool(r.Intn(2) == 0) },
	}
	for _, gen := range gens {
		for i := 0; i < 200; i++ {
			a, b := gen(), gen()
			cmp := Compare(a, b)
			ea, eb := EncodeIndexKey(a), EncodeIndexKey(b)
			switch {
			case cmp < 0:
				assert.True(t, lexLess(ea, eb), "expected %v < %v encoded", a, b)
			case cmp > 0:
				assert.True(t, lexLess(eb, ea), "expected %v > %v encoded", a, b)
			default:
				assert.Equal(t, ea, eb)
			}
		}
	}
}

func TestNaNSortsLast(t *testing.T) {
	nan := EncodeIndexKey(Float64(math.NaN()))
	inf := EncodeIndexKey(Float64(math.Inf(1)))
	assert.True(t, lexLess(inf, nan))
}

func TestValueTooLarge(t *testing.T) {
	big := make([]byte, MaxSerializedSize)
	err := Validate(Bytes(big))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ValueTooLarge")

	ok := make([]byte, MaxSerializedSize-2)
	require.NoError(t, Validate(Bytes(ok)))
}

func TestNestingTooDeep(t *testing.T) {
	v := Int64(1)
	for i := 0; i < MaxNestingDepth; i++ {
		v = Array(v)
	}
	err := Validate(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NestingTooDeep")

	v2 := Int64(1)
	for i := 0; i < MaxNestingDepth-1; i++ {
		v2 = Array(v2)
	}
	require.NoError(t, Validate(v2))
}

func TestInvalidUtf8(t *testing.T) {
	err := Validate(String(string([]byte{0xff, 0xfe})))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidUtf8")
}

func TestSplitIndexKey(t *testing.T) {
	short := make([]byte, 100)
	p, s := SplitIndexKey(short)
	assert.Equal(t, short, p)
	assert.Nil(t, s)

	long := make([]byte, IndexKeySplitThreshold+50)
	p, s = SplitIndexKey(long)
	assert.Len(t, p, IndexKeySplitThreshold)
	assert.Len(t, s, 50)
	assert.Equal(t, long, JoinIndexKey(p, s))
}

func lexLess(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func randString(r *rand.Rand, n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[r.Intn(len(letters))]
	}
	return string(b)
}
