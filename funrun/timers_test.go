package funrun

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"
)

func callableFromScript(t *testing.T, rt *goja.Runtime, src string) goja.Callable {
	t.Helper()
	v, err := rt.RunString(src)
	require.NoError(t, err)
	fn, ok := goja.AssertFunction(v)
	require.True(t, ok)
	return fn
}

func TestTimerQueueDrainsInDelayOrder(t *testing.T) {
	rt := goja.New()
	var order []string
	_ = rt.Set("record", func(call goja.FunctionCall) goja.Value {
		s, _ := call.Arguments[0].Export().(string)
		order = append(order, s)
		return goja.Undefined()
	})

	q := newTimerQueue()
	q.schedule(callableFromScript(t, rt, `(function(){ record("second"); })`), 10, false, nil)
	q.schedule(callableFromScript(t, rt, `(function(){ record("first"); })`), 0, false, nil)

	require.NoError(t, q.drain(100, nil))
	require.Equal(t, []string{"first", "second"}, order)
}

func TestTimerQueueIntervalRepeatsUntilTickCap(t *testing.T) {
	rt := goja.New()
	count := 0
	_ = rt.Set("bump", func(goja.FunctionCall) goja.Value {
		count++
		return goja.Undefined()
	})

	q := newTimerQueue()
	q.schedule(callableFromScript(t, rt, `(function(){ bump(); })`), 0, true, nil)

	require.NoError(t, q.drain(5, nil))
	require.Equal(t, 5, count)
}

func TestTimerQueueCancelStopsFutureRuns(t *testing.T) {
	rt := goja.New()
	count := 0
	_ = rt.Set("bump", func(goja.FunctionCall) goja.Value {
		count++
		return goja.Undefined()
	})

	q := newTimerQueue()
	id := q.schedule(callableFromScript(t, rt, `(function(){ bump(); })`), 0, true, nil)
	q.cancel(id)

	require.NoError(t, q.drain(5, nil))
	require.Equal(t, 0, count)
}
