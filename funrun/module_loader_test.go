package funrun

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLoader struct {
	calls atomic.Int64
	src   string
}

func (c *countingLoader) Load(_ context.Context, _ string) (string, error) {
	c.calls.Add(1)
	return c.src, nil
}

func TestCachingLoaderCachesAfterFirstLoad(t *testing.T) {
	inner := &countingLoader{src: "export const x = 1;"}
	loader, err := NewCachingLoader(inner, 8)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		src, err := loader.Load(context.Background(), "mod.js")
		require.NoError(t, err)
		assert.Equal(t, inner.src, src)
	}
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestCachingLoaderCoalescesConcurrentLoads(t *testing.T) {
	inner := &countingLoader{src: "export const x = 1;"}
	loader, err := NewCachingLoader(inner, 8)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := loader.Load(context.Background(), "mod.js")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, inner.calls.Load(), int64(2))
}

func TestStaticLoaderServesFixedModules(t *testing.T) {
	loader := StaticLoader{"a.js": "source a"}
	src, err := loader.Load(context.Background(), "a.js")
	require.NoError(t, err)
	assert.Equal(t, "source a", src)

	_, err = loader.Load(context.Background(), "missing.js")
	require.Error(t, err)
}
