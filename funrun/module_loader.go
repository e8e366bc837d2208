package funrun

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// ModuleLoader resolves a module specifier to its JS source, the
// capability named in §4.13 for loading a function's own module plus
// any modules it imports.
type ModuleLoader interface {
	Load(ctx context.Context, specifier string) (source string, err error)
}

// cachedModule is a loader result kept in the module cache.
type cachedModule struct {
	source string
}

// CachingLoader wraps a ModuleLoader with an LRU source cache plus
// singleflight coalescing, so concurrent calls loading the same module
// for the first time share one underlying fetch instead of stampeding
// it (§4.13 "module cache... coalesced with singleflight").
type CachingLoader struct {
	inner ModuleLoader
	cache *lru.Cache[string, cachedModule]
	group singleflight.Group
}

// NewCachingLoader builds a CachingLoader with room for size modules.
func NewCachingLoader(inner ModuleLoader, size int) (*CachingLoader, error) {
	cache, err := lru.New[string, cachedModule](size)
	if err != nil {
		return nil, err
	}
	return &CachingLoader{inner: inner, cache: cache}, nil
}

func (c *CachingLoader) Load(ctx context.Context, specifier string) (string, error) {
	if mod, ok := c.cache.Get(specifier); ok {
		return mod.source, nil
	}
	result, err, _ := c.group.Do(specifier, func() (any, error) {
		if mod, ok := c.cache.Get(specifier); ok {
			return mod, nil
		}
		source, err := c.inner.Load(ctx, specifier)
		if err != nil {
			return cachedModule{}, err
		}
		mod := cachedModule{source: source}
		c.cache.Add(specifier, mod)
		return mod, nil
	})
	if err != nil {
		return "", err
	}
	return result.(cachedModule).source, nil
}

// StaticLoader serves a fixed set of modules held in memory, used by
// tests and by callers that have already resolved source ahead of time.
type StaticLoader map[string]string

func (s StaticLoader) Load(_ context.Context, specifier string) (string, error) {
	src, ok := s[specifier]
	if !ok {
		return "", errModuleNotFound(specifier)
	}
	return src, nil
}

type moduleNotFoundError struct{ specifier string }

func (e moduleNotFoundError) Error() string { return "funrun: module not found: " + e.specifier }

func errModuleNotFound(specifier string) error { return moduleNotFoundError{specifier: specifier} }
