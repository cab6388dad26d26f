package party

import "sync"

// FiberMapCache is the cacheKey-keyed cache from original_source/'s
// party_runtime.c FiberMapCache/GetCachedFiberMap, supplemented per
// SPEC_FULL.md since spec.md's distillation names the cacheKey field
// without naming the cache that keys it.
type FiberMapCache struct {
	entries sync.Map // uint64 -> *FiberMap
}

// NewFiberMapCache returns an empty cache.
func NewFiberMapCache() *FiberMapCache {
	return &FiberMapCache{}
}

// Get returns the cached FiberMap for key, if any.
func (c *FiberMapCache) Get(key uint64) (*FiberMap, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*FiberMap), true
}

// Store caches fm under its own CacheKey, overwriting any prior entry.
func (c *FiberMapCache) Store(fm *FiberMap) {
	c.entries.Store(fm.CacheKey, fm)
}

// GetOrBuild returns the cached map for key if present, else calls build
// and caches its result under key (not under the built map's own
// CacheKey, since a caller may intentionally look up by a party's
// precomputed key before the map exists yet).
func (c *FiberMapCache) GetOrBuild(key uint64, build func() *FiberMap) *FiberMap {
	if fm, ok := c.Get(key); ok {
		return fm
	}
	fm := build()
	c.entries.Store(key, fm)
	return fm
}
