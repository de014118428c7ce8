// Package ristretto wraps dgraph-io/ristretto as an in-process memoization
// cache. The analyzer uses it keyed by content hash so identical source
// blobs are parsed once.
package ristretto

import (
	"github.com/dgraph-io/ristretto/v2"
)

// Cache memoizes values of type V by string key, bounded by total cost in
// bytes. Admission and eviction are best-effort; callers must treat every
// lookup as fallible.
type Cache[V any] struct {
	c *ristretto.Cache[string, V]
}

// New creates a memoization cache with the given byte budget.
func New[V any](maxCostBytes int64) (*Cache[V], error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, V]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache[V]{c: c}, nil
}

// Get retrieves a memoized value.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.c.Get(key)
}

// Set stores a value with the given cost in bytes. Writes are buffered and
// may be dropped under pressure.
func (c *Cache[V]) Set(key string, value V, cost int64) {
	c.c.Set(key, value, cost)
}

// Wait blocks until buffered writes are applied. Intended for tests.
func (c *Cache[V]) Wait() {
	c.c.Wait()
}

// Close shuts down the cache and releases resources.
func (c *Cache[V]) Close() {
	c.c.Close()
}
