// Package memcache implements the in-process memory tier of the response
// cache: an access-ordered LRU with per-entry TTL.
package memcache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// entry is one cached value with its expiry and access bookkeeping.
type entry struct {
	key        string
	value      []byte
	createdAt  time.Time
	lastAccess time.Time
	accessed   int64
	ttl        time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return !now.Before(e.createdAt.Add(e.ttl))
}

// Cache is a bounded, access-ordered in-memory cache. Lookups move entries
// to the front; when at capacity the least-recently-used entry is evicted,
// independent of TTL. Expired entries are treated as absent on lookup and
// removed by CleanupExpired.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // front = most recently used
	items   map[string]*list.Element
	hits    int64
	misses  int64
	now     func() time.Time // for testing
}

// New creates a Cache holding at most maxSize entries.
func New(maxSize int) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache{
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Get retrieves a value, recording the access. An expired entry is removed
// and reported as a miss.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false, nil
	}

	e := el.Value.(*entry)
	now := c.now()
	if e.expired(now) {
		c.removeLocked(el)
		c.misses++
		return nil, false, nil
	}

	e.lastAccess = now
	e.accessed++
	c.order.MoveToFront(el)
	c.hits++
	return e.value, true, nil
}

// Set stores a value with the given TTL, evicting the least-recently-used
// entry when at capacity.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.createdAt = now
		e.lastAccess = now
		e.ttl = ttl
		c.order.MoveToFront(el)
		return nil
	}

	if c.order.Len() >= c.maxSize {
		if back := c.order.Back(); back != nil {
			c.removeLocked(back)
		}
	}

	el := c.order.PushFront(&entry{
		key:        key,
		value:      value,
		createdAt:  now,
		lastAccess: now,
		ttl:        ttl,
	})
	c.items[key] = el
	return nil
}

// Delete removes a value.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
	return nil
}

// Clear removes all entries and resets hit/miss counters.
func (c *Cache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element)
	c.hits, c.misses = 0, 0
	return nil
}

// CleanupExpired removes all expired entries and returns the count removed.
func (c *Cache) CleanupExpired(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*entry).expired(now) {
			c.removeLocked(el)
			removed++
		}
		el = prev
	}
	return removed, nil
}

// Len returns the current number of entries, including not-yet-swept
// expired ones.
func (c *Cache) Len(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), nil
}

// MaxSize returns the configured capacity.
func (c *Cache) MaxSize() int {
	return c.maxSize
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (c *Cache) HitRatio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// removeLocked must be called with c.mu held.
func (c *Cache) removeLocked(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}
