// Package tiered composes the memory and disk cache tiers. Lookups check
// memory first, then disk, promoting disk hits back into memory. Writes go
// through to both tiers, with the disk tier holding entries longer.
package tiered

import (
	"context"
	"errors"
	"time"

	"github.com/code2api/code2api/internal/port/cache"
)

// Cache is a two-tier cache. memTTL is the lifetime of promoted and
// written-through memory entries; diskTTL the lifetime of disk entries.
type Cache struct {
	mem     cache.Store
	disk    cache.Store
	memTTL  time.Duration
	diskTTL time.Duration
}

// New creates a tiered cache over the given memory and disk tiers.
func New(mem, disk cache.Store, memTTL, diskTTL time.Duration) *Cache {
	return &Cache{mem: mem, disk: disk, memTTL: memTTL, diskTTL: diskTTL}
}

// Get checks memory, then disk. A disk hit is promoted into memory with the
// memory TTL.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, found, err := c.mem.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.disk.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		_ = c.mem.Set(ctx, key, val, c.memTTL)
		return val, true, nil
	}
	return nil, false, nil
}

// Set writes to both tiers. A zero ttl uses the configured tier TTLs;
// otherwise ttl applies to memory and the disk entry lives twice as long.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	memTTL, diskTTL := c.memTTL, c.diskTTL
	if ttl > 0 {
		memTTL, diskTTL = ttl, 2*ttl
	}
	if err := c.mem.Set(ctx, key, value, memTTL); err != nil {
		return err
	}
	return c.disk.Set(ctx, key, value, diskTTL)
}

// Delete removes the key from both tiers.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return errors.Join(
		c.mem.Delete(ctx, key),
		c.disk.Delete(ctx, key),
	)
}

// Clear empties both tiers.
func (c *Cache) Clear(ctx context.Context) error {
	return errors.Join(
		c.mem.Clear(ctx),
		c.disk.Clear(ctx),
	)
}

// CleanupExpired sweeps both tiers and returns the total removed.
func (c *Cache) CleanupExpired(ctx context.Context) (int, error) {
	memRemoved, memErr := c.mem.CleanupExpired(ctx)
	diskRemoved, diskErr := c.disk.CleanupExpired(ctx)
	return memRemoved + diskRemoved, errors.Join(memErr, diskErr)
}

// Len returns the disk tier's entry count. Every live entry reaches disk,
// so the disk count is the authoritative size.
func (c *Cache) Len(ctx context.Context) (int, error) {
	return c.disk.Len(ctx)
}

// MemLen returns the memory tier's entry count.
func (c *Cache) MemLen(ctx context.Context) (int, error) {
	return c.mem.Len(ctx)
}
