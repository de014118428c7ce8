// Package cache defines the port interfaces for caching.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Store extends Cache with the operational surface: explicit clearing and
// idempotent expiry sweeps, consumed by an admin collaborator.
type Store interface {
	Cache

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// CleanupExpired proactively removes expired entries and returns how
	// many were removed. Safe to invoke repeatedly.
	CleanupExpired(ctx context.Context) (int, error)

	// Len returns the current number of entries.
	Len(ctx context.Context) (int, error)
}
