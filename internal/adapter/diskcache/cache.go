// Package diskcache implements the persistent tier of the response cache:
// one JSON file per entry under a cache directory, addressed by the SHA-256
// of the key.
package diskcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// envelope is the on-disk representation of one entry. The key is stored
// alongside the value so a file remains self-describing after the memory
// tier has forgotten it.
type envelope struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	TTL       int64     `json:"ttl_ns"`
}

func (e *envelope) expired(now time.Time) bool {
	return !now.Before(e.CreatedAt.Add(time.Duration(e.TTL)))
}

// Cache is a file-backed cache. Entries survive process restarts; expired
// and unreadable files are removed lazily on lookup and eagerly by
// CleanupExpired.
type Cache struct {
	dir string
	now func() time.Time // for testing
}

// New creates a disk cache rooted at dir, creating the directory if needed.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir, now: time.Now}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".json")
}

// Get reads an entry from disk. A missing, expired, or corrupt file is a
// miss; expired and corrupt files are removed.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	path := c.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache file: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		// Unparseable entries are useless; drop them rather than fail
		// every future lookup of this key.
		_ = os.Remove(path)
		return nil, false, nil
	}

	if env.expired(c.now()) {
		_ = os.Remove(path)
		return nil, false, nil
	}
	return env.Value, true, nil
}

// Set writes an entry atomically: to a temp file first, then renamed into
// place so a concurrent Get never observes a partial write.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	env := envelope{
		Key:       key,
		Value:     value,
		CreatedAt: c.now(),
		TTL:       int64(ttl),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	path := c.path(key)
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Delete removes an entry. Removing an absent entry is not an error.
func (c *Cache) Delete(_ context.Context, key string) error {
	if err := os.Remove(c.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}

// Clear removes all entries.
func (c *Cache) Clear(ctx context.Context) error {
	return c.walk(ctx, func(path string, _ *envelope) error {
		return os.Remove(path)
	})
}

// CleanupExpired removes expired and corrupt entries and returns the count
// removed.
func (c *Cache) CleanupExpired(ctx context.Context) (int, error) {
	now := c.now()
	removed := 0
	err := c.walk(ctx, func(path string, env *envelope) error {
		if env == nil || env.expired(now) {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Len returns the number of entry files, including not-yet-swept expired
// ones.
func (c *Cache) Len(ctx context.Context) (int, error) {
	n := 0
	err := c.walk(ctx, func(string, *envelope) error {
		n++
		return nil
	})
	return n, err
}

// walk visits every entry file, passing nil for the envelope when the file
// cannot be parsed. Visiting stops on the first callback error or when ctx
// is done.
func (c *Cache) walk(ctx context.Context, fn func(path string, env *envelope) error) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, ent := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".json" {
			continue
		}
		path := filepath.Join(c.dir, ent.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("read cache file: %w", err)
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			if err := fn(path, nil); err != nil {
				return err
			}
			continue
		}
		if err := fn(path, &env); err != nil {
			return err
		}
	}
	return nil
}
