package diskcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestGetSetSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatal(err)
	}

	// A fresh instance over the same directory sees the entry.
	c2, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	val, ok, err := c2.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected hit after reopen")
	}
	if string(val) != "v" {
		t.Fatalf("expected v, got %s", val)
	}
}

func TestMissOnAbsentKey(t *testing.T) {
	c := newTestCache(t)
	if _, ok, err := c.Get(context.Background(), "missing"); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestExpiredEntryRemovedOnGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now()
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	now = now.Add(2 * time.Minute)

	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expected expired entry to be absent")
	}
	if n, _ := c.Len(ctx); n != 0 {
		t.Fatalf("expected expired file removed, len=%d", n)
	}
}

func TestZeroTTLIsAbsent(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), 0)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expected ttl=0 entry to be absent on lookup")
	}
}

func TestCorruptFileRemovedOnGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), time.Hour)
	if err := os.WriteFile(c.path("k"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := c.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected clean miss for corrupt file, got ok=%v err=%v", ok, err)
	}
	if n, _ := c.Len(ctx); n != 0 {
		t.Fatalf("expected corrupt file removed, len=%d", n)
	}
}

func TestCleanupExpired(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now()
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "short", []byte("v"), time.Minute)
	_ = c.Set(ctx, "long", []byte("v"), time.Hour)
	if err := os.WriteFile(filepath.Join(c.Dir(), "junk.json"), []byte("??"), 0o644); err != nil {
		t.Fatal(err)
	}

	now = now.Add(10 * time.Minute)
	removed, err := c.CleanupExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Fatalf("expected expired + corrupt removed (2), got %d", removed)
	}
	if _, ok, _ := c.Get(ctx, "long"); !ok {
		t.Fatal("expected unexpired entry to survive the sweep")
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), time.Hour)
	_ = c.Set(ctx, "b", []byte("2"), time.Hour)

	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := c.Len(ctx); n != 0 {
		t.Fatalf("expected empty cache, len=%d", n)
	}
}

func TestDeleteAbsentKey(t *testing.T) {
	c := newTestCache(t)
	if err := c.Delete(context.Background(), "missing"); err != nil {
		t.Fatalf("expected deleting absent key to succeed, got %v", err)
	}
}
