package tiered_test

import (
	"context"
	"testing"
	"time"

	"github.com/code2api/code2api/internal/adapter/tiered"
)

// fakeStore records writes so tests can assert tier interactions.
type fakeStore struct {
	data map[string][]byte
	ttls map[string]time.Duration
	sets int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.data[key] = value
	f.ttls[key] = ttl
	f.sets++
	return nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	delete(f.data, key)
	return nil
}

func (f *fakeStore) Clear(_ context.Context) error {
	f.data = make(map[string][]byte)
	return nil
}

func (f *fakeStore) CleanupExpired(_ context.Context) (int, error) {
	return 0, nil
}

func (f *fakeStore) Len(_ context.Context) (int, error) {
	return len(f.data), nil
}

func TestMemoryHitSkipsDisk(t *testing.T) {
	mem := newFakeStore()
	disk := newFakeStore()
	c := tiered.New(mem, disk, time.Hour, 2*time.Hour)
	ctx := context.Background()

	mem.data["k"] = []byte("v")

	val, found, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(val) != "v" {
		t.Fatalf("expected memory hit v, got found=%v val=%s", found, val)
	}
}

func TestDiskHitPromotesToMemory(t *testing.T) {
	mem := newFakeStore()
	disk := newFakeStore()
	c := tiered.New(mem, disk, time.Hour, 2*time.Hour)
	ctx := context.Background()

	disk.data["k"] = []byte("v")

	val, found, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(val) != "v" {
		t.Fatalf("expected disk hit v, got found=%v val=%s", found, val)
	}
	if _, ok := mem.data["k"]; !ok {
		t.Fatal("expected disk hit promoted to memory")
	}
	if mem.ttls["k"] != time.Hour {
		t.Fatalf("expected promotion with memory ttl, got %s", mem.ttls["k"])
	}
	if n, _ := c.MemLen(ctx); n != 1 {
		t.Fatalf("expected memory tier len 1 after promotion, got %d", n)
	}
}

func TestSetWritesThroughWithDoubledDiskTTL(t *testing.T) {
	mem := newFakeStore()
	disk := newFakeStore()
	c := tiered.New(mem, disk, time.Hour, 2*time.Hour)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 10*time.Minute); err != nil {
		t.Fatal(err)
	}

	if mem.ttls["k"] != 10*time.Minute {
		t.Errorf("expected memory ttl 10m, got %s", mem.ttls["k"])
	}
	if disk.ttls["k"] != 20*time.Minute {
		t.Errorf("expected disk ttl 20m, got %s", disk.ttls["k"])
	}
}

func TestSetZeroTTLUsesConfiguredTTLs(t *testing.T) {
	mem := newFakeStore()
	disk := newFakeStore()
	c := tiered.New(mem, disk, time.Hour, 4*time.Hour)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}

	if mem.ttls["k"] != time.Hour {
		t.Errorf("expected configured memory ttl, got %s", mem.ttls["k"])
	}
	if disk.ttls["k"] != 4*time.Hour {
		t.Errorf("expected configured disk ttl, got %s", disk.ttls["k"])
	}
}

func TestDeleteAndClearReachBothTiers(t *testing.T) {
	mem := newFakeStore()
	disk := newFakeStore()
	c := tiered.New(mem, disk, time.Hour, 2*time.Hour)
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)

	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, ok := mem.data["a"]; ok {
		t.Error("expected a removed from memory")
	}
	if _, ok := disk.data["a"]; ok {
		t.Error("expected a removed from disk")
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := c.Len(ctx); n != 0 {
		t.Errorf("expected empty cache, len=%d", n)
	}
}
