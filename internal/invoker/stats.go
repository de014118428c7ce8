package invoker

import (
	"context"
	"errors"
	"sort"
	"time"
)

// NamespaceStats is the introspection view of one call site's cache.
type NamespaceStats struct {
	Size        int           `json:"size"`
	MaxSize     int           `json:"max_size"`
	HitRatio    float64       `json:"hit_ratio"`
	TTL         time.Duration `json:"ttl"`
	DiskEntries int           `json:"disk_entries"`
	Hits        int64         `json:"hits"`
	Misses      int64         `json:"misses"`
	Calls       int64         `json:"calls"`
	Retries     int64         `json:"retries"`
}

// Stats reports per-namespace cache state, keyed by call site.
func (inv *Invoker) Stats(ctx context.Context) (map[string]NamespaceStats, error) {
	inv.mu.Lock()
	type snap struct {
		name string
		ns   NamespaceStats
		tier Tier
	}
	snaps := make([]snap, 0, len(inv.namespaces))
	for name, ns := range inv.namespaces {
		s := NamespaceStats{
			TTL:     ns.tier.TTL,
			Hits:    ns.hits,
			Misses:  ns.misses,
			Calls:   ns.calls,
			Retries: ns.retries,
		}
		if total := ns.hits + ns.misses; total > 0 {
			s.HitRatio = float64(ns.hits) / float64(total)
		}
		snaps = append(snaps, snap{name: name, ns: s, tier: ns.tier})
	}
	inv.mu.Unlock()

	out := make(map[string]NamespaceStats, len(snaps))
	for _, s := range snaps {
		if s.tier.Memory != nil {
			n, err := s.tier.Memory.Len(ctx)
			if err != nil {
				return nil, err
			}
			s.ns.Size = n
			s.ns.MaxSize = s.tier.Memory.MaxSize()
		}
		if s.tier.Disk != nil {
			n, err := s.tier.Disk.Len(ctx)
			if err != nil {
				return nil, err
			}
			s.ns.DiskEntries = n
		}
		out[s.name] = s.ns
	}
	return out, nil
}

// Clear empties every namespace's cache tiers and resets counters.
func (inv *Invoker) Clear(ctx context.Context) error {
	var errs []error
	for _, ns := range inv.snapshot() {
		if err := ns.tier.Store.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	inv.mu.Lock()
	for _, ns := range inv.namespaces {
		ns.hits, ns.misses, ns.calls, ns.retries = 0, 0, 0, 0
	}
	inv.mu.Unlock()
	return errors.Join(errs...)
}

// CleanupExpired sweeps expired entries from every namespace and returns
// the total removed. Idempotent.
func (inv *Invoker) CleanupExpired(ctx context.Context) (int, error) {
	removed := 0
	var errs []error
	for _, ns := range inv.snapshot() {
		n, err := ns.tier.Store.CleanupExpired(ctx)
		removed += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}

// Namespaces returns the call sites seen so far, sorted.
func (inv *Invoker) Namespaces() []string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	names := make([]string, 0, len(inv.namespaces))
	for name := range inv.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (inv *Invoker) snapshot() []*namespace {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]*namespace, 0, len(inv.namespaces))
	for _, ns := range inv.namespaces {
		out = append(out, ns)
	}
	return out
}
