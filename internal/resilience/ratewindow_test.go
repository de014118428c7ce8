package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWindowOptimisticBeforeFirstUpdate(t *testing.T) {
	w := NewWindow(2, 1000, 250*time.Millisecond)
	if err := w.Check(); err != nil {
		t.Fatalf("expected fresh window to admit calls, got %v", err)
	}
}

func TestWindowCheckBelowThreshold(t *testing.T) {
	w := NewWindow(2, 1000, 250*time.Millisecond)
	now := time.Now()
	w.now = func() time.Time { return now }

	w.Update(1, 50000, time.Minute, time.Minute)
	if err := w.Check(); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	w.Update(100, 500, time.Minute, time.Minute)
	if err := w.Check(); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on token depletion, got %v", err)
	}

	w.Update(100, 50000, time.Minute, time.Minute)
	if err := w.Check(); err != nil {
		t.Fatalf("expected healthy window to admit calls, got %v", err)
	}
}

func TestWindowRecoversAfterReset(t *testing.T) {
	w := NewWindow(2, 1000, 250*time.Millisecond)
	now := time.Now()
	w.now = func() time.Time { return now }

	w.Update(0, 50000, time.Minute, time.Minute)
	if err := w.Check(); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// Past the reset instant the stale remaining count no longer gates.
	now = now.Add(2 * time.Minute)
	if err := w.Check(); err != nil {
		t.Fatalf("expected window to recover after reset, got %v", err)
	}
}

func TestWaitSleepsUntilResetMinusMargin(t *testing.T) {
	w := NewWindow(2, 1000, 250*time.Millisecond)
	now := time.Now()
	w.now = func() time.Time { return now }

	var slept []time.Duration
	w.sleepFn = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		now = now.Add(d)
		return nil
	}

	w.Update(0, 50000, time.Minute, 30*time.Second)

	if err := w.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(slept) != 1 {
		t.Fatalf("expected one sleep, got %d", len(slept))
	}
	want := time.Minute - 250*time.Millisecond
	if slept[0] != want {
		t.Errorf("expected sleep of %s, got %s", want, slept[0])
	}
}

func TestWindowAdmitsWithinMarginOfReset(t *testing.T) {
	w := NewWindow(2, 1000, 250*time.Millisecond)
	now := time.Now()
	w.now = func() time.Time { return now }

	// Depleted, but the reset lands inside the margin.
	w.Update(0, 50000, 100*time.Millisecond, time.Minute)
	if err := w.Check(); err != nil {
		t.Fatalf("expected window within margin of reset to admit, got %v", err)
	}
}

func TestWaitReturnsImmediatelyWhenHealthy(t *testing.T) {
	w := NewWindow(2, 1000, 250*time.Millisecond)
	w.sleepFn = func(context.Context, time.Duration) error {
		t.Fatal("unexpected sleep")
		return nil
	}
	if err := w.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	w := NewWindow(2, 1000, 250*time.Millisecond)
	now := time.Now()
	w.now = func() time.Time { return now }
	w.Update(0, 50000, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
