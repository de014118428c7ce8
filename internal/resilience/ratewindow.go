package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned by a non-blocking gate check when the provider
// window is exhausted.
var ErrRateLimited = errors.New("rate limit window exhausted")

// WindowState is a point-in-time copy of the provider rate window.
type WindowState struct {
	RemainingRequests int64
	RemainingTokens   int64
	ResetRequests     time.Time
	ResetTokens       time.Time
}

// Window tracks the external provider's remaining request and token budget,
// refreshed from response headers after every call. It is process-wide and
// never persisted; a restart starts optimistic and corrects after the first
// response.
type Window struct {
	mu      sync.Mutex
	known   bool
	state   WindowState
	reqMin  int64
	tokMin  int64
	margin  time.Duration
	now     func() time.Time // for testing
	sleepFn func(ctx context.Context, d time.Duration) error
}

// NewWindow creates a rate window that reports exhaustion when remaining
// requests drop below reqThreshold or remaining tokens below tokThreshold.
// margin trims the wait so callers resume slightly before the provider's
// reset instant.
func NewWindow(reqThreshold, tokThreshold int64, margin time.Duration) *Window {
	return &Window{
		reqMin: reqThreshold,
		tokMin: tokThreshold,
		margin: margin,
		now:    time.Now,
		sleepFn: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// Update refreshes the window from a response. Resets are given as
// durations until the respective budget replenishes.
func (w *Window) Update(remRequests, remTokens int64, untilReqReset, untilTokReset time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.known = true
	w.state = WindowState{
		RemainingRequests: remRequests,
		RemainingTokens:   remTokens,
		ResetRequests:     now.Add(untilReqReset),
		ResetTokens:       now.Add(untilTokReset),
	}
}

// Snapshot returns a copy of the current window state.
func (w *Window) Snapshot() WindowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// exhaustedLocked reports whether the window is below threshold and how long
// to wait. The wait runs to the depleted budget's reset instant minus the
// margin, so a reset within the margin no longer gates. Before the first
// Update the window is optimistic.
func (w *Window) exhaustedLocked() (bool, time.Duration) {
	if !w.known {
		return false, 0
	}
	horizon := w.now().Add(w.margin)
	wait := time.Duration(0)
	exhausted := false
	if w.state.RemainingRequests < w.reqMin && w.state.ResetRequests.After(horizon) {
		exhausted = true
		wait = w.state.ResetRequests.Sub(horizon)
	}
	if w.state.RemainingTokens < w.tokMin && w.state.ResetTokens.After(horizon) {
		exhausted = true
		if d := w.state.ResetTokens.Sub(horizon); d > wait {
			wait = d
		}
	}
	if !exhausted {
		return false, 0
	}
	return true, wait
}

// Check is the non-blocking gate: ErrRateLimited when the window is
// exhausted, nil otherwise.
func (w *Window) Check() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if exhausted, _ := w.exhaustedLocked(); exhausted {
		return ErrRateLimited
	}
	return nil
}

// Wait blocks the calling goroutine until the window has budget again or
// ctx is done. Only the caller is suspended; the lock is not held while
// sleeping.
func (w *Window) Wait(ctx context.Context) error {
	for {
		w.mu.Lock()
		exhausted, d := w.exhaustedLocked()
		w.mu.Unlock()
		if !exhausted {
			return nil
		}
		if err := w.sleepFn(ctx, d); err != nil {
			return err
		}
	}
}
