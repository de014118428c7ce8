package invoker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/code2api/code2api/internal/adapter/diskcache"
	"github.com/code2api/code2api/internal/adapter/memcache"
	"github.com/code2api/code2api/internal/adapter/tiered"
	"github.com/code2api/code2api/internal/port/llm"
	"github.com/code2api/code2api/internal/resilience"
)

// fakeClient scripts call outcomes and counts invocations.
type fakeClient struct {
	mu      sync.Mutex
	calls   int
	outcome func(call int) (llm.Response, error)
}

func (f *fakeClient) Call(_ context.Context, _ llm.Request) (llm.Response, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	return f.outcome(n)
}

func (f *fakeClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testFactory(t *testing.T) TierFactory {
	t.Helper()
	dir := t.TempDir()
	return func(ns string) (Tier, error) {
		mem := memcache.New(100)
		disk, err := diskcache.New(filepath.Join(dir, ns))
		if err != nil {
			return Tier{}, err
		}
		return Tier{
			Store:  tiered.New(mem, disk, time.Hour, 2*time.Hour),
			Memory: mem,
			Disk:   disk,
			TTL:    time.Hour,
		}, nil
	}
}

func newTestInvoker(t *testing.T, client llm.Client) *Invoker {
	t.Helper()
	window := resilience.NewWindow(2, 1000, 250*time.Millisecond)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(client, window, testFactory(t), Options{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}, log)
}

func TestCacheRoundTrip(t *testing.T) {
	client := &fakeClient{outcome: func(int) (llm.Response, error) {
		return llm.Response{Text: "forty-two"}, nil
	}}
	inv := newTestInvoker(t, client)
	ctx := context.Background()

	req := Request{CallSite: "test.echo", Prompt: "p", Args: map[string]any{"q": "x"}}

	first, err := inv.Invoke(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if first.FromCache {
		t.Fatal("first call should not be cached")
	}

	second, err := inv.Invoke(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !second.FromCache {
		t.Fatal("second identical call should hit the cache")
	}
	if second.Text != first.Text {
		t.Fatalf("cached payload differs: %q vs %q", second.Text, first.Text)
	}
	if client.count() != 1 {
		t.Fatalf("expected exactly one external call, got %d", client.count())
	}
}

func TestDistinctArgsMissCache(t *testing.T) {
	client := &fakeClient{outcome: func(int) (llm.Response, error) {
		return llm.Response{Text: "ok"}, nil
	}}
	inv := newTestInvoker(t, client)
	ctx := context.Background()

	_, _ = inv.Invoke(ctx, Request{CallSite: "test.echo", Prompt: "p", Args: map[string]int{"n": 1}})
	_, _ = inv.Invoke(ctx, Request{CallSite: "test.echo", Prompt: "p", Args: map[string]int{"n": 2}})

	if client.count() != 2 {
		t.Fatalf("expected two external calls for distinct args, got %d", client.count())
	}
}

func TestRetrySucceedsOnThirdAttempt(t *testing.T) {
	client := &fakeClient{outcome: func(call int) (llm.Response, error) {
		if call < 3 {
			return llm.Response{}, &llm.StatusError{Code: 503, Body: "overloaded"}
		}
		return llm.Response{Text: "ok"}, nil
	}}
	inv := newTestInvoker(t, client)

	var slept []time.Duration
	inv.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	resp, err := inv.Invoke(context.Background(), Request{CallSite: "test.retry", Prompt: "p", Args: 1})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Attempts != 3 {
		t.Fatalf("expected success on attempt 3, got %d", resp.Attempts)
	}
	if len(slept) != 2 {
		t.Fatalf("expected two backoff sleeps, got %d", len(slept))
	}
	if slept[1] < slept[0] {
		t.Errorf("expected non-decreasing delays, got %s then %s", slept[0], slept[1])
	}
}

func TestExhaustedRetries(t *testing.T) {
	cause := &llm.StatusError{Code: 500, Body: "boom"}
	client := &fakeClient{outcome: func(int) (llm.Response, error) {
		return llm.Response{}, cause
	}}
	inv := newTestInvoker(t, client)
	inv.sleep = func(context.Context, time.Duration) error { return nil }

	_, err := inv.Invoke(context.Background(), Request{CallSite: "test.fail", Prompt: "p", Args: 1})

	var ie *InvocationError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InvocationError, got %v", err)
	}
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted kind, got %v", ie.Kind)
	}
	if ie.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", ie.Attempts)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause chain to reach the underlying status error")
	}
	if client.count() != 3 {
		t.Errorf("expected 3 external calls, got %d", client.count())
	}
}

func TestPermanentErrorFailsFast(t *testing.T) {
	client := &fakeClient{outcome: func(int) (llm.Response, error) {
		return llm.Response{}, &llm.StatusError{Code: 400, Body: "bad request"}
	}}
	inv := newTestInvoker(t, client)

	_, err := inv.Invoke(context.Background(), Request{CallSite: "test.perm", Prompt: "p", Args: 1})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if client.count() != 1 {
		t.Fatalf("expected no retries on a permanent error, got %d calls", client.count())
	}
}

func TestSchemaValidationWithReExtraction(t *testing.T) {
	client := &fakeClient{outcome: func(int) (llm.Response, error) {
		return llm.Response{Text: "Sure! ```json\n{\"purpose\": \"database\", \"confidence\": 0.9}\n```"}, nil
	}}
	inv := newTestInvoker(t, client)

	resp, err := inv.Invoke(context.Background(), Request{
		CallSite: "test.schema", Prompt: "p", Args: 1,
		Schema: []string{"purpose", "confidence"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(resp.JSON) != `{"purpose": "database", "confidence": 0.9}` {
		t.Errorf("unexpected extracted JSON: %s", resp.JSON)
	}
}

func TestMalformedResponse(t *testing.T) {
	client := &fakeClient{outcome: func(int) (llm.Response, error) {
		return llm.Response{Text: "no structure here"}, nil
	}}
	inv := newTestInvoker(t, client)

	_, err := inv.Invoke(context.Background(), Request{
		CallSite: "test.malformed", Prompt: "p", Args: 1,
		Schema: []string{"purpose"},
	})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestNonBlockingRateLimited(t *testing.T) {
	client := &fakeClient{outcome: func(int) (llm.Response, error) {
		return llm.Response{Text: "ok"}, nil
	}}
	inv := newTestInvoker(t, client)
	inv.window.Update(0, 50000, time.Hour, time.Hour)

	_, err := inv.Invoke(context.Background(), Request{
		CallSite: "test.rate", Prompt: "p", Args: 1, NonBlocking: true,
	})
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
	if client.count() != 0 {
		t.Fatalf("expected no external call past the gate, got %d", client.count())
	}
}

func TestWindowUpdatedFromResponse(t *testing.T) {
	client := &fakeClient{outcome: func(int) (llm.Response, error) {
		return llm.Response{
			Text: "ok",
			Rate: llm.RateLimit{
				Known:             true,
				RemainingRequests: 7,
				RemainingTokens:   4200,
				UntilRequestReset: time.Minute,
				UntilTokenReset:   time.Minute,
			},
		}, nil
	}}
	inv := newTestInvoker(t, client)

	if _, err := inv.Invoke(context.Background(), Request{CallSite: "test.window", Prompt: "p", Args: 1}); err != nil {
		t.Fatal(err)
	}

	state := inv.window.Snapshot()
	if state.RemainingRequests != 7 || state.RemainingTokens != 4200 {
		t.Errorf("expected window refreshed from response, got %+v", state)
	}
}

func TestStatsPerNamespace(t *testing.T) {
	client := &fakeClient{outcome: func(int) (llm.Response, error) {
		return llm.Response{Text: "ok"}, nil
	}}
	inv := newTestInvoker(t, client)
	ctx := context.Background()

	req := Request{CallSite: "test.stats", Prompt: "p", Args: 1}
	_, _ = inv.Invoke(ctx, req)
	_, _ = inv.Invoke(ctx, req)

	stats, err := inv.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	s, ok := stats["test.stats"]
	if !ok {
		t.Fatal("expected stats for namespace")
	}
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("expected 1 hit 1 miss, got %+v", s)
	}
	if s.HitRatio != 0.5 {
		t.Errorf("expected hit ratio 0.5, got %f", s.HitRatio)
	}
	if s.Size != 1 || s.DiskEntries != 1 {
		t.Errorf("expected one entry in each tier, got %+v", s)
	}
	if s.MaxSize != 100 {
		t.Errorf("expected max size 100, got %d", s.MaxSize)
	}
}

func TestClearAndCleanup(t *testing.T) {
	client := &fakeClient{outcome: func(int) (llm.Response, error) {
		return llm.Response{Text: "ok"}, nil
	}}
	inv := newTestInvoker(t, client)
	ctx := context.Background()

	_, _ = inv.Invoke(ctx, Request{CallSite: "test.clear", Prompt: "p", Args: 1})

	if err := inv.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	stats, _ := inv.Stats(ctx)
	if s := stats["test.clear"]; s.Size != 0 || s.DiskEntries != 0 || s.Hits != 0 {
		t.Errorf("expected cleared namespace, got %+v", s)
	}

	if _, err := inv.CleanupExpired(ctx); err != nil {
		t.Fatal(err)
	}
}
