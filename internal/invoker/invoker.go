// Package invoker implements the cached, rate-aware external call layer.
// Every model call goes through a deterministic cache key, a two-tier cache
// lookup, a provider rate gate, and a bounded retry loop.
package invoker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/code2api/code2api/internal/port/cache"
	"github.com/code2api/code2api/internal/port/llm"
	"github.com/code2api/code2api/internal/resilience"
)

// Request is one cacheable call. CallSite namespaces the cache and stats;
// Args is the key material and must marshal deterministically. A zero TTL
// uses the namespace default. Schema lists required top-level fields of the
// JSON response; empty means the raw text is accepted as-is.
type Request struct {
	CallSite    string
	System      string
	Prompt      string
	Args        any
	TTL         time.Duration
	Schema      []string
	NonBlocking bool
	MaxTokens   int
	Temperature float64
}

// Response is a completed call. JSON is set when a schema was requested.
type Response struct {
	Text      string
	JSON      json.RawMessage
	FromCache bool
	Attempts  int
}

// cachedPayload is the serialized form persisted in the cache tiers.
type cachedPayload struct {
	Text string          `json:"text"`
	JSON json.RawMessage `json:"json,omitempty"`
}

// Tier is the cache backing one namespace: the composed store used for
// lookups plus direct views of each tier for introspection.
type Tier struct {
	Store  cache.Store
	Memory MemoryTier
	Disk   DiskTier
	TTL    time.Duration
}

// MemoryTier is the introspection view of the memory tier.
type MemoryTier interface {
	Len(ctx context.Context) (int, error)
	MaxSize() int
}

// DiskTier is the introspection view of the disk tier.
type DiskTier interface {
	Len(ctx context.Context) (int, error)
}

// TierFactory builds the cache backing for a namespace on first use.
type TierFactory func(namespace string) (Tier, error)

// Options tunes the retry schedule and attempt budget.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Recorder receives cache and retry events, typically backed by otel
// counters. All methods must be safe for concurrent use.
type Recorder interface {
	CacheHit(callSite string)
	CacheMiss(callSite string)
	Retry(callSite string)
}

type nopRecorder struct{}

func (nopRecorder) CacheHit(string)  {}
func (nopRecorder) CacheMiss(string) {}
func (nopRecorder) Retry(string)     {}

// namespace is the per-callsite cache tier plus its counters.
type namespace struct {
	tier    Tier
	hits    int64
	misses  int64
	calls   int64
	retries int64
}

// Invoker is the cached call layer. Safe for concurrent use; the cache
// tiers and the rate window carry their own synchronization.
type Invoker struct {
	client   llm.Client
	window   *resilience.Window
	newTier  TierFactory
	opts     Options
	log      *slog.Logger
	recorder Recorder

	mu         sync.Mutex
	namespaces map[string]*namespace

	sleep func(ctx context.Context, d time.Duration) error // for testing
}

// New creates an Invoker. The factory is called once per call site, lazily.
func New(client llm.Client, window *resilience.Window, factory TierFactory, opts Options, log *slog.Logger) *Invoker {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Invoker{
		client:     client,
		window:     window,
		newTier:    factory,
		opts:       opts,
		log:        log,
		recorder:   nopRecorder{},
		namespaces: make(map[string]*namespace),
		sleep: func(ctx context.Context, d time.Duration) error {
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

// SetRecorder attaches a metrics recorder.
func (inv *Invoker) SetRecorder(r Recorder) {
	if r != nil {
		inv.recorder = r
	}
}

// Key computes the deterministic cache key for a call site and its
// arguments. Map keys are sorted by the JSON encoder, so logically equal
// args produce the same key.
func Key(callSite string, args any) (string, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(callSite))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Invoke resolves a call: cache lookup, rate gate, external call with
// bounded retries, response validation, write-through.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (Response, error) {
	ns, err := inv.namespace(req.CallSite)
	if err != nil {
		return Response{}, err
	}

	key, err := Key(req.CallSite, req.Args)
	if err != nil {
		return Response{}, err
	}

	if data, ok, err := ns.tier.Store.Get(ctx, key); err != nil {
		inv.log.Warn("cache lookup failed", "call_site", req.CallSite, "error", err)
	} else if ok {
		var payload cachedPayload
		if err := json.Unmarshal(data, &payload); err == nil {
			inv.count(ns, func(n *namespace) { n.hits++ })
			inv.recorder.CacheHit(req.CallSite)
			return Response{Text: payload.Text, JSON: payload.JSON, FromCache: true}, nil
		}
		// A payload we wrote but cannot read back is dropped and refetched.
		_ = ns.tier.Store.Delete(ctx, key)
	}
	inv.count(ns, func(n *namespace) { n.misses++ })
	inv.recorder.CacheMiss(req.CallSite)

	if err := inv.gate(ctx, req); err != nil {
		return Response{}, err
	}

	resp, err := inv.call(ctx, ns, req)
	if err != nil {
		return Response{}, err
	}

	ttl := req.TTL
	if ttl == 0 {
		ttl = ns.tier.TTL
	}
	data, err := json.Marshal(cachedPayload{Text: resp.Text, JSON: resp.JSON})
	if err != nil {
		return Response{}, fmt.Errorf("marshal cached payload: %w", err)
	}
	if err := ns.tier.Store.Set(ctx, key, data, ttl); err != nil {
		inv.log.Warn("cache write failed", "call_site", req.CallSite, "error", err)
	}
	return resp, nil
}

// gate enforces the provider rate window before an external call.
func (inv *Invoker) gate(ctx context.Context, req Request) error {
	if req.NonBlocking {
		if err := inv.window.Check(); err != nil {
			return &InvocationError{Kind: ErrRateLimitExceeded, CallSite: req.CallSite, Cause: err}
		}
		return nil
	}
	if err := inv.window.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &InvocationError{Kind: ErrTimeout, CallSite: req.CallSite, Cause: err}
		}
		return err
	}
	return nil
}

// call runs the retry loop: exponential backoff with jitter on transient
// failures, immediate failure otherwise.
func (inv *Invoker) call(ctx context.Context, ns *namespace, req Request) (Response, error) {
	llmReq := llm.Request{
		System:      req.System,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < inv.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			inv.count(ns, func(n *namespace) { n.retries++ })
			inv.recorder.Retry(req.CallSite)
			d := resilience.Jitter(resilience.Delay(attempt-1, inv.opts.BaseDelay, inv.opts.MaxDelay))
			if err := inv.sleep(ctx, d); err != nil {
				return Response{}, err
			}
		}

		attempts++
		inv.count(ns, func(n *namespace) { n.calls++ })
		resp, err := inv.client.Call(ctx, llmReq)
		if err != nil {
			lastErr = err
			if !llm.Transient(err) {
				break
			}
			inv.log.Debug("transient call failure",
				"call_site", req.CallSite, "attempt", attempts, "error", err)
			continue
		}

		if resp.Rate.Known {
			inv.window.Update(resp.Rate.RemainingRequests, resp.Rate.RemainingTokens,
				resp.Rate.UntilRequestReset, resp.Rate.UntilTokenReset)
		}

		out := Response{Text: resp.Text, Attempts: attempts}
		if len(req.Schema) > 0 {
			obj, ok := ExtractJSON(resp.Text)
			if !ok {
				return Response{}, &InvocationError{
					Kind: ErrMalformedResponse, CallSite: req.CallSite, Attempts: attempts,
					Cause: fmt.Errorf("no JSON object in response"),
				}
			}
			if field, ok := ValidateSchema(obj, req.Schema); !ok {
				return Response{}, &InvocationError{
					Kind: ErrMalformedResponse, CallSite: req.CallSite, Attempts: attempts,
					Cause: fmt.Errorf("response missing field %q", field),
				}
			}
			out.JSON = obj
		}
		return out, nil
	}

	kind := ErrExhausted
	if errors.Is(lastErr, context.DeadlineExceeded) {
		kind = ErrTimeout
	}
	return Response{}, &InvocationError{Kind: kind, CallSite: req.CallSite, Attempts: attempts, Cause: lastErr}
}

func (inv *Invoker) namespace(callSite string) (*namespace, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if ns, ok := inv.namespaces[callSite]; ok {
		return ns, nil
	}
	tier, err := inv.newTier(callSite)
	if err != nil {
		return nil, fmt.Errorf("build cache tier for %s: %w", callSite, err)
	}
	ns := &namespace{tier: tier}
	inv.namespaces[callSite] = ns
	return ns, nil
}

func (inv *Invoker) count(ns *namespace, fn func(*namespace)) {
	inv.mu.Lock()
	fn(ns)
	inv.mu.Unlock()
}
