package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// defaultMaxClients caps tracked buckets when the config leaves it unset.
const defaultMaxClients = 100000

// LimiterConfig tunes the per-client token bucket limiter.
type LimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
	MaxClients        int
}

// RateLimiter throttles the operational API per client IP with a token
// bucket. Buckets refill continuously at the sustained rate up to the burst
// size. New clients beyond MaxClients are refused until the sweeper frees
// slots, bounding memory under address churn.
type RateLimiter struct {
	cfg LimiterConfig
	now func() time.Time // for testing

	mu      sync.Mutex
	clients map[string]*clientBucket
}

type clientBucket struct {
	tokens   float64
	refilled time.Time
	seen     time.Time
}

// NewRateLimiter creates a limiter from the given config.
func NewRateLimiter(cfg LimiterConfig) *RateLimiter {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = defaultMaxClients
	}
	return &RateLimiter{
		cfg:     cfg,
		now:     time.Now,
		clients: make(map[string]*clientBucket),
	}
}

// Handler enforces the limit. Drained clients get 429 with a Retry-After
// hint; every response carries the remaining budget.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := rl.take(clientKey(r))

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rl.now().Add(time.Second).Unix(), 10))

		if !v.allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(v.retryAfter.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// verdict is the outcome of one admission check.
type verdict struct {
	allowed    bool
	remaining  int
	retryAfter time.Duration
}

func (rl *RateLimiter) take(key string) verdict {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.clients[key]
	if !ok {
		if len(rl.clients) >= rl.cfg.MaxClients {
			// Refuse new clients at capacity instead of evicting an
			// active bucket.
			return verdict{retryAfter: rl.tokenInterval()}
		}
		b = &clientBucket{tokens: float64(rl.cfg.Burst), refilled: now}
		rl.clients[key] = b
	}

	b.seen = now
	elapsed := now.Sub(b.refilled).Seconds()
	b.refilled = now
	b.tokens = math.Min(b.tokens+elapsed*rl.cfg.RequestsPerSecond, float64(rl.cfg.Burst))

	if b.tokens < 1 {
		deficit := (1 - b.tokens) / rl.cfg.RequestsPerSecond
		return verdict{retryAfter: time.Duration(deficit * float64(time.Second))}
	}
	b.tokens--
	return verdict{allowed: true, remaining: int(b.tokens)}
}

// tokenInterval is the time one token takes to accrue.
func (rl *RateLimiter) tokenInterval() time.Duration {
	return time.Duration(float64(time.Second) / rl.cfg.RequestsPerSecond)
}

// Sweep drops buckets idle longer than maxIdle and returns how many went.
func (rl *RateLimiter) Sweep(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-maxIdle)
	dropped := 0
	for key, b := range rl.clients {
		if b.seen.Before(cutoff) {
			delete(rl.clients, key)
			dropped++
		}
	}
	return dropped
}

// StartSweeper sweeps idle buckets every interval until the returned stop
// function is called.
func (rl *RateLimiter) StartSweeper(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Sweep(maxIdle)
			}
		}
	}()
	return cancel
}

// Len reports the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// clientKey is the bucket key for a request: the host part of RemoteAddr.
// Forwarding headers are not consulted here; whatever trust decision
// applies must rewrite RemoteAddr upstream.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
