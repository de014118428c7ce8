// Package llm defines the port for external language-model calls.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Request is one completion call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// RateLimit carries the provider's remaining budget as reported in response
// headers. Known is false when the provider sent no rate headers.
type RateLimit struct {
	Known             bool
	RemainingRequests int64
	RemainingTokens   int64
	UntilRequestReset time.Duration
	UntilTokenReset   time.Duration
}

// Response is a completed call with the text and the rate window observed
// alongside it.
type Response struct {
	Text string
	Rate RateLimit
}

// Client is the outbound model-call port.
type Client interface {
	Call(ctx context.Context, req Request) (Response, error)
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.Code, e.Body)
}

// Transient reports whether err is worth retrying: timeouts, transport
// failures, provider 429s and 5xx responses. Other 4xx responses and caller
// cancellation are permanent.
func Transient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == 429 || se.Code >= 500
	}
	return true
}
