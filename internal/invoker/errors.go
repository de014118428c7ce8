package invoker

import (
	"errors"
	"fmt"
)

// Failure kinds, usable with errors.Is against a returned *InvocationError.
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrTimeout           = errors.New("invocation timed out")
	ErrExhausted         = errors.New("invocation retries exhausted")
	ErrMalformedResponse = errors.New("malformed response")
)

// InvocationError is a failed external call, carrying the call site, the
// number of attempts made, and the last underlying cause.
type InvocationError struct {
	Kind     error // one of the sentinel kinds above
	CallSite string
	Attempts int
	Cause    error
}

func (e *InvocationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v after %d attempt(s): %v", e.CallSite, e.Kind, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("%s: %v after %d attempt(s)", e.CallSite, e.Kind, e.Attempts)
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *InvocationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}
