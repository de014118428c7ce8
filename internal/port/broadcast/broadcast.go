// Package broadcast defines the port for publishing workflow lifecycle
// events to external consumers.
package broadcast

import "context"

// Publisher emits an event payload on a subject. Implementations must be
// safe for concurrent use; publishing is best-effort from the pipeline's
// point of view.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Nop discards all events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, string, any) error { return nil }
