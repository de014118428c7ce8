package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// AsyncHandler decouples log emission from I/O with a buffered channel and a
// single drain goroutine. Records are dropped (and counted) when the buffer
// is full rather than blocking the caller.
type AsyncHandler struct {
	inner   slog.Handler
	ch      chan slog.Record
	done    *sync.WaitGroup
	dropped *atomic.Int64
}

// NewAsyncHandler wraps inner with a buffer of the given capacity.
func NewAsyncHandler(inner slog.Handler, capacity int) *AsyncHandler {
	h := &AsyncHandler{
		inner:   inner,
		ch:      make(chan slog.Record, capacity),
		done:    &sync.WaitGroup{},
		dropped: &atomic.Int64{},
	}
	h.done.Add(1)
	go func() {
		defer h.done.Done()
		for rec := range h.ch {
			_ = h.inner.Handle(context.Background(), rec)
		}
	}()
	return h
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record, dropping it when the buffer is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.ch <- rec:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler sharing the channel but wrapping a new inner handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), ch: h.ch, done: h.done, dropped: h.dropped}
}

// WithGroup returns a handler sharing the channel but wrapping a new inner handler.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), ch: h.ch, done: h.done, dropped: h.dropped}
}

// DroppedCount returns the number of records dropped due to a full buffer.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close stops accepting records and waits for the drain goroutine.
func (h *AsyncHandler) Close() {
	close(h.ch)
	h.done.Wait()
}
