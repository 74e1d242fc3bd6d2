package async

import (
	"context"
	"sync"

	"github.com/eapache/queue"

	"github.com/wippyai/wasm-boundary/errors"
)

// Stream is an ordered sequence of values produced on one side and
// consumed on the other. Its subscription is ready while an item is
// buffered or after the stream was closed.
type Stream[T any] struct {
	mu     sync.Mutex
	items  *queue.Queue
	closed bool
	gen    *EventGenerator
}

// NewStream creates an open, empty stream.
func NewStream[T any]() *Stream[T] {
	return &Stream[T]{
		items: queue.New(),
		gen:   NewEventGenerator(),
	}
}

// Push appends v. Pushing to a closed stream fails.
//
// Readiness flips under the stream lock, the same lock Value resets it
// under, so a ready stream always has an item buffered or is closed.
func (s *Stream[T]) Push(v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Closed(errors.PhaseAsync, "stream")
	}
	s.items.Add(v)
	s.gen.Activate()
	return nil
}

// Close ends the stream. Buffered items stay readable.
func (s *Stream[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.gen.Activate()
	return nil
}

// Closed reports whether Close was called.
func (s *Stream[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Len returns the number of buffered items.
func (s *Stream[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Length()
}

// Value pops the next item. The bool is false when nothing is buffered;
// once the stream is also closed no further items will arrive.
func (s *Stream[T]) Value() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		v  T
		ok bool
	)
	if s.items.Length() > 0 {
		v, ok = s.items.Remove().(T), true
	}
	if s.items.Length() == 0 && !s.closed {
		s.gen.Reset()
	}
	return v, ok
}

// Ready reports whether Value would return an item or the stream is done.
func (s *Stream[T]) Ready() bool {
	return s.gen.Ready()
}

// Block waits until the stream is ready or ctx is done.
func (s *Stream[T]) Block(ctx context.Context) error {
	return s.gen.ev.wait(ctx)
}

func (s *Stream[T]) notify(fn func()) func() {
	return s.gen.ev.notify(fn)
}

// Subscribe returns a pollable tracking the stream's readiness.
func (s *Stream[T]) Subscribe() *EventSubscription {
	return s.gen.Subscribe()
}
