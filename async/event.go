package async

import (
	"context"
	"sync/atomic"

	"github.com/wippyai/wasm-boundary/errors"
	"github.com/wippyai/wasm-boundary/resource"
)

// EventSubscription is a pollable that can be registered with an executor
// and handed across the boundary as a pollable handle.
//
// A subscription may be registered at most once at a time. To wait on the
// same readiness from several places, register a Dup of it.
type EventSubscription struct {
	ev         *event
	source     Pollable
	closed     atomic.Bool
	registered atomic.Bool
}

// NewSubscription wraps an arbitrary pollable.
func NewSubscription(p Pollable) *EventSubscription {
	if s, ok := p.(*EventSubscription); ok {
		return s.Dup()
	}
	return &EventSubscription{source: p}
}

// Ready reports whether the underlying event has fired. A closed
// subscription is never ready.
func (s *EventSubscription) Ready() bool {
	if s.closed.Load() {
		return false
	}
	if s.ev != nil {
		return s.ev.isReady()
	}
	return s.source.Ready()
}

// Block waits until the subscription is ready or ctx is done.
func (s *EventSubscription) Block(ctx context.Context) error {
	if s.closed.Load() {
		return errors.InvalidHandle(errors.PhaseAsync, 0)
	}
	if s.ev != nil {
		return s.ev.wait(ctx)
	}
	return s.source.Block(ctx)
}

// Dup returns a new subscription observing the same readiness. The
// duplicate of a closed subscription is closed too.
func (s *EventSubscription) Dup() *EventSubscription {
	d := &EventSubscription{ev: s.ev, source: s.source}
	d.closed.Store(s.closed.Load())
	return d
}

// Close deregisters the subscription. A callback registered on it that
// has not fired yet never runs. Closing twice is a no-op.
func (s *EventSubscription) Close() error {
	s.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (s *EventSubscription) Closed() bool {
	return s.closed.Load()
}

func (s *EventSubscription) notify(fn func()) func() {
	if s.ev != nil {
		return s.ev.notify(fn)
	}
	if n, ok := s.source.(notifier); ok {
		return n.notify(fn)
	}
	return func() {}
}

// IntoHandle moves the subscription into table. Dropping the handle closes
// the subscription.
func (s *EventSubscription) IntoHandle(table *resource.Table) (resource.Handle, error) {
	if s.closed.Load() {
		return 0, errors.InvalidHandle(errors.PhaseAsync, 0)
	}
	return table.Register(s)
}

// FromHandle returns the subscription stored under h.
func FromHandle(table *resource.Table, h resource.Handle) (*EventSubscription, error) {
	v, err := table.Lookup(h)
	if err != nil {
		return nil, err
	}
	s, ok := v.(*EventSubscription)
	if !ok {
		return nil, errors.New(errors.PhaseAsync, errors.KindTypeMismatch).
			Handle(uint32(h)).
			Detail("handle does not refer to a pollable").
			Build()
	}
	return s, nil
}

// EventGenerator is the producing half of a readiness event.
type EventGenerator struct {
	ev *event
}

// NewEventGenerator creates an inactive generator.
func NewEventGenerator() *EventGenerator {
	return &EventGenerator{ev: newEvent()}
}

// Subscribe returns a subscription that becomes ready on Activate.
func (g *EventGenerator) Subscribe() *EventSubscription {
	return &EventSubscription{ev: g.ev}
}

// Activate marks every subscription of the generator ready and wakes
// executors waiting on them.
func (g *EventGenerator) Activate() {
	g.ev.activate()
}

// Reset re-arms the generator so it can fire again.
func (g *EventGenerator) Reset() {
	g.ev.reset()
}

// Ready reports whether the generator has been activated.
func (g *EventGenerator) Ready() bool {
	return g.ev.isReady()
}
