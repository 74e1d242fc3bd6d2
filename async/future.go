package async

import (
	"context"
	"fmt"
	"sync"

	"github.com/wippyai/wasm-boundary/errors"
)

type cell[T any] struct {
	gen   *EventGenerator
	mu    sync.Mutex
	set   bool
	value T
	err   error
}

// Promise is the write side of a one-shot value.
type Promise[T any] struct {
	c *cell[T]
}

// Future is the read side of a one-shot value. It is a Pollable and can
// be handed across the boundary through its subscription.
type Future[T any] struct {
	c *cell[T]
}

// NewPromise creates a connected promise and future.
func NewPromise[T any]() (*Promise[T], *Future[T]) {
	c := &cell[T]{gen: NewEventGenerator()}
	return &Promise[T]{c: c}, &Future[T]{c: c}
}

// Resolved returns a future that is already complete.
func Resolved[T any](v T, err error) *Future[T] {
	p, f := NewPromise[T]()
	_ = p.complete(v, err)
	return f
}

// Go runs fn on a new goroutine and returns a future for its result. A
// panic in fn fails the future.
func Go[T any](fn func() (T, error)) *Future[T] {
	p, f := NewPromise[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				_ = p.SetErr(fmt.Errorf("async operation panicked: %v", r))
			}
		}()
		_ = p.complete(fn())
	}()
	return f
}

// Set fulfils the promise with v.
func (p *Promise[T]) Set(v T) error {
	return p.fulfil(v, nil)
}

// SetErr fails the promise with err.
func (p *Promise[T]) SetErr(err error) error {
	if err == nil {
		return errors.InvalidInput(errors.PhaseAsync, "nil error")
	}
	var zero T
	return p.fulfil(zero, err)
}

// Future returns the read side.
func (p *Promise[T]) Future() *Future[T] {
	return &Future[T]{c: p.c}
}

func (p *Promise[T]) complete(v T, err error) error {
	if err != nil {
		return p.SetErr(err)
	}
	return p.Set(v)
}

func (p *Promise[T]) fulfil(v T, err error) error {
	c := p.c
	c.mu.Lock()
	if c.set {
		c.mu.Unlock()
		return errors.ProtocolViolation(errors.PhaseAsync, "promise fulfilled twice")
	}
	c.set = true
	c.value = v
	c.err = err
	c.mu.Unlock()

	c.gen.Activate()
	return nil
}

// Ready reports whether the value is available.
func (f *Future[T]) Ready() bool {
	return f.c.gen.Ready()
}

// Block waits until the value is available or ctx is done.
func (f *Future[T]) Block(ctx context.Context) error {
	return f.c.gen.ev.wait(ctx)
}

func (f *Future[T]) notify(fn func()) func() {
	return f.c.gen.ev.notify(fn)
}

// Subscribe returns a pollable that becomes ready with the future.
func (f *Future[T]) Subscribe() *EventSubscription {
	return f.c.gen.Subscribe()
}

// Get blocks for the result.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	if err := f.Block(ctx); err != nil {
		var zero T
		return zero, err
	}
	v, _, err := f.Value()
	return v, err
}

// Value returns the result without blocking. The bool is false while the
// future is still pending.
func (f *Future[T]) Value() (T, bool, error) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.set, c.err
}
