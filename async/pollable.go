package async

import (
	"context"
	"sync"
)

// Pollable is anything whose readiness can be observed without blocking.
type Pollable interface {
	Ready() bool
	Block(ctx context.Context) error
}

// notifier is implemented by pollables that can push readiness instead of
// being polled. The executor uses it to wake up early.
type notifier interface {
	notify(fn func()) (cancel func())
}

// event is a readiness flag shared by a generator and every subscription
// derived from it.
type event struct {
	mu     sync.Mutex
	ready  bool
	done   chan struct{}
	wakers map[uint64]func()
	nextID uint64
}

func newEvent() *event {
	return &event{done: make(chan struct{})}
}

// activate marks the event ready. Calling it again is a no-op.
func (e *event) activate() {
	e.mu.Lock()
	if e.ready {
		e.mu.Unlock()
		return
	}
	e.ready = true
	close(e.done)
	wakers := e.wakers
	e.wakers = nil
	e.mu.Unlock()

	for _, fn := range wakers {
		fn()
	}
}

// reset re-arms a fired event.
func (e *event) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return
	}
	e.ready = false
	e.done = make(chan struct{})
}

func (e *event) isReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

func (e *event) wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notify calls fn once the event fires, or right away if it already has.
func (e *event) notify(fn func()) func() {
	e.mu.Lock()
	if e.ready {
		e.mu.Unlock()
		fn()
		return func() {}
	}
	if e.wakers == nil {
		e.wakers = make(map[uint64]func())
	}
	id := e.nextID
	e.nextID++
	e.wakers[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.wakers, id)
		e.mu.Unlock()
	}
}

type constPollable bool

func (c constPollable) Ready() bool { return bool(c) }

func (c constPollable) Block(ctx context.Context) error {
	if c {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

// Always returns a pollable that is always ready.
func Always() Pollable { return constPollable(true) }

// Never returns a pollable that never becomes ready.
func Never() Pollable { return constPollable(false) }
