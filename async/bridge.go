package async

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Forward exposes a native asynchronous operation to the boundary.
//
// If src is already complete its result is returned directly and waiting
// is nil. Otherwise a goroutine waits for src, passes the outcome to store
// (which writes it to wherever the far side will read it), and then
// activates waiting. The executor keeps a duplicate of waiting registered
// until then, so Run does not return while the operation is in flight.
func Forward[T any](exec *Executor, src *Future[T], store func(T, error) error) (value T, waiting *EventSubscription, err error) {
	if v, done, err := src.Value(); done {
		return v, nil, err
	}

	gen := NewEventGenerator()
	waiting = gen.Subscribe()

	go func() {
		v, err := src.Get(context.Background())
		if serr := store(v, err); serr != nil {
			Logger().Error("storing forwarded result failed", zap.Error(serr))
			exec.record(serr)
		}
		gen.Activate()
	}()

	if err := exec.Register(waiting.Dup(), forwarded, nil); err != nil {
		return value, nil, err
	}
	return value, waiting, nil
}

func forwarded(CallbackData) CallbackState {
	Logger().Debug("forwarded result delivered")
	return Ready
}

// Await turns a boundary wait into a native future. When wait is nil the
// operation is already complete and produce runs immediately; otherwise
// produce runs on the executor once wait is ready.
func Await[T any](exec *Executor, wait Pollable, produce func() (T, error)) *Future[T] {
	p, f := NewPromise[T]()
	if s, ok := wait.(*EventSubscription); wait == nil || (ok && s == nil) {
		settle(p, produce)
		return f
	}

	sub := NewSubscription(wait)
	err := exec.Register(sub, func(CallbackData) CallbackState {
		settle(p, produce)
		return Ready
	}, nil)
	if err != nil {
		_ = p.SetErr(err)
	}
	return f
}

// settle fulfils p from produce. A panic fails the promise before it
// propagates to the executor.
func settle[T any](p *Promise[T], produce func() (T, error)) {
	defer func() {
		if r := recover(); r != nil {
			_ = p.SetErr(fmt.Errorf("produce panicked: %v", r))
			panic(r)
		}
	}()
	_ = p.complete(produce())
}
