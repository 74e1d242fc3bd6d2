package async

import (
	"context"
	"time"

	"github.com/wippyai/wasm-boundary/errors"
)

// WaitAny blocks until at least one of subs is ready or ctx is done.
// Subscriptions that cannot push readiness are polled every
// DefaultIdleTick.
func WaitAny(ctx context.Context, subs ...*EventSubscription) error {
	if len(subs) == 0 {
		return errors.InvalidInput(errors.PhaseAsync, "nothing to wait on")
	}

	wake := make(chan struct{}, 1)
	signal := func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
	for _, s := range subs {
		if s == nil || s.Closed() {
			return errors.InvalidHandle(errors.PhaseAsync, 0)
		}
		cancel := s.notify(signal)
		defer cancel()
	}

	tick := time.NewTicker(DefaultIdleTick)
	defer tick.Stop()

	for {
		for _, s := range subs {
			if s.Ready() {
				return nil
			}
		}
		select {
		case <-wake:
		case <-tick.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
