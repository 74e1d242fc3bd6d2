package async

import "time"

// Sleep returns a subscription that becomes ready after d. It schedules
// readiness; nothing is preempted when it fires.
func Sleep(d time.Duration) *EventSubscription {
	gen := NewEventGenerator()
	if d <= 0 {
		gen.Activate()
	} else {
		time.AfterFunc(d, gen.Activate)
	}
	return gen.Subscribe()
}

// SleepFuture returns a future the executor fulfils once d has elapsed.
func SleepFuture(exec *Executor, d time.Duration) *Future[struct{}] {
	return Await(exec, Sleep(d), func() (struct{}, error) {
		return struct{}{}, nil
	})
}
