package async

import (
	"context"
	"sync"
	"time"

	"github.com/davidmdm/x/xerr"
	"github.com/davidmdm/x/xruntime"
	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-boundary/errors"
)

// CallbackState is what a callback reports back to the executor.
type CallbackState int

const (
	// Ready retires the registration.
	Ready CallbackState = iota
	// Pending keeps the registration queued. It runs again on every
	// executor iteration while its subscription stays ready, and otherwise
	// on the subscription's next readiness.
	Pending
)

func (s CallbackState) String() string {
	switch s {
	case Ready:
		return "ready"
	case Pending:
		return "pending"
	}
	return "invalid"
}

// CallbackData is the payload handed back to a callback.
type CallbackData = any

// CallbackFunction runs on the executor once its subscription is ready.
type CallbackFunction func(CallbackData) CallbackState

// DefaultIdleTick is how long an idle executor sleeps between scans when
// nothing wakes it.
const DefaultIdleTick = 5 * time.Millisecond

type registration struct {
	sub    *EventSubscription
	fn     CallbackFunction
	data   CallbackData
	cancel func()
}

func (r *registration) retire() {
	r.cancel()
	r.sub.registered.Store(false)
}

// Executor dispatches callbacks whose subscriptions became ready. It is a
// cooperative loop: callbacks run on the goroutine driving RunOnce, Run or
// RunFor, outside the executor lock, so a callback may Register again.
type Executor struct {
	mu       sync.Mutex
	queue    *queue.Queue
	inflight int
	wake     chan struct{}
	idleTick time.Duration
	errs     []error
}

// Option configures an Executor.
type Option func(*Executor)

// WithIdleTick sets the idle scan interval.
func WithIdleTick(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.idleTick = d
		}
	}
}

// NewExecutor creates an executor with an empty run queue.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		queue:    queue.New(),
		wake:     make(chan struct{}, 1),
		idleTick: DefaultIdleTick,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var (
	defaultExec     *Executor
	defaultExecOnce sync.Once
)

// Default returns the process-wide executor, creating it on first use.
// It is never torn down.
func Default() *Executor {
	defaultExecOnce.Do(func() {
		defaultExec = NewExecutor()
	})
	return defaultExec
}

// SetIdleTick changes the idle scan interval. Non-positive values are
// ignored.
func (e *Executor) SetIdleTick(d time.Duration) {
	if d <= 0 {
		return
	}
	e.mu.Lock()
	e.idleTick = d
	e.mu.Unlock()
}

// IdleTick returns the idle scan interval.
func (e *Executor) IdleTick() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idleTick
}

// Register queues fn to run with data once sub is ready. It never runs fn
// synchronously, even when sub is already ready.
func (e *Executor) Register(sub *EventSubscription, fn CallbackFunction, data CallbackData) error {
	if sub == nil || sub.Closed() {
		return errors.InvalidHandle(errors.PhaseAsync, 0)
	}
	if fn == nil {
		return errors.InvalidInput(errors.PhaseAsync, "nil callback")
	}
	if !sub.registered.CompareAndSwap(false, true) {
		return errors.ProtocolViolation(errors.PhaseAsync,
			"subscription is already registered, register a Dup instead")
	}

	r := &registration{sub: sub, fn: fn, data: data}
	r.cancel = sub.notify(e.signal)

	e.mu.Lock()
	e.queue.Add(r)
	n := e.queue.Length()
	e.mu.Unlock()

	Logger().Debug("callback registered", zap.Int("queued", n))
	return nil
}

// Pending returns the number of live registrations.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Length() + e.inflight
}

// Err aggregates every callback failure recorded so far.
func (e *Executor) Err() error {
	return xerr.MultiErrOrderedFrom("executor callbacks", e.Errors()...)
}

// Errors returns the recorded callback failures in order.
func (e *Executor) Errors() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.errs...)
}

func (e *Executor) record(err error) {
	e.mu.Lock()
	e.errs = append(e.errs, err)
	e.mu.Unlock()
}

func (e *Executor) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// RunOnce scans the queue once in order, dispatching every ready
// registration. It returns the number of callbacks run.
func (e *Executor) RunOnce() int {
	return e.scan(time.Time{})
}

func (e *Executor) scan(deadline time.Time) int {
	e.mu.Lock()
	batch := make([]*registration, e.queue.Length())
	for i := range batch {
		batch[i] = e.queue.Remove().(*registration)
	}
	e.inflight = len(batch)
	e.mu.Unlock()

	var (
		requeue    []*registration
		dispatched int
	)
	for _, r := range batch {
		switch {
		case r.sub.Closed():
			r.retire()
			Logger().Debug("closed subscription retired")
		case !deadline.IsZero() && !time.Now().Before(deadline):
			requeue = append(requeue, r)
		case !r.sub.Ready():
			requeue = append(requeue, r)
		default:
			dispatched++
			if e.invoke(r) == Pending {
				r.cancel()
				r.cancel = r.sub.notify(e.signal)
				requeue = append(requeue, r)
			} else {
				r.retire()
			}
		}
	}

	// Survivors keep their place ahead of anything registered during the scan.
	e.mu.Lock()
	fresh := make([]any, 0, e.queue.Length())
	for e.queue.Length() > 0 {
		fresh = append(fresh, e.queue.Remove())
	}
	for _, r := range requeue {
		e.queue.Add(r)
	}
	for _, r := range fresh {
		e.queue.Add(r)
	}
	e.inflight = 0
	e.mu.Unlock()

	if dispatched > 0 {
		Logger().Debug("executor scan",
			zap.Int("dispatched", dispatched),
			zap.Int("requeued", len(requeue)))
	}
	return dispatched
}

func (e *Executor) invoke(r *registration) (state CallbackState) {
	defer func() {
		if p := recover(); p != nil {
			err := errors.New(errors.PhaseAsync, errors.KindProtocolViolation).
				Value(p).
				Detail("callback panicked: %v", p).
				Build()
			Logger().Error("callback panicked",
				zap.Any("panic", p),
				zap.String("stack", xruntime.CallStack(-1).String()))
			e.record(err)
			state = Ready
		}
	}()

	switch st := r.fn(r.data); st {
	case Ready, Pending:
		return st
	default:
		err := errors.ProtocolViolation(errors.PhaseAsync, "callback returned invalid state %d", int(st))
		Logger().Error("invalid callback state", zap.Error(err))
		e.record(err)
		return Ready
	}
}

// Run drives the executor until no registrations remain or ctx is done.
func (e *Executor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.Pending() == 0 {
			return nil
		}
		if e.scan(time.Time{}) == 0 {
			if err := e.idle(ctx, time.Time{}); err != nil {
				return err
			}
		}
	}
}

// RunFor drives the executor for at most d and returns the number of
// callbacks run. It returns early once no registrations remain. Readiness
// that arrives after the deadline is left for a later run.
func (e *Executor) RunFor(d time.Duration) int {
	deadline := time.Now().Add(d)
	total := 0
	for time.Now().Before(deadline) && e.Pending() > 0 {
		n := e.scan(deadline)
		total += n
		if n == 0 {
			_ = e.idle(context.Background(), deadline)
		}
	}
	return total
}

func (e *Executor) idle(ctx context.Context, deadline time.Time) error {
	wait := e.IdleTick()
	if !deadline.IsZero() {
		if rem := time.Until(deadline); rem < wait {
			wait = rem
		}
	}
	if wait <= 0 {
		return nil
	}

	t := time.NewTimer(wait)
	defer t.Stop()

	select {
	case <-e.wake:
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
