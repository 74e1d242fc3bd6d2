package async

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-boundary/errors"
	"github.com/wippyai/wasm-boundary/resource"
)

func counter(n *int) CallbackFunction {
	return func(CallbackData) CallbackState {
		*n++
		return Ready
	}
}

func TestSleep_RunForDeadline(t *testing.T) {
	t.Run("fires within deadline", func(t *testing.T) {
		exec := NewExecutor()
		var calls int
		start := time.Now()
		require.NoError(t, exec.Register(Sleep(500*time.Millisecond), counter(&calls), nil))

		n := exec.RunFor(time.Second)

		assert.Equal(t, 1, n)
		assert.Equal(t, 1, calls)
		assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
		assert.Equal(t, 0, exec.Pending())
	})

	t.Run("does not fire past deadline", func(t *testing.T) {
		exec := NewExecutor()
		var calls int
		require.NoError(t, exec.Register(Sleep(500*time.Millisecond), counter(&calls), nil))

		n := exec.RunFor(100 * time.Millisecond)

		assert.Equal(t, 0, n)
		assert.Equal(t, 0, calls)
		assert.Equal(t, 1, exec.Pending())
	})
}

func TestRegister_ReadyDoesNotFireInline(t *testing.T) {
	exec := NewExecutor()
	gen := NewEventGenerator()
	gen.Activate()

	var calls int
	require.NoError(t, exec.Register(gen.Subscribe(), counter(&calls), nil))
	assert.Equal(t, 0, calls, "callback must wait for the executor")

	assert.Equal(t, 1, exec.RunOnce())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, exec.RunOnce())
}

func TestDup_FanOut(t *testing.T) {
	exec := NewExecutor()
	gen := NewEventGenerator()
	sub := gen.Subscribe()

	var fired []int
	for i := range 3 {
		require.NoError(t, exec.Register(sub.Dup(), func(d CallbackData) CallbackState {
			fired = append(fired, d.(int))
			return Ready
		}, i))
	}

	assert.Equal(t, 0, exec.RunOnce())
	gen.Activate()
	gen.Activate()

	assert.Equal(t, 3, exec.RunOnce())
	assert.Equal(t, []int{0, 1, 2}, fired)
	assert.Equal(t, 0, exec.RunOnce())
}

func TestRegister_Errors(t *testing.T) {
	exec := NewExecutor()
	sub := NewEventGenerator().Subscribe()
	noop := func(CallbackData) CallbackState { return Ready }

	require.NoError(t, exec.Register(sub, noop, nil))
	err := exec.Register(sub, noop, nil)
	assert.ErrorIs(t, err, errors.ErrProtocolViolation)

	closed := NewEventGenerator().Subscribe()
	require.NoError(t, closed.Close())
	assert.ErrorIs(t, exec.Register(closed, noop, nil), errors.ErrInvalidHandle)
	assert.ErrorIs(t, exec.Register(nil, noop, nil), errors.ErrInvalidHandle)

	var e *errors.Error
	require.ErrorAs(t, exec.Register(NewEventGenerator().Subscribe(), nil, nil), &e)
	assert.Equal(t, errors.KindInvalidInput, e.Kind)
}

func TestRegister_AgainAfterFire(t *testing.T) {
	exec := NewExecutor()
	sub := Always()
	s := NewSubscription(sub)

	var calls int
	require.NoError(t, exec.Register(s, counter(&calls), nil))
	exec.RunOnce()
	require.NoError(t, exec.Register(s, counter(&calls), nil))
	exec.RunOnce()
	assert.Equal(t, 2, calls)
}

func TestClose_BeforeFire(t *testing.T) {
	exec := NewExecutor()
	gen := NewEventGenerator()
	sub := gen.Subscribe()

	var calls int
	require.NoError(t, exec.Register(sub, counter(&calls), nil))
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	gen.Activate()
	assert.Equal(t, 0, exec.RunOnce())
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, exec.Pending())
}

func TestCallback_Pending(t *testing.T) {
	exec := NewExecutor()
	var calls int
	require.NoError(t, exec.Register(NewSubscription(Always()), func(CallbackData) CallbackState {
		calls++
		if calls < 3 {
			return Pending
		}
		return Ready
	}, nil))

	for range 5 {
		exec.RunOnce()
	}
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, exec.Pending())
}

func TestCallback_PanicRecovered(t *testing.T) {
	exec := NewExecutor()
	var after int
	require.NoError(t, exec.Register(NewSubscription(Always()), func(CallbackData) CallbackState {
		panic("boom")
	}, nil))
	require.NoError(t, exec.Register(NewSubscription(Always()), counter(&after), nil))

	assert.Equal(t, 2, exec.RunOnce())
	assert.Equal(t, 1, after, "later callbacks still run")
	assert.Equal(t, 0, exec.Pending())

	require.Error(t, exec.Err())
	errs := exec.Errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "boom")
}

func TestCallback_InvalidState(t *testing.T) {
	exec := NewExecutor()
	require.NoError(t, exec.Register(NewSubscription(Always()), func(CallbackData) CallbackState {
		return CallbackState(7)
	}, nil))

	exec.RunOnce()
	assert.Equal(t, 0, exec.Pending())
	require.Len(t, exec.Errors(), 1)
	assert.ErrorIs(t, exec.Errors()[0], errors.ErrProtocolViolation)
}

func TestRegister_FromCallback(t *testing.T) {
	exec := NewExecutor()
	var order []string
	require.NoError(t, exec.Register(NewSubscription(Always()), func(CallbackData) CallbackState {
		order = append(order, "outer")
		_ = exec.Register(NewSubscription(Always()), func(CallbackData) CallbackState {
			order = append(order, "inner")
			return Ready
		}, nil)
		return Ready
	}, nil))

	assert.Equal(t, 1, exec.RunOnce(), "new registrations wait for the next scan")
	assert.Equal(t, 1, exec.RunOnce())
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRun_UntilEmpty(t *testing.T) {
	exec := NewExecutor(WithIdleTick(time.Millisecond))
	gen := NewEventGenerator()

	var calls int
	require.NoError(t, exec.Register(gen.Subscribe(), counter(&calls), nil))
	time.AfterFunc(20*time.Millisecond, gen.Activate)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, exec.Run(ctx))
	assert.Equal(t, 1, calls)
}

func TestRun_ContextDone(t *testing.T) {
	exec := NewExecutor()
	require.NoError(t, exec.Register(NewSubscription(Never()), func(CallbackData) CallbackState { return Ready }, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, exec.Run(ctx), context.DeadlineExceeded)
	assert.Equal(t, 1, exec.Pending())
}

func TestSubscription_Handle(t *testing.T) {
	table := resource.NewTable()
	sub := NewEventGenerator().Subscribe()

	h, err := sub.IntoHandle(table)
	require.NoError(t, err)
	assert.NotZero(t, h)

	got, err := FromHandle(table, h)
	require.NoError(t, err)
	assert.Same(t, sub, got)

	require.NoError(t, table.Drop(h))
	assert.True(t, sub.Closed(), "dropping the handle closes the subscription")

	_, err = FromHandle(table, h)
	assert.ErrorIs(t, err, errors.ErrInvalidHandle)
}

func TestDefaultExecutor(t *testing.T) {
	assert.Same(t, Default(), Default())
}
