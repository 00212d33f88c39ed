package eventloop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunPendingFIFO(t *testing.T) {
	l := New()
	var order []int
	l.Post(func() {
		order = append(order, 1)
		l.Post(func() { order = append(order, 3) })
	})
	l.Post(func() { order = append(order, 2) })

	assert.Equal(t, 3, l.RunPending())
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestTimer_FiresOnLoop(t *testing.T) {
	clock := NewManualClock()
	l := New(WithClock(clock))
	fired := 0
	l.AfterFunc(500*time.Millisecond, func() { fired++ })

	clock.Advance(499 * time.Millisecond)
	l.RunPending()
	assert.Equal(t, 0, fired)

	clock.Advance(time.Millisecond)
	assert.Equal(t, 0, fired, "callback must wait for the loop")
	l.RunPending()
	assert.Equal(t, 1, fired)
}

func TestTimer_StopAfterClockFired(t *testing.T) {
	clock := NewManualClock()
	l := New(WithClock(clock))
	fired := false
	timer := l.AfterFunc(time.Second, func() { fired = true })

	clock.Advance(time.Second)
	timer.Stop()
	l.RunPending()

	assert.False(t, fired)
	assert.False(t, timer.Active())
}

func TestTimer_StopNil(t *testing.T) {
	var timer *Timer
	assert.NotPanics(t, timer.Stop)
	assert.False(t, timer.Active())
}

func TestCall_DeliversOnLoop(t *testing.T) {
	spawner := NewManualSpawner()
	l := New(WithSpawner(spawner.Spawn))

	var got []string
	for _, s := range []string{"a", "b"} {
		s := s
		Call(l, context.Background(), func(context.Context) (string, error) {
			return s, nil
		}, func(v string, err error) {
			require.NoError(t, err)
			got = append(got, v)
		})
	}
	require.Equal(t, 2, spawner.Pending())

	spawner.Run(1)
	spawner.Run(0)
	l.RunPending()
	assert.Equal(t, []string{"b", "a"}, got)
}

func TestCall_CanceledContext(t *testing.T) {
	spawner := NewManualSpawner()
	l := New(WithSpawner(spawner.Spawn))
	ctx, cancel := context.WithCancel(context.Background())

	var gotErr error
	Call(l, ctx, func(ctx context.Context) (int, error) {
		return 0, ctx.Err()
	}, func(_ int, err error) { gotErr = err })

	cancel()
	spawner.RunAll()
	l.RunPending()
	assert.True(t, errors.Is(gotErr, context.Canceled))
}

func TestLoop_RunAndSync(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	require.Eventually(t, l.Running, time.Second, 5*time.Millisecond)

	value := 0
	require.NoError(t, l.Sync(context.Background(), func() { value = 42 }))
	assert.Equal(t, 42, value)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestSync_WithoutRunningLoop(t *testing.T) {
	l := New()
	ran := false
	require.NoError(t, l.Sync(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoop_RunUntil(t *testing.T) {
	l := New()
	done := make(chan struct{})
	var got int
	Call(l, context.Background(), func(context.Context) (int, error) {
		time.Sleep(10 * time.Millisecond)
		return 7, nil
	}, func(v int, err error) {
		got = v
		close(done)
	})

	require.NoError(t, l.RunUntil(context.Background(), done))
	assert.Equal(t, 7, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.RunUntil(ctx, make(chan struct{})), context.Canceled)
}
