// Package eventloop runs every state transition of a session on one
// goroutine. Work that blocks (network requests) runs elsewhere and re-enters
// the loop as a new task when it completes, so handlers never race on shared
// state but completions may arrive in any order.
package eventloop

import (
	"context"
	"sync"
	"time"
)

// Clock schedules callbacks. The returned function stops the callback and
// reports whether it was still pending.
type Clock interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Loop is a FIFO task queue drained by a single goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	clock   Clock
	spawn   func(func())
	running bool
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces the wall clock used by AfterFunc.
func WithClock(c Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithSpawner replaces the goroutine launcher used by Call.
func WithSpawner(spawn func(func())) Option {
	return func(l *Loop) { l.spawn = spawn }
}

// New creates a loop. Without options it uses the wall clock and one
// goroutine per Call.
func New(opts ...Option) *Loop {
	l := &Loop{
		wake:  make(chan struct{}, 1),
		clock: realClock{},
		spawn: func(f func()) { go f() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post enqueues fn. Safe from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// RunPending runs queued tasks, including tasks they enqueue, until the queue
// is empty. It returns the number of tasks run.
func (l *Loop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()
		fn()
		n++
	}
}

// Run processes tasks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	l.running = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()
	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// RunUntil processes tasks on the calling goroutine until done is closed or
// ctx ends. It is the one-shot counterpart of Run and must not be used
// while Run is active.
func (l *Loop) RunUntil(ctx context.Context, done <-chan struct{}) error {
	for {
		l.RunPending()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Running reports whether Run is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Sync runs fn on the loop and waits for it. It must not be called from a
// loop task. When the loop is not running (one-shot use), pending tasks are
// drained on the caller's goroutine instead.
func (l *Loop) Sync(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	if !l.Running() {
		l.RunPending()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call runs work through the loop's spawner and delivers its outcome to done
// as a new loop task.
func Call[T any](l *Loop, ctx context.Context, work func(context.Context) (T, error), done func(T, error)) {
	l.spawn(func() {
		v, err := work(ctx)
		l.Post(func() { done(v, err) })
	})
}

// Timer is a one-shot callback that runs on the loop.
type Timer struct {
	stop    func() bool
	stopped bool
}

// AfterFunc schedules fn to run on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.stop = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped {
				return
			}
			t.stopped = true
			fn()
		})
	})
	return t
}

// Stop cancels the timer. Called on the loop, it guarantees fn does not run
// afterwards even if the clock already fired. Stop on a nil Timer is a no-op.
func (t *Timer) Stop() {
	if t == nil || t.stopped {
		return
	}
	t.stopped = true
	t.stop()
}

// Active reports whether the timer can still fire.
func (t *Timer) Active() bool {
	return t != nil && !t.stopped
}
