package eventloop

import (
	"sort"
	"sync"
	"time"
)

// ManualClock is a Clock that only moves when Advance is called.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	at  time.Duration
	seq int
	f   func()
}

// NewManualClock starts at zero.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	mt := &manualTimer{at: c.now + d, seq: c.seq, f: f}
	c.timers = append(c.timers, mt)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, t := range c.timers {
			if t == mt {
				c.timers = append(c.timers[:i], c.timers[i+1:]...)
				return true
			}
		}
		return false
	}
}

// Advance moves time forward by d, firing due callbacks in deadline order.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due, rest []*manualTimer
	for _, t := range c.timers {
		if t.at <= c.now {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	c.timers = rest
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].at != due[j].at {
			return due[i].at < due[j].at
		}
		return due[i].seq < due[j].seq
	})
	for _, t := range due {
		t.f()
	}
}

// Pending returns the number of scheduled callbacks.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// ManualSpawner queues Call work instead of running it, so tests choose when
// and in which order requests complete.
type ManualSpawner struct {
	mu   sync.Mutex
	jobs []func()
}

// NewManualSpawner returns an empty spawner.
func NewManualSpawner() *ManualSpawner {
	return &ManualSpawner{}
}

// Spawn is the function passed to WithSpawner.
func (s *ManualSpawner) Spawn(f func()) {
	s.mu.Lock()
	s.jobs = append(s.jobs, f)
	s.mu.Unlock()
}

// Pending returns the number of queued jobs.
func (s *ManualSpawner) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Run executes the i-th queued job (0 is the oldest) and removes it.
func (s *ManualSpawner) Run(i int) {
	s.mu.Lock()
	f := s.jobs[i]
	s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
	s.mu.Unlock()
	f()
}

// RunAll executes queued jobs oldest first, including jobs queued meanwhile.
func (s *ManualSpawner) RunAll() {
	for s.Pending() > 0 {
		s.Run(0)
	}
}
