package scheduler

import (
	"sync"
	"time"
)

// Scheduler holds at most one armed timer per key. Arming a key that is
// already armed replaces its timer, which is how debouncing works.
type Scheduler struct {
	clock Clock

	mu     sync.Mutex
	seq    uint64
	timers map[string]handle
}

type handle struct {
	seq   uint64
	timer Timer
}

// New creates a Scheduler on the given clock. A nil clock uses RealClock.
func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	return &Scheduler{
		clock:  clock,
		timers: make(map[string]handle),
	}
}

// Clock returns the scheduler's clock.
func (s *Scheduler) Clock() Clock { return s.clock }

// Arm schedules fn to run after delay under key, cancelling any timer
// already armed for the key.
func (s *Scheduler) Arm(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.timers[key]; ok {
		h.timer.Stop()
	}
	s.seq++
	seq := s.seq
	t := s.clock.AfterFunc(delay, func() { s.fire(key, seq, fn) })
	s.timers[key] = handle{seq: seq, timer: t}
}

// ArmIfIdle schedules fn only when no timer is armed for key. It reports
// whether a timer was armed.
func (s *Scheduler) ArmIfIdle(key string, delay time.Duration, fn func()) bool {
	s.mu.Lock()
	if _, ok := s.timers[key]; ok {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()
	s.Arm(key, delay, fn)
	return true
}

// Cancel stops the timer armed for key. It reports whether one was armed.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.timers[key]
	if !ok {
		return false
	}
	h.timer.Stop()
	delete(s.timers, key)
	return true
}

// CancelAll stops every armed timer and returns the keys that were armed.
func (s *Scheduler) CancelAll() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.timers))
	for k, h := range s.timers {
		h.timer.Stop()
		keys = append(keys, k)
	}
	s.timers = make(map[string]handle)
	return keys
}

// Armed reports whether a timer is pending for key.
func (s *Scheduler) Armed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Len returns the number of armed timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// fire runs fn if the timer is still the one armed for key. A timer that
// was replaced or cancelled after its callback was already queued is
// ignored.
func (s *Scheduler) fire(key string, seq uint64, fn func()) {
	s.mu.Lock()
	h, ok := s.timers[key]
	if !ok || h.seq != seq {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	s.mu.Unlock()
	fn()
}
