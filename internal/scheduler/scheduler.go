// Package scheduler runs periodic and daily background jobs. Time flows
// through a Clock interface so tests can drive schedules deterministically.
package scheduler

import (
	"sync"
	"time"
)

// Clock abstracts wall time for the scheduler.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Scheduler owns a set of background job loops.
type Scheduler struct {
	clock Clock
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// New creates a scheduler on the wall clock.
func New() *Scheduler { return NewWithClock(realClock{}) }

// NewWithClock creates a scheduler driven by the given clock.
func NewWithClock(c Clock) *Scheduler {
	return &Scheduler{clock: c, stop: make(chan struct{})}
}

// Every runs job each interval until Stop.
func (s *Scheduler) Every(interval time.Duration, job func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.clock.After(interval):
				job()
			case <-s.stop:
				return
			}
		}
	}()
}

// DailyAt runs job once per day at the given local hour and minute. Jobs
// that need run-at-most-once semantics across restarts keep their own
// last-run marker; the scheduler only supplies the trigger.
func (s *Scheduler) DailyAt(hour, minute int, job func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			now := s.clock.Now()
			next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
			if !next.After(now) {
				next = next.AddDate(0, 0, 1)
			}
			select {
			case <-s.clock.After(next.Sub(now)):
				job()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts all loops and waits for them to exit. Safe to call twice.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// Debouncer coalesces repeated triggers per key: a burst of triggers runs
// the function once, delay after the last one.
type Debouncer struct {
	clock Clock
	delay time.Duration

	mu      sync.Mutex
	pending map[string]chan struct{}
	wg      sync.WaitGroup
}

// NewDebouncer creates a debouncer with the given settle delay.
func NewDebouncer(clock Clock, delay time.Duration) *Debouncer {
	if clock == nil {
		clock = realClock{}
	}
	return &Debouncer{clock: clock, delay: delay, pending: make(map[string]chan struct{})}
}

// Trigger schedules fn to run after the delay, cancelling any earlier
// pending run for the same key.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	if cancel, ok := d.pending[key]; ok {
		close(cancel)
	}
	cancel := make(chan struct{})
	d.pending[key] = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case <-d.clock.After(d.delay):
		case <-cancel:
			return
		}

		d.mu.Lock()
		if d.pending[key] == cancel {
			delete(d.pending, key)
		}
		d.mu.Unlock()
		fn()
	}()
}

// Flush cancels all pending runs and waits for in-flight ones.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	for key, cancel := range d.pending {
		close(cancel)
		delete(d.pending, key)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
