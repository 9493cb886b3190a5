package schedule

import (
	"sync"
	"time"
)

// FakeTimers records armed timers and fires them on demand.
type FakeTimers struct {
	mu     sync.Mutex
	timers []*FakeTimer
}

// FakeTimer is one timer armed through FakeTimers.
type FakeTimer struct {
	Delay   time.Duration
	f       func()
	stopped bool
}

// Stop marks the timer stopped.
func (t *FakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// AfterFunc records the timer without starting it.
func (f *FakeTimers) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &FakeTimer{Delay: d, f: fn}
	f.timers = append(f.timers, t)
	return t
}

// Last returns the most recently armed timer.
func (f *FakeTimers) Last() *FakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.timers) == 0 {
		return nil
	}
	return f.timers[len(f.timers)-1]
}

// Count returns how many timers were armed.
func (f *FakeTimers) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// FireLast runs the most recent timer callback unless it was stopped.
// It reports whether a callback ran.
func (f *FakeTimers) FireLast() bool {
	t := f.Last()
	if t == nil || t.stopped {
		return false
	}
	t.stopped = true
	t.f()
	return true
}
