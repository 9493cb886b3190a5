// Package schedule runs cloud-defined GPIO actions at absolute wall-clock
// times.
//
// Events live in a fixed pool of slots. At most one event is armed against
// the timer at any instant: whenever the set changes or an event fires, the
// engine picks the earliest inactive event and arms it. The timer callback
// only raises an atomic flag; the control loop collects the fired actions
// with Advance.
package schedule

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sweeney/remoteio/internal/clock"
	"github.com/sweeney/remoteio/internal/iomap"
)

// MaxEvents is the number of event slots.
const MaxEvents = 32

// ErrFull is returned when every slot is in use.
var ErrFull = errors.New("schedule: event pool full")

// Action is one reference write performed when an event fires.
type Action struct {
	Ref   string
	Value iomap.Value
}

// Event is a set of actions due at Target. A zero Repeat means one-shot.
type Event struct {
	Actions []Action
	Target  time.Time
	Repeat  time.Duration
}

// Timer is a stoppable one-shot timer.
type Timer interface {
	Stop() bool
}

// AfterFunc arms a one-shot timer. time.AfterFunc satisfies it via
// SystemTimers.
type AfterFunc func(d time.Duration, f func()) Timer

// SystemTimers arms real timers.
func SystemTimers(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type slot struct {
	event  Event
	used   bool
	active bool
}

// Engine is the scheduled event engine. Add, Replace, Arm and Advance must
// be called from the control loop. Expired and Notify are safe anywhere.
type Engine struct {
	slots [MaxEvents]slot
	armed int
	timer Timer

	after AfterFunc
	clock clock.Clock

	generation atomic.Uint64
	expired    atomic.Bool
	notify     chan struct{}
}

// New creates an empty engine.
func New(clk clock.Clock, after AfterFunc) *Engine {
	if after == nil {
		after = SystemTimers
	}
	return &Engine{
		armed:  -1,
		after:  after,
		clock:  clk,
		notify: make(chan struct{}, 1),
	}
}

// Add stores an inactive event and re-arms.
func (e *Engine) Add(ev Event) error {
	if err := e.insert(ev); err != nil {
		return err
	}
	e.Arm()
	return nil
}

// Replace discards every event, including the armed one, and loads evs.
// Events that do not fit are reported as ErrFull.
func (e *Engine) Replace(evs []Event) error {
	e.disarm()
	for i := range e.slots {
		e.slots[i] = slot{}
	}
	var err error
	for i, ev := range evs {
		if insertErr := e.insert(ev); insertErr != nil {
			err = fmt.Errorf("event %d of %d: %w", i+1, len(evs), insertErr)
			break
		}
	}
	e.Arm()
	return err
}

func (e *Engine) insert(ev Event) error {
	for i := range e.slots {
		if !e.slots[i].used {
			e.slots[i] = slot{event: ev, used: true}
			return nil
		}
	}
	return ErrFull
}

// Arm selects the earliest inactive event and arms the timer for it. An
// event already armed for an earlier or equal target stays armed. Arming is
// skipped while the wall clock is unsynced. It reports whether a timer is
// armed on return.
func (e *Engine) Arm() bool {
	if !e.clock.Synced() {
		return e.armed >= 0
	}
	next := e.earliest()
	if next < 0 {
		return e.armed >= 0
	}
	if e.armed >= 0 {
		if !e.slots[next].event.Target.Before(e.slots[e.armed].event.Target) {
			return true
		}
		e.disarm()
	}

	delay := e.slots[next].event.Target.Sub(e.clock.Now())
	if delay < 0 {
		delay = 0
	}
	e.slots[next].active = true
	e.armed = next
	gen := e.generation.Add(1)
	e.timer = e.after(delay, func() { e.fire(gen) })
	return true
}

func (e *Engine) earliest() int {
	best := -1
	for i := range e.slots {
		s := &e.slots[i]
		if !s.used || s.active {
			continue
		}
		if best < 0 || s.event.Target.Before(e.slots[best].event.Target) {
			best = i
		}
	}
	return best
}

func (e *Engine) disarm() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	// Invalidate a callback that already started.
	e.generation.Add(1)
	e.expired.Store(false)
	if e.armed >= 0 {
		e.slots[e.armed].active = false
		e.armed = -1
	}
}

// fire runs in timer context.
func (e *Engine) fire(gen uint64) {
	if e.generation.Load() != gen {
		return
	}
	e.expired.Store(true)
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Expired reports whether the armed event fired and has not been advanced.
func (e *Engine) Expired() bool {
	return e.expired.Load()
}

// Notify is signalled whenever an event fires.
func (e *Engine) Notify() <-chan struct{} {
	return e.notify
}

// Advance consumes a fired event. It returns the event, requeues a clone
// target+repeat for repeating events, frees the fired slot and re-arms.
// It returns false when nothing has fired.
func (e *Engine) Advance() (Event, bool) {
	if !e.expired.Load() || e.armed < 0 {
		return Event{}, false
	}
	fired := e.slots[e.armed].event
	e.slots[e.armed] = slot{}
	e.armed = -1
	e.timer = nil
	e.expired.Store(false)

	if fired.Repeat > 0 {
		next := fired
		next.Actions = append([]Action(nil), fired.Actions...)
		next.Target = fired.Target.Add(fired.Repeat)
		// The fired slot was just freed, so this cannot fail.
		_ = e.insert(next)
	}
	e.Arm()
	return fired, true
}

// Armed returns the currently armed event.
func (e *Engine) Armed() (Event, bool) {
	if e.armed < 0 {
		return Event{}, false
	}
	return e.slots[e.armed].event, true
}

// Pending returns every stored event, armed included, in slot order.
func (e *Engine) Pending() []Event {
	var out []Event
	for i := range e.slots {
		if e.slots[i].used {
			out = append(out, e.slots[i].event)
		}
	}
	return out
}

// Len returns the number of stored events.
func (e *Engine) Len() int {
	n := 0
	for i := range e.slots {
		if e.slots[i].used {
			n++
		}
	}
	return n
}

// Stop disarms the timer and keeps the events.
func (e *Engine) Stop() {
	e.disarm()
}
