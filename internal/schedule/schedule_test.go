package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/remoteio/internal/clock"
	"github.com/sweeney/remoteio/internal/iomap"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine() (*Engine, *FakeTimers, *clock.Fake) {
	clk := clock.NewFake(t0)
	timers := &FakeTimers{}
	return New(clk, timers.AfterFunc), timers, clk
}

func event(ref string, at time.Duration, repeat time.Duration) Event {
	return Event{
		Actions: []Action{{Ref: ref, Value: iomap.Int(1)}},
		Target:  t0.Add(at),
		Repeat:  repeat,
	}
}

func TestArm_SelectsEarliest(t *testing.T) {
	e, timers, _ := newTestEngine()
	require.NoError(t, e.Replace([]Event{
		event("e1", 10*time.Second, 0),
		event("e2", 5*time.Second, 0),
	}))

	armed, ok := e.Armed()
	require.True(t, ok)
	assert.Equal(t, "e2", armed.Actions[0].Ref)
	assert.Equal(t, 5*time.Second, timers.Last().Delay)
}

func TestAdvance_OneShotThenNext(t *testing.T) {
	e, timers, clk := newTestEngine()
	require.NoError(t, e.Replace([]Event{
		event("e1", 10*time.Second, 0),
		event("e2", 5*time.Second, 0),
	}))

	_, ok := e.Advance()
	assert.False(t, ok, "nothing fired yet")

	clk.Advance(5 * time.Second)
	require.True(t, timers.FireLast())
	assert.True(t, e.Expired())

	fired, ok := e.Advance()
	require.True(t, ok)
	assert.Equal(t, "e2", fired.Actions[0].Ref)
	assert.False(t, e.Expired())

	armed, ok := e.Armed()
	require.True(t, ok)
	assert.Equal(t, "e1", armed.Actions[0].Ref)
	assert.Equal(t, 5*time.Second, timers.Last().Delay)
	assert.Equal(t, 1, e.Len())
}

func TestAdvance_RepeatingClone(t *testing.T) {
	e, timers, clk := newTestEngine()
	require.NoError(t, e.Replace([]Event{
		event("e1", 10*time.Second, 0),
		event("e2", 5*time.Second, 30*time.Second),
	}))

	clk.Advance(5 * time.Second)
	require.True(t, timers.FireLast())
	_, ok := e.Advance()
	require.True(t, ok)

	var targets []time.Time
	for _, ev := range e.Pending() {
		if ev.Actions[0].Ref == "e2" {
			targets = append(targets, ev.Target)
		}
	}
	assert.Equal(t, []time.Time{t0.Add(35 * time.Second)}, targets)

	armed, _ := e.Armed()
	assert.Equal(t, "e1", armed.Actions[0].Ref)
}

func TestArm_SkippedWhileUnsynced(t *testing.T) {
	e, timers, clk := newTestEngine()
	clk.SetSynced(false)

	require.NoError(t, e.Add(event("e1", time.Second, 0)))
	assert.Zero(t, timers.Count())
	_, ok := e.Armed()
	assert.False(t, ok)

	clk.SetSynced(true)
	assert.True(t, e.Arm())
	assert.Equal(t, 1, timers.Count())
}

func TestArm_PastTargetFiresImmediately(t *testing.T) {
	e, timers, _ := newTestEngine()
	require.NoError(t, e.Add(event("late", -time.Minute, 0)))
	assert.Equal(t, time.Duration(0), timers.Last().Delay)
}

func TestAdd_EarlierEventPreemptsArmed(t *testing.T) {
	e, timers, _ := newTestEngine()
	require.NoError(t, e.Add(event("later", 30*time.Second, 0)))
	first := timers.Last()

	require.NoError(t, e.Add(event("sooner", 5*time.Second, 0)))
	armed, _ := e.Armed()
	assert.Equal(t, "sooner", armed.Actions[0].Ref)

	// The superseded timer is stopped.
	assert.True(t, first.stopped)

	active := 0
	for i := range e.slots {
		if e.slots[i].active {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestFire_StaleGenerationIgnored(t *testing.T) {
	e, timers, _ := newTestEngine()
	require.NoError(t, e.Add(event("a", time.Second, 0)))
	stale := timers.Last()

	require.NoError(t, e.Replace(nil))
	stale.f()
	assert.False(t, e.Expired())
}

func TestAdd_Full(t *testing.T) {
	e, _, _ := newTestEngine()
	for i := 0; i < MaxEvents; i++ {
		require.NoError(t, e.Add(event("x", time.Duration(i+1)*time.Second, 0)))
	}
	assert.ErrorIs(t, e.Add(event("y", time.Hour, 0)), ErrFull)
}

func TestNotify(t *testing.T) {
	e, timers, _ := newTestEngine()
	require.NoError(t, e.Add(event("a", time.Second, 0)))
	timers.FireLast()

	select {
	case <-e.Notify():
	default:
		t.Fatal("expected notification after fire")
	}
}
