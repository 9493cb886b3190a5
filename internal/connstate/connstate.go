// Package connstate is the four-state connection machine.
//
// Next is a pure function of the current state and the link/session flags.
// Machine wraps it with the per-state retry gates and the reconnect failure
// counter; it never performs I/O, it only tells the caller what is due.
package connstate

import "time"

// State is the connection state.
type State int

const (
	Initialization State = iota
	Connected
	NoWiFi
	Disconnected
)

func (s State) String() string {
	switch s {
	case Initialization:
		return "INITIALIZATION"
	case Connected:
		return "CONNECTED"
	case NoWiFi:
		return "NO_WIFI"
	case Disconnected:
		return "DISCONNECTED"
	}
	return "UNKNOWN"
}

// Inputs are the flags the transition function reads.
type Inputs struct {
	LinkUp    bool
	Joined    bool
	LocalMode bool
	// Anchored gates peer discovery. It does not affect transitions.
	Anchored bool
}

// Next returns the state that follows s.
func Next(s State, in Inputs) State {
	switch s {
	case Initialization:
		if in.LinkUp && in.Joined {
			return Connected
		}
		if in.LocalMode {
			return Disconnected
		}
		return Initialization
	case Connected:
		if !in.LinkUp {
			return NoWiFi
		}
		if !in.Joined {
			return Disconnected
		}
		return Connected
	case NoWiFi:
		if in.LinkUp {
			return Disconnected
		}
		return NoWiFi
	case Disconnected:
		if in.Joined {
			return Connected
		}
		if !in.LinkUp {
			return NoWiFi
		}
		return Disconnected
	}
	return s
}

// Config holds the retry intervals.
type Config struct {
	NoWiFiRetry          time.Duration
	DisconnectedRetry    time.Duration
	Browse               time.Duration
	MaxReconnectFailures int
}

// Plan lists the work due in the current cycle.
type Plan struct {
	From, To State

	// Service means pump the stream and drive the join handshake.
	Service bool
	// Reconnect means run a full, debounced connection attempt now.
	Reconnect bool
	// Browse means look for a peer to anchor through and probe it.
	Browse bool
}

// Changed reports whether the cycle moved to a new state.
func (p Plan) Changed() bool { return p.From != p.To }

// Machine tracks the state and its timers. Times are monotonic.
type Machine struct {
	cfg   Config
	state State

	lastReconnect time.Duration
	lastBrowse    time.Duration
	browsed       bool

	failures int
	// awaiting is set after a successful attempt from DISCONNECTED that has
	// not yet reached CONNECTED.
	awaiting bool
}

// NewMachine starts in INITIALIZATION. now is the time of the boot
// connection attempt.
func NewMachine(cfg Config, now time.Duration) *Machine {
	return &Machine{cfg: cfg, state: Initialization, lastReconnect: now}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Failures returns the consecutive failed reconnect attempts.
func (m *Machine) Failures() int { return m.failures }

// Step evaluates one cycle.
func (m *Machine) Step(now time.Duration, in Inputs) Plan {
	from := m.state
	to := Next(from, in)
	m.state = to

	if from != to && to == Connected {
		m.failures = 0
		m.awaiting = false
	}
	if from != to && to == Disconnected {
		m.browsed = false
	}

	p := Plan{From: from, To: to}
	switch to {
	case Initialization, Connected:
		p.Service = true
	case NoWiFi:
		if now-m.lastReconnect >= m.cfg.NoWiFiRetry {
			m.lastReconnect = now
			p.Reconnect = true
		}
	case Disconnected:
		p.Service = true
		if !in.Anchored && (!m.browsed || now-m.lastBrowse >= m.cfg.Browse) {
			m.lastBrowse = now
			m.browsed = true
			p.Browse = true
		}
		if now-m.lastReconnect >= m.cfg.DisconnectedRetry {
			m.lastReconnect = now
			p.Reconnect = true
		}
	}
	return p
}

// ReconnectDone records the result of an attempt the last Plan asked for.
// It reports whether the failure budget is exhausted and the device must
// reboot. Only attempts made from DISCONNECTED count.
func (m *Machine) ReconnectDone(from State, err error) (reboot bool) {
	if from != Disconnected {
		return false
	}
	if m.awaiting {
		// The previous attempt succeeded but never reached CONNECTED.
		m.failures++
		m.awaiting = false
	}
	if err != nil {
		m.failures++
	} else {
		m.awaiting = true
	}
	return m.failures >= m.cfg.MaxReconnectFailures
}
