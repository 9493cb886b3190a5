// Package status provides a thread-safe status tracker for the remoteio daemon.
// The control loop writes it once per cycle; HTTP handlers and the MQTT
// mirror read snapshots.
package status

import (
	"sync"
	"time"
)

// Identity describes the provisioned device.
type Identity struct {
	CompanyName string
	DeviceID    string
	Model       string
	Version     string
	Hostname    string
}

// NetworkInfo contains station link state.
type NetworkInfo struct {
	SSID   string
	IP     string
	MAC    string
	LinkUp bool
}

// Connection is the lifecycle part of a snapshot.
type Connection struct {
	State             string
	Authenticated     bool
	Joined            bool
	LocalMode         bool
	Provisioning      bool
	VerifyState       string
	ReconnectFailures int
}

// AnchorInfo is the peer relay part of a snapshot.
type AnchorInfo struct {
	Anchored     bool
	Anchoring    bool
	Peer         string
	AnchoredPeer string
}

// RefInfo is one IO reference.
type RefInfo struct {
	Ref       string
	Pin       int
	Direction string
	Sampling  string
	Value     string
}

// QueueInfo reports the ingress queue.
type QueueInfo struct {
	Capacity int
	Drained  int
	Dropped  uint64
}

// Config contains daemon configuration for display.
type Config struct {
	CycleMs    int64
	DebounceMs int64
	CloudURL   string
	Broker     string
	HTTPAddr   string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Identity        Identity
	Network         NetworkInfo
	Connection      Connection
	Anchor          AnchorInfo
	Refs            []RefInfo
	Queue           QueueInfo
	SchedulePending int
	StartTime       time.Time
	Now             time.Time
	MQTTConnected   bool
	Config          Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Update is the loop-owned part of the state, written every cycle.
type Update struct {
	Network         NetworkInfo
	Connection      Connection
	Anchor          AnchorInfo
	Refs            []RefInfo
	Queue           QueueInfo
	SchedulePending int
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Connection: Connection{
				State: "INITIALIZATION",
			},
		},
	}
}

// SetIdentity records the provisioned identity.
func (t *Tracker) SetIdentity(id Identity) {
	t.mu.Lock()
	t.snap.Identity = id
	t.mu.Unlock()
}

// Update replaces the loop-owned state.
func (t *Tracker) Update(u Update) {
	refs := make([]RefInfo, len(u.Refs))
	copy(refs, u.Refs)

	t.mu.Lock()
	t.snap.Network = u.Network
	t.snap.Connection = u.Connection
	t.snap.Anchor = u.Anchor
	t.snap.Refs = refs
	t.snap.Queue = u.Queue
	t.snap.SchedulePending = u.SchedulePending
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Refs = append([]RefInfo(nil), t.snap.Refs...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
