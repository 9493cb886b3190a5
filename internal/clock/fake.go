package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock for tests.
type Fake struct {
	mu     sync.Mutex
	wall   time.Time
	mono   time.Duration
	synced bool
}

// NewFake creates a synced fake clock at the given wall time.
func NewFake(wall time.Time) *Fake {
	return &Fake{wall: wall, synced: true}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wall
}

func (f *Fake) Synced() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.synced
}

func (f *Fake) Mono() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mono
}

// Advance moves both time bases forward.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.wall = f.wall.Add(d)
	f.mono += d
	f.mu.Unlock()
}

// SetSynced changes the wall-clock sync flag.
func (f *Fake) SetSynced(synced bool) {
	f.mu.Lock()
	f.synced = synced
	f.mu.Unlock()
}
