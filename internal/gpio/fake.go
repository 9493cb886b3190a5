package gpio

import (
	"fmt"
	"sync"
)

// FakePins is a test double that records configuration and writes and
// returns scripted levels.
type FakePins struct {
	mu sync.Mutex

	// Modes records the last mode configured per pin.
	Modes map[int]Mode

	// Levels is returned by Read. Writes to an output update it.
	Levels map[int]int

	// Writes records every Write call in order.
	Writes []PinWrite

	// Handlers holds attached edge handlers by pin.
	Handlers map[int]EdgeHandler

	// ReadError, if set, is returned by Read.
	ReadError error

	// Closed tracks if Close was called.
	Closed bool
}

// PinWrite is one recorded Write call.
type PinWrite struct {
	Pin   int
	Value int
}

// NewFakePins creates an empty FakePins.
func NewFakePins() *FakePins {
	return &FakePins{
		Modes:    make(map[int]Mode),
		Levels:   make(map[int]int),
		Handlers: make(map[int]EdgeHandler),
	}
}

// Configure records the mode.
func (f *FakePins) Configure(pin int, mode Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Modes[pin] = mode
	return nil
}

// Read returns the scripted level.
func (f *FakePins) Read(pin int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if _, ok := f.Modes[pin]; !ok {
		return 0, fmt.Errorf("read pin %d: %w", pin, ErrNotConfigured)
	}
	return f.Levels[pin], nil
}

// Write records the call.
func (f *FakePins) Write(pin int, value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Modes[pin]; !ok {
		return fmt.Errorf("write pin %d: %w", pin, ErrNotConfigured)
	}
	f.Writes = append(f.Writes, PinWrite{Pin: pin, Value: value})
	f.Levels[pin] = value
	return nil
}

// AttachEdgeInterrupt stores the handler.
func (f *FakePins) AttachEdgeInterrupt(pin int, fn EdgeHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Modes[pin]; !ok {
		return fmt.Errorf("attach pin %d: %w", pin, ErrNotConfigured)
	}
	f.Handlers[pin] = fn
	return nil
}

// Close marks the pins as closed.
func (f *FakePins) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// SetLevel sets the level returned by Read.
func (f *FakePins) SetLevel(pin, value int) {
	f.mu.Lock()
	f.Levels[pin] = value
	f.mu.Unlock()
}

// Edge sets the level and fires the attached handler, as an interrupt would.
// It reports whether a handler was attached.
func (f *FakePins) Edge(pin, value int) bool {
	f.mu.Lock()
	f.Levels[pin] = value
	fn := f.Handlers[pin]
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(value)
	return true
}

// WritesTo returns the recorded writes for one pin.
func (f *FakePins) WritesTo(pin int) []PinWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []PinWrite
	for _, w := range f.Writes {
		if w.Pin == pin {
			out = append(out, w)
		}
	}
	return out
}
