// Package gpio provides pin I/O with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "errors"

// Mode is the electrical configuration of a pin.
type Mode int

const (
	ModeInput Mode = iota
	ModeInputPullUp
	ModeInputPullDown
	ModeOutput
)

func (m Mode) String() string {
	switch m {
	case ModeInput:
		return "input"
	case ModeInputPullUp:
		return "input-pullup"
	case ModeInputPullDown:
		return "input-pulldown"
	case ModeOutput:
		return "output"
	}
	return "unknown"
}

// EdgeHandler receives the new logical level of a pin after an edge.
// It runs outside the control loop and must not block.
type EdgeHandler func(value int)

// Pins drives physical pins.
type Pins interface {
	// Configure sets the direction and bias of a pin.
	Configure(pin int, mode Mode) error

	// Read returns the current level (0 or 1) of a pin.
	Read(pin int) (int, error)

	// Write drives an output pin. Non-zero means high.
	Write(pin int, value int) error

	// AttachEdgeInterrupt registers fn for both edges of an input pin.
	AttachEdgeInterrupt(pin int, fn EdgeHandler) error

	// Close releases GPIO resources.
	Close() error
}

// ErrNotConfigured is returned when a pin is used before Configure.
var ErrNotConfigured = errors.New("gpio: pin not configured")
