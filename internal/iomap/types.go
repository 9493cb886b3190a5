package iomap

import (
	"strings"
	"time"

	"github.com/sweeney/remoteio/internal/gpio"
)

// Reserved and sentinel reference names.
const (
	// RefRestart reboots the device when written.
	RefRestart = "restart"
	// RefReset erases stored credentials and reboots when written. A
	// declaration with this name also names the physical reset button pin.
	RefReset = "reset"
	// RefDisconnect set to "1" asks the cloud session to disconnect.
	RefDisconnect = "disconnect"
)

// IsReserved reports whether ref is a control keyword that must never be
// stored as a value.
func IsReserved(ref string) bool {
	return ref == RefRestart || ref == RefReset
}

// Direction is the declared electrical role of a reference.
type Direction int

const (
	DirUnrecognized Direction = iota
	DirInput
	DirInputAnalog
	DirInputPullUp
	DirInputPullDown
	DirOutput
)

// ParseDirection maps the wire "type" field.
func ParseDirection(s string) Direction {
	switch strings.ToUpper(s) {
	case "INPUT":
		return DirInput
	case "INPUT_ANALOG":
		return DirInputAnalog
	case "INPUT_PULLUP":
		return DirInputPullUp
	case "INPUT_PULLDOWN":
		return DirInputPullDown
	case "OUTPUT":
		return DirOutput
	}
	return DirUnrecognized
}

func (d Direction) String() string {
	switch d {
	case DirInput:
		return "INPUT"
	case DirInputAnalog:
		return "INPUT_ANALOG"
	case DirInputPullUp:
		return "INPUT_PULLUP"
	case DirInputPullDown:
		return "INPUT_PULLDOWN"
	case DirOutput:
		return "OUTPUT"
	}
	return "N/L"
}

// IsInput reports whether the reference is sampled from a pin.
func (d Direction) IsInput() bool {
	switch d {
	case DirInput, DirInputAnalog, DirInputPullUp, DirInputPullDown:
		return true
	}
	return false
}

func (d Direction) pinMode() (gpio.Mode, bool) {
	switch d {
	case DirInput, DirInputAnalog:
		return gpio.ModeInput, true
	case DirInputPullUp:
		return gpio.ModeInputPullUp, true
	case DirInputPullDown:
		return gpio.ModeInputPullDown, true
	case DirOutput:
		return gpio.ModeOutput, true
	}
	return 0, false
}

// Sampling is how an input reference is read.
type Sampling int

const (
	SamplingNone Sampling = iota
	SamplingInterrupt
	SamplingPolled
	SamplingScheduled
)

// ParseSampling maps the wire "mode" field. Unknown modes mean none.
func ParseSampling(s string) Sampling {
	switch strings.ToUpper(s) {
	case "INTERRUPT", "EDGE":
		return SamplingInterrupt
	case "POLLED", "POLLING", "POLL":
		return SamplingPolled
	case "SCHEDULED", "SCHEDULE":
		return SamplingScheduled
	}
	return SamplingNone
}

func (s Sampling) String() string {
	switch s {
	case SamplingInterrupt:
		return "interrupt"
	case SamplingPolled:
		return "polled"
	case SamplingScheduled:
		return "scheduled"
	}
	return "none"
}

// Decl is one declared GPIO entry from device settings.
type Decl struct {
	Ref               string
	Pin               int
	Direction         Direction
	Sampling          Sampling
	MinSampleInterval time.Duration
}

// Record is the registry entry for one reference.
type Record struct {
	Ref               string
	Pin               int // -1 for references with no pin
	Direction         Direction
	Sampling          Sampling
	Value             Value
	LastSample        time.Duration // monotonic
	MinSampleInterval time.Duration
}

// HasPin reports whether the record is backed by a physical pin.
func (r Record) HasPin() bool { return r.Pin >= 0 }

// Source identifies who produced a sample.
type Source int

const (
	SourceInterrupt Source = iota
	SourcePoll
	SourceRemote
	SourceSchedule
	SourceLocal
	SourcePeer
)

func (s Source) String() string {
	switch s {
	case SourceInterrupt:
		return "interrupt"
	case SourcePoll:
		return "poll"
	case SourceRemote:
		return "remote"
	case SourceSchedule:
		return "schedule"
	case SourceLocal:
		return "local"
	case SourcePeer:
		return "peer"
	}
	return "unknown"
}

// Sample is an immutable value record passed from interrupt and timer
// context to the control loop.
type Sample struct {
	Ref    string
	Value  Value
	Time   time.Time     // wall clock, for upload timestamps
	Mono   time.Duration // monotonic, for sample-interval checks
	Source Source
}

// Sink accepts samples without blocking.
type Sink interface {
	Push(Sample) bool
}
