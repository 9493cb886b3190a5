//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealPins drives pins on actual hardware using the Linux GPIO character device.
type RealPins struct {
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
	modes map[int]Mode
}

// NewRealPins opens the named chip, e.g. "gpiochip0".
func NewRealPins(chipName string) (*RealPins, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealPins{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line),
		modes: make(map[int]Mode),
	}, nil
}

func biasOption(mode Mode) []gpiocdev.LineReqOption {
	switch mode {
	case ModeInputPullUp:
		return []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullUp}
	case ModeInputPullDown:
		return []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullDown}
	case ModeOutput:
		return []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	default:
		return []gpiocdev.LineReqOption{gpiocdev.AsInput}
	}
}

// Configure requests the line, or reconfigures it if already held.
func (p *RealPins) Configure(pin int, mode Mode) error {
	if l, ok := p.lines[pin]; ok {
		if err := l.Close(); err != nil {
			return fmt.Errorf("release pin %d: %w", pin, err)
		}
		delete(p.lines, pin)
	}
	l, err := p.chip.RequestLine(pin, biasOption(mode)...)
	if err != nil {
		return fmt.Errorf("request pin %d: %w", pin, err)
	}
	p.lines[pin] = l
	p.modes[pin] = mode
	return nil
}

// Read returns the raw level of a configured pin.
func (p *RealPins) Read(pin int) (int, error) {
	l, ok := p.lines[pin]
	if !ok {
		return 0, fmt.Errorf("read pin %d: %w", pin, ErrNotConfigured)
	}
	v, err := l.Value()
	if err != nil {
		return 0, fmt.Errorf("read pin %d: %w", pin, err)
	}
	return v, nil
}

// Write sets the level of an output pin.
func (p *RealPins) Write(pin int, value int) error {
	l, ok := p.lines[pin]
	if !ok {
		return fmt.Errorf("write pin %d: %w", pin, ErrNotConfigured)
	}
	if value != 0 {
		value = 1
	}
	if err := l.SetValue(value); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// AttachEdgeInterrupt re-requests the line with edge detection on both edges.
// gpiocdev delivers events from its own goroutine.
func (p *RealPins) AttachEdgeInterrupt(pin int, fn EdgeHandler) error {
	mode, ok := p.modes[pin]
	if !ok {
		return fmt.Errorf("attach pin %d: %w", pin, ErrNotConfigured)
	}
	if l, held := p.lines[pin]; held {
		if err := l.Close(); err != nil {
			return fmt.Errorf("release pin %d: %w", pin, err)
		}
		delete(p.lines, pin)
	}

	opts := append(biasOption(mode),
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			v := 0
			if evt.Type == gpiocdev.LineEventRisingEdge {
				v = 1
			}
			fn(v)
		}),
	)
	l, err := p.chip.RequestLine(pin, opts...)
	if err != nil {
		return fmt.Errorf("request pin %d with edges: %w", pin, err)
	}
	p.lines[pin] = l
	return nil
}

// Close reconfigures every held line to input with pull-down (the Pi boot
// default) and releases the chip.
func (p *RealPins) Close() error {
	var errs []error
	for pin, l := range p.lines {
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	p.lines = map[int]*gpiocdev.Line{}
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
