//go:build !linux

package gpio

import "errors"

// RealPins is not available on non-Linux platforms.
type RealPins struct{}

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// NewRealPins returns an error on non-Linux platforms.
func NewRealPins(string) (*RealPins, error) {
	return nil, errUnsupported
}

func (p *RealPins) Configure(int, Mode) error { return errUnsupported }
func (p *RealPins) Read(int) (int, error) { return 0, errUnsupported }
func (p *RealPins) Write(int, int) error { return errUnsupported }
func (p *RealPins) AttachEdgeInterrupt(int, EdgeHandler) error { return errUnsupported }
func (p *RealPins) Close() error { return nil }
