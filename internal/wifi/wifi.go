// Package wifi manages the station link and the provisioning access point.
package wifi

import (
	"context"
	"errors"
)

// ErrNoAddress is returned when the interface has no IPv4 address.
var ErrNoAddress = errors.New("wifi: interface has no address")

// Link is the network link used by the session manager.
type Link interface {
	// Associate joins the network. It may return before the link is up.
	Associate(ctx context.Context, ssid, password string) error

	// Up reports whether the station link is associated and addressed.
	Up() bool

	// Disassociate drops the station link.
	Disassociate() error

	// LocalIP returns the station IPv4 address, or "" when down.
	LocalIP() string

	// MAC returns the hardware address of the interface.
	MAC() string

	// SetHostname sets the name announced to DHCP.
	SetHostname(name string) error

	// StartAccessPoint brings up an open provisioning network.
	StartAccessPoint(ssid string) error
}
