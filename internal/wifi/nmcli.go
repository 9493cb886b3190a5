package wifi

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"

	"github.com/sweeney/remoteio/internal/logging"
)

// runner executes a command and returns its combined output.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// NMCLI drives NetworkManager through its command line client.
type NMCLI struct {
	iface  string
	run    runner
	lookup func(name string) (*net.Interface, error)
	addrs  func(ifi *net.Interface) ([]net.Addr, error)
	logger *logging.Logger
}

// NewNMCLI creates a link bound to one wireless interface.
func NewNMCLI(iface string, logger *logging.Logger) *NMCLI {
	return &NMCLI{
		iface:  iface,
		run:    execRunner,
		lookup: net.InterfaceByName,
		addrs:  func(ifi *net.Interface) ([]net.Addr, error) { return ifi.Addrs() },
		logger: logger.With("component", "wifi"),
	}
}

func (n *NMCLI) nmcli(ctx context.Context, args ...string) error {
	out, err := n.run(ctx, "nmcli", args...)
	if err != nil {
		return fmt.Errorf("nmcli %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (n *NMCLI) Associate(ctx context.Context, ssid, password string) error {
	args := []string{"device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	args = append(args, "ifname", n.iface)
	n.logger.Info("associating", "ssid", ssid)
	return n.nmcli(ctx, args...)
}

func (n *NMCLI) Up() bool {
	return n.LocalIP() != ""
}

func (n *NMCLI) Disassociate() error {
	return n.nmcli(context.Background(), "device", "disconnect", n.iface)
}

func (n *NMCLI) LocalIP() string {
	ifi, err := n.lookup(n.iface)
	if err != nil || ifi.Flags&net.FlagUp == 0 {
		return ""
	}
	addrs, err := n.addrs(ifi)
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
			return ip4.String()
		}
	}
	return ""
}

func (n *NMCLI) MAC() string {
	ifi, err := n.lookup(n.iface)
	if err != nil {
		return ""
	}
	return strings.ToUpper(ifi.HardwareAddr.String())
}

func (n *NMCLI) SetHostname(name string) error {
	return n.nmcli(context.Background(), "general", "hostname", name)
}

func (n *NMCLI) StartAccessPoint(ssid string) error {
	n.logger.Info("starting access point", "ssid", ssid)
	return n.nmcli(context.Background(), "device", "wifi", "hotspot", "ifname", n.iface, "ssid", ssid)
}
