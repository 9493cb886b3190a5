// Package anchor implements the peer relay fallback.
//
// A device that cannot reach the cloud looks for a sibling on the local
// network and relays its data through it ("anchored"). A connected device
// that receives such traffic forwards it to the platform and, when the
// platform asks, relays commands back to the peer ("anchoring").
package anchor

import (
	"context"
	"errors"
	"strings"

	"github.com/sweeney/remoteio/internal/cloud"
	"github.com/sweeney/remoteio/internal/iomap"
	"github.com/sweeney/remoteio/internal/logging"
)

// ErrNotAnchored is returned by Relay when no peer is relaying for us.
var ErrNotAnchored = errors.New("anchor: not anchored")

// Candidate is one discovery result.
type Candidate struct {
	Name string
	Addr string
}

// Browser discovers candidate peers.
type Browser interface {
	Browse(ctx context.Context) ([]Candidate, error)
}

// Uplink is the subset of the cloud client used on the relay paths.
type Uplink interface {
	SideDoor(ctx context.Context, msg map[string]any) (cloud.SideDoor, error)
	PostFromAnchored(ctx context.Context, msg map[string]any) error
	PostPeer(ctx context.Context, addr string, msg any) (cloud.PeerReply, error)
}

// Anchor holds the link state. It is used from the control loop only.
type Anchor struct {
	browser  Browser
	uplink   Uplink
	patterns []string
	deviceID string
	mac      func() string
	logger   *logging.Logger

	// cursor is the index of the last accepted scan result, -1 for none.
	cursor int
	// peer relays for us.
	peer     string
	anchored bool

	// anchoredPeer is the device we relay commands to.
	anchoredPeer string
	anchoring    bool

	probes   int
	failures int
}

// New creates an Anchor. mac returns the station hardware address.
func New(browser Browser, uplink Uplink, patterns []string, deviceID string, mac func() string, logger *logging.Logger) *Anchor {
	return &Anchor{
		browser:  browser,
		uplink:   uplink,
		patterns: patterns,
		deviceID: deviceID,
		mac:      mac,
		logger:   logger.With("component", "anchor"),
		cursor:   -1,
	}
}

// SetDeviceID sets the identity used on relayed data. It is known only
// once credentials are loaded.
func (a *Anchor) SetDeviceID(id string) { a.deviceID = id }

// Anchored reports whether a peer is relaying for this device.
func (a *Anchor) Anchored() bool { return a.anchored }

// Anchoring reports whether this device is mid-handshake to relay for a peer.
func (a *Anchor) Anchoring() bool { return a.anchoring }

// Peer returns the address of the peer we relay through.
func (a *Anchor) Peer() string { return a.peer }

// AnchoredPeer returns the address of the peer we relay commands to.
func (a *Anchor) AnchoredPeer() string { return a.anchoredPeer }

// Cursor returns the scan cursor.
func (a *Anchor) Cursor() int { return a.cursor }

// Probes returns how many probes were posted.
func (a *Anchor) Probes() int { return a.probes }

// Failures returns how many probe and relay posts failed.
func (a *Anchor) Failures() int { return a.failures }

// Release drops the anchored flag. Called when the device reaches
// CONNECTED, where it must never be anchored.
func (a *Anchor) Release() {
	if a.anchored {
		a.logger.Info("releasing anchor", "peer", a.peer)
	}
	a.anchored = false
}

func (a *Anchor) matches(name string) bool {
	for _, p := range a.patterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

// Scan applies the candidate-selection rule to one discovery result set.
//
// Only a matching candidate whose index is later than the cursor is
// accepted. An empty result set resets the cursor. A matching candidate at
// or before the cursor also resets it and the scan continues. This can skip
// valid candidates on alternate scans; it is kept for compatibility with
// existing firmware.
func (a *Anchor) Scan(cands []Candidate) (string, bool) {
	if len(cands) == 0 {
		a.cursor = -1
		return "", false
	}
	for i, c := range cands {
		if !a.matches(c.Name) {
			continue
		}
		if i > a.cursor {
			a.cursor = i
			a.peer = c.Addr
			return c.Addr, true
		}
		a.cursor = -1
	}
	return "", false
}

// Discover browses for peers and returns the chosen peer, which may be one
// found by an earlier scan.
func (a *Anchor) Discover(ctx context.Context) string {
	cands, err := a.browser.Browse(ctx)
	if err != nil {
		a.logger.Warn("browse failed", "error", err)
		return a.peer
	}
	if addr, ok := a.Scan(cands); ok {
		a.logger.Debug("candidate peer", "addr", addr, "cursor", a.cursor)
	}
	return a.peer
}

// Probe posts a disconnected status to the current peer. An "ok" reply
// marks the link anchored; a failed post clears it.
func (a *Anchor) Probe(ctx context.Context) {
	if a.peer == "" {
		return
	}
	a.probes++
	msg := map[string]string{"status": "disconnected", "mac": a.mac()}
	reply, err := a.uplink.PostPeer(ctx, a.peer, msg)
	if err != nil {
		a.failures++
		a.anchored = false
		a.logger.Warn("probe failed", "peer", a.peer, "error", err)
		return
	}
	if reply.Msg == cloud.MsgOK {
		if !a.anchored {
			a.logger.Info("anchored", "peer", a.peer)
		}
		a.anchored = true
	}
}

// Browse runs one discovery round: discover, then probe the chosen peer.
func (a *Anchor) Browse(ctx context.Context) {
	if a.anchored {
		return
	}
	a.Discover(ctx)
	a.Probe(ctx)
}

// Relay sends one of our values through the anchor peer. A failed post
// clears the anchored flag so the next browse round rediscovers.
func (a *Anchor) Relay(ctx context.Context, ref string, v iomap.Value) error {
	if !a.anchored || a.peer == "" {
		return ErrNotAnchored
	}
	msg := map[string]any{"deviceId": a.deviceID, "ref": ref, "value": v.String()}
	if _, err := a.uplink.PostPeer(ctx, a.peer, msg); err != nil {
		a.failures++
		a.anchored = false
		a.logger.Warn("relay failed, anchor lost", "peer", a.peer, "error", err)
		return err
	}
	return nil
}

// RelayCommand forwards a cloud command to the peer this device relays for.
func (a *Anchor) RelayCommand(ctx context.Context, peer, ref string, v iomap.Value) error {
	a.anchoredPeer = peer
	msg := map[string]any{"ref": ref, "value": v.String()}
	if _, err := a.uplink.PostPeer(ctx, peer, msg); err != nil {
		a.logger.Warn("command relay failed", "peer", peer, "ref", ref, "error", err)
		return err
	}
	return nil
}
