package cloud

import (
	"net/url"
	"strings"

	"github.com/sweeney/remoteio/internal/iomap"
)

// StateAccepted is the verification state that authenticates the device.
const StateAccepted = "accepted"

// VerifyRequest is the device identity posted to the verification endpoint.
type VerifyRequest struct {
	CompanyName       string `json:"companyName"`
	DeviceID          string `json:"deviceId"`
	MAC               string `json:"mac"`
	IPAddress         string `json:"ipAddress"`
	Model             string `json:"model"`
	Version           string `json:"version"`
	SettingsTimestamp string `json:"settingsTimestamp"`
}

// VerifyResponse carries the session token and the device settings.
type VerifyResponse struct {
	State             string      `json:"state"`
	Token             string      `json:"token,omitempty"`
	ServerAddr        string      `json:"serverAddr,omitempty"`
	SettingsTimestamp string      `json:"settingsTimestamp,omitempty"`
	GPIO              []GPIODecl  `json:"gpio"`
	Events            []EventDecl `json:"events"`
}

// Accepted reports whether the cloud authenticated the device.
func (r *VerifyResponse) Accepted() bool {
	return r.State == StateAccepted
}

// SocketHost extracts the host name from ServerAddr
// ("https://host:port/..." -> "host").
func (r *VerifyResponse) SocketHost() string {
	if r.ServerAddr == "" {
		return ""
	}
	if u, err := url.Parse(r.ServerAddr); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	host := r.ServerAddr
	if i := strings.Index(host, "//"); i >= 0 {
		host = host[i+2:]
	}
	if i := strings.IndexAny(host, ":/"); i >= 0 {
		host = host[:i]
	}
	return host
}

// GPIODecl is one entry of the "gpio" settings array.
type GPIODecl struct {
	Ref  string `json:"ref"`
	Pin  int    `json:"pin"`
	Type string `json:"type"`
	Mode string `json:"mode,omitempty"`
	// Interval is the minimum sample interval in milliseconds.
	Interval int64 `json:"interval,omitempty"`
}

// EventDecl is one entry of the "events" settings array.
type EventDecl struct {
	Actions         []ActionDecl `json:"actions"`
	TargetTimestamp int64        `json:"targetTimestamp"` // unix seconds
	Repeat          int64        `json:"repeat"`          // milliseconds, 0 = one-shot
}

// ActionDecl is a single reference write inside an event.
type ActionDecl struct {
	Ref   string      `json:"ref"`
	Value iomap.Value `json:"value"`
}

// DataPoint is one uploaded sample.
type DataPoint struct {
	DeviceID  string      `json:"deviceId,omitempty"`
	Ref       string      `json:"ref"`
	Value     iomap.Value `json:"value"`
	Timestamp int64       `json:"timestamp,omitempty"` // unix seconds
}

type batch struct {
	DeviceID  string      `json:"deviceId"`
	DataArray []DataPoint `json:"dataArray"`
}

// Latest is the last stored value of a reference.
type Latest struct {
	Ref   string
	Value iomap.Value
}

type latestEntry struct {
	Ref  string `json:"ref"`
	Data struct {
		Value iomap.Value `json:"value"`
	} `json:"data"`
}

// SideDoor is the cloud's answer to a forwarded peer status.
type SideDoor struct {
	// Activated means the cloud wants this device to relay for the peer.
	Activated bool
	// PeerIP is the address of the peer to relay commands to.
	PeerIP string
}

type sideDoorResponse struct {
	Data *struct {
		Actived bool   `json:"actived"`
		IPDest  string `json:"ipdest"`
	} `json:"data"`
}

// PeerReply is the body returned by a peer's /post-message endpoint.
type PeerReply struct {
	Msg string `json:"msg"`
}

// Reply messages used on the peer relay path.
const (
	MsgOK           = "ok"
	MsgReceived     = "received"
	MsgDisconnected = "disconnected"
	MsgPostFailed   = "post to niot failed"
	MsgUnhandled    = "unhandled message"
)
