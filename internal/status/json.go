package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event           string      `json:"event,omitempty"`
	Reason          string      `json:"reason,omitempty"`
	State           string      `json:"state"`
	UptimeSeconds   int64       `json:"uptime_seconds"`
	StartTime       string      `json:"start_time"`
	Timestamp       string      `json:"timestamp"`
	Device          DeviceJSON  `json:"device"`
	Network         NetworkJSON `json:"network"`
	Session         SessionJSON `json:"session"`
	Anchor          AnchorJSON  `json:"anchor"`
	Queue           QueueJSON   `json:"queue"`
	SchedulePending int         `json:"schedule_pending"`
	Refs            []RefJSON   `json:"refs"`
	MQTT            MQTTStatus  `json:"mqtt"`
	Config          *ConfigJSON `json:"config,omitempty"`
}

// DeviceJSON is the provisioned identity.
type DeviceJSON struct {
	CompanyName string `json:"company_name"`
	DeviceID    string `json:"device_id"`
	Model       string `json:"model"`
	Version     string `json:"version"`
	Hostname    string `json:"hostname"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	SSID   string `json:"ssid"`
	IP     string `json:"ip"`
	MAC    string `json:"mac"`
	LinkUp bool   `json:"link_up"`
}

// SessionJSON is the cloud session state.
type SessionJSON struct {
	Authenticated     bool   `json:"authenticated"`
	Joined            bool   `json:"joined"`
	LocalMode         bool   `json:"local_mode"`
	Provisioning      bool   `json:"provisioning"`
	VerifyState       string `json:"verify_state,omitempty"`
	ReconnectFailures int    `json:"reconnect_failures"`
}

// AnchorJSON is the peer relay state.
type AnchorJSON struct {
	Anchored     bool   `json:"anchored"`
	Anchoring    bool   `json:"anchoring"`
	Peer         string `json:"peer,omitempty"`
	AnchoredPeer string `json:"anchored_peer,omitempty"`
}

// QueueJSON reports the ingress queue.
type QueueJSON struct {
	Capacity int    `json:"capacity"`
	Drained  int    `json:"drained"`
	Dropped  uint64 `json:"dropped"`
}

// RefJSON is one IO reference.
type RefJSON struct {
	Ref       string `json:"ref"`
	Pin       int    `json:"pin"`
	Direction string `json:"direction"`
	Sampling  string `json:"sampling,omitempty"`
	Value     string `json:"value"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	CycleMs    int64  `json:"cycle_ms"`
	DebounceMs int64  `json:"debounce_ms"`
	CloudURL   string `json:"cloud_url"`
	Broker     string `json:"broker"`
	HTTPAddr   string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	state := snap.Connection.State
	if state == "" {
		state = "UNKNOWN"
	}

	refs := make([]RefJSON, 0, len(snap.Refs))
	for _, r := range snap.Refs {
		refs = append(refs, RefJSON{
			Ref:       r.Ref,
			Pin:       r.Pin,
			Direction: r.Direction,
			Sampling:  r.Sampling,
			Value:     r.Value,
		})
	}

	return StatusInner{
		State:         state,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Device: DeviceJSON{
			CompanyName: snap.Identity.CompanyName,
			DeviceID:    snap.Identity.DeviceID,
			Model:       snap.Identity.Model,
			Version:     snap.Identity.Version,
			Hostname:    snap.Identity.Hostname,
		},
		Network: NetworkJSON{
			SSID:   snap.Network.SSID,
			IP:     snap.Network.IP,
			MAC:    snap.Network.MAC,
			LinkUp: snap.Network.LinkUp,
		},
		Session: SessionJSON{
			Authenticated:     snap.Connection.Authenticated,
			Joined:            snap.Connection.Joined,
			LocalMode:         snap.Connection.LocalMode,
			Provisioning:      snap.Connection.Provisioning,
			VerifyState:       snap.Connection.VerifyState,
			ReconnectFailures: snap.Connection.ReconnectFailures,
		},
		Anchor: AnchorJSON{
			Anchored:     snap.Anchor.Anchored,
			Anchoring:    snap.Anchor.Anchoring,
			Peer:         snap.Anchor.Peer,
			AnchoredPeer: snap.Anchor.AnchoredPeer,
		},
		Queue: QueueJSON{
			Capacity: snap.Queue.Capacity,
			Drained:  snap.Queue.Drained,
			Dropped:  snap.Queue.Dropped,
		},
		SchedulePending: snap.SchedulePending,
		Refs:            refs,
		MQTT:            MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
	}
}

// FormatJSON returns the JSON status for the /monitor-data endpoint.
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	inner.Config = &ConfigJSON{
		CycleMs:    snap.Config.CycleMs,
		DebounceMs: snap.Config.DebounceMs,
		CloudURL:   snap.Config.CloudURL,
		Broker:     snap.Config.Broker,
		HTTPAddr:   snap.Config.HTTPAddr,
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
