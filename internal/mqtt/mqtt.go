// Package mqtt mirrors device activity to a local MQTT broker, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// TopicPrefix is the root of every topic.
const TopicPrefix = "remoteio"

// TopicState returns the topic for connection state transitions.
func TopicState(deviceID string) string { return topic(deviceID, "state") }

// TopicSamples returns the topic for IO samples.
func TopicSamples(deviceID string) string { return topic(deviceID, "samples") }

// TopicSystem returns the topic for system lifecycle events.
func TopicSystem(deviceID string) string { return topic(deviceID, "system") }

func topic(deviceID, leaf string) string {
	if deviceID == "" {
		deviceID = "unprovisioned"
	}
	return TopicPrefix + "/" + deviceID + "/" + leaf
}

// Publisher publishes device events to MQTT.
type Publisher interface {
	// PublishState sends a connection state transition.
	// Returns error if publishing fails (should not crash the process).
	PublishState(event StateEvent) error

	// PublishSample sends an IO sample.
	PublishSample(event SampleEvent) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// StateEvent is a connection state transition.
type StateEvent struct {
	DeviceID  string
	Timestamp time.Time
	From      string
	To        string
}

// SampleEvent is a reference value that was uploaded or applied.
type SampleEvent struct {
	DeviceID  string
	Timestamp time.Time
	Ref       string
	Value     string
	Source    string
}

// SystemEvent represents a system lifecycle event (STARTUP, SHUTDOWN, REBOOT, RECONNECTED).
type SystemEvent struct {
	DeviceID   string
	Timestamp  time.Time
	Event      string
	Reason     string
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// StatePayload is the message payload for state transitions.
type StatePayload struct {
	State StatePayloadInner `json:"state"`
}

// StatePayloadInner contains the transition details.
type StatePayloadInner struct {
	Timestamp string `json:"timestamp"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// FormatStatePayload creates the JSON payload for a state transition.
func FormatStatePayload(event StateEvent) ([]byte, error) {
	return json.Marshal(StatePayload{
		State: StatePayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			From:      event.From,
			To:        event.To,
		},
	})
}

// SamplePayload is the message payload for samples.
type SamplePayload struct {
	Sample SamplePayloadInner `json:"sample"`
}

// SamplePayloadInner contains the sample details.
type SamplePayloadInner struct {
	Timestamp string `json:"timestamp"`
	Ref       string `json:"ref"`
	Value     string `json:"value"`
	Source    string `json:"source"`
}

// FormatSamplePayload creates the JSON payload for a sample.
func FormatSamplePayload(event SampleEvent) ([]byte, error) {
	return json.Marshal(SamplePayload{
		Sample: SamplePayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Ref:       event.Ref,
			Value:     event.Value,
			Source:    event.Source,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
