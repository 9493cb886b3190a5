package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

var ts = time.Date(2026, 2, 10, 8, 30, 0, 0, time.FixedZone("BRT", -3*3600))

func TestTopics(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{TopicState("dev1"), "remoteio/dev1/state"},
		{TopicSamples("dev1"), "remoteio/dev1/samples"},
		{TopicSystem("dev1"), "remoteio/dev1/system"},
		{TopicSystem(""), "remoteio/unprovisioned/system"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic: got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestFormatStatePayloadExactJSON(t *testing.T) {
	payload, err := FormatStatePayload(StateEvent{DeviceID: "dev1", Timestamp: ts, From: "CONNECTED", To: "NO_WIFI"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"state":{"timestamp":"2026-02-10T11:30:00Z","from":"CONNECTED","to":"NO_WIFI"}}`
	if string(payload) != want {
		t.Errorf("payload:\ngot:  %s\nwant: %s", payload, want)
	}
}

func TestFormatSamplePayload(t *testing.T) {
	payload, err := FormatSamplePayload(SampleEvent{Timestamp: ts, Ref: "temp", Value: "21.5", Source: "interrupt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var parsed SamplePayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Sample.Ref != "temp" || parsed.Sample.Value != "21.5" || parsed.Sample.Source != "interrupt" {
		t.Errorf("sample: got %+v", parsed.Sample)
	}
	if parsed.Sample.Timestamp != "2026-02-10T11:30:00Z" {
		t.Errorf("timestamp should be UTC, got %s", parsed.Sample.Timestamp)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	tests := []struct {
		name  string
		event SystemEvent
		want  string
	}{
		{
			name:  "will",
			event: SystemEvent{Timestamp: ts, Event: "SHUTDOWN", Reason: "MQTT_DISCONNECT"},
			want:  `{"system":{"timestamp":"2026-02-10T11:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`,
		},
		{
			name:  "reason omitted",
			event: SystemEvent{Timestamp: ts, Event: "RECONNECTED"},
			want:  `{"system":{"timestamp":"2026-02-10T11:30:00Z","event":"RECONNECTED"}}`,
		},
		{
			name:  "raw payload wins",
			event: SystemEvent{Timestamp: ts, Event: "REBOOT", RawPayload: []byte(`{"status":{"event":"REBOOT"}}`)},
			want:  `{"status":{"event":"REBOOT"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := FormatSystemPayload(tt.event)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(payload) != tt.want {
				t.Errorf("payload:\ngot:  %s\nwant: %s", payload, tt.want)
			}
		})
	}
}

func TestFakePublisherRecordsByTopic(t *testing.T) {
	f := NewFakePublisher()
	if err := f.PublishState(StateEvent{DeviceID: "dev1", Timestamp: ts, From: "INITIALIZATION", To: "CONNECTED"}); err != nil {
		t.Fatal(err)
	}
	if err := f.PublishSample(SampleEvent{DeviceID: "dev1", Timestamp: ts, Ref: "lamp", Value: "1"}); err != nil {
		t.Fatal(err)
	}
	if err := f.PublishSystem(SystemEvent{DeviceID: "dev1", Timestamp: ts, Event: "STARTUP", Retained: true}); err != nil {
		t.Fatal(err)
	}

	if len(f.States) != 1 || f.States[0].To != "CONNECTED" {
		t.Errorf("States: got %+v", f.States)
	}
	if len(f.Samples) != 1 || f.Samples[0].Ref != "lamp" {
		t.Errorf("Samples: got %+v", f.Samples)
	}
	if len(f.SystemEvents) != 1 || !f.SystemEvents[0].Retained {
		t.Errorf("SystemEvents: got %+v", f.SystemEvents)
	}
	for _, topic := range []string{"remoteio/dev1/state", "remoteio/dev1/samples", "remoteio/dev1/system"} {
		if len(f.Payloads[topic]) != 1 {
			t.Errorf("Payloads[%s]: got %d, want 1", topic, len(f.Payloads[topic]))
		}
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")

	if err := f.PublishState(StateEvent{}); err == nil {
		t.Error("expected error from PublishState")
	}
	if err := f.PublishSample(SampleEvent{}); err == nil {
		t.Error("expected error from PublishSample")
	}
	if err := f.PublishSystem(SystemEvent{}); err == nil {
		t.Error("expected error from PublishSystem")
	}
	if len(f.States)+len(f.Samples)+len(f.SystemEvents) != 0 {
		t.Error("failed publishes must not be recorded")
	}
}

func TestFakePublisherClose(t *testing.T) {
	f := NewFakePublisher()
	if f.Closed {
		t.Error("expected Closed=false initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("expected Closed=true after Close()")
	}
}
