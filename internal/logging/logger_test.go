package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/sweeney/remoteio/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestJSONOutputHasDefaultFields(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "1.2.3", &buf)
	l.Info("hello", "state", "CONNECTED")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", buf.String(), err)
	}
	if entry["service"] != "remoteio" {
		t.Errorf("service = %v", entry["service"])
	}
	if entry["version"] != "1.2.3" {
		t.Errorf("version = %v", entry["version"])
	}
	if entry["state"] != "CONNECTED" {
		t.Errorf("state = %v", entry["state"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(config.LoggingConfig{Level: "warn", Format: "text"}, "dev", &buf)
	l.Info("dropped")
	l.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn line missing")
	}
}

func TestWithAddsAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(config.LoggingConfig{Format: "text"}, "dev", &buf).With("component", "session")
	l.Info("x")
	if !strings.Contains(buf.String(), "component=session") {
		t.Errorf("missing component attr: %q", buf.String())
	}
}
