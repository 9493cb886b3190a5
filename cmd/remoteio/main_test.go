package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/remoteio/internal/config"
	"github.com/sweeney/remoteio/internal/device"
	"github.com/sweeney/remoteio/internal/logging"
	"github.com/sweeney/remoteio/internal/mqtt"
	"github.com/sweeney/remoteio/internal/status"
	"github.com/sweeney/remoteio/internal/store"
)

// fakeDevice counts cycles and fails with err on cycle failAt (1-based).
type fakeDevice struct {
	cycles   int
	failAt   int
	err      error
	notify   chan struct{}
	shutdown []string
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{notify: make(chan struct{}, 1)}
}

func (f *fakeDevice) OnCycle(context.Context) error {
	f.cycles++
	if f.failAt > 0 && f.cycles == f.failAt {
		return f.err
	}
	return nil
}

func (f *fakeDevice) Notify() <-chan struct{} { return f.notify }

func (f *fakeDevice) Shutdown(reason string) { f.shutdown = append(f.shutdown, reason) }

type connStatus bool

func (c connStatus) IsConnected() bool { return bool(c) }

// runRunLoop drives runLoop with nTicks ticks followed by sig.
func runRunLoop(t *testing.T, dev *fakeDevice, tracker *status.Tracker, nTicks int, sig os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sigCh := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(context.Background(), dev, connStatus(true), tracker, tick, sigCh, logging.Discard())
	}()

	for i := 0; i < nTicks; i++ {
		select {
		case tick <- time.Time{}:
		case err := <-errCh:
			return err
		}
	}
	sigCh <- sig

	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not return")
		return nil
	}
}

func TestRunLoopCyclesOnTick(t *testing.T) {
	dev := newFakeDevice()
	tracker := status.NewTracker(time.Now(), status.Config{})

	if err := runRunLoop(t, dev, tracker, 5, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if dev.cycles != 5 {
		t.Errorf("cycles: got %d, want 5", dev.cycles)
	}
	if !tracker.Snapshot().MQTTConnected {
		t.Error("expected MQTT status copied into the tracker")
	}
}

func TestRunLoopShutdownSignals(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGINT, "SIGINT"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			dev := newFakeDevice()
			if err := runRunLoop(t, dev, nil, 1, tt.sig); err != nil {
				t.Fatalf("runLoop returned error: %v", err)
			}
			if len(dev.shutdown) != 1 || dev.shutdown[0] != tt.want {
				t.Errorf("shutdown: got %v, want [%s]", dev.shutdown, tt.want)
			}
		})
	}
}

func TestRunLoopReturnsReboot(t *testing.T) {
	dev := newFakeDevice()
	dev.failAt = 3
	dev.err = &device.Reboot{Reason: "provisioned"}

	err := runRunLoop(t, dev, nil, 10, syscall.SIGTERM)
	if !errors.Is(err, device.ErrReboot) {
		t.Fatalf("expected reboot, got %v", err)
	}
	if dev.cycles != 3 {
		t.Errorf("cycles: got %d, want 3", dev.cycles)
	}
	if len(dev.shutdown) != 0 {
		t.Error("a reboot must not publish SHUTDOWN")
	}
}

func TestRunLoopCyclesOnScheduleNotify(t *testing.T) {
	dev := newFakeDevice()
	dev.failAt = 1
	dev.err = errors.New("stop")
	dev.notify <- struct{}{}

	err := runLoop(context.Background(), dev, nil, nil, nil, nil, logging.Discard())
	if err == nil || err.Error() != "stop" {
		t.Fatalf("expected the cycle error, got %v", err)
	}
	if dev.cycles != 1 {
		t.Errorf("cycles: got %d, want 1", dev.cycles)
	}
}

func TestRunLoopContextCancelled(t *testing.T) {
	dev := newFakeDevice()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runLoop(ctx, dev, nil, nil, nil, nil, logging.Discard())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(dev.shutdown) != 1 {
		t.Errorf("expected one shutdown, got %v", dev.shutdown)
	}
}

func TestSignalName(t *testing.T) {
	if got := signalName(syscall.SIGHUP); got != "UNKNOWN" {
		t.Errorf("SIGHUP: got %q, want UNKNOWN", got)
	}
}

func TestMQTTStatus(t *testing.T) {
	if mqttStatus(nil) != nil {
		t.Error("nil publisher should have no status")
	}
	pub := mqtt.NewFakePublisher()
	if mqttStatus(pub) == nil {
		t.Error("fake publisher reports connection status")
	}
}

func TestHTTPPort(t *testing.T) {
	tests := []struct {
		addr string
		want int
	}{
		{":80", 80},
		{":8080", 8080},
		{"127.0.0.1:9000", 9000},
		{":0", 80},
		{"bogus", 80},
	}
	for _, tt := range tests {
		if got := httpPort(tt.addr); got != tt.want {
			t.Errorf("httpPort(%q): got %d, want %d", tt.addr, got, tt.want)
		}
	}
}

func TestNewHTTPClient(t *testing.T) {
	c := newHTTPClient(config.CloudConfig{RequestTimeout: 3 * time.Second, Insecure: true})
	if c.Timeout != 3*time.Second {
		t.Errorf("Timeout: got %v, want 3s", c.Timeout)
	}
}

type failingStore struct{ store.Store }

func (failingStore) Load(context.Context) (store.Config, error) {
	return store.Config{}, errors.New("disk I/O error")
}

func TestMirrorDeviceID(t *testing.T) {
	const broker = "tcp://192.168.1.200:1883"
	tests := []struct {
		name   string
		broker string
		st     store.Store
		want   string
		wantOK bool
	}{
		{"provisioned", broker, store.NewMemory(&store.Config{SSID: "home", DeviceID: "dev-1"}), "dev-1", true},
		{"no broker", "", store.NewMemory(&store.Config{DeviceID: "dev-1"}), "", false},
		{"provisioning", broker, store.NewMemory(nil), "", false},
		{"load error", broker, failingStore{}, "", false},
		{"empty device id", broker, store.NewMemory(&store.Config{SSID: "home"}), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := mirrorDeviceID(context.Background(), tt.broker, tt.st, logging.Discard())
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("got (%q, %t), want (%q, %t)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestWriteStoredStateUnprovisioned(t *testing.T) {
	var buf bytes.Buffer
	if err := writeStoredState(&buf, store.NewMemory(nil)); err != nil {
		t.Fatalf("writeStoredState: %v", err)
	}
	if got := buf.String(); got != "provisioned: no\n" {
		t.Errorf("output: got %q", got)
	}
}

func TestWriteStoredStateHidesPassword(t *testing.T) {
	var buf bytes.Buffer
	st := store.NewMemory(&store.Config{
		SSID:              "home",
		Password:          "hunter2",
		CompanyName:       "acme",
		DeviceID:          "dev-1",
		Model:             "remoteio-linux",
		SSIDAuth:          true,
		SettingsTimestamp: "1700000000",
		SettingsSavedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err := writeStoredState(&buf, st); err != nil {
		t.Fatalf("writeStoredState: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"provisioned: yes", "ssid: home (authenticated: true)", "device: dev-1", "settings: 1700000000 (saved 2026-01-02T03:04:05Z)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hunter2") {
		t.Error("password must not be printed")
	}
}
