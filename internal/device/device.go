// Package device is the owned context of one remoteio device.
//
// A Device holds every component: the IO registry, ingress queue,
// schedule engine, session manager, peer anchor and connection machine.
// There are no package-level singletons. All of them are driven from a
// single goroutine that calls OnCycle; edge interrupts and schedule timers
// only push samples or raise flags, and other goroutines reach the loop
// through Do.
package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/remoteio/internal/anchor"
	"github.com/sweeney/remoteio/internal/clock"
	"github.com/sweeney/remoteio/internal/cloud"
	"github.com/sweeney/remoteio/internal/config"
	"github.com/sweeney/remoteio/internal/connstate"
	"github.com/sweeney/remoteio/internal/gpio"
	"github.com/sweeney/remoteio/internal/ingress"
	"github.com/sweeney/remoteio/internal/iomap"
	"github.com/sweeney/remoteio/internal/logging"
	"github.com/sweeney/remoteio/internal/metrics"
	"github.com/sweeney/remoteio/internal/mqtt"
	"github.com/sweeney/remoteio/internal/schedule"
	"github.com/sweeney/remoteio/internal/session"
	"github.com/sweeney/remoteio/internal/status"
	"github.com/sweeney/remoteio/internal/store"
	"github.com/sweeney/remoteio/internal/stream"
	"github.com/sweeney/remoteio/internal/wifi"
)

// QueueCapacity bounds the ingress queue. Samples arriving while it is
// full are dropped.
const QueueCapacity = 10

const inboxSize = 8

// CommandCallback receives every value applied from the cloud or a peer.
type CommandCallback func(ref string, v iomap.Value)

// Deps are the collaborators of a Device. Publisher, Tracker and Metrics
// are optional.
type Deps struct {
	Pins      gpio.Pins
	Link      wifi.Link
	Clock     clock.Clock
	Store     store.Store
	Cloud     *cloud.Client
	Stream    session.Stream
	Browser   anchor.Browser
	Timers    schedule.AfterFunc
	Publisher mqtt.Publisher
	Tracker   *status.Tracker
	Metrics   *metrics.Metrics
	Logger    *logging.Logger

	// Sleep is passed to the session manager.
	Sleep func(ctx context.Context, d time.Duration) error
}

type call struct {
	fn   func(ctx context.Context)
	done chan struct{}
}

// Device is the owned context. Apart from Do, its methods must be called
// from the control loop goroutine.
type Device struct {
	cfg       *config.Config
	pins      gpio.Pins
	link      wifi.Link
	clock     clock.Clock
	store     store.Store
	cloud     *cloud.Client
	publisher mqtt.Publisher
	tracker   *status.Tracker
	metrics   *metrics.Metrics
	logger    *logging.Logger

	queue    *ingress.Queue[iomap.Sample]
	registry *iomap.Registry
	sched    *schedule.Engine
	session  *session.Manager
	anchor   *anchor.Anchor
	machine  *connstate.Machine

	calls     chan call
	events    []stream.Event
	onCommand CommandCallback

	deviceID     string
	provisioning bool
	reboot       *Reboot
	rebooted     bool
	stopped      bool

	resetHeld     bool
	resetSince    time.Duration
	lastBootRetry time.Duration
	lastDropped   uint64
	drained       int
}

// New wires a Device. Call Boot before the first OnCycle.
func New(cfg *config.Config, deps Deps) *Device {
	d := &Device{
		cfg:       cfg,
		pins:      deps.Pins,
		link:      deps.Link,
		clock:     deps.Clock,
		store:     deps.Store,
		cloud:     deps.Cloud,
		publisher: deps.Publisher,
		tracker:   deps.Tracker,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With("component", "device"),
		queue:     ingress.New[iomap.Sample](QueueCapacity),
		calls:     make(chan call, inboxSize),
	}
	timers := deps.Timers
	if timers == nil {
		timers = schedule.SystemTimers
	}
	d.registry = iomap.NewRegistry(deps.Pins, d.queue, deps.Clock)
	d.sched = schedule.New(deps.Clock, timers)
	d.session = session.New(session.Options{
		Timing:  cfg.Timing,
		Cloud:   cfg.Cloud,
		Model:   cfg.Device.Model,
		Version: cfg.Device.Version,
	}, session.Deps{
		Link:   deps.Link,
		Cloud:  deps.Cloud,
		Stream: deps.Stream,
		Store:  deps.Store,
		Clock:  deps.Clock,
		Logger: deps.Logger,
		Sleep:  deps.Sleep,
	})
	d.session.SetHandlers(session.Handlers{
		Settings: d.applySettings,
		Latest:   d.applyLatest,
		Event:    func(ev stream.Event) { d.events = append(d.events, ev) },
	})
	d.anchor = anchor.New(deps.Browser, deps.Cloud, cfg.Anchor.Patterns, "", deps.Link.MAC, deps.Logger)
	d.machine = connstate.NewMachine(d.machineConfig(), deps.Clock.Mono())
	return d
}

func (d *Device) machineConfig() connstate.Config {
	return connstate.Config{
		NoWiFiRetry:          d.cfg.Timing.NoWiFiRetry,
		DisconnectedRetry:    d.cfg.Timing.DisconnectedRetry,
		Browse:               d.cfg.Timing.Browse,
		MaxReconnectFailures: d.cfg.Timing.MaxReconnectFailures,
	}
}

// Boot loads the credentials and runs the first connection attempt.
//
// Without credentials the device starts its access point and stays in
// provisioning until a /get request stores some. A failed access point,
// an unreadable store or a failed first association return a *Reboot.
func (d *Device) Boot(ctx context.Context) error {
	creds, err := d.session.Load(ctx)
	if errors.Is(err, session.ErrNotProvisioned) {
		return d.bootProvisioning(ctx)
	}
	if err != nil {
		d.logger.Error("loading credentials failed", "error", err)
		d.requestReboot("store unreadable", false)
		return d.finishReboot(ctx)
	}

	d.deviceID = creds.DeviceID
	d.anchor.SetDeviceID(creds.DeviceID)
	if d.tracker != nil {
		d.tracker.SetIdentity(status.Identity{
			CompanyName: creds.CompanyName,
			DeviceID:    creds.DeviceID,
			Model:       creds.Model,
			Version:     d.cfg.Device.Version,
			Hostname:    d.session.Hostname(),
		})
	}
	d.publishSystem("STARTUP", "")
	d.logger.Info("booting", "device_id", creds.DeviceID, "company", creds.CompanyName, "ssid", creds.SSID)

	err = d.session.Connect(ctx, false)
	switch {
	case errors.Is(err, session.ErrFirstAssociation):
		d.requestReboot("first association failed", false)
		return d.finishReboot(ctx)
	case err != nil:
		d.logger.Warn("boot connection attempt failed", "error", err, "local_mode", d.session.LocalMode())
	}

	now := d.clock.Mono()
	d.machine = connstate.NewMachine(d.machineConfig(), now)
	d.lastBootRetry = now
	d.report()
	return nil
}

func (d *Device) bootProvisioning(ctx context.Context) error {
	d.provisioning = true
	ssid := d.cfg.WiFi.AccessPointID
	d.logger.Info("no credentials stored, entering provisioning", "ap_ssid", ssid)
	d.publishSystem("STARTUP", "provisioning")
	if err := d.link.StartAccessPoint(ssid); err != nil {
		d.logger.Error("access point failed", "error", err)
		d.requestReboot("access point failed", false)
		return d.finishReboot(ctx)
	}
	d.report()
	return nil
}

// Provisioning reports whether the device booted without credentials.
func (d *Device) Provisioning() bool { return d.provisioning }

// Hostname is the name announced on the local network.
func (d *Device) Hostname() string {
	if d.provisioning {
		return d.cfg.WiFi.AccessPointID
	}
	return d.session.Hostname()
}

// Notify is signalled when a scheduled event fires, so the runner can
// cycle without waiting for the next tick.
func (d *Device) Notify() <-chan struct{} { return d.sched.Notify() }

// Shutdown stops timers and the stream and announces reason. It must be
// called from the control loop once cycling has stopped.
func (d *Device) Shutdown(reason string) {
	if d.rebooted || d.stopped {
		return
	}
	d.stopped = true
	d.sched.Stop()
	d.session.Close()
	d.publishSystem("SHUTDOWN", reason)
	d.logger.Info("shut down", "reason", reason)
}

// State returns the connection state.
func (d *Device) State() connstate.State { return d.machine.State() }

// RegisterCommandCallback installs fn to receive applied remote commands.
func (d *Device) RegisterCommandCallback(fn CommandCallback) {
	d.onCommand = fn
}

// ReadReference returns the last known value of ref.
func (d *Device) ReadReference(ref string) (iomap.Value, bool) {
	return d.registry.Read(ref)
}

// WriteReference sets ref from the host application. An output pin is
// written once and the value is queued for upload. Reserved references
// schedule a reboot instead.
func (d *Device) WriteReference(ref string, v iomap.Value) error {
	if d.interceptReserved(ref) {
		return nil
	}
	if err := d.registry.Write(ref, v); err != nil {
		return err
	}
	d.enqueue(ref, v, iomap.SourceLocal)
	d.publishSample(ref, v, iomap.SourceLocal)
	return nil
}

// Do runs fn on the control loop during the next cycle and waits for it.
// It is the only Device method safe to call from other goroutines.
func (d *Device) Do(ctx context.Context, fn func(ctx context.Context)) error {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case d.calls <- c:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Device) runCalls(ctx context.Context) {
	for {
		select {
		case c := <-d.calls:
			c.fn(ctx)
			close(c.done)
		default:
			return
		}
	}
}

// requestReboot records a reboot to run at the end of the cycle. An
// erasing request wins over a plain one.
func (d *Device) requestReboot(reason string, erase bool) {
	if d.reboot != nil && (d.reboot.Erase || !erase) {
		return
	}
	d.logger.Warn("reboot requested", "reason", reason, "erase", erase)
	d.reboot = &Reboot{Reason: reason, Erase: erase}
}

// finishReboot performs the requested reboot's side effects once and
// returns it.
func (d *Device) finishReboot(ctx context.Context) error {
	if d.rebooted {
		return d.reboot
	}
	d.rebooted = true
	if d.reboot.Erase {
		if err := d.store.Erase(ctx); err != nil {
			d.logger.Error("erasing credentials failed", "error", err)
		}
		d.registry.Clear()
	}
	d.sched.Stop()
	d.session.Close()
	d.publishSystem("REBOOT", d.reboot.Reason)
	return d.reboot
}

func (d *Device) interceptReserved(ref string) bool {
	switch ref {
	case iomap.RefRestart:
		d.requestReboot("restart command", false)
		return true
	case iomap.RefReset:
		d.requestReboot("reset command", true)
		return true
	}
	return false
}

// applySettings reconciles declarations and replaces the schedule, so a
// repeated verification never duplicates events.
func (d *Device) applySettings(resp *cloud.VerifyResponse) error {
	regErr := d.registry.Reconcile(session.Decls(resp))
	schedErr := d.sched.Replace(session.Events(resp))
	if schedErr != nil {
		schedErr = fmt.Errorf("schedule: %w", schedErr)
	}
	d.logger.Info("settings applied", "refs", d.registry.Len(), "events", d.sched.Len())
	return errors.Join(regErr, schedErr)
}

// applyLatest seeds values from the cloud. A null value becomes 0.
func (d *Device) applyLatest(values []cloud.Latest) {
	for _, l := range values {
		if l.Ref == "" || iomap.IsReserved(l.Ref) {
			continue
		}
		v := l.Value
		if !v.IsSet() {
			v = iomap.Int(0)
		}
		if err := d.registry.Write(l.Ref, v); err != nil {
			d.logger.Warn("seeding latest value failed", "ref", l.Ref, "error", err)
		}
	}
}

func (d *Device) enqueue(ref string, v iomap.Value, src iomap.Source) {
	ok := d.queue.Push(iomap.Sample{
		Ref:    ref,
		Value:  v,
		Time:   d.clock.Now(),
		Mono:   d.clock.Mono(),
		Source: src,
	})
	if !ok {
		d.logger.Debug("ingress queue full, sample dropped", "ref", ref, "source", src.String())
	}
}

func (d *Device) publishSample(ref string, v iomap.Value, src iomap.Source) {
	if d.publisher == nil {
		return
	}
	err := d.publisher.PublishSample(mqtt.SampleEvent{
		DeviceID:  d.deviceID,
		Timestamp: d.clock.Now(),
		Ref:       ref,
		Value:     v.String(),
		Source:    src.String(),
	})
	if err != nil {
		d.logger.Debug("mqtt sample publish failed", "ref", ref, "error", err)
	}
}

func (d *Device) publishSystem(event, reason string) {
	if d.publisher == nil {
		return
	}
	ev := mqtt.SystemEvent{
		DeviceID:  d.deviceID,
		Timestamp: d.clock.Now(),
		Event:     event,
		Reason:    reason,
		Retained:  true,
	}
	if d.tracker != nil {
		ev.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), event, reason)
	}
	if err := d.publisher.PublishSystem(ev); err != nil {
		d.logger.Warn("mqtt system publish failed", "event", event, "error", err)
	}
}
