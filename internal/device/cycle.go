package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sweeney/remoteio/internal/anchor"
	"github.com/sweeney/remoteio/internal/connstate"
	"github.com/sweeney/remoteio/internal/iomap"
	"github.com/sweeney/remoteio/internal/mqtt"
	"github.com/sweeney/remoteio/internal/session"
	"github.com/sweeney/remoteio/internal/status"
	"github.com/sweeney/remoteio/internal/stream"
)

var allStates = []string{
	connstate.Initialization.String(),
	connstate.Connected.String(),
	connstate.NoWiFi.String(),
	connstate.Disconnected.String(),
}

// OnCycle drives one iteration: queued calls, fired schedule events,
// polled inputs, the connection machine and its side effects, server
// events, the ingress drain and the reset button. It returns a *Reboot
// once a reboot was requested; the caller must stop cycling and restart
// the process after in-flight responses are written.
func (d *Device) OnCycle(ctx context.Context) error {
	if d.rebooted {
		return d.reboot
	}
	if d.stopped {
		return ErrStopped
	}
	d.runCalls(ctx)
	if !d.provisioning {
		d.runSchedule()
		d.poll()
		d.step(ctx)
		d.processEvents(ctx)
		d.upload(ctx)
		d.checkResetHold()
	}
	d.report()
	if d.reboot != nil {
		return d.finishReboot(ctx)
	}
	return nil
}

// runSchedule applies a fired event and re-arms the timer.
func (d *Device) runSchedule() {
	fired := 0
	if ev, ok := d.sched.Advance(); ok {
		fired++
		for _, a := range ev.Actions {
			if d.interceptReserved(a.Ref) {
				continue
			}
			if err := d.registry.Write(a.Ref, a.Value); err != nil {
				d.logger.Warn("scheduled write failed", "ref", a.Ref, "error", err)
				continue
			}
			d.enqueue(a.Ref, a.Value, iomap.SourceSchedule)
			d.publishSample(a.Ref, a.Value, iomap.SourceSchedule)
		}
		d.logger.Info("scheduled event fired", "actions", len(ev.Actions), "repeat", ev.Repeat)
	}
	d.sched.Arm()
	d.metrics.Schedule(fired, d.sched.Len())
}

// poll samples polled inputs whose interval elapsed and queues changes.
func (d *Device) poll() {
	for _, ref := range d.registry.PolledDue() {
		prev, _ := d.registry.Read(ref)
		v, err := d.registry.Sample(ref)
		if err != nil {
			d.logger.Debug("poll failed", "ref", ref, "error", err)
			continue
		}
		if prev.IsSet() && prev.Equal(v) {
			continue
		}
		d.enqueue(ref, v, iomap.SourcePoll)
	}
}

func (d *Device) step(ctx context.Context) {
	now := d.clock.Mono()
	plan := d.machine.Step(now, connstate.Inputs{
		LinkUp:    d.session.LinkUp(),
		Joined:    d.session.Joined(),
		LocalMode: d.session.LocalMode(),
		Anchored:  d.anchor.Anchored(),
	})
	if plan.Changed() {
		d.logger.Info("state transition", "from", plan.From.String(), "to", plan.To.String())
		d.metrics.Transition(plan.From.String(), plan.To.String())
		d.publishState(plan.From, plan.To)
	}
	if plan.To == connstate.Connected {
		d.anchor.Release()
	}

	if plan.Service {
		d.service(plan.To)
	}
	if plan.To == connstate.Initialization {
		d.retryBoot(ctx, now)
	}
	if plan.Browse {
		before := d.anchor.Probes()
		d.anchor.Browse(ctx)
		d.metrics.Anchor(d.anchor.Probes()-before, d.anchor.Anchored())
	}
	if plan.Reconnect {
		d.reconnect(ctx, plan.To)
	}
}

// disconnectRequested reports whether the disconnect reference holds 1.
// An unset reference counts as 0.
func (d *Device) disconnectRequested() bool {
	v, ok := d.registry.Read(iomap.RefDisconnect)
	if !ok {
		return false
	}
	n, numeric := v.Int()
	return numeric && n == 1
}

func (d *Device) service(state connstate.State) {
	requested := d.disconnectRequested()
	if state == connstate.Disconnected && requested {
		return
	}
	d.session.Service()
	if state == connstate.Connected && requested {
		d.session.RequestDisconnect()
	}
}

// retryBoot repeats the connection attempt while the device is stuck in
// INITIALIZATION with neither a session nor local settings.
func (d *Device) retryBoot(ctx context.Context, now time.Duration) {
	if d.session.Authenticated() || d.session.LocalMode() {
		return
	}
	if now-d.lastBootRetry < d.cfg.Timing.NoWiFiRetry {
		return
	}
	d.lastBootRetry = now
	err := d.session.Connect(ctx, true)
	d.metrics.Reconnect(connstate.Initialization.String(), err != nil)
	if errors.Is(err, session.ErrFirstAssociation) {
		d.requestReboot("first association failed", false)
		return
	}
	if err != nil {
		d.logger.Warn("boot retry failed", "error", err)
	}
}

func (d *Device) reconnect(ctx context.Context, state connstate.State) {
	d.logger.Info("reconnecting", "state", state.String(), "failures", d.machine.Failures())
	err := d.session.Connect(ctx, true)
	d.metrics.Reconnect(state.String(), err != nil)
	if errors.Is(err, session.ErrFirstAssociation) {
		d.requestReboot("first association failed", false)
		return
	}
	if err != nil {
		d.logger.Warn("reconnect failed", "state", state.String(), "error", err)
	}
	if d.machine.ReconnectDone(state, err) {
		d.requestReboot("reconnect attempts exhausted", false)
	}
}

func (d *Device) processEvents(ctx context.Context) {
	evs := d.events
	d.events = nil
	for _, ev := range evs {
		d.handleEvent(ctx, ev)
	}
}

// handleEvent applies a server command. The event name is not
// significant. A command carrying ipdest is meant for the peer anchored
// through this device and is relayed to it.
func (d *Device) handleEvent(ctx context.Context, ev stream.Event) {
	if len(ev.Args) == 0 {
		return
	}
	dec := json.NewDecoder(bytes.NewReader(ev.Args[0]))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		d.logger.Debug("ignoring event", "name", ev.Name, "error", err)
		return
	}
	ref, _ := body["ref"].(string)
	v := anchor.ValueOf(body["value"])

	if dest, ok := body["ipdest"]; ok {
		peer, _ := dest.(string)
		if err := d.anchor.RelayCommand(ctx, peer, ref, v); err != nil {
			d.logger.Warn("relaying command failed", "peer", peer, "ref", ref, "error", err)
		}
		return
	}
	d.applyCommand(ref, v, iomap.SourceRemote)
}

// applyCommand applies a cloud or peer command to the registry.
func (d *Device) applyCommand(ref string, v iomap.Value, src iomap.Source) {
	if ref == "" || d.interceptReserved(ref) {
		return
	}
	if err := d.registry.Write(ref, v); err != nil {
		d.logger.Warn("command write failed", "ref", ref, "source", src.String(), "error", err)
		return
	}
	d.logger.Debug("command applied", "ref", ref, "value", v.String(), "source", src.String())
	d.publishSample(ref, v, src)
	if d.onCommand != nil {
		d.onCommand(ref, v)
	}
}

func (d *Device) publishState(from, to connstate.State) {
	if d.publisher == nil {
		return
	}
	err := d.publisher.PublishState(mqtt.StateEvent{
		DeviceID:  d.deviceID,
		Timestamp: d.clock.Now(),
		From:      from.String(),
		To:        to.String(),
	})
	if err != nil {
		d.logger.Debug("mqtt state publish failed", "error", err)
	}
}

// checkResetHold erases and reboots when the pin of the reset reference
// stays low for the configured hold time.
func (d *Device) checkResetHold() {
	hold := d.cfg.Device.ResetHold
	if hold <= 0 {
		return
	}
	rec, ok := d.registry.Record(iomap.RefReset)
	if !ok || !rec.HasPin() || !rec.Direction.IsInput() {
		d.resetHeld = false
		return
	}
	level, err := d.pins.Read(rec.Pin)
	if err != nil || level != 0 {
		d.resetHeld = false
		return
	}
	now := d.clock.Mono()
	if !d.resetHeld {
		d.resetHeld = true
		d.resetSince = now
		return
	}
	if now-d.resetSince >= hold {
		d.requestReboot("reset button held", true)
	}
}

func (d *Device) report() {
	if d.tracker == nil {
		d.metrics.SetState(d.machine.State().String(), allStates)
		return
	}
	records := d.registry.Snapshot()
	refs := make([]status.RefInfo, 0, len(records))
	for _, r := range records {
		refs = append(refs, status.RefInfo{
			Ref:       r.Ref,
			Pin:       r.Pin,
			Direction: r.Direction.String(),
			Sampling:  r.Sampling.String(),
			Value:     r.Value.String(),
		})
	}
	creds := d.session.Credentials()
	state := d.machine.State().String()
	d.tracker.Update(status.Update{
		Network: status.NetworkInfo{
			SSID:   creds.SSID,
			IP:     d.link.LocalIP(),
			MAC:    d.link.MAC(),
			LinkUp: d.session.LinkUp(),
		},
		Connection: status.Connection{
			State:             state,
			Authenticated:     d.session.Authenticated(),
			Joined:            d.session.Joined(),
			LocalMode:         d.session.LocalMode(),
			Provisioning:      d.provisioning,
			VerifyState:       d.session.VerifyState(),
			ReconnectFailures: d.machine.Failures(),
		},
		Anchor: status.AnchorInfo{
			Anchored:     d.anchor.Anchored(),
			Anchoring:    d.anchor.Anchoring(),
			Peer:         d.anchor.Peer(),
			AnchoredPeer: d.anchor.AnchoredPeer(),
		},
		Refs: refs,
		Queue: status.QueueInfo{
			Capacity: d.queue.Cap(),
			Drained:  d.drained,
			Dropped:  d.queue.Dropped(),
		},
		SchedulePending: d.sched.Len(),
	})
	d.metrics.SetState(state, allStates)
}
