package device

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/sweeney/remoteio/internal/anchor"
	"github.com/sweeney/remoteio/internal/cloud"
	"github.com/sweeney/remoteio/internal/iomap"
	"github.com/sweeney/remoteio/internal/store"
)

var (
	// ErrProvisionIncomplete is returned by Provision when a required field
	// is empty.
	ErrProvisionIncomplete = errors.New("device: ssid, password, companyName and deviceId are required")

	// ErrNotProvisioning is returned by Provision once credentials are stored.
	ErrNotProvisioning = errors.New("device: not in provisioning mode")
)

// HandlePeer answers a message posted by another device. It runs on the
// control loop; a command from our anchor is applied before returning.
func (d *Device) HandlePeer(ctx context.Context, in anchor.Inbound) (anchor.Reply, error) {
	var r anchor.Reply
	err := d.Do(ctx, func(ctx context.Context) {
		if d.provisioning {
			r = anchor.Reply{Status: http.StatusInternalServerError, Msg: cloud.MsgDisconnected}
		} else {
			r = d.anchor.HandleInbound(ctx, in, d.machine.State())
			if r.Command != nil {
				d.applyCommand(r.Command.Ref, r.Command.Value, iomap.SourcePeer)
			}
		}
		d.metrics.PeerMessage(strconv.Itoa(r.Status))
	})
	return r, err
}

// Provision stores new credentials and schedules a reboot into them. It is
// only accepted while the device is provisioning.
func (d *Device) Provision(ctx context.Context, creds store.Config) error {
	if creds.SSID == "" || creds.Password == "" || creds.CompanyName == "" || creds.DeviceID == "" {
		return ErrProvisionIncomplete
	}
	var saveErr error
	err := d.Do(ctx, func(ctx context.Context) {
		if !d.provisioning {
			saveErr = ErrNotProvisioning
			return
		}
		creds.SSIDAuth = false
		if creds.Model == "" {
			creds.Model = d.cfg.Device.Model
		}
		if saveErr = d.store.Save(ctx, creds); saveErr != nil {
			d.logger.Error("saving credentials failed", "error", saveErr)
			return
		}
		d.logger.Info("credentials provisioned", "ssid", creds.SSID, "device_id", creds.DeviceID)
		d.requestReboot("provisioned", false)
	})
	if err != nil {
		return err
	}
	return saveErr
}

// FactoryReset schedules an erase and reboot.
func (d *Device) FactoryReset(ctx context.Context) error {
	return d.Do(ctx, func(context.Context) {
		d.requestReboot("factory reset", true)
	})
}

// Write applies a value from a local caller on the control loop.
func (d *Device) Write(ctx context.Context, ref string, v iomap.Value) error {
	var writeErr error
	if err := d.Do(ctx, func(context.Context) { writeErr = d.WriteReference(ref, v) }); err != nil {
		return err
	}
	return writeErr
}
