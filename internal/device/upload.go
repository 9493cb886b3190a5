package device

import (
	"context"

	"github.com/sweeney/remoteio/internal/cloud"
	"github.com/sweeney/remoteio/internal/connstate"
	"github.com/sweeney/remoteio/internal/iomap"
	"github.com/sweeney/remoteio/internal/metrics"
)

// upload drains the ingress queue. Interrupt samples are applied to the
// registry here; the rest were applied when they were produced. The batch
// goes to the cloud when CONNECTED, through the anchor peer when
// anchored, and is discarded otherwise.
func (d *Device) upload(ctx context.Context) {
	samples := d.queue.Drain()
	dropped := d.queue.Dropped()
	d.metrics.Ingress(len(samples), dropped-d.lastDropped)
	if dropped > d.lastDropped {
		d.logger.Warn("ingress samples dropped", "count", dropped-d.lastDropped)
	}
	d.lastDropped = dropped
	d.drained += len(samples)
	if len(samples) == 0 {
		return
	}

	synced := d.clock.Synced()
	points := make([]cloud.DataPoint, 0, len(samples))
	for _, s := range samples {
		if s.Source == iomap.SourceInterrupt && !d.registry.Observe(s) {
			continue
		}
		if s.Source == iomap.SourceInterrupt || s.Source == iomap.SourcePoll {
			d.publishSample(s.Ref, s.Value, s.Source)
		}
		p := cloud.DataPoint{Ref: s.Ref, Value: s.Value}
		if synced {
			p.Timestamp = s.Time.Unix()
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return
	}

	switch {
	case d.machine.State() == connstate.Connected:
		err := d.postCloud(ctx, points)
		d.metrics.Upload(metrics.PathCloud, len(points), err)
		if err != nil {
			d.logger.Warn("upload failed", "samples", len(points), "error", err)
		}
	case d.anchor.Anchored():
		sent, err := d.relay(ctx, points)
		d.metrics.Upload(metrics.PathAnchor, sent, nil)
		d.metrics.Upload(metrics.PathAnchor, len(points)-sent, err)
	default:
		d.logger.Debug("no uplink, samples discarded", "samples", len(points))
	}
}

func (d *Device) postCloud(ctx context.Context, points []cloud.DataPoint) error {
	if len(points) == 1 {
		p := points[0]
		p.DeviceID = d.deviceID
		return d.cloud.PostData(ctx, p)
	}
	return d.cloud.PostBatch(ctx, d.deviceID, points)
}

// relay posts points one by one and stops at the first failure, which
// also drops the anchor.
func (d *Device) relay(ctx context.Context, points []cloud.DataPoint) (int, error) {
	for i, p := range points {
		if err := d.anchor.Relay(ctx, p.Ref, p.Value); err != nil {
			return i, err
		}
	}
	return len(points), nil
}
