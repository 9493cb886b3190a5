package session

import (
	"time"

	"github.com/sweeney/remoteio/internal/cloud"
	"github.com/sweeney/remoteio/internal/iomap"
	"github.com/sweeney/remoteio/internal/schedule"
)

// Decls converts the gpio section of a verification response.
func Decls(resp *cloud.VerifyResponse) []iomap.Decl {
	out := make([]iomap.Decl, 0, len(resp.GPIO))
	for _, g := range resp.GPIO {
		if g.Ref == "" {
			continue
		}
		out = append(out, iomap.Decl{
			Ref:               g.Ref,
			Pin:               g.Pin,
			Direction:         iomap.ParseDirection(g.Type),
			Sampling:          iomap.ParseSampling(g.Mode),
			MinSampleInterval: time.Duration(g.Interval) * time.Millisecond,
		})
	}
	return out
}

// Events converts the events section of a verification response.
func Events(resp *cloud.VerifyResponse) []schedule.Event {
	out := make([]schedule.Event, 0, len(resp.Events))
	for _, e := range resp.Events {
		if len(e.Actions) == 0 {
			continue
		}
		ev := schedule.Event{
			Target: time.Unix(e.TargetTimestamp, 0),
			Repeat: time.Duration(e.Repeat) * time.Millisecond,
		}
		for _, a := range e.Actions {
			ev.Actions = append(ev.Actions, schedule.Action{Ref: a.Ref, Value: a.Value})
		}
		out = append(out, ev)
	}
	return out
}
