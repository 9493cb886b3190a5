package anchor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sweeney/remoteio/internal/cloud"
	"github.com/sweeney/remoteio/internal/connstate"
	"github.com/sweeney/remoteio/internal/iomap"
)

// Inbound is a message posted to /post-message by another device.
type Inbound struct {
	From string
	Body map[string]any
}

// Command is a value a peer asks this device to apply.
type Command struct {
	Ref   string
	Value iomap.Value
}

// Reply is the answer to an Inbound message.
type Reply struct {
	Status  int
	Msg     string
	Command *Command
}

func reply(status int, msg string) Reply {
	return Reply{Status: status, Msg: msg}
}

// HandleInbound processes one peer message in the given connection state.
//
//   - "status": a disconnected peer probing us. When CONNECTED it is
//     forwarded to the platform side door and answered "ok" if the platform
//     activated relaying, "received" otherwise. When not CONNECTED the peer
//     is told we are disconnected; if it was our own anchor, the anchor is
//     dropped.
//   - "ref" without "deviceId" while DISCONNECTED: our anchor relaying a
//     command. The sender becomes the anchor and the command is returned
//     for the caller to apply.
//   - "deviceId": data from a peer we relay for, forwarded to the platform
//     when CONNECTED.
func (a *Anchor) HandleInbound(ctx context.Context, in Inbound, state connstate.State) Reply {
	_, hasStatus := in.Body["status"]
	_, hasRef := in.Body["ref"]
	_, hasDevice := in.Body["deviceId"]

	switch {
	case hasStatus:
		if state != connstate.Connected {
			if in.From == a.peer {
				a.peer = ""
				a.anchored = false
			}
			return reply(http.StatusInternalServerError, cloud.MsgDisconnected)
		}
		msg := make(map[string]any, len(in.Body))
		for k, v := range in.Body {
			if k != "status" {
				msg[k] = v
			}
		}
		msg["ipAddress"] = in.From
		sd, err := a.uplink.SideDoor(ctx, msg)
		if err != nil {
			a.logger.Warn("side door failed", "peer", in.From, "error", err)
			return reply(http.StatusInternalServerError, cloud.MsgPostFailed)
		}
		if sd.Activated {
			a.anchoredPeer = sd.PeerIP
			a.anchoring = true
		}
		if a.anchoring {
			a.anchoring = false
			a.logger.Info("anchoring peer", "peer", a.anchoredPeer)
			return reply(http.StatusOK, cloud.MsgOK)
		}
		return reply(http.StatusOK, cloud.MsgReceived)

	case hasRef && !hasDevice && state == connstate.Disconnected:
		ref := fmt.Sprint(in.Body["ref"])
		a.peer = in.From
		a.anchored = true
		return Reply{
			Status:  http.StatusOK,
			Msg:     cloud.MsgOK,
			Command: &Command{Ref: ref, Value: ValueOf(in.Body["value"])},
		}

	case hasDevice:
		if state != connstate.Connected {
			return reply(http.StatusInternalServerError, cloud.MsgDisconnected)
		}
		if err := a.uplink.PostFromAnchored(ctx, in.Body); err != nil {
			a.logger.Warn("forwarding peer data failed", "peer", in.From, "error", err)
			return reply(http.StatusInternalServerError, cloud.MsgPostFailed)
		}
		return reply(http.StatusOK, cloud.MsgOK)
	}
	return reply(http.StatusInternalServerError, cloud.MsgUnhandled)
}

// ValueOf converts a decoded JSON scalar to a Value.
func ValueOf(v any) iomap.Value {
	switch t := v.(type) {
	case nil:
		return iomap.Value{}
	case string:
		return iomap.ParseValue(t)
	case json.Number:
		return iomap.ParseValue(t.String())
	case float64:
		return iomap.ParseValue(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		if t {
			return iomap.Int(1)
		}
		return iomap.Int(0)
	}
	return iomap.Text(fmt.Sprint(v))
}
