package stream

import (
	"encoding/json"
	"errors"
	"fmt"
)

var errMalformed = errors.New("stream: malformed frame")

// Engine.IO packet types. Pongs are only ever sent.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioMessage = '4'
)

// Socket.IO packet types carried in an Engine.IO message.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioConnectError = '4'
)

// decodeFrame interprets one text frame. It returns a frame to send back
// (empty for none) and, when ok is true, a message for the loop.
func decodeFrame(frame string) (reply string, msg Message, ok bool, err error) {
	if frame == "" {
		return "", Message{}, false, errMalformed
	}
	switch frame[0] {
	case eioOpen:
		// Handshake done; join the default namespace.
		return "40", Message{}, false, nil
	case eioPing:
		return "3" + frame[1:], Message{}, false, nil
	case eioClose:
		return "", Message{Kind: KindDisconnect}, true, nil
	case eioMessage:
		msg, ok, err := decodePacket(frame[1:])
		return "", msg, ok, err
	}
	return "", Message{}, false, nil
}

func decodePacket(p string) (Message, bool, error) {
	if p == "" {
		return Message{}, false, errMalformed
	}
	switch p[0] {
	case sioConnect:
		return Message{Kind: KindConnect}, true, nil
	case sioDisconnect, sioConnectError:
		return Message{Kind: KindDisconnect}, true, nil
	case sioEvent:
		ev, err := decodeEvent(p[1:])
		if err != nil {
			return Message{}, false, err
		}
		return Message{Kind: KindEvent, Event: ev}, true, nil
	}
	return Message{}, false, nil
}

// decodeEvent parses `[/nsp,][ackid]["name", args...]`.
func decodeEvent(p string) (Event, error) {
	if len(p) > 0 && p[0] == '/' {
		i := 0
		for i < len(p) && p[i] != ',' {
			i++
		}
		if i == len(p) {
			return Event{}, errMalformed
		}
		p = p[i+1:]
	}
	for len(p) > 0 && p[0] >= '0' && p[0] <= '9' {
		p = p[1:]
	}

	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(p), &parts); err != nil {
		return Event{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if len(parts) == 0 {
		return Event{}, errMalformed
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return Event{}, fmt.Errorf("%w: event name: %v", errMalformed, err)
	}
	return Event{Name: name, Args: parts[1:]}, nil
}

func encodeEvent(name string, args ...any) (string, error) {
	parts := make([]any, 0, len(args)+1)
	parts = append(parts, name)
	parts = append(parts, args...)
	data, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("encode event %q: %w", name, err)
	}
	return "42" + string(data), nil
}
