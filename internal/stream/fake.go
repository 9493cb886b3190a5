package stream

import "encoding/json"

// Fake is an in-memory client for tests. Frames passed to Send are
// recorded as "name" or "name[args...]".
type Fake struct {
	// AutoConnect queues a namespace connect on every successful Open.
	AutoConnect bool
	// OpenError is returned by Open when set.
	OpenError error

	Sent     []string
	OpenURLs []string

	handler   Handler
	open      bool
	connected bool
	queued    []Message
}

// NewFake returns a closed fake that connects as soon as it is opened.
func NewFake() *Fake {
	return &Fake{AutoConnect: true}
}

func (f *Fake) Open(rawURL string) error {
	f.OpenURLs = append(f.OpenURLs, rawURL)
	if f.OpenError != nil {
		return f.OpenError
	}
	f.open = true
	f.connected = false
	if f.AutoConnect {
		f.queued = append(f.queued, Message{Kind: KindConnect})
	}
	return nil
}

func (f *Fake) IsOpen() bool { return f.open }

func (f *Fake) Connected() bool { return f.connected }

func (f *Fake) OnEvent(h Handler) { f.handler = h }

func (f *Fake) Close() { f.open, f.connected = false, false }

func (f *Fake) Send(name string, args ...any) error {
	if !f.open {
		return ErrClosed
	}
	frame := name
	if len(args) > 0 {
		b, err := json.Marshal(args)
		if err != nil {
			return err
		}
		frame += string(b)
	}
	f.Sent = append(f.Sent, frame)
	return nil
}

func (f *Fake) Pump() int {
	msgs := f.queued
	f.queued = nil
	for _, m := range msgs {
		switch m.Kind {
		case KindConnect:
			f.connected = true
		case KindDisconnect:
			f.open, f.connected = false, false
		}
		if f.handler != nil {
			f.handler(m)
		}
	}
	return len(msgs)
}

// Emit queues a server event with JSON-encoded arguments for the next Pump.
func (f *Fake) Emit(name string, args ...any) error {
	ev := Event{Name: name}
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return err
		}
		ev.Args = append(ev.Args, b)
	}
	f.queued = append(f.queued, Message{Kind: KindEvent, Event: ev})
	return nil
}

// Drop queues a session disconnect for the next Pump.
func (f *Fake) Drop() {
	f.queued = append(f.queued, Message{Kind: KindDisconnect})
}

// SentNamed returns how many recorded frames start with name.
func (f *Fake) SentNamed(name string) int {
	n := 0
	for _, s := range f.Sent {
		if s == name || (len(s) > len(name) && s[:len(name)] == name && s[len(name)] == '[') {
			n++
		}
	}
	return n
}
