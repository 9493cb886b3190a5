// Package stream is a minimal Socket.IO v4 client over a WebSocket
// transport.
//
// A reader goroutine decodes Engine.IO and Socket.IO frames and answers
// pings. Everything else is queued as a Message; the control loop receives
// them by calling Pump, so handlers never run concurrently with the loop.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/remoteio/internal/logging"
)

// ErrClosed is returned by Send when no connection is open.
var ErrClosed = errors.New("stream: not connected")

const (
	writeWait = 5 * time.Second
	inboxSize = 64
)

// Kind identifies a queued message.
type Kind int

const (
	// KindConnect means the namespace connect was acknowledged.
	KindConnect Kind = iota
	// KindDisconnect means the session ended, for any reason.
	KindDisconnect
	// KindEvent carries a server event.
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindDisconnect:
		return "disconnect"
	case KindEvent:
		return "event"
	}
	return "unknown"
}

// Event is a decoded Socket.IO event: the first array element is the name,
// the rest are arguments.
type Event struct {
	Name string
	Args []json.RawMessage
}

// Message is delivered to the handler by Pump.
type Message struct {
	Kind  Kind
	Event Event
}

// Handler receives messages on the goroutine that calls Pump.
type Handler func(Message)

// Client is one Socket.IO session. Open, Send, Pump and Close are called
// from the control loop.
type Client struct {
	dialer  *websocket.Dialer
	logger  *logging.Logger
	handler Handler

	writeMu sync.Mutex
	conn    *websocket.Conn
	inbox   chan Message
	done    chan struct{}
	wg      sync.WaitGroup

	connected bool
}

// New creates a closed client.
func New(logger *logging.Logger) *Client {
	return &Client{
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.With("component", "stream"),
	}
}

// OnEvent sets the message handler.
func (c *Client) OnEvent(h Handler) {
	c.handler = h
}

// URL builds the WebSocket URL for host, port and a Socket.IO path such as
// "/socket.io/?token=abc&EIO=4".
func URL(host string, port int, path string, secure bool) string {
	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: host + ":" + strconv.Itoa(port)}
	p, q, _ := strings.Cut(path, "?")
	u.Path = p
	values, err := url.ParseQuery(q)
	if err != nil {
		values = url.Values{}
	}
	if values.Get("EIO") == "" {
		values.Set("EIO", "4")
	}
	values.Set("transport", "websocket")
	u.RawQuery = values.Encode()
	return u.String()
}

// Open dials rawURL, replacing any previous connection.
func (c *Client) Open(rawURL string) error {
	c.Close()

	conn, _, err := c.dialer.Dial(rawURL, nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	c.conn = conn
	c.inbox = make(chan Message, inboxSize)
	c.done = make(chan struct{})
	c.connected = false

	c.wg.Add(1)
	go c.readLoop(conn, c.inbox, c.done)
	return nil
}

// IsOpen reports whether a transport connection exists.
func (c *Client) IsOpen() bool {
	return c.conn != nil
}

// Connected reports whether the namespace connect was acknowledged.
func (c *Client) Connected() bool {
	return c.connected
}

// Send emits an event with the given arguments.
func (c *Client) Send(name string, args ...any) error {
	if c.conn == nil {
		return ErrClosed
	}
	frame, err := encodeEvent(name, args...)
	if err != nil {
		return err
	}
	if err := c.write(c.conn, frame); err != nil {
		return fmt.Errorf("send %q: %w", name, err)
	}
	return nil
}

// Pump delivers queued messages to the handler without blocking and
// returns how many were delivered.
func (c *Client) Pump() int {
	if c.inbox == nil {
		return 0
	}
	n := 0
	for {
		select {
		case m := <-c.inbox:
			n++
			c.apply(m)
		default:
			return n
		}
	}
}

func (c *Client) apply(m Message) {
	switch m.Kind {
	case KindConnect:
		c.connected = true
	case KindDisconnect:
		c.connected = false
		c.closeConn()
	}
	if c.handler != nil {
		c.handler(m)
	}
}

// Close ends the session. Queued messages are discarded.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.TextMessage, []byte("41"))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.closeConn()
	c.inbox = nil
	c.connected = false
}

func (c *Client) closeConn() {
	if c.conn == nil {
		return
	}
	close(c.done)
	_ = c.conn.Close()
	c.wg.Wait()
	c.conn = nil
}

func (c *Client) write(conn *websocket.Conn, frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (c *Client) readLoop(conn *websocket.Conn, inbox chan<- Message, done <-chan struct{}) {
	defer c.wg.Done()

	deliver := func(m Message) bool {
		select {
		case inbox <- m:
			return true
		case <-done:
			return false
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				c.logger.Warn("stream read failed", "error", err)
				deliver(Message{Kind: KindDisconnect})
			}
			return
		}

		reply, msg, ok, err := decodeFrame(string(data))
		if err != nil {
			c.logger.Debug("dropping malformed frame", "error", err)
			continue
		}
		if reply != "" {
			if err := c.write(conn, reply); err != nil {
				c.logger.Warn("stream write failed", "error", err)
			}
		}
		if !ok {
			continue
		}
		if !deliver(msg) {
			return
		}
		if msg.Kind == KindDisconnect {
			return
		}
	}
}
