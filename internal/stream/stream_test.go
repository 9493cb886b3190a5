package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/remoteio/internal/logging"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		wantReply string
		wantOK    bool
		wantKind  Kind
		wantEvent string
		wantErr   bool
	}{
		{name: "open", frame: `0{"sid":"a"}`, wantReply: "40"},
		{name: "ping", frame: "2", wantReply: "3"},
		{name: "ping probe", frame: "2probe", wantReply: "3probe"},
		{name: "close", frame: "1", wantOK: true, wantKind: KindDisconnect},
		{name: "namespace connect", frame: `40{"sid":"b"}`, wantOK: true, wantKind: KindConnect},
		{name: "namespace disconnect", frame: "41", wantOK: true, wantKind: KindDisconnect},
		{name: "connect error", frame: `44{"message":"bad token"}`, wantOK: true, wantKind: KindDisconnect},
		{name: "event", frame: `42["cmd",{"ref":"relay","value":"1"}]`, wantOK: true, wantKind: KindEvent, wantEvent: "cmd"},
		{name: "event with ack id", frame: `4217["cmd",{}]`, wantOK: true, wantKind: KindEvent, wantEvent: "cmd"},
		{name: "event with namespace", frame: `42/admin,["cmd"]`, wantOK: true, wantKind: KindEvent, wantEvent: "cmd"},
		{name: "bad json", frame: `42[`, wantErr: true},
		{name: "empty", frame: "", wantErr: true},
		{name: "noop", frame: "6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, msg, ok, err := decodeFrame(tt.frame)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantReply, reply)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantKind, msg.Kind)
				assert.Equal(t, tt.wantEvent, msg.Event.Name)
			}
		})
	}
}

func TestEncodeEvent(t *testing.T) {
	frame, err := encodeEvent("connection", map[string]any{"Query": map[string]string{"token": "t"}})
	require.NoError(t, err)
	assert.Equal(t, `42["connection",{"Query":{"token":"t"}}]`, frame)

	frame, err = encodeEvent("joinRoom")
	require.NoError(t, err)
	assert.Equal(t, `42["joinRoom"]`, frame)
}

func TestURL(t *testing.T) {
	u := URL("socket.example", 5000, "/socket.io/?token=abc&EIO=4", false)
	assert.True(t, strings.HasPrefix(u, "ws://socket.example:5000/socket.io/?"), u)
	assert.Contains(t, u, "token=abc")
	assert.Contains(t, u, "EIO=4")
	assert.Contains(t, u, "transport=websocket")

	assert.True(t, strings.HasPrefix(URL("h", 443, "/socket.io/", true), "wss://h:443/"))
}

// fakeServer speaks just enough Socket.IO for the client: it completes the
// handshake, then forwards frames written to out and records frames read.
type fakeServer struct {
	out chan string
	in  chan string
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{out: make(chan string, 8), in: make(chan string, 32)}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "websocket", r.URL.Query().Get("transport"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				fs.in <- string(data)
			}
		}()

		conn.WriteMessage(websocket.TextMessage, []byte(`0{"sid":"s1","pingInterval":25000,"pingTimeout":20000}`))
		for frame := range fs.out {
			if frame == "" {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-fs.in:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func wsURL(srv *httptest.Server) string {
	host := strings.TrimPrefix(srv.URL, "http://")
	return "ws://" + host + "/socket.io/?EIO=4&transport=websocket"
}

func TestClient_Session(t *testing.T) {
	fs, srv := newFakeServer(t)

	var got []Message
	c := New(logging.Discard())
	c.OnEvent(func(m Message) { got = append(got, m) })

	require.NoError(t, c.Open(wsURL(srv)))
	defer c.Close()
	assert.True(t, c.IsOpen())

	fs.expect(t, "40")
	fs.out <- `40{"sid":"n1"}`
	require.Eventually(t, func() bool { c.Pump(); return c.Connected() }, 2*time.Second, 10*time.Millisecond)

	fs.out <- "2"
	fs.expect(t, "3")

	require.NoError(t, c.Send("joinRoom"))
	fs.expect(t, `42["joinRoom"]`)

	fs.out <- `42["command",{"ref":"relay","value":"1"}]`
	require.Eventually(t, func() bool { c.Pump(); return len(got) == 2 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, KindConnect, got[0].Kind)
	ev := got[1].Event
	assert.Equal(t, "command", ev.Name)
	require.Len(t, ev.Args, 1)
	var cmd struct{ Ref, Value string }
	require.NoError(t, json.Unmarshal(ev.Args[0], &cmd))
	assert.Equal(t, "relay", cmd.Ref)
	assert.Equal(t, "1", cmd.Value)

	fs.out <- "41"
	require.Eventually(t, func() bool { c.Pump(); return !c.IsOpen() }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, c.Connected())
	assert.Equal(t, KindDisconnect, got[len(got)-1].Kind)
	assert.ErrorIs(t, c.Send("joinRoom"), ErrClosed)
	close(fs.out)
}

func TestClient_ServerDrop(t *testing.T) {
	fs, srv := newFakeServer(t)

	var kinds []Kind
	c := New(logging.Discard())
	c.OnEvent(func(m Message) { kinds = append(kinds, m.Kind) })
	require.NoError(t, c.Open(wsURL(srv)))

	fs.expect(t, "40")
	fs.out <- ""

	require.Eventually(t, func() bool { c.Pump(); return !c.IsOpen() }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []Kind{KindDisconnect}, kinds)
}

func TestClient_SendWhenClosed(t *testing.T) {
	c := New(logging.Discard())
	assert.ErrorIs(t, c.Send("x"), ErrClosed)
	assert.Zero(t, c.Pump())
	c.Close()
}

func TestClient_OpenFails(t *testing.T) {
	c := New(logging.Discard())
	err := c.Open("ws://127.0.0.1:1/socket.io/")
	assert.Error(t, err)
	assert.False(t, c.IsOpen())
}
