package cloud

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/remoteio/internal/iomap"
)

func TestVerify(t *testing.T) {
	var got VerifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/devices/verify", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{
			"state": "accepted",
			"token": "tok",
			"serverAddr": "https://socket.example:5000",
			"settingsTimestamp": "1700000000",
			"gpio": [{"ref": "relay", "pin": 5, "type": "OUTPUT"}],
			"events": [{"actions": [{"ref": "relay", "value": "1"}], "targetTimestamp": 1700000100, "repeat": 30000}]
		}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/", srv.Client())
	resp, err := c.Verify(context.Background(), VerifyRequest{
		CompanyName: "acme", DeviceID: "dev1", MAC: "aa:bb", IPAddress: "10.0.0.2",
		Model: "m", Version: "1.0", SettingsTimestamp: "1699999999",
	})
	require.NoError(t, err)

	assert.Equal(t, "dev1", got.DeviceID)
	assert.Equal(t, "1699999999", got.SettingsTimestamp)
	assert.True(t, resp.Accepted())
	assert.Equal(t, "tok", resp.Token)
	assert.Equal(t, "socket.example", resp.SocketHost())
	require.Len(t, resp.GPIO, 1)
	assert.Equal(t, 5, resp.GPIO[0].Pin)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, int64(30000), resp.Events[0].Repeat)
	assert.Equal(t, "1", resp.Events[0].Actions[0].Value.String())
}

func TestVerify_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"state":"rejected"}`)
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, srv.Client()).Verify(context.Background(), VerifyRequest{})
	require.NoError(t, err)
	assert.False(t, resp.Accepted())
}

func TestVerify_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client()).Verify(context.Background(), VerifyRequest{})
	assert.ErrorIs(t, err, ErrStatus)
}

func TestLatestData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/devices/getdata/acme corp/dev1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		io.WriteString(w, `[
			{"ref": "relay", "data": {"value": "1"}},
			{"ref": "tank", "data": {"value": null}},
			{"ref": "temp", "data": {"value": 21.5}}
		]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	_, err := c.LatestData(context.Background(), "acme corp", "dev1")
	require.ErrorIs(t, err, ErrNoToken)

	c.SetToken("tok")
	latest, err := c.LatestData(context.Background(), "acme corp", "dev1")
	require.NoError(t, err)
	assert.Equal(t, []Latest{
		{Ref: "relay", Value: iomap.Int(1)},
		{Ref: "tank", Value: iomap.Int(0)},
		{Ref: "temp", Value: iomap.Float(21.5)},
	}, latest)
}

func TestPostDataAndBatch(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/broker/data/", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	c.SetToken("tok")
	ctx := context.Background()

	require.NoError(t, c.PostData(ctx, DataPoint{DeviceID: "dev1", Ref: "door", Value: iomap.Int(1)}))
	require.NoError(t, c.PostBatch(ctx, "dev1", []DataPoint{
		{DeviceID: "dev1", Ref: "door", Value: iomap.Int(0), Timestamp: 100},
		{Ref: "tank", Value: iomap.Float(3.5), Timestamp: 101},
	}))

	require.Len(t, bodies, 2)
	assert.JSONEq(t, `{"deviceId":"dev1","ref":"door","value":"1"}`, bodies[0])
	assert.JSONEq(t, `{"deviceId":"dev1","dataArray":[
		{"ref":"door","value":"0","timestamp":100},
		{"ref":"tank","value":"3.5","timestamp":101}]}`, bodies[1])
}

func TestSideDoor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		if msg["ipAddress"] == "10.0.0.9" {
			io.WriteString(w, `{"data":{"actived":true,"ipdest":"10.0.0.9"}}`)
			return
		}
		io.WriteString(w, `{"msg":"stored"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	sd, err := c.SideDoor(context.Background(), map[string]any{"status": "disconnected", "ipAddress": "10.0.0.9"})
	require.NoError(t, err)
	assert.Equal(t, SideDoor{Activated: true, PeerIP: "10.0.0.9"}, sd)

	sd, err = c.SideDoor(context.Background(), map[string]any{"status": "disconnected"})
	require.NoError(t, err)
	assert.False(t, sd.Activated)
}

func TestPostPeer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/post-message", r.URL.Path)
		if strings.Contains(r.Header.Get("Content-Type"), "json") {
			io.WriteString(w, `{"msg":"ok"}`)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	reply, err := NewClient("http://unused", srv.Client()).PostPeer(context.Background(), addr, map[string]string{"status": "disconnected"})
	require.NoError(t, err)
	assert.Equal(t, MsgOK, reply.Msg)
}

func TestPostPeer_ErrorKeepsReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"msg":"disconnected"}`)
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	reply, err := NewClient("", srv.Client()).PostPeer(context.Background(), addr, map[string]string{})
	assert.ErrorIs(t, err, ErrStatus)
	assert.Equal(t, MsgDisconnected, reply.Msg)
}

func TestSocketHost(t *testing.T) {
	tests := map[string]string{
		"https://socket.example:5000": "socket.example",
		"http://10.1.2.3:5000/path":   "10.1.2.3",
		"socket.example:5000":         "socket.example",
		"":                            "",
	}
	for in, want := range tests {
		r := VerifyResponse{ServerAddr: in}
		assert.Equal(t, want, r.SocketHost(), in)
	}
}
