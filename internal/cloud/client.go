// Package cloud is the HTTP client for the device management platform.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sweeney/remoteio/internal/iomap"
)

// Doer sends an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Endpoint paths below the base URL.
const (
	pathVerify   = "/devices/verify"
	pathData     = "/broker/data/"
	pathSideDoor = "/devices/devicedisconnected"
	pathAnchored = "/broker/ahamdata"
	pathLatest   = "/devices/getdata/"
)

// maxBody bounds how much of a response is read.
const maxBody = 64 << 10

// Client talks to the platform API. It is used from the control loop only.
type Client struct {
	base     string
	doer     Doer
	token    string
	peerPort int
}

// NewClient creates a client for baseURL, e.g. "https://host/api".
func NewClient(baseURL string, doer Doer) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), doer: doer}
}

// SetToken sets the bearer token used by authenticated calls.
func (c *Client) SetToken(token string) { c.token = token }

// SetPeerPort sets the port of other devices' local servers. Zero or 80
// means the default HTTP port.
func (c *Client) SetPeerPort(port int) { c.peerPort = port }

// Token returns the current bearer token.
func (c *Client) Token() string { return c.token }

// Verify authenticates the device. A response with a non-accepted state is
// returned without error; the caller decides what to do with it.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	var resp VerifyResponse
	if err := c.post(ctx, c.base+pathVerify, false, req, &resp); err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	return &resp, nil
}

// LatestData fetches the last stored value of every reference. Null values
// are reported as "0".
func (c *Client) LatestData(ctx context.Context, companyName, deviceID string) ([]Latest, error) {
	if c.token == "" {
		return nil, fmt.Errorf("latest data: %w", ErrNoToken)
	}
	u := c.base + pathLatest + url.PathEscape(companyName) + "/" + url.PathEscape(deviceID)

	var entries []latestEntry
	if err := c.do(ctx, http.MethodGet, u, true, nil, &entries); err != nil {
		return nil, fmt.Errorf("latest data: %w", err)
	}
	out := make([]Latest, 0, len(entries))
	for _, e := range entries {
		v := e.Data.Value
		if !v.IsSet() || v.String() == "null" {
			v = iomap.Int(0)
		}
		out = append(out, Latest{Ref: e.Ref, Value: v})
	}
	return out, nil
}

// PostData uploads one sample.
func (c *Client) PostData(ctx context.Context, p DataPoint) error {
	if err := c.post(ctx, c.base+pathData, true, p, nil); err != nil {
		return fmt.Errorf("post data %q: %w", p.Ref, err)
	}
	return nil
}

// PostBatch uploads several samples in one request.
func (c *Client) PostBatch(ctx context.Context, deviceID string, points []DataPoint) error {
	body := batch{DeviceID: deviceID, DataArray: make([]DataPoint, len(points))}
	for i, p := range points {
		p.DeviceID = ""
		body.DataArray[i] = p
	}
	if err := c.post(ctx, c.base+pathData, true, body, nil); err != nil {
		return fmt.Errorf("post batch of %d: %w", len(points), err)
	}
	return nil
}

// SideDoor forwards a disconnected peer's status message to the platform.
func (c *Client) SideDoor(ctx context.Context, msg map[string]any) (SideDoor, error) {
	var resp sideDoorResponse
	if err := c.post(ctx, c.base+pathSideDoor, true, msg, &resp); err != nil {
		return SideDoor{}, fmt.Errorf("side door: %w", err)
	}
	if resp.Data == nil {
		return SideDoor{}, nil
	}
	return SideDoor{Activated: resp.Data.Actived, PeerIP: resp.Data.IPDest}, nil
}

// PostFromAnchored forwards a data message received from a peer this
// device is relaying for.
func (c *Client) PostFromAnchored(ctx context.Context, msg map[string]any) error {
	if err := c.post(ctx, c.base+pathAnchored, true, msg, nil); err != nil {
		return fmt.Errorf("post from anchored: %w", err)
	}
	return nil
}

// PostPeer sends a message to another device's /post-message endpoint.
// A non-2xx reply is returned as ErrStatus along with the decoded body.
func (c *Client) PostPeer(ctx context.Context, addr string, msg any) (PeerReply, error) {
	host := addr
	if c.peerPort != 0 && c.peerPort != 80 {
		host = net.JoinHostPort(addr, strconv.Itoa(c.peerPort))
	}
	var reply PeerReply
	err := c.post(ctx, "http://"+host+"/post-message", true, msg, &reply)
	if err != nil {
		return reply, fmt.Errorf("post peer %s: %w", addr, err)
	}
	return reply, nil
}

func (c *Client) post(ctx context.Context, u string, auth bool, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return c.do(ctx, http.MethodPost, u, auth, data, out)
}

func (c *Client) do(ctx context.Context, method, u string, auth bool, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if auth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var decodeErr error
	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		decodeErr = json.Unmarshal(raw, out)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	if decodeErr != nil {
		return fmt.Errorf("decode: %w", decodeErr)
	}
	return nil
}
