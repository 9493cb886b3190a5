// Package session owns the Wi-Fi association, the cloud verification
// handshake and the single streaming session.
//
// Connect runs the full attempt: associate, first-association self-test,
// verify until accepted, persist changed settings, apply them, seed
// latest values and open the stream. Service keeps the stream alive and
// performs the connection/joinRoom handshake. Every method is called from
// the control loop.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/remoteio/internal/clock"
	"github.com/sweeney/remoteio/internal/cloud"
	"github.com/sweeney/remoteio/internal/config"
	"github.com/sweeney/remoteio/internal/logging"
	"github.com/sweeney/remoteio/internal/store"
	"github.com/sweeney/remoteio/internal/stream"
	"github.com/sweeney/remoteio/internal/wifi"
)

// Stream is the streaming session client. *stream.Client satisfies it.
type Stream interface {
	Open(rawURL string) error
	IsOpen() bool
	Connected() bool
	Send(name string, args ...any) error
	Pump() int
	OnEvent(h stream.Handler)
	Close()
}

// Handlers receive session output on the control loop.
type Handlers struct {
	// Settings is called with every accepted or fallback settings payload.
	Settings func(resp *cloud.VerifyResponse) error
	// Latest seeds reference values after verification.
	Latest func(values []cloud.Latest)
	// Event delivers a server event.
	Event func(ev stream.Event)
}

// Options are the static parameters of a Manager.
type Options struct {
	Timing  config.TimingConfig
	Cloud   config.CloudConfig
	Model   string
	Version string
}

// Deps are the collaborators of a Manager.
type Deps struct {
	Link   wifi.Link
	Cloud  *cloud.Client
	Stream Stream
	Store  store.Store
	Clock  clock.Clock
	Logger *logging.Logger

	// Sleep waits between polls. Defaults to a context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Manager is the session manager.
type Manager struct {
	opts     Options
	link     wifi.Link
	cloud    *cloud.Client
	stream   Stream
	store    store.Store
	clock    clock.Clock
	logger   *logging.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	handlers Handlers

	creds store.Config

	socketHost      string
	authenticated   bool
	greeted         bool
	joined          bool
	localMode       bool
	settingsApplied bool
	disconnectSent  bool
	lastJoin        time.Duration
	lastOpen        time.Duration
	lastState       string
}

// New creates a Manager. Call Load before Connect.
func New(opts Options, deps Deps) *Manager {
	m := &Manager{
		opts:   opts,
		link:   deps.Link,
		cloud:  deps.Cloud,
		stream: deps.Stream,
		store:  deps.Store,
		clock:  deps.Clock,
		logger: deps.Logger.With("component", "session"),
		sleep:  deps.Sleep,
	}
	if m.sleep == nil {
		m.sleep = sleepContext
	}
	m.lastJoin = -opts.Timing.JoinRetry
	m.lastOpen = -opts.Timing.JoinRetry
	m.stream.OnEvent(m.onStream)
	return m
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SetHandlers installs the output callbacks.
func (m *Manager) SetHandlers(h Handlers) {
	m.handlers = h
}

// Load reads the stored credentials.
func (m *Manager) Load(ctx context.Context) (store.Config, error) {
	creds, err := m.store.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return store.Config{}, ErrNotProvisioned
	}
	if err != nil {
		return store.Config{}, err
	}
	if !creds.Provisioned() {
		return creds, ErrNotProvisioned
	}
	if creds.Model == "" {
		creds.Model = m.opts.Model
	}
	m.creds = creds
	return creds, nil
}

// Credentials returns the loaded credentials.
func (m *Manager) Credentials() store.Config { return m.creds }

// Hostname is the name the device announces on the network.
func (m *Manager) Hostname() string {
	return "niot-" + m.creds.DeviceID
}

// LinkUp reports whether the station link is up.
func (m *Manager) LinkUp() bool { return m.link.Up() }

// Authenticated reports whether a token was obtained since the last
// disconnect.
func (m *Manager) Authenticated() bool { return m.authenticated }

// Joined reports whether the room join succeeded on the open stream.
func (m *Manager) Joined() bool { return m.joined }

// LocalMode reports whether the device runs on fallback settings.
func (m *Manager) LocalMode() bool { return m.localMode }

// VerifyState is the state string of the last verification response.
func (m *Manager) VerifyState() string { return m.lastState }

// Connect performs one full connection attempt.
//
// When debounced is true every wait is bounded by the debounce window;
// otherwise by the boot association window. A failed attempt leaves the
// session unestablished for the caller to retry later. If verification
// fails and stored settings are usable, they are applied and the manager
// enters local mode; Connect still returns the verification error.
func (m *Manager) Connect(ctx context.Context, debounced bool) error {
	window := m.opts.Timing.BootAssociation
	if debounced {
		window = m.opts.Timing.Debounce
	}
	start := m.clock.Mono()

	m.Close()
	if err := m.link.Disassociate(); err != nil {
		m.logger.Debug("disassociate failed", "error", err)
	}
	if err := m.link.SetHostname(m.Hostname()); err != nil {
		m.logger.Debug("set hostname failed", "error", err)
	}

	if err := m.associate(ctx, start, window); err != nil {
		return err
	}

	resp, err := m.authenticate(ctx, start, window)
	if err != nil {
		m.fallback(ctx)
		return err
	}
	m.accept(ctx, resp)
	return nil
}

func (m *Manager) associate(ctx context.Context, start, window time.Duration) error {
	if err := m.link.Associate(ctx, m.creds.SSID, m.creds.Password); err != nil {
		m.logger.Warn("associate failed", "ssid", m.creds.SSID, "error", err)
	}

	for !m.link.Up() {
		elapsed := m.clock.Mono() - start
		if !m.creds.SSIDAuth && elapsed >= m.opts.Timing.FirstAssociation {
			m.logger.Error("first association failed, erasing credentials", "ssid", m.creds.SSID)
			if err := m.store.Erase(ctx); err != nil {
				return fmt.Errorf("%w: erase: %v", ErrFirstAssociation, err)
			}
			return ErrFirstAssociation
		}
		if elapsed >= window {
			if err := m.link.Disassociate(); err != nil {
				m.logger.Debug("disassociate failed", "error", err)
			}
			return ErrAssociationTimeout
		}
		if err := m.sleep(ctx, m.opts.Timing.LinkPoll); err != nil {
			return err
		}
	}

	if !m.creds.SSIDAuth {
		m.creds.SSIDAuth = true
		if err := m.store.Save(ctx, m.creds); err != nil {
			m.logger.Warn("persisting association flag failed", "error", err)
		}
	}
	m.logger.Info("link up", "ssid", m.creds.SSID, "ip", m.link.LocalIP())
	return nil
}

func (m *Manager) authenticate(ctx context.Context, start, window time.Duration) (*cloud.VerifyResponse, error) {
	var lastErr error
	for {
		resp, err := m.verify(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if m.clock.Mono()-start >= window {
			return nil, fmt.Errorf("%w: %w", ErrAuthTimeout, lastErr)
		}
		if err := m.sleep(ctx, m.opts.Timing.AuthRetry); err != nil {
			return nil, err
		}
	}
}

func (m *Manager) verify(ctx context.Context) (*cloud.VerifyResponse, error) {
	resp, err := m.cloud.Verify(ctx, cloud.VerifyRequest{
		CompanyName:       m.creds.CompanyName,
		DeviceID:          m.creds.DeviceID,
		MAC:               m.link.MAC(),
		IPAddress:         m.link.LocalIP(),
		Model:             m.creds.Model,
		Version:           m.opts.Version,
		SettingsTimestamp: m.creds.SettingsTimestamp,
	})
	if err != nil {
		m.logger.Warn("verify failed", "error", err)
		return nil, err
	}
	m.lastState = resp.State
	if !resp.Accepted() {
		m.logger.Warn("verify rejected", "state", resp.State)
		return nil, fmt.Errorf("%w: %q", ErrRejected, resp.State)
	}
	return resp, nil
}

// accept installs an accepted verification response.
func (m *Manager) accept(ctx context.Context, resp *cloud.VerifyResponse) {
	if resp.SettingsTimestamp != m.creds.SettingsTimestamp || !m.creds.HasSettings() {
		m.persistSettings(ctx, resp)
	}

	m.cloud.SetToken(resp.Token)
	m.socketHost = resp.SocketHost()
	if m.socketHost == "" {
		m.socketHost = hostOf(m.opts.Cloud.BaseURL)
	}
	m.authenticated = true
	m.localMode = false
	m.logger.Info("verified", "socket_host", m.socketHost)

	m.applySettings(resp)

	if latest, err := m.cloud.LatestData(ctx, m.creds.CompanyName, m.creds.DeviceID); err != nil {
		m.logger.Warn("fetch latest data failed", "error", err)
	} else if m.handlers.Latest != nil {
		m.handlers.Latest(latest)
	}

	m.open()
}

func (m *Manager) persistSettings(ctx context.Context, resp *cloud.VerifyResponse) {
	raw, err := json.Marshal(resp)
	if err != nil {
		m.logger.Warn("encoding settings failed", "error", err)
		return
	}
	// The token is per session and is never persisted.
	var stripped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &stripped); err == nil {
		delete(stripped, "token")
		if b, err := json.Marshal(stripped); err == nil {
			raw = b
		}
	}
	m.creds.Settings = raw
	m.creds.SettingsTimestamp = resp.SettingsTimestamp
	m.creds.SettingsSavedAt = m.clock.Now()
	if err := m.store.Save(ctx, m.creds); err != nil {
		m.logger.Warn("persisting settings failed", "error", err)
		return
	}
	m.logger.Info("settings persisted", "timestamp", resp.SettingsTimestamp)
}

func (m *Manager) applySettings(resp *cloud.VerifyResponse) {
	m.settingsApplied = true
	if m.handlers.Settings == nil {
		return
	}
	if err := m.handlers.Settings(resp); err != nil {
		m.logger.Warn("applying settings", "error", err)
	}
}

// fallback applies the last persisted settings once, unless they are older
// than the configured maximum age.
func (m *Manager) fallback(ctx context.Context) {
	if m.settingsApplied || !m.creds.HasSettings() {
		return
	}
	if maxAge := m.opts.Timing.LocalFallbackMaxAge; maxAge > 0 && m.clock.Synced() && !m.creds.SettingsSavedAt.IsZero() {
		if age := m.clock.Now().Sub(m.creds.SettingsSavedAt); age > maxAge {
			m.logger.Warn("stored settings too old for local mode", "age", age.Round(time.Second), "max_age", maxAge)
			return
		}
	}
	var resp cloud.VerifyResponse
	if err := json.Unmarshal(m.creds.Settings, &resp); err != nil {
		m.logger.Warn("stored settings unreadable", "error", err)
		return
	}
	m.localMode = true
	m.logger.Info("entering local mode", "timestamp", m.creds.SettingsTimestamp)
	m.applySettings(&resp)
}

func (m *Manager) open() {
	m.lastOpen = m.clock.Mono()
	path := "/socket.io/?token=" + m.cloud.Token() + "&EIO=4"
	u := stream.URL(m.socketHost, m.opts.Cloud.SocketPort, path, m.opts.Cloud.SocketTLS)
	if err := m.stream.Open(u); err != nil {
		m.logger.Warn("opening stream failed", "host", m.socketHost, "error", err)
		return
	}
	m.greeted = false
	m.joined = false
	m.disconnectSent = false
}

// Service pumps the stream and drives the join handshake: a "connection"
// event carrying the token, then "joinRoom" every JoinRetry until a send
// succeeds.
func (m *Manager) Service() {
	m.stream.Pump()
	if !m.authenticated {
		return
	}
	now := m.clock.Mono()
	if !m.stream.IsOpen() {
		if now-m.lastOpen >= m.opts.Timing.JoinRetry {
			m.open()
		}
		return
	}
	if !m.stream.Connected() {
		return
	}
	if !m.greeted {
		query := map[string]any{"Query": map[string]string{"token": m.cloud.Token()}}
		if err := m.stream.Send("connection", query); err != nil {
			m.logger.Warn("sending connection event failed", "error", err)
			return
		}
		m.greeted = true
	}
	if !m.joined && now-m.lastJoin >= m.opts.Timing.JoinRetry {
		m.lastJoin = now
		if err := m.stream.Send("joinRoom"); err != nil {
			m.logger.Warn("joinRoom failed", "error", err)
			return
		}
		m.joined = true
		m.disconnectSent = false
		m.logger.Info("joined room")
	}
}

// RequestDisconnect asks the server to end the session. It is sent once
// per joined session.
func (m *Manager) RequestDisconnect() {
	if !m.joined || m.disconnectSent {
		return
	}
	if err := m.stream.Send("disconnect"); err != nil {
		m.logger.Warn("sending disconnect failed", "error", err)
		return
	}
	m.disconnectSent = true
	m.logger.Info("disconnect requested")
}

// Close ends the stream and forgets the token.
func (m *Manager) Close() {
	m.stream.Close()
	m.dropSession()
}

func (m *Manager) dropSession() {
	m.authenticated = false
	m.joined = false
	m.greeted = false
	m.cloud.SetToken("")
}

func (m *Manager) onStream(msg stream.Message) {
	switch msg.Kind {
	case stream.KindConnect:
		m.logger.Debug("namespace connected")
	case stream.KindDisconnect:
		if m.authenticated {
			m.logger.Warn("stream disconnected")
		}
		m.dropSession()
	case stream.KindEvent:
		if m.handlers.Event != nil {
			m.handlers.Event(msg.Event)
		}
	}
}

func hostOf(rawURL string) string {
	r := cloud.VerifyResponse{ServerAddr: rawURL}
	return strings.TrimSpace(r.SocketHost())
}
