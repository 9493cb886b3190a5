// Package web provides the local HTTP server of the remoteio daemon: the
// monitor page, peer relay messages, access-point provisioning and metrics.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sweeney/remoteio/internal/anchor"
	"github.com/sweeney/remoteio/internal/device"
	"github.com/sweeney/remoteio/internal/iomap"
	"github.com/sweeney/remoteio/internal/logging"
	"github.com/sweeney/remoteio/internal/status"
	"github.com/sweeney/remoteio/internal/store"
)

const maxBodyBytes = 16 << 10

// Backend is the device side of the local routes. Every method is
// answered on the control loop and blocks until it has run.
type Backend interface {
	HandlePeer(ctx context.Context, in anchor.Inbound) (anchor.Reply, error)
	Provision(ctx context.Context, creds store.Config) error
	FactoryReset(ctx context.Context) error
	Write(ctx context.Context, ref string, v iomap.Value) error
}

// Server serves the local routes over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	backend    Backend
	metrics    http.Handler
	logger     *logging.Logger
}

// New creates a Server. metricsHandler may be nil to disable /metrics.
func New(addr string, tracker *status.Tracker, backend Backend, metricsHandler http.Handler, logger *logging.Logger) *Server {
	s := &Server{
		tracker: tracker,
		backend: backend,
		metrics: metricsHandler,
		logger:  logger.With("component", "web"),
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(corsMiddleware)

	r.Get("/", s.handleSetup)
	r.Get("/get", s.handleProvision)

	r.Get("/monitor", s.handleMonitor)
	r.Get("/monitor-data", s.handleMonitorData)
	r.Get("/monitor-reset", s.handleReset)
	r.Post("/monitor-reset", s.handleReset)

	r.Post("/post-message", s.handlePostMessage)
	r.Post("/io/{ref}", s.handleWrite)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server, letting in-flight replies
// finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware lets monitor pages served elsewhere poll the device.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // the peer may already be gone
	json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(msg)) //nolint:errcheck
}

// handleSetup serves the credentials form. A provisioned device sends the
// visitor to the monitor instead.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	if !snap.Connection.Provisioning {
		http.Redirect(w, r, "/monitor", http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderSetup(w, snap)
}

func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	creds := store.Config{
		SSID:        q.Get("ssid"),
		Password:    q.Get("password"),
		CompanyName: q.Get("companyName"),
		DeviceID:    q.Get("deviceId"),
	}
	if creds.SSID == "" || creds.Password == "" || creds.CompanyName == "" || creds.DeviceID == "" {
		writeText(w, http.StatusBadRequest, "missing parameters")
		return
	}
	err := s.backend.Provision(r.Context(), creds)
	if errors.Is(err, device.ErrNotProvisioning) {
		s.logger.Warn("provisioning rejected, credentials already stored", "remote", r.RemoteAddr)
		writeText(w, http.StatusNotFound, "not provisioning")
		return
	}
	if err != nil {
		s.logger.Error("provisioning failed", "error", err)
		writeText(w, http.StatusInternalServerError, "saving credentials failed")
		return
	}
	writeText(w, http.StatusOK, "credentials received, rebooting to connect")
}

func (s *Server) handleMonitor(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderMonitor(w, s.tracker.Snapshot())
}

func (s *Server) handleMonitorData(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot())) //nolint:errcheck
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.FactoryReset(r.Context()); err != nil {
		writeText(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeText(w, http.StatusOK, "credentials erased, rebooting")
}

type messageReply struct {
	Msg string `json:"msg"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, messageReply{Msg: "invalid json"})
		return
	}
	from, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		from = r.RemoteAddr
	}
	reply, err := s.backend.HandlePeer(r.Context(), anchor.Inbound{From: from, Body: body})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, messageReply{Msg: err.Error()})
		return
	}
	code := reply.Status
	if code == 0 {
		code = http.StatusOK
	}
	writeJSON(w, code, messageReply{Msg: reply.Msg})
}

// decodeBody reads a JSON object keeping numbers exact.
func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errors.New("empty body")
	}
	return body, nil
}

// handleWrite sets a reference from the local network. The value is read
// from the "value" form field or, failing that, the raw body.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	raw := r.FormValue("value")
	if raw == "" {
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(http.MaxBytesReader(w, r.Body, maxBodyBytes)); err == nil {
			raw = string(bytes.TrimSpace(buf.Bytes()))
		}
	}
	if raw == "" {
		writeText(w, http.StatusBadRequest, "missing value")
		return
	}

	err := s.backend.Write(r.Context(), ref, iomap.ParseValue(raw))
	switch {
	case err == nil:
		writeText(w, http.StatusOK, "ok")
	case errors.Is(err, iomap.ErrUnknownRef):
		writeText(w, http.StatusNotFound, err.Error())
	case errors.Is(err, iomap.ErrNotNumeric):
		writeText(w, http.StatusBadRequest, err.Error())
	default:
		writeText(w, http.StatusServiceUnavailable, err.Error())
	}
}
