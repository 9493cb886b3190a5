// Package metrics exposes Prometheus collectors for the control loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "remoteio"

// Upload paths.
const (
	PathCloud  = "cloud"
	PathAnchor = "anchor"
)

// Metrics holds the collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	state             *prometheus.GaugeVec
	transitions       *prometheus.CounterVec
	reconnectAttempts *prometheus.CounterVec
	reconnectFailures prometheus.Counter
	ingressDropped    prometheus.Counter
	ingressDepth      prometheus.Gauge
	uploads           *prometheus.CounterVec
	anchorProbes      prometheus.Counter
	anchored          prometheus.Gauge
	scheduleFired     prometheus.Counter
	schedulePending   prometheus.Gauge
	peerMessages      *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current connection state, 0 otherwise",
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Connection state transitions",
		}, []string{"from", "to"}),
		reconnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Full reconnection attempts by originating state",
		}, []string{"state"}),
		reconnectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_failures_total",
			Help:      "Failed reconnection attempts",
		}),
		ingressDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingress_dropped_total",
			Help:      "Samples dropped because the ingress queue was full",
		}),
		ingressDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingress_depth",
			Help:      "Samples drained in the last cycle",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Uploaded samples by path and result",
		}, []string{"path", "result"}),
		anchorProbes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anchor_probes_total",
			Help:      "Disconnected-status probes posted to peers",
		}),
		anchored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "anchored",
			Help:      "1 while a peer relays for this device",
		}),
		scheduleFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_fired_total",
			Help:      "Scheduled events applied",
		}),
		schedulePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "schedule_pending",
			Help:      "Scheduled events waiting to fire",
		}),
		peerMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_messages_total",
			Help:      "Inbound peer messages by reply status code",
		}, []string{"code"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.state,
		m.transitions,
		m.reconnectAttempts,
		m.reconnectFailures,
		m.ingressDropped,
		m.ingressDepth,
		m.uploads,
		m.anchorProbes,
		m.anchored,
		m.scheduleFired,
		m.schedulePending,
		m.peerMessages,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetState marks current as the only active state among all.
func (m *Metrics) SetState(current string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

// Transition counts one state change.
func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// Reconnect counts an attempt started in state and whether it failed.
func (m *Metrics) Reconnect(state string, failed bool) {
	if m == nil {
		return
	}
	m.reconnectAttempts.WithLabelValues(state).Inc()
	if failed {
		m.reconnectFailures.Inc()
	}
}

// Ingress records one drain.
func (m *Metrics) Ingress(drained int, dropped uint64) {
	if m == nil {
		return
	}
	m.ingressDepth.Set(float64(drained))
	if dropped > 0 {
		m.ingressDropped.Add(float64(dropped))
	}
}

// Upload counts n samples sent on path.
func (m *Metrics) Upload(path string, n int, err error) {
	if m == nil || n == 0 {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.uploads.WithLabelValues(path, result).Add(float64(n))
}

// Anchor records probe activity and the anchored flag.
func (m *Metrics) Anchor(newProbes int, anchored bool) {
	if m == nil {
		return
	}
	if newProbes > 0 {
		m.anchorProbes.Add(float64(newProbes))
	}
	if anchored {
		m.anchored.Set(1)
	} else {
		m.anchored.Set(0)
	}
}

// Schedule records fired events and the pending count.
func (m *Metrics) Schedule(fired, pending int) {
	if m == nil {
		return
	}
	if fired > 0 {
		m.scheduleFired.Add(float64(fired))
	}
	m.schedulePending.Set(float64(pending))
}

// PeerMessage counts an inbound peer message by reply code.
func (m *Metrics) PeerMessage(code string) {
	if m == nil {
		return
	}
	m.peerMessages.WithLabelValues(code).Inc()
}
