package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestSetStateIsOneHot(t *testing.T) {
	m := New()
	all := []string{"INITIALIZATION", "CONNECTED", "NO_WIFI", "DISCONNECTED"}

	m.SetState("CONNECTED", all)
	out := scrape(t, m)
	assert.Contains(t, out, `remoteio_connection_state{state="CONNECTED"} 1`)
	assert.Contains(t, out, `remoteio_connection_state{state="NO_WIFI"} 0`)

	m.SetState("NO_WIFI", all)
	out = scrape(t, m)
	assert.Contains(t, out, `remoteio_connection_state{state="CONNECTED"} 0`)
	assert.Contains(t, out, `remoteio_connection_state{state="NO_WIFI"} 1`)
}

func TestCounters(t *testing.T) {
	m := New()
	m.Transition("CONNECTED", "DISCONNECTED")
	m.Reconnect("DISCONNECTED", true)
	m.Reconnect("NO_WIFI", false)
	m.Ingress(3, 2)
	m.Upload(PathCloud, 3, nil)
	m.Upload(PathAnchor, 1, errors.New("refused"))
	m.Upload(PathCloud, 0, nil)
	m.Anchor(2, true)
	m.Schedule(1, 4)
	m.PeerMessage("200")

	out := scrape(t, m)
	for _, want := range []string{
		`remoteio_state_transitions_total{from="CONNECTED",to="DISCONNECTED"} 1`,
		`remoteio_reconnect_attempts_total{state="DISCONNECTED"} 1`,
		`remoteio_reconnect_attempts_total{state="NO_WIFI"} 1`,
		`remoteio_reconnect_failures_total 1`,
		`remoteio_ingress_dropped_total 2`,
		`remoteio_ingress_depth 3`,
		`remoteio_uploads_total{path="cloud",result="ok"} 3`,
		`remoteio_uploads_total{path="anchor",result="error"} 1`,
		`remoteio_anchor_probes_total 2`,
		`remoteio_anchored 1`,
		`remoteio_schedule_fired_total 1`,
		`remoteio_schedule_pending 4`,
		`remoteio_peer_messages_total{code="200"} 1`,
	} {
		assert.Contains(t, out, want)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SetState("CONNECTED", []string{"CONNECTED"})
	m.Transition("a", "b")
	m.Reconnect("a", true)
	m.Ingress(1, 1)
	m.Upload(PathCloud, 1, nil)
	m.Anchor(1, true)
	m.Schedule(1, 1)
	m.PeerMessage("200")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
