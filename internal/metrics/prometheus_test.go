package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler_ExposesCountersAndGauges(t *testing.T) {
	m := New()
	m.Inc(MessagesRouted)
	m.Add(ErrorsSent, 2)
	m.Inc(`quote"back\slash`)
	m.SetGauge(GaugeConnections, 3)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	for _, want := range []string{
		"# TYPE vertex_signaling_events_total counter",
		`vertex_signaling_events_total{event="errors_sent"} 2`,
		`vertex_signaling_events_total{event="messages_routed"} 1`,
		`vertex_signaling_events_total{event="quote\"back\\slash"} 1`,
		"# TYPE vertex_signaling_current gauge",
		`vertex_signaling_current{gauge="connections"} 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}

	// Samples are sorted by label value.
	if strings.Index(body, `event="errors_sent"`) > strings.Index(body, `event="messages_routed"`) {
		t.Fatalf("counters not sorted:\n%s", body)
	}
}

func TestPrometheusHandler_NilMetrics(t *testing.T) {
	rr := httptest.NewRecorder()
	PrometheusHandler(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	m.Inc(MessagesRouted)
	m.SetGauge(GaugeConnections, 1)
	if got := m.Get(MessagesRouted); got != 0 {
		t.Fatalf("Get=%d, want 0", got)
	}
	if got := len(m.Snapshot()); got != 0 {
		t.Fatalf("len(Snapshot())=%d, want 0", got)
	}
}

func TestMetrics_SnapshotIsACopy(t *testing.T) {
	m := New()
	m.Inc(ByesSent)
	snap := m.Snapshot()
	m.Inc(ByesSent)
	if snap[ByesSent] != 1 {
		t.Fatalf("snapshot mutated: %d", snap[ByesSent])
	}
	if got := m.Get(ByesSent); got != 2 {
		t.Fatalf("Get=%d, want 2", got)
	}
}
