package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

const (
	eventsMetric = "vertex_signaling_events_total"
	gaugesMetric = "vertex_signaling_current"
)

var labelEscaper = strings.NewReplacer("\\", "\\\\", "\"", "\\\"", "\n", "\\n")

// PrometheusHandler serves m in the Prometheus text exposition format. Every
// counter is a sample of one metric family labelled by event, and every gauge
// a sample of a second family labelled by gauge.
func PrometheusHandler(m *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		counters := m.Snapshot()
		_, _ = fmt.Fprintf(w, "# HELP %s Signaling relay event counters.\n", eventsMetric)
		_, _ = fmt.Fprintf(w, "# TYPE %s counter\n", eventsMetric)
		for _, k := range sortedKeys(counters) {
			writeSample(w, eventsMetric, "event", k, fmt.Sprint(counters[k]))
		}

		gauges := m.GaugeSnapshot()
		if len(gauges) == 0 {
			return
		}
		_, _ = fmt.Fprintf(w, "# HELP %s Signaling relay gauges.\n", gaugesMetric)
		_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n", gaugesMetric)
		for _, k := range sortedKeys(gauges) {
			writeSample(w, gaugesMetric, "gauge", k, fmt.Sprint(gauges[k]))
		}
	})
}

func writeSample(w io.Writer, metric, label, value, sample string) {
	_, _ = fmt.Fprintf(w, "%s{%s=\"%s\"} %s\n", metric, label, labelEscaper.Replace(value), sample)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
