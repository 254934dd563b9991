package dashboard

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/localmcp/localmcp/internal/probe"
)

// Metrics instruments probing and the log stream. Each Metrics owns its own
// registry so tests never collide on the process-wide default.
type Metrics struct {
	reg *prometheus.Registry

	endpointUp    *prometheus.GaugeVec
	probeRounds   *prometheus.CounterVec
	renders       prometheus.Counter
	streamClients prometheus.Gauge
}

// NewMetrics creates and registers the dashboard metric set.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		endpointUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "localmcp_endpoint_up",
			Help: "Last probe outcome per endpoint (1 healthy, 0 unhealthy).",
		}, []string{"kind", "name"}),
		probeRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "localmcp_probe_rounds_total",
			Help: "Completed probe rounds by origin (render, status, stream).",
		}, []string{"origin"}),
		renders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "localmcp_dashboard_renders_total",
			Help: "Dashboard page renders.",
		}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "localmcp_log_stream_clients",
			Help: "Currently connected log stream clients.",
		}),
	}
	m.reg.MustRegister(m.endpointUp, m.probeRounds, m.renders, m.streamClients)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// roundDone counts one completed probe round for the given origin.
func (m *Metrics) roundDone(origin string) {
	m.probeRounds.WithLabelValues(origin).Inc()
}

// observeStatuses updates the per-endpoint health gauge from probe results.
func (m *Metrics) observeStatuses(kind string, statuses []probe.Status) {
	for _, st := range statuses {
		m.setUp(kind, st.Name, st.Healthy)
	}
}

func (m *Metrics) setUp(kind, name string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	m.endpointUp.WithLabelValues(kind, name).Set(v)
}
