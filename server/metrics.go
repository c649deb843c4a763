package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"openenterprise/webota/update"
)

// Metrics holds the panel's Prometheus collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	uploads *prometheus.CounterVec
	bytes   prometheus.Gauge
	state   *prometheus.GaugeVec
	presses *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webota",
			Name:      "uploads_total",
			Help:      "Firmware uploads by outcome.",
		}, []string{"result"}),
		bytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webota",
			Name:      "upload_bytes",
			Help:      "Bytes written by the most recent upload.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "webota",
			Name:      "session_state",
			Help:      "1 for the current update session state.",
		}, []string{"state"}),
		presses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webota",
			Name:      "button_presses_total",
			Help:      "Button presses by id.",
		}, []string{"id"}),
	}
	reg.MustRegister(m.uploads, m.bytes, m.state, m.presses)
	m.setState(update.Idle)
	return m
}

// Observe records every transition of s.
func (m *Metrics) Observe(s *update.Session) {
	s.OnChange(func(st update.Status) {
		m.setState(st.State)
		m.bytes.Set(float64(st.BytesWritten))
		switch st.State {
		case update.Finalized:
			m.uploads.WithLabelValues("ok").Inc()
		case update.Failed:
			m.uploads.WithLabelValues(st.LastError.String()).Inc()
		}
	})
}

// Pressed counts a button press.
func (m *Metrics) Pressed(id string) {
	m.presses.WithLabelValues(id).Inc()
}

func (m *Metrics) setState(current update.State) {
	for _, st := range []update.State{update.Idle, update.Writing, update.Finalized, update.Failed} {
		v := 0.0
		if st == current {
			v = 1
		}
		m.state.WithLabelValues(st.String()).Set(v)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
