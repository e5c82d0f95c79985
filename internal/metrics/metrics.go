package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the session host.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Transitions      *prometheus.CounterVec
	RefreshOutcomes  *prometheus.CounterVec
	GatewayOutcomes  *prometheus.CounterVec
	TransportLatency *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thinkora_session_transitions_total",
			Help: "Session state transitions by source and target state",
		}, []string{"from", "to"}),
		RefreshOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thinkora_session_refresh_total",
			Help: "Token refresh attempts by outcome",
		}, []string{"outcome"}),
		GatewayOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thinkora_gateway_requests_total",
			Help: "Authorized requests by outcome (ok, replayed, unauthorized, failed)",
		}, []string{"outcome"}),
		TransportLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "thinkora_transport_duration_seconds",
			Help:    "Latency of token transport exchanges",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation", "outcome"}),
	}
}

func (m *Metrics) ObserveTransition(from string, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveRefresh(outcome string) {
	if m == nil {
		return
	}
	m.RefreshOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveGateway(outcome string) {
	if m == nil {
		return
	}
	m.GatewayOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTransport(operation string, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.TransportLatency.WithLabelValues(operation, outcome).Observe(time.Since(started).Seconds())
}
