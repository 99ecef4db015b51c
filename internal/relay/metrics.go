package relay

import (
	"github.com/prometheus/client_golang/prometheus"

	"ecsrelay/internal/gate"
)

// Metrics holds the relay's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	decisions     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	errors        *prometheus.CounterVec
}

// NewMetrics registers the relay collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ecsrelay",
			Name:      "decisions_total",
			Help:      "Gate decisions by action and rule.",
		}, []string{"action", "rule"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ecsrelay",
			Name:      "notifications_total",
			Help:      "Alert deliveries by result.",
		}, []string{"result"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ecsrelay",
			Name:      "errors_total",
			Help:      "Failed evaluations by kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.notifications, m.errors)
	}
	return m
}

func (m *Metrics) observeDecision(d gate.Decision) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(d.Action.String(), string(d.Rule)).Inc()
}

func (m *Metrics) observeDelivery(ok bool) {
	if m == nil {
		return
	}
	result := "sent"
	if !ok {
		result = "failed"
		m.errors.WithLabelValues("delivery").Inc()
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) observeError(kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}
