// Package metrics groups the Prometheus instruments exposed on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Forwarding instruments the approval-forwarding pipeline. It satisfies the
// forward.Metrics interface.
type Forwarding struct {
	Pending    prometheus.Gauge
	Deliveries *prometheus.CounterVec
	Edits      *prometheus.CounterVec
	Outcomes   *prometheus.CounterVec
}

func NewForwarding(namespace string) *Forwarding {
	return &Forwarding{
		Pending: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_approvals",
			Help:      "Number of approval requests currently awaiting a decision.",
		}),
		Deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Notification delivery attempts by channel and result.",
		}, []string{"channel", "result"}),
		Edits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_edits_total",
			Help:      "In-place message edit attempts by result.",
		}, []string{"result"}),
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_outcomes_total",
			Help:      "Approval lifecycle events by kind (requested/resolved/expired).",
		}, []string{"kind"}),
	}
}

func (m *Forwarding) Delivery(channel, result string) {
	m.Deliveries.WithLabelValues(channel, result).Inc()
}

func (m *Forwarding) Edit(result string) {
	m.Edits.WithLabelValues(result).Inc()
}

func (m *Forwarding) Outcome(kind string) {
	m.Outcomes.WithLabelValues(kind).Inc()
}

func (m *Forwarding) SetPending(n int) {
	m.Pending.Set(float64(n))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
