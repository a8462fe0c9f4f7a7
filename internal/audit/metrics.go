package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit publisher.
type Metrics struct {
	QueueDepth       prometheus.Gauge
	EventsDropped    prometheus.Counter
	EventsDelivered  prometheus.Counter
	DeliveryFailures prometheus.Counter
}

// NewMetrics registers audit metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "authcore_audit_queue_depth",
			Help: "Current number of events waiting in the audit publisher queue",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "authcore_audit_events_dropped_total",
			Help: "Audit events dropped because the buffer was full",
		}),
		EventsDelivered: f.NewCounter(prometheus.CounterOpts{
			Name: "authcore_audit_events_delivered_total",
			Help: "Audit events accepted by the configured sink",
		}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "authcore_audit_delivery_failures_total",
			Help: "Audit events the sink rejected",
		}),
	}
}
