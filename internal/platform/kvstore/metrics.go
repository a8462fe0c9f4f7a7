package kvstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the health of the durable shadow.
type Metrics struct {
	DurableFailures *prometheus.CounterVec
	Hydrations      prometheus.Counter
}

// NewMetrics registers store metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DurableFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_store_durable_failures_total",
			Help: "Durable store operations that failed or timed out while memory stayed authoritative",
		}, []string{"op"}),
		Hydrations: f.NewCounter(prometheus.CounterOpts{
			Name: "authcore_store_hydrations_total",
			Help: "Keys loaded from the durable store after a memory miss",
		}),
	}
}
