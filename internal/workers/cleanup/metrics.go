package cleanup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	DurationSeconds prometheus.Histogram
	RemovedTotal    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_cleanup_runs_total",
			Help: "Cleanup runs, by status",
		}, []string{"status"}),
		DurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "authcore_cleanup_duration_seconds",
			Help:    "Duration of cleanup runs",
			Buckets: prometheus.DefBuckets,
		}),
		RemovedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_cleanup_removed_total",
			Help: "Records removed by cleanup, by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) observe(res *Result, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.DurationSeconds.Observe(res.Duration.Seconds())
	m.RemovedTotal.WithLabelValues("sessions").Add(float64(res.ExpiredSessions))
	m.RemovedTotal.WithLabelValues("rate_limit_buckets").Add(float64(res.DrainedBuckets))
	m.RemovedTotal.WithLabelValues("lockouts").Add(float64(res.ExpiredLockouts))
	m.RemovedTotal.WithLabelValues("two_factor_challenges").Add(float64(res.ExpiredChallenges))
	m.RemovedTotal.WithLabelValues("store_entries").Add(float64(res.PurgedEntries))
}
