package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RateLimitDecisions    *prometheus.CounterVec
	RateLimitStoreErrors  *prometheus.CounterVec
	RateLimitBucketsSwept *prometheus.CounterVec
	AuthFailedAttempts    prometheus.Counter
	AuthLockoutsTotal     prometheus.Counter
	AuthLocksCleared      *prometheus.CounterVec
	AuthLockedIdentifiers prometheus.Gauge
}

// New registers rate limit and lockout metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RateLimitDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_ratelimit_decisions_total",
			Help: "Rate limit checks by namespace and outcome",
		}, []string{"namespace", "outcome"}),
		RateLimitStoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_ratelimit_store_errors_total",
			Help: "Store failures tolerated by the rate limiter",
		}, []string{"namespace", "op"}),
		RateLimitBucketsSwept: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_ratelimit_buckets_swept_total",
			Help: "Buckets removed because every record aged out",
		}, []string{"namespace"}),
		AuthFailedAttempts: f.NewCounter(prometheus.CounterOpts{
			Name: "authcore_auth_failed_attempts_total",
			Help: "Failed login attempts recorded by the brute-force guard",
		}),
		AuthLockoutsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "authcore_auth_lockouts_total",
			Help: "Lockouts triggered by the brute-force guard",
		}),
		AuthLocksCleared: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_auth_locks_cleared_total",
			Help: "Lockout state cleared, by reason",
		}, []string{"reason"}),
		AuthLockedIdentifiers: f.NewGauge(prometheus.GaugeOpts{
			Name: "authcore_auth_locked_identifiers",
			Help: "Identifiers locked at the last sweep",
		}),
	}
}

func (m *Metrics) RecordDecision(namespace string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.RateLimitDecisions.WithLabelValues(namespace, outcome).Inc()
}

func (m *Metrics) RecordStoreError(namespace, op string) {
	m.RateLimitStoreErrors.WithLabelValues(namespace, op).Inc()
}

func (m *Metrics) AddBucketsSwept(namespace string, n int) {
	m.RateLimitBucketsSwept.WithLabelValues(namespace).Add(float64(n))
}

func (m *Metrics) IncrementAuthFailures() {
	m.AuthFailedAttempts.Inc()
}

func (m *Metrics) IncrementAuthLockouts() {
	m.AuthLockoutsTotal.Inc()
}

func (m *Metrics) IncrementLocksCleared(reason string) {
	m.AuthLocksCleared.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetLockedIdentifiers(count int) {
	m.AuthLockedIdentifiers.Set(float64(count))
}
