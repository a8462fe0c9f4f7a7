package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for session and login operations.
type Metrics struct {
	SessionsCreated     prometheus.Counter
	SessionsRefreshed   prometheus.Counter
	SessionsExpired     prometheus.Counter
	SessionsInvalidated *prometheus.CounterVec
	SessionsEvicted     prometheus.Counter
	ActiveSessions      prometheus.Gauge
	SuspiciousSessions  *prometheus.CounterVec
	LogoutAllSessions   prometheus.Histogram
	LogoutAllDurationMs prometheus.Histogram
	LoginOutcomes       *prometheus.CounterVec
	AuthFailures        prometheus.Counter
}

// New registers auth collectors with reg. Pass prometheus.NewRegistry() in
// tests to keep them isolated.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "authcore_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsRefreshed: f.NewCounter(prometheus.CounterOpts{
			Name: "authcore_sessions_refreshed_total",
			Help: "Total number of session refreshes",
		}),
		SessionsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "authcore_sessions_expired_total",
			Help: "Total number of sessions removed after expiry",
		}),
		SessionsInvalidated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_sessions_invalidated_total",
			Help: "Total number of sessions invalidated, by reason",
		}, []string{"reason"}),
		SessionsEvicted: f.NewCounter(prometheus.CounterOpts{
			Name: "authcore_sessions_evicted_total",
			Help: "Sessions evicted because the user exceeded the session cap",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "authcore_active_sessions",
			Help: "Approximate number of live sessions in this process",
		}),
		SuspiciousSessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_suspicious_session_checks_total",
			Help: "Session security checks that produced a warning, by warning",
		}, []string{"warning"}),
		LogoutAllSessions: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "authcore_logout_all_sessions",
			Help:    "Number of sessions revoked per logout-all operation",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		LogoutAllDurationMs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "authcore_logout_all_duration_ms",
			Help:    "Duration of logout-all operations in milliseconds",
			Buckets: []float64{1, 5, 10, 50, 100, 250, 500, 1000},
		}),
		LoginOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_login_outcomes_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		AuthFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "authcore_auth_failures_total",
			Help: "Total number of authentication failures",
		}),
	}
}

func (m *Metrics) IncrementSessionsCreated() {
	m.SessionsCreated.Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) IncrementSessionsRefreshed() {
	m.SessionsRefreshed.Inc()
}

func (m *Metrics) IncrementSessionsExpired(count int) {
	m.SessionsExpired.Add(float64(count))
	m.ActiveSessions.Sub(float64(count))
}

func (m *Metrics) IncrementSessionsInvalidated(reason string, count int) {
	m.SessionsInvalidated.WithLabelValues(reason).Add(float64(count))
	m.ActiveSessions.Sub(float64(count))
}

func (m *Metrics) IncrementSessionsEvicted(count int) {
	m.SessionsEvicted.Add(float64(count))
	m.ActiveSessions.Sub(float64(count))
}

func (m *Metrics) IncrementSuspicious(warning string) {
	m.SuspiciousSessions.WithLabelValues(warning).Inc()
}

func (m *Metrics) ObserveLogoutAll(sessionCount int, durationMs float64) {
	m.LogoutAllSessions.Observe(float64(sessionCount))
	m.LogoutAllDurationMs.Observe(durationMs)
}

func (m *Metrics) IncrementLoginOutcome(outcome string) {
	m.LoginOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementAuthFailures() {
	m.AuthFailures.Inc()
}
