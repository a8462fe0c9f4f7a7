package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for two-factor operations.
type Metrics struct {
	Enrollments       *prometheus.CounterVec
	Disabled          prometheus.Counter
	Verifications     *prometheus.CounterVec
	ChallengesSent    *prometheus.CounterVec
	BackupCodesUsed   prometheus.Counter
	BackupCodeRejects prometheus.Counter
	ReplaysRejected   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Enrollments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_two_factor_enrollments_total",
			Help: "Two-factor enrollments, by method",
		}, []string{"method"}),
		Disabled: f.NewCounter(prometheus.CounterOpts{
			Name: "authcore_two_factor_disabled_total",
			Help: "Two-factor configurations removed",
		}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_two_factor_verifications_total",
			Help: "Two-factor code verifications, by method and outcome",
		}, []string{"method", "outcome"}),
		ChallengesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_two_factor_challenges_sent_total",
			Help: "Out-of-band codes delivered, by method",
		}, []string{"method"}),
		BackupCodesUsed: f.NewCounter(prometheus.CounterOpts{
			Name: "authcore_backup_codes_used_total",
			Help: "Backup codes consumed",
		}),
		BackupCodeRejects: f.NewCounter(prometheus.CounterOpts{
			Name: "authcore_backup_codes_rejected_total",
			Help: "Backup code attempts that matched no unused code",
		}),
		ReplaysRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "authcore_totp_replays_rejected_total",
			Help: "TOTP codes rejected because their time step was already used",
		}),
	}
}

func (m *Metrics) IncrementEnrollment(method string) {
	m.Enrollments.WithLabelValues(method).Inc()
}

func (m *Metrics) IncrementDisabled() {
	m.Disabled.Inc()
}

func (m *Metrics) IncrementVerification(method, outcome string) {
	m.Verifications.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) IncrementChallengeSent(method string) {
	m.ChallengesSent.WithLabelValues(method).Inc()
}

func (m *Metrics) IncrementBackupCodeUsed() {
	m.BackupCodesUsed.Inc()
}

func (m *Metrics) IncrementBackupCodeRejected() {
	m.BackupCodeRejects.Inc()
}

func (m *Metrics) IncrementReplayRejected() {
	m.ReplaysRejected.Inc()
}
