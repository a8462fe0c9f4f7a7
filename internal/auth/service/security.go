package service

import (
	"context"

	"authcore/internal/audit"
	"authcore/internal/auth/device"
	"authcore/internal/auth/models"
	"authcore/internal/platform/tracer"
	"authcore/pkg/requestcontext"
)

// CheckSessionSecurity compares the session with the caller's current
// device and reports warnings. It never blocks or mutates the session; the
// caller decides whether to ask for re-authentication.
func (s *Service) CheckSessionSecurity(ctx context.Context, sessionID, fingerprint string) (check *models.SecurityCheck, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanSessionSecurity,
		tracer.String(tracer.AttrSessionHash, tracer.HashSubject(sessionID)),
	)
	defer func() { span.End(err) }()

	session, err := s.find(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	check = &models.SecurityCheck{
		SessionID:        sessionID,
		Warnings:         []string{},
		InactiveFor:      max(now.Sub(session.LastActivity), 0),
		FingerprintMatch: device.Match(session.DeviceFingerprint, fingerprint),
	}
	if !check.FingerprintMatch {
		check.Warnings = append(check.Warnings, models.WarningFingerprintMismatch)
	}
	if check.InactiveFor > s.config.InactivityWarning {
		check.Warnings = append(check.Warnings, models.WarningLongInactivity)
	}
	if session.IsExpiredAt(now) {
		check.Warnings = append(check.Warnings, models.WarningSessionExpired)
	}
	check.Suspicious = len(check.Warnings) > 0
	span.SetAttributes(tracer.Int(tracer.AttrWarnings, len(check.Warnings)))

	if check.Suspicious {
		for _, w := range check.Warnings {
			if s.metrics != nil {
				s.metrics.IncrementSuspicious(w)
			}
		}
		audit.Log(ctx, s.logger, s.auditPublisher, audit.EventSessionSuspicious,
			"user_id", session.UserID,
			"session_id", sessionID,
			"fingerprint", fingerprint,
			"warnings", len(check.Warnings),
			"reason", check.Warnings[0],
			"decision", audit.DecisionInfo,
		)
	}
	return check, nil
}
