package service

import (
	"context"

	"authcore/internal/audit"
	"authcore/internal/mfa/models"
	"authcore/internal/platform/tracer"
	dErrors "authcore/pkg/domain-errors"
	"authcore/pkg/requestcontext"
)

// Disable removes every two-factor record of userID. confirmation must be a
// currently valid code or an unused backup code.
func (s *Service) Disable(ctx context.Context, userID, confirmation string) (err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanTwoFactorDisable,
		tracer.String(tracer.AttrUserHash, tracer.HashSubject(userID)),
	)
	defer func() { span.End(err) }()

	now := requestcontext.Now(ctx)
	var method models.Method
	confirmed := false
	err = s.withUser(userID, func() error {
		st, err := s.requireEnabled(ctx, userID)
		if err != nil {
			return err
		}
		method = st.Method
		confirmed, err = s.checkCode(ctx, userID, st.Method, confirmation, now)
		if err != nil {
			return err
		}
		if !confirmed {
			confirmed, _, err = s.consumeBackupCode(ctx, userID, confirmation)
			if err != nil {
				return err
			}
		}
		if !confirmed {
			return nil
		}
		if err := s.store.DeleteAll(ctx, userID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove two-factor records")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !confirmed {
		audit.Log(ctx, s.logger, s.auditPublisher, audit.EventTwoFactorFailed,
			"user_id", userID,
			"method", string(method),
			"reason", "disable_confirmation_invalid",
			"decision", audit.DecisionDenied,
		)
		return dErrors.New(dErrors.CodeInvalidTwoFactorCode, "confirmation code is invalid")
	}

	if s.metrics != nil {
		s.metrics.IncrementDisabled()
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventTwoFactorDisabled,
		"user_id", userID,
		"method", string(method),
		"decision", audit.DecisionInfo,
	)
	return nil
}

// GetStatus returns the user's two-factor state. Users who never enrolled
// get a disabled Status, not an error.
func (s *Service) GetStatus(ctx context.Context, userID string) (*models.Status, error) {
	return s.loadStatus(ctx, userID)
}

// IsEnabled reports whether userID must pass a second factor. Store failures
// are logged and reported as enabled so a degraded store never skips 2FA.
func (s *Service) IsEnabled(ctx context.Context, userID string) bool {
	st, err := s.loadStatus(ctx, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "two-factor status unavailable", "error", err)
		return true
	}
	return st.Enabled
}
