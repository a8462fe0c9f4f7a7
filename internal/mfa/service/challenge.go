package service

import (
	"context"
	"time"

	"authcore/internal/audit"
	"authcore/internal/crypto"
	"authcore/internal/mfa/models"
	"authcore/internal/platform/tracer"
	dErrors "authcore/pkg/domain-errors"
	"authcore/pkg/requestcontext"
)

// SendChallenge issues a fresh code to the enrolled sms or email contact.
// Any previously issued code stops working.
func (s *Service) SendChallenge(ctx context.Context, userID string) (err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanTwoFactorChallenge,
		tracer.String(tracer.AttrUserHash, tracer.HashSubject(userID)),
	)
	defer func() { span.End(err) }()

	now := requestcontext.Now(ctx)
	return s.withUser(userID, func() error {
		st, err := s.requireEnabled(ctx, userID)
		if err != nil {
			return err
		}
		if !st.Method.UsesChallenge() {
			return dErrors.New(dErrors.CodeValidation, "method "+string(st.Method)+" does not deliver codes")
		}
		_, contact, err := s.decryptSecret(ctx, userID)
		if err != nil {
			return err
		}
		return s.issueChallenge(ctx, userID, st.Method, contact, now)
	})
}

// issueChallenge stores the hash of a new code and delivers it. Caller holds
// the user lock.
func (s *Service) issueChallenge(ctx context.Context, userID string, method models.Method, contact string, now time.Time) error {
	code, err := crypto.GenerateNumericCode(codeDigits)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate code")
	}
	salt, err := crypto.GenerateSecureRandom(16)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate code salt")
	}
	pending := &models.PendingChallenge{
		Method:    method,
		Salt:      salt,
		CodeHash:  crypto.CreateHash(code, salt),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.config.ChallengeTTL),
	}
	if err := s.store.SavePending(ctx, userID, pending, s.config.ChallengeTTL); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist pending code")
	}
	if err := s.sender.Send(ctx, method, contact, code); err != nil {
		if delErr := s.store.DeletePending(ctx, userID); delErr != nil {
			s.logger.ErrorContext(ctx, "failed to discard undelivered code", "error", delErr)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deliver verification code")
	}

	if s.metrics != nil {
		s.metrics.IncrementChallengeSent(string(method))
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventTwoFactorChallengeSent,
		"user_id", userID,
		"method", string(method),
		"contact", contact,
		"decision", audit.DecisionInfo,
	)
	return nil
}
