package service

import (
	"context"
	"errors"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"authcore/internal/audit"
	"authcore/internal/crypto"
	"authcore/internal/mfa/models"
	"authcore/internal/platform/tracer"
	dErrors "authcore/pkg/domain-errors"
	"authcore/pkg/platform/sentinel"
	"authcore/pkg/requestcontext"
)

const (
	outcomeVerified = "verified"
	outcomeInvalid  = "invalid"
)

var totpOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Skew:      totpSkew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Verify checks a TOTP or delivered code. A code is accepted at most once.
func (s *Service) Verify(ctx context.Context, userID, code string) (err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanTwoFactorVerify,
		tracer.String(tracer.AttrUserHash, tracer.HashSubject(userID)),
	)
	defer func() { span.End(err) }()

	now := requestcontext.Now(ctx)
	var method models.Method
	var ok bool
	err = s.withUser(userID, func() error {
		st, err := s.requireEnabled(ctx, userID)
		if err != nil {
			return err
		}
		method = st.Method
		ok, err = s.checkCode(ctx, userID, st.Method, code, now)
		if err != nil || !ok {
			return err
		}
		st.LastUsedAt = timePtr(now)
		return s.saveStatus(ctx, userID, st)
	})
	if err != nil {
		return err
	}
	span.SetAttributes(tracer.String(tracer.AttrMethod, string(method)))

	if !ok {
		s.recordVerification(method, outcomeInvalid)
		audit.Log(ctx, s.logger, s.auditPublisher, audit.EventTwoFactorFailed,
			"user_id", userID,
			"method", string(method),
			"reason", "invalid_code",
			"decision", audit.DecisionDenied,
		)
		return dErrors.New(dErrors.CodeInvalidTwoFactorCode, "invalid verification code")
	}

	s.recordVerification(method, outcomeVerified)
	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventTwoFactorVerified,
		"user_id", userID,
		"method", string(method),
		"decision", audit.DecisionAllowed,
	)
	return nil
}

// checkCode consumes code on success. Caller holds the user lock.
func (s *Service) checkCode(ctx context.Context, userID string, method models.Method, code string, now time.Time) (bool, error) {
	if !isNumericCode(code) {
		return false, nil
	}
	if method == models.MethodTOTP {
		return s.checkTOTP(ctx, userID, code, now)
	}
	return s.checkPending(ctx, userID, code, now)
}

func (s *Service) checkTOTP(ctx context.Context, userID, code string, now time.Time) (bool, error) {
	sec, secret, err := s.decryptSecret(ctx, userID)
	if err != nil {
		return false, err
	}
	valid, err := totp.ValidateCustom(code, secret, now, totpOpts)
	if err != nil || !valid {
		return false, nil
	}
	step, ok := matchedStep(secret, code, now)
	if !ok {
		return false, nil
	}
	if step <= sec.LastUsedStep {
		if s.metrics != nil {
			s.metrics.IncrementReplayRejected()
		}
		s.logger.WarnContext(ctx, "totp code replay rejected", "step", step)
		return false, nil
	}
	sec.LastUsedStep = step
	if err := s.store.SaveSecret(ctx, userID, sec); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist totp step")
	}
	return true, nil
}

// matchedStep returns the latest time step within the skew window whose
// code equals code.
func matchedStep(secret, code string, now time.Time) (int64, bool) {
	opts := totpOpts
	opts.Skew = 0
	current := now.Unix() / totpPeriod
	var matched int64
	found := false
	for offset := int64(-totpSkew); offset <= totpSkew; offset++ {
		step := current + offset
		expected, err := totp.GenerateCodeCustom(secret, time.Unix(step*totpPeriod, 0).UTC(), opts)
		if err != nil {
			return 0, false
		}
		if crypto.SecureCompare(expected, code) {
			matched, found = step, true
		}
	}
	return matched, found
}

func (s *Service) checkPending(ctx context.Context, userID, code string, now time.Time) (bool, error) {
	pending, err := s.store.GetPending(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load pending code")
	}
	if pending.IsExpiredAt(now) {
		return false, s.deletePending(ctx, userID)
	}
	if crypto.SecureCompare(crypto.CreateHash(code, pending.Salt), pending.CodeHash) {
		return true, s.deletePending(ctx, userID)
	}

	pending.Attempts++
	if pending.Attempts >= s.config.MaxChallengeAttempts {
		return false, s.deletePending(ctx, userID)
	}
	if err := s.store.SavePending(ctx, userID, pending, pending.ExpiresAt.Sub(now)); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist pending code")
	}
	return false, nil
}

func (s *Service) deletePending(ctx context.Context, userID string) error {
	if err := s.store.DeletePending(ctx, userID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete pending code")
	}
	return nil
}

func isNumericCode(code string) bool {
	if len(code) != codeDigits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
