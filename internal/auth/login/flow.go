package login

import (
	"context"

	"authcore/internal/audit"
	authModels "authcore/internal/auth/models"
	"authcore/internal/crypto"
	mfaModels "authcore/internal/mfa/models"
	"authcore/internal/platform/tracer"
	"authcore/internal/ratelimit/service/requestlimit"
	dErrors "authcore/pkg/domain-errors"
	"authcore/pkg/validation"
)

// Begin checks primary credentials. Users without a second factor get a
// session; enrolled users get a signed challenge token for CompleteTwoFactor,
// and sms/email users are sent a code.
func (s *Service) Begin(ctx context.Context, req *Request) (result *Result, err error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "request is required")
	}
	req.Normalize()
	if err := validation.Validate(req); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanLoginBegin)
	defer func() { span.End(err) }()

	limitKey := req.IPAddress
	if limitKey == "" {
		limitKey = req.Identifier
	}
	if err := s.checkRate(ctx, limitKey, endpointLogin, req.Identifier); err != nil {
		return nil, err
	}
	if err := s.checkLocked(ctx, req.Identifier); err != nil {
		return nil, err
	}

	identity, authErr := s.authenticator.Authenticate(ctx, req.Identifier, req.Secret)
	s.recordRate(ctx, limitKey, endpointLogin, req, authErr == nil)
	if authErr != nil {
		if !dErrors.HasCode(authErr, dErrors.CodeUnauthorized) {
			return nil, dErrors.Wrap(authErr, dErrors.CodeInternal, "credential check failed")
		}
		return nil, s.failAttempt(ctx, req.Identifier, outcomeBadCredentials, "invalid credentials")
	}

	if s.twoFactor != nil {
		st, err := s.twoFactor.GetStatus(ctx, identity.UserID)
		if err != nil {
			return nil, err
		}
		if st.Enabled {
			span.SetAttributes(tracer.String(tracer.AttrMethod, string(st.Method)))
			return s.challenge(ctx, req, identity, st.Method)
		}
	}

	session, err := s.finish(ctx, req.Identifier, identity, req.DeviceFingerprint, req.UserAgent, req.IPAddress)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.String(tracer.AttrOutcome, outcomeSuccess))
	return &Result{Session: session}, nil
}

// CompleteTwoFactor verifies the second factor for a challenge issued by
// Begin and creates the session. Wrong codes count toward the lockout of the
// login identifier.
func (s *Service) CompleteTwoFactor(ctx context.Context, req *TwoFactorRequest) (result *Result, err error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "request is required")
	}
	if err := validation.Validate(req); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanLoginComplete,
		tracer.Bool("backup_code", req.BackupCode),
	)
	defer func() { span.End(err) }()

	claims, ok := s.parseChallenge(ctx, req.ChallengeToken)
	if !ok {
		s.outcome(outcomeChallengeRejected)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "login challenge is invalid or expired")
	}
	if s.twoFactor == nil {
		return nil, dErrors.New(dErrors.CodeTwoFactorNotEnabled, "two-factor authentication is not configured")
	}
	if err := s.checkRate(ctx, claims.limitKey(), endpointTwoFactor, claims.Identifier); err != nil {
		return nil, err
	}
	if err := s.checkLocked(ctx, claims.Identifier); err != nil {
		return nil, err
	}

	var verifyErr error
	if req.BackupCode {
		_, verifyErr = s.twoFactor.UseBackupCode(ctx, claims.UserID, req.Code)
	} else {
		verifyErr = s.twoFactor.Verify(ctx, claims.UserID, req.Code)
	}
	s.recordRate(ctx, claims.limitKey(), endpointTwoFactor, &Request{
		UserAgent: claims.UserAgent, IPAddress: claims.IPAddress,
	}, verifyErr == nil)
	if verifyErr != nil {
		if dErrors.HasCode(verifyErr, dErrors.CodeInvalidTwoFactorCode) ||
			dErrors.HasCode(verifyErr, dErrors.CodeBackupCodeNotFound) {
			if lockErr := s.failAttempt(ctx, claims.Identifier, outcomeBadSecondFactor, ""); dErrors.HasCode(lockErr, dErrors.CodeAccountLocked) {
				return nil, lockErr
			}
		}
		return nil, verifyErr
	}

	identity := &Identity{
		UserID:      claims.UserID,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		PhotoURL:    claims.PhotoURL,
	}
	session, err := s.finish(ctx, claims.Identifier, identity, claims.DeviceFingerprint, claims.UserAgent, claims.IPAddress)
	if err != nil {
		return nil, err
	}
	return &Result{Session: session}, nil
}

func (s *Service) checkRate(ctx context.Context, key, endpoint, identifier string) error {
	if s.limiter == nil {
		return nil
	}
	res := s.limiter.Check(ctx, key, endpoint)
	if res.Allowed {
		return nil
	}
	s.outcome(outcomeRateLimited)
	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventLoginBlocked,
		"identifier", identifier,
		"reason", "rate_limited",
		"decision", audit.DecisionDenied,
	)
	return dErrors.NewRetryable(dErrors.CodeRateLimitExceeded, "too many attempts, try again later", res.RetryAfter)
}

func (s *Service) recordRate(ctx context.Context, key, endpoint string, req *Request, success bool) {
	if s.limiter == nil {
		return
	}
	s.limiter.Record(ctx, requestlimit.RecordInput{
		Identifier: key,
		Endpoint:   endpoint,
		Success:    success,
		UserAgent:  req.UserAgent,
		IP:         req.IPAddress,
	})
}

func (s *Service) checkLocked(ctx context.Context, identifier string) error {
	if !s.lockout.IsLocked(ctx, identifier) {
		return nil
	}
	s.outcome(outcomeLocked)
	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventLoginBlocked,
		"identifier", identifier,
		"reason", "account_locked",
		"decision", audit.DecisionDenied,
	)
	return s.lockout.LockedError(ctx, identifier)
}

// failAttempt counts a failure and returns the error to surface. An attempt
// that trips the lock reports the lock.
func (s *Service) failAttempt(ctx context.Context, identifier, outcome, msg string) error {
	s.outcome(outcome)
	res := s.lockout.RecordFailedAttempt(ctx, identifier)
	if res.IsLocked {
		return dErrors.NewRetryable(dErrors.CodeAccountLocked, "too many failed attempts, account temporarily locked", res.RetryAfter)
	}
	return dErrors.New(dErrors.CodeUnauthorized, msg)
}

func (s *Service) challenge(ctx context.Context, req *Request, identity *Identity, method mfaModels.Method) (*Result, error) {
	claims := challengeClaims{
		Purpose:           challengePurpose,
		Identifier:        req.Identifier,
		UserID:            identity.UserID,
		Email:             identity.Email,
		DisplayName:       identity.DisplayName,
		PhotoURL:          identity.PhotoURL,
		DeviceFingerprint: req.DeviceFingerprint,
		UserAgent:         req.UserAgent,
		IPAddress:         req.IPAddress,
	}
	token, err := crypto.CreateSecureToken(ctx, claims.payload(), s.config.ChallengeSecret, s.config.ChallengeTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue login challenge")
	}
	if method.UsesChallenge() {
		if err := s.twoFactor.SendChallenge(ctx, identity.UserID); err != nil {
			return nil, err
		}
	}
	s.outcome(outcomeChallenge)
	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventTwoFactorChallengeSent,
		"identifier", req.Identifier,
		"user_id", identity.UserID,
		"method", string(method),
		"reason", "login",
		"decision", audit.DecisionInfo,
	)
	return &Result{TwoFactorRequired: true, Method: method, ChallengeToken: token}, nil
}

func (s *Service) finish(ctx context.Context, identifier string, identity *Identity, fingerprint, userAgent, ip string) (*authModels.SessionResult, error) {
	session, err := s.sessions.CreateSession(ctx, &authModels.CreateSessionRequest{
		UserID:            identity.UserID,
		Email:             identity.Email,
		DisplayName:       identity.DisplayName,
		PhotoURL:          identity.PhotoURL,
		DeviceFingerprint: fingerprint,
		UserAgent:         userAgent,
		IPAddress:         ip,
	})
	if err != nil {
		return nil, err
	}
	s.lockout.RecordSuccessfulAttempt(ctx, identifier)
	s.outcome(outcomeSuccess)
	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventLoginSucceeded,
		"identifier", identifier,
		"user_id", identity.UserID,
		"session_id", session.SessionID,
		"decision", audit.DecisionAllowed,
	)
	return session, nil
}
