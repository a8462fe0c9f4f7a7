package admin

import (
	"context"
	"errors"
	"log/slog"

	"authcore/internal/audit"
	authModels "authcore/internal/auth/models"
	mfaModels "authcore/internal/mfa/models"
	rlModels "authcore/internal/ratelimit/models"
	dErrors "authcore/pkg/domain-errors"
	"authcore/pkg/validation"
)

// RateLimits is the per-namespace limiter registry.
type RateLimits interface {
	Namespaces() []string
	Status(ctx context.Context, namespace, identifier, endpoint string) (*rlModels.RateLimitStatus, error)
	Reset(ctx context.Context, namespace, identifier, endpoint string) error
}

// Lockouts is the brute-force guard.
type Lockouts interface {
	Status(ctx context.Context, identifier string) (*rlModels.LockoutStatus, error)
	Clear(ctx context.Context, identifier string) error
}

// Sessions is the session manager.
type Sessions interface {
	GetUserSessionInfo(ctx context.Context, userID string) (*authModels.UserSessionInfo, error)
	InvalidateAllUserSessions(ctx context.Context, userID string) (int, error)
	InvalidateSession(ctx context.Context, sessionID string) (bool, error)
}

// TwoFactor is the 2FA manager.
type TwoFactor interface {
	GetStatus(ctx context.Context, userID string) (*mfaModels.Status, error)
}

// AuditReader exposes the in-process audit ring buffer.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
}

// Service is the operator-facing facade over the security core. Every
// mutating call is attributed to the acting operator in the log.
type Service struct {
	rateLimits RateLimits
	lockouts   Lockouts
	sessions   Sessions
	twoFactor  TwoFactor
	audit      AuditReader
	logger     *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTwoFactor enables the 2FA status endpoint.
func WithTwoFactor(tf TwoFactor) Option {
	return func(s *Service) {
		s.twoFactor = tf
	}
}

// WithAuditReader enables the recent audit events endpoint.
func WithAuditReader(r AuditReader) Option {
	return func(s *Service) {
		s.audit = r
	}
}

func NewService(rateLimits RateLimits, lockouts Lockouts, sessions Sessions, opts ...Option) (*Service, error) {
	if rateLimits == nil || lockouts == nil || sessions == nil {
		return nil, errors.New("rate limits, lockouts and sessions are required")
	}
	s := &Service{
		rateLimits: rateLimits,
		lockouts:   lockouts,
		sessions:   sessions,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) Namespaces() []string {
	return s.rateLimits.Namespaces()
}

func (s *Service) RateLimitStatus(ctx context.Context, namespace, identifier, endpoint string) (*rlModels.RateLimitStatus, error) {
	if err := validation.Var("identifier", identifier, "required,notblank,max=255"); err != nil {
		return nil, err
	}
	return s.rateLimits.Status(ctx, namespace, identifier, endpoint)
}

func (s *Service) ResetRateLimit(ctx context.Context, actor string, req *ResetRateLimitRequest) error {
	if err := validation.Validate(req); err != nil {
		return err
	}
	if err := s.rateLimits.Reset(ctx, req.Namespace, req.Identifier, req.Endpoint); err != nil {
		return err
	}
	s.logAction(ctx, actor, "rate_limit_reset", "namespace", req.Namespace)
	return nil
}

func (s *Service) LockoutStatus(ctx context.Context, identifier string) (*rlModels.LockoutStatus, error) {
	if err := validation.Var("identifier", identifier, "required,notblank,max=255"); err != nil {
		return nil, err
	}
	return s.lockouts.Status(ctx, identifier)
}

func (s *Service) ClearLockout(ctx context.Context, actor, identifier string) error {
	if err := validation.Var("identifier", identifier, "required,notblank,max=255"); err != nil {
		return err
	}
	if err := s.lockouts.Clear(ctx, identifier); err != nil {
		return err
	}
	s.logAction(ctx, actor, "lockout_cleared")
	return nil
}

func (s *Service) UserSessions(ctx context.Context, userID string) (*authModels.UserSessionInfo, error) {
	return s.sessions.GetUserSessionInfo(ctx, userID)
}

// RevokeUserSessions signs the user out everywhere and returns how many
// sessions were removed.
func (s *Service) RevokeUserSessions(ctx context.Context, actor, userID string) (int, error) {
	n, err := s.sessions.InvalidateAllUserSessions(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logAction(ctx, actor, "user_sessions_revoked", "count", n)
	return n, nil
}

// RevokeSession removes one session. A session that no longer exists is
// CodeSessionNotFound.
func (s *Service) RevokeSession(ctx context.Context, actor, sessionID string) error {
	removed, err := s.sessions.InvalidateSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !removed {
		return dErrors.New(dErrors.CodeSessionNotFound, "session not found")
	}
	s.logAction(ctx, actor, "session_revoked")
	return nil
}

func (s *Service) TwoFactorStatus(ctx context.Context, userID string) (*mfaModels.Status, error) {
	if s.twoFactor == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "two-factor authentication is not configured")
	}
	return s.twoFactor.GetStatus(ctx, userID)
}

// RecentAuditEvents returns up to limit events, newest first.
func (s *Service) RecentAuditEvents(ctx context.Context, limit int) ([]audit.Event, error) {
	if s.audit == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "audit buffer is not configured")
	}
	return s.audit.Recent(ctx, limit)
}

func (s *Service) logAction(ctx context.Context, actor, action string, attrs ...any) {
	if actor == "" {
		actor = "unknown"
	}
	args := append([]any{"action", action, "actor", actor}, attrs...)
	s.logger.InfoContext(ctx, "admin action", args...)
}
