// Package login orchestrates a sign-in: rate limit, brute-force lockout,
// primary credentials, optional second factor, then session issuance.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"authcore/internal/audit"
	"authcore/internal/auth/metrics"
	authModels "authcore/internal/auth/models"
	mfaModels "authcore/internal/mfa/models"
	"authcore/internal/platform/tracer"
	rlModels "authcore/internal/ratelimit/models"
	"authcore/internal/ratelimit/service/requestlimit"
)

const (
	endpointLogin     = "login"
	endpointTwoFactor = "two_factor"

	challengePurpose = "login_2fa"
)

// Outcome labels for the login outcome metric.
const (
	outcomeSuccess           = "success"
	outcomeRateLimited       = "rate_limited"
	outcomeLocked            = "locked"
	outcomeBadCredentials    = "invalid_credentials"
	outcomeChallenge         = "two_factor_challenge"
	outcomeBadSecondFactor   = "invalid_second_factor"
	outcomeChallengeRejected = "invalid_challenge"
)

type RateLimiter interface {
	Check(ctx context.Context, identifier, endpoint string) *rlModels.RateLimitResult
	Record(ctx context.Context, in requestlimit.RecordInput)
}

type Lockout interface {
	IsLocked(ctx context.Context, identifier string) bool
	LockedError(ctx context.Context, identifier string) error
	RecordFailedAttempt(ctx context.Context, identifier string) *rlModels.LockoutResult
	RecordSuccessfulAttempt(ctx context.Context, identifier string)
}

type TwoFactor interface {
	GetStatus(ctx context.Context, userID string) (*mfaModels.Status, error)
	SendChallenge(ctx context.Context, userID string) error
	Verify(ctx context.Context, userID, code string) error
	UseBackupCode(ctx context.Context, userID, code string) (bool, error)
}

type Sessions interface {
	CreateSession(ctx context.Context, req *authModels.CreateSessionRequest) (*authModels.SessionResult, error)
}

// Config controls challenge tokens.
type Config struct {
	// ChallengeSecret signs the token that carries a half-finished login
	// to the second-factor step.
	ChallengeSecret string
	ChallengeTTL    time.Duration
}

func DefaultConfig() Config {
	return Config{ChallengeTTL: 5 * time.Minute}
}

func (c Config) Validate() error {
	if len(c.ChallengeSecret) < 32 {
		return errors.New("challenge secret must be at least 32 characters")
	}
	if c.ChallengeTTL <= 0 {
		return fmt.Errorf("challenge ttl must be positive, got %s", c.ChallengeTTL)
	}
	return nil
}

type Service struct {
	authenticator  Authenticator
	limiter        RateLimiter
	lockout        Lockout
	twoFactor      TwoFactor
	sessions       Sessions
	config         Config
	logger         *slog.Logger
	auditPublisher audit.Emitter
	metrics        *metrics.Metrics
	tracer         tracer.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditPublisher(publisher audit.Emitter) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithRateLimiter throttles attempts per client IP, or per identifier when
// no IP is known. Without it only the lockout applies.
func WithRateLimiter(l RateLimiter) Option {
	return func(s *Service) {
		s.limiter = l
	}
}

// WithTwoFactor enables the second-factor step for enrolled users.
func WithTwoFactor(tf TwoFactor) Option {
	return func(s *Service) {
		s.twoFactor = tf
	}
}

func New(authenticator Authenticator, lockout Lockout, sessions Sessions, opts ...Option) (*Service, error) {
	if authenticator == nil {
		return nil, errors.New("authenticator is required")
	}
	if lockout == nil {
		return nil, errors.New("lockout service is required")
	}
	if sessions == nil {
		return nil, errors.New("session service is required")
	}
	svc := &Service{
		authenticator: authenticator,
		lockout:       lockout,
		sessions:      sessions,
		config:        DefaultConfig(),
		logger:        slog.Default(),
		tracer:        tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if err := svc.config.Validate(); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Service) outcome(o string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncrementLoginOutcome(o)
	switch o {
	case outcomeBadCredentials, outcomeBadSecondFactor:
		s.metrics.IncrementAuthFailures()
	}
}
