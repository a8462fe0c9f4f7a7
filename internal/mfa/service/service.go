// Package service manages second factors: TOTP authenticator apps, codes
// delivered by sms or email, and single-use backup codes.
//
// All reads and writes for one user serialise on the user's status key, so a
// code cannot be accepted twice by concurrent verifications.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"authcore/internal/audit"
	"authcore/internal/crypto"
	"authcore/internal/mfa/metrics"
	"authcore/internal/mfa/models"
	"authcore/internal/mfa/sender"
	"authcore/internal/platform/tracer"
	dErrors "authcore/pkg/domain-errors"
	"authcore/pkg/platform/sentinel"
	platformsync "authcore/pkg/platform/sync"
)

// Store persists two-factor records.
// Error Contract: getters return sentinel.ErrNotFound when the record is missing.
type Store interface {
	GetStatus(ctx context.Context, userID string) (*models.Status, error)
	SaveStatus(ctx context.Context, userID string, st *models.Status) error
	GetSecret(ctx context.Context, userID string) (*models.Secret, error)
	SaveSecret(ctx context.Context, userID string, sec *models.Secret) error
	GetBackupCodes(ctx context.Context, userID string) (*models.BackupCodeSet, error)
	SaveBackupCodes(ctx context.Context, userID string, set *models.BackupCodeSet) error
	GetPending(ctx context.Context, userID string) (*models.PendingChallenge, error)
	SavePending(ctx context.Context, userID string, p *models.PendingChallenge, ttl time.Duration) error
	DeletePending(ctx context.Context, userID string) error
	DeleteAll(ctx context.Context, userID string) error
	ListPendingUserIDs(ctx context.Context) ([]string, error)
}

type Service struct {
	store          Store
	sender         sender.CodeSender
	locks          *platformsync.ShardedMutex
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

// WithConfig replaces the defaults. EncryptionKey must be set.
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

// WithCodeSender sets the sms/email delivery channel. Defaults to a
// sender that only logs.
func WithCodeSender(cs sender.CodeSender) Option {
	return func(s *Service) {
		if cs != nil {
			s.sender = cs
		}
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("two-factor store is required")
	}
	svc := &Service{
		store:  store,
		locks:  platformsync.NewShardedMutex(),
		config: DefaultConfig(),
		logger: slog.Default(),
		tracer: tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.sender == nil {
		svc.sender = sender.NewLogSender(svc.logger)
	}
	if err := svc.config.Validate(); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Service) withUser(userID string, fn func() error) error {
	return s.locks.With(models.StatusKey(userID), fn)
}

// loadStatus returns a zero Status for users who never enrolled.
func (s *Service) loadStatus(ctx context.Context, userID string) (*models.Status, error) {
	st, err := s.store.GetStatus(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &models.Status{}, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load two-factor status")
	}
	return st, nil
}

func (s *Service) requireEnabled(ctx context.Context, userID string) (*models.Status, error) {
	st, err := s.loadStatus(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !st.Enabled {
		return nil, dErrors.New(dErrors.CodeTwoFactorNotEnabled, "two-factor authentication is not enabled")
	}
	return st, nil
}

func (s *Service) saveStatus(ctx context.Context, userID string, st *models.Status) error {
	if err := s.store.SaveStatus(ctx, userID, st); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist two-factor status")
	}
	return nil
}

func (s *Service) encrypt(plaintext string) (*crypto.EncryptedPayload, error) {
	payload, err := crypto.EncryptWithIterations(plaintext, s.config.EncryptionKey, s.config.KDFIterations)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCryptoFailure, "failed to encrypt two-factor secret")
	}
	return payload, nil
}

// decryptSecret loads and opens the user's factor material.
func (s *Service) decryptSecret(ctx context.Context, userID string) (*models.Secret, string, error) {
	sec, err := s.store.GetSecret(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, "", dErrors.New(dErrors.CodeTwoFactorNotEnabled, "two-factor secret missing")
	}
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load two-factor secret")
	}
	res := crypto.Decrypt(sec.Payload, s.config.EncryptionKey)
	if !res.Success {
		s.logger.ErrorContext(ctx, "two-factor secret could not be decrypted", "method", string(sec.Method))
		return nil, "", dErrors.New(dErrors.CodeCryptoFailure, "failed to decrypt two-factor secret")
	}
	return sec, res.Plaintext, nil
}

func (s *Service) recordVerification(method models.Method, outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementVerification(string(method), outcome)
	}
}

func timePtr(t time.Time) *time.Time { return &t }
