// Package service implements session issuance, validation, refresh and
// invalidation.
//
// State machine per session: Created -> Active -> (Refreshed)* -> Expired |
// Invalidated. Expiry is lazy: a record past ExpiresAt is removed the next
// time it is validated or swept.
//
// All mutations for one user serialise on the user's index key, so a
// concurrent validate can never resurrect a session that logout-all removed.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"authcore/internal/audit"
	"authcore/internal/auth/metrics"
	"authcore/internal/auth/models"
	"authcore/internal/platform/tracer"
	dErrors "authcore/pkg/domain-errors"
	"authcore/pkg/platform/sentinel"
	platformsync "authcore/pkg/platform/sync"
)

// sessionIDBytes is the entropy of a session id (256 bits, hex encoded).
const sessionIDBytes = 32

// SessionStore persists session records and the per-user index.
// Error Contract: Find returns sentinel.ErrNotFound when the session does not exist.
type SessionStore interface {
	Save(ctx context.Context, session *models.Session, ttl time.Duration) error
	Find(ctx context.Context, sessionID string) (*models.Session, error)
	Delete(ctx context.Context, sessionID string) error
	ListUserSessionIDs(ctx context.Context, userID string) ([]string, error)
	AddUserSession(ctx context.Context, userID, sessionID string) error
	ReplaceUserSession(ctx context.Context, userID, oldID, newID string) error
	RemoveUserSessions(ctx context.Context, userID string, sessionIDs ...string) error
	ListUserIDs(ctx context.Context) ([]string, error)
}

type Service struct {
	sessions       SessionStore
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

func New(sessions SessionStore, opts ...Option) (*Service, error) {
	if sessions == nil {
		return nil, errors.New("session store is required")
	}
	svc := &Service{
		sessions: sessions,
		locks:    platformsync.NewShardedMutex(),
		config:   DefaultConfig(),
		logger:   slog.Default(),
		tracer:   tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if err := svc.config.Validate(); err != nil {
		return nil, err
	}
	return svc, nil
}

// Config returns the active session configuration.
func (s *Service) Config() Config { return s.config }

// withUserSession loads sessionID, takes the owning user's lock, re-reads the
// record under it and runs fn. A session that disappears between the two
// reads is reported as not found.
func (s *Service) withUserSession(ctx context.Context, sessionID string, fn func(*models.Session) error) error {
	if sessionID == "" {
		return dErrors.New(dErrors.CodeSessionNotFound, "session not found")
	}
	peek, err := s.find(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.locks.With(models.UserSessionsKey(peek.UserID), func() error {
		current, err := s.find(ctx, sessionID)
		if err != nil {
			return err
		}
		return fn(current)
	})
}

func (s *Service) find(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.sessions.Find(ctx, sessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeSessionNotFound, "session not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	return session, nil
}

// storeTTL keeps a record past ExpiresAt for ExpiredRetention.
func (s *Service) storeTTL(session *models.Session, now time.Time) time.Duration {
	return session.ExpiresAt.Sub(now) + s.config.ExpiredRetention
}

func (s *Service) save(ctx context.Context, session *models.Session, now time.Time) error {
	if err := s.sessions.Save(ctx, session, s.storeTTL(session, now)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist session")
	}
	return nil
}

// remove deletes records and drops them from the user's index.
func (s *Service) remove(ctx context.Context, userID string, sessionIDs ...string) error {
	for _, id := range sessionIDs {
		if err := s.sessions.Delete(ctx, id); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete session")
		}
	}
	if err := s.sessions.RemoveUserSessions(ctx, userID, sessionIDs...); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update session index")
	}
	return nil
}
