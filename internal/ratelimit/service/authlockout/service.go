// Package authlockout guards login identifiers against brute force.
//
// Each failed attempt increments a per-identifier counter. Reaching
// MaxLoginAttempts locks the identifier for LockoutDuration. The lock is a
// fixed window: failures while locked neither extend it nor escalate it.
// A successful login clears everything.
package authlockout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"authcore/internal/audit"
	"authcore/internal/platform/kvstore"
	"authcore/internal/ratelimit/config"
	"authcore/internal/ratelimit/metrics"
	"authcore/internal/ratelimit/models"
	dErrors "authcore/pkg/domain-errors"
	"authcore/pkg/platform/privacy"
	platformsync "authcore/pkg/platform/sync"
	"authcore/pkg/requestcontext"
)

// Reasons recorded on the locks-cleared metric.
const (
	clearReasonSuccess = "success"
	clearReasonExpired = "expired"
	clearReasonAdmin   = "admin"
)

type Service struct {
	store          kvstore.Store
	locks          *platformsync.ShardedMutex
	auditPublisher audit.Emitter
	logger         *slog.Logger
	metrics        *metrics.Metrics
	config         config.AuthLockoutConfig
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

func WithConfig(cfg config.AuthLockoutConfig) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

func New(store kvstore.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth lockout store is required")
	}

	svc := &Service{
		store:  store,
		locks:  platformsync.NewShardedMutex(),
		logger: slog.Default(),
		config: config.DefaultConfig().AuthLockout,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if err := svc.config.Validate(); err != nil {
		return nil, err
	}
	return svc, nil
}

// RecordFailedAttempt counts a failure and reports whether the identifier is
// now locked. Store failures are logged and reported as unlocked with the
// full allowance.
func (s *Service) RecordFailedAttempt(ctx context.Context, identifier string) *models.LockoutResult {
	now := requestcontext.Now(ctx)
	key := models.FailedAttemptKey(identifier)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	if s.metrics != nil {
		s.metrics.IncrementAuthFailures()
	}

	state, err := s.load(ctx, key)
	if err != nil {
		s.storeDegraded(ctx, "record_failure", err)
		return &models.LockoutResult{RemainingAttempts: s.config.MaxLoginAttempts}
	}
	if state == nil {
		state = &models.FailedAttemptState{Identifier: privacy.Mask(identifier)}
	}

	if state.IsLockedAt(now) {
		// the lock is fixed; further failures are recorded but do not extend it
		state.LastAttemptAt = now
		s.save(ctx, key, state, now)
		return lockedResult(state, now)
	}

	if state.LockExpiredAt(now) || s.windowElapsed(state, now) {
		state = &models.FailedAttemptState{Identifier: state.Identifier}
	}

	if state.Count == 0 {
		state.FirstAttemptAt = now
	}
	state.Count++
	state.LastAttemptAt = now

	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventFailedAttempt,
		"identifier", identifier,
		"attempts", state.Count,
		"max_attempts", s.config.MaxLoginAttempts,
		"decision", audit.DecisionDenied,
	)

	if state.Count >= s.config.MaxLoginAttempts {
		lockedUntil := now.Add(s.config.LockoutDuration)
		state.LockedUntil = &lockedUntil
		s.save(ctx, key, state, now)

		if s.metrics != nil {
			s.metrics.IncrementAuthLockouts()
		}
		audit.Log(ctx, s.logger, s.auditPublisher, audit.EventLockoutTriggered,
			"identifier", identifier,
			"attempts", state.Count,
			"locked_until", lockedUntil.Format(time.RFC3339),
			"lockout_seconds", int(s.config.LockoutDuration.Seconds()),
			"decision", audit.DecisionDenied,
		)
		return lockedResult(state, now)
	}

	s.save(ctx, key, state, now)
	return &models.LockoutResult{
		IsLocked:          false,
		RemainingAttempts: s.config.MaxLoginAttempts - state.Count,
	}
}

// RecordSuccessfulAttempt clears all failure state for identifier.
func (s *Service) RecordSuccessfulAttempt(ctx context.Context, identifier string) {
	key := models.FailedAttemptKey(identifier)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	state, err := s.load(ctx, key)
	if err != nil {
		s.storeDegraded(ctx, "record_success", err)
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.storeDegraded(ctx, "record_success", err)
		return
	}
	if state != nil && state.LockedUntil != nil && s.metrics != nil {
		s.metrics.IncrementLocksCleared(clearReasonSuccess)
	}
}

// IsLocked reports whether identifier is currently locked. An expired lock is
// deleted on the way out.
func (s *Service) IsLocked(ctx context.Context, identifier string) bool {
	now := requestcontext.Now(ctx)
	key := models.FailedAttemptKey(identifier)

	state, err := s.load(ctx, key)
	if err != nil {
		s.storeDegraded(ctx, "is_locked", err)
		return false
	}
	if state == nil {
		return false
	}
	if state.IsLockedAt(now) {
		return true
	}
	if state.LockExpiredAt(now) {
		s.clearExpired(ctx, key, identifier)
	}
	return false
}

// LockedError returns an account_locked error carrying the retry hint when
// identifier is locked, nil otherwise.
func (s *Service) LockedError(ctx context.Context, identifier string) error {
	status, err := s.Status(ctx, identifier)
	if err != nil || !status.IsLocked || status.LockedUntil == nil {
		return nil
	}
	retryAfter := status.LockedUntil.Sub(requestcontext.Now(ctx))
	return dErrors.NewRetryable(dErrors.CodeAccountLocked, "too many failed attempts, try again later", retryAfter)
}

// Status returns the guard state for identifier.
func (s *Service) Status(ctx context.Context, identifier string) (*models.LockoutStatus, error) {
	now := requestcontext.Now(ctx)
	key := models.FailedAttemptKey(identifier)

	state, err := s.load(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load lockout state")
	}
	status := &models.LockoutStatus{
		Identifier:        privacy.Mask(identifier),
		RemainingAttempts: s.config.MaxLoginAttempts,
	}
	if state == nil || state.LockExpiredAt(now) || s.windowElapsed(state, now) {
		return status, nil
	}

	last := state.LastAttemptAt
	status.FailedAttempts = state.Count
	status.LastAttemptAt = &last
	status.RemainingAttempts = max(s.config.MaxLoginAttempts-state.Count, 0)
	if state.IsLockedAt(now) {
		status.IsLocked = true
		status.LockedUntil = state.LockedUntil
	}
	return status, nil
}

// Clear removes all state for identifier. Used by administrators.
func (s *Service) Clear(ctx context.Context, identifier string) error {
	key := models.FailedAttemptKey(identifier)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	if err := s.store.Delete(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear lockout")
	}
	if s.metrics != nil {
		s.metrics.IncrementLocksCleared(clearReasonAdmin)
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventLockoutCleared,
		"identifier", identifier,
		"reason", clearReasonAdmin,
		"decision", audit.DecisionInfo,
	)
	return nil
}

// SweepExpired deletes expired locks and stale failure counters, refreshes
// the locked-identifiers gauge and returns how many records were removed.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	keys, err := s.store.Keys(ctx, models.FailedAttemptKeyPrefix)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list lockout records")
	}

	removed, locked := 0, 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		err := s.locks.With(key, func() error {
			state, err := s.load(ctx, key)
			if err != nil || state == nil {
				return err
			}
			if state.IsLockedAt(now) {
				locked++
				return nil
			}
			expired := state.LockExpiredAt(now)
			if !expired && !s.windowElapsed(state, now) {
				return nil
			}
			if err := s.store.Delete(ctx, key); err != nil {
				return err
			}
			if expired && s.metrics != nil {
				s.metrics.IncrementLocksCleared(clearReasonExpired)
			}
			removed++
			return nil
		})
		if err != nil {
			s.storeDegraded(ctx, "sweep", err)
		}
	}
	if s.metrics != nil {
		s.metrics.SetLockedIdentifiers(locked)
	}
	return removed, nil
}

func (s *Service) clearExpired(ctx context.Context, key, identifier string) {
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	// re-read under the lock; a concurrent failure may have started a new count
	state, err := s.load(ctx, key)
	if err != nil || state == nil || !state.LockExpiredAt(requestcontext.Now(ctx)) {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.storeDegraded(ctx, "clear_expired", err)
		return
	}
	if s.metrics != nil {
		s.metrics.IncrementLocksCleared(clearReasonExpired)
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventLockoutCleared,
		"identifier", identifier,
		"reason", clearReasonExpired,
		"decision", audit.DecisionInfo,
	)
}

// windowElapsed reports whether an unlocked counter has gone stale.
func (s *Service) windowElapsed(state *models.FailedAttemptState, now time.Time) bool {
	if s.config.AttemptWindow <= 0 || state.LockedUntil != nil {
		return false
	}
	return now.Sub(state.LastAttemptAt) > s.config.AttemptWindow
}

func (s *Service) load(ctx context.Context, key string) (*models.FailedAttemptState, error) {
	state := &models.FailedAttemptState{}
	err := kvstore.GetJSON(ctx, s.store, key, state)
	if kvstore.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

// save persists state with a TTL long enough to outlive both the lock and the
// attempt window.
func (s *Service) save(ctx context.Context, key string, state *models.FailedAttemptState, now time.Time) {
	ttl := max(s.config.AttemptWindow, s.config.LockoutDuration)
	if state.LockedUntil != nil {
		ttl = max(ttl, state.LockedUntil.Sub(now))
	}
	if err := kvstore.SetJSON(ctx, s.store, key, state, ttl); err != nil {
		s.storeDegraded(ctx, "save", err)
	}
}

func (s *Service) storeDegraded(ctx context.Context, op string, err error) {
	s.logger.WarnContext(ctx, "lockout store unavailable",
		"op", op,
		"error", err,
	)
	if s.metrics != nil {
		s.metrics.RecordStoreError(config.NamespaceAuth+"_lockout", op)
	}
}

func lockedResult(state *models.FailedAttemptState, now time.Time) *models.LockoutResult {
	return &models.LockoutResult{
		IsLocked:          true,
		RemainingAttempts: 0,
		LockedUntil:       state.LockedUntil,
		RetryAfter:        state.LockedUntil.Sub(now),
	}
}
