// Package cleanup runs the periodic sweep of expired security state.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"authcore/internal/platform/kvstore"
)

const defaultInterval = 5 * time.Minute

// Sweeper removes expired records and reports how many it dropped.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Result summarizes one cleanup run.
type Result struct {
	ExpiredSessions   int
	DrainedBuckets    int
	ExpiredLockouts   int
	ExpiredChallenges int
	PurgedEntries     int
	Duration          time.Duration
}

// Total is the number of records removed across all sweeps.
func (r *Result) Total() int {
	return r.ExpiredSessions + r.DrainedBuckets + r.ExpiredLockouts + r.ExpiredChallenges + r.PurgedEntries
}

// Service sweeps sessions, rate-limit buckets, lockouts and two-factor
// challenges on a fixed interval.
type Service struct {
	sessions   Sweeper
	rateLimits Sweeper
	lockouts   Sweeper
	twoFactor  Sweeper
	store      kvstore.Purger
	interval   time.Duration
	logger     *slog.Logger
	metrics    *Metrics
}

type Option func(*Service)

// WithInterval overrides the interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithStore also purges expired entries the backend keeps on disk.
func WithStore(p kvstore.Purger) Option {
	return func(s *Service) {
		s.store = p
	}
}

func New(sessions, rateLimits, lockouts, twoFactor Sweeper, opts ...Option) (*Service, error) {
	if sessions == nil || rateLimits == nil || lockouts == nil || twoFactor == nil {
		return nil, errors.New("sessions, rateLimits, lockouts and twoFactor sweepers are required")
	}
	svc := &Service{
		sessions:   sessions,
		rateLimits: rateLimits,
		lockouts:   lockouts,
		twoFactor:  twoFactor,
		interval:   defaultInterval,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Start runs cleanup periodically until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "cleanup_failed",
					"error", err,
					"duration_ms", res.Duration.Milliseconds(),
				)
				continue
			}
			s.logger.InfoContext(ctx, "cleanup_completed",
				"sessions", res.ExpiredSessions,
				"rate_limit_buckets", res.DrainedBuckets,
				"lockouts", res.ExpiredLockouts,
				"two_factor_challenges", res.ExpiredChallenges,
				"store_entries", res.PurgedEntries,
				"duration_ms", res.Duration.Milliseconds(),
			)
		case <-ctx.Done():
			s.logger.Info("cleanup worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce performs every sweep once. A failing sweep does not stop the
// others; errors are joined.
func (s *Service) RunOnce(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}
	var errs []error

	sweep := func(name string, sw Sweeper, dst *int) {
		n, err := sw.SweepExpired(ctx)
		*dst = n
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", name, err))
		}
	}
	sweep("sessions", s.sessions, &res.ExpiredSessions)
	sweep("rate limits", s.rateLimits, &res.DrainedBuckets)
	sweep("lockouts", s.lockouts, &res.ExpiredLockouts)
	sweep("two-factor challenges", s.twoFactor, &res.ExpiredChallenges)

	if s.store != nil {
		n, err := s.store.PurgeExpired(ctx)
		res.PurgedEntries = n
		if err != nil {
			errs = append(errs, fmt.Errorf("purge store: %w", err))
		}
	}

	res.Duration = time.Since(start)
	err := errors.Join(errs...)
	if s.metrics != nil {
		s.metrics.observe(res, err)
	}
	return res, err
}
