// Package requestlimit provides sliding-window request limiting.
//
// One Service guards one namespace (auth, api, upload, comment...). Namespaces
// share the code path and differ only by key prefix and configured Limit.
//
// Usage:
//
//	limiter := registry.Auth()
//	res := limiter.Check(ctx, email, "login")
//	if !res.Allowed {
//	    // reject, res.RetryAfter tells the caller when to try again
//	}
//	...
//	limiter.Record(ctx, requestlimit.RecordInput{Identifier: email, Endpoint: "login", Success: ok})
//
// Check is read-only and Record appends, so a caller that fails between the
// two never double counts. Allow does both under one lock for middleware.
//
// The store is advisory: when it fails, Check allows and Record drops the
// write, both with a logged warning.
package requestlimit

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

const statusRecentRecords = 10

// Service enforces one namespace's sliding-window limit. Safe for concurrent use.
type Service struct {
	namespace      string
	limit          config.Limit
	store          kvstore.Store
	locks          *platformsync.ShardedMutex
	auditPublisher audit.Emitter
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// Option configures a Service instance.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditPublisher sets the security event publisher.
func WithAuditPublisher(publisher audit.Emitter) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New creates a limiter for namespace.
func New(namespace string, limit config.Limit, store kvstore.Store, opts ...Option) (*Service, error) {
	if namespace == "" {
		return nil, errors.New("namespace is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if err := limit.Validate(); err != nil {
		return nil, err
	}

	svc := &Service{
		namespace: namespace,
		limit:     limit,
		store:     store,
		locks:     platformsync.NewShardedMutex(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Namespace returns the namespace this limiter guards.
func (s *Service) Namespace() string { return s.namespace }

// Limit returns the configured window.
func (s *Service) Limit() config.Limit { return s.limit }

// RecordInput describes one completed request.
type RecordInput struct {
	Identifier string
	Endpoint   string
	Success    bool
	UserAgent  string
	IP         string
}

// Check reports whether one more request would fit in the window. It never
// mutates state and never fails: store errors degrade to allowed.
func (s *Service) Check(ctx context.Context, identifier, endpoint string) *models.RateLimitResult {
	now := requestcontext.Now(ctx)
	key := models.RateLimitKey(s.namespace, identifier, endpoint)

	bucket, err := s.load(ctx, key)
	if err != nil {
		s.storeDegraded(ctx, "check", err)
		return s.fullCapacity(now)
	}

	res := s.decide(bucket, now)
	if s.metrics != nil {
		s.metrics.RecordDecision(s.namespace, res.Allowed)
	}
	if !res.Allowed {
		audit.Log(ctx, s.logger, s.auditPublisher, audit.EventRateLimitExceeded,
			"identifier", identifier,
			"namespace", s.namespace,
			"endpoint", endpoint,
			"limit", s.limit.MaxRequests,
			"window_seconds", int(s.limit.Window.Seconds()),
			"retry_after_seconds", res.RetryAfterSeconds(),
			"decision", audit.DecisionDenied,
		)
	}
	return res
}

// Record appends a request to the bucket unless the namespace skips this
// outcome, then persists it. Failures are logged, not returned.
func (s *Service) Record(ctx context.Context, in RecordInput) {
	if s.skips(in.Success) {
		return
	}
	key := models.RateLimitKey(s.namespace, in.Identifier, in.Endpoint)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	if err := s.appendLocked(ctx, key, in); err != nil {
		s.storeDegraded(ctx, "record", err)
	}
}

// Allow checks and, when allowed, records a successful request under one lock.
func (s *Service) Allow(ctx context.Context, identifier, endpoint string) *models.RateLimitResult {
	now := requestcontext.Now(ctx)
	key := models.RateLimitKey(s.namespace, identifier, endpoint)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	bucket, err := s.load(ctx, key)
	if err != nil {
		s.storeDegraded(ctx, "allow", err)
		return s.fullCapacity(now)
	}
	res := s.decide(bucket, now)
	if s.metrics != nil {
		s.metrics.RecordDecision(s.namespace, res.Allowed)
	}
	if !res.Allowed {
		audit.Log(ctx, s.logger, s.auditPublisher, audit.EventRateLimitExceeded,
			"identifier", identifier,
			"namespace", s.namespace,
			"endpoint", endpoint,
			"limit", s.limit.MaxRequests,
			"retry_after_seconds", res.RetryAfterSeconds(),
			"decision", audit.DecisionDenied,
		)
		return res
	}
	if s.skips(true) {
		return res
	}

	in := RecordInput{Identifier: identifier, Endpoint: endpoint, Success: true}
	if err := s.appendLocked(ctx, key, in); err != nil {
		s.storeDegraded(ctx, "allow", err)
		return res
	}
	res.Remaining = max(res.Remaining-1, 0)
	return res
}

// Status returns the bucket's current view for administrators.
func (s *Service) Status(ctx context.Context, identifier, endpoint string) (*models.RateLimitStatus, error) {
	now := requestcontext.Now(ctx)
	key := models.RateLimitKey(s.namespace, identifier, endpoint)

	bucket, err := s.load(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load rate limit bucket")
	}
	res := s.decide(bucket, now)

	status := &models.RateLimitStatus{
		Namespace:     s.namespace,
		Key:           privacy.MaskIdentifier(key),
		Limit:         s.limit.MaxRequests,
		WindowSeconds: int(s.limit.Window.Seconds()),
		Count:         bucket.CountSince(now.Add(-s.limit.Window)),
		Remaining:     res.Remaining,
		ResetAt:       res.ResetAt,
		Exhausted:     !res.Allowed,
	}
	start := max(len(bucket.Records)-statusRecentRecords, 0)
	for _, r := range bucket.Records[start:] {
		r.IP = privacy.AnonymizeIP(r.IP)
		status.Recent = append(status.Recent, r)
	}
	return status, nil
}

// Reset clears the bucket for identifier and endpoint.
func (s *Service) Reset(ctx context.Context, identifier, endpoint string) error {
	key := models.RateLimitKey(s.namespace, identifier, endpoint)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	if err := s.store.Delete(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset rate limit")
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventRateLimitReset,
		"identifier", identifier,
		"namespace", s.namespace,
		"endpoint", endpoint,
		"decision", audit.DecisionInfo,
	)
	return nil
}

// SweepExpired deletes buckets in this namespace with no record inside the
// window and returns how many were removed.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	keys, err := s.store.Keys(ctx, models.RateLimitNamespacePrefix(s.namespace))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list rate limit buckets")
	}

	removed := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		err := s.locks.With(key, func() error {
			bucket, err := s.load(ctx, key)
			if err != nil {
				return err
			}
			// keys of a sibling namespace can share this prefix
			if bucket.Namespace != "" && bucket.Namespace != s.namespace {
				return nil
			}
			if bucket.CountSince(now.Add(-s.limit.Window)) > 0 {
				return nil
			}
			if err := s.store.Delete(ctx, key); err != nil {
				return err
			}
			removed++
			return nil
		})
		if err != nil {
			s.storeDegraded(ctx, "sweep", err)
		}
	}
	if s.metrics != nil && removed > 0 {
		s.metrics.AddBucketsSwept(s.namespace, removed)
	}
	return removed, nil
}

func (s *Service) decide(bucket *models.Bucket, now time.Time) *models.RateLimitResult {
	cutoff := now.Add(-s.limit.Window)
	count := bucket.CountSince(cutoff)

	resetAt := now.Add(s.limit.Window)
	if oldest, ok := bucket.OldestSince(cutoff); ok {
		resetAt = oldest.Add(s.limit.Window)
	}

	if count >= s.limit.MaxRequests {
		return &models.RateLimitResult{
			Allowed:    false,
			Limit:      s.limit.MaxRequests,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: max(resetAt.Sub(now), time.Millisecond),
		}
	}
	return &models.RateLimitResult{
		Allowed:   true,
		Limit:     s.limit.MaxRequests,
		Remaining: s.limit.MaxRequests - count,
		ResetAt:   resetAt,
	}
}

func (s *Service) appendLocked(ctx context.Context, key string, in RecordInput) error {
	now := requestcontext.Now(ctx)
	bucket, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	bucket.Namespace = s.namespace
	bucket.Identifier = privacy.Mask(in.Identifier)
	bucket.Endpoint = in.Endpoint
	bucket.Add(models.RequestRecord{
		Timestamp: now,
		Success:   in.Success,
		Endpoint:  in.Endpoint,
		UserAgent: in.UserAgent,
		IP:        in.IP,
	})
	retention := s.limit.Retention()
	bucket.Prune(now.Add(-retention))
	return kvstore.SetJSON(ctx, s.store, key, bucket, retention)
}

// load returns the stored bucket or an empty one when none exists.
func (s *Service) load(ctx context.Context, key string) (*models.Bucket, error) {
	bucket := &models.Bucket{}
	err := kvstore.GetJSON(ctx, s.store, key, bucket)
	if kvstore.IsNotFound(err) {
		return &models.Bucket{Key: key, Namespace: s.namespace}, nil
	}
	if err != nil {
		return nil, err
	}
	bucket.Key = key
	return bucket, nil
}

func (s *Service) skips(success bool) bool {
	return (success && s.limit.SkipSuccessfulRequests) || (!success && s.limit.SkipFailedRequests)
}

func (s *Service) fullCapacity(now time.Time) *models.RateLimitResult {
	return &models.RateLimitResult{
		Allowed:   true,
		Limit:     s.limit.MaxRequests,
		Remaining: s.limit.MaxRequests,
		ResetAt:   now.Add(s.limit.Window),
	}
}

func (s *Service) storeDegraded(ctx context.Context, op string, err error) {
	s.logger.WarnContext(ctx, "rate limit store unavailable, failing open",
		"namespace", s.namespace,
		"op", op,
		"error", err,
	)
	if s.metrics != nil {
		s.metrics.RecordStoreError(s.namespace, op)
	}
}
