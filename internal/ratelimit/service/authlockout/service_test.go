package authlockout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"authcore/internal/audit"
	"authcore/internal/platform/kvstore"
	kvmocks "authcore/internal/platform/kvstore/mocks"
	"authcore/internal/ratelimit/config"
	"authcore/internal/ratelimit/metrics"
	"authcore/internal/ratelimit/models"
	dErrors "authcore/pkg/domain-errors"
	"authcore/pkg/testutil"
)

// ServiceSuite exercises the brute-force guard.
//
// Justification: lockout is the last line against password guessing. The
// count-to-lock threshold, the fixed lock duration, lazy expiry and the
// success reset are each relied on by the login flow.
type ServiceSuite struct {
	suite.Suite
	clock   *testutil.Clock
	store   *kvstore.MemoryStore
	audits  *audit.MemoryStore
	metrics *metrics.Metrics
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.clock = testutil.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s.store = kvstore.NewMemory(kvstore.WithClock(s.clock.Now))
	s.audits = audit.NewMemoryStore(64)
	s.metrics = metrics.New(prometheus.NewRegistry())

	svc, err := New(s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(audit.NewPublisher(s.audits)),
		WithMetrics(s.metrics),
		WithConfig(config.AuthLockoutConfig{
			MaxLoginAttempts: 5,
			LockoutDuration:  15 * time.Minute,
			AttemptWindow:    time.Hour,
		}),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *ServiceSuite) TestNewRejectsNilStoreAndBadConfig() {
	_, err := New(nil)
	s.Error(err)

	_, err = New(s.store, WithConfig(config.AuthLockoutConfig{MaxLoginAttempts: 0, LockoutDuration: time.Minute}))
	s.Error(err)
}

func (s *ServiceSuite) TestLocksAfterFiveFailures() {
	const email = "victim@example.com"

	for i := 1; i <= 4; i++ {
		res := s.service.RecordFailedAttempt(s.clock.Ctx(), email)
		s.False(res.IsLocked, "attempt %d", i)
		s.Equal(5-i, res.RemainingAttempts)
		s.clock.Advance(10 * time.Second)
	}
	s.False(s.service.IsLocked(s.clock.Ctx(), email))

	res := s.service.RecordFailedAttempt(s.clock.Ctx(), email)
	s.True(res.IsLocked)
	s.Equal(0, res.RemainingAttempts)
	s.Require().NotNil(res.LockedUntil)
	s.Equal(s.clock.Now().Add(15*time.Minute), *res.LockedUntil)
	s.Equal(15*time.Minute, res.RetryAfter)
	s.True(s.service.IsLocked(s.clock.Ctx(), email))

	events := s.audits.ListByAction(context.Background(), audit.EventLockoutTriggered)
	s.Require().Len(events, 1)
	s.Equal("v*****@example.com", events[0].Subject)
	s.Len(s.audits.ListByAction(context.Background(), audit.EventFailedAttempt), 5)

	s.Equal(5.0, promtest.ToFloat64(s.metrics.AuthFailedAttempts))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.AuthLockoutsTotal))
}

func (s *ServiceSuite) TestFailuresWhileLockedDoNotExtend() {
	for range 5 {
		s.service.RecordFailedAttempt(s.clock.Ctx(), "u")
	}
	lockedUntil := s.clock.Now().Add(15 * time.Minute)

	s.clock.Advance(10 * time.Minute)
	res := s.service.RecordFailedAttempt(s.clock.Ctx(), "u")
	s.True(res.IsLocked)
	s.Equal(lockedUntil, *res.LockedUntil)
	s.Equal(5*time.Minute, res.RetryAfter)
	s.Len(s.audits.ListByAction(context.Background(), audit.EventLockoutTriggered), 1)
}

func (s *ServiceSuite) TestLockExpires() {
	for range 5 {
		s.service.RecordFailedAttempt(s.clock.Ctx(), "u")
	}
	s.clock.Advance(15 * time.Minute)

	s.False(s.service.IsLocked(s.clock.Ctx(), "u"))
	keys, err := s.store.Keys(context.Background(), models.FailedAttemptKeyPrefix)
	s.Require().NoError(err)
	s.Empty(keys, "expired lock is deleted lazily")
	s.Equal(1.0, promtest.ToFloat64(s.metrics.AuthLocksCleared.WithLabelValues("expired")))
}

func (s *ServiceSuite) TestFailureAfterExpiredLockStartsFresh() {
	for range 5 {
		s.service.RecordFailedAttempt(s.clock.Ctx(), "u")
	}
	s.clock.Advance(16 * time.Minute)

	res := s.service.RecordFailedAttempt(s.clock.Ctx(), "u")
	s.False(res.IsLocked)
	s.Equal(4, res.RemainingAttempts)
}

func (s *ServiceSuite) TestAttemptWindowResetsStaleCount() {
	for range 4 {
		s.service.RecordFailedAttempt(s.clock.Ctx(), "u")
	}
	s.clock.Advance(61 * time.Minute)

	status, err := s.service.Status(s.clock.Ctx(), "u")
	s.Require().NoError(err)
	s.Equal(0, status.FailedAttempts)

	res := s.service.RecordFailedAttempt(s.clock.Ctx(), "u")
	s.False(res.IsLocked)
	s.Equal(4, res.RemainingAttempts)
}

func (s *ServiceSuite) TestSuccessClearsState() {
	for range 4 {
		s.service.RecordFailedAttempt(s.clock.Ctx(), "u")
	}
	s.service.RecordSuccessfulAttempt(s.clock.Ctx(), "u")

	res := s.service.RecordFailedAttempt(s.clock.Ctx(), "u")
	s.Equal(4, res.RemainingAttempts)
}

func (s *ServiceSuite) TestStatusAndLockedError() {
	for range 5 {
		s.service.RecordFailedAttempt(s.clock.Ctx(), "someone@example.com")
	}
	s.clock.Advance(5 * time.Minute)

	status, err := s.service.Status(s.clock.Ctx(), "someone@example.com")
	s.Require().NoError(err)
	s.True(status.IsLocked)
	s.Equal(5, status.FailedAttempts)
	s.Equal(0, status.RemainingAttempts)
	s.NotContains(status.Identifier, "someone")

	lockErr := s.service.LockedError(s.clock.Ctx(), "someone@example.com")
	s.True(dErrors.HasCode(lockErr, dErrors.CodeAccountLocked))
	retry, ok := dErrors.RetryAfter(lockErr)
	s.True(ok)
	s.Equal(10*time.Minute, retry)

	s.NoError(s.service.LockedError(s.clock.Ctx(), "nobody@example.com"))
}

func (s *ServiceSuite) TestClear() {
	for range 5 {
		s.service.RecordFailedAttempt(s.clock.Ctx(), "u")
	}
	s.Require().NoError(s.service.Clear(s.clock.Ctx(), "u"))
	s.False(s.service.IsLocked(s.clock.Ctx(), "u"))
	s.Len(s.audits.ListByAction(context.Background(), audit.EventLockoutCleared), 1)
}

func (s *ServiceSuite) TestSweepExpired() {
	for range 5 {
		s.service.RecordFailedAttempt(s.clock.Ctx(), "expiring")
	}
	s.clock.Advance(20 * time.Minute)
	for range 5 {
		s.service.RecordFailedAttempt(s.clock.Ctx(), "active")
	}
	s.service.RecordFailedAttempt(s.clock.Ctx(), "pending")

	removed, err := s.service.SweepExpired(s.clock.Ctx())
	s.Require().NoError(err)
	s.Equal(1, removed)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.AuthLockedIdentifiers))
	s.True(s.service.IsLocked(s.clock.Ctx(), "active"))
}

func (s *ServiceSuite) TestConcurrentFailuresLockExactlyOnce() {
	ctx := s.clock.Ctx()
	result := testutil.RunConcurrent(20, func(int) error {
		s.service.RecordFailedAttempt(ctx, "contended")
		return nil
	})
	s.Equal(int32(20), result.Successes)
	s.True(s.service.IsLocked(ctx, "contended"))
	s.Len(s.audits.ListByAction(context.Background(), audit.EventLockoutTriggered), 1)
	s.Len(s.audits.ListByAction(context.Background(), audit.EventFailedAttempt), 5)
}

func TestStoreFailureDoesNotLock(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := kvmocks.NewMockStore(ctrl)
	store.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout")).AnyTimes()

	svc, err := New(store, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatal(err)
	}

	res := svc.RecordFailedAttempt(context.Background(), "u")
	if res.IsLocked || res.RemainingAttempts != 5 {
		t.Fatalf("unexpected result %+v", res)
	}
	if svc.IsLocked(context.Background(), "u") {
		t.Fatal("store failure must not lock")
	}
	if _, err := svc.Status(context.Background(), "u"); !dErrors.HasCode(err, dErrors.CodeInternal) {
		t.Fatalf("status error = %v", err)
	}
}
