package requestlimit

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
	"authcore/pkg/requestcontext"
	"authcore/pkg/testutil"
)

// ServiceSuite covers the sliding-window limiter against the in-memory store.
//
// Justification: these are the observable guarantees callers depend on:
// the N+1st request in a window is denied with a positive retry hint, capacity
// returns as old records slide out, skip modes change what counts, and a
// failing store never blocks traffic.
type ServiceSuite struct {
	suite.Suite
	clock   *testutil.Clock
	store   *kvstore.MemoryStore
	audits  *audit.MemoryStore
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.clock = testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s.store = kvstore.NewMemory(kvstore.WithClock(s.clock.Now))
	s.audits = audit.NewMemoryStore(64)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *ServiceSuite) newService(ns string, limit config.Limit) *Service {
	svc, err := New(ns, limit, s.store,
		WithLogger(s.logger),
		WithAuditPublisher(audit.NewPublisher(s.audits)),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	return svc
}

func (s *ServiceSuite) TestNewValidates() {
	_, err := New("", config.Limit{MaxRequests: 1, Window: time.Minute}, s.store)
	s.Error(err)

	_, err = New("api", config.Limit{MaxRequests: 1, Window: time.Minute}, nil)
	s.Error(err)

	_, err = New("api", config.Limit{MaxRequests: 0, Window: time.Minute}, s.store)
	s.Error(err)
}

func (s *ServiceSuite) TestDeniesRequestBeyondLimit() {
	svc := s.newService(config.NamespaceAPI, config.Limit{MaxRequests: 60, Window: time.Minute})

	for i := range 60 {
		ctx := s.clock.Ctx()
		res := svc.Check(ctx, "user-1", "/items")
		s.Require().True(res.Allowed, "request %d", i+1)
		s.Equal(60-i, res.Remaining)
		svc.Record(ctx, RecordInput{Identifier: "user-1", Endpoint: "/items", Success: true})
		s.clock.Advance(500 * time.Millisecond)
	}

	res := svc.Check(s.clock.Ctx(), "user-1", "/items")
	s.False(res.Allowed)
	s.Equal(0, res.Remaining)
	s.Equal(60, res.Limit)
	s.Greater(res.RetryAfter, time.Duration(0))
	// first record landed at t0, so the window reopens at t0+1m
	s.Equal(time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC), res.ResetAt)
	s.Equal(30, res.RetryAfterSeconds())

	events := s.audits.ListByAction(context.Background(), audit.EventRateLimitExceeded)
	s.Require().Len(events, 1)
	s.Equal(audit.DecisionDenied, events[0].Decision)
	s.NotEqual("user-1", events[0].Subject)

	s.Equal(60.0, promtest.ToFloat64(s.metrics.RateLimitDecisions.WithLabelValues("api", "allowed")))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.RateLimitDecisions.WithLabelValues("api", "denied")))
}

func (s *ServiceSuite) TestCheckDoesNotConsume() {
	svc := s.newService(config.NamespaceAPI, config.Limit{MaxRequests: 2, Window: time.Minute})
	for range 10 {
		s.True(svc.Check(s.clock.Ctx(), "user-1", "").Allowed)
	}
}

func (s *ServiceSuite) TestCapacityReturnsAsWindowSlides() {
	svc := s.newService(config.NamespaceComment, config.Limit{MaxRequests: 2, Window: time.Minute})

	svc.Record(s.clock.Ctx(), RecordInput{Identifier: "u", Success: true})
	s.clock.Advance(30 * time.Second)
	svc.Record(s.clock.Ctx(), RecordInput{Identifier: "u", Success: true})
	s.False(svc.Check(s.clock.Ctx(), "u", "").Allowed)

	s.clock.Advance(30 * time.Second)
	res := svc.Check(s.clock.Ctx(), "u", "")
	s.True(res.Allowed, "record exactly one window old no longer counts")
	s.Equal(1, res.Remaining)
}

func (s *ServiceSuite) TestKeysAreIsolated() {
	svc := s.newService(config.NamespaceAPI, config.Limit{MaxRequests: 1, Window: time.Minute})
	svc.Record(s.clock.Ctx(), RecordInput{Identifier: "alice", Endpoint: "/a", Success: true})

	s.False(svc.Check(s.clock.Ctx(), "alice", "/a").Allowed)
	s.True(svc.Check(s.clock.Ctx(), "alice", "/b").Allowed)
	s.True(svc.Check(s.clock.Ctx(), "bob", "/a").Allowed)

	other := s.newService(config.NamespaceUpload, config.Limit{MaxRequests: 1, Window: time.Minute})
	s.True(other.Check(s.clock.Ctx(), "alice", "/a").Allowed)
}

func (s *ServiceSuite) TestSkipModes() {
	s.Run("skip successful counts only failures", func() {
		svc := s.newService("login", config.Limit{MaxRequests: 2, Window: time.Minute, SkipSuccessfulRequests: true})
		for range 5 {
			svc.Record(s.clock.Ctx(), RecordInput{Identifier: "x", Success: true})
		}
		s.True(svc.Check(s.clock.Ctx(), "x", "").Allowed)

		svc.Record(s.clock.Ctx(), RecordInput{Identifier: "x", Success: false})
		svc.Record(s.clock.Ctx(), RecordInput{Identifier: "x", Success: false})
		s.False(svc.Check(s.clock.Ctx(), "x", "").Allowed)
	})

	s.Run("skip failed counts only successes", func() {
		svc := s.newService("signup", config.Limit{MaxRequests: 1, Window: time.Minute, SkipFailedRequests: true})
		svc.Record(s.clock.Ctx(), RecordInput{Identifier: "y", Success: false})
		s.True(svc.Check(s.clock.Ctx(), "y", "").Allowed)

		svc.Record(s.clock.Ctx(), RecordInput{Identifier: "y", Success: true})
		s.False(svc.Check(s.clock.Ctx(), "y", "").Allowed)
	})
}

func (s *ServiceSuite) TestAllow() {
	svc := s.newService(config.NamespaceAPI, config.Limit{MaxRequests: 3, Window: time.Minute})

	res := svc.Allow(s.clock.Ctx(), "u", "/x")
	s.True(res.Allowed)
	s.Equal(2, res.Remaining)
	svc.Allow(s.clock.Ctx(), "u", "/x")
	svc.Allow(s.clock.Ctx(), "u", "/x")

	res = svc.Allow(s.clock.Ctx(), "u", "/x")
	s.False(res.Allowed)

	status, err := svc.Status(s.clock.Ctx(), "u", "/x")
	s.Require().NoError(err)
	s.Equal(3, status.Count, "denied calls are not recorded")
}

func (s *ServiceSuite) TestAllowIsAtomicUnderContention() {
	svc := s.newService(config.NamespaceAPI, config.Limit{MaxRequests: 10, Window: time.Minute})
	ctx := s.clock.Ctx()

	result := testutil.RunConcurrent(50, func(int) error {
		if !svc.Allow(ctx, "hot", "").Allowed {
			return errors.New("denied")
		}
		return nil
	})
	s.Equal(int32(10), result.Successes)
	s.Equal(int32(40), result.Failures)
}

func (s *ServiceSuite) TestStatusAndReset() {
	svc := s.newService(config.NamespaceUpload, config.Limit{MaxRequests: 2, Window: time.Hour})
	svc.Record(s.clock.Ctx(), RecordInput{Identifier: "u", Success: true, IP: "203.0.113.42", UserAgent: "curl/8"})
	svc.Record(s.clock.Ctx(), RecordInput{Identifier: "u", Success: true, IP: "203.0.113.42"})

	status, err := svc.Status(s.clock.Ctx(), "u", "")
	s.Require().NoError(err)
	s.Equal("upload", status.Namespace)
	s.Equal(2, status.Count)
	s.Equal(0, status.Remaining)
	s.True(status.Exhausted)
	s.Equal(3600, status.WindowSeconds)
	s.Require().Len(status.Recent, 2)
	s.NotEqual("203.0.113.42", status.Recent[0].IP)

	s.Require().NoError(svc.Reset(s.clock.Ctx(), "u", ""))
	s.True(svc.Check(s.clock.Ctx(), "u", "").Allowed)
	s.Len(s.audits.ListByAction(context.Background(), audit.EventRateLimitReset), 1)
}

func (s *ServiceSuite) TestRecordKeepsHistoryForRetention() {
	svc := s.newService(config.NamespaceAPI, config.Limit{MaxRequests: 5, Window: time.Minute})
	svc.Record(s.clock.Ctx(), RecordInput{Identifier: "u", Success: true})

	s.clock.Advance(2 * time.Hour)
	svc.Record(s.clock.Ctx(), RecordInput{Identifier: "u", Success: true})

	var bucket models.Bucket
	key := models.RateLimitKey("api", "u", "")
	s.Require().NoError(kvstore.GetJSON(context.Background(), s.store, key, &bucket))
	s.Len(bucket.Records, 2, "records inside the 24h retention survive pruning")

	s.clock.Advance(23 * time.Hour)
	svc.Record(s.clock.Ctx(), RecordInput{Identifier: "u", Success: true})
	s.Require().NoError(kvstore.GetJSON(context.Background(), s.store, key, &bucket))
	s.Len(bucket.Records, 2)
}

func (s *ServiceSuite) TestSweepExpired() {
	api := s.newService(config.NamespaceAPI, config.Limit{MaxRequests: 5, Window: time.Minute})
	apiV2 := s.newService("api_v2", config.Limit{MaxRequests: 5, Window: time.Hour})

	api.Record(s.clock.Ctx(), RecordInput{Identifier: "old", Success: true})
	apiV2.Record(s.clock.Ctx(), RecordInput{Identifier: "old", Success: true})
	s.clock.Advance(2 * time.Minute)
	api.Record(s.clock.Ctx(), RecordInput{Identifier: "fresh", Success: true})

	removed, err := api.SweepExpired(s.clock.Ctx())
	s.Require().NoError(err)
	s.Equal(1, removed)

	keys, err := s.store.Keys(context.Background(), models.RateLimitKeyPrefix)
	s.Require().NoError(err)
	s.ElementsMatch([]string{
		models.RateLimitKey("api", "fresh", ""),
		models.RateLimitKey("api_v2", "old", ""),
	}, keys)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.RateLimitBucketsSwept.WithLabelValues("api")))
}

func TestStoreFailureFailsOpen(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := kvmocks.NewMockStore(ctrl)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	svc, err := New(config.NamespaceAuth, config.Limit{MaxRequests: 1, Window: time.Minute}, store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(m),
	)
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("connection refused")
	store.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, boom).Times(2)

	ctx := context.Background()
	res := svc.Check(ctx, "alice", "login")
	if !res.Allowed || res.Remaining != 1 {
		t.Fatalf("expected fail-open full capacity, got %+v", res)
	}
	// Record swallows the error
	svc.Record(ctx, RecordInput{Identifier: "alice", Endpoint: "login", Success: false})

	if got := promtest.ToFloat64(m.RateLimitStoreErrors.WithLabelValues("auth", "check")); got != 1 {
		t.Fatalf("check store errors = %v", got)
	}
	if got := promtest.ToFloat64(m.RateLimitStoreErrors.WithLabelValues("auth", "record")); got != 1 {
		t.Fatalf("record store errors = %v", got)
	}
}

func TestRegistry(t *testing.T) {
	store := kvstore.NewMemory()
	reg, err := NewRegistry(config.DefaultConfig(), store)
	if err != nil {
		t.Fatal(err)
	}
	for _, svc := range []*Service{reg.Auth(), reg.API(), reg.Upload(), reg.Comment()} {
		if svc == nil {
			t.Fatal("default namespace missing")
		}
	}
	if got := reg.API().Limit(); got.MaxRequests != 60 || got.Window != time.Minute {
		t.Fatalf("api limit = %+v", got)
	}
	if _, ok := reg.Get("nope"); ok {
		t.Fatal("unexpected namespace")
	}
	if _, err := reg.Status(context.Background(), "nope", "u1", ""); !dErrors.HasCode(err, dErrors.CodeNotFound) {
		t.Fatalf("status on unknown namespace: %v", err)
	}

	ctx := context.Background()
	reg.API().Record(ctx, RecordInput{Identifier: "u1", Endpoint: "/x", Success: true})
	status, err := reg.Status(ctx, config.NamespaceAPI, "u1", "/x")
	if err != nil || status.Count != 1 {
		t.Fatalf("status = %+v, err = %v", status, err)
	}
	if err := reg.Reset(ctx, config.NamespaceAPI, "u1", "/x"); err != nil {
		t.Fatal(err)
	}
	if status, _ = reg.Status(ctx, config.NamespaceAPI, "u1", "/x"); status.Count != 0 {
		t.Fatalf("count after reset = %d", status.Count)
	}

	bad := &config.Config{Limits: map[string]config.Limit{"x": {}}}
	if _, err := NewRegistry(bad, store); err == nil {
		t.Fatal("expected invalid limit error")
	}
}

// Two in-flight requests stamped at arrival can be recorded in either order.
func (s *ServiceSuite) TestLateRecordWithEarlierStampStillCounts() {
	svc := s.newService(config.NamespaceAPI, config.Limit{MaxRequests: 3, Window: time.Minute})
	start := s.clock.Now()

	svc.Record(requestcontext.WithTime(context.Background(), start.Add(20*time.Second)),
		RecordInput{Identifier: "user-1", Success: true})
	svc.Record(requestcontext.WithTime(context.Background(), start.Add(30*time.Second)),
		RecordInput{Identifier: "user-1", Success: true})
	svc.Record(requestcontext.WithTime(context.Background(), start.Add(10*time.Second)),
		RecordInput{Identifier: "user-1", Success: true})

	s.clock.Advance(40 * time.Second)
	res := svc.Check(s.clock.Ctx(), "user-1", "")
	s.False(res.Allowed)
	s.Equal(0, res.Remaining)

	// the earliest record leaves the window first
	s.clock.Advance(31 * time.Second)
	res = svc.Check(s.clock.Ctx(), "user-1", "")
	s.True(res.Allowed)
	s.Equal(1, res.Remaining)
}
