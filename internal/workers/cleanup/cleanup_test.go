package cleanup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authModels "authcore/internal/auth/models"
	sessionService "authcore/internal/auth/service"
	sessionStore "authcore/internal/auth/store/session"
	mfaModels "authcore/internal/mfa/models"
	mfaService "authcore/internal/mfa/service"
	mfaStore "authcore/internal/mfa/store"
	"authcore/internal/platform/kvstore"
	"authcore/internal/ratelimit/service/authlockout"
	"authcore/internal/ratelimit/service/requestlimit"
	"authcore/pkg/testutil"
)

type sweeperFunc func(ctx context.Context) (int, error)

func (f sweeperFunc) SweepExpired(ctx context.Context) (int, error) { return f(ctx) }

func fixed(n int, err error) Sweeper {
	return sweeperFunc(func(context.Context) (int, error) { return n, err })
}

func TestNewRequiresSweepers(t *testing.T) {
	_, err := New(nil, fixed(0, nil), fixed(0, nil), fixed(0, nil))
	assert.Error(t, err)
}

func TestRunOnceJoinsErrorsAndKeepsGoing(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	svc, err := New(
		fixed(3, nil),
		fixed(0, errors.New("redis timeout")),
		fixed(1, nil),
		fixed(2, nil),
		WithMetrics(m),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	res, err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep rate limits")
	assert.Equal(t, 3, res.ExpiredSessions)
	assert.Equal(t, 1, res.ExpiredLockouts)
	assert.Equal(t, 2, res.ExpiredChallenges)
	assert.Equal(t, 6, res.Total())
	assert.Equal(t, 1.0, promtest.ToFloat64(m.RunsTotal.WithLabelValues("error")))
	assert.Equal(t, 3.0, promtest.ToFloat64(m.RemovedTotal.WithLabelValues("sessions")))
}

func TestStartStopsOnCancel(t *testing.T) {
	calls := make(chan struct{}, 10)
	counting := sweeperFunc(func(context.Context) (int, error) {
		select {
		case calls <- struct{}{}:
		default:
		}
		return 0, nil
	})
	svc, err := New(counting, fixed(0, nil), fixed(0, nil), fixed(0, nil),
		WithInterval(5*time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup never ran")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

// TestRunOnceAgainstServices wires the real services over one store and
// checks each kind of expired state is removed.
func TestRunOnceAgainstServices(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	kv := kvstore.NewMemory(kvstore.WithClock(clock.Now))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sessions, err := sessionService.New(sessionStore.New(kv), sessionService.WithLogger(logger))
	require.NoError(t, err)
	registry, err := requestlimit.NewRegistry(nil, kv, requestlimit.WithLogger(logger))
	require.NoError(t, err)
	lockouts, err := authlockout.New(kv, authlockout.WithLogger(logger))
	require.NoError(t, err)
	mfaCfg := mfaService.DefaultConfig()
	mfaCfg.EncryptionKey = "cleanup-test-encryption-key"
	mfaCfg.KDFIterations = 1000
	mfaStorage := mfaStore.New(kv)
	twoFactor, err := mfaService.New(mfaStorage, mfaService.WithLogger(logger), mfaService.WithConfig(mfaCfg))
	require.NoError(t, err)

	ctx := clock.Ctx()
	_, err = sessions.CreateSession(ctx, &authModels.CreateSessionRequest{
		UserID: "u1", Email: "u1@example.com", DeviceFingerprint: "fp",
	})
	require.NoError(t, err)
	registry.API().Record(ctx, requestlimit.RecordInput{Identifier: "198.51.100.1", Endpoint: "/x", Success: true})
	for range 5 {
		lockouts.RecordFailedAttempt(ctx, "victim@example.com")
	}
	require.NoError(t, mfaStorage.SavePending(ctx, "u1", &mfaModels.PendingChallenge{
		Method: mfaModels.MethodSMS, ExpiresAt: clock.Now().Add(time.Minute),
	}, 30*24*time.Hour))

	svc, err := New(sessions, registry, lockouts, twoFactor, WithStore(kv), WithLogger(logger))
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	res, err := svc.RunOnce(clock.Ctx())
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExpiredSessions)
	assert.Equal(t, 1, res.DrainedBuckets)
	assert.Equal(t, 1, res.ExpiredLockouts)
	assert.Equal(t, 1, res.ExpiredChallenges)
	assert.False(t, lockouts.IsLocked(clock.Ctx(), "victim@example.com"))

	clock.Advance(7 * 24 * time.Hour)
	res, err = svc.RunOnce(clock.Ctx())
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiredSessions)
	assert.Zero(t, res.DrainedBuckets)
}
