package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"authcore/internal/audit"
	authModels "authcore/internal/auth/models"
	sessionService "authcore/internal/auth/service"
	sessionStore "authcore/internal/auth/store/session"
	mfaModels "authcore/internal/mfa/models"
	"authcore/internal/mfa/sender"
	mfaService "authcore/internal/mfa/service"
	mfaStore "authcore/internal/mfa/store"
	"authcore/internal/platform/config"
	"authcore/internal/platform/health"
	"authcore/internal/platform/kvstore"
	"authcore/internal/platform/middleware"
	rlModels "authcore/internal/ratelimit/models"
	"authcore/internal/ratelimit/service/authlockout"
	"authcore/internal/ratelimit/service/requestlimit"
	"authcore/pkg/testutil"
)

const adminToken = "admin-token-for-tests"

// AdminSuite drives the operator API end to end over real services.
//
// Justification: the admin surface can unlock accounts and sign users out,
// so authentication and the effect of each mutation must be observable.
type AdminSuite struct {
	suite.Suite
	kv        *kvstore.MemoryStore
	audits    *audit.MemoryStore
	registry  *requestlimit.Registry
	lockout   *authlockout.Service
	sessions  *sessionService.Service
	twoFactor *mfaService.Service
	router    http.Handler
}

func TestAdminSuite(t *testing.T) {
	suite.Run(t, new(AdminSuite))
}

func (s *AdminSuite) SetupTest() {
	logger := testutil.DiscardLogger()
	s.kv = kvstore.NewMemory()
	s.audits = audit.NewMemoryStore(64)
	publisher := audit.NewPublisher(s.audits)

	var err error
	s.registry, err = requestlimit.NewRegistry(nil, s.kv, requestlimit.WithLogger(logger), requestlimit.WithAuditPublisher(publisher))
	s.Require().NoError(err)
	s.lockout, err = authlockout.New(s.kv, authlockout.WithLogger(logger), authlockout.WithAuditPublisher(publisher))
	s.Require().NoError(err)
	s.sessions, err = sessionService.New(sessionStore.New(s.kv), sessionService.WithLogger(logger))
	s.Require().NoError(err)
	mfaCfg := mfaService.DefaultConfig()
	mfaCfg.EncryptionKey = "admin-suite-encryption-key"
	mfaCfg.KDFIterations = 1000
	s.twoFactor, err = mfaService.New(mfaStore.New(s.kv),
		mfaService.WithLogger(logger),
		mfaService.WithConfig(mfaCfg),
		mfaService.WithCodeSender(sender.NewMemorySender()),
	)
	s.Require().NoError(err)

	svc, err := NewService(s.registry, s.lockout, s.sessions,
		WithLogger(logger),
		WithTwoFactor(s.twoFactor),
		WithAuditReader(s.audits),
	)
	s.Require().NoError(err)

	reg := prometheus.NewRegistry()
	cfg := config.AdminConfig{Token: adminToken, RatePerSecond: 1000, Burst: 1000}
	s.router = NewRouter(cfg, New(svc, logger), health.New("test"), reg, middleware.NewMetrics(reg), logger)
}

func (s *AdminSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("X-Admin-Token", adminToken)
	req.Header.Set("X-Admin-Actor-ID", "ops-1")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *AdminSuite) decode(w *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (s *AdminSuite) createSession(userID string) string {
	res, err := s.sessions.CreateSession(context.Background(), testutil.SessionRequest(userID))
	s.Require().NoError(err)
	return res.SessionID
}

func (s *AdminSuite) TestRequiresToken() {
	req := httptest.NewRequest(http.MethodGet, "/admin/ratelimits", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *AdminSuite) TestProbesAndMetricsAreOpen() {
	for _, path := range []string{"/healthz", "/health/ready", "/metrics"} {
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		s.Equal(http.StatusOK, w.Code, path)
	}
}

func (s *AdminSuite) TestRateLimitStatusAndReset() {
	ctx := context.Background()
	for range 3 {
		s.registry.Auth().Record(ctx, requestlimit.RecordInput{Identifier: "10.0.0.1", Endpoint: "/login"})
	}

	w := s.do(http.MethodGet, "/admin/ratelimits/auth?identifier=10.0.0.1&endpoint=/login", "")
	s.Require().Equal(http.StatusOK, w.Code)
	var status rlModels.RateLimitStatus
	s.decode(w, &status)
	s.Equal(3, status.Count)
	s.Equal("auth", status.Namespace)

	w = s.do(http.MethodPost, "/admin/ratelimits/auth/reset", `{"identifier":"10.0.0.1","endpoint":"/login"}`)
	s.Equal(http.StatusNoContent, w.Code)

	w = s.do(http.MethodGet, "/admin/ratelimits/auth?identifier=10.0.0.1&endpoint=/login", "")
	s.decode(w, &status)
	s.Equal(0, status.Count)
	s.Len(s.audits.ListByAction(ctx, audit.EventRateLimitReset), 1)
}

func (s *AdminSuite) TestRateLimitErrors() {
	s.Run("unknown namespace", func() {
		w := s.do(http.MethodGet, "/admin/ratelimits/nope?identifier=x", "")
		s.Equal(http.StatusNotFound, w.Code)
	})
	s.Run("missing identifier", func() {
		w := s.do(http.MethodGet, "/admin/ratelimits/auth", "")
		s.Equal(http.StatusBadRequest, w.Code)
	})
	s.Run("reset with blank identifier", func() {
		w := s.do(http.MethodPost, "/admin/ratelimits/auth/reset", `{"identifier":"   "}`)
		s.Equal(http.StatusBadRequest, w.Code)
	})
	s.Run("reset with malformed body", func() {
		w := s.do(http.MethodPost, "/admin/ratelimits/auth/reset", `{`)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *AdminSuite) TestListNamespaces() {
	w := s.do(http.MethodGet, "/admin/ratelimits", "")
	s.Require().Equal(http.StatusOK, w.Code)
	var resp NamespacesResponse
	s.decode(w, &resp)
	s.Contains(resp.Namespaces, "auth")
	s.Contains(resp.Namespaces, "api")
}

func (s *AdminSuite) TestLockoutStatusAndClear() {
	ctx := context.Background()
	for range 5 {
		s.lockout.RecordFailedAttempt(ctx, "victim@example.com")
	}
	s.Require().True(s.lockout.IsLocked(ctx, "victim@example.com"))

	w := s.do(http.MethodGet, "/admin/lockouts/victim@example.com", "")
	s.Require().Equal(http.StatusOK, w.Code)
	var status rlModels.LockoutStatus
	s.decode(w, &status)
	s.True(status.IsLocked)
	s.NotContains(w.Body.String(), "victim@example.com")

	w = s.do(http.MethodDelete, "/admin/lockouts/victim@example.com", "")
	s.Equal(http.StatusNoContent, w.Code)
	s.False(s.lockout.IsLocked(ctx, "victim@example.com"))
}

func (s *AdminSuite) TestSessions() {
	first := s.createSession("u-1")
	s.createSession("u-1")

	w := s.do(http.MethodGet, "/admin/users/u-1/sessions", "")
	s.Require().Equal(http.StatusOK, w.Code)
	var info authModels.UserSessionInfo
	s.decode(w, &info)
	s.Equal(2, info.ActiveSessions)
	s.Contains(info.Sessions[0].Device, "Chrome")

	w = s.do(http.MethodDelete, "/admin/sessions/"+first, "")
	s.Equal(http.StatusNoContent, w.Code)

	w = s.do(http.MethodDelete, "/admin/sessions/"+first, "")
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodDelete, "/admin/users/u-1/sessions", "")
	s.Require().Equal(http.StatusOK, w.Code)
	var revoked RevokeSessionsResponse
	s.decode(w, &revoked)
	s.Equal(1, revoked.Revoked)
}

func (s *AdminSuite) TestTwoFactorStatus() {
	_, err := s.twoFactor.Enable(context.Background(), "u-2fa", mfaModels.MethodTOTP, "")
	s.Require().NoError(err)

	w := s.do(http.MethodGet, "/admin/users/u-2fa/two-factor", "")
	s.Require().Equal(http.StatusOK, w.Code)
	var status mfaModels.Status
	s.decode(w, &status)
	s.True(status.Enabled)
	s.Equal(mfaModels.MethodTOTP, status.Method)
	s.NotContains(w.Body.String(), "secret")
}

func (s *AdminSuite) TestRecentAuditEvents() {
	s.lockout.RecordFailedAttempt(context.Background(), "someone@example.com")

	w := s.do(http.MethodGet, "/admin/audit/recent?limit=5", "")
	s.Require().Equal(http.StatusOK, w.Code)
	var resp AuditEventsResponse
	s.decode(w, &resp)
	s.Equal(1, resp.Total)
	s.Equal(audit.EventFailedAttempt, resp.Events[0].Action)
}
