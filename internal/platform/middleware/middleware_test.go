package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"authcore/pkg/requestcontext"
)

// MiddlewareSuite covers the admin listener chain.
//
// Justification: a wrong token must never reach a handler and the throttle
// must answer 429 rather than queueing.
type MiddlewareSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareSuite))
}

func (s *MiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *MiddlewareSuite) TestRequireAdminToken() {
	var reached bool
	var actor string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		actor = AdminActorID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name     string
		expected string
		sent     string
		status   int
	}{
		{"correct token", "s3cret", "s3cret", http.StatusNoContent},
		{"wrong token", "s3cret", "guess", http.StatusUnauthorized},
		{"missing token", "s3cret", "", http.StatusUnauthorized},
		{"unconfigured token rejects everything", "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			reached, actor = false, ""
			req := httptest.NewRequest(http.MethodGet, "/admin/x", nil)
			if tc.sent != "" {
				req.Header.Set("X-Admin-Token", tc.sent)
			}
			req.Header.Set("X-Admin-Actor-ID", "ops-1")
			w := httptest.NewRecorder()

			RequireAdminToken(tc.expected, s.logger)(next).ServeHTTP(w, req)

			s.Equal(tc.status, w.Code)
			s.Equal(tc.status == http.StatusNoContent, reached)
			if reached {
				s.Equal("ops-1", actor)
			}
		})
	}
}

func (s *MiddlewareSuite) TestRequestID() {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	s.Run("keeps a valid client id", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "abc-123")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		s.Equal("abc-123", seen)
		s.Equal("abc-123", w.Header().Get("X-Request-ID"))
	})

	s.Run("replaces an injected id", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "bad\nvalue")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		s.NotEqual("bad\nvalue", seen)
		s.Len(seen, 36)
	})

	s.Run("replaces an oversized id", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", strings.Repeat("a", MaxRequestIDLength+1))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		s.Len(seen, 36)
	})
}

func (s *MiddlewareSuite) TestThrottleRejectsBeyondBurst() {
	m := NewMetrics(prometheus.NewRegistry())
	h := Throttle(0.001, 2, s.logger, m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for range 3 {
		last = httptest.NewRecorder()
		h.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, last.Code)
	}

	s.Equal([]int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	s.NotEmpty(last.Header().Get("Retry-After"))
	s.Equal(1.0, promtest.ToFloat64(m.Throttled))
}

func (s *MiddlewareSuite) TestRecovery() {
	h := Recovery(s.logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	s.Equal(http.StatusInternalServerError, w.Code)
}

func (s *MiddlewareSuite) TestContentTypeJSON() {
	h := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("x=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	s.Equal(http.StatusUnsupportedMediaType, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	s.Equal(http.StatusOK, w.Code)
}
