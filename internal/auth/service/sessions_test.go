package service

import (
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"authcore/internal/audit"
	"authcore/internal/auth/models"
	dErrors "authcore/pkg/domain-errors"
	"authcore/pkg/testutil"
)

func (s *ServiceSuite) TestNewValidation() {
	_, err := New(nil)
	s.Error(err)

	cfg := DefaultConfig()
	cfg.MaxInactiveTime = 0
	_, err = New(s.store, WithConfig(cfg))
	s.Error(err)
}

func (s *ServiceSuite) TestCreateSession() {
	res := s.create("user-1")

	s.Len(res.SessionID, 64, "256-bit hex identifier")
	s.Equal(res.SessionID, res.Session.SessionID)
	s.Equal(s.clock.Now(), res.Session.CreatedAt)
	s.Equal(s.clock.Now(), res.Session.LastActivity)
	s.Equal(s.clock.Now().Add(7*24*time.Hour), res.Session.ExpiresAt)

	ids, err := s.store.ListUserSessionIDs(s.ctx(), "user-1")
	s.Require().NoError(err)
	s.Equal([]string{res.SessionID}, ids)

	events := s.events(audit.EventSessionCreated)
	s.Require().Len(events, 1)
	s.NotEqual("user-1", events[0].UserID)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.SessionsCreated))
}

func (s *ServiceSuite) TestCreateSessionRejectsInvalidInput() {
	s.Run("nil request", func() {
		_, err := s.service.CreateSession(s.ctx(), nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("missing user id", func() {
		req := s.request("")
		_, err := s.service.CreateSession(s.ctx(), req)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("bad email", func() {
		req := s.request("u")
		req.Email = "not-an-email"
		_, err := s.service.CreateSession(s.ctx(), req)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("blank fingerprint", func() {
		req := s.request("u")
		req.DeviceFingerprint = "   "
		_, err := s.service.CreateSession(s.ctx(), req)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestSessionIDsAreUnique() {
	seen := make(map[string]struct{})
	for range 20 {
		id := s.create("user-1").SessionID
		s.NotContains(seen, id)
		seen[id] = struct{}{}
	}
}

func (s *ServiceSuite) TestValidateSessionSlidesActivity() {
	res := s.create("user-1")
	s.clock.Advance(time.Hour)

	session, err := s.service.ValidateSession(s.ctx(), res.SessionID)
	s.Require().NoError(err)
	s.Equal(s.clock.Now(), session.LastActivity)
	s.Equal(res.Session.ExpiresAt, session.ExpiresAt, "validate does not extend expiry")

	stored, err := s.store.Find(s.ctx(), res.SessionID)
	s.Require().NoError(err)
	s.Equal(s.clock.Now(), stored.LastActivity)
}

func (s *ServiceSuite) TestValidateSessionNotFound() {
	_, err := s.service.ValidateSession(s.ctx(), "missing")
	s.True(dErrors.HasCode(err, dErrors.CodeSessionNotFound))

	_, err = s.service.ValidateSession(s.ctx(), "")
	s.True(dErrors.HasCode(err, dErrors.CodeSessionNotFound))
}

func (s *ServiceSuite) TestValidateSessionExpired() {
	res := s.create("user-1")

	s.clock.Advance(7 * 24 * time.Hour)
	_, err := s.service.ValidateSession(s.ctx(), res.SessionID)
	s.Require().NoError(err, "valid at exactly expiresAt")

	s.clock.Advance(time.Second)
	_, err = s.service.ValidateSession(s.ctx(), res.SessionID)
	s.True(dErrors.HasCode(err, dErrors.CodeSessionExpired))

	_, err = s.service.ValidateSession(s.ctx(), res.SessionID)
	s.True(dErrors.HasCode(err, dErrors.CodeSessionNotFound), "expired record is deleted")

	ids, err := s.store.ListUserSessionIDs(s.ctx(), "user-1")
	s.Require().NoError(err)
	s.Empty(ids)
	s.Len(s.events(audit.EventSessionExpired), 1)
}

func (s *ServiceSuite) TestRefreshSessionRotates() {
	res := s.create("user-1")
	s.clock.Advance(2 * time.Hour)

	refreshed, err := s.service.RefreshSession(s.ctx(), res.SessionID)
	s.Require().NoError(err)
	s.True(refreshed.Rotated)
	s.NotEqual(res.SessionID, refreshed.SessionID)
	s.Equal(res.SessionID, refreshed.Session.PreviousSessionID)
	s.Equal(s.clock.Now().Add(7*24*time.Hour), refreshed.Session.ExpiresAt)
	s.Equal(res.Session.CreatedAt, refreshed.Session.CreatedAt)

	_, err = s.service.ValidateSession(s.ctx(), res.SessionID)
	s.True(dErrors.HasCode(err, dErrors.CodeSessionNotFound), "old id stops working")

	_, err = s.service.ValidateSession(s.ctx(), refreshed.SessionID)
	s.NoError(err)

	ids, _ := s.store.ListUserSessionIDs(s.ctx(), "user-1")
	s.Equal([]string{refreshed.SessionID}, ids)
	s.Len(s.events(audit.EventSessionRefreshed), 1)
}

func (s *ServiceSuite) TestRefreshSessionWithoutRotation() {
	cfg := DefaultConfig()
	cfg.RotateOnRefresh = false
	cfg.MaxInactiveTime = time.Hour
	svc := s.newService(cfg)

	res, err := svc.CreateSession(s.ctx(), s.request("user-1"))
	s.Require().NoError(err)
	s.clock.Advance(50 * time.Minute)

	refreshed, err := svc.RefreshSession(s.ctx(), res.SessionID)
	s.Require().NoError(err)
	s.False(refreshed.Rotated)
	s.Equal(res.SessionID, refreshed.SessionID)
	s.Equal(s.clock.Now().Add(time.Hour), refreshed.Session.ExpiresAt)

	s.clock.Advance(61 * time.Minute)
	_, err = svc.RefreshSession(s.ctx(), res.SessionID)
	s.True(dErrors.HasCode(err, dErrors.CodeSessionExpired))
}

func (s *ServiceSuite) TestInvalidateSession() {
	a := s.create("user-1")
	b := s.create("user-1")

	ok, err := s.service.InvalidateSession(s.ctx(), a.SessionID)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.service.InvalidateSession(s.ctx(), a.SessionID)
	s.Require().NoError(err)
	s.False(ok)

	ids, _ := s.store.ListUserSessionIDs(s.ctx(), "user-1")
	s.Equal([]string{b.SessionID}, ids)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.SessionsInvalidated.WithLabelValues("logout")))
}

func (s *ServiceSuite) TestInvalidateAllUserSessions() {
	for range 3 {
		s.create("user-1")
	}
	other := s.create("user-2")

	n, err := s.service.InvalidateAllUserSessions(s.ctx(), "user-1")
	s.Require().NoError(err)
	s.Equal(3, n)

	sessions, err := s.service.GetUserSessions(s.ctx(), "user-1")
	s.Require().NoError(err)
	s.Empty(sessions)

	_, err = s.service.ValidateSession(s.ctx(), other.SessionID)
	s.NoError(err, "other users are unaffected")

	n, err = s.service.InvalidateAllUserSessions(s.ctx(), "user-1")
	s.Require().NoError(err)
	s.Zero(n)

	_, err = s.service.InvalidateAllUserSessions(s.ctx(), "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Len(s.events(audit.EventSessionsRevoked), 2)
}

func (s *ServiceSuite) TestMaxSessionsPerUserEvictsOldest() {
	cfg := DefaultConfig()
	cfg.MaxSessionsPerUser = 2
	svc := s.newService(cfg)

	var ids []string
	for range 3 {
		res, err := svc.CreateSession(s.ctx(), s.request("user-1"))
		s.Require().NoError(err)
		ids = append(ids, res.SessionID)
		s.clock.Advance(time.Minute)
	}

	indexed, _ := s.store.ListUserSessionIDs(s.ctx(), "user-1")
	s.Equal(ids[1:], indexed)

	_, err := svc.ValidateSession(s.ctx(), ids[0])
	s.True(dErrors.HasCode(err, dErrors.CodeSessionNotFound))
	s.Len(s.events(audit.EventSessionEvicted), 1)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.SessionsEvicted))
}

func (s *ServiceSuite) TestGetUserSessionInfo() {
	old := s.create("user-1")
	s.clock.Advance(6 * 24 * time.Hour)
	req := s.request("user-1")
	req.UserAgent = firefoxLinux
	_, err := s.service.CreateSession(s.ctx(), req)
	s.Require().NoError(err)
	s.clock.Advance(36 * time.Hour)

	info, err := s.service.GetUserSessionInfo(s.ctx(), "user-1")
	s.Require().NoError(err)
	s.Equal(2, info.TotalSessions)
	s.Equal(1, info.ActiveSessions)
	s.Require().Len(info.Sessions, 2)
	s.Equal(old.SessionID, info.Sessions[0].SessionID)
	s.False(info.Sessions[0].IsActive)
	s.Contains(info.Sessions[0].Device, "Chrome")
	s.True(info.Sessions[1].IsActive)
	s.Contains(info.Sessions[1].Device, "Firefox")

	_, err = s.store.Find(s.ctx(), old.SessionID)
	s.NoError(err, "listing does not delete expired records")
}

func (s *ServiceSuite) TestCheckSessionSecurity() {
	res := s.create("user-1")

	s.Run("same device recently active", func() {
		check, err := s.service.CheckSessionSecurity(s.ctx(), res.SessionID, res.Session.DeviceFingerprint)
		s.Require().NoError(err)
		s.False(check.Suspicious)
		s.Empty(check.Warnings)
		s.True(check.FingerprintMatch)
	})

	s.Run("different device after long inactivity", func() {
		s.clock.Advance(25 * time.Hour)
		check, err := s.service.CheckSessionSecurity(s.ctx(), res.SessionID, "another-fingerprint")
		s.Require().NoError(err)
		s.True(check.Suspicious)
		s.ElementsMatch([]string{models.WarningFingerprintMismatch, models.WarningLongInactivity}, check.Warnings)
		s.Equal(25*time.Hour, check.InactiveFor)
	})

	s.Run("check never blocks the session", func() {
		_, err := s.service.ValidateSession(s.ctx(), res.SessionID)
		s.NoError(err)
	})

	s.Run("unknown session", func() {
		_, err := s.service.CheckSessionSecurity(s.ctx(), "missing", "fp")
		s.True(dErrors.HasCode(err, dErrors.CodeSessionNotFound))
	})

	events := s.events(audit.EventSessionSuspicious)
	s.Require().Len(events, 1)
	s.Equal(models.WarningFingerprintMismatch, events[0].Reason)
}

func (s *ServiceSuite) TestSweepExpired() {
	expiring := s.create("user-1")
	s.clock.Advance(5 * 24 * time.Hour)
	live := s.create("user-1")
	s.create("user-2")
	s.clock.Advance(60 * time.Hour)

	n, err := s.service.SweepExpired(s.ctx())
	s.Require().NoError(err)
	s.Equal(1, n)

	ids, _ := s.store.ListUserSessionIDs(s.ctx(), "user-1")
	s.Equal([]string{live.SessionID}, ids)
	_, err = s.store.Find(s.ctx(), expiring.SessionID)
	s.Error(err)
}

func (s *ServiceSuite) TestConcurrentValidateAndRevokeAll() {
	res := s.create("user-1")
	ctx := s.ctx()

	testutil.RunConcurrent(20, func(i int) error {
		if i == 10 {
			_, err := s.service.InvalidateAllUserSessions(ctx, "user-1")
			return err
		}
		_, err := s.service.ValidateSession(ctx, res.SessionID)
		return err
	})

	_, err := s.service.ValidateSession(ctx, res.SessionID)
	s.True(dErrors.HasCode(err, dErrors.CodeSessionNotFound), "revoked session is never resurrected")
}
