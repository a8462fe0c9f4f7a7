package service

import (
	"context"
	"time"

	"authcore/internal/audit"
	"authcore/internal/auth/models"
	"authcore/internal/crypto"
	"authcore/internal/platform/tracer"
	dErrors "authcore/pkg/domain-errors"
	"authcore/pkg/requestcontext"
	"authcore/pkg/validation"
)

const (
	invalidateReasonLogout    = "logout"
	invalidateReasonLogoutAll = "logout_all"
)

// CreateSession issues a session for an authenticated user and registers it
// in the user's index. When the user exceeds MaxSessionsPerUser the oldest
// sessions are evicted.
func (s *Service) CreateSession(ctx context.Context, req *models.CreateSessionRequest) (result *models.SessionResult, err error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "request is required")
	}
	req.Normalize()
	if err := validation.Validate(req); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanSessionCreate,
		tracer.String(tracer.AttrUserHash, tracer.HashSubject(req.UserID)),
	)
	defer func() { span.End(err) }()

	sessionID, err := crypto.GenerateSecureRandom(sessionIDBytes)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate session id")
	}

	now := requestcontext.Now(ctx)
	session := &models.Session{
		SessionID:         sessionID,
		UserID:            req.UserID,
		Email:             req.Email,
		DisplayName:       req.DisplayName,
		PhotoURL:          req.PhotoURL,
		DeviceFingerprint: req.DeviceFingerprint,
		UserAgent:         req.UserAgent,
		IPAddress:         req.IPAddress,
		CreatedAt:         now,
		LastActivity:      now,
		ExpiresAt:         now.Add(s.config.MaxInactiveTime),
	}

	var evicted []string
	err = s.locks.With(models.UserSessionsKey(req.UserID), func() error {
		if err := s.save(ctx, session, now); err != nil {
			return err
		}
		if err := s.sessions.AddUserSession(ctx, req.UserID, sessionID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to index session")
		}
		evicted, err = s.enforceSessionCap(ctx, req.UserID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementSessionsCreated()
	}
	span.SetAttributes(tracer.Int(tracer.AttrEvicted, len(evicted)))
	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventSessionCreated,
		"user_id", req.UserID,
		"session_id", sessionID,
		"fingerprint", req.DeviceFingerprint,
		"decision", audit.DecisionAllowed,
	)
	for _, id := range evicted {
		audit.Log(ctx, s.logger, s.auditPublisher, audit.EventSessionEvicted,
			"user_id", req.UserID,
			"session_id", id,
			"reason", "max_sessions_per_user",
			"decision", audit.DecisionInfo,
		)
	}

	return &models.SessionResult{SessionID: sessionID, Session: session}, nil
}

// enforceSessionCap prunes dangling and expired index entries, then evicts
// the oldest live sessions beyond the cap. Caller holds the user lock.
func (s *Service) enforceSessionCap(ctx context.Context, userID string, now time.Time) ([]string, error) {
	ids, err := s.sessions.ListUserSessionIDs(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session index")
	}

	live := make([]string, 0, len(ids))
	var stale []string
	expired := 0
	for _, id := range ids {
		session, err := s.find(ctx, id)
		switch {
		case dErrors.HasCode(err, dErrors.CodeSessionNotFound):
			stale = append(stale, id)
		case err != nil:
			return nil, err
		case session.IsExpiredAt(now):
			stale = append(stale, id)
			expired++
		default:
			live = append(live, id)
		}
	}

	var evicted []string
	if limit := s.config.MaxSessionsPerUser; limit > 0 && len(live) > limit {
		evicted = live[:len(live)-limit]
	}

	if drop := append(stale, evicted...); len(drop) > 0 {
		if err := s.remove(ctx, userID, drop...); err != nil {
			return nil, err
		}
	}
	if s.metrics != nil {
		if expired > 0 {
			s.metrics.IncrementSessionsExpired(expired)
		}
		if len(evicted) > 0 {
			s.metrics.IncrementSessionsEvicted(len(evicted))
		}
	}
	return evicted, nil
}

// ValidateSession returns the live session and slides LastActivity to now.
// An expired session is deleted and reported as session_expired.
func (s *Service) ValidateSession(ctx context.Context, sessionID string) (result *models.Session, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanSessionValidate,
		tracer.String(tracer.AttrSessionHash, tracer.HashSubject(sessionID)),
	)
	defer func() { span.End(err) }()

	err = s.withUserSession(ctx, sessionID, func(session *models.Session) error {
		now := requestcontext.Now(ctx)
		if err := s.expireIfLapsed(ctx, session, now); err != nil {
			return err
		}
		session.Touch(now)
		if err := s.save(ctx, session, now); err != nil {
			return err
		}
		result = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RefreshSession validates the session and extends ExpiresAt to
// now+MaxInactiveTime. With RotateOnRefresh the record moves to a fresh id
// and the old id stops working immediately.
func (s *Service) RefreshSession(ctx context.Context, sessionID string) (result *models.SessionResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanSessionRefresh,
		tracer.String(tracer.AttrSessionHash, tracer.HashSubject(sessionID)),
		tracer.Bool(tracer.AttrRotated, s.config.RotateOnRefresh),
	)
	defer func() { span.End(err) }()

	err = s.withUserSession(ctx, sessionID, func(session *models.Session) error {
		now := requestcontext.Now(ctx)
		if err := s.expireIfLapsed(ctx, session, now); err != nil {
			return err
		}
		session.Extend(now, s.config.MaxInactiveTime)

		if !s.config.RotateOnRefresh {
			if err := s.save(ctx, session, now); err != nil {
				return err
			}
			result = &models.SessionResult{SessionID: session.SessionID, Session: session}
			return nil
		}

		newID, err := crypto.GenerateSecureRandom(sessionIDBytes)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate session id")
		}
		oldID := session.SessionID
		session.PreviousSessionID = oldID
		session.SessionID = newID

		if err := s.save(ctx, session, now); err != nil {
			return err
		}
		if err := s.sessions.ReplaceUserSession(ctx, session.UserID, oldID, newID); err != nil {
			s.discardRotated(ctx, newID)
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update session index")
		}
		if err := s.sessions.Delete(ctx, oldID); err != nil {
			if rerr := s.sessions.ReplaceUserSession(ctx, session.UserID, newID, oldID); rerr != nil {
				s.logger.ErrorContext(ctx, "failed to restore session index after rotation", "error", rerr)
			}
			s.discardRotated(ctx, newID)
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to retire rotated session")
		}
		result = &models.SessionResult{SessionID: newID, Session: session, Rotated: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementSessionsRefreshed()
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventSessionRefreshed,
		"user_id", result.Session.UserID,
		"session_id", result.SessionID,
		"rotated", result.Rotated,
		"decision", audit.DecisionAllowed,
	)
	return result, nil
}

// discardRotated removes the record written for a rotation that did not complete.
func (s *Service) discardRotated(ctx context.Context, newID string) {
	if err := s.sessions.Delete(ctx, newID); err != nil {
		s.logger.ErrorContext(ctx, "failed to discard rotated session", "error", err)
	}
}

// expireIfLapsed deletes a lapsed session and returns session_expired.
// Caller holds the user lock.
func (s *Service) expireIfLapsed(ctx context.Context, session *models.Session, now time.Time) error {
	if !session.IsExpiredAt(now) {
		return nil
	}
	if err := s.remove(ctx, session.UserID, session.SessionID); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.IncrementSessionsExpired(1)
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventSessionExpired,
		"user_id", session.UserID,
		"session_id", session.SessionID,
		"decision", audit.DecisionDenied,
	)
	return dErrors.New(dErrors.CodeSessionExpired, "session expired")
}

// InvalidateSession deletes one session. It reports false when the session
// did not exist.
func (s *Service) InvalidateSession(ctx context.Context, sessionID string) (removed bool, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanSessionInvalidate,
		tracer.String(tracer.AttrSessionHash, tracer.HashSubject(sessionID)),
	)
	defer func() { span.End(err) }()

	var userID string
	err = s.withUserSession(ctx, sessionID, func(session *models.Session) error {
		userID = session.UserID
		return s.remove(ctx, session.UserID, session.SessionID)
	})
	if dErrors.HasCode(err, dErrors.CodeSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if s.metrics != nil {
		s.metrics.IncrementSessionsInvalidated(invalidateReasonLogout, 1)
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventSessionInvalidated,
		"user_id", userID,
		"session_id", sessionID,
		"reason", invalidateReasonLogout,
		"decision", audit.DecisionInfo,
	)
	return true, nil
}

// InvalidateAllUserSessions deletes every indexed session of userID and
// returns how many were removed.
func (s *Service) InvalidateAllUserSessions(ctx context.Context, userID string) (count int, err error) {
	if userID == "" {
		return 0, dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	ctx, span := s.tracer.Start(ctx, tracer.SpanSessionRevokeAll,
		tracer.String(tracer.AttrUserHash, tracer.HashSubject(userID)),
	)
	defer func() {
		span.SetAttributes(tracer.Int(tracer.AttrRevoked, count))
		span.End(err)
	}()

	start := time.Now()
	err = s.locks.With(models.UserSessionsKey(userID), func() error {
		ids, err := s.sessions.ListUserSessionIDs(ctx, userID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session index")
		}
		if len(ids) == 0 {
			return nil
		}
		count = len(ids)
		return s.remove(ctx, userID, ids...)
	})
	if err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.IncrementSessionsInvalidated(invalidateReasonLogoutAll, count)
		s.metrics.ObserveLogoutAll(count, float64(time.Since(start).Milliseconds()))
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventSessionsRevoked,
		"user_id", userID,
		"count", count,
		"decision", audit.DecisionInfo,
	)
	return count, nil
}
