package service

import (
	"context"

	"authcore/internal/auth/device"
	"authcore/internal/auth/models"
	dErrors "authcore/pkg/domain-errors"
	"authcore/pkg/requestcontext"
)

// GetUserSessions returns the user's stored sessions, oldest first. It does
// not mutate anything: expired records are returned as they are.
func (s *Service) GetUserSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	ids, err := s.sessions.ListUserSessionIDs(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sessions")
	}

	out := make([]*models.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.find(ctx, id)
		if dErrors.HasCode(err, dErrors.CodeSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

// GetUserSessionInfo builds the "active devices" view for userID.
func (s *Service) GetUserSessionInfo(ctx context.Context, userID string) (*models.UserSessionInfo, error) {
	sessions, err := s.GetUserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	info := &models.UserSessionInfo{
		UserID:        userID,
		TotalSessions: len(sessions),
		Sessions:      make([]models.DeviceSession, 0, len(sessions)),
	}
	for _, session := range sessions {
		active := !session.IsExpiredAt(now)
		if active {
			info.ActiveSessions++
		}
		info.Sessions = append(info.Sessions, models.DeviceSession{
			SessionID:    session.SessionID,
			Device:       device.DisplayName(session.UserAgent),
			CreatedAt:    session.CreatedAt,
			LastActivity: session.LastActivity,
			ExpiresAt:    session.ExpiresAt,
			IsActive:     active,
		})
	}
	return info, nil
}
