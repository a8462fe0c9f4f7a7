package service

import (
	"context"

	"authcore/internal/auth/models"
	dErrors "authcore/pkg/domain-errors"
	"authcore/pkg/requestcontext"
)

// SweepExpired removes expired sessions and dangling index entries for
// every user and returns how many sessions were expired.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	users, err := s.sessions.ListUserIDs(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list session owners")
	}

	now := requestcontext.Now(ctx)
	total := 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		err := s.locks.With(models.UserSessionsKey(userID), func() error {
			ids, err := s.sessions.ListUserSessionIDs(ctx, userID)
			if err != nil {
				return err
			}
			var drop []string
			expired := 0
			for _, id := range ids {
				session, err := s.find(ctx, id)
				if dErrors.HasCode(err, dErrors.CodeSessionNotFound) {
					drop = append(drop, id)
					continue
				}
				if err != nil {
					return err
				}
				if session.IsExpiredAt(now) {
					drop = append(drop, id)
					expired++
				}
			}
			if len(drop) == 0 {
				return nil
			}
			if err := s.remove(ctx, userID, drop...); err != nil {
				return err
			}
			total += expired
			if s.metrics != nil && expired > 0 {
				s.metrics.IncrementSessionsExpired(expired)
			}
			return nil
		})
		if err != nil {
			s.logger.WarnContext(ctx, "session sweep failed for user", "error", err)
		}
	}
	return total, nil
}
