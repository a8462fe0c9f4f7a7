package service

import (
	"context"
	"errors"

	"authcore/pkg/platform/sentinel"
	"authcore/pkg/requestcontext"
)

// SweepExpired removes pending codes past their expiry and returns how many
// were deleted.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	userIDs, err := s.store.ListPendingUserIDs(ctx)
	if err != nil {
		return 0, err
	}
	now := requestcontext.Now(ctx)
	removed := 0
	for _, userID := range userIDs {
		err := s.withUser(userID, func() error {
			pending, err := s.store.GetPending(ctx, userID)
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if !pending.IsExpiredAt(now) {
				return nil
			}
			if err := s.store.DeletePending(ctx, userID); err != nil {
				return err
			}
			removed++
			return nil
		})
		if err != nil {
			return removed, err
		}
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "expired two-factor codes swept", "count", removed)
	}
	return removed, nil
}
