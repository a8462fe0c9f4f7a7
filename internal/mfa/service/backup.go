package service

import (
	"context"
	"errors"
	"slices"

	"authcore/internal/audit"
	"authcore/internal/crypto"
	"authcore/internal/mfa/models"
	"authcore/internal/platform/tracer"
	dErrors "authcore/pkg/domain-errors"
	"authcore/pkg/platform/sentinel"
	"authcore/pkg/requestcontext"
)

// UseBackupCode consumes one backup code. Input is matched case-insensitively
// with separators ignored. A code that matches no unused entry yields
// CodeBackupCodeNotFound.
func (s *Service) UseBackupCode(ctx context.Context, userID, code string) (used bool, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanTwoFactorBackup,
		tracer.String(tracer.AttrUserHash, tracer.HashSubject(userID)),
	)
	defer func() { span.End(err) }()

	now := requestcontext.Now(ctx)
	remaining := 0
	err = s.withUser(userID, func() error {
		st, err := s.requireEnabled(ctx, userID)
		if err != nil {
			return err
		}
		used, remaining, err = s.consumeBackupCode(ctx, userID, code)
		if err != nil || !used {
			return err
		}
		st.BackupCodesRemaining = remaining
		st.LastUsedAt = timePtr(now)
		return s.saveStatus(ctx, userID, st)
	})
	if err != nil {
		return false, err
	}

	if !used {
		if s.metrics != nil {
			s.metrics.IncrementBackupCodeRejected()
		}
		audit.Log(ctx, s.logger, s.auditPublisher, audit.EventTwoFactorFailed,
			"user_id", userID,
			"method", "backup_code",
			"reason", "backup_code_not_found",
			"decision", audit.DecisionDenied,
		)
		return false, dErrors.New(dErrors.CodeBackupCodeNotFound, "backup code not found")
	}

	if s.metrics != nil {
		s.metrics.IncrementBackupCodeUsed()
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventBackupCodeUsed,
		"user_id", userID,
		"remaining", remaining,
		"decision", audit.DecisionAllowed,
	)
	if remaining == 0 {
		s.logger.WarnContext(ctx, "last backup code used", "user_id", tracer.HashSubject(userID))
	}
	return true, nil
}

// consumeBackupCode removes the matching hash. Caller holds the user lock.
func (s *Service) consumeBackupCode(ctx context.Context, userID, code string) (bool, int, error) {
	set, err := s.store.GetBackupCodes(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load backup codes")
	}
	idx := matchBackupCode(set, code)
	if idx < 0 {
		return false, len(set.Hashes), nil
	}
	set.Hashes = slices.Delete(set.Hashes, idx, idx+1)
	if err := s.store.SaveBackupCodes(ctx, userID, set); err != nil {
		return false, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist backup codes")
	}
	return true, len(set.Hashes), nil
}

// matchBackupCode compares against every entry so timing does not reveal
// the position of a match.
func matchBackupCode(set *models.BackupCodeSet, code string) int {
	normalized := crypto.NormalizeBackupCode(code)
	if normalized == "" {
		return -1
	}
	hash := crypto.CreateHash(normalized, set.Salt)
	idx := -1
	for i, h := range set.Hashes {
		if crypto.SecureCompare(h, hash) && idx < 0 {
			idx = i
		}
	}
	return idx
}

// RegenerateBackupCodes replaces the whole set and returns the new codes.
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID string) (codes []string, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanTwoFactorBackup,
		tracer.String(tracer.AttrUserHash, tracer.HashSubject(userID)),
		tracer.String(tracer.AttrOutcome, "regenerate"),
	)
	defer func() { span.End(err) }()

	now := requestcontext.Now(ctx)
	err = s.withUser(userID, func() error {
		st, err := s.requireEnabled(ctx, userID)
		if err != nil {
			return err
		}
		var set *models.BackupCodeSet
		codes, set, err = s.newBackupCodes(now)
		if err != nil {
			return err
		}
		if err := s.store.SaveBackupCodes(ctx, userID, set); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist backup codes")
		}
		st.BackupCodesRemaining = len(codes)
		return s.saveStatus(ctx, userID, st)
	})
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.EventBackupCodesRegenerated,
		"user_id", userID,
		"count", len(codes),
		"decision", audit.DecisionInfo,
	)
	return codes, nil
}
