// Package store persists two-factor records in a kvstore.Store.
//
// Error Contract: getters return sentinel.ErrNotFound (wrapped) when the
// record does not exist.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"authcore/internal/mfa/models"
	"authcore/internal/platform/kvstore"
)

type Store struct {
	kv kvstore.Store
}

func New(kv kvstore.Store) *Store {
	return &Store{kv: kv}
}

func (s *Store) GetStatus(ctx context.Context, userID string) (*models.Status, error) {
	var st models.Status
	if err := kvstore.GetJSON(ctx, s.kv, models.StatusKey(userID), &st); err != nil {
		return nil, fmt.Errorf("get two-factor status: %w", err)
	}
	return &st, nil
}

func (s *Store) SaveStatus(ctx context.Context, userID string, st *models.Status) error {
	if err := kvstore.SetJSON(ctx, s.kv, models.StatusKey(userID), st, 0); err != nil {
		return fmt.Errorf("save two-factor status: %w", err)
	}
	return nil
}

func (s *Store) GetSecret(ctx context.Context, userID string) (*models.Secret, error) {
	var sec models.Secret
	if err := kvstore.GetJSON(ctx, s.kv, models.SecretKey(userID), &sec); err != nil {
		return nil, fmt.Errorf("get two-factor secret: %w", err)
	}
	return &sec, nil
}

func (s *Store) SaveSecret(ctx context.Context, userID string, sec *models.Secret) error {
	if err := kvstore.SetJSON(ctx, s.kv, models.SecretKey(userID), sec, 0); err != nil {
		return fmt.Errorf("save two-factor secret: %w", err)
	}
	return nil
}

func (s *Store) GetBackupCodes(ctx context.Context, userID string) (*models.BackupCodeSet, error) {
	var set models.BackupCodeSet
	if err := kvstore.GetJSON(ctx, s.kv, models.BackupCodesKey(userID), &set); err != nil {
		return nil, fmt.Errorf("get backup codes: %w", err)
	}
	return &set, nil
}

func (s *Store) SaveBackupCodes(ctx context.Context, userID string, set *models.BackupCodeSet) error {
	if err := kvstore.SetJSON(ctx, s.kv, models.BackupCodesKey(userID), set, 0); err != nil {
		return fmt.Errorf("save backup codes: %w", err)
	}
	return nil
}

func (s *Store) GetPending(ctx context.Context, userID string) (*models.PendingChallenge, error) {
	var p models.PendingChallenge
	if err := kvstore.GetJSON(ctx, s.kv, models.PendingKey(userID), &p); err != nil {
		return nil, fmt.Errorf("get pending challenge: %w", err)
	}
	return &p, nil
}

// SavePending stores the challenge until it expires.
func (s *Store) SavePending(ctx context.Context, userID string, p *models.PendingChallenge, ttl time.Duration) error {
	if err := kvstore.SetJSON(ctx, s.kv, models.PendingKey(userID), p, ttl); err != nil {
		return fmt.Errorf("save pending challenge: %w", err)
	}
	return nil
}

func (s *Store) DeletePending(ctx context.Context, userID string) error {
	if err := s.kv.Delete(ctx, models.PendingKey(userID)); err != nil {
		return fmt.Errorf("delete pending challenge: %w", err)
	}
	return nil
}

// DeleteAll removes every two-factor record of userID.
func (s *Store) DeleteAll(ctx context.Context, userID string) error {
	var errs []error
	for _, key := range []string{
		models.SecretKey(userID),
		models.BackupCodesKey(userID),
		models.PendingKey(userID),
		models.StatusKey(userID),
	} {
		if err := s.kv.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", strings.TrimSuffix(key, userID), err))
		}
	}
	return errors.Join(errs...)
}

// ListPendingUserIDs returns users with an outstanding challenge.
func (s *Store) ListPendingUserIDs(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, models.PendingKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list pending challenges: %w", err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, models.PendingKeyPrefix))
	}
	return out, nil
}
