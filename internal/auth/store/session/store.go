// Package session persists session records and the per-user session index in
// a kvstore.Store.
//
// Error Contract: Find returns sentinel.ErrNotFound when the record does not
// exist; infrastructure failures are wrapped with context. The index is not
// transactional with the records; callers serialise per-user writes and
// treat dangling index entries as already gone.
package session

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"authcore/internal/auth/models"
	"authcore/internal/platform/kvstore"
	"authcore/pkg/platform/sentinel"
)

// Store is a session store backed by a generic key-value store.
type Store struct {
	kv kvstore.Store
}

func New(kv kvstore.Store) *Store {
	return &Store{kv: kv}
}

// userIndex is the ordered list of a user's session ids, oldest first.
type userIndex struct {
	SessionIDs []string `json:"session_ids"`
}

// Save writes the session record. ttl bounds how long the backend keeps it.
func (s *Store) Save(ctx context.Context, session *models.Session, ttl time.Duration) error {
	if err := kvstore.SetJSON(ctx, s.kv, models.SessionKey(session.SessionID), session, ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) Find(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	err := kvstore.GetJSON(ctx, s.kv, models.SessionKey(sessionID), &session)
	if kvstore.IsNotFound(err) {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.kv.Delete(ctx, models.SessionKey(sessionID)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListUserSessionIDs returns the user's indexed session ids, oldest first.
func (s *Store) ListUserSessionIDs(ctx context.Context, userID string) ([]string, error) {
	var idx userIndex
	err := kvstore.GetJSON(ctx, s.kv, models.UserSessionsKey(userID), &idx)
	if kvstore.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session index: %w", err)
	}
	return idx.SessionIDs, nil
}

// AddUserSession appends sessionID to the user's index unless present.
func (s *Store) AddUserSession(ctx context.Context, userID, sessionID string) error {
	ids, err := s.ListUserSessionIDs(ctx, userID)
	if err != nil {
		return err
	}
	if slices.Contains(ids, sessionID) {
		return nil
	}
	return s.writeIndex(ctx, userID, append(ids, sessionID))
}

// ReplaceUserSession swaps oldID for newID keeping its position.
func (s *Store) ReplaceUserSession(ctx context.Context, userID, oldID, newID string) error {
	ids, err := s.ListUserSessionIDs(ctx, userID)
	if err != nil {
		return err
	}
	if i := slices.Index(ids, oldID); i >= 0 {
		ids[i] = newID
	} else {
		ids = append(ids, newID)
	}
	return s.writeIndex(ctx, userID, ids)
}

// RemoveUserSessions drops the given ids from the user's index. The index
// key is deleted when it becomes empty.
func (s *Store) RemoveUserSessions(ctx context.Context, userID string, sessionIDs ...string) error {
	ids, err := s.ListUserSessionIDs(ctx, userID)
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(ids, func(id string) bool {
		return slices.Contains(sessionIDs, id)
	})
	return s.writeIndex(ctx, userID, kept)
}

// ListUserIDs returns every user with a session index, for sweeps.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, models.UserSessionsKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list session indexes: %w", err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, models.UserSessionsKeyPrefix))
	}
	return out, nil
}

func (s *Store) writeIndex(ctx context.Context, userID string, ids []string) error {
	key := models.UserSessionsKey(userID)
	if len(ids) == 0 {
		if err := s.kv.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete session index: %w", err)
		}
		return nil
	}
	if err := kvstore.SetJSON(ctx, s.kv, key, userIndex{SessionIDs: ids}, 0); err != nil {
		return fmt.Errorf("save session index: %w", err)
	}
	return nil
}
