// Package kvstore is the durable key-value boundary of the security core.
//
// Every service reads and writes JSON records through Store under namespaced
// keys (session_<id>, rate_limit_<ns>_<id>, backup_codes_<user>...). Tests use
// the in-memory implementation; production wires a durable backend, usually
// behind Layered so the process keeps working when the backend is slow.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"authcore/pkg/platform/sentinel"
)

// Store is a byte-oriented key-value store with optional per-key expiry.
//
// Error contract:
//   - Get returns sentinel.ErrNotFound (wrapped) for missing or expired keys
//   - Delete of a missing key is not an error
//   - infrastructure failures are wrapped with context
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Keys lists live keys starting with prefix, in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Purger is implemented by stores that keep expired entries until swept.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// GetJSON loads key and decodes it into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data, ttl)
}

// IsNotFound reports whether err means the key does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sentinel.ErrNotFound)
}

func notFound(key string) error {
	return fmt.Errorf("key %q: %w", key, sentinel.ErrNotFound)
}
