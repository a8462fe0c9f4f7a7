package kvstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	boltDirPerm     = fs.FileMode(0o700)
	boltFilePerm    = fs.FileMode(0o600)
	boltOpenTimeout = 5 * time.Second

	// envelope: 8-byte big-endian expiry (unix nanos, 0 = none) followed by the value
	envelopeHeader = 8
)

var kvBucket = []byte("kv")

// BoltStore persists entries in a single-file bbolt database. It is the
// device-local durable backend.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenBolt opens (creating if needed) the database at path.
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), boltDirPerm); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := bolt.Open(path, boltFilePerm, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(kvBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing bolt db: %w", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// Close releases the database file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func encodeEnvelope(value []byte, expiresAt time.Time) []byte {
	buf := make([]byte, envelopeHeader+len(value))
	if !expiresAt.IsZero() {
		binary.BigEndian.PutUint64(buf[:envelopeHeader], uint64(expiresAt.UnixNano()))
	}
	copy(buf[envelopeHeader:], value)
	return buf
}

// decodeEnvelope copies the value out of bolt-owned memory.
func decodeEnvelope(raw []byte, now time.Time) ([]byte, bool) {
	if len(raw) < envelopeHeader {
		return nil, false
	}
	if exp := binary.BigEndian.Uint64(raw[:envelopeHeader]); exp != 0 && !now.Before(time.Unix(0, int64(exp))) {
		return nil, false
	}
	return append([]byte(nil), raw[envelopeHeader:]...), true
}

func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(kvBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		out, found = decodeEnvelope(raw, s.now())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt get %q: %w", key, err)
	}
	if !found {
		return nil, notFound(key)
	}
	return out, nil
}

func (s *BoltStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(kvBucket).Put([]byte(key), encodeEnvelope(value, expiresAt))
	})
	if err != nil {
		return fmt.Errorf("bolt set %q: %w", key, err)
	}
	return nil
}

func (s *BoltStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(kvBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("bolt delete %q: %w", key, err)
	}
	return nil
}

func (s *BoltStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	p := []byte(prefix)
	now := s.now()
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(kvBucket).Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if _, live := decodeEnvelope(v, now); live {
				keys = append(keys, string(k))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt keys %q: %w", prefix, err)
	}
	return keys, nil
}

// PurgeExpired deletes expired entries and returns how many were removed.
func (s *BoltStore) PurgeExpired(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	removed := 0
	now := s.now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(kvBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if _, live := decodeEnvelope(v, now); !live {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bolt purge: %w", err)
	}
	return removed, nil
}
