package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Dialect captures the SQL differences between supported engines.
type Dialect struct {
	Name      string
	BlobType  string
	bindStyle func(n int) string
}

var (
	// Postgres is used through the pgx stdlib driver ("pgx").
	Postgres = Dialect{Name: "postgres", BlobType: "BYTEA", bindStyle: func(n int) string { return fmt.Sprintf("$%d", n) }}
	// SQLite is used through modernc.org/sqlite ("sqlite").
	SQLite = Dialect{Name: "sqlite", BlobType: "BLOB", bindStyle: func(int) string { return "?" }}
)

// SQLStore keeps entries in a single kv_entries table. Expiry is stored as
// unix nanoseconds, 0 meaning no expiry.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time

	qGet, qSet, qDelete, qKeys, qPurge string
}

// NewSQL wraps an open database handle. Call EnsureSchema before first use.
func NewSQL(db *sql.DB, dialect Dialect) *SQLStore {
	p := dialect.bindStyle
	return &SQLStore{
		db:      db,
		dialect: dialect,
		now:     time.Now,
		qGet:    fmt.Sprintf("SELECT value, expires_at FROM kv_entries WHERE key = %s", p(1)),
		qSet: fmt.Sprintf(`INSERT INTO kv_entries (key, value, expires_at) VALUES (%s, %s, %s)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`, p(1), p(2), p(3)),
		qDelete: fmt.Sprintf("DELETE FROM kv_entries WHERE key = %s", p(1)),
		qKeys: fmt.Sprintf(`SELECT key FROM kv_entries
WHERE substr(key, 1, %s) = %s AND (expires_at = 0 OR expires_at > %s) ORDER BY key`, p(1), p(2), p(3)),
		qPurge: fmt.Sprintf("DELETE FROM kv_entries WHERE expires_at <> 0 AND expires_at <= %s", p(1)),
	}
}

// EnsureSchema creates the backing table if it does not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS kv_entries (
	key TEXT PRIMARY KEY,
	value %s NOT NULL,
	expires_at BIGINT NOT NULL DEFAULT 0
)`, s.dialect.BlobType)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create kv_entries (%s): %w", s.dialect.Name, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value     []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, s.qGet, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("sql get %q: %w", key, err)
	}
	if expiresAt != 0 && s.now().UnixNano() >= expiresAt {
		return nil, notFound(key)
	}
	return value, nil
}

func (s *SQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixNano()
	}
	if _, err := s.db.ExecContext(ctx, s.qSet, key, value, expiresAt); err != nil {
		return fmt.Errorf("sql set %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.qDelete, key); err != nil {
		return fmt.Errorf("sql delete %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.qKeys, len(prefix), prefix, s.now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("sql keys %q: %w", prefix, err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("sql keys scan: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sql keys rows: %w", err)
	}
	return keys, nil
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (s *SQLStore) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, s.qPurge, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sql purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sql purge rows affected: %w", err)
	}
	return int(n), nil
}
