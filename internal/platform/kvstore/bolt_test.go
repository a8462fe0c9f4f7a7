package kvstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestBoltStore(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &storeContract{}
	c.newStore = func() Store {
		now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		s, err := OpenBolt(filepath.Join(t.TempDir(), "state", "authcore.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		s.now = func() time.Time { return now }
		return s
	}
	c.advance = func(d time.Duration) { now = now.Add(d) }
	suite.Run(t, c)
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authcore.db")
	ctx := context.Background()

	s, err := OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "session_1", []byte("persisted"), time.Hour))
	require.NoError(t, s.Close())

	reopened, err := OpenBolt(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "session_1")
	require.NoError(t, err)
	require.Equal(t, "persisted", string(got))
}

func TestBoltStorePurgeExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := OpenBolt(filepath.Join(t.TempDir(), "authcore.db"))
	require.NoError(t, err)
	defer s.Close()
	s.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, s.Set(ctx, "b", []byte("1"), time.Second))
	require.NoError(t, s.Set(ctx, "c", []byte("1"), 0))

	now = now.Add(time.Minute)
	removed, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	keys, err := s.Keys(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, keys)
}

func TestBoltStoreHonoursCancelledContext(t *testing.T) {
	s, err := OpenBolt(filepath.Join(t.TempDir(), "authcore.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Set(ctx, "k", []byte("v"), 0), context.Canceled)
}
