package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authcore/internal/platform/config"
)

func TestSQLitePool(t *testing.T) {
	ctx := context.Background()
	pool, err := New(ctx, DriverSQLite, filepath.Join(t.TempDir(), "pool.sqlite"), config.DatabaseConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	assert.NoError(t, pool.Health(ctx))
	assert.Equal(t, DriverSQLite, pool.Driver())
	assert.Equal(t, 1, pool.Stats().MaxOpenConnections)
}

func TestEmptyDSN(t *testing.T) {
	_, err := New(context.Background(), DriverPostgres, "", config.DatabaseConfig{})
	assert.Error(t, err)
}

func TestNilPoolIsSafe(t *testing.T) {
	var p *Pool
	assert.Error(t, p.Health(context.Background()))
	assert.NoError(t, p.Close())
}
