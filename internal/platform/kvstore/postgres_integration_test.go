//go:build integration

package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"authcore/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	pg := containers.GetManager().GetPostgres(t)

	c := &storeContract{}
	c.newStore = func() Store {
		require.NoError(t, pg.DropTables(ctx, "kv_entries"))
		s := NewSQL(pg.Pool.DB(), Postgres)
		require.NoError(t, s.EnsureSchema(ctx))
		return s
	}
	suite.Run(t, c)
}
