package locrepo

import (
	"testing"

	"github.com/locvc/locvc/src/branches"
	"github.com/locvc/locvc/src/envs"
	"github.com/locvc/locvc/src/internal/migrations"
	"github.com/locvc/locvc/src/internal/sqlutil"
	"github.com/locvc/locvc/internal/testutil"
	"github.com/locvc/locvc/src/locmerge"
	"github.com/locvc/locvc/src/locrepo/internal/dbmig"
	"github.com/stretchr/testify/require"
)

func TestBranchStore(t *testing.T) {
	branches.TestStore(t, func(t testing.TB) branches.Store {
		return newTestStore(t)
	})
}

func TestMergeStore(t *testing.T) {
	locmerge.TestStore(t, func(t testing.TB) locmerge.FullStore {
		return newTestStore(t)
	})
}

func TestEnvRegistry(t *testing.T) {
	envs.TestRegistry(t, func(t testing.TB) (envs.Registry, branches.Store) {
		s := newTestStore(t)
		return s, s
	})
}

func newTestStore(t testing.TB) *sqlStore {
	ctx := testutil.Context(t)
	pool := sqlutil.NewTestPool(t)
	err := sqlutil.Borrow(ctx, pool, func(conn *sqlutil.Conn) error {
		return migrations.EnsureAll(ctx, conn, dbmig.ListMigrations())
	})
	require.NoError(t, err)
	return newSQLStore(pool)
}
