package envs

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/locvc/locvc/src/branches"
	"github.com/locvc/locvc/internal/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// TestRegistry runs the registry test suite. newDeps must return a
// Registry and a branch store sharing the same backing state, so that
// branch guard rails are observable.
func TestRegistry(t *testing.T, newDeps func(t testing.TB) (Registry, branches.Store)) {
	t.Run("CreateGetList", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		reg, x := newDeps(t)
		_, main := seedSpace(t, ctx, x)
		projectID := uuid.New()

		env, err := reg.CreateEnvironment(ctx, projectID, "production", main.ID)
		require.NoError(t, err)
		require.Equal(t, main.ID, env.BranchID)

		got, err := reg.GetEnvironment(ctx, env.ID)
		require.NoError(t, err)
		require.Equal(t, env.ID, got.ID)
		require.Equal(t, "production", got.Name)

		_, err = reg.CreateEnvironment(ctx, projectID, "staging", main.ID)
		require.NoError(t, err)
		envs, err := reg.ListEnvironments(ctx, projectID)
		require.NoError(t, err)
		require.Len(t, envs, 2)

		other, err := reg.ListEnvironments(ctx, uuid.New())
		require.NoError(t, err)
		require.Empty(t, other)
	})
	t.Run("NameCollision", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		reg, x := newDeps(t)
		_, main := seedSpace(t, ctx, x)
		projectID := uuid.New()

		_, err := reg.CreateEnvironment(ctx, projectID, "production", main.ID)
		require.NoError(t, err)
		_, err = reg.CreateEnvironment(ctx, projectID, "production", main.ID)
		require.True(t, branches.IsValidation(err))
	})
	t.Run("MissingBranch", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		reg, _ := newDeps(t)
		_, err := reg.CreateEnvironment(ctx, uuid.New(), "production", uuid.New())
		require.True(t, branches.IsNotFound(err))
	})
	t.Run("SetBranchResolve", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		reg, x := newDeps(t)
		sp, main := seedSpace(t, ctx, x)
		feature, err := x.CreateBranch(ctx, sp.ID, "feature-x", main.ID)
		require.NoError(t, err)

		env, err := reg.CreateEnvironment(ctx, uuid.New(), "production", main.ID)
		require.NoError(t, err)
		require.NoError(t, reg.SetBranch(ctx, env.ID, feature.ID))
		got, err := reg.Resolve(ctx, env.ID)
		require.NoError(t, err)
		require.Equal(t, feature.ID, got)

		require.True(t, branches.IsNotFound(reg.SetBranch(ctx, env.ID, uuid.New())))
		require.True(t, branches.IsNotFound(reg.SetBranch(ctx, uuid.New(), main.ID)))
		_, err = reg.Resolve(ctx, uuid.New())
		require.True(t, branches.IsNotFound(err))
	})
	t.Run("SwitchIsAtomic", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		reg, x := newDeps(t)
		sp, main := seedSpace(t, ctx, x)
		feature, err := x.CreateBranch(ctx, sp.ID, "feature-x", main.ID)
		require.NoError(t, err)
		env, err := reg.CreateEnvironment(ctx, uuid.New(), "production", main.ID)
		require.NoError(t, err)

		valid := map[uuid.UUID]struct{}{main.ID: {}, feature.ID: {}}
		eg := errgroup.Group{}
		eg.Go(func() error {
			for i := 0; i < 50; i++ {
				next := main.ID
				if i%2 == 0 {
					next = feature.ID
				}
				if err := reg.SetBranch(ctx, env.ID, next); err != nil {
					return err
				}
			}
			return nil
		})
		for i := 0; i < 4; i++ {
			eg.Go(func() error {
				for j := 0; j < 50; j++ {
					got, err := reg.Resolve(ctx, env.ID)
					if err != nil {
						return err
					}
					if _, ok := valid[got]; !ok {
						return branches.ErrIntegrity{Reason: "environment resolved to an unknown branch"}
					}
				}
				return nil
			})
		}
		require.NoError(t, eg.Wait())
	})
	t.Run("DeleteEnvironment", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		reg, x := newDeps(t)
		_, main := seedSpace(t, ctx, x)
		env, err := reg.CreateEnvironment(ctx, uuid.New(), "production", main.ID)
		require.NoError(t, err)
		require.NoError(t, reg.DeleteEnvironment(ctx, env.ID))
		_, err = reg.GetEnvironment(ctx, env.ID)
		require.True(t, branches.IsNotFound(err))
		require.True(t, branches.IsNotFound(reg.DeleteEnvironment(ctx, env.ID)))
	})
	t.Run("GuardsBranchDelete", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		reg, x := newDeps(t)
		sp, main := seedSpace(t, ctx, x)
		feature, err := x.CreateBranch(ctx, sp.ID, "feature-x", main.ID)
		require.NoError(t, err)
		env, err := reg.CreateEnvironment(ctx, uuid.New(), "production", feature.ID)
		require.NoError(t, err)

		err = x.DeleteBranch(ctx, feature.ID)
		require.True(t, branches.IsConflict(err))

		require.NoError(t, reg.SetBranch(ctx, env.ID, main.ID))
		require.NoError(t, x.DeleteBranch(ctx, feature.ID))
	})
}

func seedSpace(t testing.TB, ctx context.Context, x branches.Store) (*branches.Space, *branches.Branch) {
	sp, err := x.CreateSpace(ctx, uuid.New(), "web")
	require.NoError(t, err)
	main, err := x.GetBranchByName(ctx, sp.ID, branches.DefaultBranchName)
	require.NoError(t, err)
	return sp, main
}
