package locmerge

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/locvc/locvc/src/branches"
	"github.com/locvc/locvc/internal/testutil"
	"github.com/stretchr/testify/require"
)

// FullStore combines branch lifecycle with merge commit persistence.
type FullStore interface {
	branches.Store
	Store
}

// TestStore runs the merge-commit persistence contract against a fresh
// store per case.
func TestStore(t *testing.T, newStore func(t testing.TB) FullStore) {
	t.Run("CommitRoundTrip", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		x := newStore(t)
		feature, mc := seedCommit(t, ctx, x)

		got, err := x.GetCommit(ctx, mc.ID)
		require.NoError(t, err)
		require.Equal(t, feature, got.TargetBranchID)
		require.Equal(t, mc.ResultingVersion, got.ResultingVersion)
		require.False(t, got.Revert)
		require.Nil(t, got.RevertOf)
		require.False(t, got.Applied.IsEmpty())
		require.False(t, got.Inverse.IsEmpty())

		commits, err := x.ListCommits(ctx, feature)
		require.NoError(t, err)
		require.Len(t, commits, 1)
		require.Equal(t, mc.ID, commits[0].ID)
	})
	t.Run("CommitsDeletedWithBranch", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		x := newStore(t)
		feature, mc := seedCommit(t, ctx, x)

		require.NoError(t, x.DeleteBranch(ctx, feature))
		_, err := x.GetCommit(ctx, mc.ID)
		require.True(t, branches.IsNotFound(err), "%v", err)
		commits, err := x.ListCommits(ctx, feature)
		require.NoError(t, err)
		require.Empty(t, commits)
	})
}

// seedCommit merges the default branch forward into a fresh feature
// branch, leaving one merge commit on it.
func seedCommit(t testing.TB, ctx context.Context, x FullStore) (uuid.UUID, *MergeCommit) {
	sp, err := x.CreateSpace(ctx, uuid.New(), "web")
	require.NoError(t, err)
	main, err := x.GetBranchByName(ctx, sp.ID, branches.DefaultBranchName)
	require.NoError(t, err)
	key := branches.KeyID{Namespace: "checkout", Name: "title"}
	require.NoError(t, x.PutKey(ctx, main.ID, key, "checkout page title"))
	require.NoError(t, x.SetValue(ctx, main.ID, key, "en", "Checkout"))

	feature, err := x.CreateBranch(ctx, sp.ID, "feature-x", main.ID)
	require.NoError(t, err)
	require.NoError(t, x.SetValue(ctx, main.ID, key, "en", "Basket"))

	m := NewMachine(x)
	plan, err := m.PrepareMerge(ctx, main.ID, feature.ID)
	require.NoError(t, err)
	require.Empty(t, plan.Conflicts)
	mc, err := m.CommitMergePlan(ctx, plan, nil)
	require.NoError(t, err)

	snap, _, err := x.GetSnapshot(ctx, feature.ID)
	require.NoError(t, err)
	require.Equal(t, "Basket", snap[key].Values["en"])
	return feature.ID, mc
}
