package branches

import (
	"context"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/locvc/locvc/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.brendoncarroll.net/state"
	"golang.org/x/exp/slices"
)

// TestStore runs the Store contract tests against a fresh store per case.
func TestStore(t *testing.T, newStore func(t testing.TB) Store) {
	t.Run("CreateSpace", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		x := newStore(t)
		sp, err := x.CreateSpace(ctx, uuid.New(), "web")
		require.NoError(t, err)
		require.NotNil(t, sp)

		main, err := x.GetBranchByName(ctx, sp.ID, DefaultBranchName)
		require.NoError(t, err)
		require.True(t, main.IsDefault)
		require.Nil(t, main.BaseBranchID)
		require.EqualValues(t, 0, main.Version)

		snap, version, err := x.GetSnapshot(ctx, main.ID)
		require.NoError(t, err)
		require.Empty(t, snap)
		require.EqualValues(t, 0, version)
	})
	t.Run("SpaceNameCollision", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		x := newStore(t)
		projectID := uuid.New()
		_, err := x.CreateSpace(ctx, projectID, "web")
		require.NoError(t, err)
		_, err = x.CreateSpace(ctx, projectID, "web")
		require.True(t, IsValidation(err), "%v", err)
	})
	t.Run("CreateBranch", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		x := newStore(t)
		sp, main := seedSpace(t, ctx, x)

		b, err := x.CreateBranch(ctx, sp.ID, "feature-x", main.ID)
		require.NoError(t, err)
		require.NotNil(t, b.BaseBranchID)
		require.Equal(t, main.ID, *b.BaseBranchID)
		require.EqualValues(t, 0, b.Version)
		require.False(t, b.IsDefault)

		parent, _, err := x.GetSnapshot(ctx, main.ID)
		require.NoError(t, err)
		child, _, err := x.GetSnapshot(ctx, b.ID)
		require.NoError(t, err)
		require.True(t, parent.Equal(child))
	})
	t.Run("BranchNameCollision", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		x := newStore(t)
		sp, main := seedSpace(t, ctx, x)
		_, err := x.CreateBranch(ctx, sp.ID, "feature-x", main.ID)
		require.NoError(t, err)
		_, err = x.CreateBranch(ctx, sp.ID, "feature-x", main.ID)
		require.True(t, IsValidation(err), "%v", err)
	})
	t.Run("CreateBranchMissingBase", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		x := newStore(t)
		sp, _ := seedSpace(t, ctx, x)
		_, err := x.CreateBranch(ctx, sp.ID, "feature-x", uuid.New())
		require.True(t, IsNotFound(err), "%v", err)
	})
	t.Run("CloneIsIsolated", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		x := newStore(t)
		sp, main := seedSpace(t, ctx, x)
		b, err := x.CreateBranch(ctx, sp.ID, "feature-x", main.ID)
		require.NoError(t, err)

		key := KeyID{Namespace: "checkout", Name: "title"}
		require.NoError(t, x.SetValue(ctx, b.ID, key, "en", "Secure Checkout"))

		parent, _, err := x.GetSnapshot(ctx, main.ID)
		require.NoError(t, err)
		require.Equal(t, "Checkout", parent[key].Values["en"])
		child, _, err := x.GetSnapshot(ctx, b.ID)
		require.NoError(t, err)
		require.Equal(t, "Secure Checkout", child[key].Values["en"])
	})
	t.Run("ForkSnapshotFrozen", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		x := newStore(t)
		sp, main := seedSpace(t, ctx, x)
		b, err := x.CreateBranch(ctx, sp.ID, "feature-x", main.ID)
		require.NoError(t, err)

		key := KeyID{Namespace: "checkout", Name: "title"}
		require.NoError(t, x.SetValue(ctx, main.ID, key, "en", "Basket"))

		fork, err := x.GetForkSnapshot(ctx, b.ID)
		require.NoError(t, err)
		require.Equal(t, "Checkout", fork[key].Values["en"])

		rootFork, err := x.GetForkSnapshot(ctx, main.ID)
		require.NoError(t, err)
		require.Empty(t, rootFork)
	})
	t.Run("EditorVersioning", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		x := newStore(t)
		_, main := seedSpace(t, ctx, x)
		key := KeyID{Namespace: "nav", Name: "home"}

		require.NoError(t, x.PutKey(ctx, main.ID, key, "home link"))
		require.NoError(t, x.SetValue(ctx, main.ID, key, "en", "Home"))
		require.NoError(t, x.SetValue(ctx, main.ID, key, "de", "Startseite"))
		require.NoError(t, x.DeleteValue(ctx, main.ID, key, "de"))
		require.NoError(t, x.DeleteKey(ctx, main.ID, key))

		b, err := x.GetBranch(ctx, main.ID)
		require.NoError(t, err)
		// seedSpace performed 2 writes before the 5 above.
		require.EqualValues(t, 7, b.Version)

		snap, _, err := x.GetSnapshot(ctx, main.ID)
		require.NoError(t, err)
		_, ok := snap[key]
		require.False(t, ok)
	})
	t.Run("EditorNotFound", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		x := newStore(t)
		_, main := seedSpace(t, ctx, x)
		missing := KeyID{Name: "missing"}
		require.True(t, IsNotFound(x.SetValue(ctx, main.ID, missing, "en", "x")))
		require.True(t, IsNotFound(x.DeleteKey(ctx, main.ID, missing)))
		require.True(t, IsNotFound(x.PutKey(ctx, uuid.New(), missing, "")))
	})
	t.Run("InvalidKeyID", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		x := newStore(t)
		_, main := seedSpace(t, ctx, x)
		// '/' separates namespace from name in the textual form, so keys
		// containing it would change identity across a round trip.
		for _, key := range []KeyID{
			{Name: "a/b"},
			{Namespace: "check/out", Name: "title"},
			{Namespace: "checkout"},
		} {
			err := x.PutKey(ctx, main.ID, key, "")
			require.True(t, IsValidation(err), "%v -> %v", key, err)
		}
		snap, _, err := x.GetSnapshot(ctx, main.ID)
		require.NoError(t, err)
		require.Len(t, snap, 1)
	})
	t.Run("DeleteDefaultBranch", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		x := newStore(t)
		_, main := seedSpace(t, ctx, x)
		err := x.DeleteBranch(ctx, main.ID)
		require.True(t, IsValidation(err), "%v", err)
	})
	t.Run("DeleteBranch", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		x := newStore(t)
		sp, main := seedSpace(t, ctx, x)
		b, err := x.CreateBranch(ctx, sp.ID, "doomed", main.ID)
		require.NoError(t, err)
		require.NoError(t, x.DeleteBranch(ctx, b.ID))
		_, err = x.GetBranch(ctx, b.ID)
		require.True(t, IsNotFound(err), "%v", err)
		_, _, err = x.GetSnapshot(ctx, b.ID)
		require.True(t, IsNotFound(err), "%v", err)
	})
	t.Run("ListBranches", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		x := newStore(t)
		sp, main := seedSpace(t, ctx, x)
		const N = 20
		for i := 0; i < N; i++ {
			_, err := x.CreateBranch(ctx, sp.ID, "feature-"+strconv.Itoa(i), main.ID)
			require.NoError(t, err)
		}
		names, err := x.ListBranches(ctx, sp.ID, state.TotalSpan[string](), 0)
		require.NoError(t, err)
		require.Len(t, names, N+1) // including main
		require.True(t, slices.IsSorted(names))

		names, err = x.ListBranches(ctx, sp.ID, state.TotalSpan[string](), 5)
		require.NoError(t, err)
		require.Len(t, names, 5)
	})
	t.Run("SnapshotNotFound", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t)
		x := newStore(t)
		_, _, err := x.GetSnapshot(ctx, uuid.New())
		require.True(t, IsNotFound(err), "%v", err)
	})
}

// seedSpace creates a space whose default branch holds
// checkout/title = {en: "Checkout"}.
func seedSpace(t testing.TB, ctx context.Context, x Store) (*Space, *Branch) {
	sp, err := x.CreateSpace(ctx, uuid.New(), "web")
	require.NoError(t, err)
	main, err := x.GetBranchByName(ctx, sp.ID, DefaultBranchName)
	require.NoError(t, err)
	key := KeyID{Namespace: "checkout", Name: "title"}
	require.NoError(t, x.PutKey(ctx, main.ID, key, "checkout page title"))
	require.NoError(t, x.SetValue(ctx, main.ID, key, "en", "Checkout"))
	main, err = x.GetBranch(ctx, main.ID)
	require.NoError(t, err)
	return sp, main
}
