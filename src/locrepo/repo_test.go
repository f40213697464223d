package locrepo

import (
	"testing"

	"github.com/google/uuid"
	"github.com/locvc/locvc/src/branches"
	"github.com/locvc/locvc/internal/testutil"
	"github.com/locvc/locvc/src/locdiff"
	"github.com/locvc/locvc/src/locmerge"
	"github.com/stretchr/testify/require"
)

func TestInitOpen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, Init(dir))
	require.Error(t, Init(dir))

	r, err := Open(dir)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), r.Config())
	require.NoError(t, r.Close())
}

func TestRepoPersistence(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	dir := t.TempDir()
	require.NoError(t, Init(dir))

	r, err := Open(dir)
	require.NoError(t, err)
	sp, err := r.CreateSpace(ctx, uuid.New(), "web")
	require.NoError(t, err)
	main, err := r.GetBranchByName(ctx, sp.ID, branches.DefaultBranchName)
	require.NoError(t, err)
	key := branches.KeyID{Namespace: "checkout", Name: "title"}
	require.NoError(t, r.PutKey(ctx, main.ID, key, "checkout page title"))
	require.NoError(t, r.SetValue(ctx, main.ID, key, "en", "Checkout"))
	require.NoError(t, r.Close())

	r2, err := Open(dir)
	require.NoError(t, err)
	defer r2.Close()
	snap, version, err := r2.GetSnapshot(ctx, main.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, version)
	require.Equal(t, "Checkout", snap[key].Values["en"])
}

func TestRepoMergeFlow(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	dir := t.TempDir()
	require.NoError(t, Init(dir))
	r, err := Open(dir)
	require.NoError(t, err)
	defer r.Close()

	sp, err := r.CreateSpace(ctx, uuid.New(), "web")
	require.NoError(t, err)
	main, err := r.GetBranchByName(ctx, sp.ID, branches.DefaultBranchName)
	require.NoError(t, err)
	key := branches.KeyID{Namespace: "checkout", Name: "title"}
	require.NoError(t, r.PutKey(ctx, main.ID, key, "checkout page title"))
	require.NoError(t, r.SetValue(ctx, main.ID, key, "en", "Checkout"))

	feature, err := r.CreateBranch(ctx, sp.ID, "feature-x", main.ID)
	require.NoError(t, err)
	require.NoError(t, r.SetValue(ctx, feature.ID, key, "en", "Secure Checkout"))
	require.NoError(t, r.SetValue(ctx, main.ID, key, "en", "Pay Now"))

	// both sides changed the same cell since the fork
	plan, err := r.PrepareMerge(ctx, feature.ID, main.ID)
	require.NoError(t, err)
	require.Len(t, plan.Conflicts, 1)
	cell := plan.Conflicts[0].Cell
	require.Equal(t, branches.Cell{Key: key, Lang: "en"}, cell)

	_, err = r.CommitMerge(ctx, plan.ID, nil)
	require.True(t, branches.IsConflict(err))

	mc, err := r.CommitMerge(ctx, plan.ID, map[branches.Cell]locmerge.Resolution{
		cell: locmerge.KeepSource(),
	})
	require.NoError(t, err)

	snap, _, err := r.GetSnapshot(ctx, main.ID)
	require.NoError(t, err)
	require.Equal(t, "Secure Checkout", snap[key].Values["en"])

	// commits are persisted with their inverse
	got, err := r.GetCommit(ctx, mc.ID)
	require.NoError(t, err)
	require.False(t, got.Inverse.IsEmpty())
	require.Len(t, got.Resolutions, 1)

	rc, err := r.RevertMerge(ctx, mc.ID, nil)
	require.NoError(t, err)
	require.True(t, rc.Revert)
	snap, _, err = r.GetSnapshot(ctx, main.ID)
	require.NoError(t, err)
	require.Equal(t, "Pay Now", snap[key].Values["en"])

	commits, err := r.ListCommits(ctx, main.ID)
	require.NoError(t, err)
	require.Len(t, commits, 2)

	// the committed plan is gone; an abandoned one can be discarded
	_, err = r.CommitMerge(ctx, plan.ID, nil)
	require.True(t, branches.IsNotFound(err), "%v", err)
	plan2, err := r.PrepareMerge(ctx, feature.ID, main.ID)
	require.NoError(t, err)
	r.DiscardPlan(plan2.ID)
	_, err = r.CommitMerge(ctx, plan2.ID, nil)
	require.True(t, branches.IsNotFound(err), "%v", err)
}

func TestRepoMergeRetry(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	dir := t.TempDir()
	require.NoError(t, Init(dir))
	r, err := Open(dir)
	require.NoError(t, err)
	defer r.Close()

	sp, err := r.CreateSpace(ctx, uuid.New(), "web")
	require.NoError(t, err)
	main, err := r.GetBranchByName(ctx, sp.ID, branches.DefaultBranchName)
	require.NoError(t, err)
	key := branches.KeyID{Namespace: "checkout", Name: "title"}
	require.NoError(t, r.PutKey(ctx, main.ID, key, "t"))
	require.NoError(t, r.SetValue(ctx, main.ID, key, "en", "Checkout"))
	feature, err := r.CreateBranch(ctx, sp.ID, "feature-x", main.ID)
	require.NoError(t, err)
	require.NoError(t, r.SetValue(ctx, feature.ID, key, "en", "Secure Checkout"))

	mc, err := r.Merge(ctx, feature.ID, main.ID, func(conflicts []locdiff.Conflict) (map[branches.Cell]locmerge.Resolution, error) {
		out := make(map[branches.Cell]locmerge.Resolution, len(conflicts))
		for _, c := range conflicts {
			out[c.Cell] = locmerge.KeepSource()
		}
		return out, nil
	})
	require.NoError(t, err)
	require.NotNil(t, mc)

	snap, _, err := r.GetSnapshot(ctx, main.ID)
	require.NoError(t, err)
	require.Equal(t, "Secure Checkout", snap[key].Values["en"])
}

func TestRepoEnvironmentFlow(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	dir := t.TempDir()
	require.NoError(t, Init(dir))
	r, err := Open(dir)
	require.NoError(t, err)
	defer r.Close()

	projectID := uuid.New()
	sp, err := r.CreateSpace(ctx, projectID, "web")
	require.NoError(t, err)
	main, err := r.GetBranchByName(ctx, sp.ID, branches.DefaultBranchName)
	require.NoError(t, err)
	feature, err := r.CreateBranch(ctx, sp.ID, "feature-x", main.ID)
	require.NoError(t, err)

	env, err := r.CreateEnvironment(ctx, projectID, "production", main.ID)
	require.NoError(t, err)
	require.NoError(t, r.SetBranch(ctx, env.ID, feature.ID))
	got, err := r.Resolve(ctx, env.ID)
	require.NoError(t, err)
	require.Equal(t, feature.ID, got)

	err = r.DeleteBranch(ctx, feature.ID)
	require.True(t, branches.IsConflict(err))
}

func TestSnapshotCache(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	dir := t.TempDir()
	require.NoError(t, Init(dir))
	r, err := Open(dir)
	require.NoError(t, err)
	defer r.Close()

	sp, err := r.CreateSpace(ctx, uuid.New(), "web")
	require.NoError(t, err)
	main, err := r.GetBranchByName(ctx, sp.ID, branches.DefaultBranchName)
	require.NoError(t, err)
	key := branches.KeyID{Namespace: "checkout", Name: "title"}
	require.NoError(t, r.PutKey(ctx, main.ID, key, "t"))
	require.NoError(t, r.SetValue(ctx, main.ID, key, "en", "Checkout"))

	snap1, v1, err := r.GetSnapshot(ctx, main.ID)
	require.NoError(t, err)
	snap2, v2, err := r.GetSnapshot(ctx, main.ID)
	require.NoError(t, err)
	require.Equal(t, v1, v2)
	require.True(t, snap1.Equal(snap2))

	// mutating a returned snapshot must not poison the cache
	snap1[key] = branches.KeyState{Description: "tampered"}
	snap3, _, err := r.GetSnapshot(ctx, main.ID)
	require.NoError(t, err)
	require.Equal(t, "t", snap3[key].Description)

	// a write invalidates by version
	require.NoError(t, r.SetValue(ctx, main.ID, key, "en", "Basket"))
	snap4, v4, err := r.GetSnapshot(ctx, main.ID)
	require.NoError(t, err)
	require.Equal(t, v1+1, v4)
	require.Equal(t, "Basket", snap4[key].Values["en"])
}
