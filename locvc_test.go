package locvc

import (
	"testing"

	"github.com/google/uuid"
	"github.com/locvc/locvc/src/branches"
	"github.com/locvc/locvc/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitOpen(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	dir := t.TempDir()
	require.NoError(t, InitRepo(dir))
	r, err := OpenRepo(dir)
	require.NoError(t, err)
	defer r.Close()

	sp, err := r.CreateSpace(ctx, uuid.New(), "web")
	require.NoError(t, err)
	main, err := r.GetBranchByName(ctx, sp.ID, branches.DefaultBranchName)
	require.NoError(t, err)
	require.True(t, main.IsDefault)
}
