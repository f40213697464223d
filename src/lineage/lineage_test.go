package lineage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/locvc/locvc/src/branches"
	"github.com/stretchr/testify/require"
	"go.brendoncarroll.net/exp/maybe"
)

type mapGraph map[uuid.UUID]uuid.UUID

func (g mapGraph) Parent(ctx context.Context, id uuid.UUID) (maybe.Maybe[uuid.UUID], error) {
	p, ok := g[id]
	if !ok {
		return maybe.Nothing[uuid.UUID](), nil
	}
	return maybe.Just(p), nil
}

func TestMergeBase(t *testing.T) {
	ctx := context.Background()
	root := uuid.New()
	a := uuid.New()
	b := uuid.New()
	aa := uuid.New()
	g := mapGraph{
		a:  root,
		b:  root,
		aa: a,
	}

	tcs := []struct {
		name string
		x, y uuid.UUID
		want uuid.UUID
	}{
		{"siblings", a, b, root},
		{"uncle", aa, b, root},
		{"parent-child", a, aa, a},
		{"child-parent", aa, a, a},
		{"self", a, a, a},
		{"root-self", root, root, root},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MergeBase(ctx, g, tc.x, tc.y)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestMergeBaseDisjoint(t *testing.T) {
	ctx := context.Background()
	g := mapGraph{}
	_, err := MergeBase(ctx, g, uuid.New(), uuid.New())
	require.True(t, branches.IsIntegrity(err), "%v", err)
}

func TestAncestors(t *testing.T) {
	ctx := context.Background()
	root := uuid.New()
	mid := uuid.New()
	leaf := uuid.New()
	g := mapGraph{mid: root, leaf: mid}

	chain, err := Ancestors(ctx, g, leaf)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{leaf, mid, root}, chain)
}

func TestAncestorsCycle(t *testing.T) {
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	g := mapGraph{a: b, b: a}
	_, err := Ancestors(ctx, g, a)
	require.True(t, branches.IsIntegrity(err), "%v", err)
}

func TestIsAncestor(t *testing.T) {
	ctx := context.Background()
	root := uuid.New()
	leaf := uuid.New()
	g := mapGraph{leaf: root}

	ok, err := IsAncestor(ctx, g, root, leaf)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = IsAncestor(ctx, g, leaf, root)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = IsAncestor(ctx, g, leaf, leaf)
	require.NoError(t, err)
	require.True(t, ok)
}
