// Package lineage computes merge-bases over the immutable parent pointers
// of a branch tree.
package lineage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/locvc/locvc/src/branches"
	"go.brendoncarroll.net/exp/maybe"
)

// Graph resolves a branch to its base branch.
// Nothing is returned for a root branch.
type Graph interface {
	Parent(ctx context.Context, id uuid.UUID) (maybe.Maybe[uuid.UUID], error)
}

// GraphFunc adapts a function to the Graph interface.
type GraphFunc func(ctx context.Context, id uuid.UUID) (maybe.Maybe[uuid.UUID], error)

func (f GraphFunc) Parent(ctx context.Context, id uuid.UUID) (maybe.Maybe[uuid.UUID], error) {
	return f(ctx, id)
}

// Ancestors returns id followed by every ancestor up to the root.
// Base pointers are immutable, so the chain is acyclic by construction;
// the visited set only guards against a corrupted store.
func Ancestors(ctx context.Context, g Graph, id uuid.UUID) ([]uuid.UUID, error) {
	var chain []uuid.UUID
	visited := make(map[uuid.UUID]struct{})
	for {
		if _, ok := visited[id]; ok {
			return nil, branches.ErrIntegrity{Reason: fmt.Sprintf("lineage cycle through branch %v", id)}
		}
		visited[id] = struct{}{}
		chain = append(chain, id)
		parent, err := g.Parent(ctx, id)
		if err != nil {
			return nil, err
		}
		if !parent.Ok {
			return chain, nil
		}
		id = parent.X
	}
}

// MergeBase returns the nearest common ancestor of a and b.
// Each branch has at most one parent, so all shared ancestors form a single
// chain; the first ancestor of b that also appears in a's chain minimizes
// the combined distance.
func MergeBase(ctx context.Context, g Graph, a, b uuid.UUID) (uuid.UUID, error) {
	chainA, err := Ancestors(ctx, g, a)
	if err != nil {
		return uuid.Nil, err
	}
	depthA := make(map[uuid.UUID]int, len(chainA))
	for i, id := range chainA {
		depthA[id] = i
	}
	chainB, err := Ancestors(ctx, g, b)
	if err != nil {
		return uuid.Nil, err
	}
	for _, id := range chainB {
		if _, ok := depthA[id]; ok {
			return id, nil
		}
	}
	return uuid.Nil, branches.ErrIntegrity{
		Reason: fmt.Sprintf("branches %v and %v have no common ancestor", a, b),
	}
}

// IsAncestor reports whether anc appears in desc's ancestor chain.
// A branch is considered its own ancestor.
func IsAncestor(ctx context.Context, g Graph, anc, desc uuid.UUID) (bool, error) {
	chain, err := Ancestors(ctx, g, desc)
	if err != nil {
		return false, err
	}
	for _, id := range chain {
		if id == anc {
			return true, nil
		}
	}
	return false, nil
}

// StoreGraph is a Graph backed by a branch store.
type StoreGraph struct {
	Store interface {
		GetBranch(ctx context.Context, branchID uuid.UUID) (*branches.Branch, error)
	}
}

func (g StoreGraph) Parent(ctx context.Context, id uuid.UUID) (maybe.Maybe[uuid.UUID], error) {
	b, err := g.Store.GetBranch(ctx, id)
	if err != nil {
		return maybe.Nothing[uuid.UUID](), err
	}
	if b.BaseBranchID == nil {
		return maybe.Nothing[uuid.UUID](), nil
	}
	return maybe.Just(*b.BaseBranchID), nil
}
