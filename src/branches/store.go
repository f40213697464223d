package branches

import (
	"context"

	"github.com/google/uuid"
	"go.brendoncarroll.net/state"
)

// Store owns the lifecycle of spaces, branches, and their content.
// Implementations must make every mutating call atomic: a failed call
// leaves the store exactly as it was.
type Store interface {
	// CreateSpace creates a space and its default branch.
	CreateSpace(ctx context.Context, projectID uuid.UUID, name string) (*Space, error)
	GetSpace(ctx context.Context, id uuid.UUID) (*Space, error)
	ListSpaces(ctx context.Context, projectID uuid.UUID) ([]Space, error)

	// CreateBranch clones every key and translation of fromBranchID into a
	// new branch with Version 0 and BaseBranchID set to fromBranchID.
	CreateBranch(ctx context.Context, spaceID uuid.UUID, name string, fromBranchID uuid.UUID) (*Branch, error)
	// DeleteBranch removes a fully-merged branch. It fails with ErrConflict
	// while any environment points at the branch, and with ErrValidation
	// for the space's default branch.
	DeleteBranch(ctx context.Context, branchID uuid.UUID) error
	GetBranch(ctx context.Context, branchID uuid.UUID) (*Branch, error)
	GetBranchByName(ctx context.Context, spaceID uuid.UUID, name string) (*Branch, error)
	// ListBranches returns the names of branches in the space within span,
	// in lexical order. limit <= 0 means no limit.
	ListBranches(ctx context.Context, spaceID uuid.UUID, span state.Span[string], limit int) ([]string, error)

	// GetSnapshot returns the branch's full content and the version it was
	// read at. The returned snapshot is the caller's to keep.
	GetSnapshot(ctx context.Context, branchID uuid.UUID) (Snapshot, int64, error)
	// GetForkSnapshot returns the content the branch was created from,
	// frozen at creation time. It is empty for a space's root branch.
	// Three-way merges use it as the base content, so edits to the base
	// branch after the fork register as target-side changes.
	GetForkSnapshot(ctx context.Context, branchID uuid.UUID) (Snapshot, error)

	// Editor write path. Each call bumps the branch version by one.
	PutKey(ctx context.Context, branchID uuid.UUID, key KeyID, description string) error
	DeleteKey(ctx context.Context, branchID uuid.UUID, key KeyID) error
	SetValue(ctx context.Context, branchID uuid.UUID, key KeyID, lang, value string) error
	DeleteValue(ctx context.Context, branchID uuid.UUID, key KeyID, lang string) error
}
