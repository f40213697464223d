// Package envs maps deployment environments to branches.
//
// An environment is a named pointer owned by a project. Redirecting it is
// a single total replacement, so readers resolving an environment always
// observe a branch that was current at some point, never a torn update.
package envs

import (
	"context"

	"github.com/google/uuid"
	"go.brendoncarroll.net/tai64"
)

// Environment points a deployment surface at a branch.
type Environment struct {
	ID        uuid.UUID   `json:"id"`
	ProjectID uuid.UUID   `json:"project_id"`
	Name      string      `json:"name"`
	BranchID  uuid.UUID   `json:"branch_id"`
	CreatedAt tai64.TAI64 `json:"created_at"`
}

func (e *Environment) Clone() *Environment {
	e2 := *e
	return &e2
}

// Registry owns environments. BranchID is the only mutable field of an
// Environment; SetBranch replaces it atomically.
type Registry interface {
	// CreateEnvironment fails with ErrExists on a duplicate name within
	// the project, and with ErrNotFound if branchID does not resolve.
	CreateEnvironment(ctx context.Context, projectID uuid.UUID, name string, branchID uuid.UUID) (*Environment, error)
	GetEnvironment(ctx context.Context, envID uuid.UUID) (*Environment, error)
	ListEnvironments(ctx context.Context, projectID uuid.UUID) ([]Environment, error)
	// SetBranch atomically redirects the environment. It fails with
	// ErrNotFound if either id does not resolve.
	SetBranch(ctx context.Context, envID, branchID uuid.UUID) error
	// Resolve returns the branch the environment currently points at.
	Resolve(ctx context.Context, envID uuid.UUID) (uuid.UUID, error)
	DeleteEnvironment(ctx context.Context, envID uuid.UUID) error
}
