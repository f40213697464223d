package branches

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Record kinds used in ErrNotFound and ErrExists.
const (
	KindSpace       = "space"
	KindBranch      = "branch"
	KindKey         = "key"
	KindValue       = "translation"
	KindEnvironment = "environment"
	KindCommit      = "merge commit"
	KindPlan        = "merge plan"
)

// ErrNotFound indicates that an id did not resolve to a record.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s does not exist", e.Kind, e.ID)
}

func IsNotFound(err error) bool {
	var e ErrNotFound
	return errors.As(err, &e)
}

// ErrExists indicates a name collision inside a space or project.
type ErrExists struct {
	Kind string
	Name string
}

func (e ErrExists) Error() string {
	return fmt.Sprintf("a %s already exists with name %q", e.Kind, e.Name)
}

type ErrInvalidName struct {
	Name   string
	Reason string
}

func (e ErrInvalidName) Error() string {
	return fmt.Sprintf("invalid name: %q reason: %v", e.Name, e.Reason)
}

// ErrValidation indicates a request that can never succeed as stated,
// such as deleting a space's default branch or supplying a malformed
// conflict resolution.
type ErrValidation struct {
	Reason string
}

func (e ErrValidation) Error() string {
	return "validation: " + e.Reason
}

// IsValidation reports whether err is any of the validation errors.
func IsValidation(err error) bool {
	var e1 ErrValidation
	var e2 ErrExists
	var e3 ErrInvalidName
	return errors.As(err, &e1) || errors.As(err, &e2) || errors.As(err, &e3)
}

// ErrConflict indicates unresolved merge or revert conflicts, or deleting
// a branch that an environment still points to. Cells lists the specific
// conflicting coordinates when the conflict is content-level.
type ErrConflict struct {
	Reason string
	Cells  []Cell
}

func (e ErrConflict) Error() string {
	if len(e.Cells) == 0 {
		return "conflict: " + e.Reason
	}
	return fmt.Sprintf("conflict: %s: %v", e.Reason, e.Cells)
}

func IsConflict(err error) bool {
	var e ErrConflict
	return errors.As(err, &e)
}

// ErrConcurrency indicates that a branch's version advanced between
// reading it and attempting to commit. Callers retry by recomputing.
type ErrConcurrency struct {
	BranchID uuid.UUID
	Expected int64
	Actual   int64
}

func (e ErrConcurrency) Error() string {
	return fmt.Sprintf("branch %v version advanced: expected %d, found %d", e.BranchID, e.Expected, e.Actual)
}

func IsConcurrency(err error) bool {
	var e ErrConcurrency
	return errors.As(err, &e)
}

// ErrIntegrity indicates corrupted lineage, such as two branches of the
// same space with no common ancestor. It is fatal and never retried.
type ErrIntegrity struct {
	Reason string
}

func (e ErrIntegrity) Error() string {
	return "integrity: " + e.Reason
}

func IsIntegrity(err error) bool {
	var e ErrIntegrity
	return errors.As(err, &e)
}
