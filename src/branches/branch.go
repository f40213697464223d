// Package branches defines the data model for spaces, branches, and their
// key/translation content, and the Store interface that owns their lifecycle.
package branches

import (
	"regexp"

	"github.com/google/uuid"
	"go.brendoncarroll.net/tai64"
)

// DefaultBranchName is the name given to a space's root branch.
const DefaultBranchName = "main"

// Space is an isolated translation domain inside a project.
// Every space owns a tree of branches, exactly one of which is the default.
type Space struct {
	ID        uuid.UUID   `json:"id"`
	ProjectID uuid.UUID   `json:"project_id"`
	Name      string      `json:"name"`
	CreatedAt tai64.TAI64 `json:"created_at"`
}

// Branch is an independently editable copy of a space's key/translation matrix.
type Branch struct {
	ID      uuid.UUID `json:"id"`
	SpaceID uuid.UUID `json:"space_id"`
	Name    string    `json:"name"`
	// BaseBranchID is the branch this one was cloned from.
	// It is nil only for the space's root branch and never changes once set.
	BaseBranchID *uuid.UUID `json:"base_branch_id"`
	// Version increments on every content mutation and is the
	// optimistic-concurrency token for merge commits.
	Version   int64       `json:"version"`
	IsDefault bool        `json:"is_default"`
	CreatedAt tai64.TAI64 `json:"created_at"`
}

func (b *Branch) Clone() *Branch {
	b2 := *b
	if b.BaseBranchID != nil {
		base := *b.BaseBranchID
		b2.BaseBranchID = &base
	}
	return &b2
}

var nameRegExp = regexp.MustCompile(`^[\w\-/=_.]+$`)

const MaxNameLen = 1024

// CheckName returns an error if name is not a valid space or branch name.
func CheckName(name string) error {
	if len(name) > MaxNameLen {
		return ErrInvalidName{Name: name, Reason: "too long"}
	}
	if !nameRegExp.MatchString(name) {
		return ErrInvalidName{
			Name:   name,
			Reason: "contains invalid characters (must match " + nameRegExp.String() + " )",
		}
	}
	return nil
}
