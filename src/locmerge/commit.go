package locmerge

import (
	"github.com/google/uuid"
	"github.com/locvc/locvc/src/locdiff"
	"go.brendoncarroll.net/tai64"
)

// MergeCommit is one entry in a branch's merge log. Commits are
// append-only and immutable; a revert appends a new commit rather than
// removing the old one.
type MergeCommit struct {
	ID             uuid.UUID `json:"id"`
	SourceBranchID uuid.UUID `json:"source_branch_id"`
	TargetBranchID uuid.UUID `json:"target_branch_id"`
	// BaseVersion is the target branch version the plan was prepared
	// against.
	BaseVersion int64 `json:"base_version"`
	// Applied is the exact diff this commit applied to the target.
	Applied locdiff.DiffResult `json:"applied"`
	// Inverse undoes Applied. Storing it makes revert possible without
	// keeping a snapshot copy of the pre-merge target.
	Inverse     locdiff.DiffResult `json:"inverse"`
	Resolutions []ResolvedCell     `json:"resolutions,omitempty"`
	// ResultingVersion is the target branch version after this commit.
	ResultingVersion int64 `json:"resulting_version"`
	// Revert is set when this commit undoes an earlier one, named by
	// RevertOf.
	Revert    bool        `json:"revert,omitempty"`
	RevertOf  *uuid.UUID  `json:"revert_of,omitempty"`
	CreatedAt tai64.TAI64 `json:"created_at"`
}
