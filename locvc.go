// Package locvc provides version control for localization content:
// branches over a key/language matrix, three-way merges with explicit
// conflict resolution, merge revert, and environment pointers.
package locvc

import (
	"github.com/locvc/locvc/src/branches"
	"github.com/locvc/locvc/src/envs"
	"github.com/locvc/locvc/src/locdiff"
	"github.com/locvc/locvc/src/locmerge"
	"github.com/locvc/locvc/src/locrepo"
)

type (
	Repo       = locrepo.Repo
	RepoConfig = locrepo.Config

	Space    = branches.Space
	Branch   = branches.Branch
	KeyID    = branches.KeyID
	KeyState = branches.KeyState
	Snapshot = branches.Snapshot
	Cell     = branches.Cell

	DiffResult = locdiff.DiffResult
	Conflict   = locdiff.Conflict

	MergePlan   = locmerge.MergePlan
	MergeCommit = locmerge.MergeCommit
	Resolution  = locmerge.Resolution

	Environment = envs.Environment
)

// Resolution constructors.
var (
	KeepSource = locmerge.KeepSource
	KeepTarget = locmerge.KeepTarget
	Manual     = locmerge.Manual
)

func InitRepo(p string) error {
	return locrepo.Init(p)
}

func OpenRepo(p string) (*Repo, error) {
	return locrepo.Open(p)
}
