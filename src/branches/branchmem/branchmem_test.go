package branchmem

import (
	"testing"

	"github.com/locvc/locvc/src/branches"
	"github.com/locvc/locvc/src/envs"
	"github.com/locvc/locvc/src/locmerge"
)

func TestBranchStore(t *testing.T) {
	branches.TestStore(t, func(t testing.TB) branches.Store {
		return New()
	})
}

func TestMergeStore(t *testing.T) {
	locmerge.TestStore(t, func(t testing.TB) locmerge.FullStore {
		return New()
	})
}

func TestEnvRegistry(t *testing.T) {
	envs.TestRegistry(t, func(t testing.TB) (envs.Registry, branches.Store) {
		s := New()
		return s, s
	})
}
