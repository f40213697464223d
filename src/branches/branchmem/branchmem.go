// Package branchmem is an in-memory implementation of the branch store,
// the merge store, and the environment registry. It is used in tests and
// anywhere a throwaway store is convenient.
package branchmem

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/locvc/locvc/src/branches"
	"github.com/locvc/locvc/src/envs"
	"github.com/locvc/locvc/src/locdiff"
	"github.com/locvc/locvc/src/locmerge"
	"go.brendoncarroll.net/state"
	"go.brendoncarroll.net/tai64"
	"golang.org/x/exp/slices"
)

var (
	_ branches.Store = &Store{}
	_ locmerge.Store = &Store{}
	_ envs.Registry  = &Store{}
)

type Store struct {
	mu       sync.RWMutex
	spaces   map[uuid.UUID]*branches.Space
	branches map[uuid.UUID]*branches.Branch
	contents map[uuid.UUID]branches.Snapshot
	forks    map[uuid.UUID]branches.Snapshot
	envs     map[uuid.UUID]*envs.Environment
	commits  map[uuid.UUID]*locmerge.MergeCommit
	logs     map[uuid.UUID][]uuid.UUID
}

func New() *Store {
	return &Store{
		spaces:   make(map[uuid.UUID]*branches.Space),
		branches: make(map[uuid.UUID]*branches.Branch),
		contents: make(map[uuid.UUID]branches.Snapshot),
		forks:    make(map[uuid.UUID]branches.Snapshot),
		envs:     make(map[uuid.UUID]*envs.Environment),
		commits:  make(map[uuid.UUID]*locmerge.MergeCommit),
		logs:     make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *Store) CreateSpace(ctx context.Context, projectID uuid.UUID, name string) (*branches.Space, error) {
	if err := branches.CheckName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sp := range s.spaces {
		if sp.ProjectID == projectID && sp.Name == name {
			return nil, branches.ErrExists{Kind: branches.KindSpace, Name: name}
		}
	}
	sp := &branches.Space{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      name,
		CreatedAt: tai64.Now().TAI64(),
	}
	s.spaces[sp.ID] = sp
	b := &branches.Branch{
		ID:        uuid.New(),
		SpaceID:   sp.ID,
		Name:      branches.DefaultBranchName,
		IsDefault: true,
		CreatedAt: sp.CreatedAt,
	}
	s.branches[b.ID] = b
	s.contents[b.ID] = branches.Snapshot{}
	s.forks[b.ID] = branches.Snapshot{}
	sp2 := *sp
	return &sp2, nil
}

func (s *Store) GetSpace(ctx context.Context, id uuid.UUID) (*branches.Space, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.spaces[id]
	if !ok {
		return nil, branches.ErrNotFound{Kind: branches.KindSpace, ID: id.String()}
	}
	sp2 := *sp
	return &sp2, nil
}

func (s *Store) ListSpaces(ctx context.Context, projectID uuid.UUID) ([]branches.Space, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []branches.Space
	for _, sp := range s.spaces {
		if sp.ProjectID == projectID {
			out = append(out, *sp)
		}
	}
	slices.SortFunc(out, func(a, b branches.Space) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) CreateBranch(ctx context.Context, spaceID uuid.UUID, name string, fromBranchID uuid.UUID) (*branches.Branch, error) {
	if err := branches.CheckName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.spaces[spaceID]; !ok {
		return nil, branches.ErrNotFound{Kind: branches.KindSpace, ID: spaceID.String()}
	}
	for _, b := range s.branches {
		if b.SpaceID == spaceID && b.Name == name {
			return nil, branches.ErrExists{Kind: branches.KindBranch, Name: name}
		}
	}
	from, ok := s.branches[fromBranchID]
	if !ok || from.SpaceID != spaceID {
		return nil, branches.ErrNotFound{Kind: branches.KindBranch, ID: fromBranchID.String()}
	}
	base := fromBranchID
	b := &branches.Branch{
		ID:           uuid.New(),
		SpaceID:      spaceID,
		Name:         name,
		BaseBranchID: &base,
		CreatedAt:    tai64.Now().TAI64(),
	}
	s.branches[b.ID] = b
	s.contents[b.ID] = s.contents[fromBranchID].Clone()
	s.forks[b.ID] = s.contents[fromBranchID].Clone()
	return b.Clone(), nil
}

func (s *Store) DeleteBranch(ctx context.Context, branchID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.branches[branchID]
	if !ok {
		return branches.ErrNotFound{Kind: branches.KindBranch, ID: branchID.String()}
	}
	if b.IsDefault {
		return branches.ErrValidation{Reason: "cannot delete the default branch"}
	}
	for _, env := range s.envs {
		if env.BranchID == branchID {
			return branches.ErrConflict{Reason: "environment " + env.Name + " points at branch " + b.Name}
		}
	}
	for _, other := range s.branches {
		if other.BaseBranchID != nil && *other.BaseBranchID == branchID {
			return branches.ErrConflict{Reason: "branch " + other.Name + " is based on " + b.Name}
		}
	}
	delete(s.branches, branchID)
	delete(s.contents, branchID)
	delete(s.forks, branchID)
	// merge commits share the branch's lifetime
	for _, id := range s.logs[branchID] {
		delete(s.commits, id)
	}
	delete(s.logs, branchID)
	return nil
}

func (s *Store) GetBranch(ctx context.Context, branchID uuid.UUID) (*branches.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.branches[branchID]
	if !ok {
		return nil, branches.ErrNotFound{Kind: branches.KindBranch, ID: branchID.String()}
	}
	return b.Clone(), nil
}

func (s *Store) GetBranchByName(ctx context.Context, spaceID uuid.UUID, name string) (*branches.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.branches {
		if b.SpaceID == spaceID && b.Name == name {
			return b.Clone(), nil
		}
	}
	return nil, branches.ErrNotFound{Kind: branches.KindBranch, ID: name}
}

func (s *Store) ListBranches(ctx context.Context, spaceID uuid.UUID, span state.Span[string], limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for _, b := range s.branches {
		if b.SpaceID == spaceID && span.Contains(b.Name, strings.Compare) {
			names = append(names, b.Name)
		}
	}
	slices.Sort(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func (s *Store) GetSnapshot(ctx context.Context, branchID uuid.UUID) (branches.Snapshot, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.branches[branchID]
	if !ok {
		return nil, 0, branches.ErrNotFound{Kind: branches.KindBranch, ID: branchID.String()}
	}
	return s.contents[branchID].Clone(), b.Version, nil
}

func (s *Store) GetForkSnapshot(ctx context.Context, branchID uuid.UUID) (branches.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fork, ok := s.forks[branchID]
	if !ok {
		return nil, branches.ErrNotFound{Kind: branches.KindBranch, ID: branchID.String()}
	}
	return fork.Clone(), nil
}

func (s *Store) PutKey(ctx context.Context, branchID uuid.UUID, key branches.KeyID, description string) error {
	if err := branches.CheckKeyID(key); err != nil {
		return err
	}
	return s.modify(branchID, func(snap branches.Snapshot) error {
		st := snap[key]
		st.Description = description
		snap[key] = st
		return nil
	})
}

func (s *Store) DeleteKey(ctx context.Context, branchID uuid.UUID, key branches.KeyID) error {
	return s.modify(branchID, func(snap branches.Snapshot) error {
		if _, ok := snap[key]; !ok {
			return branches.ErrNotFound{Kind: branches.KindKey, ID: key.String()}
		}
		delete(snap, key)
		return nil
	})
}

func (s *Store) SetValue(ctx context.Context, branchID uuid.UUID, key branches.KeyID, lang, value string) error {
	return s.modify(branchID, func(snap branches.Snapshot) error {
		st, ok := snap[key]
		if !ok {
			return branches.ErrNotFound{Kind: branches.KindKey, ID: key.String()}
		}
		if st.Values == nil {
			st.Values = make(map[string]string)
		}
		st.Values[lang] = value
		snap[key] = st
		return nil
	})
}

func (s *Store) DeleteValue(ctx context.Context, branchID uuid.UUID, key branches.KeyID, lang string) error {
	return s.modify(branchID, func(snap branches.Snapshot) error {
		st, ok := snap[key]
		if !ok {
			return branches.ErrNotFound{Kind: branches.KindKey, ID: key.String()}
		}
		if _, ok := st.Values[lang]; !ok {
			return branches.ErrNotFound{Kind: branches.KindValue, ID: key.String() + "/" + lang}
		}
		delete(st.Values, lang)
		snap[key] = st
		return nil
	})
}

func (s *Store) modify(branchID uuid.UUID, fn func(snap branches.Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.branches[branchID]
	if !ok {
		return branches.ErrNotFound{Kind: branches.KindBranch, ID: branchID.String()}
	}
	next := s.contents[branchID].Clone()
	if err := fn(next); err != nil {
		return err
	}
	s.contents[branchID] = next
	b.Version++
	return nil
}

func (s *Store) ApplyMerge(ctx context.Context, branchID uuid.UUID, expectVersion int64, d locdiff.DiffResult, mc *locmerge.MergeCommit) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.branches[branchID]
	if !ok {
		return 0, branches.ErrNotFound{Kind: branches.KindBranch, ID: branchID.String()}
	}
	if b.Version != expectVersion {
		return 0, branches.ErrConcurrency{BranchID: branchID, Expected: expectVersion, Actual: b.Version}
	}
	next, err := locdiff.Apply(s.contents[branchID], d)
	if err != nil {
		return 0, err
	}
	s.contents[branchID] = next
	b.Version++
	mc.ResultingVersion = b.Version
	s.commits[mc.ID] = mc
	s.logs[branchID] = append(s.logs[branchID], mc.ID)
	return b.Version, nil
}

func (s *Store) GetCommit(ctx context.Context, commitID uuid.UUID) (*locmerge.MergeCommit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mc, ok := s.commits[commitID]
	if !ok {
		return nil, branches.ErrNotFound{Kind: branches.KindCommit, ID: commitID.String()}
	}
	mc2 := *mc
	return &mc2, nil
}

func (s *Store) ListCommits(ctx context.Context, branchID uuid.UUID) ([]locmerge.MergeCommit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]locmerge.MergeCommit, 0, len(s.logs[branchID]))
	for _, id := range s.logs[branchID] {
		out = append(out, *s.commits[id])
	}
	return out, nil
}

func (s *Store) CreateEnvironment(ctx context.Context, projectID uuid.UUID, name string, branchID uuid.UUID) (*envs.Environment, error) {
	if err := branches.CheckName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, env := range s.envs {
		if env.ProjectID == projectID && env.Name == name {
			return nil, branches.ErrExists{Kind: branches.KindEnvironment, Name: name}
		}
	}
	if _, ok := s.branches[branchID]; !ok {
		return nil, branches.ErrNotFound{Kind: branches.KindBranch, ID: branchID.String()}
	}
	env := &envs.Environment{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      name,
		BranchID:  branchID,
		CreatedAt: tai64.Now().TAI64(),
	}
	s.envs[env.ID] = env
	return env.Clone(), nil
}

func (s *Store) GetEnvironment(ctx context.Context, envID uuid.UUID) (*envs.Environment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.envs[envID]
	if !ok {
		return nil, branches.ErrNotFound{Kind: branches.KindEnvironment, ID: envID.String()}
	}
	return env.Clone(), nil
}

func (s *Store) ListEnvironments(ctx context.Context, projectID uuid.UUID) ([]envs.Environment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []envs.Environment
	for _, env := range s.envs {
		if env.ProjectID == projectID {
			out = append(out, *env)
		}
	}
	slices.SortFunc(out, func(a, b envs.Environment) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) SetBranch(ctx context.Context, envID, branchID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, ok := s.envs[envID]
	if !ok {
		return branches.ErrNotFound{Kind: branches.KindEnvironment, ID: envID.String()}
	}
	if _, ok := s.branches[branchID]; !ok {
		return branches.ErrNotFound{Kind: branches.KindBranch, ID: branchID.String()}
	}
	env.BranchID = branchID
	return nil
}

func (s *Store) Resolve(ctx context.Context, envID uuid.UUID) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.envs[envID]
	if !ok {
		return uuid.Nil, branches.ErrNotFound{Kind: branches.KindEnvironment, ID: envID.String()}
	}
	return env.BranchID, nil
}

func (s *Store) DeleteEnvironment(ctx context.Context, envID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.envs[envID]; !ok {
		return branches.ErrNotFound{Kind: branches.KindEnvironment, ID: envID.String()}
	}
	delete(s.envs, envID)
	return nil
}
