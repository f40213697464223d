// Package locrepo is the on-disk repository: a SQLite-backed branch
// store, merge engine, and environment registry behind one handle.
package locrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"go.brendoncarroll.net/state"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/locvc/locvc/src/branches"
	"github.com/locvc/locvc/src/envs"
	"github.com/locvc/locvc/src/internal/migrations"
	"github.com/locvc/locvc/src/internal/sqlutil"
	"github.com/locvc/locvc/src/locdiff"
	"github.com/locvc/locvc/src/locmerge"
	"github.com/locvc/locvc/src/locrepo/internal/dbmig"
)

// fs paths
const (
	locvcPrefix = ".locvc"
	configPath  = ".locvc/config"
	localDBPath = ".locvc/locvc.db"
)

type Repo struct {
	rootPath string
	root     *os.Root
	db       *sqlutil.Pool
	config   Config

	store   *cachingStore
	machine *locmerge.Machine
}

var (
	_ branches.Store = &Repo{}
	_ envs.Registry  = &Repo{}
)

// Init initializes a new repo at the given path.
func Init(p string) error {
	root, err := os.OpenRoot(p)
	if err != nil {
		return err
	}
	defer root.Close()
	if _, err := root.Stat(configPath); err == nil {
		return fmt.Errorf("repo already exists at path %s", p)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := root.Mkdir(locvcPrefix, 0o755); err != nil {
		return err
	}
	if err := SaveConfig(root, DefaultConfig()); err != nil {
		return err
	}
	r, err := Open(p)
	if err != nil {
		return err
	}
	return r.Close()
}

func Open(p string) (*Repo, error) {
	ctx := context.Background()
	log, _ := zap.NewProduction()
	ctx = logctx.NewContext(ctx, log)

	root, err := os.OpenRoot(p)
	if err != nil {
		return nil, err
	}
	config, err := LoadConfig(root)
	if err != nil {
		root.Close()
		return nil, err
	}
	db, err := sqlutil.OpenPool(filepath.Join(p, localDBPath))
	if err != nil {
		root.Close()
		return nil, err
	}
	if err := sqlutil.Borrow(ctx, db, func(conn *sqlutil.Conn) error {
		return migrations.EnsureAll(ctx, conn, dbmig.ListMigrations())
	}); err != nil {
		db.Close()
		root.Close()
		return nil, err
	}
	store, err := newCachingStore(newSQLStore(db), config.SnapshotCacheSize)
	if err != nil {
		db.Close()
		root.Close()
		return nil, err
	}
	r := &Repo{
		rootPath: p,
		root:     root,
		db:       db,
		config:   *config,
		store:    store,
		machine:  locmerge.NewMachine(store),
	}
	logctx.Infof(ctx, "opened repo at %s", p)
	return r, nil
}

func (r *Repo) Close() (retErr error) {
	for _, fn := range []func() error{
		func() error {
			return sqlutil.Borrow(context.TODO(), r.db, func(conn *sqlutil.Conn) error {
				return sqlutil.WALCheckpoint(conn)
			})
		},
		r.db.Close,
		r.root.Close,
	} {
		if err := fn(); err != nil {
			retErr = errors.Join(retErr, err)
		}
	}
	return retErr
}

func (r *Repo) Config() Config {
	return r.config
}

// Spaces and branches

func (r *Repo) CreateSpace(ctx context.Context, projectID uuid.UUID, name string) (*branches.Space, error) {
	sp, err := r.store.CreateSpace(ctx, projectID, name)
	if err != nil {
		return nil, err
	}
	logctx.Infof(ctx, "created space %q (%v)", name, sp.ID)
	return sp, nil
}

func (r *Repo) GetSpace(ctx context.Context, id uuid.UUID) (*branches.Space, error) {
	return r.store.GetSpace(ctx, id)
}

func (r *Repo) ListSpaces(ctx context.Context, projectID uuid.UUID) ([]branches.Space, error) {
	return r.store.ListSpaces(ctx, projectID)
}

func (r *Repo) CreateBranch(ctx context.Context, spaceID uuid.UUID, name string, fromBranchID uuid.UUID) (*branches.Branch, error) {
	b, err := r.store.CreateBranch(ctx, spaceID, name, fromBranchID)
	if err != nil {
		return nil, err
	}
	logctx.Infof(ctx, "created branch %q (%v) from %v", name, b.ID, fromBranchID)
	return b, nil
}

func (r *Repo) DeleteBranch(ctx context.Context, branchID uuid.UUID) error {
	if err := r.store.DeleteBranch(ctx, branchID); err != nil {
		return err
	}
	logctx.Infof(ctx, "deleted branch %v", branchID)
	return nil
}

func (r *Repo) GetBranch(ctx context.Context, branchID uuid.UUID) (*branches.Branch, error) {
	return r.store.GetBranch(ctx, branchID)
}

func (r *Repo) GetBranchByName(ctx context.Context, spaceID uuid.UUID, name string) (*branches.Branch, error) {
	return r.store.GetBranchByName(ctx, spaceID, name)
}

func (r *Repo) ListBranches(ctx context.Context, spaceID uuid.UUID, span state.Span[string], limit int) ([]string, error) {
	return r.store.ListBranches(ctx, spaceID, span, limit)
}

func (r *Repo) GetSnapshot(ctx context.Context, branchID uuid.UUID) (branches.Snapshot, int64, error) {
	return r.store.GetSnapshot(ctx, branchID)
}

func (r *Repo) GetForkSnapshot(ctx context.Context, branchID uuid.UUID) (branches.Snapshot, error) {
	return r.store.GetForkSnapshot(ctx, branchID)
}

// Editor write path

func (r *Repo) PutKey(ctx context.Context, branchID uuid.UUID, key branches.KeyID, description string) error {
	return r.store.PutKey(ctx, branchID, key, description)
}

func (r *Repo) DeleteKey(ctx context.Context, branchID uuid.UUID, key branches.KeyID) error {
	return r.store.DeleteKey(ctx, branchID, key)
}

func (r *Repo) SetValue(ctx context.Context, branchID uuid.UUID, key branches.KeyID, lang, value string) error {
	return r.store.SetValue(ctx, branchID, key, lang, value)
}

func (r *Repo) DeleteValue(ctx context.Context, branchID uuid.UUID, key branches.KeyID, lang string) error {
	return r.store.DeleteValue(ctx, branchID, key, lang)
}

// Diff and merge

// DiffBranches computes the two-way diff from branch a to branch b.
func (r *Repo) DiffBranches(ctx context.Context, a, b uuid.UUID) (locdiff.DiffResult, error) {
	snapA, snapB, err := r.loadPair(ctx, a, b)
	if err != nil {
		return locdiff.DiffResult{}, err
	}
	return locdiff.Diff(snapA, snapB), nil
}

func (r *Repo) PrepareMerge(ctx context.Context, sourceID, targetID uuid.UUID) (*locmerge.MergePlan, error) {
	return r.machine.PrepareMerge(ctx, sourceID, targetID)
}

func (r *Repo) CommitMerge(ctx context.Context, planID uuid.UUID, resolutions map[branches.Cell]locmerge.Resolution) (*locmerge.MergeCommit, error) {
	return r.machine.CommitMerge(ctx, planID, resolutions)
}

// DiscardPlan drops a prepared merge plan without committing it.
func (r *Repo) DiscardPlan(planID uuid.UUID) {
	r.machine.DiscardPlan(planID)
}

func (r *Repo) RevertMerge(ctx context.Context, commitID uuid.UUID, resolutions map[branches.Cell]locmerge.Resolution) (*locmerge.MergeCommit, error) {
	return r.machine.RevertMerge(ctx, commitID, resolutions)
}

func (r *Repo) GetCommit(ctx context.Context, commitID uuid.UUID) (*locmerge.MergeCommit, error) {
	return r.machine.GetCommit(ctx, commitID)
}

func (r *Repo) ListCommits(ctx context.Context, branchID uuid.UUID) ([]locmerge.MergeCommit, error) {
	return r.machine.ListCommits(ctx, branchID)
}

// Merge prepares and commits in a loop, retrying when another writer wins
// the optimistic-concurrency race. resolve is called with the conflicts of
// each prepared plan; a nil resolve commits only conflict-free plans.
func (r *Repo) Merge(ctx context.Context, sourceID, targetID uuid.UUID, resolve func([]locdiff.Conflict) (map[branches.Cell]locmerge.Resolution, error)) (*locmerge.MergeCommit, error) {
	var mc *locmerge.MergeCommit
	op := func() error {
		plan, err := r.machine.PrepareMerge(ctx, sourceID, targetID)
		if err != nil {
			return backoff.Permanent(err)
		}
		var resolutions map[branches.Cell]locmerge.Resolution
		if len(plan.Conflicts) > 0 && resolve != nil {
			resolutions, err = resolve(plan.Conflicts)
			if err != nil {
				r.machine.DiscardPlan(plan.ID)
				return backoff.Permanent(err)
			}
		}
		mc, err = r.machine.CommitMergePlan(ctx, plan, resolutions)
		if err == nil {
			return nil
		}
		// each retry prepares a fresh plan, this one is dead either way
		r.machine.DiscardPlan(plan.ID)
		if branches.IsConcurrency(err) {
			logctx.Warnf(ctx, "merge %v -> %v lost a version race, retrying: %v", sourceID, targetID, err)
			return err
		}
		return backoff.Permanent(err)
	}
	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = 10 * time.Millisecond
	bo := backoff.WithContext(backoff.WithMaxRetries(ebo, uint64(r.config.MergeRetries)), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return mc, nil
}

// Environments

func (r *Repo) CreateEnvironment(ctx context.Context, projectID uuid.UUID, name string, branchID uuid.UUID) (*envs.Environment, error) {
	env, err := r.store.CreateEnvironment(ctx, projectID, name, branchID)
	if err != nil {
		return nil, err
	}
	logctx.Infof(ctx, "created environment %q (%v) -> branch %v", name, env.ID, branchID)
	return env, nil
}

func (r *Repo) GetEnvironment(ctx context.Context, envID uuid.UUID) (*envs.Environment, error) {
	return r.store.GetEnvironment(ctx, envID)
}

func (r *Repo) ListEnvironments(ctx context.Context, projectID uuid.UUID) ([]envs.Environment, error) {
	return r.store.ListEnvironments(ctx, projectID)
}

// SetBranch atomically redirects an environment to another branch.
func (r *Repo) SetBranch(ctx context.Context, envID, branchID uuid.UUID) error {
	if err := r.store.SetBranch(ctx, envID, branchID); err != nil {
		return err
	}
	logctx.Infof(ctx, "environment %v now points at branch %v", envID, branchID)
	return nil
}

func (r *Repo) Resolve(ctx context.Context, envID uuid.UUID) (uuid.UUID, error) {
	return r.store.Resolve(ctx, envID)
}

func (r *Repo) DeleteEnvironment(ctx context.Context, envID uuid.UUID) error {
	return r.store.DeleteEnvironment(ctx, envID)
}

func (r *Repo) loadPair(ctx context.Context, a, b uuid.UUID) (branches.Snapshot, branches.Snapshot, error) {
	var snapA, snapB branches.Snapshot
	eg, ctx2 := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		snapA, _, err = r.store.GetSnapshot(ctx2, a)
		return err
	})
	eg.Go(func() (err error) {
		snapB, _, err = r.store.GetSnapshot(ctx2, b)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return snapA, snapB, nil
}

// cachingStore caches snapshots per (branch, version) in front of the
// SQLite store. A version's content is immutable, so entries never go
// stale.
type cachingStore struct {
	*sqlStore
	cache *lru.Cache
}

func newCachingStore(inner *sqlStore, size int) (*cachingStore, error) {
	if size <= 0 {
		size = DefaultConfig().SnapshotCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &cachingStore{sqlStore: inner, cache: cache}, nil
}

type snapKey struct {
	branchID uuid.UUID
	version  int64
}

func (cs *cachingStore) GetSnapshot(ctx context.Context, branchID uuid.UUID) (branches.Snapshot, int64, error) {
	b, err := cs.sqlStore.GetBranch(ctx, branchID)
	if err != nil {
		return nil, 0, err
	}
	if v, ok := cs.cache.Get(snapKey{branchID, b.Version}); ok {
		return v.(branches.Snapshot).Clone(), b.Version, nil
	}
	snap, version, err := cs.sqlStore.GetSnapshot(ctx, branchID)
	if err != nil {
		return nil, 0, err
	}
	cs.cache.Add(snapKey{branchID, version}, snap.Clone())
	return snap, version, nil
}
