// Package locmerge merges branches of the key/language matrix.
//
// Merging is a two phase protocol: PrepareMerge computes a plan from the
// three-way diff against the merge-base, then CommitMerge applies the plan
// plus the caller's conflict resolutions in one atomic write, guarded by
// the target branch's version. Every committed merge records its inverse
// diff, so RevertMerge can undo it later without a snapshot copy.
package locmerge

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/locvc/locvc/src/branches"
	"github.com/locvc/locvc/src/lineage"
	"github.com/locvc/locvc/src/locdiff"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.brendoncarroll.net/tai64"
	"golang.org/x/sync/errgroup"
)

// Store is what the merge machine needs from the branch store.
type Store interface {
	GetBranch(ctx context.Context, branchID uuid.UUID) (*branches.Branch, error)
	GetSnapshot(ctx context.Context, branchID uuid.UUID) (branches.Snapshot, int64, error)
	// GetForkSnapshot returns the content branchID was created from,
	// frozen at creation time.
	GetForkSnapshot(ctx context.Context, branchID uuid.UUID) (branches.Snapshot, error)

	// ApplyMerge atomically applies d to the branch and appends mc to its
	// merge log. It fails with ErrConcurrency if the branch version is not
	// expectVersion. Implementations set mc.ResultingVersion before
	// persisting and return it.
	ApplyMerge(ctx context.Context, branchID uuid.UUID, expectVersion int64, d locdiff.DiffResult, mc *MergeCommit) (int64, error)

	GetCommit(ctx context.Context, commitID uuid.UUID) (*MergeCommit, error)
	ListCommits(ctx context.Context, branchID uuid.UUID) ([]MergeCommit, error)
}

// MergePlan is the read-only result of PrepareMerge. Changes apply
// without intervention; every Conflict needs a Resolution before the plan
// can commit.
type MergePlan struct {
	ID       uuid.UUID
	SourceID uuid.UUID
	TargetID uuid.UUID
	BaseID   uuid.UUID

	SourceVersion int64
	TargetVersion int64

	Changes   locdiff.DiffResult
	Conflicts []locdiff.Conflict

	target branches.Snapshot
}

// Machine coordinates merges against a Store. Prepared plans are held in
// memory until committed; they are cheap to recompute and do not survive a
// restart.
type Machine struct {
	store Store

	mu    sync.Mutex
	plans map[uuid.UUID]*MergePlan
}

func NewMachine(store Store) *Machine {
	return &Machine{
		store: store,
		plans: make(map[uuid.UUID]*MergePlan),
	}
}

// PrepareMerge computes a merge plan for source into target. It never
// mutates either branch.
func (m *Machine) PrepareMerge(ctx context.Context, sourceID, targetID uuid.UUID) (*MergePlan, error) {
	if sourceID == targetID {
		return nil, branches.ErrValidation{Reason: "cannot merge a branch into itself"}
	}
	src, err := m.store.GetBranch(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	tgt, err := m.store.GetBranch(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if src.SpaceID != tgt.SpaceID {
		return nil, branches.ErrValidation{Reason: "cannot merge across spaces"}
	}
	baseID, err := lineage.MergeBase(ctx, m.graph(), sourceID, targetID)
	if err != nil {
		return nil, err
	}

	var base, source, target branches.Snapshot
	var sourceVersion, targetVersion int64
	eg, ctx2 := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		base, err = m.baseContent(ctx2, sourceID, targetID, baseID)
		return err
	})
	eg.Go(func() (err error) {
		source, sourceVersion, err = m.store.GetSnapshot(ctx2, sourceID)
		return err
	})
	eg.Go(func() (err error) {
		target, targetVersion, err = m.store.GetSnapshot(ctx2, targetID)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	changes, conflicts, err := locdiff.ThreeWay(base, source, target)
	if err != nil {
		return nil, err
	}
	plan := &MergePlan{
		ID:            uuid.New(),
		SourceID:      sourceID,
		TargetID:      targetID,
		BaseID:        baseID,
		SourceVersion: sourceVersion,
		TargetVersion: targetVersion,
		Changes:       changes,
		Conflicts:     conflicts,
		target:        target,
	}
	m.mu.Lock()
	m.plans[plan.ID] = plan
	m.mu.Unlock()
	logctx.Infof(ctx, "prepared merge %v: %v -> %v, %d changed keys, %d conflicts",
		plan.ID, sourceID, targetID, len(changes.Keys), len(conflicts))
	return plan, nil
}

// CommitMerge commits a previously prepared plan by id.
func (m *Machine) CommitMerge(ctx context.Context, planID uuid.UUID, resolutions map[branches.Cell]Resolution) (*MergeCommit, error) {
	m.mu.Lock()
	plan, ok := m.plans[planID]
	m.mu.Unlock()
	if !ok {
		return nil, branches.ErrNotFound{Kind: branches.KindPlan, ID: planID.String()}
	}
	return m.CommitMergePlan(ctx, plan, resolutions)
}

// CommitMergePlan applies plan to its target branch. Every conflict must
// have a resolution, and every resolution must name a conflicted cell.
// The write is atomic: either the whole merge lands and the target version
// increments once, or nothing changes.
func (m *Machine) CommitMergePlan(ctx context.Context, plan *MergePlan, resolutions map[branches.Cell]Resolution) (*MergeCommit, error) {
	resolved, resolvedCells, err := resolveConflicts(plan.Conflicts, resolutions)
	if err != nil {
		return nil, err
	}
	cells := append(plan.Changes.Cells(), resolved...)
	applied, err := locdiff.FromCells(plan.target, cells)
	if err != nil {
		return nil, err
	}
	mc := &MergeCommit{
		ID:             uuid.New(),
		SourceBranchID: plan.SourceID,
		TargetBranchID: plan.TargetID,
		BaseVersion:    plan.TargetVersion,
		Applied:        applied,
		Inverse:        applied.Invert(),
		Resolutions:    resolvedCells,
		CreatedAt:      tai64.Now().TAI64(),
	}
	if _, err := m.store.ApplyMerge(ctx, plan.TargetID, plan.TargetVersion, applied, mc); err != nil {
		return nil, err
	}
	m.DiscardPlan(plan.ID)
	logctx.Infof(ctx, "committed merge %v: %v -> %v at version %d",
		mc.ID, mc.SourceBranchID, mc.TargetBranchID, mc.ResultingVersion)
	return mc, nil
}

// RevertMerge undoes commitID by applying its stored inverse as a new
// commit. Cells the merge touched that no longer hold the merged value
// are ambiguous and come back as ErrConflict; the caller resolves them
// with the same Resolution variants, where KeepSource means the inverse's
// side and KeepTarget the branch's current value.
func (m *Machine) RevertMerge(ctx context.Context, commitID uuid.UUID, resolutions map[branches.Cell]Resolution) (*MergeCommit, error) {
	mc, err := m.store.GetCommit(ctx, commitID)
	if err != nil {
		return nil, err
	}
	current, version, err := m.store.GetSnapshot(ctx, mc.TargetBranchID)
	if err != nil {
		return nil, err
	}

	var adopted []locdiff.CellChange
	var conflicts []locdiff.Conflict
	for _, cc := range mc.Inverse.Cells() {
		cur, exists := current.Cell(cc.Cell)
		var curPtr *string
		if exists {
			curPtr = &cur
		}
		if eqValue(curPtr, cc.Old) {
			adopted = append(adopted, cc)
			continue
		}
		if eqValue(curPtr, cc.New) {
			// a later edit already matches the reverted state
			continue
		}
		conflicts = append(conflicts, locdiff.Conflict{
			Cell:   cc.Cell,
			Base:   cc.Old,
			Source: cc.New,
			Target: curPtr,
		})
	}
	resolved, resolvedCells, err := resolveConflicts(conflicts, resolutions)
	if err != nil {
		return nil, err
	}
	applied, err := locdiff.FromCells(current, append(adopted, resolved...))
	if err != nil {
		return nil, err
	}
	rc := &MergeCommit{
		ID:             uuid.New(),
		SourceBranchID: mc.SourceBranchID,
		TargetBranchID: mc.TargetBranchID,
		BaseVersion:    version,
		Applied:        applied,
		Inverse:        applied.Invert(),
		Resolutions:    resolvedCells,
		Revert:         true,
		RevertOf:       &mc.ID,
		CreatedAt:      tai64.Now().TAI64(),
	}
	if _, err := m.store.ApplyMerge(ctx, mc.TargetBranchID, version, applied, rc); err != nil {
		return nil, err
	}
	logctx.Infof(ctx, "reverted merge %v with commit %v at version %d",
		mc.ID, rc.ID, rc.ResultingVersion)
	return rc, nil
}

func (m *Machine) GetCommit(ctx context.Context, commitID uuid.UUID) (*MergeCommit, error) {
	return m.store.GetCommit(ctx, commitID)
}

func (m *Machine) ListCommits(ctx context.Context, branchID uuid.UUID) ([]MergeCommit, error) {
	return m.store.ListCommits(ctx, branchID)
}

// GetPlan returns a prepared plan, or ErrNotFound if it was never
// prepared or already committed.
func (m *Machine) GetPlan(planID uuid.UUID) (*MergePlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[planID]
	if !ok {
		return nil, branches.ErrNotFound{Kind: branches.KindPlan, ID: planID.String()}
	}
	return plan, nil
}

// DiscardPlan drops a prepared plan without committing it. Plans hold the
// target snapshot, so abandoned ones must be discarded or they accumulate.
// Discarding an unknown or already committed plan is a no-op.
func (m *Machine) DiscardPlan(planID uuid.UUID) {
	m.mu.Lock()
	delete(m.plans, planID)
	m.mu.Unlock()
}

// baseContent returns the snapshot to diff both sides against. The base
// branch keeps moving after the fork, so its current content is not the
// divergence point; the fork snapshot of baseID's child on the source
// chain is. When the source is the base branch itself the divergence sits
// on the target chain instead.
func (m *Machine) baseContent(ctx context.Context, sourceID, targetID, baseID uuid.UUID) (branches.Snapshot, error) {
	from := sourceID
	if sourceID == baseID {
		from = targetID
	}
	chain, err := lineage.Ancestors(ctx, m.graph(), from)
	if err != nil {
		return nil, err
	}
	for i := 0; i+1 < len(chain); i++ {
		if chain[i+1] == baseID {
			return m.store.GetForkSnapshot(ctx, chain[i])
		}
	}
	return nil, branches.ErrIntegrity{Reason: fmt.Sprintf("branch %v is not an ancestor of %v", baseID, from)}
}

func (m *Machine) graph() lineage.Graph {
	return lineage.StoreGraph{Store: m.store}
}

// resolveConflicts turns resolutions into cell changes. Unresolved
// conflicts produce ErrConflict naming every missing cell; resolutions
// for cells not in conflict produce ErrValidation.
func resolveConflicts(conflicts []locdiff.Conflict, resolutions map[branches.Cell]Resolution) ([]locdiff.CellChange, []ResolvedCell, error) {
	inConflict := make(map[branches.Cell]struct{}, len(conflicts))
	for _, c := range conflicts {
		inConflict[c.Cell] = struct{}{}
	}
	for cell, r := range resolutions {
		if _, ok := inConflict[cell]; !ok {
			return nil, nil, branches.ErrValidation{Reason: "resolution for cell " + cell.String() + " which is not in conflict"}
		}
		if err := r.Validate(); err != nil {
			return nil, nil, err
		}
	}
	var missing []branches.Cell
	var changes []locdiff.CellChange
	var resolved []ResolvedCell
	for _, c := range conflicts {
		r, ok := resolutions[c.Cell]
		if !ok {
			missing = append(missing, c.Cell)
			continue
		}
		resolved = append(resolved, ResolvedCell{Cell: c.Cell, Resolution: r})
		switch r.Kind {
		case KindKeepTarget:
			// no change
		case KindKeepSource:
			if !eqValue(c.Source, c.Target) {
				changes = append(changes, locdiff.CellChange{Cell: c.Cell, Old: c.Target, New: c.Source})
			}
		case KindManual:
			changes = append(changes, locdiff.CellChange{Cell: c.Cell, Old: c.Target, New: r.Text})
		}
	}
	if len(missing) > 0 {
		return nil, nil, branches.ErrConflict{Reason: "unresolved conflicts", Cells: missing}
	}
	return changes, resolved, nil
}

func eqValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
