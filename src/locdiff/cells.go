package locdiff

import (
	"fmt"

	"github.com/locvc/locvc/src/branches"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// CellChange is the cell-granular view of a diff: one (key, language)
// transition. Language "" carries the key's description; its presence
// tracks the key's existence.
type CellChange struct {
	Cell branches.Cell `json:"cell"`
	Old  *string       `json:"old"`
	New  *string       `json:"new"`
}

// Cells decomposes d into cell changes, sorted by cell.
func (d DiffResult) Cells() []CellChange {
	var out []CellChange
	for _, kd := range d.Keys {
		if kd.Description != nil {
			out = append(out, CellChange{
				Cell: branches.Cell{Key: kd.Key},
				Old:  kd.Description.Old,
				New:  kd.Description.New,
			})
		}
		langs := maps.Keys(kd.Values)
		slices.Sort(langs)
		for _, lang := range langs {
			c := kd.Values[lang]
			out = append(out, CellChange{
				Cell: branches.Cell{Key: kd.Key, Lang: lang},
				Old:  c.Old,
				New:  c.New,
			})
		}
	}
	slices.SortFunc(out, func(a, b CellChange) int {
		return a.Cell.Compare(b.Cell)
	})
	return out
}

// FromCells regroups cell changes into a DiffResult relative to target.
// Every Old must match target's current cell, otherwise an error is
// returned.
//
// A key becomes Deleted only when the changes remove every cell it
// currently has. If some cells survive, the key stays and a pending
// description removal is dropped: a deletion that lost against a kept
// modification must not strip the key of its description.
func FromCells(target branches.Snapshot, cells []CellChange) (DiffResult, error) {
	byKey := make(map[branches.KeyID][]CellChange)
	for _, cc := range cells {
		cur, exists := target.Cell(cc.Cell)
		if cc.Old == nil && exists {
			return DiffResult{}, fmt.Errorf("cell %v exists but change expects it absent", cc.Cell)
		}
		if cc.Old != nil && (!exists || cur != *cc.Old) {
			return DiffResult{}, fmt.Errorf("cell %v does not match change", cc.Cell)
		}
		byKey[cc.Cell.Key] = append(byKey[cc.Cell.Key], cc)
	}
	keys := maps.Keys(byKey)
	slices.SortFunc(keys, branches.KeyID.Compare)

	var out DiffResult
	for _, k := range keys {
		kcells := byKey[k]
		st, inTarget := target[k]
		if !inTarget {
			if kd, ok := addedFromCells(k, kcells); ok {
				out.Keys = append(out.Keys, kd)
			}
			continue
		}
		if kd, deleted := deletedFromCells(k, st, kcells); deleted {
			out.Keys = append(out.Keys, kd)
			continue
		}
		if kd, changed := modifiedFromCells(k, kcells); changed {
			out.Keys = append(out.Keys, kd)
		}
	}
	return out, nil
}

func addedFromCells(k branches.KeyID, cells []CellChange) (KeyDiff, bool) {
	desc := ""
	descSet := false
	kd := KeyDiff{Key: k, Type: TypeAdded}
	for _, cc := range cells {
		if cc.New == nil {
			continue // removal of an absent cell is a no-op
		}
		if cc.Cell.Lang == "" {
			desc = *cc.New
			descSet = true
			continue
		}
		if kd.Values == nil {
			kd.Values = make(map[string]Change)
		}
		kd.Values[cc.Cell.Lang] = Change{New: cc.New}
	}
	if len(kd.Values) == 0 && !descSet {
		return KeyDiff{}, false
	}
	kd.Description = &Change{New: &desc}
	return kd, true
}

func deletedFromCells(k branches.KeyID, st branches.KeyState, cells []CellChange) (KeyDiff, bool) {
	removed := make(map[string]struct{})
	descRemoved := false
	for _, cc := range cells {
		if cc.New != nil {
			return KeyDiff{}, false
		}
		if cc.Cell.Lang == "" {
			descRemoved = true
		} else {
			removed[cc.Cell.Lang] = struct{}{}
		}
	}
	if !descRemoved || len(removed) != len(st.Values) {
		return KeyDiff{}, false
	}
	for lang := range st.Values {
		if _, ok := removed[lang]; !ok {
			return KeyDiff{}, false
		}
	}
	return deletedKey(k, st), true
}

func modifiedFromCells(k branches.KeyID, cells []CellChange) (KeyDiff, bool) {
	kd := KeyDiff{Key: k, Type: TypeModified}
	for _, cc := range cells {
		if cc.Cell.Lang == "" {
			if cc.New == nil {
				// The key survives; keep its description.
				continue
			}
			kd.Description = &Change{Old: cc.Old, New: cc.New}
			continue
		}
		if cc.Old == nil && cc.New == nil {
			continue
		}
		if kd.Values == nil {
			kd.Values = make(map[string]Change)
		}
		kd.Values[cc.Cell.Lang] = Change{Old: cc.Old, New: cc.New}
	}
	return kd, kd.Description != nil || len(kd.Values) > 0
}
