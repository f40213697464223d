package locdiff

import (
	"github.com/locvc/locvc/src/branches"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Conflict is one cell changed differently on both sides since the
// merge-base. A nil side means the cell is absent there, so a deletion
// racing a modification is a conflict with one nil side.
type Conflict struct {
	Cell   branches.Cell `json:"cell"`
	Base   *string       `json:"base"`
	Source *string       `json:"source"`
	Target *string       `json:"target"`
}

// ThreeWay classifies every cell of the key/language matrix relative to
// the merge-base and splits the outcome into changes that can be adopted
// into target without intervention, and conflicts that need a resolution.
//
// Per cell: changed only in source is adopted; changed only in target is
// left alone; changed identically on both sides converged and needs
// nothing; changed differently on both sides conflicts. Deletions count
// as changes, which makes delete-versus-modify a conflict rather than a
// silent preference for either side.
func ThreeWay(base, source, target branches.Snapshot) (DiffResult, []Conflict, error) {
	var adopted []CellChange
	var conflicts []Conflict
	for _, cell := range cellUniverse(base, source, target) {
		b := lookupCell(base, cell)
		s := lookupCell(source, cell)
		t := lookupCell(target, cell)
		srcChanged := !eqCell(s, b)
		tgtChanged := !eqCell(t, b)
		switch {
		case !srcChanged:
			// unchanged, or target-only change: nothing to do
		case !tgtChanged:
			adopted = append(adopted, CellChange{Cell: cell, Old: t, New: s})
		case eqCell(s, t):
			// converged
		default:
			conflicts = append(conflicts, Conflict{Cell: cell, Base: b, Source: s, Target: t})
		}
	}
	changes, err := FromCells(target, adopted)
	if err != nil {
		return DiffResult{}, nil, err
	}
	return changes, conflicts, nil
}

func cellUniverse(snaps ...branches.Snapshot) []branches.Cell {
	set := make(map[branches.Cell]struct{})
	for _, snap := range snaps {
		for k, st := range snap {
			set[branches.Cell{Key: k}] = struct{}{}
			for lang := range st.Values {
				set[branches.Cell{Key: k, Lang: lang}] = struct{}{}
			}
		}
	}
	cells := maps.Keys(set)
	slices.SortFunc(cells, branches.Cell.Compare)
	return cells
}

func lookupCell(snap branches.Snapshot, cell branches.Cell) *string {
	v, ok := snap.Cell(cell)
	if !ok {
		return nil
	}
	return &v
}

func eqCell(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
