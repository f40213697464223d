// Package locdiff computes and applies diffs between branch snapshots.
//
// Diffs operate on the key/language matrix at cell granularity: a cell is
// one (key, language) coordinate, with language "" addressing the key's
// description. A DiffResult is exactly invertible: applying it to the
// snapshot it was computed against reproduces the other side, and applying
// its inverse restores the original.
package locdiff

import (
	"fmt"

	"github.com/locvc/locvc/src/branches"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Type uint8

const (
	// TypeAdded marks a key present in the new side only.
	TypeAdded = Type(iota + 1)
	// TypeDeleted marks a key present in the old side only.
	TypeDeleted
	// TypeModified marks a key present in both sides with at least one
	// differing cell.
	TypeModified
)

func (t Type) String() string {
	switch t {
	case TypeAdded:
		return "ADDED"
	case TypeDeleted:
		return "DELETED"
	case TypeModified:
		return "MODIFIED"
	default:
		return fmt.Sprintf("Type(INVALID, %d)", uint8(t))
	}
}

func (t Type) MarshalText() ([]byte, error) {
	switch t {
	case TypeAdded, TypeDeleted, TypeModified:
		return []byte(t.String()), nil
	default:
		return nil, fmt.Errorf("invalid diff type %d", uint8(t))
	}
}

func (t *Type) UnmarshalText(data []byte) error {
	switch string(data) {
	case "ADDED":
		*t = TypeAdded
	case "DELETED":
		*t = TypeDeleted
	case "MODIFIED":
		*t = TypeModified
	default:
		return fmt.Errorf("invalid diff type %q", data)
	}
	return nil
}

// Change is one cell transition. A nil Old means the cell did not exist;
// a nil New means the cell is removed.
type Change struct {
	Old *string `json:"old"`
	New *string `json:"new"`
}

func (c Change) Invert() Change {
	return Change{Old: c.New, New: c.Old}
}

// KeyDiff is the difference for a single key.
type KeyDiff struct {
	Key  branches.KeyID `json:"key"`
	Type Type           `json:"type"`
	// Description is always set for added and deleted keys, and set on
	// modified keys only when the description changed.
	Description *Change `json:"description,omitempty"`
	// Values holds the per-language changes, keyed by language.
	Values map[string]Change `json:"values,omitempty"`
}

// DiffResult is a set of key diffs in deterministic (sorted) order.
// Keys equal on both sides are omitted.
type DiffResult struct {
	Keys []KeyDiff `json:"keys"`
}

func (d DiffResult) IsEmpty() bool {
	return len(d.Keys) == 0
}

// Invert returns the diff that undoes d.
func (d DiffResult) Invert() DiffResult {
	out := DiffResult{Keys: make([]KeyDiff, len(d.Keys))}
	for i, kd := range d.Keys {
		kd2 := KeyDiff{Key: kd.Key}
		switch kd.Type {
		case TypeAdded:
			kd2.Type = TypeDeleted
		case TypeDeleted:
			kd2.Type = TypeAdded
		default:
			kd2.Type = TypeModified
		}
		if kd.Description != nil {
			inv := kd.Description.Invert()
			kd2.Description = &inv
		}
		if kd.Values != nil {
			kd2.Values = make(map[string]Change, len(kd.Values))
			for lang, c := range kd.Values {
				kd2.Values[lang] = c.Invert()
			}
		}
		out.Keys[i] = kd2
	}
	return out
}

// Diff computes the difference from a to b.
// Added means the key is in b but not a.
func Diff(a, b branches.Snapshot) DiffResult {
	keySet := make(map[branches.KeyID]struct{}, len(a)+len(b))
	for k := range a {
		keySet[k] = struct{}{}
	}
	for k := range b {
		keySet[k] = struct{}{}
	}
	keys := maps.Keys(keySet)
	slices.SortFunc(keys, branches.KeyID.Compare)

	var out DiffResult
	for _, k := range keys {
		sa, inA := a[k]
		sb, inB := b[k]
		switch {
		case !inA:
			out.Keys = append(out.Keys, addedKey(k, sb))
		case !inB:
			out.Keys = append(out.Keys, deletedKey(k, sa))
		default:
			if kd, changed := modifiedKey(k, sa, sb); changed {
				out.Keys = append(out.Keys, kd)
			}
		}
	}
	return out
}

func addedKey(k branches.KeyID, st branches.KeyState) KeyDiff {
	desc := st.Description
	kd := KeyDiff{Key: k, Type: TypeAdded, Description: &Change{New: &desc}}
	if len(st.Values) > 0 {
		kd.Values = make(map[string]Change, len(st.Values))
		for lang, v := range st.Values {
			v := v
			kd.Values[lang] = Change{New: &v}
		}
	}
	return kd
}

func deletedKey(k branches.KeyID, st branches.KeyState) KeyDiff {
	desc := st.Description
	kd := KeyDiff{Key: k, Type: TypeDeleted, Description: &Change{Old: &desc}}
	if len(st.Values) > 0 {
		kd.Values = make(map[string]Change, len(st.Values))
		for lang, v := range st.Values {
			v := v
			kd.Values[lang] = Change{Old: &v}
		}
	}
	return kd
}

func modifiedKey(k branches.KeyID, sa, sb branches.KeyState) (KeyDiff, bool) {
	kd := KeyDiff{Key: k, Type: TypeModified}
	if sa.Description != sb.Description {
		oldDesc, newDesc := sa.Description, sb.Description
		kd.Description = &Change{Old: &oldDesc, New: &newDesc}
	}
	langSet := make(map[string]struct{}, len(sa.Values)+len(sb.Values))
	for lang := range sa.Values {
		langSet[lang] = struct{}{}
	}
	for lang := range sb.Values {
		langSet[lang] = struct{}{}
	}
	for lang := range langSet {
		va, inA := sa.Values[lang]
		vb, inB := sb.Values[lang]
		if inA && inB && va == vb {
			continue
		}
		if kd.Values == nil {
			kd.Values = make(map[string]Change)
		}
		var c Change
		if inA {
			va := va
			c.Old = &va
		}
		if inB {
			vb := vb
			c.New = &vb
		}
		kd.Values[lang] = c
	}
	return kd, kd.Description != nil || len(kd.Values) > 0
}

// Apply returns a copy of snap with d applied. It is strict: every Old
// value in d must match the corresponding cell of snap, otherwise an error
// naming the cell is returned and no partial result is produced.
func Apply(snap branches.Snapshot, d DiffResult) (branches.Snapshot, error) {
	out := snap.Clone()
	for _, kd := range d.Keys {
		switch kd.Type {
		case TypeAdded:
			if _, ok := out[kd.Key]; ok {
				return nil, fmt.Errorf("diff adds key %v which already exists", kd.Key)
			}
			if kd.Description == nil || kd.Description.New == nil {
				return nil, fmt.Errorf("diff adds key %v without a description state", kd.Key)
			}
			st := branches.KeyState{Description: *kd.Description.New}
			if len(kd.Values) > 0 {
				st.Values = make(map[string]string, len(kd.Values))
				for lang, c := range kd.Values {
					if c.New == nil {
						return nil, fmt.Errorf("diff adds key %v with a deletion for language %s", kd.Key, lang)
					}
					st.Values[lang] = *c.New
				}
			}
			out[kd.Key] = st
		case TypeDeleted:
			cur, ok := out[kd.Key]
			if !ok {
				return nil, fmt.Errorf("diff deletes key %v which does not exist", kd.Key)
			}
			if kd.Description == nil || kd.Description.Old == nil || cur.Description != *kd.Description.Old {
				return nil, fmt.Errorf("diff deletes key %v but its description does not match", kd.Key)
			}
			if len(cur.Values) != len(kd.Values) {
				return nil, fmt.Errorf("diff deletes key %v but its values do not match", kd.Key)
			}
			for lang, c := range kd.Values {
				if c.Old == nil || cur.Values[lang] != *c.Old {
					return nil, fmt.Errorf("diff deletes key %v but language %s does not match", kd.Key, lang)
				}
			}
			delete(out, kd.Key)
		case TypeModified:
			cur, ok := out[kd.Key]
			if !ok {
				return nil, fmt.Errorf("diff modifies key %v which does not exist", kd.Key)
			}
			st := cur.Clone()
			if st.Values == nil {
				st.Values = make(map[string]string)
			}
			if kd.Description != nil {
				if kd.Description.Old == nil || cur.Description != *kd.Description.Old {
					return nil, fmt.Errorf("description of %v does not match diff", kd.Key)
				}
				if kd.Description.New == nil {
					return nil, fmt.Errorf("diff removes description of %v without deleting the key", kd.Key)
				}
				st.Description = *kd.Description.New
			}
			for lang, c := range kd.Values {
				cell := branches.Cell{Key: kd.Key, Lang: lang}
				cur, exists := st.Values[lang]
				if c.Old == nil && exists {
					return nil, fmt.Errorf("cell %v exists but diff expects it absent", cell)
				}
				if c.Old != nil && (!exists || cur != *c.Old) {
					return nil, fmt.Errorf("cell %v does not match diff", cell)
				}
				if c.New == nil {
					delete(st.Values, lang)
				} else {
					st.Values[lang] = *c.New
				}
			}
			out[kd.Key] = st
		default:
			return nil, fmt.Errorf("invalid diff type %v for key %v", kd.Type, kd.Key)
		}
	}
	return out, nil
}
