package branches

import (
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// KeyID identifies a translation key within a branch.
type KeyID struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

func (k KeyID) String() string {
	if k.Namespace == "" {
		return k.Name
	}
	return k.Namespace + "/" + k.Name
}

func (k KeyID) Compare(other KeyID) int {
	if c := strings.Compare(k.Namespace, other.Namespace); c != 0 {
		return c
	}
	return strings.Compare(k.Name, other.Name)
}

// MarshalText lets KeyID serve as a JSON object key.
func (k KeyID) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *KeyID) UnmarshalText(data []byte) error {
	s := string(data)
	if i := strings.Index(s, "/"); i >= 0 {
		k.Namespace, k.Name = s[:i], s[i+1:]
	} else {
		k.Namespace, k.Name = "", s
	}
	return nil
}

// CheckKeyID returns an error if k cannot name a translation key.
// Namespace and Name must not contain '/' so the textual form parses
// back to the same key.
func CheckKeyID(k KeyID) error {
	if k.Name == "" {
		return ErrInvalidName{Name: k.String(), Reason: "empty key name"}
	}
	if strings.Contains(k.Namespace, "/") || strings.Contains(k.Name, "/") {
		return ErrInvalidName{Name: k.String(), Reason: "key segments must not contain '/'"}
	}
	return nil
}

// KeyState is the full state of one key: its description plus
// one value per language. Values are raw ICU-capable text and are
// compared by exact string equality.
type KeyState struct {
	Description string            `json:"description"`
	Values      map[string]string `json:"values"`
}

func (ks KeyState) Clone() KeyState {
	return KeyState{
		Description: ks.Description,
		Values:      maps.Clone(ks.Values),
	}
}

func (ks KeyState) Equal(other KeyState) bool {
	return ks.Description == other.Description && maps.Equal(ks.Values, other.Values)
}

// Snapshot is the full content of a branch at a point in time.
type Snapshot map[KeyID]KeyState

func (s Snapshot) Clone() Snapshot {
	s2 := make(Snapshot, len(s))
	for k, ks := range s {
		s2[k] = ks.Clone()
	}
	return s2
}

func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for k, ks := range s {
		ks2, ok := other[k]
		if !ok || !ks.Equal(ks2) {
			return false
		}
	}
	return true
}

// SortedKeys returns the snapshot's keys in deterministic order.
func (s Snapshot) SortedKeys() []KeyID {
	keys := maps.Keys(s)
	slices.SortFunc(keys, KeyID.Compare)
	return keys
}

// Cell addresses one key/language coordinate of the matrix.
// A Lang of "" addresses the key's description.
type Cell struct {
	Key  KeyID  `json:"key"`
	Lang string `json:"lang"`
}

func (c Cell) String() string {
	if c.Lang == "" {
		return c.Key.String() + " (description)"
	}
	return c.Key.String() + " " + c.Lang
}

func (c Cell) Compare(other Cell) int {
	if cmp := c.Key.Compare(other.Key); cmp != 0 {
		return cmp
	}
	return strings.Compare(c.Lang, other.Lang)
}

// Cell returns the value at c, and whether it exists.
// Descriptions exist whenever the key exists.
func (s Snapshot) Cell(c Cell) (string, bool) {
	ks, ok := s[c.Key]
	if !ok {
		return "", false
	}
	if c.Lang == "" {
		return ks.Description, true
	}
	v, ok := ks.Values[c.Lang]
	return v, ok
}
