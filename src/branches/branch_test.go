package branches

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckName(t *testing.T) {
	tcs := map[string]bool{
		"":              false,
		"main":          true,
		"feature-x":     true,
		"test\ttest":    false, // no \t
		"release/2.0":   true,  // / .
		"test\n":        false, // no \n
		"feat/-_":       true,
		"two words":   false, // no spaces
		"v1.2.3":      true,
		"hotfix=prod": true,
	}
	for x, expected := range tcs {
		actual := CheckName(x)
		if !expected {
			require.Error(t, actual, "%s -> %v", x, actual)
		} else {
			require.NoError(t, actual, "%s -> %v", x, actual)
		}
	}
}

func TestSnapshotClone(t *testing.T) {
	key := KeyID{Namespace: "checkout", Name: "title"}
	s := Snapshot{
		key: KeyState{Description: "d", Values: map[string]string{"en": "Checkout"}},
	}
	s2 := s.Clone()
	require.True(t, s.Equal(s2))
	s2[key].Values["en"] = "changed"
	require.Equal(t, "Checkout", s[key].Values["en"])
	require.False(t, s.Equal(s2))
}

func TestSnapshotCell(t *testing.T) {
	key := KeyID{Namespace: "checkout", Name: "title"}
	s := Snapshot{
		key: KeyState{Description: "page title", Values: map[string]string{"en": "Checkout"}},
	}
	v, ok := s.Cell(Cell{Key: key, Lang: "en"})
	require.True(t, ok)
	require.Equal(t, "Checkout", v)
	v, ok = s.Cell(Cell{Key: key})
	require.True(t, ok)
	require.Equal(t, "page title", v)
	_, ok = s.Cell(Cell{Key: key, Lang: "de"})
	require.False(t, ok)
	_, ok = s.Cell(Cell{Key: KeyID{Name: "missing"}, Lang: "en"})
	require.False(t, ok)
}

func TestCheckKeyID(t *testing.T) {
	tcs := map[KeyID]bool{
		{Namespace: "checkout", Name: "title"}: true,
		{Name: "title"}:                        true,
		{Namespace: "a.b", Name: "c-d"}:        true,
		{}:                                     false, // empty name
		{Namespace: "checkout"}:                false,
		{Name: "a/b"}:                          false, // would reparse as namespaced
		{Namespace: "a/b", Name: "c"}:          false,
	}
	for k, expected := range tcs {
		err := CheckKeyID(k)
		if expected {
			require.NoError(t, err, "%v", k)
		} else {
			require.Error(t, err, "%v", k)
			require.True(t, IsValidation(err))
		}
	}
}

func TestSnapshotJSON(t *testing.T) {
	s := Snapshot{
		{Namespace: "checkout", Name: "title"}: {
			Description: "page title",
			Values:      map[string]string{"en": "Checkout", "de": "Kasse"},
		},
		{Name: "bare"}: {Description: "no namespace"},
	}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	var s2 Snapshot
	require.NoError(t, json.Unmarshal(data, &s2))
	require.True(t, s.Equal(s2))
}

func TestSortedKeys(t *testing.T) {
	s := Snapshot{
		{Namespace: "b", Name: "x"}: {},
		{Namespace: "a", Name: "z"}: {},
		{Namespace: "a", Name: "y"}: {},
	}
	keys := s.SortedKeys()
	require.Equal(t, []KeyID{
		{Namespace: "a", Name: "y"},
		{Namespace: "a", Name: "z"},
		{Namespace: "b", Name: "x"},
	}, keys)
}
