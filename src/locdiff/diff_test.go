package locdiff

import (
	"testing"

	"github.com/locvc/locvc/src/branches"
	"github.com/stretchr/testify/require"
)

func TestDiffEmpty(t *testing.T) {
	snap := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "Checkout page title", Values: map[string]string{"en": "Checkout"}},
	})
	d := Diff(snap, snap.Clone())
	require.True(t, d.IsEmpty())
}

func TestDiffAddDelete(t *testing.T) {
	a := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "Checkout page title", Values: map[string]string{"en": "Checkout"}},
	})
	b := snapshot(map[string]branches.KeyState{
		"checkout/cta": {Description: "Call to action", Values: map[string]string{"en": "Pay now", "de": "Jetzt zahlen"}},
	})
	d := Diff(a, b)
	require.Len(t, d.Keys, 2)
	require.Equal(t, TypeAdded, d.Keys[0].Type)
	require.Equal(t, keyID("checkout/cta"), d.Keys[0].Key)
	require.Len(t, d.Keys[0].Values, 2)
	require.Equal(t, TypeDeleted, d.Keys[1].Type)
	require.Equal(t, keyID("checkout/title"), d.Keys[1].Key)
}

func TestDiffModified(t *testing.T) {
	a := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "Checkout page title", Values: map[string]string{"en": "Checkout", "de": "Kasse"}},
	})
	b := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "Checkout page title", Values: map[string]string{"en": "Secure Checkout", "fr": "Paiement"}},
	})
	d := Diff(a, b)
	require.Len(t, d.Keys, 1)
	kd := d.Keys[0]
	require.Equal(t, TypeModified, kd.Type)
	require.Nil(t, kd.Description)
	require.Len(t, kd.Values, 3)
	require.Equal(t, "Checkout", *kd.Values["en"].Old)
	require.Equal(t, "Secure Checkout", *kd.Values["en"].New)
	require.Nil(t, kd.Values["de"].New)
	require.Nil(t, kd.Values["fr"].Old)
}

func TestApplyRoundTrip(t *testing.T) {
	a := snapshot(map[string]branches.KeyState{
		"checkout/title":  {Description: "Checkout page title", Values: map[string]string{"en": "Checkout", "de": "Kasse"}},
		"checkout/cta":    {Description: "Call to action", Values: map[string]string{"en": "Pay now"}},
		"profile/heading": {Description: "", Values: map[string]string{"en": "Your profile"}},
	})
	b := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "Page title", Values: map[string]string{"en": "Secure Checkout"}},
		"profile/bio":    {Description: "Bio field label", Values: nil},
	})
	d := Diff(a, b)
	got, err := Apply(a, d)
	require.NoError(t, err)
	require.True(t, got.Equal(b))

	back, err := Apply(got, d.Invert())
	require.NoError(t, err)
	require.True(t, back.Equal(a))
}

func TestApplyStale(t *testing.T) {
	a := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "t", Values: map[string]string{"en": "Checkout"}},
	})
	b := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "t", Values: map[string]string{"en": "Secure Checkout"}},
	})
	d := Diff(a, b)

	drifted := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "t", Values: map[string]string{"en": "Basket"}},
	})
	_, err := Apply(drifted, d)
	require.Error(t, err)
	require.Contains(t, err.Error(), "checkout/title")
}

func TestCellsRoundTrip(t *testing.T) {
	a := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "t", Values: map[string]string{"en": "Checkout", "de": "Kasse"}},
		"checkout/cta":   {Description: "c", Values: map[string]string{"en": "Pay now"}},
	})
	b := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "t2", Values: map[string]string{"en": "Checkout"}},
		"profile/bio":    {Description: "b", Values: map[string]string{"en": "Bio"}},
	})
	d := Diff(a, b)
	cells := d.Cells()
	require.True(t, len(cells) > 0)

	d2, err := FromCells(a, cells)
	require.NoError(t, err)
	got, err := Apply(a, d2)
	require.NoError(t, err)
	require.True(t, got.Equal(b))
}

func TestFromCellsPartialDelete(t *testing.T) {
	// Removing one language from a key that keeps other cells must not
	// delete the key or its description.
	target := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "t", Values: map[string]string{"en": "Checkout", "de": "Kasse"}},
	})
	de := "Kasse"
	d, err := FromCells(target, []CellChange{
		{Cell: cell("checkout/title", "de"), Old: &de, New: nil},
	})
	require.NoError(t, err)
	require.Len(t, d.Keys, 1)
	require.Equal(t, TypeModified, d.Keys[0].Type)

	got, err := Apply(target, d)
	require.NoError(t, err)
	st := got[keyID("checkout/title")]
	require.Equal(t, "t", st.Description)
	require.Equal(t, map[string]string{"en": "Checkout"}, st.Values)
}

func TestFromCellsFullDelete(t *testing.T) {
	target := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "t", Values: map[string]string{"en": "Checkout"}},
	})
	desc, en := "t", "Checkout"
	d, err := FromCells(target, []CellChange{
		{Cell: cell("checkout/title", ""), Old: &desc, New: nil},
		{Cell: cell("checkout/title", "en"), Old: &en, New: nil},
	})
	require.NoError(t, err)
	require.Len(t, d.Keys, 1)
	require.Equal(t, TypeDeleted, d.Keys[0].Type)

	got, err := Apply(target, d)
	require.NoError(t, err)
	require.Len(t, got, 0)
}

func snapshot(m map[string]branches.KeyState) branches.Snapshot {
	out := make(branches.Snapshot, len(m))
	for k, st := range m {
		out[keyID(k)] = st
	}
	return out
}

func keyID(s string) branches.KeyID {
	c := cell(s, "")
	return c.Key
}

func cell(key, lang string) branches.Cell {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return branches.Cell{
				Key:  branches.KeyID{Namespace: key[:i], Name: key[i+1:]},
				Lang: lang,
			}
		}
	}
	return branches.Cell{Key: branches.KeyID{Name: key}, Lang: lang}
}
