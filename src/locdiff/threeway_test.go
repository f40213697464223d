package locdiff

import (
	"testing"

	"github.com/locvc/locvc/src/branches"
	"github.com/stretchr/testify/require"
)

func TestThreeWaySourceOnly(t *testing.T) {
	base := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "t", Values: map[string]string{"en": "Checkout"}},
	})
	source := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "t", Values: map[string]string{"en": "Secure Checkout"}},
	})
	target := base.Clone()

	changes, conflicts, err := ThreeWay(base, source, target)
	require.NoError(t, err)
	require.Empty(t, conflicts)
	got, err := Apply(target, changes)
	require.NoError(t, err)
	require.Equal(t, "Secure Checkout", got[keyID("checkout/title")].Values["en"])
}

func TestThreeWayTargetOnly(t *testing.T) {
	base := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "t", Values: map[string]string{"en": "Checkout"}},
	})
	source := base.Clone()
	target := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "t", Values: map[string]string{"en": "Basket"}},
	})

	changes, conflicts, err := ThreeWay(base, source, target)
	require.NoError(t, err)
	require.Empty(t, conflicts)
	require.True(t, changes.IsEmpty())
}

func TestThreeWayConverged(t *testing.T) {
	base := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "t", Values: map[string]string{"en": "Checkout"}},
	})
	both := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "t", Values: map[string]string{"en": "Secure Checkout"}},
	})

	changes, conflicts, err := ThreeWay(base, both, both.Clone())
	require.NoError(t, err)
	require.Empty(t, conflicts)
	require.True(t, changes.IsEmpty())
}

func TestThreeWayConflict(t *testing.T) {
	base := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "t", Values: map[string]string{"en": "Checkout"}},
	})
	source := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "t", Values: map[string]string{"en": "Secure Checkout"}},
	})
	target := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "t", Values: map[string]string{"en": "Basket"}},
	})

	changes, conflicts, err := ThreeWay(base, source, target)
	require.NoError(t, err)
	require.True(t, changes.IsEmpty())
	require.Len(t, conflicts, 1)
	c := conflicts[0]
	require.Equal(t, cell("checkout/title", "en"), c.Cell)
	require.Equal(t, "Checkout", *c.Base)
	require.Equal(t, "Secure Checkout", *c.Source)
	require.Equal(t, "Basket", *c.Target)
}

func TestThreeWayDeleteVsModify(t *testing.T) {
	base := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "t", Values: map[string]string{"en": "Checkout", "de": "Kasse"}},
	})
	// source deletes the whole key, target retranslates one language
	source := branches.Snapshot{}
	target := snapshot(map[string]branches.KeyState{
		"checkout/title": {Description: "t", Values: map[string]string{"en": "Checkout", "de": "Zur Kasse"}},
	})

	changes, conflicts, err := ThreeWay(base, source, target)
	require.NoError(t, err)
	// the untouched cells adopt the deletion
	require.Len(t, changes.Keys, 1)
	require.Equal(t, TypeModified, changes.Keys[0].Type)
	// the retranslated cell conflicts with the deletion
	require.Len(t, conflicts, 1)
	require.Equal(t, cell("checkout/title", "de"), conflicts[0].Cell)
	require.Nil(t, conflicts[0].Source)
	require.Equal(t, "Zur Kasse", *conflicts[0].Target)

	got, err := Apply(target, changes)
	require.NoError(t, err)
	st := got[keyID("checkout/title")]
	require.Equal(t, "t", st.Description)
	require.Equal(t, map[string]string{"de": "Zur Kasse"}, st.Values)
}

func TestThreeWayAddAdd(t *testing.T) {
	base := branches.Snapshot{}
	source := snapshot(map[string]branches.KeyState{
		"checkout/cta": {Description: "c", Values: map[string]string{"en": "Pay now"}},
	})
	target := snapshot(map[string]branches.KeyState{
		"checkout/cta": {Description: "c", Values: map[string]string{"en": "Pay", "de": "Zahlen"}},
	})

	changes, conflicts, err := ThreeWay(base, source, target)
	require.NoError(t, err)
	require.True(t, changes.IsEmpty())
	require.Len(t, conflicts, 1)
	require.Equal(t, cell("checkout/cta", "en"), conflicts[0].Cell)
	require.Nil(t, conflicts[0].Base)
}
