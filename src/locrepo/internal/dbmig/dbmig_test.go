package dbmig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListMigrations(t *testing.T) {
	migs := ListMigrations()
	require.NotEmpty(t, migs)
	for i, mig := range migs {
		t.Log(mig.Name)
		require.Equal(t, int64(i+1), mig.RowID)
		require.NotEmpty(t, mig.SQLText)
	}
}
