// Package migrations applies ordered SQL migrations to a SQLite connection.
package migrations

import (
	"context"
	"fmt"

	"github.com/locvc/locvc/src/internal/sqlutil"
	"go.brendoncarroll.net/exp/slices2"
	"zombiezen.com/go/sqlite/sqlitemigration"
)

// Migration is one schema change. RowID orders migrations and must be
// contiguous starting at 1; applied migrations never change.
type Migration struct {
	RowID   int64
	Name    string
	SQLText string
}

// EnsureAll brings the database behind conn up to the latest migration.
// It is a no-op for migrations that already ran.
func EnsureAll(ctx context.Context, conn *sqlutil.Conn, migs []Migration) error {
	for i, mig := range migs {
		if mig.RowID != int64(i+1) {
			return fmt.Errorf("migration %s out of order: row id %d at position %d", mig.Name, mig.RowID, i+1)
		}
	}
	schema := sqlitemigration.Schema{
		Migrations: slices2.Map(migs, func(mig Migration) string {
			return mig.SQLText
		}),
	}
	return sqlitemigration.Migrate(ctx, conn, schema)
}
