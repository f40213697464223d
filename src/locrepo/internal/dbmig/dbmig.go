// Package dbmig holds the embedded schema migrations for the repo database.
// Files run in lexical order of their names.
package dbmig

import (
	"embed"
	"fmt"
	"io/fs"
	"slices"

	"github.com/locvc/locvc/src/internal/migrations"
)

//go:embed *.sql
var migfs embed.FS

// ListMigrations returns every embedded migration in order.
func ListMigrations() []migrations.Migration {
	names, err := fs.Glob(migfs, "*.sql")
	if err != nil {
		panic(err)
	}
	slices.Sort(names)
	ret := make([]migrations.Migration, 0, len(names))
	for _, name := range names {
		data, err := migfs.ReadFile(name)
		if err != nil {
			panic(fmt.Errorf("reading migration %s: %w", name, err))
		}
		ret = append(ret, migrations.Migration{
			RowID:   int64(len(ret) + 1),
			Name:    name,
			SQLText: string(data),
		})
	}
	return ret
}
