package locrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/locvc/locvc/src/branches"
	"github.com/locvc/locvc/src/internal/sqlutil"
	"go.brendoncarroll.net/state"
	"go.brendoncarroll.net/tai64"
	"zombiezen.com/go/sqlite"
)

// sqlStore implements the branch store, the merge store, and the
// environment registry on one SQLite database.
type sqlStore struct {
	pool *sqlutil.Pool
}

func newSQLStore(pool *sqlutil.Pool) *sqlStore {
	return &sqlStore{pool: pool}
}

func (s *sqlStore) CreateSpace(ctx context.Context, projectID uuid.UUID, name string) (*branches.Space, error) {
	if err := branches.CheckName(name); err != nil {
		return nil, err
	}
	return sqlutil.DoTx1(ctx, s.pool, func(conn *sqlutil.Conn) (*branches.Space, error) {
		var count int64
		if err := sqlutil.Get(conn, &count, `SELECT COUNT(*) FROM spaces WHERE project_id = ? AND name = ?`, projectID, name); err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, branches.ErrExists{Kind: branches.KindSpace, Name: name}
		}
		now := tai64.Now().TAI64()
		sp := &branches.Space{
			ID:        uuid.New(),
			ProjectID: projectID,
			Name:      name,
			CreatedAt: now,
		}
		if err := sqlutil.Exec(conn, `INSERT INTO spaces (id, project_id, name, created_at) VALUES (?, ?, ?, ?)`,
			sp.ID, sp.ProjectID, sp.Name, now.Marshal()); err != nil {
			return nil, err
		}
		if err := sqlutil.Exec(conn, `INSERT INTO branches (id, space_id, name, is_default, created_at) VALUES (?, ?, ?, 1, ?)`,
			uuid.New(), sp.ID, branches.DefaultBranchName, now.Marshal()); err != nil {
			return nil, err
		}
		return sp, nil
	})
}

func (s *sqlStore) GetSpace(ctx context.Context, id uuid.UUID) (*branches.Space, error) {
	return sqlutil.DoTx1(ctx, s.pool, func(conn *sqlutil.Conn) (*branches.Space, error) {
		return getSpace(conn, id)
	})
}

func (s *sqlStore) ListSpaces(ctx context.Context, projectID uuid.UUID) ([]branches.Space, error) {
	return sqlutil.DoTx1(ctx, s.pool, func(conn *sqlutil.Conn) ([]branches.Space, error) {
		var out []branches.Space
		for sp, err := range sqlutil.Select(conn, scanSpace,
			`SELECT id, project_id, name, created_at FROM spaces WHERE project_id = ? ORDER BY name`, projectID) {
			if err != nil {
				return nil, err
			}
			out = append(out, sp)
		}
		return out, nil
	})
}

func (s *sqlStore) CreateBranch(ctx context.Context, spaceID uuid.UUID, name string, fromBranchID uuid.UUID) (*branches.Branch, error) {
	if err := branches.CheckName(name); err != nil {
		return nil, err
	}
	return sqlutil.DoTx1(ctx, s.pool, func(conn *sqlutil.Conn) (*branches.Branch, error) {
		if _, err := getSpace(conn, spaceID); err != nil {
			return nil, err
		}
		var count int64
		if err := sqlutil.Get(conn, &count, `SELECT COUNT(*) FROM branches WHERE space_id = ? AND name = ?`, spaceID, name); err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, branches.ErrExists{Kind: branches.KindBranch, Name: name}
		}
		from, err := getBranch(conn, fromBranchID)
		if err != nil {
			return nil, err
		}
		if from.SpaceID != spaceID {
			return nil, branches.ErrNotFound{Kind: branches.KindBranch, ID: fromBranchID.String()}
		}
		fork, err := loadSnapshot(conn, fromBranchID)
		if err != nil {
			return nil, err
		}
		forkData, err := json.Marshal(fork)
		if err != nil {
			return nil, err
		}
		base := fromBranchID
		b := &branches.Branch{
			ID:           uuid.New(),
			SpaceID:      spaceID,
			Name:         name,
			BaseBranchID: &base,
			CreatedAt:    tai64.Now().TAI64(),
		}
		if err := sqlutil.Exec(conn, `INSERT INTO branches (id, space_id, name, base_branch_id, fork_snapshot, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			b.ID, b.SpaceID, b.Name, b.BaseBranchID, string(forkData), b.CreatedAt.Marshal()); err != nil {
			return nil, err
		}
		if err := sqlutil.Exec(conn, `INSERT INTO translation_keys (branch_id, namespace, name, description)
			SELECT ?, namespace, name, description FROM translation_keys WHERE branch_id = ?`,
			b.ID, fromBranchID); err != nil {
			return nil, err
		}
		if err := sqlutil.Exec(conn, `INSERT INTO translations (branch_id, namespace, name, lang, value)
			SELECT ?, namespace, name, lang, value FROM translations WHERE branch_id = ?`,
			b.ID, fromBranchID); err != nil {
			return nil, err
		}
		return b, nil
	})
}

func (s *sqlStore) DeleteBranch(ctx context.Context, branchID uuid.UUID) error {
	return sqlutil.DoTx(ctx, s.pool, func(conn *sqlutil.Conn) error {
		b, err := getBranch(conn, branchID)
		if err != nil {
			return err
		}
		if b.IsDefault {
			return branches.ErrValidation{Reason: "cannot delete the default branch"}
		}
		var envName string
		if found, err := sqlutil.GetOne(conn, &envName, sqlutil.ScanString,
			`SELECT name FROM environments WHERE branch_id = ? LIMIT 1`, branchID); err != nil {
			return err
		} else if found {
			return branches.ErrConflict{Reason: "environment " + envName + " points at branch " + b.Name}
		}
		var childName string
		if found, err := sqlutil.GetOne(conn, &childName, sqlutil.ScanString,
			`SELECT name FROM branches WHERE base_branch_id = ? LIMIT 1`, branchID); err != nil {
			return err
		} else if found {
			return branches.ErrConflict{Reason: "branch " + childName + " is based on " + b.Name}
		}
		return sqlutil.Exec(conn, `DELETE FROM branches WHERE id = ?`, branchID)
	})
}

func (s *sqlStore) GetBranch(ctx context.Context, branchID uuid.UUID) (*branches.Branch, error) {
	return sqlutil.DoTx1(ctx, s.pool, func(conn *sqlutil.Conn) (*branches.Branch, error) {
		return getBranch(conn, branchID)
	})
}

func (s *sqlStore) GetBranchByName(ctx context.Context, spaceID uuid.UUID, name string) (*branches.Branch, error) {
	return sqlutil.DoTx1(ctx, s.pool, func(conn *sqlutil.Conn) (*branches.Branch, error) {
		var b branches.Branch
		found, err := sqlutil.GetOne(conn, &b, scanBranch,
			`SELECT `+branchCols+` FROM branches WHERE space_id = ? AND name = ?`, spaceID, name)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, branches.ErrNotFound{Kind: branches.KindBranch, ID: name}
		}
		return &b, nil
	})
}

func (s *sqlStore) ListBranches(ctx context.Context, spaceID uuid.UUID, span state.Span[string], limit int) ([]string, error) {
	return sqlutil.DoTx1(ctx, s.pool, func(conn *sqlutil.Conn) ([]string, error) {
		var names []string
		for name, err := range sqlutil.Select(conn, sqlutil.ScanString,
			`SELECT name FROM branches WHERE space_id = ? ORDER BY name`, spaceID) {
			if err != nil {
				return nil, err
			}
			if !span.Contains(name, strings.Compare) {
				continue
			}
			names = append(names, name)
			if limit > 0 && len(names) >= limit {
				break
			}
		}
		return names, nil
	})
}

func (s *sqlStore) GetSnapshot(ctx context.Context, branchID uuid.UUID) (branches.Snapshot, int64, error) {
	return sqlutil.DoTx2(ctx, s.pool, func(conn *sqlutil.Conn) (branches.Snapshot, int64, error) {
		b, err := getBranch(conn, branchID)
		if err != nil {
			return nil, 0, err
		}
		snap, err := loadSnapshot(conn, branchID)
		if err != nil {
			return nil, 0, err
		}
		return snap, b.Version, nil
	})
}

func (s *sqlStore) GetForkSnapshot(ctx context.Context, branchID uuid.UUID) (branches.Snapshot, error) {
	return sqlutil.DoTx1(ctx, s.pool, func(conn *sqlutil.Conn) (branches.Snapshot, error) {
		var data string
		found, err := sqlutil.GetOne(conn, &data, sqlutil.ScanString,
			`SELECT fork_snapshot FROM branches WHERE id = ?`, branchID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, branches.ErrNotFound{Kind: branches.KindBranch, ID: branchID.String()}
		}
		snap := branches.Snapshot{}
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			return nil, fmt.Errorf("parsing fork snapshot of %v: %w", branchID, err)
		}
		return snap, nil
	})
}

func (s *sqlStore) PutKey(ctx context.Context, branchID uuid.UUID, key branches.KeyID, description string) error {
	if err := branches.CheckKeyID(key); err != nil {
		return err
	}
	return s.edit(ctx, branchID, func(conn *sqlutil.Conn) error {
		return sqlutil.Exec(conn, `INSERT INTO translation_keys (branch_id, namespace, name, description) VALUES (?, ?, ?, ?)
			ON CONFLICT (branch_id, namespace, name) DO UPDATE SET description = excluded.description`,
			branchID, key.Namespace, key.Name, description)
	})
}

func (s *sqlStore) DeleteKey(ctx context.Context, branchID uuid.UUID, key branches.KeyID) error {
	return s.edit(ctx, branchID, func(conn *sqlutil.Conn) error {
		if err := sqlutil.Exec(conn, `DELETE FROM translation_keys WHERE branch_id = ? AND namespace = ? AND name = ?`,
			branchID, key.Namespace, key.Name); err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return branches.ErrNotFound{Kind: branches.KindKey, ID: key.String()}
		}
		return nil
	})
}

func (s *sqlStore) SetValue(ctx context.Context, branchID uuid.UUID, key branches.KeyID, lang, value string) error {
	return s.edit(ctx, branchID, func(conn *sqlutil.Conn) error {
		var count int64
		if err := sqlutil.Get(conn, &count, `SELECT COUNT(*) FROM translation_keys WHERE branch_id = ? AND namespace = ? AND name = ?`,
			branchID, key.Namespace, key.Name); err != nil {
			return err
		}
		if count == 0 {
			return branches.ErrNotFound{Kind: branches.KindKey, ID: key.String()}
		}
		return sqlutil.Exec(conn, `INSERT INTO translations (branch_id, namespace, name, lang, value) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (branch_id, namespace, name, lang) DO UPDATE SET value = excluded.value`,
			branchID, key.Namespace, key.Name, lang, value)
	})
}

func (s *sqlStore) DeleteValue(ctx context.Context, branchID uuid.UUID, key branches.KeyID, lang string) error {
	return s.edit(ctx, branchID, func(conn *sqlutil.Conn) error {
		if err := sqlutil.Exec(conn, `DELETE FROM translations WHERE branch_id = ? AND namespace = ? AND name = ? AND lang = ?`,
			branchID, key.Namespace, key.Name, lang); err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return branches.ErrNotFound{Kind: branches.KindValue, ID: key.String() + "/" + lang}
		}
		return nil
	})
}

// edit runs fn and bumps the branch version in one transaction.
func (s *sqlStore) edit(ctx context.Context, branchID uuid.UUID, fn func(conn *sqlutil.Conn) error) error {
	return sqlutil.DoTx(ctx, s.pool, func(conn *sqlutil.Conn) error {
		if _, err := getBranch(conn, branchID); err != nil {
			return err
		}
		if err := fn(conn); err != nil {
			return err
		}
		return bumpVersion(conn, branchID)
	})
}

const branchCols = `id, space_id, name, base_branch_id, version, is_default, created_at`

func getBranch(conn *sqlutil.Conn, id uuid.UUID) (*branches.Branch, error) {
	var b branches.Branch
	found, err := sqlutil.GetOne(conn, &b, scanBranch,
		`SELECT `+branchCols+` FROM branches WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, branches.ErrNotFound{Kind: branches.KindBranch, ID: id.String()}
	}
	return &b, nil
}

func getSpace(conn *sqlutil.Conn, id uuid.UUID) (*branches.Space, error) {
	var sp branches.Space
	found, err := sqlutil.GetOne(conn, &sp, scanSpace,
		`SELECT id, project_id, name, created_at FROM spaces WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, branches.ErrNotFound{Kind: branches.KindSpace, ID: id.String()}
	}
	return &sp, nil
}

func bumpVersion(conn *sqlutil.Conn, branchID uuid.UUID) error {
	return sqlutil.Exec(conn, `UPDATE branches SET version = version + 1 WHERE id = ?`, branchID)
}

func loadSnapshot(conn *sqlutil.Conn, branchID uuid.UUID) (branches.Snapshot, error) {
	snap := branches.Snapshot{}
	type keyRow struct {
		key  branches.KeyID
		desc string
	}
	scanKey := func(stmt *sqlite.Stmt, dst *keyRow) error {
		dst.key.Namespace = stmt.ColumnText(0)
		dst.key.Name = stmt.ColumnText(1)
		dst.desc = stmt.ColumnText(2)
		return nil
	}
	for row, err := range sqlutil.Select(conn, scanKey,
		`SELECT namespace, name, description FROM translation_keys WHERE branch_id = ?`, branchID) {
		if err != nil {
			return nil, err
		}
		snap[row.key] = branches.KeyState{Description: row.desc}
	}
	type valueRow struct {
		key   branches.KeyID
		lang  string
		value string
	}
	scanValue := func(stmt *sqlite.Stmt, dst *valueRow) error {
		dst.key.Namespace = stmt.ColumnText(0)
		dst.key.Name = stmt.ColumnText(1)
		dst.lang = stmt.ColumnText(2)
		dst.value = stmt.ColumnText(3)
		return nil
	}
	for row, err := range sqlutil.Select(conn, scanValue,
		`SELECT namespace, name, lang, value FROM translations WHERE branch_id = ?`, branchID) {
		if err != nil {
			return nil, err
		}
		st, ok := snap[row.key]
		if !ok {
			return nil, branches.ErrIntegrity{Reason: fmt.Sprintf("translation %v/%s without a key", row.key, row.lang)}
		}
		if st.Values == nil {
			st.Values = make(map[string]string)
		}
		st.Values[row.lang] = row.value
		snap[row.key] = st
	}
	return snap, nil
}

func scanBranch(stmt *sqlite.Stmt, b *branches.Branch) error {
	if err := sqlutil.ScanUUID(stmt, 0, &b.ID); err != nil {
		return err
	}
	if err := sqlutil.ScanUUID(stmt, 1, &b.SpaceID); err != nil {
		return err
	}
	b.Name = stmt.ColumnText(2)
	if err := sqlutil.ScanNullUUID(stmt, 3, &b.BaseBranchID); err != nil {
		return err
	}
	b.Version = stmt.ColumnInt64(4)
	b.IsDefault = stmt.ColumnInt64(5) != 0
	return scanTAI64(stmt, 6, &b.CreatedAt)
}

func scanSpace(stmt *sqlite.Stmt, sp *branches.Space) error {
	if err := sqlutil.ScanUUID(stmt, 0, &sp.ID); err != nil {
		return err
	}
	if err := sqlutil.ScanUUID(stmt, 1, &sp.ProjectID); err != nil {
		return err
	}
	sp.Name = stmt.ColumnText(2)
	return scanTAI64(stmt, 3, &sp.CreatedAt)
}

func scanTAI64(stmt *sqlite.Stmt, col int, dst *tai64.TAI64) error {
	buf := make([]byte, stmt.ColumnLen(col))
	if n := stmt.ColumnBytes(col, buf); n != len(buf) {
		return fmt.Errorf("short read for timestamp column %d", col)
	}
	t, err := tai64.Parse(buf)
	if err != nil {
		return err
	}
	*dst = t
	return nil
}
