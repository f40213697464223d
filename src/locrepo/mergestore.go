package locrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/locvc/locvc/src/branches"
	"github.com/locvc/locvc/src/internal/sqlutil"
	"github.com/locvc/locvc/src/locdiff"
	"github.com/locvc/locvc/src/locmerge"
	"zombiezen.com/go/sqlite"
)

func (s *sqlStore) ApplyMerge(ctx context.Context, branchID uuid.UUID, expectVersion int64, d locdiff.DiffResult, mc *locmerge.MergeCommit) (int64, error) {
	return sqlutil.DoTx1(ctx, s.pool, func(conn *sqlutil.Conn) (int64, error) {
		b, err := getBranch(conn, branchID)
		if err != nil {
			return 0, err
		}
		if b.Version != expectVersion {
			return 0, branches.ErrConcurrency{BranchID: branchID, Expected: expectVersion, Actual: b.Version}
		}
		// validate the whole diff against current content before touching
		// any row
		snap, err := loadSnapshot(conn, branchID)
		if err != nil {
			return 0, err
		}
		if _, err := locdiff.Apply(snap, d); err != nil {
			return 0, err
		}
		if err := applyDiff(conn, branchID, d); err != nil {
			return 0, err
		}
		if err := bumpVersion(conn, branchID); err != nil {
			return 0, err
		}
		mc.ResultingVersion = b.Version + 1
		if err := insertCommit(conn, mc); err != nil {
			return 0, err
		}
		return mc.ResultingVersion, nil
	})
}

// applyDiff writes a validated diff row by row.
func applyDiff(conn *sqlutil.Conn, branchID uuid.UUID, d locdiff.DiffResult) error {
	for _, kd := range d.Keys {
		switch kd.Type {
		case locdiff.TypeAdded:
			if err := sqlutil.Exec(conn, `INSERT INTO translation_keys (branch_id, namespace, name, description) VALUES (?, ?, ?, ?)`,
				branchID, kd.Key.Namespace, kd.Key.Name, *kd.Description.New); err != nil {
				return err
			}
			for lang, c := range kd.Values {
				if err := sqlutil.Exec(conn, `INSERT INTO translations (branch_id, namespace, name, lang, value) VALUES (?, ?, ?, ?, ?)`,
					branchID, kd.Key.Namespace, kd.Key.Name, lang, *c.New); err != nil {
					return err
				}
			}
		case locdiff.TypeDeleted:
			if err := sqlutil.Exec(conn, `DELETE FROM translation_keys WHERE branch_id = ? AND namespace = ? AND name = ?`,
				branchID, kd.Key.Namespace, kd.Key.Name); err != nil {
				return err
			}
		case locdiff.TypeModified:
			if kd.Description != nil {
				if err := sqlutil.Exec(conn, `UPDATE translation_keys SET description = ? WHERE branch_id = ? AND namespace = ? AND name = ?`,
					*kd.Description.New, branchID, kd.Key.Namespace, kd.Key.Name); err != nil {
					return err
				}
			}
			for lang, c := range kd.Values {
				if c.New == nil {
					if err := sqlutil.Exec(conn, `DELETE FROM translations WHERE branch_id = ? AND namespace = ? AND name = ? AND lang = ?`,
						branchID, kd.Key.Namespace, kd.Key.Name, lang); err != nil {
						return err
					}
					continue
				}
				if err := sqlutil.Exec(conn, `INSERT INTO translations (branch_id, namespace, name, lang, value) VALUES (?, ?, ?, ?, ?)
					ON CONFLICT (branch_id, namespace, name, lang) DO UPDATE SET value = excluded.value`,
					branchID, kd.Key.Namespace, kd.Key.Name, lang, *c.New); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("invalid diff type %v for key %v", kd.Type, kd.Key)
		}
	}
	return nil
}

func insertCommit(conn *sqlutil.Conn, mc *locmerge.MergeCommit) error {
	applied, err := json.Marshal(mc.Applied)
	if err != nil {
		return err
	}
	inverse, err := json.Marshal(mc.Inverse)
	if err != nil {
		return err
	}
	resolutions := []byte("[]")
	if len(mc.Resolutions) > 0 {
		resolutions, err = json.Marshal(mc.Resolutions)
		if err != nil {
			return err
		}
	}
	return sqlutil.Exec(conn, `INSERT INTO merge_commits
		(id, target_branch_id, source_branch_id, base_version, applied, inverse, resolutions, resulting_version, revert, revert_of, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mc.ID, mc.TargetBranchID, mc.SourceBranchID, mc.BaseVersion,
		string(applied), string(inverse), string(resolutions),
		mc.ResultingVersion, mc.Revert, mc.RevertOf, mc.CreatedAt.Marshal())
}

func (s *sqlStore) GetCommit(ctx context.Context, commitID uuid.UUID) (*locmerge.MergeCommit, error) {
	return sqlutil.DoTx1(ctx, s.pool, func(conn *sqlutil.Conn) (*locmerge.MergeCommit, error) {
		var mc locmerge.MergeCommit
		found, err := sqlutil.GetOne(conn, &mc, scanCommit,
			`SELECT `+commitCols+` FROM merge_commits WHERE id = ?`, commitID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, branches.ErrNotFound{Kind: branches.KindCommit, ID: commitID.String()}
		}
		return &mc, nil
	})
}

func (s *sqlStore) ListCommits(ctx context.Context, branchID uuid.UUID) ([]locmerge.MergeCommit, error) {
	return sqlutil.DoTx1(ctx, s.pool, func(conn *sqlutil.Conn) ([]locmerge.MergeCommit, error) {
		var out []locmerge.MergeCommit
		for mc, err := range sqlutil.Select(conn, scanCommit,
			`SELECT `+commitCols+` FROM merge_commits WHERE target_branch_id = ? ORDER BY resulting_version`, branchID) {
			if err != nil {
				return nil, err
			}
			out = append(out, mc)
		}
		return out, nil
	})
}

const commitCols = `id, target_branch_id, source_branch_id, base_version, applied, inverse, resolutions, resulting_version, revert, revert_of, created_at`

func scanCommit(stmt *sqlite.Stmt, mc *locmerge.MergeCommit) error {
	if err := sqlutil.ScanUUID(stmt, 0, &mc.ID); err != nil {
		return err
	}
	if err := sqlutil.ScanUUID(stmt, 1, &mc.TargetBranchID); err != nil {
		return err
	}
	if err := sqlutil.ScanUUID(stmt, 2, &mc.SourceBranchID); err != nil {
		return err
	}
	mc.BaseVersion = stmt.ColumnInt64(3)
	if err := json.Unmarshal([]byte(stmt.ColumnText(4)), &mc.Applied); err != nil {
		return fmt.Errorf("parsing applied diff of commit %v: %w", mc.ID, err)
	}
	if err := json.Unmarshal([]byte(stmt.ColumnText(5)), &mc.Inverse); err != nil {
		return fmt.Errorf("parsing inverse diff of commit %v: %w", mc.ID, err)
	}
	if err := json.Unmarshal([]byte(stmt.ColumnText(6)), &mc.Resolutions); err != nil {
		return fmt.Errorf("parsing resolutions of commit %v: %w", mc.ID, err)
	}
	mc.ResultingVersion = stmt.ColumnInt64(7)
	mc.Revert = stmt.ColumnInt64(8) != 0
	if err := sqlutil.ScanNullUUID(stmt, 9, &mc.RevertOf); err != nil {
		return err
	}
	return scanTAI64(stmt, 10, &mc.CreatedAt)
}
