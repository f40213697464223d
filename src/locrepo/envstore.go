package locrepo

import (
	"context"

	"github.com/google/uuid"
	"github.com/locvc/locvc/src/branches"
	"github.com/locvc/locvc/src/envs"
	"github.com/locvc/locvc/src/internal/sqlutil"
	"go.brendoncarroll.net/tai64"
	"zombiezen.com/go/sqlite"
)

func (s *sqlStore) CreateEnvironment(ctx context.Context, projectID uuid.UUID, name string, branchID uuid.UUID) (*envs.Environment, error) {
	if err := branches.CheckName(name); err != nil {
		return nil, err
	}
	return sqlutil.DoTx1(ctx, s.pool, func(conn *sqlutil.Conn) (*envs.Environment, error) {
		var count int64
		if err := sqlutil.Get(conn, &count, `SELECT COUNT(*) FROM environments WHERE project_id = ? AND name = ?`, projectID, name); err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, branches.ErrExists{Kind: branches.KindEnvironment, Name: name}
		}
		if _, err := getBranch(conn, branchID); err != nil {
			return nil, err
		}
		env := &envs.Environment{
			ID:        uuid.New(),
			ProjectID: projectID,
			Name:      name,
			BranchID:  branchID,
			CreatedAt: tai64.Now().TAI64(),
		}
		if err := sqlutil.Exec(conn, `INSERT INTO environments (id, project_id, name, branch_id, created_at) VALUES (?, ?, ?, ?, ?)`,
			env.ID, env.ProjectID, env.Name, env.BranchID, env.CreatedAt.Marshal()); err != nil {
			return nil, err
		}
		return env, nil
	})
}

func (s *sqlStore) GetEnvironment(ctx context.Context, envID uuid.UUID) (*envs.Environment, error) {
	return sqlutil.DoTx1(ctx, s.pool, func(conn *sqlutil.Conn) (*envs.Environment, error) {
		return getEnvironment(conn, envID)
	})
}

func (s *sqlStore) ListEnvironments(ctx context.Context, projectID uuid.UUID) ([]envs.Environment, error) {
	return sqlutil.DoTx1(ctx, s.pool, func(conn *sqlutil.Conn) ([]envs.Environment, error) {
		var out []envs.Environment
		for env, err := range sqlutil.Select(conn, scanEnvironment,
			`SELECT `+envCols+` FROM environments WHERE project_id = ? ORDER BY name`, projectID) {
			if err != nil {
				return nil, err
			}
			out = append(out, env)
		}
		return out, nil
	})
}

func (s *sqlStore) SetBranch(ctx context.Context, envID, branchID uuid.UUID) error {
	return sqlutil.DoTx(ctx, s.pool, func(conn *sqlutil.Conn) error {
		if _, err := getEnvironment(conn, envID); err != nil {
			return err
		}
		if _, err := getBranch(conn, branchID); err != nil {
			return err
		}
		return sqlutil.Exec(conn, `UPDATE environments SET branch_id = ? WHERE id = ?`, branchID, envID)
	})
}

func (s *sqlStore) Resolve(ctx context.Context, envID uuid.UUID) (uuid.UUID, error) {
	return sqlutil.DoTx1(ctx, s.pool, func(conn *sqlutil.Conn) (uuid.UUID, error) {
		env, err := getEnvironment(conn, envID)
		if err != nil {
			return uuid.Nil, err
		}
		return env.BranchID, nil
	})
}

func (s *sqlStore) DeleteEnvironment(ctx context.Context, envID uuid.UUID) error {
	return sqlutil.DoTx(ctx, s.pool, func(conn *sqlutil.Conn) error {
		if err := sqlutil.Exec(conn, `DELETE FROM environments WHERE id = ?`, envID); err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return branches.ErrNotFound{Kind: branches.KindEnvironment, ID: envID.String()}
		}
		return nil
	})
}

const envCols = `id, project_id, name, branch_id, created_at`

func getEnvironment(conn *sqlutil.Conn, id uuid.UUID) (*envs.Environment, error) {
	var env envs.Environment
	found, err := sqlutil.GetOne(conn, &env, scanEnvironment,
		`SELECT `+envCols+` FROM environments WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, branches.ErrNotFound{Kind: branches.KindEnvironment, ID: id.String()}
	}
	return &env, nil
}

func scanEnvironment(stmt *sqlite.Stmt, env *envs.Environment) error {
	if err := sqlutil.ScanUUID(stmt, 0, &env.ID); err != nil {
		return err
	}
	if err := sqlutil.ScanUUID(stmt, 1, &env.ProjectID); err != nil {
		return err
	}
	env.Name = stmt.ColumnText(2)
	if err := sqlutil.ScanUUID(stmt, 3, &env.BranchID); err != nil {
		return err
	}
	return scanTAI64(stmt, 4, &env.CreatedAt)
}
