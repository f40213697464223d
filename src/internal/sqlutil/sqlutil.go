// Package sqlutil wraps zombiezen.com/go/sqlite with pool, transaction,
// and query helpers shared by the SQLite-backed stores.
package sqlutil

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Aliases so callers only import this package.
type Pool = sqlitex.Pool
type Conn = sqlite.Conn

func OpenPool(p string) (*Pool, error) {
	uri := "file:" + p + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	pool, err := sqlitex.NewPool(uri, sqlitex.PoolOptions{
		PoolSize: 10,
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

var testPoolN atomic.Int64

func NewTestPool(t testing.TB) *Pool {
	uri := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", testPoolN.Add(1))
	pool, err := sqlitex.NewPool(uri, sqlitex.PoolOptions{
		PoolSize: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

// Borrow takes a connection from the pool for the duration of fn.
func Borrow(ctx context.Context, pool *Pool, fn func(conn *Conn) error) error {
	conn, err := pool.Take(ctx)
	if err != nil {
		return err
	}
	defer pool.Put(conn)
	return fn(conn)
}

// Exec runs a statement that returns no rows.
func Exec(conn *Conn, query string, args ...any) error {
	stmt, _, err := conn.PrepareTransient(query)
	if err != nil {
		return err
	}
	defer stmt.Finalize()
	if err := bindAll(stmt, query, args); err != nil {
		return err
	}
	if ok, err := stmt.Step(); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("sqlutil.Exec: not expecting rows")
	}
	return nil
}

var ErrNoRows = errors.New("no rows found")

func IsErrNoRows(err error) bool {
	return errors.Is(err, ErrNoRows)
}

// Get runs a query expected to yield exactly one scalar.
func Get[T any](conn *Conn, dest *T, query string, args ...any) error {
	stmt, _, err := conn.PrepareTransient(query)
	if err != nil {
		return err
	}
	defer stmt.Finalize()
	if err := bindAll(stmt, query, args); err != nil {
		return err
	}
	hasRow, err := stmt.Step()
	if err != nil {
		return err
	}
	if !hasRow {
		return ErrNoRows
	}
	return scanValue(stmt, 0, dest)
}

type ScanFunc[T any] = func(stmt *sqlite.Stmt, dst *T) error

// GetOne runs a query that expects at most a single row in the result.
// (false, nil) is returned to indicate that the query was successful but there was no row.
func GetOne[T any](conn *Conn, dst *T, scan ScanFunc[T], query string, args ...any) (bool, error) {
	var n int
	for ret, err := range Select(conn, scan, query, args...) {
		if n > 0 {
			return false, fmt.Errorf("too many rows")
		}
		if err != nil {
			return false, err
		}
		*dst = ret
		n++
	}
	return n > 0, nil
}

// Select iterates the query's rows, calling scan on each.
func Select[T any](conn *Conn, scan ScanFunc[T], query string, args ...any) iter.Seq2[T, error] {
	newErrIter := func(err error) iter.Seq2[T, error] {
		return func(yield func(T, error) bool) {
			var zero T
			yield(zero, err)
		}
	}
	stmt, _, err := conn.PrepareTransient(query)
	if err != nil {
		return newErrIter(err)
	}
	if err := bindAll(stmt, query, args); err != nil {
		defer stmt.Finalize()
		return newErrIter(err)
	}
	return func(yield func(T, error) bool) {
		defer stmt.Finalize()
		for {
			var zero T
			hasRow, err := stmt.Step()
			if err != nil {
				yield(zero, err)
				return
			}
			if !hasRow {
				return
			}
			var val T
			if err := scan(stmt, &val); err != nil {
				yield(zero, err)
				return
			}
			if !yield(val, nil) {
				return
			}
		}
	}
}

func ScanInt64(stmt *sqlite.Stmt, dst *int64) error {
	*dst = stmt.ColumnInt64(0)
	return nil
}

func ScanString(stmt *sqlite.Stmt, dst *string) error {
	*dst = stmt.ColumnText(0)
	return nil
}

func DoTx(ctx context.Context, pool *Pool, fn func(conn *Conn) error) error {
	return Borrow(ctx, pool, func(conn *Conn) (retErr error) {
		defer sqlitex.Transaction(conn)(&retErr)
		return fn(conn)
	})
}

func DoTx1[T any](ctx context.Context, pool *Pool, fn func(conn *Conn) (T, error)) (T, error) {
	var ret T
	err := DoTx(ctx, pool, func(conn *Conn) error {
		var err error
		ret, err = fn(conn)
		return err
	})
	return ret, err
}

func DoTx2[T1, T2 any](ctx context.Context, pool *Pool, fn func(conn *Conn) (T1, T2, error)) (T1, T2, error) {
	var ret1 T1
	var ret2 T2
	err := DoTx(ctx, pool, func(conn *Conn) error {
		var err error
		ret1, ret2, err = fn(conn)
		return err
	})
	return ret1, ret2, err
}

// DoTxRO performs a read-only transaction.
func DoTxRO(ctx context.Context, pool *Pool, fn func(conn *Conn) error) error {
	return Borrow(ctx, pool, func(conn *Conn) error {
		return fn(conn)
	})
}

func bindAll(stmt *sqlite.Stmt, q string, args []any) error {
	if pcount := stmt.BindParamCount(); pcount != len(args) {
		return fmt.Errorf("query %q has %d params, but %d were provided", q, pcount, len(args))
	}
	for i, arg := range args {
		BindAny(stmt, i+1, arg)
	}
	return nil
}

// BindAny binds arg at position i, converting Go values to SQLite types.
func BindAny(stmt *sqlite.Stmt, i int, arg any) {
	switch x := arg.(type) {
	case nil:
		stmt.BindNull(i)
	case string:
		stmt.BindText(i, x)
	case bool:
		stmt.BindBool(i, x)
	case int:
		stmt.BindInt64(i, int64(x))
	case int64:
		stmt.BindInt64(i, x)
	case []byte:
		if len(x) == 0 {
			x = []byte{}
		}
		stmt.BindBytes(i, x)
	case uuid.UUID:
		stmt.BindText(i, x.String())
	case *uuid.UUID:
		if x == nil {
			stmt.BindNull(i)
		} else {
			stmt.BindText(i, x.String())
		}
	default:
		panic(arg)
	}
}

// scanValue reads one column into dest based on its Go type.
func scanValue[T any](stmt *sqlite.Stmt, col int, dest *T) error {
	var dest2 any = dest
	switch d := dest2.(type) {
	case *string:
		*d = stmt.ColumnText(col)
		return nil
	case *int:
		*d = stmt.ColumnInt(col)
		return nil
	case *int64:
		*d = stmt.ColumnInt64(col)
		return nil
	case *bool:
		*d = stmt.ColumnInt(col) != 0
		return nil
	case *[]byte:
		*d = (*d)[:0]
		*d = append(*d, make([]byte, stmt.ColumnLen(col))...)
		if n := stmt.ColumnBytes(col, *d); n != len(*d) {
			return fmt.Errorf("scanValue: short read for []byte")
		}
		return nil
	case *uuid.UUID:
		id, err := uuid.Parse(stmt.ColumnText(col))
		if err != nil {
			return err
		}
		*d = id
		return nil
	default:
		return fmt.Errorf("unsupported type for scanning: %T", dest)
	}
}

// ScanUUID scans column col of stmt into dst.
func ScanUUID(stmt *sqlite.Stmt, col int, dst *uuid.UUID) error {
	return scanValue(stmt, col, dst)
}

// ScanNullUUID scans a nullable uuid column into dst, which is set to nil
// when the column is NULL.
func ScanNullUUID(stmt *sqlite.Stmt, col int, dst **uuid.UUID) error {
	if stmt.ColumnType(col) == sqlite.TypeNull {
		*dst = nil
		return nil
	}
	id, err := uuid.Parse(stmt.ColumnText(col))
	if err != nil {
		return err
	}
	*dst = &id
	return nil
}

// WALCheckpoint flushes the write-ahead log into the main database file.
// It must run outside any transaction.
func WALCheckpoint(conn *Conn) error {
	return sqlitex.Execute(conn, "PRAGMA wal_checkpoint(TRUNCATE)", nil)
}
