package minirel

import (
	"context"
	"database/sql/driver"

	"github.com/RichardKnop/minirel/internal/minirel"
)

type Stmt struct {
	conn      *Conn
	statement minirel.Statement
}

// Close closes the statement.
//
// As of Go 1.1, a Stmt will not be closed if it's in use
// by any queries.
func (s Stmt) Close() error {
	return nil
}

// NumInput returns the number of placeholder parameters. Statements carry
// none, so the sql package rejects calls that pass arguments.
func (s Stmt) NumInput() int {
	return 0
}

// Exec executes a query that doesn't return rows, such
// as an INSERT or UPDATE.
//
// Deprecated: Drivers should implement StmtExecContext instead (or additionally).
func (s Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), nil)
}

func (s Stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if len(args) > 0 {
		return nil, errArgumentsNotSupported
	}

	result, err := s.conn.executeStatement(ctx, s.statement)
	if err != nil {
		return nil, err
	}

	return Result{rowsAffected: int64(result.RowsAffected)}, nil
}

// Query executes a query that may return rows, such as a
// SELECT.
//
// Deprecated: Drivers should implement StmtQueryContext instead (or additionally).
func (s Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), nil)
}

func (s Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if len(args) > 0 {
		return nil, errArgumentsNotSupported
	}

	result, err := s.conn.executeStatement(ctx, s.statement)
	if err != nil {
		return nil, err
	}

	return newRows(result), nil
}

var _ driver.StmtExecContext = Stmt{}
var _ driver.StmtQueryContext = Stmt{}
