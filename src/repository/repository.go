package repository

import (
	"context"
	"database/sql"
)

// Queryer abstracts over *sql.DB and *sql.Tx so repository reads can run
// either standalone or inside an allocation transaction.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
