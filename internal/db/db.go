package db

import (
	"context"
	"database/sql"
)

// Querier покрывает *sql.DB и *sql.Tx: часть запросов выполняется
// и напрямую, и внутри транзакций отката.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
