package database

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Executor is the query surface shared by DB and Tx. Repositories run their
// statements through it so a method works the same standalone and inside a
// context-carried transaction.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	Rebind(query string) string
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// FromContext returns the open transaction carried by the context when one
// exists, otherwise the database itself. The transaction owner commits; joiners
// only read and write through it.
func FromContext(ctx context.Context, db DB) Executor {
	tx, ok := ctx.Value(txKey).(Tx)
	if ok && tx != nil && tx.IsOpen() {
		return tx
	}
	return db
}
