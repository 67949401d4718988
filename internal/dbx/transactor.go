package dbx

import (
	"context"
	"database/sql"
)

// Transactor hands out database handles to services. Conn is used for
// single statements; WithTx scopes several repository calls to one atomic
// unit. The PostgreSQL implementation is SQLTransactor; the in-memory store
// provides its own.
type Transactor interface {
	Conn() DBTX
	WithTx(ctx context.Context, fn TxFunc) error
}

// SQLTransactor is a Transactor over a database/sql pool.
type SQLTransactor struct {
	db   *sql.DB
	opts *sql.TxOptions
}

// NewSQLTransactor wraps db. opts may be nil for driver defaults.
func NewSQLTransactor(db *sql.DB, opts *sql.TxOptions) *SQLTransactor {
	return &SQLTransactor{db: db, opts: opts}
}

func (t *SQLTransactor) Conn() DBTX {
	return t.db
}

func (t *SQLTransactor) WithTx(ctx context.Context, fn TxFunc) error {
	return WithTx(ctx, t.db, t.opts, fn)
}
