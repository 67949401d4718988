// Package repomanager vends repositories bound to a database handle, so a
// service can run the same repository code against the pool or inside a
// transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/onepass/internal/dbx"
	"github.com/dmitrijs2005/onepass/internal/server/repositories/outbox"
	"github.com/dmitrijs2005/onepass/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Outbox(db dbx.DBTX) outbox.Repository
}
