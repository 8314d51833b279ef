package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/diarykeeper/internal/dbx"
	"github.com/dmitrijs2005/diarykeeper/internal/server/repositories/entries"
	"github.com/dmitrijs2005/diarykeeper/internal/server/repositories/keymaterial"
	"github.com/dmitrijs2005/diarykeeper/internal/server/repositories/media"
	"github.com/dmitrijs2005/diarykeeper/internal/server/repositories/recovery"
	"github.com/dmitrijs2005/diarykeeper/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code runs
// against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	KeyMaterial(db dbx.DBTX) keymaterial.Repository
	Entries(db dbx.DBTX) entries.Repository
	Media(db dbx.DBTX) media.Repository
	Recovery(db dbx.DBTX) recovery.Repository
}
