// Package repomanager hands out repositories bound to a specific database
// handle. Passing a transactional DBTX scopes every repository call to that
// transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/yerakh/cloudvault/internal/dbx"
	"github.com/yerakh/cloudvault/internal/server/repositories/files"
	"github.com/yerakh/cloudvault/internal/server/repositories/refreshtokens"
	"github.com/yerakh/cloudvault/internal/server/repositories/users"
	"github.com/yerakh/cloudvault/internal/server/repositories/verificationtokens"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	VerificationTokens(db dbx.DBTX) verificationtokens.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Files(db dbx.DBTX) files.Repository
}
