// Package refreshtokens persists the rotation chains of refresh tokens.
package refreshtokens

import (
	"context"

	"github.com/yerakh/cloudvault/internal/server/models"
)

// Repository defines persistence operations for refresh tokens.
type Repository interface {
	// Create inserts a new refresh token row.
	Create(ctx context.Context, token *models.RefreshToken) error

	// FindByToken looks up a token by its opaque string alone, with no
	// revoked/expired filter. A filtered lookup could not tell "never
	// existed" apart from "already used", which would defeat reuse
	// detection. Absent tokens yield common.ErrorNotFound.
	FindByToken(ctx context.Context, token string) (*models.RefreshToken, error)

	// RevokeByID marks one token revoked only if it is not revoked yet, and
	// reports whether this call won the update. Two concurrent redemptions
	// of the same token see exactly one true.
	RevokeByID(ctx context.Context, id string) (bool, error)

	// RevokeByToken idempotently marks one token revoked. Unknown tokens are
	// not an error.
	RevokeByToken(ctx context.Context, token string) error

	// RevokeFamily marks every non-revoked token in the family revoked and
	// returns the number of rows affected.
	RevokeFamily(ctx context.Context, familyID string) (int64, error)
}
