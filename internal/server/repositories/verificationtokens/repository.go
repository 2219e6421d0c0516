// Package verificationtokens persists single-use email-verification records.
package verificationtokens

import (
	"context"

	"github.com/yerakh/cloudvault/internal/server/models"
)

// Repository defines persistence operations for verification tokens.
type Repository interface {
	// Create stores a new verification token.
	Create(ctx context.Context, token *models.VerificationToken) error

	// DeleteAllForUser removes every verification token belonging to userID
	// and returns the number of rows removed. Called once a token is
	// consumed, so stale links stop working.
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
}
