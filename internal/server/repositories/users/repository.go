// Package users declares the repository contract for identity records.
package users

import (
	"context"

	"github.com/yerakh/cloudvault/internal/server/models"
)

// Repository defines persistence operations for users.
type Repository interface {
	// Create inserts a new user and returns it with the generated id.
	// A duplicate email yields common.ErrorConflict.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByEmail returns the user owning email, or common.ErrorNotFound.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByID returns the user with the given id, or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.User, error)

	// SetVerified marks the user's email as verified.
	SetVerified(ctx context.Context, userID string) error

	// UpdateLastLogin stamps last_login with the current time.
	UpdateLastLogin(ctx context.Context, userID string) error

	// LinkProvider attaches an external provider subject id to an existing
	// account and marks it verified. The account keeps its original auth
	// provider tag, so password login keeps working after linking.
	LinkProvider(ctx context.Context, userID string, providerID string) error
}
