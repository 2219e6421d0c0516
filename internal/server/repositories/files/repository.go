// Package files persists file metadata: one row per stored object, with a
// virtual folder path and the two-phase confirmed flag.
package files

import (
	"context"
	"time"

	"github.com/yerakh/cloudvault/internal/server/models"
)

// Repository defines persistence operations for file records.
type Repository interface {
	// Create inserts a new record with confirmed = false. A duplicate
	// (owner, folder path, name) yields common.ErrorConflict regardless of
	// the existing record's confirmation state.
	Create(ctx context.Context, record *models.FileRecord) error

	// GetByID returns the owner's record, or common.ErrorNotFound when the
	// record is absent or owned by someone else.
	GetByID(ctx context.Context, id, ownerID string) (*models.FileRecord, error)

	// Delete removes one record by id.
	Delete(ctx context.Context, id string) error

	// SetConfirmed flips confirmed = true and reports whether a row changed.
	SetConfirmed(ctx context.Context, id, ownerID string) (bool, error)

	// ListByOwner returns all of the owner's records, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*models.FileRecord, error)

	// ListByFolderPrefix returns records whose folder path equals prefix or
	// is nested under it.
	ListByFolderPrefix(ctx context.Context, ownerID, prefix string) ([]*models.FileRecord, error)

	// SumSizeByOwner returns the owner's total stored bytes. Unconfirmed
	// reservations count, matching the quota check.
	SumSizeByOwner(ctx context.Context, ownerID string) (int64, error)

	// FolderPathsLike returns the owner's distinct folder paths containing
	// the substring, for not-found suggestions.
	FolderPathsLike(ctx context.Context, ownerID, substr string) ([]string, error)

	// ListStaleUnconfirmed returns unconfirmed records created before cutoff.
	ListStaleUnconfirmed(ctx context.Context, cutoff time.Time) ([]*models.FileRecord, error)
}
