package models

import (
	"time"

	"github.com/yerakh/cloudvault/internal/common"
)

// User is an identity record. Exactly one user exists per email; the email
// drives provider-linking decisions. PasswordHash is empty for OAuth-only
// accounts.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	AuthProvider common.AuthProvider
	ProviderID   string
	IsVerified   bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLogin    time.Time
}
