package models

import "time"

// VerificationToken is a single-use email-verification record. The token
// string is itself a signed token; the row exists so that all outstanding
// tokens for a user can be removed once one is consumed.
type VerificationToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}
