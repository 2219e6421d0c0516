package models

import "time"

// RefreshToken is one node in a rotation chain. FamilyID groups a continuous
// rotation lineage starting from a single login and is the unit of mass
// revocation. PreviousTokenID back-references the token this one superseded;
// it exists for audit only, traversal never follows it.
//
// A revoked row is either ROTATED (a successor references it) or REVOKED
// (logout or family purge); both states share the IsRevoked flag.
type RefreshToken struct {
	ID              string
	UserID          string
	Token           string
	FamilyID        string
	PreviousTokenID string
	ExpiresAt       time.Time
	IsRevoked       bool
	CreatedAt       time.Time
}
