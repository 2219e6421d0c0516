package common

// AuthProvider identifies how a user account authenticates. It is stored on
// the user row and checked exhaustively at login and provider-linking time.
type AuthProvider string

const (
	ProviderPassword AuthProvider = "password"
	ProviderGoogle   AuthProvider = "google"
)

// StorageQuotaBytes is the fixed per-user storage quota (400 MB).
const StorageQuotaBytes int64 = 400 * 1024 * 1024
