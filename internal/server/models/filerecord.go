package models

import "time"

// FileRecord is metadata for one stored object. FolderPath is a purely
// logical slash-delimited path; no directory hierarchy exists in the object
// store. (UserID, FolderPath, Name) is unique.
//
// Confirmed is the two-phase upload gate: a row with Confirmed=false is a
// reserved-but-unwritten upload. Stale unconfirmed rows are swept by a
// background job.
type FileRecord struct {
	ID         string
	UserID     string
	Name       string
	FolderPath string
	Size       int64
	Confirmed  bool
	CreatedAt  time.Time
}
