package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yerakh/cloudvault/internal/common"
	"github.com/yerakh/cloudvault/internal/dbx"
	"github.com/yerakh/cloudvault/internal/logging"
	"github.com/yerakh/cloudvault/internal/server/models"
	"github.com/yerakh/cloudvault/internal/server/objectstore"
	"github.com/yerakh/cloudvault/internal/server/repositories/repomanager"
)

// StagedUpload is the outcome of reserving an upload slot: the metadata row
// plus the presigned PUT URL the client writes the blob to.
type StagedUpload struct {
	Record    *models.FileRecord
	UploadURL string
}

// FolderListing is the immediate contents of one virtual folder.
type FolderListing struct {
	Files   []*models.FileRecord
	Folders []string
}

// FolderNotFoundError reports a missing folder together with the owner's
// folder paths that resemble the requested one.
type FolderNotFoundError struct {
	Path        string
	Suggestions []string
}

func (e *FolderNotFoundError) Error() string {
	return fmt.Sprintf("folder %q not found", e.Path)
}

func (e *FolderNotFoundError) Unwrap() error { return common.ErrorNotFound }

// PartialDeleteError reports that the blob was removed from the object store
// but the metadata row could not be deleted, leaving a dangling record.
type PartialDeleteError struct {
	RecordID string
	Err      error
}

func (e *PartialDeleteError) Error() string {
	return fmt.Sprintf("blob removed but metadata for %s remains: %v", e.RecordID, e.Err)
}

func (e *PartialDeleteError) Unwrap() error { return e.Err }

// FolderPurge summarizes a recursive folder delete. Failed counts records
// whose blob could not be removed; their metadata is kept so the delete can
// be retried.
type FolderPurge struct {
	Deleted int
	Failed  int
}

// UsageReport is the owner's storage consumption against the fixed quota.
type UsageReport struct {
	UsedBytes   int64
	QuotaBytes  int64
	UsedPercent float64
}

// Storage coordinates file metadata with the object store. The store is the
// source of truth for bytes, the database for existence: uploads reserve
// metadata before any blob exists, deletes remove the blob before the
// metadata.
type Storage struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	store  objectstore.Client
	quota  int64
	logger logging.Logger
}

func NewStorage(db *sql.DB, repos repomanager.RepositoryManager, store objectstore.Client,
	quota int64, logger logging.Logger) *Storage {
	return &Storage{
		db:     db,
		repos:  repos,
		store:  store,
		quota:  quota,
		logger: logger.With("module", "storage"),
	}
}

// NormalizeFolderPath canonicalizes a client-supplied folder path: slashes
// trimmed at both ends, empty segments dropped. The root folder is "".
func NormalizeFolderPath(p string) string {
	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "/")
}

// StageUpload reserves an upload: it checks the quota and inserts the
// unconfirmed metadata row in one transaction, then asks the object store for
// a presigned PUT URL. If the presign fails the reservation is rolled back.
//
// The quota is recomputed inside the transaction and counts unconfirmed
// reservations, so concurrent stagings cannot jointly exceed it.
func (s *Storage) StageUpload(ctx context.Context, ownerID, name, folderPath string, size int64, contentType string) (*StagedUpload, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty file name", common.ErrorInternal)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: non-positive size", common.ErrorInternal)
	}

	record := &models.FileRecord{
		UserID:     ownerID,
		Name:       name,
		FolderPath: NormalizeFolderPath(folderPath),
		Size:       size,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		files := s.repos.Files(tx)

		used, err := files.SumSizeByOwner(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("computing usage: %w", err)
		}
		if used+size > s.quota {
			return common.ErrQuotaExceeded
		}

		return files.Create(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	key := objectstore.ObjectKey(ownerID, record.ID, record.Name)
	url, err := s.store.PresignPut(ctx, key, contentType)
	if err != nil {
		// The reservation is useless without a URL.
		if delErr := s.repos.Files(s.db).Delete(ctx, record.ID); delErr != nil {
			s.logger.Error(ctx, "rolling back upload reservation",
				"record_id", record.ID, "error", delErr.Error())
		}
		return nil, err
	}

	return &StagedUpload{Record: record, UploadURL: url}, nil
}

// ConfirmUpload marks a staged upload as written. Confirming an unknown or
// foreign record yields common.ErrorNotFound.
func (s *Storage) ConfirmUpload(ctx context.Context, recordID, ownerID string) error {
	ok, err := s.repos.Files(s.db).SetConfirmed(ctx, recordID, ownerID)
	if err != nil {
		return fmt.Errorf("confirming upload: %w", err)
	}
	if !ok {
		return common.ErrorNotFound
	}
	return nil
}

// GetDownloadLink returns a presigned GET URL for a confirmed record.
func (s *Storage) GetDownloadLink(ctx context.Context, recordID, ownerID string, preview bool) (string, error) {
	record, err := s.repos.Files(s.db).GetByID(ctx, recordID, ownerID)
	if err != nil {
		return "", err
	}
	if !record.Confirmed {
		return "", common.ErrorNotFound
	}

	key := objectstore.ObjectKey(ownerID, record.ID, record.Name)
	return s.store.PresignGet(ctx, key, record.Name, preview)
}

// DeleteFile removes one file, blob first. Outcomes:
//
//   - blob delete fails: nothing is changed and the object-store error comes
//     back, so the client can retry a still-consistent state
//   - blob gone but the metadata delete fails: *PartialDeleteError, the one
//     state where record and store disagree
func (s *Storage) DeleteFile(ctx context.Context, recordID, ownerID string) error {
	record, err := s.repos.Files(s.db).GetByID(ctx, recordID, ownerID)
	if err != nil {
		return err
	}

	key := objectstore.ObjectKey(ownerID, record.ID, record.Name)
	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}

	if err := s.repos.Files(s.db).Delete(ctx, record.ID); err != nil {
		s.logger.Error(ctx, "dangling metadata after blob delete",
			"record_id", record.ID, "key", key, "error", err.Error())
		return &PartialDeleteError{RecordID: record.ID, Err: err}
	}
	return nil
}

// DeleteFolder removes every record at or under the folder path. Blob deletes
// run best-effort per record; metadata rows of successfully removed blobs are
// then deleted in one transaction. Records whose blob failed keep their
// metadata for a retry.
func (s *Storage) DeleteFolder(ctx context.Context, ownerID, folderPath string) (*FolderPurge, error) {
	prefix := NormalizeFolderPath(folderPath)

	records, err := s.listPrefix(ctx, ownerID, prefix)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, s.folderNotFound(ctx, ownerID, prefix)
	}

	purge := &FolderPurge{}
	removed := make([]*models.FileRecord, 0, len(records))
	for _, record := range records {
		key := objectstore.ObjectKey(ownerID, record.ID, record.Name)
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Error(ctx, "folder purge: blob delete failed",
				"record_id", record.ID, "key", key, "error", err.Error())
			purge.Failed++
			continue
		}
		removed = append(removed, record)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		files := s.repos.Files(tx)
		for _, record := range removed {
			if err := files.Delete(ctx, record.ID); err != nil {
				return fmt.Errorf("deleting metadata %s: %w", record.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	purge.Deleted = len(removed)
	return purge, nil
}

// ExploreFolder lists a folder's immediate contents: its confirmed files and
// the names of its direct subfolders. A path with no records under it yields
// *FolderNotFoundError carrying lookalike paths; the root is always valid,
// empty or not.
func (s *Storage) ExploreFolder(ctx context.Context, ownerID, folderPath string) (*FolderListing, error) {
	prefix := NormalizeFolderPath(folderPath)

	all, err := s.listPrefix(ctx, ownerID, prefix)
	if err != nil {
		return nil, err
	}
	// Staged-but-unwritten uploads stay invisible, in file and folder form alike.
	records := all[:0:0]
	for _, record := range all {
		if record.Confirmed {
			records = append(records, record)
		}
	}
	if len(records) == 0 && prefix != "" {
		return nil, s.folderNotFound(ctx, ownerID, prefix)
	}

	listing := &FolderListing{Files: []*models.FileRecord{}, Folders: []string{}}
	seen := map[string]bool{}
	for _, record := range records {
		if record.FolderPath == prefix {
			listing.Files = append(listing.Files, record)
			continue
		}
		rel := record.FolderPath
		if prefix != "" {
			rel = strings.TrimPrefix(rel, prefix+"/")
		}
		child := rel
		if i := strings.IndexByte(rel, '/'); i >= 0 {
			child = rel[:i]
		}
		if !seen[child] {
			seen[child] = true
			listing.Folders = append(listing.Folders, child)
		}
	}
	sort.Strings(listing.Folders)

	return listing, nil
}

func (s *Storage) listPrefix(ctx context.Context, ownerID, prefix string) ([]*models.FileRecord, error) {
	if prefix == "" {
		return s.repos.Files(s.db).ListByOwner(ctx, ownerID)
	}
	return s.repos.Files(s.db).ListByFolderPrefix(ctx, ownerID, prefix)
}

func (s *Storage) folderNotFound(ctx context.Context, ownerID, prefix string) error {
	needle := prefix
	if i := strings.LastIndexByte(prefix, '/'); i >= 0 {
		needle = prefix[i+1:]
	}
	suggestions, err := s.repos.Files(s.db).FolderPathsLike(ctx, ownerID, needle)
	if err != nil {
		s.logger.Error(ctx, "collecting folder suggestions", "error", err.Error())
		suggestions = nil
	}
	return &FolderNotFoundError{Path: prefix, Suggestions: suggestions}
}

// ListFiles returns every confirmed record of the owner, newest first.
func (s *Storage) ListFiles(ctx context.Context, ownerID string) ([]*models.FileRecord, error) {
	records, err := s.repos.Files(s.db).ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	confirmed := records[:0]
	for _, record := range records {
		if record.Confirmed {
			confirmed = append(confirmed, record)
		}
	}
	return confirmed, nil
}

// Usage returns the owner's stored bytes, reservations included.
func (s *Storage) Usage(ctx context.Context, ownerID string) (int64, error) {
	return s.repos.Files(s.db).SumSizeByOwner(ctx, ownerID)
}

// Report returns usage against the quota.
func (s *Storage) Report(ctx context.Context, ownerID string) (*UsageReport, error) {
	used, err := s.Usage(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &UsageReport{
		UsedBytes:   used,
		QuotaBytes:  s.quota,
		UsedPercent: float64(used) / float64(s.quota) * 100,
	}, nil
}

// SweepStaleUploads deletes unconfirmed reservations older than maxAge. The
// blob delete is best-effort: a reservation normally has no blob, but a
// client may have PUT one and never confirmed.
func (s *Storage) SweepStaleUploads(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	stale, err := s.repos.Files(s.db).ListStaleUnconfirmed(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing stale uploads: %w", err)
	}

	removed := 0
	for _, record := range stale {
		key := objectstore.ObjectKey(record.UserID, record.ID, record.Name)
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn(ctx, "sweep: blob delete failed", "record_id", record.ID, "error", err.Error())
		}
		if err := s.repos.Files(s.db).Delete(ctx, record.ID); err != nil {
			s.logger.Error(ctx, "sweep: metadata delete failed", "record_id", record.ID, "error", err.Error())
			continue
		}
		removed++
	}

	if removed > 0 || len(stale) > 0 {
		s.logger.Info(ctx, "stale upload sweep finished", "stale", len(stale), "removed", removed)
	}
	return removed, nil
}
