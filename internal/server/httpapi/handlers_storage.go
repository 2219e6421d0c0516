package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yerakh/cloudvault/internal/server/models"
)

type fileResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	FolderPath string    `json:"folder_path"`
	Size       int64     `json:"size"`
	Confirmed  bool      `json:"confirmed"`
	CreatedAt  time.Time `json:"created_at"`
}

func toFileResponse(record *models.FileRecord) fileResponse {
	return fileResponse{
		ID:         record.ID,
		Name:       record.Name,
		FolderPath: record.FolderPath,
		Size:       record.Size,
		Confirmed:  record.Confirmed,
		CreatedAt:  record.CreatedAt,
	}
}

func toFileResponses(records []*models.FileRecord) []fileResponse {
	out := make([]fileResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toFileResponse(record))
	}
	return out
}

type stageUploadRequest struct {
	Name        string `json:"name"`
	FolderPath  string `json:"folder_path"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

func (s *Server) handleStageUpload(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req stageUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}
	if req.Size <= 0 {
		writeBadRequest(w, "size must be positive")
		return
	}

	staged, err := s.storage.StageUpload(r.Context(), user.ID, req.Name, req.FolderPath, req.Size, req.ContentType)
	if err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"file":       toFileResponse(staged.Record),
		"upload_url": staged.UploadURL,
	})
}

func (s *Server) handleConfirmUpload(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	if err := s.storage.ConfirmUpload(r.Context(), chi.URLParam(r, "id"), user.ID); err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

func (s *Server) handleDownloadLink(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	preview := r.URL.Query().Get("preview") == "true"

	url, err := s.storage.GetDownloadLink(r.Context(), chi.URLParam(r, "id"), user.ID, preview)
	if err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	if err := s.storage.DeleteFile(r.Context(), chi.URLParam(r, "id"), user.ID); err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	records, err := s.storage.ListFiles(r.Context(), user.ID)
	if err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": toFileResponses(records)})
}

func (s *Server) handleExploreFolder(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	listing, err := s.storage.ExploreFolder(r.Context(), user.ID, r.URL.Query().Get("path"))
	if err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"files":   toFileResponses(listing.Files),
		"folders": listing.Folders,
	})
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	path := r.URL.Query().Get("path")
	if path == "" {
		writeBadRequest(w, "path is required")
		return
	}

	purge, err := s.storage.DeleteFolder(r.Context(), user.ID, path)
	if err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"deleted": purge.Deleted,
		"failed":  purge.Failed,
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	report, err := s.storage.Report(r.Context(), user.ID)
	if err != nil {
		writeError(r.Context(), w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"used_bytes":   report.UsedBytes,
		"quota_bytes":  report.QuotaBytes,
		"used_percent": report.UsedPercent,
	})
}
