package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yerakh/cloudvault/internal/logging"
	"github.com/yerakh/cloudvault/internal/server/models"
	"github.com/yerakh/cloudvault/internal/server/services"
)

// IdentityService is the identity surface the handlers need.
// *services.Identity implements it.
type IdentityService interface {
	Register(ctx context.Context, email, firstName, lastName, password string) (*models.User, error)
	LoginWithPassword(ctx context.Context, email, password string) (*services.TokenPair, *models.User, error)
	LoginWithGoogle(ctx context.Context, idToken string) (*services.TokenPair, *models.User, error)
	VerifyEmail(ctx context.Context, token string) error
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	CurrentUser(ctx context.Context, userID string) (*models.User, error)
}

// StorageService is the file-storage surface the handlers need.
// *services.Storage implements it.
type StorageService interface {
	StageUpload(ctx context.Context, ownerID, name, folderPath string, size int64, contentType string) (*services.StagedUpload, error)
	ConfirmUpload(ctx context.Context, recordID, ownerID string) error
	GetDownloadLink(ctx context.Context, recordID, ownerID string, preview bool) (string, error)
	DeleteFile(ctx context.Context, recordID, ownerID string) error
	DeleteFolder(ctx context.Context, ownerID, folderPath string) (*services.FolderPurge, error)
	ExploreFolder(ctx context.Context, ownerID, folderPath string) (*services.FolderListing, error)
	ListFiles(ctx context.Context, ownerID string) ([]*models.FileRecord, error)
	Report(ctx context.Context, ownerID string) (*services.UsageReport, error)
}

// Server is the HTTP edge.
type Server struct {
	identity  IdentityService
	storage   StorageService
	jwtSecret []byte
	logger    logging.Logger
}

func NewServer(identity IdentityService, storage StorageService, jwtSecret []byte, logger logging.Logger) *Server {
	return &Server{
		identity:  identity,
		storage:   storage,
		jwtSecret: jwtSecret,
		logger:    logger.With("module", "httpapi"),
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/google", s.handleGoogleLogin)
		r.Get("/verify-email", s.handleVerifyEmail)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
	})

	r.Route("/api/storage", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/files", s.handleListFiles)
		r.Post("/files", s.handleStageUpload)
		r.Post("/files/{id}/confirm", s.handleConfirmUpload)
		r.Get("/files/{id}/link", s.handleDownloadLink)
		r.Delete("/files/{id}", s.handleDeleteFile)
		r.Get("/folders", s.handleExploreFolder)
		r.Delete("/folders", s.handleDeleteFolder)
		r.Get("/usage", s.handleUsage)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
