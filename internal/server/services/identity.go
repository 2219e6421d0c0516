package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yerakh/cloudvault/internal/common"
	"github.com/yerakh/cloudvault/internal/dbx"
	"github.com/yerakh/cloudvault/internal/logging"
	"github.com/yerakh/cloudvault/internal/server/auth"
	"github.com/yerakh/cloudvault/internal/server/mailer"
	"github.com/yerakh/cloudvault/internal/server/models"
	"github.com/yerakh/cloudvault/internal/server/repositories/repomanager"
)

// ExternalVerifier validates an external identity assertion (a Google ID
// token) and returns the asserted identity. *auth.GoogleProvider implements it.
type ExternalVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.ExternalIdentity, error)
}

// Identity handles registration, login (password and Google), email
// verification and session lifecycle. Session issuance is delegated to the
// Ledger.
type Identity struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	ledger    *Ledger
	mail      mailer.Sender
	google    ExternalVerifier
	jwtSecret []byte
	logger    logging.Logger
}

func NewIdentity(db *sql.DB, repos repomanager.RepositoryManager, ledger *Ledger,
	mail mailer.Sender, google ExternalVerifier, jwtSecret []byte, logger logging.Logger) *Identity {
	return &Identity{
		db:        db,
		repos:     repos,
		ledger:    ledger,
		mail:      mail,
		google:    google,
		jwtSecret: jwtSecret,
		logger:    logger.With("module", "identity"),
	}
}

// Register creates a password account and sends a verification email in the
// background. A taken email yields common.ErrorConflict.
func (s *Identity) Register(ctx context.Context, email, firstName, lastName, password string) (*models.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	// The account and its verification token land together or not at all;
	// an account without a token could never verify.
	var user *models.User
	var token string
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		user, err = s.repos.Users(tx).Create(ctx, &models.User{
			Email:        email,
			FirstName:    firstName,
			LastName:     lastName,
			PasswordHash: hash,
			AuthProvider: common.ProviderPassword,
		})
		if err != nil {
			return err
		}

		token, err = auth.GenerateVerificationToken(user.ID, s.jwtSecret)
		if err != nil {
			return fmt.Errorf("generating verification token: %w", err)
		}
		if err := s.repos.VerificationTokens(tx).Create(ctx, &models.VerificationToken{
			UserID:    user.ID,
			Token:     token,
			ExpiresAt: time.Now().Add(auth.VerificationTokenValidity),
		}); err != nil {
			return fmt.Errorf("storing verification token: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	go func() {
		if err := s.mail.SendVerificationEmail(context.Background(), user.Email, token); err != nil {
			s.logger.Error(context.Background(), "sending verification email",
				"user_id", user.ID, "error", err.Error())
		}
	}()

	return user, nil
}

// LoginWithPassword checks credentials and opens a new session. Bad email and
// bad password both come back as common.ErrorUnauthorized.
func (s *Identity) LoginWithPassword(ctx context.Context, email, password string) (*TokenPair, *models.User, error) {
	user, err := s.repos.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrorUnauthorized
		}
		return nil, nil, fmt.Errorf("searching user: %w", err)
	}

	if user.PasswordHash == "" || !auth.VerifyPassword(password, user.PasswordHash) {
		return nil, nil, common.ErrorUnauthorized
	}
	// Credential failures stay Unauthorized; a correct password against a
	// blocked account is Forbidden.
	if !user.IsActive || !user.IsVerified {
		return nil, nil, common.ErrorForbidden
	}

	return s.openSession(ctx, user)
}

// LoginWithGoogle validates the ID token and logs the asserted identity in,
// creating or linking the account as needed:
//
//   - no account for the email: a new pre-verified Google account is created
//   - account exists without this provider: the provider id is linked; the
//     account keeps working with its original credentials too
//   - account already linked: plain login
func (s *Identity) LoginWithGoogle(ctx context.Context, idToken string) (*TokenPair, *models.User, error) {
	ext, err := s.google.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, nil, err
	}

	users := s.repos.Users(s.db)

	user, err := users.GetByEmail(ctx, ext.Email)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		user, err = users.Create(ctx, &models.User{
			Email:        ext.Email,
			FirstName:    ext.FirstName,
			LastName:     ext.LastName,
			AuthProvider: common.ProviderGoogle,
			ProviderID:   ext.ProviderID,
			IsVerified:   true,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating user: %w", err)
		}
	case err != nil:
		return nil, nil, fmt.Errorf("searching user: %w", err)
	case user.ProviderID == "":
		if err := users.LinkProvider(ctx, user.ID, ext.ProviderID); err != nil {
			return nil, nil, fmt.Errorf("linking provider: %w", err)
		}
		user.ProviderID = ext.ProviderID
		user.IsVerified = true
	}

	if !user.IsActive {
		return nil, nil, common.ErrorForbidden
	}

	return s.openSession(ctx, user)
}

func (s *Identity) openSession(ctx context.Context, user *models.User) (*TokenPair, *models.User, error) {
	if err := s.repos.Users(s.db).UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Error(ctx, "stamping last login", "user_id", user.ID, "error", err.Error())
	}
	pair, err := s.ledger.Issue(ctx, user.ID, user.Email)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// VerifyEmail consumes a verification link. Expired links yield
// common.ErrTokenExpired so the client can offer a resend; everything else
// wrong with the token is common.ErrTokenInvalid.
func (s *Identity) VerifyEmail(ctx context.Context, tokenString string) error {
	claims, err := auth.DecodeToken(tokenString, s.jwtSecret)
	if err != nil {
		return err
	}
	if claims.Type != auth.VerificationTokenType {
		return common.ErrTokenInvalid
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		userID := claims.Subject
		if _, err := s.repos.Users(tx).GetByID(ctx, userID); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrTokenInvalid
			}
			return fmt.Errorf("searching user: %w", err)
		}
		if err := s.repos.Users(tx).SetVerified(ctx, userID); err != nil {
			return fmt.Errorf("marking verified: %w", err)
		}
		if _, err := s.repos.VerificationTokens(tx).DeleteAllForUser(ctx, userID); err != nil {
			return fmt.Errorf("clearing verification tokens: %w", err)
		}
		return nil
	})
}

// Refresh rotates a refresh token via the ledger.
func (s *Identity) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return s.ledger.Redeem(ctx, refreshToken)
}

// Logout revokes the presented refresh token. Always succeeds for unknown
// tokens.
func (s *Identity) Logout(ctx context.Context, refreshToken string) error {
	return s.ledger.Revoke(ctx, refreshToken)
}

// CurrentUser resolves the authenticated subject for request middleware.
// Deactivated accounts are rejected with common.ErrorForbidden.
func (s *Identity) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repos.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("searching user: %w", err)
	}
	if !user.IsActive {
		return nil, common.ErrorForbidden
	}
	return user, nil
}
