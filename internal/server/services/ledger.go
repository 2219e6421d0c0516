// Package services contains the server-side business logic: the refresh
// token ledger, the identity/session orchestrator, and the storage
// coordinator.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yerakh/cloudvault/internal/common"
	"github.com/yerakh/cloudvault/internal/dbx"
	"github.com/yerakh/cloudvault/internal/logging"
	"github.com/yerakh/cloudvault/internal/server/auth"
	"github.com/yerakh/cloudvault/internal/server/mailer"
	"github.com/yerakh/cloudvault/internal/server/models"
	"github.com/yerakh/cloudvault/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Ledger is the refresh-token rotation state machine. Every refresh token
// belongs to a family started at login; redeeming a token rotates it inside
// the family, and redeeming a token that is already revoked or expired is
// treated as credential theft: the entire family is revoked.
type Ledger struct {
	db                   *sql.DB
	repos                repomanager.RepositoryManager
	jwtSecret            []byte
	accessTokenValidity  time.Duration
	refreshTokenValidity time.Duration
	mail                 mailer.Sender
	logger               logging.Logger
}

func NewLedger(db *sql.DB, repos repomanager.RepositoryManager, jwtSecret []byte,
	accessValidity, refreshValidity time.Duration, mail mailer.Sender, logger logging.Logger) *Ledger {
	return &Ledger{
		db:                   db,
		repos:                repos,
		jwtSecret:            jwtSecret,
		accessTokenValidity:  accessValidity,
		refreshTokenValidity: refreshValidity,
		mail:                 mail,
		logger:               logger.With("module", "ledger"),
	}
}

// Issue starts a new token family for a fresh login and returns the pair.
func (l *Ledger) Issue(ctx context.Context, userID, email string) (*TokenPair, error) {
	accessToken, err := auth.GenerateAccessToken(userID, email, l.jwtSecret, l.accessTokenValidity)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}

	refreshToken := &models.RefreshToken{
		UserID:    userID,
		Token:     uuid.NewString(),
		FamilyID:  uuid.NewString(),
		ExpiresAt: time.Now().Add(l.refreshTokenValidity),
	}
	if err := l.repos.RefreshTokens(l.db).Create(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken.Token}, nil
}

// Redeem rotates a refresh token. Outcomes:
//
//   - unknown token string: common.ErrTokenInvalid
//   - token already revoked, or expired: the whole family is revoked, a
//     security alert goes out best-effort, and the caller gets
//     common.ErrSecurityAlert; the session is over
//   - active token: it is revoked and a successor in the same family is
//     minted, all in one transaction
//
// The revoke step is a conditional update checked for affected rows, so two
// concurrent redemptions of the same string cannot both rotate: the loser
// takes the reuse path.
func (l *Ledger) Redeem(ctx context.Context, tokenString string) (*TokenPair, error) {
	token, err := l.repos.RefreshTokens(l.db).FindByToken(ctx, tokenString)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrTokenInvalid
		}
		return nil, fmt.Errorf("searching refresh token: %w", err)
	}

	if token.IsRevoked || !token.ExpiresAt.After(time.Now()) {
		return nil, l.reuseDetected(ctx, token)
	}

	var pair *TokenPair
	var lostRace bool

	err = dbx.WithTx(ctx, l.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := l.repos.RefreshTokens(tx)

		won, err := repo.RevokeByID(ctx, token.ID)
		if err != nil {
			return err
		}
		if !won {
			lostRace = true
			return nil
		}

		user, err := l.repos.Users(tx).GetByID(ctx, token.UserID)
		if err != nil {
			return fmt.Errorf("loading token owner: %w", err)
		}

		accessToken, err := auth.GenerateAccessToken(user.ID, user.Email, l.jwtSecret, l.accessTokenValidity)
		if err != nil {
			return fmt.Errorf("generating access token: %w", err)
		}

		successor := &models.RefreshToken{
			UserID:          token.UserID,
			Token:           uuid.NewString(),
			FamilyID:        token.FamilyID,
			PreviousTokenID: token.ID,
			ExpiresAt:       time.Now().Add(l.refreshTokenValidity),
		}
		if err := repo.Create(ctx, successor); err != nil {
			return fmt.Errorf("storing successor token: %w", err)
		}

		pair = &TokenPair{AccessToken: accessToken, RefreshToken: successor.Token}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if lostRace {
		return nil, l.reuseDetected(ctx, token)
	}

	return pair, nil
}

// reuseDetected revokes the token's whole family and alerts the owner.
func (l *Ledger) reuseDetected(ctx context.Context, token *models.RefreshToken) error {
	n, err := l.repos.RefreshTokens(l.db).RevokeFamily(ctx, token.FamilyID)
	if err != nil {
		l.logger.Error(ctx, "revoking token family", "family_id", token.FamilyID, "error", err.Error())
	} else {
		l.logger.Warn(ctx, "refresh token reuse detected, family revoked",
			"family_id", token.FamilyID, "user_id", token.UserID, "revoked", n)
	}

	l.alertOwner(token.UserID)

	return common.ErrSecurityAlert
}

// alertOwner emails the account owner in the background. Failures are logged
// and never reach the caller.
func (l *Ledger) alertOwner(userID string) {
	go func() {
		ctx := context.Background()

		user, err := l.repos.Users(l.db).GetByID(ctx, userID)
		if err != nil {
			l.logger.Error(ctx, "loading user for security alert", "user_id", userID, "error", err.Error())
			return
		}
		if err := l.mail.SendSecurityAlert(ctx, user.Email); err != nil {
			l.logger.Error(ctx, "sending security alert", "user_id", userID, "error", err.Error())
		}
	}()
}

// Revoke marks a single token revoked (logout). Unknown tokens are ignored.
func (l *Ledger) Revoke(ctx context.Context, tokenString string) error {
	if err := l.repos.RefreshTokens(l.db).RevokeByToken(ctx, tokenString); err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	return nil
}

// RevokeFamily revokes every live token in a family and returns the count.
func (l *Ledger) RevokeFamily(ctx context.Context, familyID string) (int64, error) {
	return l.repos.RefreshTokens(l.db).RevokeFamily(ctx, familyID)
}
