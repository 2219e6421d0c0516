package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/yerakh/cloudvault/internal/common"
	"github.com/yerakh/cloudvault/internal/dbx"
	"github.com/yerakh/cloudvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (user_id, token, family_id, previous_token_id, expires_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		token.UserID, token.Token, token.FamilyID, token.PreviousTokenID, token.ExpiresAt).Scan(&token.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token, family_id, COALESCE(previous_token_id::text, ''), expires_at, is_revoked, created_at
		FROM refresh_tokens
		WHERE token = $1
	`
	rt := &models.RefreshToken{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&rt.ID, &rt.UserID, &rt.Token, &rt.FamilyID, &rt.PreviousTokenID,
		&rt.ExpiresAt, &rt.IsRevoked, &rt.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rt, nil
}

// RevokeByID is the compare-and-swap guard for rotation: the WHERE clause
// only matches a still-active row, so the affected-row count decides which
// of two racing redemptions rotates.
func (r *PostgresRepository) RevokeByID(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE refresh_tokens SET is_revoked = TRUE
		WHERE id = $1 AND is_revoked = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) RevokeByToken(ctx context.Context, token string) error {
	query := `
		UPDATE refresh_tokens SET is_revoked = TRUE
		WHERE token = $1
	`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RevokeFamily(ctx context.Context, familyID string) (int64, error) {
	query := `
		UPDATE refresh_tokens SET is_revoked = TRUE
		WHERE family_id = $1 AND is_revoked = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, familyID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
