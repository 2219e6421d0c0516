package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yerakh/cloudvault/internal/common"
	"github.com/yerakh/cloudvault/internal/dbx"
	"github.com/yerakh/cloudvault/internal/server/models"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `id, user_id, name, folder_path, size, confirmed, created_at`

func (r *PostgresRepository) Create(ctx context.Context, record *models.FileRecord) error {
	query := `
		INSERT INTO files (user_id, name, folder_path, size, confirmed)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		record.UserID, record.Name, record.FolderPath, record.Size, record.Confirmed).
		Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id, ownerID string) (*models.FileRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM files WHERE id = $1 AND user_id = $2`

	record := &models.FileRecord{}
	err := r.db.QueryRowContext(ctx, query, id, ownerID).Scan(
		&record.ID, &record.UserID, &record.Name, &record.FolderPath,
		&record.Size, &record.Confirmed, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return record, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM files WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetConfirmed(ctx context.Context, id, ownerID string) (bool, error) {
	query := `
		UPDATE files SET confirmed = TRUE
		WHERE id = $1 AND user_id = $2 AND confirmed = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) scanRecords(rows *sql.Rows) ([]*models.FileRecord, error) {
	defer rows.Close()

	var result []*models.FileRecord
	for rows.Next() {
		record := &models.FileRecord{}
		err := rows.Scan(&record.ID, &record.UserID, &record.Name, &record.FolderPath,
			&record.Size, &record.Confirmed, &record.CreatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.FileRecord, error) {
	query := `
		SELECT ` + recordColumns + ` FROM files
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return r.scanRecords(rows)
}

// escapeLike neutralizes LIKE metacharacters in user-supplied input so that
// a folder named "my_docs" or "100% done" matches literally. Queries using
// the result must declare ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func (r *PostgresRepository) ListByFolderPrefix(ctx context.Context, ownerID, prefix string) ([]*models.FileRecord, error) {
	query := `
		SELECT ` + recordColumns + ` FROM files
		WHERE user_id = $1 AND (folder_path = $2 OR folder_path LIKE $3 || '/%' ESCAPE '\')
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID, prefix, escapeLike(prefix))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return r.scanRecords(rows)
}

func (r *PostgresRepository) SumSizeByOwner(ctx context.Context, ownerID string) (int64, error) {
	query := `SELECT COALESCE(SUM(size), 0) FROM files WHERE user_id = $1`

	var total int64
	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&total); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return total, nil
}

func (r *PostgresRepository) FolderPathsLike(ctx context.Context, ownerID, substr string) ([]string, error) {
	query := `
		SELECT DISTINCT folder_path FROM files
		WHERE user_id = $1 AND folder_path LIKE '%' || $2 || '%' ESCAPE '\'
		ORDER BY folder_path
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID, escapeLike(substr))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (r *PostgresRepository) ListStaleUnconfirmed(ctx context.Context, cutoff time.Time) ([]*models.FileRecord, error) {
	query := `
		SELECT ` + recordColumns + ` FROM files
		WHERE confirmed = FALSE AND created_at < $1
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return r.scanRecords(rows)
}
