// Package media stores metadata for encrypted diary attachments.
package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/dmitrijs2005/diarykeeper/internal/dbx"
	"github.com/dmitrijs2005/diarykeeper/internal/server/models"
)

const mediaColumns = `id, user_id, entry_id, mime_type, size_bytes, content_hash, created_at`

// PostgresRepository implements media storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, m *models.Media) error {
	query := `
		INSERT INTO diary_media (id, user_id, entry_id, mime_type, size_bytes, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		m.ID, m.UserID, m.EntryID, m.MimeType, m.Size, m.ContentHash).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, id string) (*models.Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM diary_media WHERE user_id = $1 AND id = $2`

	m := &models.Media{}
	err := r.db.QueryRowContext(ctx, query, userID, id).Scan(
		&m.ID, &m.UserID, &m.EntryID, &m.MimeType, &m.Size, &m.ContentHash, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) ListByEntry(ctx context.Context, userID, entryID string) ([]*models.Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM diary_media
		WHERE user_id = $1 AND entry_id = $2 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to select media: %w", err)
	}
	defer rows.Close()

	var result []*models.Media
	for rows.Next() {
		var m models.Media
		if err := rows.Scan(&m.ID, &m.UserID, &m.EntryID, &m.MimeType, &m.Size, &m.ContentHash, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM diary_media WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select media ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	return r.execOne(ctx, `DELETE FROM diary_media WHERE user_id = $1 AND id = $2`, userID, id)
}

// Reseal moves the row to a re-encrypted envelope. It fails with
// common.ErrConflict unless the row still records oldHash.
func (r *PostgresRepository) Reseal(ctx context.Context, userID, id, oldHash, newHash string) error {
	err := r.execOne(ctx,
		`UPDATE diary_media SET content_hash = $4 WHERE user_id = $1 AND id = $2 AND content_hash = $3`,
		userID, id, oldHash, newHash)
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrConflict
	}
	return err
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
