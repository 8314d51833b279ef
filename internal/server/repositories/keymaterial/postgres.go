// Package keymaterial persists the salt, iteration count and verifier from
// which a user's diary key is re-derived. The key itself is never stored.
package keymaterial

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/dmitrijs2005/diarykeeper/internal/dbx"
	"github.com/dmitrijs2005/diarykeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.KeyMaterial, error) {
	query :=
		`SELECT user_id, salt, iterations, verifier, hint, created_at, updated_at
		 FROM diary_key_material WHERE user_id = $1`

	m := &models.KeyMaterial{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&m.UserID, &m.Salt, &m.Iterations, &m.Verifier, &m.Hint, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

// Create inserts material for a user that has none. An existing row yields
// common.ErrAlreadySetUp.
func (r *PostgresRepository) Create(ctx context.Context, m *models.KeyMaterial) error {
	query :=
		`INSERT INTO diary_key_material (user_id, salt, iterations, verifier, hint)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, m.UserID, m.Salt, m.Iterations, m.Verifier, m.Hint)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrAlreadySetUp
	}
	return nil
}

// Replace swaps salt, iterations and verifier after a password change. The
// hint is replaced too.
func (r *PostgresRepository) Replace(ctx context.Context, m *models.KeyMaterial) error {
	query :=
		`UPDATE diary_key_material
		 SET salt = $2, iterations = $3, verifier = $4, hint = $5, updated_at = now()
		 WHERE user_id = $1`

	res, err := r.db.ExecContext(ctx, query, m.UserID, m.Salt, m.Iterations, m.Verifier, m.Hint)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotSetUp
	}
	return nil
}
