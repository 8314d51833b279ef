// Package recovery stores login password recovery credentials: hashed
// security answers and the hashed recovery key.
package recovery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

// Save replaces the user's credential and all of its questions. Callers run
// it inside a transaction.
func (r *PostgresRepository) Save(ctx context.Context, c *models.RecoveryCredential) error {
	upsert := `
		INSERT INTO recovery_credentials (user_id, key_hash, key_salt)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			key_salt = EXCLUDED.key_salt,
			created_at = now(),
			last_used_at = NULL
		RETURNING created_at`

	if err := r.db.QueryRowContext(ctx, upsert, c.UserID, c.KeyHash, c.KeySalt).Scan(&c.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	c.LastUsedAt = nil

	if _, err := r.db.ExecContext(ctx, `DELETE FROM recovery_questions WHERE user_id = $1`, c.UserID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	insert := `
		INSERT INTO recovery_questions (user_id, position, question, answer_hash, answer_salt)
		VALUES ($1, $2, $3, $4, $5)`
	for _, q := range c.Questions {
		if _, err := r.db.ExecContext(ctx, insert, c.UserID, q.Position, q.Question, q.AnswerHash, q.AnswerSalt); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.RecoveryCredential, error) {
	c := &models.RecoveryCredential{UserID: userID}
	var lastUsed sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT key_hash, key_salt, created_at, last_used_at FROM recovery_credentials WHERE user_id = $1`,
		userID).Scan(&c.KeyHash, &c.KeySalt, &c.CreatedAt, &lastUsed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if lastUsed.Valid {
		c.LastUsedAt = &lastUsed.Time
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT position, question, answer_hash, answer_salt FROM recovery_questions
		 WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q models.RecoveryQuestion
		if err := rows.Scan(&q.Position, &q.Question, &q.AnswerHash, &q.AnswerSalt); err != nil {
			return nil, err
		}
		c.Questions = append(c.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE recovery_credentials SET last_used_at = $2 WHERE user_id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
