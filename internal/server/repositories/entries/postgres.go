// Package entries stores diary entry metadata rows. Entry content is sealed
// and kept in the envelope store, never in these tables.
package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/dmitrijs2005/diarykeeper/internal/dbx"
	"github.com/dmitrijs2005/diarykeeper/internal/server/models"
)

const entryColumns = `id, user_id, entry_date, day_of_week, mood, title, content_hash, media_count, created_at, updated_at`

// PostgresRepository implements entry storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, e *models.Entry) error {
	query := `
		INSERT INTO diary_entries (id, user_id, entry_date, day_of_week, mood, title, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		e.ID, e.UserID, e.Date, e.DayOfWeek, e.Mood, e.Title, e.ContentHash).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, id string) (*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM diary_entries WHERE user_id = $1 AND id = $2`

	e, err := scanEntry(r.db.QueryRowContext(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}

// Update rewrites the mutable columns: date, mood, title and content hash.
// It applies only while the row still carries prevHash; otherwise the row
// was changed or deleted since it was read and common.ErrConflict is
// returned.
func (r *PostgresRepository) Update(ctx context.Context, e *models.Entry, prevHash string) error {
	query := `
		UPDATE diary_entries
		SET entry_date = $3, day_of_week = $4, mood = $5, title = $6, content_hash = $7, updated_at = now()
		WHERE user_id = $1 AND id = $2 AND content_hash = $8
		RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		e.UserID, e.ID, e.Date, e.DayOfWeek, e.Mood, e.Title, e.ContentHash, prevHash).Scan(&e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Delete removes the row and returns the content hash it carried, which
// names the envelope to drop.
func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM diary_entries WHERE user_id = $1 AND id = $2 RETURNING content_hash`,
		userID, id).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return hash, nil
}

// Reseal swaps the sealed title and the content hash of a re-encrypted
// entry, guarded by the hash it had before.
func (r *PostgresRepository) Reseal(ctx context.Context, userID, id, oldHash, newHash string, title []byte) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE diary_entries SET title = $4, content_hash = $5 WHERE user_id = $1 AND id = $2 AND content_hash = $3`,
		userID, id, oldHash, title, newHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrConflict
	}
	return nil
}

// AdjustMediaCount adds delta to the entry's media counter, never going below
// zero. A missing entry is not an error: media may outlive their entry.
func (r *PostgresRepository) AdjustMediaCount(ctx context.Context, userID, id string, delta int) error {
	query := `
		UPDATE diary_entries SET media_count = GREATEST(media_count + $3, 0)
		WHERE user_id = $1 AND id = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, id, delta); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// List returns entries newest first, narrowed by f.
func (r *PostgresRepository) List(ctx context.Context, userID string, f models.EntryFilter) ([]*models.Entry, error) {
	var sb strings.Builder
	args := []any{userID}

	sb.WriteString(`SELECT ` + entryColumns + ` FROM diary_entries WHERE user_id = $1`)
	arg := func(cond string, v any) {
		args = append(args, v)
		fmt.Fprintf(&sb, " AND "+cond, len(args))
	}
	if f.From != nil {
		arg("entry_date >= $%d", *f.From)
	}
	if f.To != nil {
		arg("entry_date <= $%d", *f.To)
	}
	if f.Mood != "" {
		arg("mood = $%d", f.Mood)
	}
	if f.DayOfWeek != nil {
		arg("day_of_week = $%d", *f.DayOfWeek)
	}
	sb.WriteString(` ORDER BY entry_date DESC, created_at DESC`)
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}
	defer rows.Close()

	var result []*models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM diary_entries WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select entry ids: %w", err)
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

// Calendar aggregates entries per day in [from, to).
func (r *PostgresRepository) Calendar(ctx context.Context, userID string, from, to time.Time) ([]models.CalendarDay, error) {
	query := `
		SELECT entry_date, COUNT(*), COALESCE(SUM(media_count), 0)
		FROM diary_entries
		WHERE user_id = $1 AND entry_date >= $2 AND entry_date < $3
		GROUP BY entry_date
		ORDER BY entry_date`

	rows, err := r.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to select calendar: %w", err)
	}
	defer rows.Close()

	var days []models.CalendarDay
	for rows.Next() {
		var d models.CalendarDay
		if err := rows.Scan(&d.Date, &d.EntryCount, &d.MediaCount); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (r *PostgresRepository) MoodStats(ctx context.Context, userID string) (*models.MoodStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT mood, COUNT(*) FROM diary_entries WHERE user_id = $1 GROUP BY mood`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select mood stats: %w", err)
	}
	defer rows.Close()

	stats := &models.MoodStats{Distribution: map[string]int{}}
	for rows.Next() {
		var mood string
		var n int
		if err := rows.Scan(&mood, &n); err != nil {
			return nil, err
		}
		stats.Total += n
		if mood != "" {
			stats.Distribution[mood] = n
		}
	}
	return stats, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*models.Entry, error) {
	e := &models.Entry{}
	if err := s.Scan(&e.ID, &e.UserID, &e.Date, &e.DayOfWeek, &e.Mood, &e.Title, &e.ContentHash,
		&e.MediaCount, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return e, nil
}
