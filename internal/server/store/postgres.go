package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/dmitrijs2005/diarykeeper/internal/cryptox"
	"github.com/dmitrijs2005/diarykeeper/internal/dbx"
)

// PostgresStore keeps envelopes in the envelopes table next to the metadata.
type PostgresStore struct {
	db dbx.DBTX
}

func NewPostgresStore(db dbx.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*cryptox.Envelope, error) {
	var b []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM envelopes WHERE id = $1`, id).Scan(&b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return decode(b)
}

func (s *PostgresStore) Put(ctx context.Context, id string, env *cryptox.Envelope) error {
	b, err := env.MarshalBinary()
	if err != nil {
		return err
	}
	query := `
		INSERT INTO envelopes (id, body) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`
	if _, err := s.db.ExecContext(ctx, query, id, b); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM envelopes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
