package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)
	ctx := context.Background()
	env := sealed(t, "hello")
	body, err := env.MarshalBinary()
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO envelopes \(id, body\) VALUES \(\$1, \$2\)\s+ON CONFLICT \(id\) DO UPDATE SET body = EXCLUDED.body`).
		WithArgs("entries/1", body).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Put(ctx, "entries/1", env))

	mock.ExpectQuery(`SELECT body FROM envelopes WHERE id = \$1`).WithArgs("entries/1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(body))
	got, err := s.Get(ctx, "entries/1")
	require.NoError(t, err)
	assert.Equal(t, env.Ciphertext, got.Ciphertext)

	mock.ExpectQuery(`SELECT body FROM envelopes`).WithArgs("entries/2").WillReturnError(sql.ErrNoRows)
	_, err = s.Get(ctx, "entries/2")
	require.ErrorIs(t, err, common.ErrorNotFound)

	mock.ExpectQuery(`SELECT body FROM envelopes`).WithArgs("entries/3").WillReturnError(errors.New("conn"))
	_, err = s.Get(ctx, "entries/3")
	require.ErrorContains(t, err, "db error: conn")

	mock.ExpectExec(`DELETE FROM envelopes WHERE id = \$1`).WithArgs("entries/1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Delete(ctx, "entries/1"))

	require.NoError(t, mock.ExpectationsWereMet())
}
