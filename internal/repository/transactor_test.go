package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestTransactorCommitsOnSuccess(t *testing.T) {
	db, mock := newRepoMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE videos")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := NewTransactor(db).WithinTx(context.Background(), func(exec sqlx.ExtContext) error {
		_, err := exec.ExecContext(context.Background(), "UPDATE videos SET title = $1", "x")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactorRollsBackOnError(t *testing.T) {
	db, mock := newRepoMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := NewTransactor(db).WithinTx(context.Background(), func(exec sqlx.ExtContext) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	require.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	require.False(t, IsUniqueViolation(errors.New("plain")))
}
