package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTxMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRunInTxCommits(t *testing.T) {
	db, mock, cleanup := newTxMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE batches")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := RunInTx(context.Background(), db, TxOptions{}, func(tx *sqlx.Tx) error {
		_, err := tx.Exec("UPDATE batches SET current_students = current_students + 1")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxRetriesSerializationFailure(t *testing.T) {
	db, mock, cleanup := newTxMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	var retried []int
	err := RunInTx(context.Background(), db, TxOptions{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		OnRetry:    func(attempt int, _ error) { retried = append(retried, attempt) },
	}, func(tx *sqlx.Tx) error {
		attempts++
		if attempts == 1 {
			return &pq.Error{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []int{1}, retried)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxDoesNotRetryDomainErrors(t *testing.T) {
	db, mock, cleanup := newTxMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	domainErr := errors.New("capacity exceeded")
	attempts := 0
	err := RunInTx(context.Background(), db, TxOptions{MaxRetries: 3, RetryDelay: time.Millisecond}, func(tx *sqlx.Tx) error {
		attempts++
		return domainErr
	})
	require.ErrorIs(t, err, domainErr)
	assert.Equal(t, 1, attempts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxGivesUpAfterMaxRetries(t *testing.T) {
	db, mock, cleanup := newTxMock(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	err := RunInTx(context.Background(), db, TxOptions{MaxRetries: 1, RetryDelay: time.Millisecond}, func(tx *sqlx.Tx) error {
		return &pq.Error{Code: "40P01"}
	})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsTransient(&pq.Error{Code: "08006"}))
	assert.True(t, IsTransient(ErrRetryable))
	assert.False(t, IsTransient(&pq.Error{Code: "23505"}))
	assert.False(t, IsTransient(nil))
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}
