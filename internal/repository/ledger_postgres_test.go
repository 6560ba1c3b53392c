package repository

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

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/pkg/database"
)

func newLedgerMock(t *testing.T, retries int) (*PostgresLedger, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	ledger := NewPostgresLedger(sqlx.NewDb(db, "sqlmock"), database.TxOptions{MaxRetries: retries, RetryDelay: time.Millisecond}, nil)
	return ledger, mock, func() { db.Close() }
}

var enrollmentRowColumns = []string{"id", "student_id", "batch_id", "status", "payment_status", "payment_proof", "payment_submitted_date",
	"verified_by", "verification_date", "notes", "enrolled_date", "dropped_date", "seat_held", "version"}

func TestPostgresLedgerReserveSeatCommits(t *testing.T) {
	ledger, mock, cleanup := newLedgerMock(t, 0)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE batches SET current_students = current_students + 1")).
		WithArgs("batch-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var reserved bool
	err := ledger.RunInTx(context.Background(), func(tx LedgerTx) error {
		var err error
		reserved, err = tx.IncrementSeats(context.Background(), "batch-1")
		return err
	})
	require.NoError(t, err)
	assert.True(t, reserved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerRunsCommitHooksOnceAfterRetry(t *testing.T) {
	ledger, mock, cleanup := newLedgerMock(t, 1)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE batches SET current_students = current_students + 1")).
		WithArgs("batch-1").
		WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE batches SET current_students = current_students + 1")).
		WithArgs("batch-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var attempts, committed int
	err := ledger.RunInTx(context.Background(), func(tx LedgerTx) error {
		attempts++
		tx.AfterCommit(func() { committed++ })
		_, err := tx.IncrementSeats(context.Background(), "batch-1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, committed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerIncrementSeatsReportsFullBatch(t *testing.T) {
	ledger, mock, cleanup := newLedgerMock(t, 0)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE batches SET current_students = current_students + 1")).
		WithArgs("batch-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var reserved bool
	err := ledger.RunInTx(context.Background(), func(tx LedgerTx) error {
		var err error
		reserved, err = tx.IncrementSeats(context.Background(), "batch-1")
		return err
	})
	require.NoError(t, err)
	assert.False(t, reserved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerLocksAndUpdatesEnrollment(t *testing.T) {
	ledger, mock, cleanup := newLedgerMock(t, 0)
	defer cleanup()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE id = $1 FOR UPDATE")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns).
			AddRow("enr-1", "stu-1", "batch-1", "pending", "submitted", "proof", now, nil, nil, nil, now, nil, true, 3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $1")).
		WithArgs(models.EnrollmentStatusEnrolled, models.PaymentStatusVerified, sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), true, "enr-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var updated *models.Enrollment
	err := ledger.RunInTx(context.Background(), func(tx LedgerTx) error {
		enrollment, err := tx.GetEnrollmentForUpdate(context.Background(), "enr-1")
		if err != nil {
			return err
		}
		enrollment.Status = models.EnrollmentStatusEnrolled
		enrollment.PaymentStatus = models.PaymentStatusVerified
		updated = enrollment
		return tx.UpdateEnrollment(context.Background(), enrollment)
	})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerRetriesVersionConflict(t *testing.T) {
	ledger, mock, cleanup := newLedgerMock(t, 1)
	defer cleanup()

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $1")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()
	}

	attempts := 0
	err := ledger.RunInTx(context.Background(), func(tx LedgerTx) error {
		attempts++
		return tx.UpdateEnrollment(context.Background(), &models.Enrollment{ID: "enr-1", Version: 1})
	})
	require.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 2, attempts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerDuplicateIdempotencyKey(t *testing.T) {
	ledger, mock, cleanup := newLedgerMock(t, 0)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO verification_records")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := ledger.RunInTx(context.Background(), func(tx LedgerTx) error {
		return tx.InsertVerificationRecord(context.Background(), &models.VerificationRecord{
			Key: "key-1", EnrollmentID: "enr-1", Action: models.VerificationActionVerify, VerifiedBy: "admin-1", Result: []byte(`{}`),
		})
	})
	require.True(t, errors.Is(err, ErrDuplicateKey))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerListAppliesFilters(t *testing.T) {
	ledger, mock, cleanup := newLedgerMock(t, 0)
	defer cleanup()

	now := time.Now()
	columns := append(append([]string{}, enrollmentRowColumns...), "student_name", "email", "phone_number", "course_id", "course_name", "batch_name", "price")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.batch_id = $1 AND e.payment_status = $2 ORDER BY e.enrolled_date DESC, e.id LIMIT 20 OFFSET 0")).
		WithArgs("batch-1", models.PaymentStatusSubmitted).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("enr-1", "stu-1", "batch-1", "pending", "submitted", "proof", now, nil, nil, nil, now, nil, true, 2,
				"Ayu", "ayu@example.com", nil, "course-1", "Go Fundamentals", "Morning", 1500000.0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments e")).
		WithArgs("batch-1", models.PaymentStatusSubmitted).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := ledger.List(context.Background(), models.EnrollmentFilter{BatchID: "batch-1", PaymentStatus: models.PaymentStatusSubmitted})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Go Fundamentals", items[0].CourseName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerSeatsHeldByBatch(t *testing.T) {
	ledger, mock, cleanup := newLedgerMock(t, 0)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT batch_id, COUNT(*) AS held FROM enrollments WHERE seat_held")).
		WillReturnRows(sqlmock.NewRows([]string{"batch_id", "held"}).AddRow("batch-1", 3).AddRow("batch-2", 1))

	held, err := ledger.SeatsHeldByBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"batch-1": 3, "batch-2": 1}, held)
	require.NoError(t, mock.ExpectationsWereMet())
}
