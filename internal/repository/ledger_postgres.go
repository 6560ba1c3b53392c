package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/pkg/database"
)

const enrollmentColumns = `id, student_id, batch_id, status, payment_status, payment_proof, payment_submitted_date,
       verified_by, verification_date, notes, enrolled_date, dropped_date, seat_held, version`

const enrollmentDetailSelect = `SELECT e.id, e.student_id, e.batch_id, e.status, e.payment_status, e.payment_proof,
       e.payment_submitted_date, e.verified_by, e.verification_date, e.notes, e.enrolled_date, e.dropped_date,
       e.seat_held, e.version,
       s.full_name AS student_name, s.email, s.phone_number,
       c.id AS course_id, c.name AS course_name, b.name AS batch_name, c.price`

const enrollmentDetailFrom = `FROM enrollments e
JOIN students s ON s.id = e.student_id
JOIN batches b ON b.id = e.batch_id
JOIN courses c ON c.id = b.course_id`

// PostgresLedger stores enrollments in Postgres.
type PostgresLedger struct {
	db     *sqlx.DB
	opts   database.TxOptions
	logger *zap.Logger
}

// NewPostgresLedger constructs the ledger. opts controls transaction retries.
func NewPostgresLedger(db *sqlx.DB, opts database.TxOptions, logger *zap.Logger) *PostgresLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.OnRetry == nil {
		opts.OnRetry = func(attempt int, err error) {
			logger.Warn("retrying ledger transaction", zap.Int("attempt", attempt), zap.Error(err))
		}
	}
	return &PostgresLedger{db: db, opts: opts, logger: logger}
}

// RunInTx runs fn inside a database transaction, re-running it on transient faults.
func (l *PostgresLedger) RunInTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	var last *postgresLedgerTx
	err := database.RunInTx(ctx, l.db, l.opts, func(tx *sqlx.Tx) error {
		last = &postgresLedgerTx{tx: tx}
		return fn(last)
	})
	if err != nil {
		return err
	}
	last.hooks.run()
	return nil
}

// List returns enrollment details matching the filter with the total count.
func (l *PostgresLedger) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var conditions []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.StudentID != "" {
		add("e.student_id", filter.StudentID)
	}
	if filter.BatchID != "" {
		add("e.batch_id", filter.BatchID)
	}
	if filter.CourseID != "" {
		add("b.course_id", filter.CourseID)
	}
	if filter.Status != "" {
		add("e.status", filter.Status)
	}
	if filter.PaymentStatus != "" {
		add("e.payment_status", filter.PaymentStatus)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_date":          "e.enrolled_date",
		"payment_submitted_date": "e.payment_submitted_date",
		"student_name":           "s.full_name",
		"batch_name":             "b.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := normalizePaging(filter)
	offset := (page - 1) * size

	query := fmt.Sprintf("%s\n%s%s ORDER BY %s %s, e.id LIMIT %d OFFSET %d", enrollmentDetailSelect, enrollmentDetailFrom, clause, orderBy, order, size, offset)
	var enrollments []models.EnrollmentDetail
	if err := l.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	if err := l.db.GetContext(ctx, &total, "SELECT COUNT(*) "+enrollmentDetailFrom+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindDetailByID returns an enrollment with display fields.
func (l *PostgresLedger) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + "\n" + enrollmentDetailFrom + " WHERE e.id = $1"
	var detail models.EnrollmentDetail
	if err := l.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// AllEnrollments returns every enrollment row.
func (l *PostgresLedger) AllEnrollments(ctx context.Context) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	if err := l.db.SelectContext(ctx, &enrollments, "SELECT "+enrollmentColumns+" FROM enrollments"); err != nil {
		return nil, fmt.Errorf("load enrollments: %w", err)
	}
	return enrollments, nil
}

// ListSubmittedBefore returns payments still awaiting review that were submitted before cutoff.
func (l *PostgresLedger) ListSubmittedBefore(ctx context.Context, cutoff time.Time) ([]models.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + ` FROM enrollments
WHERE payment_status = $1 AND payment_submitted_date < $2 ORDER BY payment_submitted_date`
	var enrollments []models.Enrollment
	if err := l.db.SelectContext(ctx, &enrollments, query, models.PaymentStatusSubmitted, cutoff); err != nil {
		return nil, fmt.Errorf("list overdue submissions: %w", err)
	}
	return enrollments, nil
}

// SeatsHeldByBatch counts enrollments currently holding a seat, keyed by batch.
func (l *PostgresLedger) SeatsHeldByBatch(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		BatchID string `db:"batch_id"`
		Held    int    `db:"held"`
	}
	const query = `SELECT batch_id, COUNT(*) AS held FROM enrollments WHERE seat_held GROUP BY batch_id`
	if err := l.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count held seats: %w", err)
	}
	held := make(map[string]int, len(rows))
	for _, row := range rows {
		held[row.BatchID] = row.Held
	}
	return held, nil
}

type postgresLedgerTx struct {
	tx    *sqlx.Tx
	hooks commitHooks
}

func (t *postgresLedgerTx) AfterCommit(fn func()) {
	t.hooks.AfterCommit(fn)
}

func (t *postgresLedgerTx) GetEnrollmentForUpdate(ctx context.Context, id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	query := "SELECT " + enrollmentColumns + " FROM enrollments WHERE id = $1 FOR UPDATE"
	if err := t.tx.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (t *postgresLedgerTx) FindOpenEnrollment(ctx context.Context, studentID, batchID string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	query := "SELECT " + enrollmentColumns + ` FROM enrollments
WHERE student_id = $1 AND batch_id = $2 AND status <> $3 LIMIT 1 FOR UPDATE`
	if err := t.tx.GetContext(ctx, &enrollment, query, studentID, batchID, models.EnrollmentStatusDropped); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (t *postgresLedgerTx) InsertEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledDate.IsZero() {
		enrollment.EnrolledDate = time.Now().UTC()
	}
	if enrollment.Version == 0 {
		enrollment.Version = 1
	}
	const query = `INSERT INTO enrollments (id, student_id, batch_id, status, payment_status, payment_proof, payment_submitted_date,
       verified_by, verification_date, notes, enrolled_date, dropped_date, seat_held, version)
VALUES (:id, :student_id, :batch_id, :status, :payment_status, :payment_proof, :payment_submitted_date,
       :verified_by, :verification_date, :notes, :enrolled_date, :dropped_date, :seat_held, :version)`
	if _, err := t.tx.NamedExecContext(ctx, query, enrollment); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateEnrollment
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

func (t *postgresLedgerTx) UpdateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	const query = `UPDATE enrollments SET status = $1, payment_status = $2, payment_proof = $3, payment_submitted_date = $4,
       verified_by = $5, verification_date = $6, notes = $7, dropped_date = $8, seat_held = $9, version = version + 1
WHERE id = $10 AND version = $11`
	res, err := t.tx.ExecContext(ctx, query,
		enrollment.Status, enrollment.PaymentStatus, enrollment.PaymentProof, enrollment.PaymentSubmittedDate,
		enrollment.VerifiedBy, enrollment.VerificationDate, enrollment.Notes, enrollment.DroppedDate, enrollment.SeatHeld,
		enrollment.ID, enrollment.Version)
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment rows: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	enrollment.Version++
	return nil
}

func (t *postgresLedgerTx) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	var batch models.Batch
	const query = `SELECT id, course_id, instructor_id, name, start_date, end_date, start_time, end_time,
       max_students, current_students, status FROM batches WHERE id = $1`
	if err := t.tx.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (t *postgresLedgerTx) IncrementSeats(ctx context.Context, batchID string) (bool, error) {
	const query = `UPDATE batches SET current_students = current_students + 1
WHERE id = $1 AND current_students < max_students`
	res, err := t.tx.ExecContext(ctx, query, batchID)
	if err != nil {
		return false, fmt.Errorf("reserve seat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve seat rows: %w", err)
	}
	return affected == 1, nil
}

func (t *postgresLedgerTx) DecrementSeats(ctx context.Context, batchID string) error {
	const query = `UPDATE batches SET current_students = GREATEST(current_students - 1, 0) WHERE id = $1`
	if _, err := t.tx.ExecContext(ctx, query, batchID); err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	return nil
}

func (t *postgresLedgerTx) GetVerificationRecord(ctx context.Context, key string) (*models.VerificationRecord, error) {
	var record models.VerificationRecord
	const query = `SELECT idempotency_key, enrollment_id, action, verified_by, result, created_at
FROM verification_records WHERE idempotency_key = $1`
	if err := t.tx.GetContext(ctx, &record, query, key); err != nil {
		return nil, err
	}
	return &record, nil
}

func (t *postgresLedgerTx) InsertVerificationRecord(ctx context.Context, record *models.VerificationRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO verification_records (idempotency_key, enrollment_id, action, verified_by, result, created_at)
VALUES (:idempotency_key, :enrollment_id, :action, :verified_by, :result, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, record); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert verification record: %w", err)
	}
	return nil
}

func (t *postgresLedgerTx) InsertAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, created_at)
VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
