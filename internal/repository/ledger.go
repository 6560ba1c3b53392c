package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/pkg/database"
)

var (
	// ErrVersionConflict signals a concurrent write to the same enrollment.
	// It wraps database.ErrRetryable so the whole transaction is re-run.
	ErrVersionConflict = fmt.Errorf("enrollment version conflict: %w", database.ErrRetryable)
	// ErrDuplicateKey is returned when an idempotency key was committed by a
	// concurrent transaction. Re-running observes the committed record.
	ErrDuplicateKey = fmt.Errorf("duplicate idempotency key: %w", database.ErrRetryable)
	// ErrDuplicateEnrollment is returned when a concurrent transaction opened
	// an enrollment for the same student and batch.
	ErrDuplicateEnrollment = fmt.Errorf("duplicate open enrollment: %w", database.ErrRetryable)
)

// LedgerTx exposes the reads and writes allowed inside one ledger transaction.
// Missing rows are reported as sql.ErrNoRows.
type LedgerTx interface {
	GetEnrollmentForUpdate(ctx context.Context, id string) (*models.Enrollment, error)
	FindOpenEnrollment(ctx context.Context, studentID, batchID string) (*models.Enrollment, error)
	InsertEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	// UpdateEnrollment persists the enrollment when its version is unchanged and bumps it.
	UpdateEnrollment(ctx context.Context, enrollment *models.Enrollment) error

	GetBatch(ctx context.Context, id string) (*models.Batch, error)
	// IncrementSeats claims one seat and reports false when the batch is full.
	IncrementSeats(ctx context.Context, batchID string) (bool, error)
	// DecrementSeats releases one seat, never going below zero.
	DecrementSeats(ctx context.Context, batchID string) error

	GetVerificationRecord(ctx context.Context, key string) (*models.VerificationRecord, error)
	InsertVerificationRecord(ctx context.Context, record *models.VerificationRecord) error
	InsertAuditLog(ctx context.Context, log *models.AuditLog) error

	// AfterCommit registers fn to run once the transaction commits. Hooks from
	// rolled back or retried attempts never run.
	AfterCommit(fn func())
}

type commitHooks []func()

func (h *commitHooks) AfterCommit(fn func()) {
	*h = append(*h, fn)
}

func (h commitHooks) run() {
	for _, fn := range h {
		fn()
	}
}

// Ledger is the transactional enrollment store shared by every workflow.
type Ledger interface {
	RunInTx(ctx context.Context, fn func(tx LedgerTx) error) error
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	AllEnrollments(ctx context.Context) ([]models.Enrollment, error)
	ListSubmittedBefore(ctx context.Context, cutoff time.Time) ([]models.Enrollment, error)
	SeatsHeldByBatch(ctx context.Context) (map[string]int, error)
}

func normalizePaging(filter models.EnrollmentFilter) (page, size int) {
	page = filter.Page
	if page < 1 {
		page = 1
	}
	size = filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
