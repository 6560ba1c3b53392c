package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/batch-enrollment-api/internal/dto"
	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/internal/repository"
	"github.com/noah-isme/batch-enrollment-api/pkg/database"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

type enrollmentLedger interface {
	RunInTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

type summaryInvalidator interface {
	Invalidate(ctx context.Context)
}

// EnrollmentService drives the enrollment state machine. Every transition is
// a named method running in a single ledger transaction.
type EnrollmentService struct {
	ledger      enrollmentLedger
	capacity    *CapacityService
	invalidator summaryInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewEnrollmentService constructs the lifecycle service.
func NewEnrollmentService(ledger enrollmentLedger, capacity *CapacityService, invalidator summaryInvalidator, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if capacity == nil {
		capacity = NewCapacityService(models.SeatPolicyReserveOnCreate, nil, logger)
	}
	return &EnrollmentService{
		ledger:      ledger,
		capacity:    capacity,
		invalidator: invalidator,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// List returns enrollments visible to the actor. Students only see their own.
func (s *EnrollmentService) List(ctx context.Context, actor models.Actor, query dto.EnrollmentQuery) ([]models.EnrollmentDetail, *models.Pagination, error) {
	filter := models.EnrollmentFilter{
		StudentID:     strings.TrimSpace(query.StudentID),
		BatchID:       strings.TrimSpace(query.BatchID),
		CourseID:      strings.TrimSpace(query.CourseID),
		Status:        models.EnrollmentStatus(strings.ToLower(strings.TrimSpace(query.Status))),
		PaymentStatus: models.PaymentStatus(strings.ToLower(strings.TrimSpace(query.PaymentStatus))),
		Page:          query.Page,
		PageSize:      query.PageSize,
		SortBy:        query.SortBy,
		SortOrder:     query.SortOrder,
	}
	if actor.Role == models.RoleStudent {
		filter.StudentID = actor.UserID
	}
	if filter.Status != "" && !validEnrollmentStatus(filter.Status) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	if filter.PaymentStatus != "" && !validPaymentStatus(filter.PaymentStatus) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid payment_status filter")
	}

	items, total, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, nil, ledgerError(err, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one enrollment with display fields.
func (s *EnrollmentService) Get(ctx context.Context, actor models.Actor, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.ledger.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, ledgerError(err, "failed to load enrollment")
	}
	if actor.Role == models.RoleStudent && detail.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	return detail, nil
}

// Create opens a pending enrollment for the student. Under reserve-on-create
// the seat is claimed in the same transaction; a full batch yields NO_SEATS_AVAILABLE.
func (s *EnrollmentService) Create(ctx context.Context, actor models.Actor, req dto.CreateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	studentID, err := s.resolveStudent(actor, strings.TrimSpace(req.StudentID))
	if err != nil {
		return nil, err
	}

	var created *models.Enrollment
	err = s.ledger.RunInTx(ctx, func(tx repository.LedgerTx) error {
		batch, err := tx.GetBatch(ctx, req.BatchID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "batch not found")
			}
			return err
		}
		if batch.Status == models.BatchStatusCompleted {
			return appErrors.Clone(appErrors.ErrInvalidState, "batch has already completed")
		}
		if _, err := tx.FindOpenEnrollment(ctx, studentID, batch.ID); err == nil {
			return appErrors.Clone(appErrors.ErrConflict, "student already has an enrollment in this batch")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		enrollment := &models.Enrollment{
			StudentID:     studentID,
			BatchID:       batch.ID,
			Status:        models.EnrollmentStatusPending,
			PaymentStatus: models.PaymentStatusPending,
			Notes:         optionalString(req.Notes),
			EnrolledDate:  s.now().UTC(),
		}
		if s.capacity.ReservesOnCreate() {
			if _, err := s.capacity.Reserve(ctx, tx, batch.ID); err != nil {
				if appErrors.HasCode(err, appErrors.ErrCapacityExceeded.Code) {
					return appErrors.Clone(appErrors.ErrNoSeatsAvailable, "no seats available in batch")
				}
				return err
			}
			enrollment.SeatHeld = true
		} else {
			remaining, err := s.capacity.CheckAvailability(ctx, tx, batch.ID)
			if err != nil {
				return err
			}
			if remaining == 0 {
				return appErrors.Clone(appErrors.ErrNoSeatsAvailable, "no seats available in batch")
			}
		}

		if err := tx.InsertEnrollment(ctx, enrollment); err != nil {
			return err
		}
		if err := tx.InsertAuditLog(ctx, auditEntry(actor, models.AuditActionEnrollmentCreate, nil, enrollment)); err != nil {
			return err
		}
		created = enrollment
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEnrollment) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already has an enrollment in this batch")
		}
		return nil, ledgerError(err, "failed to create enrollment")
	}

	s.invalidate(ctx)
	s.logger.Info("enrollment created",
		zap.String("enrollment_id", created.ID),
		zap.String("batch_id", created.BatchID),
		zap.String("student_id", created.StudentID),
		zap.Bool("seat_held", created.SeatHeld))
	return created, nil
}

// SubmitPaymentProof records the student's proof of payment. Allowed from a
// pending payment or, to resubmit, from a rejected one.
func (s *EnrollmentService) SubmitPaymentProof(ctx context.Context, actor models.Actor, id string, req dto.SubmitPaymentProofRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment proof payload")
	}
	return s.transition(ctx, actor, id, models.AuditActionPaymentSubmit, func(tx repository.LedgerTx, enrollment *models.Enrollment) error {
		if enrollment.Status == models.EnrollmentStatusDropped {
			return appErrors.Clone(appErrors.ErrInvalidState, "enrollment has been dropped")
		}
		switch enrollment.PaymentStatus {
		case models.PaymentStatusPending, models.PaymentStatusRejected:
		default:
			return appErrors.Clone(appErrors.ErrInvalidState, "payment proof already "+string(enrollment.PaymentStatus))
		}
		now := s.now().UTC()
		enrollment.PaymentProof = optionalString(req.PaymentProof)
		enrollment.PaymentSubmittedDate = &now
		enrollment.PaymentStatus = models.PaymentStatusSubmitted
		enrollment.VerifiedBy = nil
		enrollment.VerificationDate = nil
		return nil
	})
}

// ApplyVerificationOutcome applies an administrator decision to an enrollment
// locked inside tx. It does not persist the enrollment.
func (s *EnrollmentService) ApplyVerificationOutcome(ctx context.Context, tx repository.LedgerTx, enrollment *models.Enrollment, action models.VerificationAction, adminID, notes string) error {
	if enrollment.Status == models.EnrollmentStatusDropped {
		return appErrors.Clone(appErrors.ErrInvalidState, "enrollment has been dropped")
	}
	switch action {
	case models.VerificationActionVerify:
		if !enrollment.SeatHeld {
			if _, err := s.capacity.Reserve(ctx, tx, enrollment.BatchID); err != nil {
				return err
			}
			enrollment.SeatHeld = true
		}
		enrollment.Status = models.EnrollmentStatusEnrolled
		enrollment.PaymentStatus = models.PaymentStatusVerified
	case models.VerificationActionReject:
		enrollment.PaymentStatus = models.PaymentStatusRejected
	default:
		return appErrors.Clone(appErrors.ErrValidation, "action must be verify or reject")
	}
	now := s.now().UTC()
	enrollment.VerifiedBy = &adminID
	enrollment.VerificationDate = &now
	enrollment.Notes = optionalString(notes)
	return nil
}

// Drop permanently removes the enrollment and returns its seat, if held.
func (s *EnrollmentService) Drop(ctx context.Context, actor models.Actor, id string, req dto.DropEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid drop payload")
	}
	return s.transition(ctx, actor, id, models.AuditActionEnrollmentDrop, func(tx repository.LedgerTx, enrollment *models.Enrollment) error {
		if enrollment.Status == models.EnrollmentStatusDropped {
			return appErrors.Clone(appErrors.ErrInvalidState, "enrollment already dropped")
		}
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			enrollment.Notes = &reason
		}
		return s.markDropped(ctx, tx, enrollment)
	})
}

// Cancel lets a student abandon an enrollment whose payment is not under review
// or verified. Any held seat is released.
func (s *EnrollmentService) Cancel(ctx context.Context, actor models.Actor, id string) (*models.Enrollment, error) {
	return s.transition(ctx, actor, id, models.AuditActionEnrollmentCancel, func(tx repository.LedgerTx, enrollment *models.Enrollment) error {
		if enrollment.Status != models.EnrollmentStatusPending {
			return appErrors.Clone(appErrors.ErrInvalidState, "only pending enrollments can be cancelled")
		}
		if enrollment.PaymentStatus != models.PaymentStatusPending && enrollment.PaymentStatus != models.PaymentStatusRejected {
			return appErrors.Clone(appErrors.ErrInvalidState, "payment already submitted; ask an administrator to drop the enrollment")
		}
		return s.markDropped(ctx, tx, enrollment)
	})
}

func (s *EnrollmentService) markDropped(ctx context.Context, tx repository.LedgerTx, enrollment *models.Enrollment) error {
	if enrollment.SeatHeld {
		if err := s.capacity.Release(ctx, tx, enrollment.BatchID); err != nil {
			return err
		}
		enrollment.SeatHeld = false
	}
	now := s.now().UTC()
	enrollment.Status = models.EnrollmentStatusDropped
	enrollment.DroppedDate = &now
	return nil
}

// transition locks the enrollment, checks ownership, applies mutate and
// persists the result with an audit entry.
func (s *EnrollmentService) transition(ctx context.Context, actor models.Actor, id, auditAction string, mutate func(tx repository.LedgerTx, enrollment *models.Enrollment) error) (*models.Enrollment, error) {
	var updated *models.Enrollment
	err := s.ledger.RunInTx(ctx, func(tx repository.LedgerTx) error {
		enrollment, err := tx.GetEnrollmentForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
			}
			return err
		}
		if !actor.CanActFor(enrollment.StudentID) {
			return appErrors.Clone(appErrors.ErrForbidden, "not allowed to modify this enrollment")
		}
		before := *enrollment
		if err := mutate(tx, enrollment); err != nil {
			return err
		}
		if err := tx.UpdateEnrollment(ctx, enrollment); err != nil {
			return err
		}
		if err := tx.InsertAuditLog(ctx, auditEntry(actor, auditAction, &before, enrollment)); err != nil {
			return err
		}
		updated = enrollment
		return nil
	})
	if err != nil {
		return nil, ledgerError(err, "failed to update enrollment")
	}
	s.invalidate(ctx)
	s.logger.Info("enrollment transitioned",
		zap.String("enrollment_id", updated.ID),
		zap.String("action", auditAction),
		zap.String("status", string(updated.Status)),
		zap.String("payment_status", string(updated.PaymentStatus)))
	return updated, nil
}

func (s *EnrollmentService) resolveStudent(actor models.Actor, requested string) (string, error) {
	switch {
	case actor.IsAdmin():
		if requested == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, "student_id is required when enrolling on behalf of a student")
		}
		return requested, nil
	case actor.Role == models.RoleStudent && actor.UserID != "":
		if requested != "" && requested != actor.UserID {
			return "", appErrors.Clone(appErrors.ErrForbidden, "students may only enroll themselves")
		}
		return actor.UserID, nil
	default:
		return "", appErrors.Clone(appErrors.ErrForbidden, "role cannot create enrollments")
	}
}

func (s *EnrollmentService) invalidate(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
}

// ledgerError maps failures escaping a ledger transaction onto the error taxonomy.
// Domain errors pass through; only transient storage faults become STORAGE_FAILURE.
func ledgerError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if database.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
		return appErrors.Wrap(err, appErrors.ErrStorageFailure.Code, appErrors.ErrStorageFailure.Status, appErrors.ErrStorageFailure.Message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func auditEntry(actor models.Actor, action string, before, after *models.Enrollment) *models.AuditLog {
	entry := &models.AuditLog{Action: action, Resource: models.AuditResourceEnrollment}
	if actor.UserID != "" {
		userID := actor.UserID
		entry.UserID = &userID
	}
	if after != nil {
		resourceID := after.ID
		entry.ResourceID = &resourceID
		entry.NewValues, _ = json.Marshal(after)
	}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	return entry
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func validEnrollmentStatus(status models.EnrollmentStatus) bool {
	switch status {
	case models.EnrollmentStatusPending, models.EnrollmentStatusEnrolled, models.EnrollmentStatusDropped:
		return true
	}
	return false
}

func validPaymentStatus(status models.PaymentStatus) bool {
	switch status {
	case models.PaymentStatusPending, models.PaymentStatusSubmitted, models.PaymentStatusVerified, models.PaymentStatusRejected:
		return true
	}
	return false
}
