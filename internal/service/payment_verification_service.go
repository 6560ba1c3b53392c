package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/batch-enrollment-api/internal/dto"
	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

type verificationLedger interface {
	RunInTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error
}

type verificationOutcomeApplier interface {
	ApplyVerificationOutcome(ctx context.Context, tx repository.LedgerTx, enrollment *models.Enrollment, action models.VerificationAction, adminID, notes string) error
}

// VerificationResult is the outcome of an adjudication. Replayed is true when
// the request matched an earlier decision and nothing was applied.
type VerificationResult struct {
	Enrollment *models.Enrollment
	Replayed   bool
}

// PaymentVerificationService adjudicates submitted payments exactly once per submission.
type PaymentVerificationService struct {
	ledger      verificationLedger
	lifecycle   verificationOutcomeApplier
	invalidator summaryInvalidator
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewPaymentVerificationService constructs the workflow.
func NewPaymentVerificationService(ledger verificationLedger, lifecycle verificationOutcomeApplier, invalidator summaryInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PaymentVerificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentVerificationService{
		ledger:      ledger,
		lifecycle:   lifecycle,
		invalidator: invalidator,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// VerifyOrReject applies an administrator decision to a submitted payment.
//
// With an idempotency key, a retried request returns the recorded result and
// reusing the key for a different request fails with IDEMPOTENCY_KEY_REUSED.
// Without one, repeating the decision that already stands returns the current
// enrollment; any other call on a non-submitted payment fails with
// NOT_PENDING_VERIFICATION.
func (s *PaymentVerificationService) VerifyOrReject(ctx context.Context, actor models.Actor, req dto.VerifyPaymentRequest) (*VerificationResult, error) {
	req.Action = models.VerificationAction(strings.ToLower(strings.TrimSpace(string(req.Action))))
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can verify payments")
	}
	if req.VerifiedBy != "" && req.VerifiedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "verified_by must be the authenticated administrator")
	}

	var result *VerificationResult
	err := s.ledger.RunInTx(ctx, func(tx repository.LedgerTx) error {
		result = nil
		if req.IdempotencyKey != "" {
			replayed, err := s.replay(ctx, tx, req)
			if err != nil {
				return err
			}
			if replayed != nil {
				result = replayed
				return nil
			}
		}

		enrollment, err := tx.GetEnrollmentForUpdate(ctx, req.EnrollmentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
			}
			return err
		}
		if enrollment.Status == models.EnrollmentStatusDropped {
			return appErrors.Clone(appErrors.ErrInvalidState, "enrollment has been dropped")
		}
		if enrollment.PaymentStatus != models.PaymentStatusSubmitted {
			if enrollment.PaymentStatus == req.Action.Outcome() {
				result = &VerificationResult{Enrollment: enrollment, Replayed: true}
				return nil
			}
			return appErrors.Clone(appErrors.ErrNotPendingVerification,
				fmt.Sprintf("payment is %s, not awaiting verification", enrollment.PaymentStatus))
		}

		before := *enrollment
		if err := s.lifecycle.ApplyVerificationOutcome(ctx, tx, enrollment, req.Action, actor.UserID, strings.TrimSpace(req.Notes)); err != nil {
			return err
		}
		if err := tx.UpdateEnrollment(ctx, enrollment); err != nil {
			return err
		}
		auditAction := models.AuditActionPaymentVerify
		if req.Action == models.VerificationActionReject {
			auditAction = models.AuditActionPaymentReject
		}
		if err := tx.InsertAuditLog(ctx, auditEntry(actor, auditAction, &before, enrollment)); err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			snapshot, err := json.Marshal(enrollment)
			if err != nil {
				return fmt.Errorf("encode verification result: %w", err)
			}
			if err := tx.InsertVerificationRecord(ctx, &models.VerificationRecord{
				Key:          req.IdempotencyKey,
				EnrollmentID: enrollment.ID,
				Action:       req.Action,
				VerifiedBy:   actor.UserID,
				Result:       snapshot,
			}); err != nil {
				return err
			}
		}
		result = &VerificationResult{Enrollment: enrollment}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, appErrors.Clone(appErrors.ErrIdempotencyKeyReused, "idempotency key is being used by a concurrent request")
		}
		return nil, ledgerError(err, "failed to record verification")
	}

	s.metrics.RecordVerification(req.Action, result.Replayed)
	if !result.Replayed && s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	s.logger.Info("payment adjudicated",
		zap.String("enrollment_id", result.Enrollment.ID),
		zap.String("action", string(req.Action)),
		zap.String("admin_id", actor.UserID),
		zap.Bool("replayed", result.Replayed),
		zap.String("idempotency_key", req.IdempotencyKey))
	return result, nil
}

func (s *PaymentVerificationService) replay(ctx context.Context, tx repository.LedgerTx, req dto.VerifyPaymentRequest) (*VerificationResult, error) {
	record, err := tx.GetVerificationRecord(ctx, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if record.EnrollmentID != req.EnrollmentID || record.Action != req.Action {
		return nil, appErrors.Clone(appErrors.ErrIdempotencyKeyReused,
			fmt.Sprintf("idempotency key already used to %s enrollment %s", record.Action, record.EnrollmentID))
	}
	var enrollment models.Enrollment
	if err := json.Unmarshal(record.Result, &enrollment); err != nil {
		return nil, fmt.Errorf("decode recorded verification: %w", err)
	}
	// A key carried into a later submission cycle would hide the new decision.
	current, err := tx.GetEnrollmentForUpdate(ctx, req.EnrollmentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if current != nil && !sameSubmission(current.PaymentSubmittedDate, enrollment.PaymentSubmittedDate) {
		return nil, appErrors.Clone(appErrors.ErrIdempotencyKeyReused,
			"idempotency key belongs to an earlier payment submission")
	}
	return &VerificationResult{Enrollment: &enrollment, Replayed: true}, nil
}

func sameSubmission(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Truncate(time.Microsecond).Equal(b.Truncate(time.Microsecond))
}
