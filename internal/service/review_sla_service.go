package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/batch-enrollment-api/internal/dto"
	"github.com/noah-isme/batch-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
	"github.com/noah-isme/batch-enrollment-api/pkg/jobs"
)

// ReviewSweepJobType identifies the periodic overdue-review sweep.
const ReviewSweepJobType = "review_sla_sweep"

// ReviewSLAPolicy decides when a submitted payment has waited too long for review.
// It only flags; it never changes enrollment state.
type ReviewSLAPolicy interface {
	Window() time.Duration
	Overdue(submittedAt, now time.Time) bool
}

// NoReviewSLA never flags a submission.
type NoReviewSLA struct{}

// Window implements ReviewSLAPolicy.
func (NoReviewSLA) Window() time.Duration { return 0 }

// Overdue implements ReviewSLAPolicy.
func (NoReviewSLA) Overdue(time.Time, time.Time) bool { return false }

// FixedReviewSLA flags submissions older than a fixed window.
type FixedReviewSLA struct {
	Limit time.Duration
}

// Window implements ReviewSLAPolicy.
func (p FixedReviewSLA) Window() time.Duration { return p.Limit }

// Overdue implements ReviewSLAPolicy.
func (p FixedReviewSLA) Overdue(submittedAt, now time.Time) bool {
	return now.Sub(submittedAt) > p.Limit
}

// NewReviewSLAPolicy returns NoReviewSLA for a non-positive window.
func NewReviewSLAPolicy(window time.Duration) ReviewSLAPolicy {
	if window <= 0 {
		return NoReviewSLA{}
	}
	return FixedReviewSLA{Limit: window}
}

type submissionLister interface {
	ListSubmittedBefore(ctx context.Context, cutoff time.Time) ([]models.Enrollment, error)
}

// ReviewSLAService reports submitted payments that breach the review SLA.
type ReviewSLAService struct {
	ledger  submissionLister
	policy  ReviewSLAPolicy
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewReviewSLAService constructs the service. A nil policy disables flagging.
func NewReviewSLAService(ledger submissionLister, policy ReviewSLAPolicy, metrics *MetricsService, logger *zap.Logger) *ReviewSLAService {
	if policy == nil {
		policy = NoReviewSLA{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewSLAService{ledger: ledger, policy: policy, metrics: metrics, logger: logger, now: time.Now}
}

// Policy exposes the policy in effect.
func (s *ReviewSLAService) Policy() ReviewSLAPolicy {
	return s.policy
}

// Overdue lists submitted payments waiting longer than the SLA window.
func (s *ReviewSLAService) Overdue(ctx context.Context) ([]dto.OverdueReview, error) {
	window := s.policy.Window()
	if window <= 0 {
		return []dto.OverdueReview{}, nil
	}
	now := s.now().UTC()
	candidates, err := s.ledger.ListSubmittedBefore(ctx, now.Add(-window))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submitted payments")
	}
	overdue := make([]dto.OverdueReview, 0, len(candidates))
	for _, e := range candidates {
		if e.PaymentSubmittedDate == nil || !s.policy.Overdue(*e.PaymentSubmittedDate, now) {
			continue
		}
		overdue = append(overdue, dto.OverdueReview{
			EnrollmentID: e.ID,
			StudentID:    e.StudentID,
			BatchID:      e.BatchID,
			SubmittedAt:  e.PaymentSubmittedDate.UTC().Format(time.RFC3339),
			WaitingFor:   now.Sub(*e.PaymentSubmittedDate).Round(time.Minute).String(),
		})
	}
	return overdue, nil
}

// FlagOverdue logs every overdue review and publishes the count.
func (s *ReviewSLAService) FlagOverdue(ctx context.Context) (int, error) {
	overdue, err := s.Overdue(ctx)
	if err != nil {
		return 0, err
	}
	for _, item := range overdue {
		s.logger.Warn("payment review overdue",
			zap.String("enrollment_id", item.EnrollmentID),
			zap.String("batch_id", item.BatchID),
			zap.String("waiting_for", item.WaitingFor))
	}
	s.metrics.SetOverdueReviews(len(overdue))
	return len(overdue), nil
}

// SweepHandler adapts FlagOverdue to the background job queue.
func (s *ReviewSLAService) SweepHandler() jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		count, err := s.FlagOverdue(ctx)
		if err != nil {
			return err
		}
		s.logger.Debug("review sweep finished", zap.String("job_id", job.ID), zap.Int("overdue", count))
		return nil
	}
}
