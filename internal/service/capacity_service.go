package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

// ReservationToken proves a seat was counted against a batch inside the
// current ledger transaction.
type ReservationToken struct {
	BatchID    string
	ReservedAt time.Time
}

// CapacityService is the only writer of Batch.current_students.
type CapacityService struct {
	policy  models.SeatPolicy
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewCapacityService constructs the capacity manager for the given seat policy.
func NewCapacityService(policy models.SeatPolicy, metrics *MetricsService, logger *zap.Logger) *CapacityService {
	if policy == "" {
		policy = models.SeatPolicyReserveOnCreate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacityService{policy: policy, metrics: metrics, logger: logger, now: time.Now}
}

// Policy reports the seat policy in effect.
func (s *CapacityService) Policy() models.SeatPolicy {
	return s.policy
}

// ReservesOnCreate reports whether new enrollments consume a seat immediately.
func (s *CapacityService) ReservesOnCreate() bool {
	return s.policy == models.SeatPolicyReserveOnCreate
}

// Describe explains the policy for API clients.
func (s *CapacityService) Describe() string {
	if s.ReservesOnCreate() {
		return "a seat is counted when the enrollment is created and held while payment is pending or rejected"
	}
	return "a seat is counted only when payment is verified; creation checks availability but holds nothing"
}

// Reserve claims one seat in the batch. It fails with CAPACITY_EXCEEDED when
// the batch is full and never increments past max_students.
func (s *CapacityService) Reserve(ctx context.Context, tx repository.LedgerTx, batchID string) (*ReservationToken, error) {
	ok, err := tx.IncrementSeats(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A full batch ends the transaction, so this outcome is final.
		s.metrics.RecordReservation(ReservationRejected)
		s.logger.Info("seat reservation rejected", zap.String("batch_id", batchID))
		return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, fmt.Sprintf("batch %s is full", batchID))
	}
	tx.AfterCommit(func() { s.metrics.RecordReservation(ReservationReserved) })
	return &ReservationToken{BatchID: batchID, ReservedAt: s.now().UTC()}, nil
}

// Release returns one seat to the batch. The counter never drops below zero.
func (s *CapacityService) Release(ctx context.Context, tx repository.LedgerTx, batchID string) error {
	if err := tx.DecrementSeats(ctx, batchID); err != nil {
		return err
	}
	tx.AfterCommit(s.metrics.RecordSeatRelease)
	return nil
}

// CheckAvailability returns the seats still open in the batch without claiming
// one. The answer is advisory: nothing is held until Reserve.
func (s *CapacityService) CheckAvailability(ctx context.Context, tx repository.LedgerTx, batchID string) (int, error) {
	batch, err := tx.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return 0, err
	}
	return batch.SeatsRemaining(), nil
}
