package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-enrollment-api/internal/dto"
	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/internal/repository"
	"github.com/noah-isme/batch-enrollment-api/pkg/database"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

func TestVerifyTwiceDoesNotReapplyCapacity(t *testing.T) {
	w := newWorkflow(t, models.SeatPolicyReserveOnVerify, 2)
	enrollment := w.create(t, studentActor)
	w.submit(t, studentActor, enrollment.ID)

	first, err := w.decide(models.VerificationActionVerify, enrollment.ID, "", "")
	require.NoError(t, err)
	second, err := w.decide(models.VerificationActionVerify, enrollment.ID, "", "")
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Enrollment.Version, second.Enrollment.Version)
	current, held := w.seats(t)
	assert.Equal(t, 1, current)
	assert.Equal(t, 1, held)

	_, err = w.decide(models.VerificationActionReject, enrollment.ID, "", "")
	requireCode(t, err, appErrors.ErrNotPendingVerification)
}

func TestVerifyRequiresSubmittedPayment(t *testing.T) {
	w := newWorkflow(t, models.SeatPolicyReserveOnCreate, 2)
	enrollment := w.create(t, studentActor)

	_, err := w.decide(models.VerificationActionVerify, enrollment.ID, "", "")
	requireCode(t, err, appErrors.ErrNotPendingVerification)

	_, err = w.decide(models.VerificationActionVerify, "missing", "", "")
	requireCode(t, err, appErrors.ErrNotFound)

	w.submit(t, studentActor, enrollment.ID)
	_, err = w.enrollments.Drop(context.Background(), studentActor, enrollment.ID, dto.DropEnrollmentRequest{})
	require.NoError(t, err)
	_, err = w.decide(models.VerificationActionVerify, enrollment.ID, "", "")
	requireCode(t, err, appErrors.ErrInvalidState)
}

func TestVerifyAuthorization(t *testing.T) {
	w := newWorkflow(t, models.SeatPolicyReserveOnCreate, 2)
	enrollment := w.create(t, studentActor)
	w.submit(t, studentActor, enrollment.ID)

	_, err := w.payments.VerifyOrReject(context.Background(), studentActor, dto.VerifyPaymentRequest{EnrollmentID: enrollment.ID, Action: models.VerificationActionVerify})
	requireCode(t, err, appErrors.ErrForbidden)

	_, err = w.payments.VerifyOrReject(context.Background(), adminActor, dto.VerifyPaymentRequest{EnrollmentID: enrollment.ID, Action: models.VerificationActionVerify, VerifiedBy: "admin-2"})
	requireCode(t, err, appErrors.ErrForbidden)

	_, err = w.payments.VerifyOrReject(context.Background(), adminActor, dto.VerifyPaymentRequest{EnrollmentID: enrollment.ID, Action: "approve"})
	requireCode(t, err, appErrors.ErrValidation)

	superAdmin := models.Actor{UserID: "root", Role: models.RoleSuperAdmin}
	result, err := w.payments.VerifyOrReject(context.Background(), superAdmin, dto.VerifyPaymentRequest{EnrollmentID: enrollment.ID, Action: "VERIFY", VerifiedBy: "root"})
	require.NoError(t, err)
	assert.Equal(t, "root", *result.Enrollment.VerifiedBy)
}

func TestVerifyIdempotencyKeyReplaysRecordedResult(t *testing.T) {
	w := newWorkflow(t, models.SeatPolicyReserveOnCreate, 2)
	enrollment := w.create(t, studentActor)
	w.submit(t, studentActor, enrollment.ID)

	first, err := w.decide(models.VerificationActionVerify, enrollment.ID, "paid in full", "key-1")
	require.NoError(t, err)
	require.False(t, first.Replayed)

	_, err = w.enrollments.Drop(context.Background(), adminActor, enrollment.ID, dto.DropEnrollmentRequest{})
	require.NoError(t, err)

	replayed, err := w.decide(models.VerificationActionVerify, enrollment.ID, "paid in full", "key-1")
	require.NoError(t, err)
	assert.True(t, replayed.Replayed)
	assert.Equal(t, models.EnrollmentStatusEnrolled, replayed.Enrollment.Status)
	assert.Equal(t, first.Enrollment.Version, replayed.Enrollment.Version)

	current, held := w.seats(t)
	assert.Equal(t, 0, current)
	assert.Equal(t, 0, held)
}

func TestVerifyIdempotencyKeyReuseIsRejected(t *testing.T) {
	w := newWorkflow(t, models.SeatPolicyReserveOnCreate, 3)
	first := w.create(t, studentActor)
	second := w.create(t, student("stu-2"))
	w.submit(t, studentActor, first.ID)
	w.submit(t, student("stu-2"), second.ID)

	_, err := w.decide(models.VerificationActionVerify, first.ID, "", "key-1")
	require.NoError(t, err)

	_, err = w.decide(models.VerificationActionVerify, second.ID, "", "key-1")
	requireCode(t, err, appErrors.ErrIdempotencyKeyReused)

	_, err = w.decide(models.VerificationActionReject, first.ID, "", "key-1")
	requireCode(t, err, appErrors.ErrIdempotencyKeyReused)

	stillSubmitted, err := w.enrollments.Get(context.Background(), adminActor, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSubmitted, stillSubmitted.PaymentStatus)
}

func TestVerifyAfterRejectionReplacesNotes(t *testing.T) {
	w := newWorkflow(t, models.SeatPolicyReserveOnCreate, 2)
	enrollment := w.create(t, studentActor)
	w.submit(t, studentActor, enrollment.ID)

	rejected, err := w.decide(models.VerificationActionReject, enrollment.ID, "receipt illegible", "")
	require.NoError(t, err)
	require.NotNil(t, rejected.Enrollment.Notes)

	w.submit(t, studentActor, enrollment.ID)
	verified, err := w.decide(models.VerificationActionVerify, enrollment.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusVerified, verified.Enrollment.PaymentStatus)
	assert.Nil(t, verified.Enrollment.Notes)

	stored, err := w.enrollments.Get(context.Background(), adminActor, enrollment.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Notes)
}

func TestVerifyIdempotencyKeyFromEarlierSubmissionIsRejected(t *testing.T) {
	w := newWorkflow(t, models.SeatPolicyReserveOnCreate, 2)
	enrollment := w.create(t, studentActor)
	w.submit(t, studentActor, enrollment.ID)

	_, err := w.decide(models.VerificationActionReject, enrollment.ID, "blurry", "key-1")
	require.NoError(t, err)

	replayed, err := w.decide(models.VerificationActionReject, enrollment.ID, "blurry", "key-1")
	require.NoError(t, err)
	assert.True(t, replayed.Replayed)

	later := time.Now().Add(time.Hour)
	w.enrollments.now = func() time.Time { return later }
	w.submit(t, studentActor, enrollment.ID)
	_, err = w.decide(models.VerificationActionReject, enrollment.ID, "blurry", "key-1")
	requireCode(t, err, appErrors.ErrIdempotencyKeyReused)

	stored, err := w.enrollments.Get(context.Background(), adminActor, enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSubmitted, stored.PaymentStatus)

	fresh, err := w.decide(models.VerificationActionReject, enrollment.ID, "still blurry", "key-2")
	require.NoError(t, err)
	assert.False(t, fresh.Replayed)
	assert.Equal(t, models.PaymentStatusRejected, fresh.Enrollment.PaymentStatus)
}

func TestConcurrentVerifyAndDropKeepInvariant(t *testing.T) {
	for i := 0; i < 20; i++ {
		t.Run(fmt.Sprintf("round-%d", i), func(t *testing.T) {
			w := newWorkflow(t, models.SeatPolicyReserveOnVerify, 1)
			enrollment := w.create(t, studentActor)
			w.submit(t, studentActor, enrollment.ID)

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, _ = w.decide(models.VerificationActionVerify, enrollment.ID, "", "")
			}()
			go func() {
				defer wg.Done()
				_, _ = w.enrollments.Drop(context.Background(), studentActor, enrollment.ID, dto.DropEnrollmentRequest{})
			}()
			wg.Wait()

			final, err := w.enrollments.Get(context.Background(), adminActor, enrollment.ID)
			require.NoError(t, err)
			assert.Equal(t, models.EnrollmentStatusDropped, final.Status)
			current, held := w.seats(t)
			assert.Equal(t, 0, current)
			assert.Equal(t, 0, held)
		})
	}
}

type failingLedger struct {
	err error
}

func (f failingLedger) RunInTx(context.Context, func(tx repository.LedgerTx) error) error {
	return f.err
}

func TestVerifyMapsStorageFaults(t *testing.T) {
	svc := NewPaymentVerificationService(failingLedger{err: fmt.Errorf("serialization: %w", database.ErrRetryable)}, nil, nil, nil, nil, nil)
	_, err := svc.VerifyOrReject(context.Background(), adminActor, dto.VerifyPaymentRequest{EnrollmentID: "enr-1", Action: models.VerificationActionVerify})
	requireCode(t, err, appErrors.ErrStorageFailure)
	assert.True(t, appErrors.Retryable(err))

	svc = NewPaymentVerificationService(failingLedger{err: fmt.Errorf("disk full")}, nil, nil, nil, nil, nil)
	_, err = svc.VerifyOrReject(context.Background(), adminActor, dto.VerifyPaymentRequest{EnrollmentID: "enr-1", Action: models.VerificationActionVerify})
	requireCode(t, err, appErrors.ErrInternal)
	assert.False(t, appErrors.Retryable(err))
}
