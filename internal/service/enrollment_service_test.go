package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-enrollment-api/internal/dto"
	"github.com/noah-isme/batch-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

func TestEnrollmentCreateReservesSeatOnCreate(t *testing.T) {
	w := newWorkflow(t, models.SeatPolicyReserveOnCreate, 1)

	enrollment := w.create(t, studentActor)
	assert.Equal(t, models.EnrollmentStatusPending, enrollment.Status)
	assert.Equal(t, models.PaymentStatusPending, enrollment.PaymentStatus)
	assert.True(t, enrollment.SeatHeld)

	_, err := w.enrollments.Create(context.Background(), student("stu-2"), dto.CreateEnrollmentRequest{BatchID: "batch-1"})
	requireCode(t, err, appErrors.ErrNoSeatsAvailable)

	current, held := w.seats(t)
	assert.Equal(t, 1, current)
	assert.Equal(t, 1, held)

	logs := w.ledger.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditActionEnrollmentCreate, logs[0].Action)
}

func TestEnrollmentCreateRules(t *testing.T) {
	w := newWorkflow(t, models.SeatPolicyReserveOnCreate, 5)
	w.create(t, studentActor)

	_, err := w.enrollments.Create(context.Background(), studentActor, dto.CreateEnrollmentRequest{BatchID: "batch-1"})
	requireCode(t, err, appErrors.ErrConflict)

	_, err = w.enrollments.Create(context.Background(), studentActor, dto.CreateEnrollmentRequest{BatchID: "missing"})
	requireCode(t, err, appErrors.ErrNotFound)

	_, err = w.enrollments.Create(context.Background(), studentActor, dto.CreateEnrollmentRequest{BatchID: "batch-1", StudentID: "stu-9"})
	requireCode(t, err, appErrors.ErrForbidden)

	_, err = w.enrollments.Create(context.Background(), adminActor, dto.CreateEnrollmentRequest{BatchID: "batch-1"})
	requireCode(t, err, appErrors.ErrValidation)

	onBehalf, err := w.enrollments.Create(context.Background(), adminActor, dto.CreateEnrollmentRequest{BatchID: "batch-1", StudentID: "stu-9"})
	require.NoError(t, err)
	assert.Equal(t, "stu-9", onBehalf.StudentID)

	_, err = w.enrollments.Create(context.Background(), models.Actor{UserID: "ins-1", Role: models.RoleInstructor}, dto.CreateEnrollmentRequest{BatchID: "batch-1"})
	requireCode(t, err, appErrors.ErrForbidden)

	w.ledger.SeedBatch(models.Batch{ID: "batch-old", CourseID: "course-1", MaxStudents: 5, Status: models.BatchStatusCompleted})
	_, err = w.enrollments.Create(context.Background(), studentActor, dto.CreateEnrollmentRequest{BatchID: "batch-old"})
	requireCode(t, err, appErrors.ErrInvalidState)
}

func TestEnrollmentVerifyFlowEnrolls(t *testing.T) {
	w := newWorkflow(t, models.SeatPolicyReserveOnCreate, 2)
	enrollment := w.create(t, studentActor)

	submitted := w.submit(t, studentActor, enrollment.ID)
	assert.Equal(t, models.PaymentStatusSubmitted, submitted.PaymentStatus)
	require.NotNil(t, submitted.PaymentSubmittedDate)

	result, err := w.decide(models.VerificationActionVerify, enrollment.ID, "", "")
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, models.PaymentStatusVerified, result.Enrollment.PaymentStatus)
	assert.Equal(t, models.EnrollmentStatusEnrolled, result.Enrollment.Status)

	current, held := w.seats(t)
	assert.Equal(t, 1, current)
	assert.Equal(t, 1, held)
}

func TestEnrollmentRejectKeepsPendingAndAllowsResubmission(t *testing.T) {
	w := newWorkflow(t, models.SeatPolicyReserveOnCreate, 2)
	enrollment := w.create(t, studentActor)
	w.submit(t, studentActor, enrollment.ID)

	result, err := w.decide(models.VerificationActionReject, enrollment.ID, "receipt illegible", "")
	require.NoError(t, err)
	rejected := result.Enrollment
	assert.Equal(t, models.PaymentStatusRejected, rejected.PaymentStatus)
	assert.Equal(t, models.EnrollmentStatusPending, rejected.Status)
	require.NotNil(t, rejected.VerifiedBy)
	assert.Equal(t, "admin-1", *rejected.VerifiedBy)
	assert.NotNil(t, rejected.VerificationDate)
	require.NotNil(t, rejected.Notes)
	assert.Equal(t, "receipt illegible", *rejected.Notes)
	assert.True(t, rejected.SeatHeld)

	resubmitted := w.submit(t, studentActor, enrollment.ID)
	assert.Equal(t, models.PaymentStatusSubmitted, resubmitted.PaymentStatus)
	assert.Nil(t, resubmitted.VerifiedBy)

	_, err = w.enrollments.SubmitPaymentProof(context.Background(), studentActor, enrollment.ID, dto.SubmitPaymentProofRequest{PaymentProof: "again"})
	requireCode(t, err, appErrors.ErrInvalidState)
}

func TestEnrollmentDropReleasesSeat(t *testing.T) {
	w := newWorkflow(t, models.SeatPolicyReserveOnCreate, 1)
	enrollment := w.create(t, studentActor)
	w.submit(t, studentActor, enrollment.ID)
	_, err := w.decide(models.VerificationActionVerify, enrollment.ID, "", "")
	require.NoError(t, err)

	current, _ := w.seats(t)
	require.Equal(t, 1, current)

	dropped, err := w.enrollments.Drop(context.Background(), adminActor, enrollment.ID, dto.DropEnrollmentRequest{Reason: "moved abroad"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, dropped.Status)
	assert.False(t, dropped.SeatHeld)
	assert.NotNil(t, dropped.DroppedDate)

	current, held := w.seats(t)
	assert.Equal(t, 0, current)
	assert.Equal(t, 0, held)

	w.create(t, student("stu-2"))
	current, _ = w.seats(t)
	assert.Equal(t, 1, current)

	_, err = w.enrollments.Drop(context.Background(), adminActor, enrollment.ID, dto.DropEnrollmentRequest{})
	requireCode(t, err, appErrors.ErrInvalidState)
}

func TestEnrollmentCancelBeforePayment(t *testing.T) {
	w := newWorkflow(t, models.SeatPolicyReserveOnCreate, 2)
	first := w.create(t, studentActor)

	_, err := w.enrollments.Cancel(context.Background(), student("stu-2"), first.ID)
	requireCode(t, err, appErrors.ErrForbidden)

	cancelled, err := w.enrollments.Cancel(context.Background(), studentActor, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, cancelled.Status)
	current, _ := w.seats(t)
	assert.Equal(t, 0, current)

	second := w.create(t, studentActor)
	w.submit(t, studentActor, second.ID)
	_, err = w.enrollments.Cancel(context.Background(), studentActor, second.ID)
	requireCode(t, err, appErrors.ErrInvalidState)

	_, err = w.enrollments.SubmitPaymentProof(context.Background(), studentActor, first.ID, dto.SubmitPaymentProofRequest{PaymentProof: "late"})
	requireCode(t, err, appErrors.ErrInvalidState)
}

func TestEnrollmentReserveOnVerifyPolicy(t *testing.T) {
	w := newWorkflow(t, models.SeatPolicyReserveOnVerify, 1)
	first := w.create(t, studentActor)
	second := w.create(t, student("stu-2"))
	assert.False(t, first.SeatHeld)

	current, _ := w.seats(t)
	assert.Equal(t, 0, current)

	w.submit(t, studentActor, first.ID)
	w.submit(t, student("stu-2"), second.ID)

	_, err := w.decide(models.VerificationActionVerify, first.ID, "", "")
	require.NoError(t, err)
	current, held := w.seats(t)
	assert.Equal(t, 1, current)
	assert.Equal(t, 1, held)

	_, err = w.decide(models.VerificationActionVerify, second.ID, "", "")
	requireCode(t, err, appErrors.ErrCapacityExceeded)

	unchanged, err := w.enrollments.Get(context.Background(), adminActor, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSubmitted, unchanged.PaymentStatus)
	assert.Equal(t, models.EnrollmentStatusPending, unchanged.Status)

	_, err = w.enrollments.Create(context.Background(), student("stu-3"), dto.CreateEnrollmentRequest{BatchID: "batch-1"})
	requireCode(t, err, appErrors.ErrNoSeatsAvailable)

	_, err = w.enrollments.Drop(context.Background(), student("stu-2"), second.ID, dto.DropEnrollmentRequest{})
	require.NoError(t, err)
	current, _ = w.seats(t)
	assert.Equal(t, 1, current)
}

func TestEnrollmentListAndGetScopedToStudent(t *testing.T) {
	w := newWorkflow(t, models.SeatPolicyReserveOnCreate, 5)
	mine := w.create(t, studentActor)
	other := w.create(t, student("stu-2"))

	items, pagination, err := w.enrollments.List(context.Background(), studentActor, dto.EnrollmentQuery{StudentID: "stu-2"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, mine.ID, items[0].ID)
	assert.Equal(t, "Ayu", items[0].StudentName)
	assert.Equal(t, 1, pagination.TotalCount)

	items, _, err = w.enrollments.List(context.Background(), adminActor, dto.EnrollmentQuery{})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, _, err = w.enrollments.List(context.Background(), adminActor, dto.EnrollmentQuery{PaymentStatus: "paid"})
	requireCode(t, err, appErrors.ErrValidation)

	_, err = w.enrollments.Get(context.Background(), studentActor, other.ID)
	requireCode(t, err, appErrors.ErrNotFound)

	detail, err := w.enrollments.Get(context.Background(), adminActor, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "Morning", detail.BatchName)
	assert.Equal(t, float64(1500000), detail.Price)
}
