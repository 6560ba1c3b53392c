package dto

import "github.com/noah-isme/batch-enrollment-api/internal/models"

// CreateEnrollmentRequest is submitted by a student claiming a seat in a batch.
// Admins may enroll on behalf of a student by setting StudentID.
type CreateEnrollmentRequest struct {
	BatchID   string `json:"batch_id" validate:"required"`
	StudentID string `json:"student_id"`
	Notes     string `json:"notes" validate:"max=1000"`
}

// SubmitPaymentProofRequest carries the student's proof of payment reference.
type SubmitPaymentProofRequest struct {
	PaymentProof string `json:"payment_proof" validate:"required,max=2048"`
}

// VerifyPaymentRequest is the administrator's decision on a submitted payment.
type VerifyPaymentRequest struct {
	EnrollmentID   string                    `json:"enrollment_id" validate:"required"`
	VerifiedBy     string                    `json:"verified_by"`
	Action         models.VerificationAction `json:"action" validate:"required,oneof=verify reject"`
	Notes          string                    `json:"notes" validate:"max=1000"`
	IdempotencyKey string                    `json:"idempotency_key" validate:"max=128"`
}

// DropEnrollmentRequest optionally records why an enrollment was dropped.
type DropEnrollmentRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// EnrollmentQuery mirrors supported listing filters.
type EnrollmentQuery struct {
	StudentID     string `form:"student_id"`
	BatchID       string `form:"batch_id"`
	CourseID      string `form:"course_id"`
	Status        string `form:"status"`
	PaymentStatus string `form:"payment_status"`
	Page          int    `form:"page"`
	PageSize      int    `form:"page_size"`
	SortBy        string `form:"sort_by"`
	SortOrder     string `form:"sort_order"`
}

// SeatPolicyResponse documents when enrollments count against capacity.
type SeatPolicyResponse struct {
	Policy      models.SeatPolicy `json:"policy"`
	Description string            `json:"description"`
	ReviewSLA   string            `json:"review_sla"`
}

// OverdueReview describes a submitted payment waiting longer than the review SLA.
type OverdueReview struct {
	EnrollmentID string `json:"enrollment_id"`
	StudentID    string `json:"student_id"`
	BatchID      string `json:"batch_id"`
	SubmittedAt  string `json:"submitted_at"`
	WaitingFor   string `json:"waiting_for"`
}
