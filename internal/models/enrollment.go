package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Dropped is terminal.
const (
	EnrollmentStatusPending  EnrollmentStatus = "pending"
	EnrollmentStatusEnrolled EnrollmentStatus = "enrolled"
	EnrollmentStatusDropped  EnrollmentStatus = "dropped"
)

// PaymentStatus tracks the payment verification workflow of an enrollment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSubmitted PaymentStatus = "submitted"
	PaymentStatusVerified  PaymentStatus = "verified"
	PaymentStatusRejected  PaymentStatus = "rejected"
)

// VerificationAction is an administrator's decision on a submitted payment.
type VerificationAction string

const (
	VerificationActionVerify VerificationAction = "verify"
	VerificationActionReject VerificationAction = "reject"
)

// Outcome returns the payment status produced by the action.
func (a VerificationAction) Outcome() PaymentStatus {
	if a == VerificationActionVerify {
		return PaymentStatusVerified
	}
	return PaymentStatusRejected
}

// SeatPolicy decides when an enrollment starts counting against batch capacity.
type SeatPolicy string

const (
	// SeatPolicyReserveOnCreate counts the seat as soon as the enrollment exists.
	SeatPolicyReserveOnCreate SeatPolicy = "reserve_on_create"
	// SeatPolicyReserveOnVerify counts the seat only once payment is verified.
	SeatPolicyReserveOnVerify SeatPolicy = "reserve_on_verify"
)

// Enrollment is a student's claim on a seat in a batch.
type Enrollment struct {
	ID                   string           `db:"id" json:"id"`
	StudentID            string           `db:"student_id" json:"student_id"`
	BatchID              string           `db:"batch_id" json:"batch_id"`
	Status               EnrollmentStatus `db:"status" json:"status"`
	PaymentStatus        PaymentStatus    `db:"payment_status" json:"payment_status"`
	PaymentProof         *string          `db:"payment_proof" json:"payment_proof,omitempty"`
	PaymentSubmittedDate *time.Time       `db:"payment_submitted_date" json:"payment_submitted_date,omitempty"`
	VerifiedBy           *string          `db:"verified_by" json:"verified_by,omitempty"`
	VerificationDate     *time.Time       `db:"verification_date" json:"verification_date,omitempty"`
	Notes                *string          `db:"notes" json:"notes,omitempty"`
	EnrolledDate         time.Time        `db:"enrolled_date" json:"enrolled_date"`
	DroppedDate          *time.Time       `db:"dropped_date" json:"dropped_date,omitempty"`
	// SeatHeld is true while this enrollment is counted in the batch's current_students.
	SeatHeld bool `db:"seat_held" json:"seat_held"`
	Version  int  `db:"version" json:"version"`
}

// EnrollmentDetail enriches Enrollment with student, course and batch display fields.
type EnrollmentDetail struct {
	Enrollment
	StudentName string  `db:"student_name" json:"student_name"`
	Email       string  `db:"email" json:"email"`
	PhoneNumber *string `db:"phone_number" json:"phone_number,omitempty"`
	CourseID    string  `db:"course_id" json:"course_id"`
	CourseName  string  `db:"course_name" json:"course_name"`
	BatchName   string  `db:"batch_name" json:"batch_name"`
	Price       float64 `db:"price" json:"price"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID     string
	BatchID       string
	CourseID      string
	Status        EnrollmentStatus
	PaymentStatus PaymentStatus
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// VerificationRecord persists the outcome of an idempotent verification request.
type VerificationRecord struct {
	Key          string             `db:"idempotency_key" json:"idempotency_key"`
	EnrollmentID string             `db:"enrollment_id" json:"enrollment_id"`
	Action       VerificationAction `db:"action" json:"action"`
	VerifiedBy   string             `db:"verified_by" json:"verified_by"`
	Result       []byte             `db:"result" json:"-"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
}

// Student is the external identity referenced by an enrollment.
type Student struct {
	ID          string  `db:"id" json:"id"`
	FullName    string  `db:"full_name" json:"full_name"`
	Email       string  `db:"email" json:"email"`
	PhoneNumber *string `db:"phone_number" json:"phone_number,omitempty"`
}
