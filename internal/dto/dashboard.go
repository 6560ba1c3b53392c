package dto

import "time"

// EnrollmentSummary aggregates enrollment and batch counters for the admin dashboard.
type EnrollmentSummary struct {
	TotalEnrollments     int `json:"total_enrollments"`
	PendingVerifications int `json:"pending_verifications"`
	VerifiedEnrollments  int `json:"verified_enrollments"`
	ActiveBatches        int `json:"active_batches"`
	RejectedPayments     int `json:"rejected_payments"`
	DroppedEnrollments   int `json:"dropped_enrollments"`
	SeatsCapacity        int `json:"seats_capacity"`
	SeatsTaken           int `json:"seats_taken"`
}

// DashboardSummaryResponse wraps the summary with generation metadata.
type DashboardSummaryResponse struct {
	Summary     EnrollmentSummary `json:"summary"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// SeatDrift reports a batch whose stored counter disagrees with its held seats.
type SeatDrift struct {
	BatchID         string `json:"batch_id"`
	CurrentStudents int    `json:"current_students"`
	SeatsHeld       int    `json:"seats_held"`
	MaxStudents     int    `json:"max_students"`
}

// ReconcileResponse compares a fresh summary against the cached copy.
type ReconcileResponse struct {
	Summary   EnrollmentSummary  `json:"summary"`
	Cached    *EnrollmentSummary `json:"cached,omitempty"`
	Drifted   bool               `json:"drifted"`
	SeatDrift []SeatDrift        `json:"seat_drift"`
	CheckedAt time.Time          `json:"checked_at"`
}
