package models

import "time"

// Audit actions recorded by the enrollment workflow.
const (
	AuditActionEnrollmentCreate = "ENROLLMENT_CREATE"
	AuditActionPaymentSubmit    = "PAYMENT_SUBMIT"
	AuditActionPaymentVerify    = "PAYMENT_VERIFY"
	AuditActionPaymentReject    = "PAYMENT_REJECT"
	AuditActionEnrollmentCancel = "ENROLLMENT_CANCEL"
	AuditActionEnrollmentDrop   = "ENROLLMENT_DROP"
	AuditResourceEnrollment     = "enrollment"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
