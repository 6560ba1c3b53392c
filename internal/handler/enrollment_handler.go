package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-enrollment-api/internal/dto"
	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
	"github.com/noah-isme/batch-enrollment-api/pkg/response"
)

// IdempotencyKeyHeader carries the client-chosen key for payment decisions.
const IdempotencyKeyHeader = "Idempotency-Key"

type enrollmentLifecycle interface {
	List(ctx context.Context, actor models.Actor, query dto.EnrollmentQuery) ([]models.EnrollmentDetail, *models.Pagination, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.EnrollmentDetail, error)
	Create(ctx context.Context, actor models.Actor, req dto.CreateEnrollmentRequest) (*models.Enrollment, error)
	SubmitPaymentProof(ctx context.Context, actor models.Actor, id string, req dto.SubmitPaymentProofRequest) (*models.Enrollment, error)
	Drop(ctx context.Context, actor models.Actor, id string, req dto.DropEnrollmentRequest) (*models.Enrollment, error)
	Cancel(ctx context.Context, actor models.Actor, id string) (*models.Enrollment, error)
}

type paymentVerifier interface {
	VerifyOrReject(ctx context.Context, actor models.Actor, req dto.VerifyPaymentRequest) (*service.VerificationResult, error)
}

type seatPolicyReporter interface {
	Policy() models.SeatPolicy
	Describe() string
}

type reviewMonitor interface {
	Policy() service.ReviewSLAPolicy
	Overdue(ctx context.Context) ([]dto.OverdueReview, error)
}

type rosterExporter interface {
	Roster(ctx context.Context, actor models.Actor, format string, filter models.EnrollmentFilter) (*service.ExportResult, error)
}

// EnrollmentHandler exposes enrollment and payment verification endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentLifecycle
	payments    paymentVerifier
	capacity    seatPolicyReporter
	reviews     reviewMonitor
	exports     rosterExporter
}

// NewEnrollmentHandler constructs EnrollmentHandler. reviews and exports may be nil.
func NewEnrollmentHandler(enrollments enrollmentLifecycle, payments paymentVerifier, capacity seatPolicyReporter, reviews reviewMonitor, exports rosterExporter) *EnrollmentHandler {
	return &EnrollmentHandler{
		enrollments: enrollments,
		payments:    payments,
		capacity:    capacity,
		reviews:     reviews,
		exports:     exports,
	}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param batch_id query string false "Filter by batch"
// @Param course_id query string false "Filter by course"
// @Param status query string false "pending, enrolled or dropped"
// @Param payment_status query string false "pending, submitted, verified or rejected"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var query dto.EnrollmentQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query parameters"))
		return
	}
	items, pagination, err := h.enrollments.List(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	enrollment, err := h.enrollments.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, enrollment)
}

// Create godoc
// @Summary Enroll into a batch
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.CreateEnrollmentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	enrollment, err := h.enrollments.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// SubmitPaymentProof godoc
// @Summary Submit payment proof
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.SubmitPaymentProofRequest true "Proof payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/payment-proof [post]
func (h *EnrollmentHandler) SubmitPaymentProof(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.SubmitPaymentProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	enrollment, err := h.enrollments.SubmitPaymentProof(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, enrollment)
}

// Cancel godoc
// @Summary Cancel an unpaid enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/cancel [post]
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	enrollment, err := h.enrollments.Cancel(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, enrollment)
}

// Drop godoc
// @Summary Drop an enrollment and release its seat
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.DropEnrollmentRequest false "Drop reason"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/drop [post]
func (h *EnrollmentHandler) Drop(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.DropEnrollmentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err))
			return
		}
	}
	enrollment, err := h.enrollments.Drop(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, enrollment)
}

// VerifyPayment godoc
// @Summary Verify or reject a submitted payment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Idempotency key"
// @Param payload body dto.VerifyPaymentRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/verify-payment [post]
func (h *EnrollmentHandler) VerifyPayment(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	if key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader)); key != "" {
		if req.IdempotencyKey != "" && req.IdempotencyKey != key {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "idempotency key header and body disagree"))
			return
		}
		req.IdempotencyKey = key
	}
	result, err := h.payments.VerifyOrReject(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result.Enrollment, map[string]interface{}{"replayed": result.Replayed})
}

// Policy godoc
// @Summary Seat reservation policy in effect
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollments/policy [get]
func (h *EnrollmentHandler) Policy(c *gin.Context) {
	resp := dto.SeatPolicyResponse{
		Policy:      h.capacity.Policy(),
		Description: h.capacity.Describe(),
		ReviewSLA:   "disabled",
	}
	if h.reviews != nil {
		if window := h.reviews.Policy().Window(); window > 0 {
			resp.ReviewSLA = window.String()
		}
	}
	response.OK(c, resp)
}

// Overdue godoc
// @Summary Submitted payments waiting longer than the review SLA
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollments/overdue [get]
func (h *EnrollmentHandler) Overdue(c *gin.Context) {
	if h.reviews == nil {
		response.OK(c, []dto.OverdueReview{})
		return
	}
	items, err := h.reviews.Overdue(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items, map[string]interface{}{"count": len(items)})
}

// Export godoc
// @Summary Export enrollment roster
// @Tags Enrollments
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param batch_id query string false "Filter by batch"
// @Param course_id query string false "Filter by course"
// @Param status query string false "Filter by status"
// @Param payment_status query string false "Filter by payment status"
// @Success 200 {file} file
// @Router /enrollments/export [get]
func (h *EnrollmentHandler) Export(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrFeatureDisabled, "roster exports are disabled"))
		return
	}
	filter := models.EnrollmentFilter{
		BatchID:       strings.TrimSpace(c.Query("batch_id")),
		CourseID:      strings.TrimSpace(c.Query("course_id")),
		Status:        models.EnrollmentStatus(strings.ToLower(c.Query("status"))),
		PaymentStatus: models.PaymentStatus(strings.ToLower(c.Query("payment_status"))),
	}
	result, err := h.exports.Roster(c.Request.Context(), actor, c.DefaultQuery("format", "csv"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Data)
}
