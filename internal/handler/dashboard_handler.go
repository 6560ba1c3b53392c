package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-enrollment-api/internal/dto"
	"github.com/noah-isme/batch-enrollment-api/internal/middleware"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
	"github.com/noah-isme/batch-enrollment-api/pkg/response"
)

type dashboardService interface {
	Summary(ctx context.Context) (*dto.DashboardSummaryResponse, bool, error)
	Reconcile(ctx context.Context) (*dto.ReconcileResponse, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Summary godoc
// @Summary Enrollment dashboard summary
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/enrollments [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	summary, cacheHit, err := h.service.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, summary, nil, meta)
}

// Reconcile godoc
// @Summary Recount the dashboard and report drift
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/enrollments/reconcile [post]
func (h *DashboardHandler) Reconcile(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	report, err := h.service.Reconcile(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}
