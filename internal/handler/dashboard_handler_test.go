package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-enrollment-api/internal/dto"
)

type fakeDashboardSrv struct {
	summary    *dto.DashboardSummaryResponse
	hit        bool
	err        error
	reconciled *dto.ReconcileResponse
}

func (f *fakeDashboardSrv) Summary(context.Context) (*dto.DashboardSummaryResponse, bool, error) {
	return f.summary, f.hit, f.err
}

func (f *fakeDashboardSrv) Reconcile(context.Context) (*dto.ReconcileResponse, error) {
	return f.reconciled, f.err
}

func TestDashboardHandlerSummaryCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(&fakeDashboardSrv{
		summary: &dto.DashboardSummaryResponse{Summary: dto.EnrollmentSummary{TotalEnrollments: 4, PendingVerifications: 1}, GeneratedAt: time.Now()},
		hit:     true,
	})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/enrollments", nil)

	handler.Summary(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	summary := envelope.Data["summary"].(map[string]interface{})
	assert.Equal(t, float64(4), summary["total_enrollments"])
	assert.Equal(t, float64(1), summary["pending_verifications"])
}

func TestDashboardHandlerSummaryError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(&fakeDashboardSrv{err: errors.New("boom")})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/enrollments", nil)

	handler.Summary(c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDashboardHandlerReconcile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(&fakeDashboardSrv{reconciled: &dto.ReconcileResponse{
		Drifted:   true,
		SeatDrift: []dto.SeatDrift{{BatchID: "batch-1", CurrentStudents: 3, SeatsHeld: 2, MaxStudents: 5}},
	}})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/dashboard/enrollments/reconcile", nil)

	handler.Reconcile(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Data["drifted"])
}

type responseEnvelope struct {
	Data map[string]interface{} `json:"data"`
	Meta map[string]interface{} `json:"meta"`
}
