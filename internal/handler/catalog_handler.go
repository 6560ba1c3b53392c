package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/pkg/response"
)

type catalogReader interface {
	ListCourses(ctx context.Context, status string) ([]models.Course, error)
	GetCourse(ctx context.Context, id string) (*models.Course, error)
	ListBatches(ctx context.Context, courseID, status string) ([]models.BatchDetail, error)
	GetBatch(ctx context.Context, id string) (*models.BatchDetail, error)
}

// CatalogHandler exposes read-only course and batch endpoints.
type CatalogHandler struct {
	catalog catalogReader
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(catalog catalogReader) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListCourses godoc
// @Summary List courses
// @Tags Catalog
// @Produce json
// @Param status query string false "active, inactive or draft"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CatalogHandler) ListCourses(c *gin.Context) {
	courses, err := h.catalog.ListCourses(c.Request.Context(), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// GetCourse godoc
// @Summary Get course
// @Tags Catalog
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CatalogHandler) GetCourse(c *gin.Context) {
	course, err := h.catalog.GetCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, course)
}

// ListBatches godoc
// @Summary List batches with seat counters
// @Tags Catalog
// @Produce json
// @Param course_id query string false "Filter by course"
// @Param status query string false "upcoming, ongoing or completed"
// @Success 200 {object} response.Envelope
// @Router /batches [get]
func (h *CatalogHandler) ListBatches(c *gin.Context) {
	batches, err := h.catalog.ListBatches(c.Request.Context(), c.Query("course_id"), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batches, nil)
}

// GetBatch godoc
// @Summary Get batch
// @Tags Catalog
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id} [get]
func (h *CatalogHandler) GetBatch(c *gin.Context) {
	batch, err := h.catalog.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, batch)
}
