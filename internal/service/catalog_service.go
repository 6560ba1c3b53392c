package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

type catalogStore interface {
	ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
	FindCourseByID(ctx context.Context, id string) (*models.Course, error)
	ListBatches(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, error)
	FindBatchByID(ctx context.Context, id string) (*models.BatchDetail, error)
}

// CatalogService serves read-only course and batch lookups.
type CatalogService struct {
	store  catalogStore
	logger *zap.Logger
}

// NewCatalogService constructs the catalog reader.
func NewCatalogService(store catalogStore, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{store: store, logger: logger}
}

// ListCourses returns courses, optionally filtered by status.
func (s *CatalogService) ListCourses(ctx context.Context, status string) ([]models.Course, error) {
	filter := models.CourseFilter{Status: models.CourseStatus(strings.ToLower(strings.TrimSpace(status)))}
	switch filter.Status {
	case "", models.CourseStatusActive, models.CourseStatusInactive, models.CourseStatusDraft:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid course status")
	}
	courses, err := s.store.ListCourses(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, nil
}

// GetCourse returns a course by id.
func (s *CatalogService) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.store.FindCourseByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// ListBatches returns batches with their seat counters.
func (s *CatalogService) ListBatches(ctx context.Context, courseID, status string) ([]models.BatchDetail, error) {
	filter := models.BatchFilter{
		CourseID: strings.TrimSpace(courseID),
		Status:   models.BatchStatus(strings.ToLower(strings.TrimSpace(status))),
	}
	switch filter.Status {
	case "", models.BatchStatusUpcoming, models.BatchStatusOngoing, models.BatchStatusCompleted:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid batch status")
	}
	batches, err := s.store.ListBatches(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}
	return batches, nil
}

// GetBatch returns a batch by id.
func (s *CatalogService) GetBatch(ctx context.Context, id string) (*models.BatchDetail, error) {
	batch, err := s.store.FindBatchByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}
