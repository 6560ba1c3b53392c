package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
)

// CatalogRepository reads courses and batches. The catalog is owned elsewhere;
// only batches.current_students is ever written, by the ledger.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

const batchDetailSelect = `SELECT b.id, b.course_id, b.instructor_id, b.name, b.start_date, b.end_date, b.start_time, b.end_time,
       b.max_students, b.current_students, b.status, c.name AS course_name, u.full_name AS instructor_name
FROM batches b
JOIN courses c ON c.id = b.course_id
LEFT JOIN users u ON u.id = b.instructor_id`

// ListCourses returns courses ordered by name.
func (r *CatalogRepository) ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	query := `SELECT id, name, description, duration, price, status, created_at FROM courses`
	var args []interface{}
	if filter.Status != "" {
		query += " WHERE status = $1"
		args = append(args, filter.Status)
	}
	query += " ORDER BY name"
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// FindCourseByID returns a single course.
func (r *CatalogRepository) FindCourseByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, name, description, duration, price, status, created_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// ListBatches returns batches with course and instructor names ordered by start date.
func (r *CatalogRepository) ListBatches(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, error) {
	var conditions []string
	var args []interface{}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("b.course_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("b.status = $%d", len(args)))
	}
	query := batchDetailSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY b.start_date, b.id"
	var batches []models.BatchDetail
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

// FindBatchByID returns a single batch with display fields.
func (r *CatalogRepository) FindBatchByID(ctx context.Context, id string) (*models.BatchDetail, error) {
	var batch models.BatchDetail
	if err := r.db.GetContext(ctx, &batch, batchDetailSelect+" WHERE b.id = $1", id); err != nil {
		return nil, err
	}
	return &batch, nil
}
