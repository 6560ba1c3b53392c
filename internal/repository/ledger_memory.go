package repository

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
)

type memoryState struct {
	courses     map[string]models.Course
	batches     map[string]models.Batch
	students    map[string]models.Student
	enrollments map[string]models.Enrollment
	records     map[string]models.VerificationRecord
	audits      []models.AuditLog
}

func newMemoryState() *memoryState {
	return &memoryState{
		courses:     make(map[string]models.Course),
		batches:     make(map[string]models.Batch),
		students:    make(map[string]models.Student),
		enrollments: make(map[string]models.Enrollment),
		records:     make(map[string]models.VerificationRecord),
	}
}

// clone copies the mutable tables. Catalog tables other than batches are
// never written inside a transaction and are shared.
func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		courses:     s.courses,
		students:    s.students,
		batches:     make(map[string]models.Batch, len(s.batches)),
		enrollments: make(map[string]models.Enrollment, len(s.enrollments)),
		records:     make(map[string]models.VerificationRecord, len(s.records)),
		audits:      s.audits[:len(s.audits):len(s.audits)],
	}
	for k, v := range s.batches {
		out.batches[k] = v
	}
	for k, v := range s.enrollments {
		out.enrollments[k] = v
	}
	for k, v := range s.records {
		out.records[k] = v
	}
	return out
}

// MemoryLedger is an in-process ledger and catalog used for local runs and
// tests. Transactions are serialized by a single lock and applied by swapping
// in a working copy on commit, so a failed transaction leaves no trace.
type MemoryLedger struct {
	mu    sync.RWMutex
	state *memoryState
}

// NewMemoryLedger constructs an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{state: newMemoryState()}
}

// SeedCourse adds or replaces a catalog course.
func (l *MemoryLedger) SeedCourse(course models.Course) {
	l.mu.Lock()
	defer l.mu.Unlock()
	courses := make(map[string]models.Course, len(l.state.courses)+1)
	for k, v := range l.state.courses {
		courses[k] = v
	}
	courses[course.ID] = course
	l.state.courses = courses
}

// SeedBatch adds or replaces a catalog batch.
func (l *MemoryLedger) SeedBatch(batch models.Batch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.batches[batch.ID] = batch
}

// SeedStudent registers a student identity for display joins.
func (l *MemoryLedger) SeedStudent(student models.Student) {
	l.mu.Lock()
	defer l.mu.Unlock()
	students := make(map[string]models.Student, len(l.state.students)+1)
	for k, v := range l.state.students {
		students[k] = v
	}
	students[student.ID] = student
	l.state.students = students
}

// AuditLogs returns a copy of the recorded audit trail.
func (l *MemoryLedger) AuditLogs() []models.AuditLog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.AuditLog(nil), l.state.audits...)
}

// RunInTx applies fn atomically against a working copy of the ledger.
func (l *MemoryLedger) RunInTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := l.apply(fn)
	if err != nil {
		return err
	}
	tx.hooks.run()
	return nil
}

func (l *MemoryLedger) apply(fn func(tx LedgerTx) error) (*memoryLedgerTx, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx := &memoryLedgerTx{state: l.state.clone()}
	if err := fn(tx); err != nil {
		return nil, err
	}
	l.state = tx.state
	return tx, nil
}

// List returns enrollment details matching the filter with the total count.
func (l *MemoryLedger) List(_ context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var matched []models.EnrollmentDetail
	for _, enrollment := range l.state.enrollments {
		detail := l.detail(enrollment)
		if filter.StudentID != "" && enrollment.StudentID != filter.StudentID {
			continue
		}
		if filter.BatchID != "" && enrollment.BatchID != filter.BatchID {
			continue
		}
		if filter.CourseID != "" && detail.CourseID != filter.CourseID {
			continue
		}
		if filter.Status != "" && enrollment.Status != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && enrollment.PaymentStatus != filter.PaymentStatus {
			continue
		}
		matched = append(matched, detail)
	}

	desc := !strings.EqualFold(filter.SortOrder, "ASC")
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var less, equal bool
		switch filter.SortBy {
		case "student_name":
			less, equal = a.StudentName < b.StudentName, a.StudentName == b.StudentName
		case "batch_name":
			less, equal = a.BatchName < b.BatchName, a.BatchName == b.BatchName
		case "payment_submitted_date":
			at, bt := timeOrZero(a.PaymentSubmittedDate), timeOrZero(b.PaymentSubmittedDate)
			less, equal = at.Before(bt), at.Equal(bt)
		default:
			less, equal = a.EnrolledDate.Before(b.EnrolledDate), a.EnrolledDate.Equal(b.EnrolledDate)
		}
		if equal {
			return a.ID < b.ID
		}
		if desc {
			return !less
		}
		return less
	})

	total := len(matched)
	page, size := normalizePaging(filter)
	start := (page - 1) * size
	if start >= total {
		return []models.EnrollmentDetail{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// FindDetailByID returns an enrollment with display fields.
func (l *MemoryLedger) FindDetailByID(_ context.Context, id string) (*models.EnrollmentDetail, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	enrollment, ok := l.state.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := l.detail(enrollment)
	return &detail, nil
}

// AllEnrollments returns every enrollment.
func (l *MemoryLedger) AllEnrollments(context.Context) ([]models.Enrollment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Enrollment, 0, len(l.state.enrollments))
	for _, enrollment := range l.state.enrollments {
		out = append(out, enrollment)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListSubmittedBefore returns payments awaiting review submitted before cutoff.
func (l *MemoryLedger) ListSubmittedBefore(_ context.Context, cutoff time.Time) ([]models.Enrollment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []models.Enrollment
	for _, enrollment := range l.state.enrollments {
		if enrollment.PaymentStatus != models.PaymentStatusSubmitted || enrollment.PaymentSubmittedDate == nil {
			continue
		}
		if enrollment.PaymentSubmittedDate.Before(cutoff) {
			out = append(out, enrollment)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PaymentSubmittedDate.Before(*out[j].PaymentSubmittedDate)
	})
	return out, nil
}

// SeatsHeldByBatch counts enrollments currently holding a seat, keyed by batch.
func (l *MemoryLedger) SeatsHeldByBatch(context.Context) (map[string]int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	held := make(map[string]int)
	for _, enrollment := range l.state.enrollments {
		if enrollment.SeatHeld {
			held[enrollment.BatchID]++
		}
	}
	return held, nil
}

// ListCourses returns catalog courses sorted by name.
func (l *MemoryLedger) ListCourses(_ context.Context, filter models.CourseFilter) ([]models.Course, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []models.Course
	for _, course := range l.state.courses {
		if filter.Status != "" && course.Status != filter.Status {
			continue
		}
		out = append(out, course)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FindCourseByID returns a catalog course.
func (l *MemoryLedger) FindCourseByID(_ context.Context, id string) (*models.Course, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	course, ok := l.state.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

// ListBatches returns batches with course names sorted by start date.
func (l *MemoryLedger) ListBatches(_ context.Context, filter models.BatchFilter) ([]models.BatchDetail, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []models.BatchDetail
	for _, batch := range l.state.batches {
		if filter.CourseID != "" && batch.CourseID != filter.CourseID {
			continue
		}
		if filter.Status != "" && batch.Status != filter.Status {
			continue
		}
		out = append(out, models.BatchDetail{Batch: batch, CourseName: l.state.courses[batch.CourseID].Name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartDate.Before(out[j].StartDate)
	})
	return out, nil
}

// FindBatchByID returns a batch with its course name.
func (l *MemoryLedger) FindBatchByID(_ context.Context, id string) (*models.BatchDetail, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	batch, ok := l.state.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.BatchDetail{Batch: batch, CourseName: l.state.courses[batch.CourseID].Name}, nil
}

func (l *MemoryLedger) detail(enrollment models.Enrollment) models.EnrollmentDetail {
	student := l.state.students[enrollment.StudentID]
	batch := l.state.batches[enrollment.BatchID]
	course := l.state.courses[batch.CourseID]
	return models.EnrollmentDetail{
		Enrollment:  enrollment,
		StudentName: student.FullName,
		Email:       student.Email,
		PhoneNumber: student.PhoneNumber,
		CourseID:    batch.CourseID,
		CourseName:  course.Name,
		BatchName:   batch.Name,
		Price:       course.Price,
	}
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

type memoryLedgerTx struct {
	state *memoryState
	hooks commitHooks
}

func (t *memoryLedgerTx) AfterCommit(fn func()) {
	t.hooks.AfterCommit(fn)
}

func (t *memoryLedgerTx) GetEnrollmentForUpdate(_ context.Context, id string) (*models.Enrollment, error) {
	enrollment, ok := t.state.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &enrollment, nil
}

func (t *memoryLedgerTx) FindOpenEnrollment(_ context.Context, studentID, batchID string) (*models.Enrollment, error) {
	for _, enrollment := range t.state.enrollments {
		if enrollment.StudentID == studentID && enrollment.BatchID == batchID && enrollment.Status != models.EnrollmentStatusDropped {
			return &enrollment, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (t *memoryLedgerTx) InsertEnrollment(_ context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledDate.IsZero() {
		enrollment.EnrolledDate = time.Now().UTC()
	}
	if enrollment.Version == 0 {
		enrollment.Version = 1
	}
	if _, exists := t.state.enrollments[enrollment.ID]; exists {
		return ErrDuplicateEnrollment
	}
	t.state.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (t *memoryLedgerTx) UpdateEnrollment(_ context.Context, enrollment *models.Enrollment) error {
	current, ok := t.state.enrollments[enrollment.ID]
	if !ok || current.Version != enrollment.Version {
		return ErrVersionConflict
	}
	enrollment.Version++
	t.state.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (t *memoryLedgerTx) GetBatch(_ context.Context, id string) (*models.Batch, error) {
	batch, ok := t.state.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &batch, nil
}

func (t *memoryLedgerTx) IncrementSeats(_ context.Context, batchID string) (bool, error) {
	batch, ok := t.state.batches[batchID]
	if !ok || batch.CurrentStudents >= batch.MaxStudents {
		return false, nil
	}
	batch.CurrentStudents++
	t.state.batches[batchID] = batch
	return true, nil
}

func (t *memoryLedgerTx) DecrementSeats(_ context.Context, batchID string) error {
	batch, ok := t.state.batches[batchID]
	if !ok {
		return nil
	}
	if batch.CurrentStudents > 0 {
		batch.CurrentStudents--
	}
	t.state.batches[batchID] = batch
	return nil
}

func (t *memoryLedgerTx) GetVerificationRecord(_ context.Context, key string) (*models.VerificationRecord, error) {
	record, ok := t.state.records[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &record, nil
}

func (t *memoryLedgerTx) InsertVerificationRecord(_ context.Context, record *models.VerificationRecord) error {
	if _, exists := t.state.records[record.Key]; exists {
		return ErrDuplicateKey
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	t.state.records[record.Key] = *record
	return nil
}

func (t *memoryLedgerTx) InsertAuditLog(_ context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	t.state.audits = append(t.state.audits, *log)
	return nil
}
