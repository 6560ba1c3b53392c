package service

import (
	"context"
	"encoding/json"
	"path"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-enrollment-api/internal/dto"
	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

var (
	adminActor   = models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
	studentActor = models.Actor{UserID: "stu-1", Role: models.RoleStudent}
)

func student(id string) models.Actor {
	return models.Actor{UserID: id, Role: models.RoleStudent}
}

type workflow struct {
	ledger      *repository.MemoryLedger
	cache       *mapCacheRepo
	metrics     *MetricsService
	capacity    *CapacityService
	enrollments *EnrollmentService
	payments    *PaymentVerificationService
	dashboard   *DashboardService
}

func newWorkflow(t *testing.T, policy models.SeatPolicy, maxStudents int) *workflow {
	t.Helper()
	ledger := repository.NewMemoryLedger()
	ledger.SeedCourse(models.Course{ID: "course-1", Name: "Go Fundamentals", Price: 1500000, Status: models.CourseStatusActive})
	ledger.SeedBatch(models.Batch{
		ID: "batch-1", CourseID: "course-1", Name: "Morning",
		StartDate: time.Now().AddDate(0, 0, 7), EndDate: time.Now().AddDate(0, 2, 0),
		MaxStudents: maxStudents, Status: models.BatchStatusUpcoming,
	})
	ledger.SeedStudent(models.Student{ID: "stu-1", FullName: "Ayu", Email: "ayu@example.com"})

	cacheRepo := newMapCacheRepo()
	metrics := NewMetricsService()
	cache := NewCacheService(cacheRepo, metrics, time.Minute, nil, true)
	dashboard := NewDashboardService(ledger, ledger, cache, DashboardServiceConfig{}, nil)
	capacity := NewCapacityService(policy, metrics, nil)
	enrollments := NewEnrollmentService(ledger, capacity, dashboard, nil, nil)
	payments := NewPaymentVerificationService(ledger, enrollments, dashboard, metrics, nil, nil)
	return &workflow{
		ledger:      ledger,
		cache:       cacheRepo,
		metrics:     metrics,
		capacity:    capacity,
		enrollments: enrollments,
		payments:    payments,
		dashboard:   dashboard,
	}
}

func (w *workflow) create(t *testing.T, actor models.Actor) *models.Enrollment {
	t.Helper()
	enrollment, err := w.enrollments.Create(context.Background(), actor, dto.CreateEnrollmentRequest{BatchID: "batch-1"})
	require.NoError(t, err)
	return enrollment
}

func (w *workflow) submit(t *testing.T, actor models.Actor, id string) *models.Enrollment {
	t.Helper()
	enrollment, err := w.enrollments.SubmitPaymentProof(context.Background(), actor, id, dto.SubmitPaymentProofRequest{PaymentProof: "transfer-receipt.jpg"})
	require.NoError(t, err)
	return enrollment
}

func (w *workflow) decide(action models.VerificationAction, id, notes, key string) (*VerificationResult, error) {
	return w.payments.VerifyOrReject(context.Background(), adminActor, dto.VerifyPaymentRequest{
		EnrollmentID:   id,
		Action:         action,
		Notes:          notes,
		IdempotencyKey: key,
	})
}

// seats returns the stored counter and the number of enrollments holding a seat.
func (w *workflow) seats(t *testing.T) (current, held int) {
	t.Helper()
	batch, err := w.ledger.FindBatchByID(context.Background(), "batch-1")
	require.NoError(t, err)
	counts, err := w.ledger.SeatsHeldByBatch(context.Background())
	require.NoError(t, err)
	return batch.CurrentStudents, counts["batch-1"]
}

func requireCode(t *testing.T, err error, code *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, appErrors.HasCode(err, code.Code), "expected %s, got %v", code.Code, err)
}

type mapCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMapCacheRepo() *mapCacheRepo {
	return &mapCacheRepo{entries: make(map[string][]byte)}
}

func (m *mapCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mapCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	return nil
}

func (m *mapCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *mapCacheRepo) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	if raw, ok := m.entries[key]; ok {
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, err
		}
	}
	n++
	m.entries[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}
