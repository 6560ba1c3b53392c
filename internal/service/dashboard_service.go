package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/batch-enrollment-api/internal/dto"
	"github.com/noah-isme/batch-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

const (
	dashboardSummaryKey     = "dash:enrollments:summary"
	dashboardSummaryPattern = "dash:enrollments:*"
	// Lives outside the summary pattern so invalidation never resets it.
	dashboardGenerationKey = "dash:generation"
)

// cachedSummary stamps a summary with the write generation it was computed under.
type cachedSummary struct {
	Generation int64                         `json:"generation"`
	Summary    *dto.DashboardSummaryResponse `json:"summary"`
}

type dashboardLedger interface {
	AllEnrollments(ctx context.Context) ([]models.Enrollment, error)
	SeatsHeldByBatch(ctx context.Context) (map[string]int, error)
}

type batchLister interface {
	ListBatches(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, error)
}

// Summarize computes dashboard counters purely from enrollment and batch state.
// Seat totals only consider active batches.
func Summarize(enrollments []models.Enrollment, batches []models.Batch) dto.EnrollmentSummary {
	summary := dto.EnrollmentSummary{TotalEnrollments: len(enrollments)}
	for _, e := range enrollments {
		switch e.PaymentStatus {
		case models.PaymentStatusSubmitted:
			summary.PendingVerifications++
		case models.PaymentStatusVerified:
			summary.VerifiedEnrollments++
		case models.PaymentStatusRejected:
			summary.RejectedPayments++
		}
		if e.Status == models.EnrollmentStatusDropped {
			summary.DroppedEnrollments++
		}
	}
	for _, b := range batches {
		if !b.Status.Active() {
			continue
		}
		summary.ActiveBatches++
		summary.SeatsCapacity += b.MaxStudents
		summary.SeatsTaken += b.CurrentStudents
	}
	return summary
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService serves the enrollment summary, cached in Redis, and
// reconciles the cache against a full recount.
type DashboardService struct {
	ledger  dashboardLedger
	batches batchLister
	cache   *CacheService
	logger  *zap.Logger
	now     func() time.Time
	cfg     DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(ledger dashboardLedger, batches batchLister, cache *CacheService, cfg DashboardServiceConfig, logger *zap.Logger) *DashboardService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{ledger: ledger, batches: batches, cache: cache, logger: logger, now: time.Now, cfg: cfg}
}

// Summary returns the enrollment summary and whether it was served from cache.
// A summary computed while a write commits is never served: writers bump the
// generation before invalidating, and entries from an older generation miss.
func (s *DashboardService) Summary(ctx context.Context) (*dto.DashboardSummaryResponse, bool, error) {
	if cached, hit := s.cached(ctx); hit {
		return cached, true, nil
	}
	generation, ok := s.generation(ctx)
	fresh, err := s.compute(ctx)
	if err != nil {
		return nil, false, err
	}
	if ok {
		s.store(ctx, fresh, generation)
	}
	return fresh, false, nil
}

// Reconcile recounts from scratch, compares against the cached copy and the
// stored per-batch seat counters, and refreshes the cache.
func (s *DashboardService) Reconcile(ctx context.Context) (*dto.ReconcileResponse, error) {
	generation, ok := s.generation(ctx)
	fresh, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}
	held, err := s.ledger.SeatsHeldByBatch(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count held seats")
	}
	batches, err := s.batches.ListBatches(ctx, models.BatchFilter{})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batches")
	}

	resp := &dto.ReconcileResponse{Summary: fresh.Summary, SeatDrift: []dto.SeatDrift{}, CheckedAt: s.now().UTC()}
	if cached, hit := s.cached(ctx); hit {
		resp.Cached = &cached.Summary
		resp.Drifted = cached.Summary != fresh.Summary
	}
	for _, batch := range batches {
		if count := held[batch.ID]; count != batch.CurrentStudents {
			resp.SeatDrift = append(resp.SeatDrift, dto.SeatDrift{
				BatchID:         batch.ID,
				CurrentStudents: batch.CurrentStudents,
				SeatsHeld:       count,
				MaxStudents:     batch.MaxStudents,
			})
		}
	}
	sort.Slice(resp.SeatDrift, func(i, j int) bool { return resp.SeatDrift[i].BatchID < resp.SeatDrift[j].BatchID })

	if resp.Drifted || len(resp.SeatDrift) > 0 {
		s.logger.Warn("dashboard reconcile found drift",
			zap.Bool("summary_drifted", resp.Drifted),
			zap.Int("batches_drifted", len(resp.SeatDrift)))
	}
	if ok {
		s.store(ctx, fresh, generation)
	}
	return resp, nil
}

// Invalidate drops cached summaries after a ledger write.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if s == nil || s.cache == nil {
		return
	}
	if _, err := s.cache.Incr(ctx, dashboardGenerationKey); err != nil {
		s.logger.Warn("dashboard generation bump failed", zap.Error(err))
	}
	if err := s.cache.Invalidate(ctx, dashboardSummaryPattern); err != nil {
		s.logger.Warn("dashboard cache invalidate failed", zap.Error(err))
	}
}

func (s *DashboardService) compute(ctx context.Context) (*dto.DashboardSummaryResponse, error) {
	enrollments, err := s.ledger.AllEnrollments(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	details, err := s.batches.ListBatches(ctx, models.BatchFilter{})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batches")
	}
	batches := make([]models.Batch, len(details))
	for i, detail := range details {
		batches[i] = detail.Batch
	}
	return &dto.DashboardSummaryResponse{Summary: Summarize(enrollments, batches), GeneratedAt: s.now().UTC()}, nil
}

func (s *DashboardService) cached(ctx context.Context) (*dto.DashboardSummaryResponse, bool) {
	if s.cache == nil {
		return nil, false
	}
	var entry cachedSummary
	hit, err := s.cache.Get(ctx, dashboardSummaryKey, &entry)
	if err != nil || !hit || entry.Summary == nil {
		return nil, false
	}
	current, ok := s.generation(ctx)
	if !ok || current != entry.Generation {
		return nil, false
	}
	return entry.Summary, true
}

// generation reads the write counter; a missing key is generation zero. The
// second result is false when the counter cannot be read.
func (s *DashboardService) generation(ctx context.Context) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	var generation int64
	if _, err := s.cache.Get(ctx, dashboardGenerationKey, &generation); err != nil {
		return 0, false
	}
	return generation, true
}

func (s *DashboardService) store(ctx context.Context, summary *dto.DashboardSummaryResponse, generation int64) {
	if current, ok := s.generation(ctx); !ok || current != generation {
		s.logger.Debug("dashboard summary outdated before store, skipping cache write")
		return
	}
	entry := cachedSummary{Generation: generation, Summary: summary}
	if err := s.cache.Set(ctx, dashboardSummaryKey, entry, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", dashboardSummaryKey), zap.Error(err))
	}
}
