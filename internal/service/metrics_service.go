package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
)

// Reservation outcomes recorded by the capacity manager.
const (
	ReservationReserved = "reserved"
	ReservationRejected = "rejected"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	reservations    *prometheus.CounterVec
	seatReleases    prometheus.Counter
	verifications   *prometheus.CounterVec
	txRetries       prometheus.Counter
	overdueReviews  prometheus.Gauge

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	reservedCount        uint64
	rejectedCount        uint64
	releasedCount        uint64
	verificationCount    uint64
	txRetryCount         uint64
	overdueCount         int64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_seat_reservations_total",
		Help: "Seat reservation attempts by outcome",
	}, []string{"outcome"})

	seatReleases := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollment_seat_releases_total",
		Help: "Seats returned to a batch",
	})

	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_payment_verifications_total",
		Help: "Payment verification decisions by action and whether they were replayed",
	}, []string{"action", "replayed"})

	txRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollment_ledger_tx_retries_total",
		Help: "Ledger transactions re-run after a transient storage fault",
	})

	overdueReviews := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "enrollment_overdue_reviews",
		Help: "Submitted payments waiting longer than the review SLA at the last sweep",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		reservations, seatReleases, verifications, txRetries, overdueReviews, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		reservations:    reservations,
		seatReleases:    seatReleases,
		verifications:   verifications,
		txRetries:       txRetries,
		overdueReviews:  overdueReviews,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordReservation counts a seat reservation attempt.
func (m *MetricsService) RecordReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
	if outcome == ReservationReserved {
		atomic.AddUint64(&m.reservedCount, 1)
	} else {
		atomic.AddUint64(&m.rejectedCount, 1)
	}
}

// RecordSeatRelease counts a seat returned to a batch.
func (m *MetricsService) RecordSeatRelease() {
	if m == nil {
		return
	}
	m.seatReleases.Inc()
	atomic.AddUint64(&m.releasedCount, 1)
}

// RecordVerification counts an administrator decision.
func (m *MetricsService) RecordVerification(action models.VerificationAction, replayed bool) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(string(action), fmt.Sprintf("%t", replayed)).Inc()
	atomic.AddUint64(&m.verificationCount, 1)
}

// RecordTxRetry counts a ledger transaction re-run.
func (m *MetricsService) RecordTxRetry() {
	if m == nil {
		return
	}
	m.txRetries.Inc()
	atomic.AddUint64(&m.txRetryCount, 1)
}

// SetOverdueReviews publishes the overdue count found by the last SLA sweep.
func (m *MetricsService) SetOverdueReviews(count int) {
	if m == nil {
		return
	}
	m.overdueReviews.Set(float64(count))
	atomic.StoreInt64(&m.overdueCount, int64(count))
}

// Snapshot returns aggregated metrics suitable for the admin metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		SeatsReserved:            atomic.LoadUint64(&m.reservedCount),
		SeatsRejected:            atomic.LoadUint64(&m.rejectedCount),
		SeatsReleased:            atomic.LoadUint64(&m.releasedCount),
		Verifications:            atomic.LoadUint64(&m.verificationCount),
		TxRetries:                atomic.LoadUint64(&m.txRetryCount),
		OverdueReviews:           int(atomic.LoadInt64(&m.overdueCount)),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
