package models

import "time"

// SystemMetrics is a point-in-time snapshot of process instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	SeatsReserved            uint64    `json:"seats_reserved"`
	SeatsRejected            uint64    `json:"seats_rejected"`
	SeatsReleased            uint64    `json:"seats_released"`
	Verifications            uint64    `json:"verifications"`
	TxRetries                uint64    `json:"tx_retries"`
	OverdueReviews           int       `json:"overdue_reviews"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
