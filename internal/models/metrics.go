package models

import "time"

// SystemMetrics is a lightweight summary of the worker's instrumentation.
type SystemMetrics struct {
	CacheHitRatio             float64   `json:"cache_hit_ratio"`
	CacheHits                 uint64    `json:"cache_hits"`
	CacheMisses               uint64    `json:"cache_misses"`
	UpstreamCalls             uint64    `json:"upstream_calls"`
	UpstreamFailures          uint64    `json:"upstream_failures"`
	AverageUpstreamDurationMs float64   `json:"average_upstream_duration_ms"`
	SweepRuns                 uint64    `json:"sweep_runs"`
	BookingsChecked           uint64    `json:"bookings_checked"`
	BookingsAtRisk            uint64    `json:"bookings_at_risk"`
	RequestsTotal             uint64    `json:"requests_total"`
	Goroutines                int       `json:"goroutines"`
	GeneratedAt               time.Time `json:"generated_at"`
}
