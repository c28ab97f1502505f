package models

import "time"

// EngineMetrics summarises instrumentation counters for diagnostics.
type EngineMetrics struct {
	QueriesTotal           uint64    `json:"queries_total"`
	QueryFailures          uint64    `json:"query_failures"`
	AverageQueryDurationMs float64   `json:"average_query_duration_ms"`
	ScheduleRuns           uint64    `json:"schedule_runs"`
	SectionsScheduled      uint64    `json:"sections_scheduled"`
	SectionsUnscheduled    uint64    `json:"sections_unscheduled"`
	CacheHitRatio          float64   `json:"cache_hit_ratio"`
	CacheHits              uint64    `json:"cache_hits"`
	CacheMisses            uint64    `json:"cache_misses"`
	Goroutines             int       `json:"goroutines"`
	GeneratedAt            time.Time `json:"generated_at"`
}
