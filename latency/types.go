// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

// Package latency turns the raw per-request latency log into percentile
// statistics for SLA dashboards: realtime rolling-hour queries, idempotent
// hourly/daily rollups, stage breakdowns and cascading alert thresholds.
package latency

import (
	"errors"
	"time"
)

// PeriodType is the granularity of a rollup row
type PeriodType string

const (
	PeriodHourly PeriodType = "hourly"
	PeriodDaily  PeriodType = "daily"
)

// Valid reports whether the period type is a known granularity
func (p PeriodType) Valid() bool {
	return p == PeriodHourly || p == PeriodDaily
}

var ErrInvalidTenant = errors.New("tenant_id is required")

// LatencyEvent is the inbound measurement for one completed chat request.
// Stage durations are optional: cache hits skip the LLM/search/rewrite stages
// entirely.
type LatencyEvent struct {
	TenantID   string  `json:"tenant_id"`
	ChatbotID  *string `json:"chatbot_id,omitempty"`
	Channel    string  `json:"channel"`
	TotalMs    int     `json:"total_ms"`
	LLMMs      *int    `json:"llm_ms,omitempty"`
	SearchMs   *int    `json:"search_ms,omitempty"`
	RewriteMs  *int    `json:"rewrite_ms,omitempty"`
	CacheHit   bool    `json:"cache_hit"`
	ChunksUsed int     `json:"chunks_used"`
}

// Validate checks the event before persistence
func (e *LatencyEvent) Validate() error {
	if e.TenantID == "" {
		return ErrInvalidTenant
	}
	if e.TotalMs < 0 {
		return errors.New("total_ms must be non-negative")
	}
	return nil
}

// LatencyRecord is the immutable, retention-bounded raw log row
type LatencyRecord struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	ChatbotID  *string   `json:"chatbot_id,omitempty"`
	Channel    string    `json:"channel"`
	TotalMs    int       `json:"total_ms"`
	LLMMs      *int      `json:"llm_ms,omitempty"`
	SearchMs   *int      `json:"search_ms,omitempty"`
	RewriteMs  *int      `json:"rewrite_ms,omitempty"`
	CacheHit   bool      `json:"cache_hit"`
	ChunksUsed int       `json:"chunks_used"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter optionally scopes a statistics query by tenant and/or chatbot.
// Empty fields mean unscoped.
type Filter struct {
	TenantID  string
	ChatbotID string
}

// RealtimeStats summarizes the rolling window of raw records
type RealtimeStats struct {
	RequestCount  int     `json:"request_count"`
	CacheHitRatio float64 `json:"cache_hit_ratio"`
	AvgMs         float64 `json:"avg_ms"`
	P50Ms         float64 `json:"p50_ms"`
	P95Ms         float64 `json:"p95_ms"`
	P99Ms         float64 `json:"p99_ms"`
}

// PerformanceOverview is the realtime stats with percentage change against
// the same rolling window 24 hours earlier
type PerformanceOverview struct {
	RealtimeStats
	AvgChangePct float64 `json:"avg_change_pct"`
	P95ChangePct float64 `json:"p95_change_pct"`
}

// TrendPoint is one bucket in a response-time trend series
type TrendPoint struct {
	PeriodStart  time.Time `json:"period_start"`
	RequestCount int       `json:"request_count"`
	AvgMs        float64   `json:"avg_ms"`
	P95Ms        float64   `json:"p95_ms"`
}

// StageStats holds avg/p95 for one pipeline stage
type StageStats struct {
	AvgMs float64 `json:"avg_ms"`
	P95Ms float64 `json:"p95_ms"`
}

// LatencyBreakdown is the per-stage view over the rolling hour, cache hits
// excluded. OtherAvgMs is a residual, never measured directly.
type LatencyBreakdown struct {
	SampleCount int        `json:"sample_count"`
	TotalAvgMs  float64    `json:"total_avg_ms"`
	LLM         StageStats `json:"llm"`
	Search      StageStats `json:"search"`
	Rewrite     StageStats `json:"rewrite"`
	OtherAvgMs  float64    `json:"other_avg_ms"`
}

// SlowChatbot is one row of the p95 ranking with display names resolved
type SlowChatbot struct {
	TenantID     string  `json:"tenant_id"`
	TenantName   string  `json:"tenant_name"`
	ChatbotID    string  `json:"chatbot_id"`
	ChatbotName  string  `json:"chatbot_name"`
	RequestCount int     `json:"request_count"`
	P95Ms        float64 `json:"p95_ms"`
}

// Rollup is a pre-computed aggregate keyed by
// (tenant, chatbot-or-null, period type, period start). A nil ChatbotID row
// is the tenant-wide rollup.
type Rollup struct {
	TenantID     string     `json:"tenant_id"`
	ChatbotID    *string    `json:"chatbot_id,omitempty"`
	PeriodType   PeriodType `json:"period_type"`
	PeriodStart  time.Time  `json:"period_start"`
	RequestCount int        `json:"request_count"`
	CacheHits    int        `json:"cache_hits"`
	AvgMs        float64    `json:"avg_ms"`
	P50Ms        float64    `json:"p50_ms"`
	P95Ms        float64    `json:"p95_ms"`
	P99Ms        float64    `json:"p99_ms"`
	MinMs        float64    `json:"min_ms"`
	MaxMs        float64    `json:"max_ms"`
	LLMAvgMs     float64    `json:"llm_avg_ms"`
	LLMP95Ms     float64    `json:"llm_p95_ms"`
	SearchAvgMs  float64    `json:"search_avg_ms"`
	SearchP95Ms  float64    `json:"search_p95_ms"`
}

// Summary is the exit status of a scheduled aggregation run
type Summary struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// ThresholdConfig is a resolved set of alerting thresholds
type ThresholdConfig struct {
	P95ThresholdMs    float64 `json:"p95_threshold_ms"`
	AvgSpikeThreshold float64 `json:"avg_spike_threshold"`
	AlertEnabled      bool    `json:"alert_enabled"`
	CooldownMinutes   int     `json:"cooldown_minutes"`
}
