// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package latency

import (
	"context"
	"time"
)

// Repository defines the persistence interface for latency telemetry
type Repository interface {
	// Raw log
	InsertLatency(ctx context.Context, record *LatencyRecord) error
	ListRecordsInWindow(ctx context.Context, start, end time.Time) ([]LatencyRecord, error)
	DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Realtime statistics over raw records
	RealtimeStats(ctx context.Context, f Filter, start, end time.Time) (RealtimeStats, error)
	RealtimeTrend(ctx context.Context, f Filter, start time.Time) ([]TrendPoint, error)
	Breakdown(ctx context.Context, f Filter, start, end time.Time) (LatencyBreakdown, error)
	TopSlowChatbots(ctx context.Context, limit int, start, end time.Time) ([]SlowChatbot, error)

	// Rollups
	UpsertRollup(ctx context.Context, rollup *Rollup) error
	TrendFromRollups(ctx context.Context, period PeriodType, limit int, f Filter) ([]TrendPoint, error)

	// Alert thresholds. GetThreshold returns nil (no error) when no row
	// matches the exact scope.
	GetThreshold(ctx context.Context, tenantID, chatbotID *string) (*ThresholdConfig, error)
	UpsertThreshold(ctx context.Context, cfg ThresholdConfig, tenantID, chatbotID *string) error

	Ping(ctx context.Context) error
}
