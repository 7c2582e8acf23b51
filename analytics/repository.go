// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package analytics

import (
	"context"
	"time"
)

// Repository defines the read-side persistence interface over usage records.
// All windows are half-open [start, end). A nil tenantID means unscoped.
type Repository interface {
	TotalsByModel(ctx context.Context, start, end time.Time, tenantID *string) ([]ModelUsage, error)
	TotalsByFeature(ctx context.Context, start, end time.Time, tenantID *string) ([]FeatureUsage, error)
	DailyTotals(ctx context.Context, start, end time.Time, tenantID *string) ([]DailyUsage, error)
	DailyModelTotals(ctx context.Context, start, end time.Time, tenantID *string) (map[string][]ModelUsage, error)
	CostBetween(ctx context.Context, start, end time.Time, tenantID *string) (float64, error)
	CostPerTenantBetween(ctx context.Context, start, end time.Time) (map[string]float64, error)
	TopTenants(ctx context.Context, start, end time.Time, limit int) ([]TenantUsage, error)
}
