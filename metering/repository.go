// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package metering

import (
	"context"
)

// Repository defines the interface for metering data persistence
type Repository interface {
	// InsertUsageWithBudget writes the usage record and applies its cost to
	// the tenant's current-month budget row in a single transaction. The
	// budget mutation is an atomic add at the data store, never a
	// read-modify-write, so concurrent calls for one tenant cannot lose
	// increments. Both writes commit or roll back together.
	InsertUsageWithBudget(ctx context.Context, record *UsageRecord) error

	// CurrentMonthUsage returns the tenant's accrued cost this month,
	// 0 for tenants with no budget row yet.
	CurrentMonthUsage(ctx context.Context, tenantID string) (float64, error)

	// ResetMonthlyUsage zeroes every tenant's counter in one bulk update,
	// returning the number of rows touched.
	ResetMonthlyUsage(ctx context.Context) (int64, error)

	// ListUsageRecords lists usage records for reconciliation views
	ListUsageRecords(ctx context.Context, opts UsageQueryOptions) ([]UsageRecord, int, error)

	// ListActivePrices loads all active price catalog rows
	ListActivePrices(ctx context.Context) ([]ModelPrice, error)

	// Ping checks database connectivity
	Ping(ctx context.Context) error
}
