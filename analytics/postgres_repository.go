// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresRepository implements Repository over the usage_records table
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// TotalsByModel sums tokens and cost per (provider, model) over the window
func (r *PostgresRepository) TotalsByModel(ctx context.Context, start, end time.Time, tenantID *string) ([]ModelUsage, error) {
	query := `
		SELECT provider, model_id,
			   COALESCE(SUM(tokens_total), 0),
			   COALESCE(SUM(total_cost_usd), 0)
		FROM usage_records
		WHERE created_at >= $1 AND created_at < $2
		  AND ($3::text IS NULL OR tenant_id = $3)
		GROUP BY provider, model_id
		ORDER BY SUM(total_cost_usd) DESC
	`

	rows, err := r.db.QueryContext(ctx, query, start, end, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query model totals: %w", err)
	}
	defer rows.Close()

	var usage []ModelUsage
	for rows.Next() {
		var row ModelUsage
		if err := rows.Scan(&row.Provider, &row.ModelID, &row.Tokens, &row.CostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan model totals: %w", err)
		}
		usage = append(usage, row)
	}

	return usage, nil
}

// TotalsByFeature sums tokens and cost per feature type over the window
func (r *PostgresRepository) TotalsByFeature(ctx context.Context, start, end time.Time, tenantID *string) ([]FeatureUsage, error) {
	query := `
		SELECT feature,
			   COALESCE(SUM(tokens_total), 0),
			   COALESCE(SUM(total_cost_usd), 0)
		FROM usage_records
		WHERE created_at >= $1 AND created_at < $2
		  AND ($3::text IS NULL OR tenant_id = $3)
		GROUP BY feature
		ORDER BY SUM(total_cost_usd) DESC
	`

	rows, err := r.db.QueryContext(ctx, query, start, end, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature totals: %w", err)
	}
	defer rows.Close()

	var usage []FeatureUsage
	for rows.Next() {
		var row FeatureUsage
		if err := rows.Scan(&row.Feature, &row.Tokens, &row.CostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan feature totals: %w", err)
		}
		usage = append(usage, row)
	}

	return usage, nil
}

// DailyTotals sums tokens and cost per UTC day over the window
func (r *PostgresRepository) DailyTotals(ctx context.Context, start, end time.Time, tenantID *string) ([]DailyUsage, error) {
	query := `
		SELECT to_char(date_trunc('day', created_at), 'YYYY-MM-DD'),
			   COALESCE(SUM(tokens_total), 0),
			   COALESCE(SUM(total_cost_usd), 0)
		FROM usage_records
		WHERE created_at >= $1 AND created_at < $2
		  AND ($3::text IS NULL OR tenant_id = $3)
		GROUP BY 1
		ORDER BY 1
	`

	rows, err := r.db.QueryContext(ctx, query, start, end, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily totals: %w", err)
	}
	defer rows.Close()

	var daily []DailyUsage
	for rows.Next() {
		var row DailyUsage
		if err := rows.Scan(&row.Date, &row.Tokens, &row.CostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan daily totals: %w", err)
		}
		daily = append(daily, row)
	}

	return daily, nil
}

// DailyModelTotals sums tokens and cost per day and model, keyed by the
// YYYY-MM-DD day string for nesting under the daily trend
func (r *PostgresRepository) DailyModelTotals(ctx context.Context, start, end time.Time, tenantID *string) (map[string][]ModelUsage, error) {
	query := `
		SELECT to_char(date_trunc('day', created_at), 'YYYY-MM-DD'),
			   provider, model_id,
			   COALESCE(SUM(tokens_total), 0),
			   COALESCE(SUM(total_cost_usd), 0)
		FROM usage_records
		WHERE created_at >= $1 AND created_at < $2
		  AND ($3::text IS NULL OR tenant_id = $3)
		GROUP BY 1, provider, model_id
		ORDER BY 1
	`

	rows, err := r.db.QueryContext(ctx, query, start, end, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily model totals: %w", err)
	}
	defer rows.Close()

	byDay := make(map[string][]ModelUsage)
	for rows.Next() {
		var day string
		var row ModelUsage
		if err := rows.Scan(&day, &row.Provider, &row.ModelID, &row.Tokens, &row.CostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan daily model totals: %w", err)
		}
		byDay[day] = append(byDay[day], row)
	}

	return byDay, nil
}

// CostBetween sums total cost over the window
func (r *PostgresRepository) CostBetween(ctx context.Context, start, end time.Time, tenantID *string) (float64, error) {
	query := `
		SELECT COALESCE(SUM(total_cost_usd), 0)
		FROM usage_records
		WHERE created_at >= $1 AND created_at < $2
		  AND ($3::text IS NULL OR tenant_id = $3)
	`

	var total float64
	if err := r.db.QueryRowContext(ctx, query, start, end, tenantID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to query window cost: %w", err)
	}

	return total, nil
}

// CostPerTenantBetween sums total cost per tenant over the window
func (r *PostgresRepository) CostPerTenantBetween(ctx context.Context, start, end time.Time) (map[string]float64, error) {
	query := `
		SELECT tenant_id, COALESCE(SUM(total_cost_usd), 0)
		FROM usage_records
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY tenant_id
	`

	rows, err := r.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query per-tenant cost: %w", err)
	}
	defer rows.Close()

	costs := make(map[string]float64)
	for rows.Next() {
		var tenantID string
		var cost float64
		if err := rows.Scan(&tenantID, &cost); err != nil {
			return nil, fmt.Errorf("failed to scan per-tenant cost: %w", err)
		}
		costs[tenantID] = cost
	}

	return costs, nil
}

// TopTenants ranks tenants by total cost descending over the window,
// resolving display names
func (r *PostgresRepository) TopTenants(ctx context.Context, start, end time.Time, limit int) ([]TenantUsage, error) {
	query := `
		SELECT u.tenant_id,
			   COALESCE(t.name, u.tenant_id),
			   COALESCE(SUM(u.tokens_total), 0),
			   COALESCE(SUM(u.total_cost_usd), 0)
		FROM usage_records u
		LEFT JOIN tenants t ON t.id = u.tenant_id
		WHERE u.created_at >= $1 AND u.created_at < $2
		GROUP BY u.tenant_id, t.name
		ORDER BY SUM(u.total_cost_usd) DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top tenants: %w", err)
	}
	defer rows.Close()

	var tenants []TenantUsage
	for rows.Next() {
		var row TenantUsage
		if err := rows.Scan(&row.TenantID, &row.TenantName, &row.Tokens, &row.CostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan top tenant: %w", err)
		}
		tenants = append(tenants, row)
	}

	return tenants, nil
}
