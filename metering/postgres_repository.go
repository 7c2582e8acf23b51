// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package metering

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InsertUsageWithBudget writes the usage record and increments the tenant's
// current-month accrual inside one transaction. The upsert uses an atomic
// `current_month_usd + EXCLUDED.current_month_usd` add so concurrent
// transactions for the same tenant serialize at the row, not in application
// code.
func (r *PostgresRepository) InsertUsageWithBudget(ctx context.Context, record *UsageRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin usage transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insertQuery := `
		INSERT INTO usage_records (
			id, tenant_id, chatbot_id, conversation_id, provider, model_id,
			feature, tokens_in, tokens_out, tokens_total,
			input_cost_usd, output_cost_usd, total_cost_usd, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = tx.ExecContext(ctx, insertQuery,
		record.ID, record.TenantID, record.ChatbotID, record.ConversationID,
		record.Provider, record.ModelID, record.Feature,
		record.TokensIn, record.TokensOut, record.TokensTotal,
		record.Cost.InputUSD, record.Cost.OutputUSD, record.Cost.TotalUSD,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}

	upsertQuery := `
		INSERT INTO tenant_budget_status (tenant_id, current_month_usd, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id)
		DO UPDATE SET
			current_month_usd = tenant_budget_status.current_month_usd + EXCLUDED.current_month_usd,
			updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, upsertQuery, record.TenantID, record.Cost.TotalUSD, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert tenant budget: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit usage transaction: %w", err)
	}

	return nil
}

// CurrentMonthUsage returns the tenant's accrued cost this month
func (r *PostgresRepository) CurrentMonthUsage(ctx context.Context, tenantID string) (float64, error) {
	query := `
		SELECT COALESCE(
			(SELECT current_month_usd FROM tenant_budget_status WHERE tenant_id = $1), 0
		)
	`

	var total float64
	if err := r.db.QueryRowContext(ctx, query, tenantID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to get current month usage: %w", err)
	}

	return total, nil
}

// ResetMonthlyUsage zeroes every tenant's current-month counter
func (r *PostgresRepository) ResetMonthlyUsage(ctx context.Context) (int64, error) {
	query := `UPDATE tenant_budget_status SET current_month_usd = 0, updated_at = $1`

	result, err := r.db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reset monthly usage: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}

	return rows, nil
}

// ListUsageRecords lists usage records with filtering and pagination
func (r *PostgresRepository) ListUsageRecords(ctx context.Context, opts UsageQueryOptions) ([]UsageRecord, int, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	if opts.TenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIndex))
		args = append(args, opts.TenantID)
		argIndex++
	}
	if opts.Provider != "" {
		conditions = append(conditions, fmt.Sprintf("provider = $%d", argIndex))
		args = append(args, opts.Provider)
		argIndex++
	}
	if opts.ModelID != "" {
		conditions = append(conditions, fmt.Sprintf("model_id = $%d", argIndex))
		args = append(args, opts.ModelID)
		argIndex++
	}
	if !opts.StartTime.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, opts.StartTime)
		argIndex++
	}
	if !opts.EndTime.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIndex))
		args = append(args, opts.EndTime)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM usage_records %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count usage records: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT id, tenant_id, chatbot_id, conversation_id, provider, model_id,
			   feature, tokens_in, tokens_out, tokens_total,
			   input_cost_usd, output_cost_usd, total_cost_usd, created_at
		FROM usage_records
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argIndex, argIndex+1)

	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list usage records: %w", err)
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		var record UsageRecord
		var chatbotID, conversationID sql.NullString

		if err := rows.Scan(
			&record.ID, &record.TenantID, &chatbotID, &conversationID,
			&record.Provider, &record.ModelID, &record.Feature,
			&record.TokensIn, &record.TokensOut, &record.TokensTotal,
			&record.Cost.InputUSD, &record.Cost.OutputUSD, &record.Cost.TotalUSD,
			&record.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan usage record: %w", err)
		}

		if chatbotID.Valid {
			record.ChatbotID = &chatbotID.String
		}
		if conversationID.Valid {
			record.ConversationID = &conversationID.String
		}

		records = append(records, record)
	}

	return records, total, nil
}

// ListActivePrices loads all active price catalog rows
func (r *PostgresRepository) ListActivePrices(ctx context.Context) ([]ModelPrice, error) {
	query := `
		SELECT provider, model_id, display_name, input_per_mtok, output_per_mtok,
			   is_embedding, active
		FROM model_prices
		WHERE active = true
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list model prices: %w", err)
	}
	defer rows.Close()

	var prices []ModelPrice
	for rows.Next() {
		var p ModelPrice
		if err := rows.Scan(
			&p.Provider, &p.ModelID, &p.DisplayName,
			&p.InputPerMTok, &p.OutputPerMTok, &p.IsEmbedding, &p.Active,
		); err != nil {
			return nil, fmt.Errorf("failed to scan model price: %w", err)
		}
		prices = append(prices, p)
	}

	return prices, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
