// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package latency

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PostgresRepository implements Repository using PostgreSQL. Percentiles on
// the realtime paths are delegated to percentile_cont, which interpolates
// linearly between order statistics.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InsertLatency appends one raw latency record
func (r *PostgresRepository) InsertLatency(ctx context.Context, record *LatencyRecord) error {
	query := `
		INSERT INTO latency_records (
			id, tenant_id, chatbot_id, channel, total_ms,
			llm_ms, search_ms, rewrite_ms, cache_hit, chunks_used, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.TenantID, record.ChatbotID, record.Channel, record.TotalMs,
		record.LLMMs, record.SearchMs, record.RewriteMs,
		record.CacheHit, record.ChunksUsed, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert latency record: %w", err)
	}

	return nil
}

// ListRecordsInWindow loads the raw records for [start, end) for aggregation
func (r *PostgresRepository) ListRecordsInWindow(ctx context.Context, start, end time.Time) ([]LatencyRecord, error) {
	query := `
		SELECT id, tenant_id, chatbot_id, channel, total_ms,
			   llm_ms, search_ms, rewrite_ms, cache_hit, chunks_used, created_at
		FROM latency_records
		WHERE created_at >= $1 AND created_at < $2
	`

	rows, err := r.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list latency records: %w", err)
	}
	defer rows.Close()

	var records []LatencyRecord
	for rows.Next() {
		var record LatencyRecord
		var chatbotID sql.NullString
		var llmMs, searchMs, rewriteMs sql.NullInt64

		if err := rows.Scan(
			&record.ID, &record.TenantID, &chatbotID, &record.Channel, &record.TotalMs,
			&llmMs, &searchMs, &rewriteMs, &record.CacheHit, &record.ChunksUsed, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan latency record: %w", err)
		}

		if chatbotID.Valid {
			record.ChatbotID = &chatbotID.String
		}
		record.LLMMs = nullableInt(llmMs)
		record.SearchMs = nullableInt(searchMs)
		record.RewriteMs = nullableInt(rewriteMs)

		records = append(records, record)
	}

	return records, nil
}

// DeleteRecordsBefore purges raw records older than the cutoff. Rollups are
// never touched so historical trends survive raw cleanup.
func (r *PostgresRepository) DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM latency_records WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old latency records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check deleted rows: %w", err)
	}

	return deleted, nil
}

// RealtimeStats computes count, cache-hit ratio and continuous percentiles
// over raw records in [start, end)
func (r *PostgresRepository) RealtimeStats(ctx context.Context, f Filter, start, end time.Time) (RealtimeStats, error) {
	where, args := windowConditions(f, start, end)

	query := fmt.Sprintf(`
		SELECT COUNT(*),
			   COALESCE(AVG(CASE WHEN cache_hit THEN 1.0 ELSE 0.0 END), 0),
			   COALESCE(AVG(total_ms), 0),
			   COALESCE(percentile_cont(0.50) WITHIN GROUP (ORDER BY total_ms), 0),
			   COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY total_ms), 0),
			   COALESCE(percentile_cont(0.99) WITHIN GROUP (ORDER BY total_ms), 0)
		FROM latency_records
		%s
	`, where)

	var stats RealtimeStats
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.RequestCount, &stats.CacheHitRatio,
		&stats.AvgMs, &stats.P50Ms, &stats.P95Ms, &stats.P99Ms,
	)
	if err != nil {
		return RealtimeStats{}, fmt.Errorf("failed to query realtime stats: %w", err)
	}

	return stats, nil
}

// RealtimeTrend aggregates raw records by hour-truncated timestamp, for
// windows the rollup job has not covered yet
func (r *PostgresRepository) RealtimeTrend(ctx context.Context, f Filter, start time.Time) ([]TrendPoint, error) {
	conditions := []string{"created_at >= $1"}
	args := []interface{}{start}
	argIndex := 2

	if f.TenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIndex))
		args = append(args, f.TenantID)
		argIndex++
	}
	if f.ChatbotID != "" {
		conditions = append(conditions, fmt.Sprintf("chatbot_id = $%d", argIndex))
		args = append(args, f.ChatbotID)
	}

	query := fmt.Sprintf(`
		SELECT date_trunc('hour', created_at) AS bucket,
			   COUNT(*),
			   COALESCE(AVG(total_ms), 0),
			   COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY total_ms), 0)
		FROM latency_records
		WHERE %s
		GROUP BY bucket
		ORDER BY bucket DESC
	`, strings.Join(conditions, " AND "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query realtime trend: %w", err)
	}
	defer rows.Close()

	var points []TrendPoint
	for rows.Next() {
		var point TrendPoint
		if err := rows.Scan(&point.PeriodStart, &point.RequestCount, &point.AvgMs, &point.P95Ms); err != nil {
			return nil, fmt.Errorf("failed to scan trend point: %w", err)
		}
		points = append(points, point)
	}

	return points, nil
}

// Breakdown computes per-stage avg/p95 over [start, end), excluding cache
// hits since those skip the LLM/search/rewrite stages and would dilute the
// averages. The residual "other" bucket is computed by the caller.
func (r *PostgresRepository) Breakdown(ctx context.Context, f Filter, start, end time.Time) (LatencyBreakdown, error) {
	where, args := windowConditions(f, start, end)

	query := fmt.Sprintf(`
		SELECT COUNT(*),
			   COALESCE(AVG(total_ms), 0),
			   COALESCE(AVG(llm_ms), 0),
			   COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY llm_ms), 0),
			   COALESCE(AVG(search_ms), 0),
			   COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY search_ms), 0),
			   COALESCE(AVG(rewrite_ms), 0),
			   COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY rewrite_ms), 0)
		FROM latency_records
		%s AND cache_hit = false
	`, where)

	var b LatencyBreakdown
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&b.SampleCount, &b.TotalAvgMs,
		&b.LLM.AvgMs, &b.LLM.P95Ms,
		&b.Search.AvgMs, &b.Search.P95Ms,
		&b.Rewrite.AvgMs, &b.Rewrite.P95Ms,
	)
	if err != nil {
		return LatencyBreakdown{}, fmt.Errorf("failed to query latency breakdown: %w", err)
	}

	return b, nil
}

// TopSlowChatbots ranks chatbots by p95 descending over [start, end),
// resolving tenant and chatbot display names
func (r *PostgresRepository) TopSlowChatbots(ctx context.Context, limit int, start, end time.Time) ([]SlowChatbot, error) {
	query := `
		SELECT l.tenant_id,
			   COALESCE(t.name, l.tenant_id),
			   l.chatbot_id,
			   COALESCE(c.name, l.chatbot_id),
			   COUNT(*),
			   COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY l.total_ms), 0) AS p95_ms
		FROM latency_records l
		LEFT JOIN tenants t ON t.id = l.tenant_id
		LEFT JOIN chatbots c ON c.id = l.chatbot_id
		WHERE l.created_at >= $1 AND l.created_at < $2 AND l.chatbot_id IS NOT NULL
		GROUP BY l.tenant_id, t.name, l.chatbot_id, c.name
		ORDER BY p95_ms DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query slow chatbots: %w", err)
	}
	defer rows.Close()

	var result []SlowChatbot
	for rows.Next() {
		var row SlowChatbot
		if err := rows.Scan(
			&row.TenantID, &row.TenantName, &row.ChatbotID, &row.ChatbotName,
			&row.RequestCount, &row.P95Ms,
		); err != nil {
			return nil, fmt.Errorf("failed to scan slow chatbot row: %w", err)
		}
		result = append(result, row)
	}

	return result, nil
}

// UpsertRollup writes one rollup row keyed by its natural key. Re-running
// the same period overwrites in place, never duplicates. The conflict target
// matches the expression index on
// (tenant_id, COALESCE(chatbot_id, ''), period_type, period_start).
func (r *PostgresRepository) UpsertRollup(ctx context.Context, rollup *Rollup) error {
	query := `
		INSERT INTO latency_rollups (
			tenant_id, chatbot_id, period_type, period_start,
			request_count, cache_hits,
			avg_ms, p50_ms, p95_ms, p99_ms, min_ms, max_ms,
			llm_avg_ms, llm_p95_ms, search_avg_ms, search_p95_ms, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (tenant_id, COALESCE(chatbot_id, ''), period_type, period_start)
		DO UPDATE SET
			request_count = EXCLUDED.request_count,
			cache_hits = EXCLUDED.cache_hits,
			avg_ms = EXCLUDED.avg_ms,
			p50_ms = EXCLUDED.p50_ms,
			p95_ms = EXCLUDED.p95_ms,
			p99_ms = EXCLUDED.p99_ms,
			min_ms = EXCLUDED.min_ms,
			max_ms = EXCLUDED.max_ms,
			llm_avg_ms = EXCLUDED.llm_avg_ms,
			llm_p95_ms = EXCLUDED.llm_p95_ms,
			search_avg_ms = EXCLUDED.search_avg_ms,
			search_p95_ms = EXCLUDED.search_p95_ms,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		rollup.TenantID, rollup.ChatbotID, rollup.PeriodType, rollup.PeriodStart,
		rollup.RequestCount, rollup.CacheHits,
		rollup.AvgMs, rollup.P50Ms, rollup.P95Ms, rollup.P99Ms, rollup.MinMs, rollup.MaxMs,
		rollup.LLMAvgMs, rollup.LLMP95Ms, rollup.SearchAvgMs, rollup.SearchP95Ms,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert latency rollup: %w", err)
	}

	return nil
}

// TrendFromRollups reads pre-computed rollup rows ordered by period start
// descending. With no chatbot filter the tenant-wide rows (null chatbot_id)
// are served so per-chatbot rows are not double counted.
func (r *PostgresRepository) TrendFromRollups(ctx context.Context, period PeriodType, limit int, f Filter) ([]TrendPoint, error) {
	conditions := []string{"period_type = $1"}
	args := []interface{}{string(period)}
	argIndex := 2

	if f.TenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIndex))
		args = append(args, f.TenantID)
		argIndex++
	}
	if f.ChatbotID != "" {
		conditions = append(conditions, fmt.Sprintf("chatbot_id = $%d", argIndex))
		args = append(args, f.ChatbotID)
		argIndex++
	} else {
		conditions = append(conditions, "chatbot_id IS NULL")
	}

	query := fmt.Sprintf(`
		SELECT period_start, request_count, avg_ms, p95_ms
		FROM latency_rollups
		WHERE %s
		ORDER BY period_start DESC
		LIMIT $%d
	`, strings.Join(conditions, " AND "), argIndex)

	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rollup trend: %w", err)
	}
	defer rows.Close()

	var points []TrendPoint
	for rows.Next() {
		var point TrendPoint
		if err := rows.Scan(&point.PeriodStart, &point.RequestCount, &point.AvgMs, &point.P95Ms); err != nil {
			return nil, fmt.Errorf("failed to scan rollup trend point: %w", err)
		}
		points = append(points, point)
	}

	return points, nil
}

// GetThreshold returns the threshold row for the exact (tenant, chatbot)
// scope, or nil when none is configured at that scope
func (r *PostgresRepository) GetThreshold(ctx context.Context, tenantID, chatbotID *string) (*ThresholdConfig, error) {
	query := `
		SELECT p95_threshold_ms, avg_spike_threshold, alert_enabled, cooldown_minutes
		FROM alert_thresholds
		WHERE COALESCE(tenant_id, '') = COALESCE($1, '')
		  AND COALESCE(chatbot_id, '') = COALESCE($2, '')
	`

	var cfg ThresholdConfig
	err := r.db.QueryRowContext(ctx, query, tenantID, chatbotID).Scan(
		&cfg.P95ThresholdMs, &cfg.AvgSpikeThreshold, &cfg.AlertEnabled, &cfg.CooldownMinutes,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert threshold: %w", err)
	}

	return &cfg, nil
}

// UpsertThreshold saves one threshold row per (tenant, chatbot) scope, nulls
// included in the key so the global row and scoped rows coexist
func (r *PostgresRepository) UpsertThreshold(ctx context.Context, cfg ThresholdConfig, tenantID, chatbotID *string) error {
	query := `
		INSERT INTO alert_thresholds (
			tenant_id, chatbot_id, p95_threshold_ms, avg_spike_threshold,
			alert_enabled, cooldown_minutes, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (COALESCE(tenant_id, ''), COALESCE(chatbot_id, ''))
		DO UPDATE SET
			p95_threshold_ms = EXCLUDED.p95_threshold_ms,
			avg_spike_threshold = EXCLUDED.avg_spike_threshold,
			alert_enabled = EXCLUDED.alert_enabled,
			cooldown_minutes = EXCLUDED.cooldown_minutes,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		tenantID, chatbotID,
		cfg.P95ThresholdMs, cfg.AvgSpikeThreshold, cfg.AlertEnabled, cfg.CooldownMinutes,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert alert threshold: %w", err)
	}

	return nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// windowConditions builds the WHERE clause for a [start, end) window with
// optional tenant/chatbot scoping
func windowConditions(f Filter, start, end time.Time) (string, []interface{}) {
	conditions := []string{"created_at >= $1", "created_at < $2"}
	args := []interface{}{start, end}
	argIndex := 3

	if f.TenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIndex))
		args = append(args, f.TenantID)
		argIndex++
	}
	if f.ChatbotID != "" {
		conditions = append(conditions, fmt.Sprintf("chatbot_id = $%d", argIndex))
		args = append(args, f.ChatbotID)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
