// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package latency

import (
	"context"
	"sort"
	"time"

	"chatlens/platform/shared/logger"
)

// defaultRetentionDays bounds the raw latency log when no override is given
const defaultRetentionDays = 30

// Aggregator runs the scheduled rollup and retention jobs. Both rollup
// procedures are idempotent: re-running the same period overwrites the same
// natural-key rows with identical values.
type Aggregator struct {
	repo Repository
	log  *logger.Logger
	now  func() time.Time
}

// NewAggregator creates a rollup aggregator
func NewAggregator(repo Repository, log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.New("latency-rollup")
	}
	return &Aggregator{repo: repo, log: log, now: time.Now}
}

// AggregateHourly rolls up the previous full clock hour per (tenant, chatbot)
// and per tenant-wide group. A failing group is counted and logged but does
// not abort the remaining groups.
func (a *Aggregator) AggregateHourly(ctx context.Context) Summary {
	end := a.now().UTC().Truncate(time.Hour)
	start := end.Add(-time.Hour)

	return a.aggregate(ctx, PeriodHourly, start, end)
}

// AggregateDaily rolls up the previous full UTC day. It aggregates raw
// records directly rather than summing hourly rollups: percentiles do not
// compose by addition, so daily percentiles must be recomputed from raw data.
func (a *Aggregator) AggregateDaily(ctx context.Context) Summary {
	end := a.now().UTC().Truncate(24 * time.Hour)
	start := end.Add(-24 * time.Hour)

	return a.aggregate(ctx, PeriodDaily, start, end)
}

// CleanupOldRecords purges raw latency records older than the retention
// window. Rollup rows are untouched so trend history survives.
func (a *Aggregator) CleanupOldRecords(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}

	cutoff := a.now().UTC().AddDate(0, 0, -retentionDays)
	deleted, err := a.repo.DeleteRecordsBefore(ctx, cutoff)
	if err != nil {
		a.log.ErrorErr("", "Latency cleanup failed", err, map[string]interface{}{
			"retention_days": retentionDays,
		})
		return 0, err
	}

	latencyCleanupDeleted.Add(float64(deleted))
	a.log.Info("", "Latency cleanup complete", map[string]interface{}{
		"deleted":        deleted,
		"retention_days": retentionDays,
	})

	return deleted, nil
}

func (a *Aggregator) aggregate(ctx context.Context, period PeriodType, start, end time.Time) Summary {
	records, err := a.repo.ListRecordsInWindow(ctx, start, end)
	if err != nil {
		a.log.ErrorErr("", "Failed to load records for rollup", err, map[string]interface{}{
			"period":       string(period),
			"period_start": start,
		})
		return Summary{Errors: 1}
	}
	if len(records) == 0 {
		return Summary{}
	}

	var summary Summary
	for _, rollup := range buildRollups(records, period, start) {
		latencyRollupGroups.WithLabelValues(string(period)).Inc()
		if err := a.repo.UpsertRollup(ctx, rollup); err != nil {
			summary.Errors++
			latencyRollupErrors.WithLabelValues(string(period)).Inc()
			a.log.ErrorErr(rollup.TenantID, "Failed to upsert rollup group", err, map[string]interface{}{
				"period":       string(period),
				"period_start": start,
			})
			continue
		}
		summary.Processed++
	}

	a.log.Info("", "Rollup run complete", map[string]interface{}{
		"period":    string(period),
		"processed": summary.Processed,
		"errors":    summary.Errors,
	})

	return summary
}

// buildRollups groups raw records by (tenant, chatbot) and by tenant alone
// (nil chatbot, the tenant-wide rollup) and computes each group's aggregate
func buildRollups(records []LatencyRecord, period PeriodType, periodStart time.Time) []*Rollup {
	type groupKey struct {
		tenantID  string
		chatbotID string
		tenantAll bool
	}

	groups := make(map[groupKey][]LatencyRecord)
	for _, record := range records {
		tenantWide := groupKey{tenantID: record.TenantID, tenantAll: true}
		groups[tenantWide] = append(groups[tenantWide], record)

		if record.ChatbotID != nil {
			perBot := groupKey{tenantID: record.TenantID, chatbotID: *record.ChatbotID}
			groups[perBot] = append(groups[perBot], record)
		}
	}

	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	// Deterministic order keeps re-runs and tests stable
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].tenantID != keys[j].tenantID {
			return keys[i].tenantID < keys[j].tenantID
		}
		if keys[i].tenantAll != keys[j].tenantAll {
			return keys[i].tenantAll
		}
		return keys[i].chatbotID < keys[j].chatbotID
	})

	rollups := make([]*Rollup, 0, len(keys))
	for _, key := range keys {
		rollup := computeRollup(groups[key])
		rollup.TenantID = key.tenantID
		if !key.tenantAll {
			chatbotID := key.chatbotID
			rollup.ChatbotID = &chatbotID
		}
		rollup.PeriodType = period
		rollup.PeriodStart = periodStart
		rollups = append(rollups, rollup)
	}

	return rollups
}

// computeRollup aggregates one group using the same continuous-interpolation
// percentile definition the realtime SQL queries use
func computeRollup(records []LatencyRecord) *Rollup {
	totals := make([]float64, 0, len(records))
	var llm, search []float64
	var cacheHits int

	for _, record := range records {
		totals = append(totals, float64(record.TotalMs))
		if record.CacheHit {
			cacheHits++
		}
		if record.LLMMs != nil {
			llm = append(llm, float64(*record.LLMMs))
		}
		if record.SearchMs != nil {
			search = append(search, float64(*record.SearchMs))
		}
	}

	return &Rollup{
		RequestCount: len(records),
		CacheHits:    cacheHits,
		AvgMs:        Mean(totals),
		P50Ms:        Percentile(totals, 0.50),
		P95Ms:        Percentile(totals, 0.95),
		P99Ms:        Percentile(totals, 0.99),
		MinMs:        Min(totals),
		MaxMs:        Max(totals),
		LLMAvgMs:     Mean(llm),
		LLMP95Ms:     Percentile(llm, 0.95),
		SearchAvgMs:  Mean(search),
		SearchP95Ms:  Percentile(search, 0.95),
	}
}
