// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package latency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"chatlens/platform/shared/logger"
)

// realtimeWindow is the rolling window for realtime statistics
const realtimeWindow = time.Hour

// Stats answers the dashboard latency queries. Every read degrades to a
// zeroed result after logging: an observability query must never crash the
// dashboard that displays it.
type Stats struct {
	repo     Repository
	cache    *redis.Client
	cacheTTL time.Duration
	log      *logger.Logger
	now      func() time.Time
}

// NewStats creates a latency statistics engine. cache may be nil; when set,
// hot realtime queries are served from Redis for cacheTTL and every Redis
// failure falls through to the database.
func NewStats(repo Repository, cache *redis.Client, cacheTTL time.Duration, log *logger.Logger) *Stats {
	if log == nil {
		log = logger.New("latency")
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Stats{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log,
		now:      time.Now,
	}
}

// RecordLatency appends one raw latency measurement. Best-effort: failures
// are logged and swallowed so the request pipeline that produced the
// measurement is never broken by telemetry.
func (s *Stats) RecordLatency(ctx context.Context, event LatencyEvent) {
	if err := event.Validate(); err != nil {
		latencyRecordFailures.Inc()
		s.log.Warn(event.TenantID, "Dropping invalid latency event", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	record := &LatencyRecord{
		ID:         uuid.NewString(),
		TenantID:   event.TenantID,
		ChatbotID:  event.ChatbotID,
		Channel:    event.Channel,
		TotalMs:    event.TotalMs,
		LLMMs:      event.LLMMs,
		SearchMs:   event.SearchMs,
		RewriteMs:  event.RewriteMs,
		CacheHit:   event.CacheHit,
		ChunksUsed: event.ChunksUsed,
		CreatedAt:  s.now().UTC(),
	}

	if err := s.repo.InsertLatency(ctx, record); err != nil {
		latencyRecordFailures.Inc()
		s.log.ErrorErr(event.TenantID, "Failed to record latency", err, map[string]interface{}{
			"channel":  event.Channel,
			"total_ms": event.TotalMs,
		})
	}
}

// Realtime returns statistics over the last rolling hour of raw records
func (s *Stats) Realtime(ctx context.Context, f Filter) RealtimeStats {
	if cached, ok := s.cachedRealtime(ctx, f); ok {
		return cached
	}

	end := s.now().UTC()
	stats, err := s.repo.RealtimeStats(ctx, f, end.Add(-realtimeWindow), end)
	if err != nil {
		s.log.ErrorErr(f.TenantID, "Failed to query realtime stats", err, nil)
		return RealtimeStats{}
	}

	s.storeRealtime(ctx, f, stats)
	return stats
}

// PerformanceOverview is the realtime stats plus percentage change against
// the same rolling window 24 hours earlier. A zero denominator yields 0%
// change, not an error.
func (s *Stats) PerformanceOverview(ctx context.Context, f Filter) PerformanceOverview {
	end := s.now().UTC()
	current, err := s.repo.RealtimeStats(ctx, f, end.Add(-realtimeWindow), end)
	if err != nil {
		s.log.ErrorErr(f.TenantID, "Failed to query performance overview", err, nil)
		return PerformanceOverview{}
	}

	prevEnd := end.Add(-24 * time.Hour)
	previous, err := s.repo.RealtimeStats(ctx, f, prevEnd.Add(-realtimeWindow), prevEnd)
	if err != nil {
		s.log.ErrorErr(f.TenantID, "Failed to query comparison window", err, nil)
		previous = RealtimeStats{}
	}

	return PerformanceOverview{
		RealtimeStats: current,
		AvgChangePct:  pctChange(current.AvgMs, previous.AvgMs),
		P95ChangePct:  pctChange(current.P95Ms, previous.P95Ms),
	}
}

// ResponseTimeTrend reads pre-computed rollup rows, newest first
func (s *Stats) ResponseTimeTrend(ctx context.Context, period PeriodType, limit int, f Filter) []TrendPoint {
	if !period.Valid() {
		period = PeriodHourly
	}
	if limit <= 0 || limit > 1000 {
		limit = 24
	}

	points, err := s.repo.TrendFromRollups(ctx, period, limit, f)
	if err != nil {
		s.log.ErrorErr(f.TenantID, "Failed to query rollup trend", err, map[string]interface{}{
			"period": string(period),
		})
		return []TrendPoint{}
	}

	return points
}

// RealtimeTrend aggregates raw records by hour on demand, for windows the
// rollup job has not covered yet
func (s *Stats) RealtimeTrend(ctx context.Context, hours int, f Filter) []TrendPoint {
	if hours <= 0 || hours > 168 {
		hours = 24
	}

	start := s.now().UTC().Add(-time.Duration(hours) * time.Hour)
	points, err := s.repo.RealtimeTrend(ctx, f, start)
	if err != nil {
		s.log.ErrorErr(f.TenantID, "Failed to query realtime trend", err, nil)
		return []TrendPoint{}
	}

	return points
}

// Breakdown returns per-stage latency over the last rolling hour, cache hits
// excluded. The "other" bucket is the residual of the total after the
// measured stages, clamped at zero since measurement noise can push the
// stage sum past the total.
func (s *Stats) Breakdown(ctx context.Context, f Filter) LatencyBreakdown {
	end := s.now().UTC()
	b, err := s.repo.Breakdown(ctx, f, end.Add(-realtimeWindow), end)
	if err != nil {
		s.log.ErrorErr(f.TenantID, "Failed to query latency breakdown", err, nil)
		return LatencyBreakdown{}
	}

	other := b.TotalAvgMs - b.LLM.AvgMs - b.Search.AvgMs - b.Rewrite.AvgMs
	if other < 0 {
		other = 0
	}
	b.OtherAvgMs = other

	return b
}

// TopSlowChatbots ranks chatbots by p95 over the last rolling hour
func (s *Stats) TopSlowChatbots(ctx context.Context, limit int) []SlowChatbot {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	end := s.now().UTC()
	rows, err := s.repo.TopSlowChatbots(ctx, limit, end.Add(-realtimeWindow), end)
	if err != nil {
		s.log.ErrorErr("", "Failed to query slow chatbots", err, nil)
		return []SlowChatbot{}
	}

	return rows
}

// IsHealthy checks if the backing store is reachable
func (s *Stats) IsHealthy(ctx context.Context) bool {
	return s.repo.Ping(ctx) == nil
}

func (s *Stats) cachedRealtime(ctx context.Context, f Filter) (RealtimeStats, bool) {
	if s.cache == nil {
		return RealtimeStats{}, false
	}

	payload, err := s.cache.Get(ctx, realtimeCacheKey(f)).Result()
	if err != nil {
		return RealtimeStats{}, false
	}

	var stats RealtimeStats
	if err := json.Unmarshal([]byte(payload), &stats); err != nil {
		return RealtimeStats{}, false
	}

	return stats, true
}

func (s *Stats) storeRealtime(ctx context.Context, f Filter, stats RealtimeStats) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		return
	}

	// Fail open: a Redis outage only costs the cache, never the query
	_ = s.cache.Set(ctx, realtimeCacheKey(f), payload, s.cacheTTL).Err()
}

func realtimeCacheKey(f Filter) string {
	return fmt.Sprintf("chatlens:latency:realtime:%s:%s", f.TenantID, f.ChatbotID)
}

// pctChange returns the percentage change from previous to current, 0 when
// the previous value is zero
func pctChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}
