// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package latency

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func rawRecord(tenantID string, chatbotID *string, totalMs int, cacheHit bool, at time.Time) LatencyRecord {
	llm := totalMs / 2
	search := totalMs / 4
	return LatencyRecord{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		ChatbotID: chatbotID,
		Channel:   "web",
		TotalMs:   totalMs,
		LLMMs:     &llm,
		SearchMs:  &search,
		CacheHit:  cacheHit,
		CreatedAt: at,
	}
}

func newTestAggregator(repo *MockRepository, now time.Time) *Aggregator {
	agg := NewAggregator(repo, nil)
	agg.now = func() time.Time { return now }
	return agg
}

func TestAggregateHourly_WindowIsPreviousFullHour(t *testing.T) {
	repo := NewMockRepository()
	now := time.Date(2025, 6, 1, 12, 34, 56, 0, time.UTC)
	agg := newTestAggregator(repo, now)

	repo.records = append(repo.records,
		rawRecord("tenant-1", nil, 100, false, time.Date(2025, 6, 1, 11, 30, 0, 0, time.UTC)),
		// Outside the window: current partial hour and two hours ago
		rawRecord("tenant-1", nil, 100, false, time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)),
		rawRecord("tenant-1", nil, 100, false, time.Date(2025, 6, 1, 10, 59, 0, 0, time.UTC)),
	)

	summary := agg.AggregateHourly(context.Background())
	assert.Equal(t, Summary{Processed: 1}, summary)

	require.Len(t, repo.listedWindows, 1)
	assert.Equal(t, time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC), repo.listedWindows[0][0])
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), repo.listedWindows[0][1])

	rollup, ok := repo.rollups[rollupKey("tenant-1", nil, PeriodHourly, repo.listedWindows[0][0])]
	require.True(t, ok)
	assert.Equal(t, 1, rollup.RequestCount)
}

func TestAggregateHourly_GroupsPerChatbotAndTenantWide(t *testing.T) {
	repo := NewMockRepository()
	now := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	at := time.Date(2025, 6, 1, 12, 15, 0, 0, time.UTC)
	agg := newTestAggregator(repo, now)

	repo.records = append(repo.records,
		rawRecord("tenant-1", strPtr("bot-a"), 100, false, at),
		rawRecord("tenant-1", strPtr("bot-a"), 200, true, at),
		rawRecord("tenant-1", strPtr("bot-b"), 400, false, at),
	)

	summary := agg.AggregateHourly(context.Background())
	assert.Equal(t, Summary{Processed: 3}, summary)

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tenantWide := repo.rollups[rollupKey("tenant-1", nil, PeriodHourly, start)]
	assert.Equal(t, 3, tenantWide.RequestCount)
	assert.Equal(t, 1, tenantWide.CacheHits)
	assert.InDelta(t, 233.333, tenantWide.AvgMs, 0.001)
	assert.Equal(t, 100.0, tenantWide.MinMs)
	assert.Equal(t, 400.0, tenantWide.MaxMs)

	botA := repo.rollups[rollupKey("tenant-1", strPtr("bot-a"), PeriodHourly, start)]
	assert.Equal(t, 2, botA.RequestCount)
	assert.InDelta(t, 150, botA.AvgMs, 1e-9)

	botB := repo.rollups[rollupKey("tenant-1", strPtr("bot-b"), PeriodHourly, start)]
	assert.Equal(t, 1, botB.RequestCount)
}

func TestAggregateHourly_ReRunIsIdempotent(t *testing.T) {
	repo := NewMockRepository()
	now := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	at := time.Date(2025, 6, 1, 12, 15, 0, 0, time.UTC)
	agg := newTestAggregator(repo, now)

	repo.records = append(repo.records,
		rawRecord("tenant-1", strPtr("bot-a"), 100, false, at),
		rawRecord("tenant-1", strPtr("bot-a"), 300, false, at),
	)

	first := agg.AggregateHourly(context.Background())
	snapshot := make(map[string]Rollup, len(repo.rollups))
	for key, rollup := range repo.rollups {
		snapshot[key] = rollup
	}

	second := agg.AggregateHourly(context.Background())

	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, repo.rollups)
}

func TestAggregateHourly_PartialFailureIsolation(t *testing.T) {
	repo := NewMockRepository()
	now := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	at := time.Date(2025, 6, 1, 12, 15, 0, 0, time.UTC)
	agg := newTestAggregator(repo, now)

	repo.records = append(repo.records,
		rawRecord("tenant-1", strPtr("bot-a"), 100, false, at),
		rawRecord("tenant-2", strPtr("bot-c"), 200, false, at),
	)

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo.failRollups[rollupKey("tenant-1", strPtr("bot-a"), PeriodHourly, start)] = true

	summary := agg.AggregateHourly(context.Background())

	// 4 groups total: 2 tenant-wide + 2 per-chatbot, one of which fails
	assert.Equal(t, Summary{Processed: 3, Errors: 1}, summary)
	assert.Contains(t, repo.rollups, rollupKey("tenant-2", strPtr("bot-c"), PeriodHourly, start))
	assert.Contains(t, repo.rollups, rollupKey("tenant-1", nil, PeriodHourly, start))
}

func TestAggregateDaily_WindowIsPreviousFullDay(t *testing.T) {
	repo := NewMockRepository()
	now := time.Date(2025, 6, 2, 0, 30, 0, 0, time.UTC)
	agg := newTestAggregator(repo, now)

	repo.records = append(repo.records,
		rawRecord("tenant-1", nil, 100, false, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
		rawRecord("tenant-1", nil, 300, false, time.Date(2025, 6, 1, 23, 59, 59, 0, time.UTC)),
		rawRecord("tenant-1", nil, 900, false, time.Date(2025, 6, 2, 0, 1, 0, 0, time.UTC)),
	)

	summary := agg.AggregateDaily(context.Background())
	assert.Equal(t, Summary{Processed: 1}, summary)

	rollup := repo.rollups[rollupKey("tenant-1", nil, PeriodDaily, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))]
	assert.Equal(t, 2, rollup.RequestCount)
	assert.InDelta(t, 200, rollup.AvgMs, 1e-9)
}

func TestAggregate_EmptyWindowIsANoOp(t *testing.T) {
	repo := NewMockRepository()
	agg := newTestAggregator(repo, time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC))

	summary := agg.AggregateHourly(context.Background())

	assert.Equal(t, Summary{}, summary)
	assert.Empty(t, repo.rollups)
}

func TestComputeRollup_PinnedAggregates(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []LatencyRecord{
		rawRecord("tenant-1", nil, 100, false, at),
		rawRecord("tenant-1", nil, 200, true, at),
		rawRecord("tenant-1", nil, 300, false, at),
		rawRecord("tenant-1", nil, 400, false, at),
	}

	rollup := computeRollup(records)

	assert.Equal(t, 4, rollup.RequestCount)
	assert.Equal(t, 1, rollup.CacheHits)
	assert.InDelta(t, 250, rollup.AvgMs, 1e-9)
	assert.InDelta(t, 250, rollup.P50Ms, 1e-9)
	assert.InDelta(t, 385, rollup.P95Ms, 1e-9)
	assert.InDelta(t, 397, rollup.P99Ms, 1e-9)
	assert.Equal(t, 100.0, rollup.MinMs)
	assert.Equal(t, 400.0, rollup.MaxMs)
	// LLM stage is total/2 in the fixture
	assert.InDelta(t, 125, rollup.LLMAvgMs, 1e-9)
}

func TestCleanupOldRecords_RetentionBoundary(t *testing.T) {
	repo := NewMockRepository()
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	agg := newTestAggregator(repo, now)

	old := rawRecord("tenant-1", nil, 100, false, now.AddDate(0, 0, -31))
	fresh := rawRecord("tenant-1", nil, 100, false, now.AddDate(0, 0, -29))
	repo.records = append(repo.records, old, fresh)

	// Rollups must survive raw cleanup
	repo.rollups["existing"] = Rollup{TenantID: "tenant-1"}

	deleted, err := agg.CleanupOldRecords(context.Background(), 30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
	assert.Equal(t, now.AddDate(0, 0, -30), repo.deleteCutoff)

	require.Len(t, repo.records, 1)
	assert.Equal(t, fresh.ID, repo.records[0].ID)
	assert.Len(t, repo.rollups, 1)
}

func TestCleanupOldRecords_DefaultRetention(t *testing.T) {
	repo := NewMockRepository()
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	agg := newTestAggregator(repo, now)

	_, err := agg.CleanupOldRecords(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -30), repo.deleteCutoff)
}
