// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package latency

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockRepository implements Repository in memory for service-level tests.
// Rollups and thresholds are keyed by the same natural keys the Postgres
// upserts use, so idempotence behaves the same way.
type MockRepository struct {
	mu sync.Mutex

	records    []LatencyRecord
	rollups    map[string]Rollup
	thresholds map[string]ThresholdConfig

	insertErr     error
	listErr       error
	deleteErr     error
	statsErr      error
	breakdownErr  error
	trendErr      error
	failRollups   map[string]bool
	thresholdErrs map[string]error

	statsQueue    []RealtimeStats
	breakdown     LatencyBreakdown
	trendPoints   []TrendPoint
	slowChatbots  []SlowChatbot
	statsCalls    int
	listedWindows [][2]time.Time
	deleteCutoff  time.Time
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		rollups:       make(map[string]Rollup),
		thresholds:    make(map[string]ThresholdConfig),
		failRollups:   make(map[string]bool),
		thresholdErrs: make(map[string]error),
	}
}

func rollupKey(tenantID string, chatbotID *string, period PeriodType, start time.Time) string {
	chatbot := ""
	if chatbotID != nil {
		chatbot = *chatbotID
	}
	return fmt.Sprintf("%s|%s|%s|%s", tenantID, chatbot, period, start.Format(time.RFC3339))
}

func scopeKey(tenantID, chatbotID *string) string {
	tenant, chatbot := "", ""
	if tenantID != nil {
		tenant = *tenantID
	}
	if chatbotID != nil {
		chatbot = *chatbotID
	}
	return tenant + "|" + chatbot
}

func (m *MockRepository) InsertLatency(ctx context.Context, record *LatencyRecord) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *record)
	return nil
}

func (m *MockRepository) ListRecordsInWindow(ctx context.Context, start, end time.Time) ([]LatencyRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listedWindows = append(m.listedWindows, [2]time.Time{start, end})

	var out []LatencyRecord
	for _, record := range m.records {
		if !record.CreatedAt.Before(start) && record.CreatedAt.Before(end) {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *MockRepository) DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCutoff = cutoff

	var kept []LatencyRecord
	var deleted int64
	for _, record := range m.records {
		if record.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, record)
	}
	m.records = kept
	return deleted, nil
}

func (m *MockRepository) RealtimeStats(ctx context.Context, f Filter, start, end time.Time) (RealtimeStats, error) {
	if m.statsErr != nil {
		return RealtimeStats{}, m.statsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statsCalls++
	if len(m.statsQueue) == 0 {
		return RealtimeStats{}, nil
	}
	stats := m.statsQueue[0]
	m.statsQueue = m.statsQueue[1:]
	return stats, nil
}

func (m *MockRepository) RealtimeTrend(ctx context.Context, f Filter, start time.Time) ([]TrendPoint, error) {
	if m.trendErr != nil {
		return nil, m.trendErr
	}
	return m.trendPoints, nil
}

func (m *MockRepository) Breakdown(ctx context.Context, f Filter, start, end time.Time) (LatencyBreakdown, error) {
	if m.breakdownErr != nil {
		return LatencyBreakdown{}, m.breakdownErr
	}
	return m.breakdown, nil
}

func (m *MockRepository) TopSlowChatbots(ctx context.Context, limit int, start, end time.Time) ([]SlowChatbot, error) {
	if m.trendErr != nil {
		return nil, m.trendErr
	}
	return m.slowChatbots, nil
}

func (m *MockRepository) UpsertRollup(ctx context.Context, rollup *Rollup) error {
	key := rollupKey(rollup.TenantID, rollup.ChatbotID, rollup.PeriodType, rollup.PeriodStart)
	if m.failRollups[key] {
		return fmt.Errorf("upsert failed for %s", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollups[key] = *rollup
	return nil
}

func (m *MockRepository) TrendFromRollups(ctx context.Context, period PeriodType, limit int, f Filter) ([]TrendPoint, error) {
	if m.trendErr != nil {
		return nil, m.trendErr
	}
	return m.trendPoints, nil
}

func (m *MockRepository) GetThreshold(ctx context.Context, tenantID, chatbotID *string) (*ThresholdConfig, error) {
	key := scopeKey(tenantID, chatbotID)
	if err := m.thresholdErrs[key]; err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.thresholds[key]; ok {
		return &cfg, nil
	}
	return nil, nil
}

func (m *MockRepository) UpsertThreshold(ctx context.Context, cfg ThresholdConfig, tenantID, chatbotID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds[scopeKey(tenantID, chatbotID)] = cfg
	return nil
}

func (m *MockRepository) Ping(ctx context.Context) error { return nil }
