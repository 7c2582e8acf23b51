// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRepository implements Repository in memory. Cost queries are answered
// from queues in call order since each service method issues its windows in
// a fixed sequence.
type MockRepository struct {
	byModel     []ModelUsage
	byFeature   []FeatureUsage
	daily       []DailyUsage
	dailyModels map[string][]ModelUsage
	topTenants  []TenantUsage

	costQueue      []float64
	tenantCostQue  []map[string]float64
	tenantWindows  [][2]time.Time
	overviewWindow [2]time.Time

	err error
}

func (m *MockRepository) TotalsByModel(ctx context.Context, start, end time.Time, tenantID *string) ([]ModelUsage, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.overviewWindow = [2]time.Time{start, end}
	return m.byModel, nil
}

func (m *MockRepository) TotalsByFeature(ctx context.Context, start, end time.Time, tenantID *string) ([]FeatureUsage, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byFeature, nil
}

func (m *MockRepository) DailyTotals(ctx context.Context, start, end time.Time, tenantID *string) ([]DailyUsage, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.daily, nil
}

func (m *MockRepository) DailyModelTotals(ctx context.Context, start, end time.Time, tenantID *string) (map[string][]ModelUsage, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.dailyModels, nil
}

func (m *MockRepository) CostBetween(ctx context.Context, start, end time.Time, tenantID *string) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	if len(m.costQueue) == 0 {
		return 0, nil
	}
	cost := m.costQueue[0]
	m.costQueue = m.costQueue[1:]
	return cost, nil
}

func (m *MockRepository) CostPerTenantBetween(ctx context.Context, start, end time.Time) (map[string]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.tenantWindows = append(m.tenantWindows, [2]time.Time{start, end})
	if len(m.tenantCostQue) == 0 {
		return map[string]float64{}, nil
	}
	costs := m.tenantCostQue[0]
	m.tenantCostQue = m.tenantCostQue[1:]
	return costs, nil
}

func (m *MockRepository) TopTenants(ctx context.Context, start, end time.Time, limit int) ([]TenantUsage, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.topTenants, nil
}

func newTestService(repo *MockRepository, now time.Time) *Service {
	svc := NewService(repo, nil)
	svc.now = func() time.Time { return now }
	return svc
}

func TestUsageOverview_PercentagesOfTotal(t *testing.T) {
	repo := &MockRepository{
		byModel: []ModelUsage{
			{Provider: "openai", ModelID: "gpt-4o", Tokens: 800_000, CostUSD: 7.5},
			{Provider: "anthropic", ModelID: "claude-sonnet-4", Tokens: 200_000, CostUSD: 2.5},
		},
		byFeature: []FeatureUsage{
			{Feature: "chat", Tokens: 900_000, CostUSD: 9.0},
			{Feature: "embedding", Tokens: 100_000, CostUSD: 1.0},
		},
	}
	svc := newTestService(repo, time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC))

	overview := svc.UsageOverview(context.Background(), PeriodMonth, nil)

	assert.EqualValues(t, 1_000_000, overview.TotalTokens)
	assert.InDelta(t, 10.0, overview.TotalCostUSD, 1e-9)
	assert.InDelta(t, 75, overview.ByModel[0].Percentage, 1e-9)
	assert.InDelta(t, 25, overview.ByModel[1].Percentage, 1e-9)
	assert.InDelta(t, 90, overview.ByFeature[0].Percentage, 1e-9)

	// Month window starts at the first of the month
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), repo.overviewWindow[0])
}

func TestUsageOverview_DegradesToZeroOnError(t *testing.T) {
	repo := &MockRepository{err: errors.New("connection refused")}
	svc := newTestService(repo, time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC))

	overview := svc.UsageOverview(context.Background(), PeriodToday, nil)

	assert.Zero(t, overview.TotalCostUSD)
	assert.Empty(t, overview.ByModel)
	assert.Empty(t, overview.ByFeature)
}

func TestUsageTrend_NestsModelBreakdownPerDay(t *testing.T) {
	repo := &MockRepository{
		daily: []DailyUsage{
			{Date: "2025-06-09", Tokens: 500, CostUSD: 1.0},
			{Date: "2025-06-10", Tokens: 700, CostUSD: 2.0},
		},
		dailyModels: map[string][]ModelUsage{
			"2025-06-10": {{Provider: "openai", ModelID: "gpt-4o", Tokens: 700, CostUSD: 2.0}},
		},
	}
	svc := newTestService(repo, time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC))

	trend := svc.UsageTrend(context.Background(), 7, nil)

	require.Len(t, trend.Daily, 2)
	assert.Empty(t, trend.Daily[0].ByModel)
	require.Len(t, trend.Daily[1].ByModel, 1)
	assert.Equal(t, "gpt-4o", trend.Daily[1].ByModel[0].ModelID)
}

func TestForecast_LinearExtrapolation(t *testing.T) {
	// $30 over the first 10 days of a 30-day month
	repo := &MockRepository{costQueue: []float64{30, 10, 10}}
	svc := newTestService(repo, time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC))

	forecast := svc.Forecast(context.Background(), nil)

	assert.InDelta(t, 30, forecast.CurrentMonthUSD, 1e-9)
	assert.InDelta(t, 3, forecast.DailyAverageUSD, 1e-9)
	assert.InDelta(t, 90, forecast.ProjectedMonthlyUSD, 1e-9)
	assert.Equal(t, 10, forecast.DaysPassed)
	assert.Equal(t, 30, forecast.DaysInMonth)
	assert.Equal(t, ConfidenceMedium, forecast.Confidence)
	assert.Equal(t, TrendStable, forecast.Trend)
}

func TestForecast_ConfidenceTiers(t *testing.T) {
	tests := []struct {
		day  int
		want ConfidenceLevel
	}{
		{1, ConfidenceLow},
		{6, ConfidenceLow},
		{7, ConfidenceMedium},
		{19, ConfidenceMedium},
		{20, ConfidenceHigh},
		{28, ConfidenceHigh},
	}

	for _, tt := range tests {
		repo := &MockRepository{costQueue: []float64{10, 5, 5}}
		svc := newTestService(repo, time.Date(2025, 6, tt.day, 12, 0, 0, 0, time.UTC))

		assert.Equal(t, tt.want, svc.Forecast(context.Background(), nil).Confidence, "day %d", tt.day)
	}
}

func TestForecast_TrendClassification(t *testing.T) {
	tests := []struct {
		name     string
		recent   float64
		previous float64
		want     TrendDirection
	}{
		{"well above +10%", 15, 10, TrendIncreasing},
		{"exactly +10% is stable", 11, 10, TrendStable},
		{"just above +10%", 11.01, 10, TrendIncreasing},
		{"exactly -10% is stable", 9, 10, TrendStable},
		{"just below -10%", 8.99, 10, TrendDecreasing},
		{"zero previous period is stable", 50, 0, TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockRepository{costQueue: []float64{100, tt.recent, tt.previous}}
			svc := newTestService(repo, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

			assert.Equal(t, tt.want, svc.Forecast(context.Background(), nil).Trend)
		})
	}
}

func TestForecast_DegradesOnError(t *testing.T) {
	repo := &MockRepository{err: errors.New("timeout")}
	svc := newTestService(repo, time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC))

	forecast := svc.Forecast(context.Background(), nil)

	assert.Zero(t, forecast.CurrentMonthUSD)
	assert.Zero(t, forecast.ProjectedMonthlyUSD)
	assert.Equal(t, TrendStable, forecast.Trend)
}

func TestDetectAnomalies_ZeroYesterdayIsNeverFlagged(t *testing.T) {
	repo := &MockRepository{
		tenantCostQue: []map[string]float64{
			{"tenant-a": 25, "tenant-b": 50, "tenant-c": 21, "tenant-d": 5}, // today so far
			{"tenant-a": 10, "tenant-c": 10, "tenant-d": 10},               // same window yesterday
		},
	}
	svc := newTestService(repo, time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC))

	anomalies := svc.DetectAnomalies(context.Background(), 2.0)

	// tenant-b spent $50 from $0 but has no meaningful ratio; tenant-d is
	// below the multiplier
	require.Len(t, anomalies, 2)
	assert.Equal(t, "tenant-a", anomalies[0].TenantID)
	assert.InDelta(t, 2.5, anomalies[0].Ratio, 1e-9)
	assert.Equal(t, "tenant-c", anomalies[1].TenantID)
	assert.InDelta(t, 2.1, anomalies[1].Ratio, 1e-9)
}

func TestDetectAnomalies_ComparesSameElapsedWindow(t *testing.T) {
	repo := &MockRepository{}
	svc := newTestService(repo, time.Date(2025, 6, 10, 18, 30, 0, 0, time.UTC))

	svc.DetectAnomalies(context.Background(), 0)

	require.Len(t, repo.tenantWindows, 2)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), repo.tenantWindows[0][0])
	assert.Equal(t, time.Date(2025, 6, 10, 18, 30, 0, 0, time.UTC), repo.tenantWindows[0][1])
	assert.Equal(t, time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), repo.tenantWindows[1][0])
	assert.Equal(t, time.Date(2025, 6, 9, 18, 30, 0, 0, time.UTC), repo.tenantWindows[1][1])
}

func TestTopTenants_DegradesToEmptyOnError(t *testing.T) {
	repo := &MockRepository{err: errors.New("timeout")}
	svc := newTestService(repo, time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC))

	assert.Empty(t, svc.TopTenants(context.Background(), PeriodMonth, 10))
	assert.Empty(t, svc.DetectAnomalies(context.Background(), 2.0))
}
