// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

// Package analytics answers cost dashboard queries over the usage record
// log: period overviews, daily trends, month-end forecasts, tenant rankings
// and day-over-day spend anomaly detection.
package analytics

import "time"

// Period selects the overview window
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Valid reports whether the period is a known window
func (p Period) Valid() bool {
	return p == PeriodToday || p == PeriodWeek || p == PeriodMonth
}

// ModelUsage is one model's share of a window's spend
type ModelUsage struct {
	Provider   string  `json:"provider"`
	ModelID    string  `json:"model_id"`
	Tokens     int64   `json:"tokens"`
	CostUSD    float64 `json:"cost_usd"`
	Percentage float64 `json:"percentage"`
}

// FeatureUsage is one feature type's share of a window's spend
type FeatureUsage struct {
	Feature    string  `json:"feature"`
	Tokens     int64   `json:"tokens"`
	CostUSD    float64 `json:"cost_usd"`
	Percentage float64 `json:"percentage"`
}

// UsageOverview sums a window's tokens and cost with per-model and
// per-feature breakdowns
type UsageOverview struct {
	Period       Period         `json:"period"`
	TotalTokens  int64          `json:"total_tokens"`
	TotalCostUSD float64        `json:"total_cost_usd"`
	ByModel      []ModelUsage   `json:"by_model"`
	ByFeature    []FeatureUsage `json:"by_feature"`
}

// DailyUsage is one day's totals with its per-model breakdown nested
type DailyUsage struct {
	Date    string       `json:"date"`
	Tokens  int64        `json:"tokens"`
	CostUSD float64      `json:"cost_usd"`
	ByModel []ModelUsage `json:"by_model,omitempty"`
}

// UsageTrend is a daily series over the requested span
type UsageTrend struct {
	Days  int          `json:"days"`
	Daily []DailyUsage `json:"daily"`
}

// TrendDirection classifies recent spend movement
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// ConfidenceLevel grades how much month-to-date data backs the projection
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Forecast is the linear month-end cost extrapolation
type Forecast struct {
	CurrentMonthUSD     float64         `json:"current_month_usd"`
	DailyAverageUSD     float64         `json:"daily_average_usd"`
	ProjectedMonthlyUSD float64         `json:"projected_monthly_usd"`
	DaysPassed          int             `json:"days_passed"`
	DaysInMonth         int             `json:"days_in_month"`
	Trend               TrendDirection  `json:"trend"`
	Confidence          ConfidenceLevel `json:"confidence"`
}

// TenantUsage is one row of the top-tenants ranking
type TenantUsage struct {
	TenantID   string  `json:"tenant_id"`
	TenantName string  `json:"tenant_name"`
	Tokens     int64   `json:"tokens"`
	CostUSD    float64 `json:"cost_usd"`
}

// Anomaly flags a tenant whose today-so-far spend spiked versus the same
// elapsed window yesterday
type Anomaly struct {
	TenantID     string  `json:"tenant_id"`
	YesterdayUSD float64 `json:"yesterday_usd"`
	TodayUSD     float64 `json:"today_usd"`
	Ratio        float64 `json:"ratio"`
}

// startOfDay truncates t to UTC midnight
func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// startOfMonth truncates t to the first of its UTC month
func startOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// daysInMonth returns the calendar length of t's month
func daysInMonth(t time.Time) int {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
