// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package analytics

import (
	"context"
	"sort"
	"time"

	"chatlens/platform/shared/logger"
)

// defaultAnomalyMultiplier flags tenants spending at least this multiple of
// their spend in the same elapsed window yesterday
const defaultAnomalyMultiplier = 2.0

// Service answers the cost analytics queries. Dashboard reads degrade to
// zeroed results after logging, never errors.
type Service struct {
	repo Repository
	log  *logger.Logger
	now  func() time.Time
}

// NewService creates an analytics service
func NewService(repo Repository, log *logger.Logger) *Service {
	if log == nil {
		log = logger.New("analytics")
	}
	return &Service{repo: repo, log: log, now: time.Now}
}

// UsageOverview sums the period's tokens and cost broken down by model and
// feature, each with its percentage of the period total
func (s *Service) UsageOverview(ctx context.Context, period Period, tenantID *string) UsageOverview {
	if !period.Valid() {
		period = PeriodToday
	}

	start, end := s.periodWindow(period)
	overview := UsageOverview{Period: period, ByModel: []ModelUsage{}, ByFeature: []FeatureUsage{}}

	byModel, err := s.repo.TotalsByModel(ctx, start, end, tenantID)
	if err != nil {
		s.log.ErrorErr(deref(tenantID), "Failed to query model totals", err, nil)
		return overview
	}
	byFeature, err := s.repo.TotalsByFeature(ctx, start, end, tenantID)
	if err != nil {
		s.log.ErrorErr(deref(tenantID), "Failed to query feature totals", err, nil)
		return overview
	}

	for _, m := range byModel {
		overview.TotalTokens += m.Tokens
		overview.TotalCostUSD += m.CostUSD
	}

	for i := range byModel {
		byModel[i].Percentage = share(byModel[i].CostUSD, overview.TotalCostUSD)
	}
	for i := range byFeature {
		byFeature[i].Percentage = share(byFeature[i].CostUSD, overview.TotalCostUSD)
	}

	overview.ByModel = byModel
	overview.ByFeature = byFeature
	return overview
}

// UsageTrend returns daily totals for the trailing span with the per-model
// breakdown nested under each day
func (s *Service) UsageTrend(ctx context.Context, days int, tenantID *string) UsageTrend {
	if days <= 0 || days > 365 {
		days = 30
	}

	end := s.now().UTC()
	start := startOfDay(end).AddDate(0, 0, -(days - 1))
	trend := UsageTrend{Days: days, Daily: []DailyUsage{}}

	daily, err := s.repo.DailyTotals(ctx, start, end, tenantID)
	if err != nil {
		s.log.ErrorErr(deref(tenantID), "Failed to query daily totals", err, nil)
		return trend
	}
	byDay, err := s.repo.DailyModelTotals(ctx, start, end, tenantID)
	if err != nil {
		s.log.ErrorErr(deref(tenantID), "Failed to query daily model totals", err, nil)
		return trend
	}

	for i := range daily {
		daily[i].ByModel = byDay[daily[i].Date]
	}
	trend.Daily = daily
	return trend
}

// Forecast extrapolates month-end cost linearly from month-to-date spend.
// Trend compares the trailing 7 days against the 7 days before; confidence
// grows with the number of days observed this month.
func (s *Service) Forecast(ctx context.Context, tenantID *string) Forecast {
	now := s.now().UTC()
	daysPassed := now.Day()

	forecast := Forecast{
		DaysPassed:  daysPassed,
		DaysInMonth: daysInMonth(now),
		Trend:       TrendStable,
		Confidence:  confidenceFor(daysPassed),
	}

	monthCost, err := s.repo.CostBetween(ctx, startOfMonth(now), now, tenantID)
	if err != nil {
		s.log.ErrorErr(deref(tenantID), "Failed to query month-to-date cost", err, nil)
		return forecast
	}

	divisor := daysPassed
	if divisor < 1 {
		divisor = 1
	}

	forecast.CurrentMonthUSD = monthCost
	forecast.DailyAverageUSD = monthCost / float64(divisor)
	forecast.ProjectedMonthlyUSD = forecast.DailyAverageUSD * float64(forecast.DaysInMonth)
	forecast.Trend = s.classifyTrend(ctx, now, tenantID)

	return forecast
}

// TopTenants ranks tenants by period cost descending
func (s *Service) TopTenants(ctx context.Context, period Period, limit int) []TenantUsage {
	if !period.Valid() {
		period = PeriodMonth
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	start, end := s.periodWindow(period)
	tenants, err := s.repo.TopTenants(ctx, start, end, limit)
	if err != nil {
		s.log.ErrorErr("", "Failed to query top tenants", err, nil)
		return []TenantUsage{}
	}

	return tenants
}

// DetectAnomalies compares each tenant's today-so-far spend against the same
// elapsed window yesterday. A tenant with zero spend yesterday is never
// flagged: the ratio is meaningless. Results are sorted by ratio descending.
func (s *Service) DetectAnomalies(ctx context.Context, multiplier float64) []Anomaly {
	if multiplier <= 0 {
		multiplier = defaultAnomalyMultiplier
	}

	now := s.now().UTC()
	todayStart := startOfDay(now)
	elapsed := now.Sub(todayStart)
	yesterdayStart := todayStart.AddDate(0, 0, -1)

	today, err := s.repo.CostPerTenantBetween(ctx, todayStart, now)
	if err != nil {
		s.log.ErrorErr("", "Failed to query today's per-tenant cost", err, nil)
		return []Anomaly{}
	}
	yesterday, err := s.repo.CostPerTenantBetween(ctx, yesterdayStart, yesterdayStart.Add(elapsed))
	if err != nil {
		s.log.ErrorErr("", "Failed to query yesterday's per-tenant cost", err, nil)
		return []Anomaly{}
	}

	anomalies := []Anomaly{}
	for tenantID, todayCost := range today {
		yesterdayCost := yesterday[tenantID]
		if yesterdayCost == 0 {
			continue
		}

		ratio := todayCost / yesterdayCost
		if ratio >= multiplier {
			anomalies = append(anomalies, Anomaly{
				TenantID:     tenantID,
				YesterdayUSD: yesterdayCost,
				TodayUSD:     todayCost,
				Ratio:        ratio,
			})
		}
	}

	sort.Slice(anomalies, func(i, j int) bool { return anomalies[i].Ratio > anomalies[j].Ratio })
	return anomalies
}

func (s *Service) classifyTrend(ctx context.Context, now time.Time, tenantID *string) TrendDirection {
	recent, err := s.repo.CostBetween(ctx, now.AddDate(0, 0, -7), now, tenantID)
	if err != nil {
		s.log.ErrorErr(deref(tenantID), "Failed to query trailing week cost", err, nil)
		return TrendStable
	}
	previous, err := s.repo.CostBetween(ctx, now.AddDate(0, 0, -14), now.AddDate(0, 0, -7), tenantID)
	if err != nil {
		s.log.ErrorErr(deref(tenantID), "Failed to query prior week cost", err, nil)
		return TrendStable
	}

	if previous == 0 {
		return TrendStable
	}

	change := (recent - previous) / previous
	switch {
	case change > 0.10:
		return TrendIncreasing
	case change < -0.10:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func (s *Service) periodWindow(period Period) (start, end time.Time) {
	now := s.now().UTC()
	switch period {
	case PeriodWeek:
		return startOfDay(now).AddDate(0, 0, -6), now
	case PeriodMonth:
		return startOfMonth(now), now
	default:
		return startOfDay(now), now
	}
}

func confidenceFor(daysPassed int) ConfidenceLevel {
	switch {
	case daysPassed >= 20:
		return ConfidenceHigh
	case daysPassed >= 7:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func share(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return part / total * 100
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
