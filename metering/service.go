// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package metering

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chatlens/platform/shared/logger"
)

// Service is the usage recorder: it prices billable calls, writes immutable
// usage records and accrues per-tenant monthly cost. The public Record
// methods are best-effort from the caller's perspective; a telemetry failure
// must never fail the user-facing request that produced the event.
type Service struct {
	repo    Repository
	catalog *Catalog
	log     *logger.Logger
	now     func() time.Time
}

// NewService creates a metering service
func NewService(repo Repository, catalog *Catalog, log *logger.Logger) *Service {
	if log == nil {
		log = logger.New("metering")
	}
	return &Service{
		repo:    repo,
		catalog: catalog,
		log:     log,
		now:     time.Now,
	}
}

// RecordUsage records a billable AI call. Failures are logged with full
// context for manual reconciliation and swallowed; the caller's request path
// is never broken by billing telemetry.
func (s *Service) RecordUsage(ctx context.Context, event UsageEvent) {
	if err := s.recordUsage(ctx, event); err != nil {
		meteringRecordFailures.Inc()
		s.log.ErrorErr(event.TenantID, "Failed to record usage", err, map[string]interface{}{
			"provider":   event.Provider,
			"model":      event.ModelID,
			"feature":    string(event.Feature),
			"tokens_in":  event.TokensIn,
			"tokens_out": event.TokensOut,
		})
	}
}

// RecordEmbeddingUsage records an embedding-style call that reports only a
// single token total. The total is billed entirely as input.
func (s *Service) RecordEmbeddingUsage(ctx context.Context, tenantID string, chatbotID *string, provider, modelID string, feature FeatureType, totalTokens int) {
	s.RecordUsage(ctx, UsageEvent{
		TenantID:  tenantID,
		ChatbotID: chatbotID,
		Provider:  provider,
		ModelID:   modelID,
		Feature:   feature,
		TokensIn:  totalTokens,
		TokensOut: 0,
	})
}

// recordUsage is the internal, error-returning implementation so the failure
// branch stays testable behind the swallow-and-log boundary.
func (s *Service) recordUsage(ctx context.Context, event UsageEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	cost := s.priceEvent(ctx, event)

	record := &UsageRecord{
		ID:             uuid.NewString(),
		TenantID:       event.TenantID,
		ChatbotID:      event.ChatbotID,
		ConversationID: event.ConversationID,
		Provider:       event.Provider,
		ModelID:        event.ModelID,
		Feature:        event.Feature,
		TokensIn:       event.TokensIn,
		TokensOut:      event.TokensOut,
		TokensTotal:    event.TokensIn + event.TokensOut,
		Cost:           cost,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.repo.InsertUsageWithBudget(ctx, record); err != nil {
		return err
	}

	meteringTokensTotal.WithLabelValues(event.Provider, event.ModelID, "input").Add(float64(event.TokensIn))
	meteringTokensTotal.WithLabelValues(event.Provider, event.ModelID, "output").Add(float64(event.TokensOut))
	meteringCostTotal.WithLabelValues(event.Provider, event.ModelID).Add(cost.TotalUSD)

	return nil
}

// priceEvent resolves a cost breakdown for the event. A missing price entry
// degrades to zero cost with a warning rather than blocking the record.
func (s *Service) priceEvent(ctx context.Context, event UsageEvent) CostBreakdown {
	price, ok, err := s.catalog.Lookup(ctx, event.Provider, event.ModelID)
	if err != nil || !ok {
		meteringUnpricedModels.WithLabelValues(event.Provider, event.ModelID).Inc()
		s.log.Warn(event.TenantID, "No price entry for model, billing at $0", map[string]interface{}{
			"provider": event.Provider,
			"model":    event.ModelID,
		})
		return ZeroCost()
	}
	return ComputeCost(event.TokensIn, event.TokensOut, price)
}

// CurrentMonthUsage returns the tenant's accrued cost this month. A data
// store failure degrades to 0 after logging so budget dashboards render
// rather than error.
func (s *Service) CurrentMonthUsage(ctx context.Context, tenantID string) float64 {
	total, err := s.repo.CurrentMonthUsage(ctx, tenantID)
	if err != nil {
		s.log.ErrorErr(tenantID, "Failed to read current month usage", err, nil)
		return 0
	}
	return total
}

// ResetMonthlyUsage zeroes every tenant's counter; invoked by the external
// scheduler at month boundaries.
func (s *Service) ResetMonthlyUsage(ctx context.Context) (int64, error) {
	rows, err := s.repo.ResetMonthlyUsage(ctx)
	if err != nil {
		s.log.ErrorErr("", "Monthly usage reset failed", err, nil)
		return 0, err
	}
	s.log.Info("", "Monthly usage reset complete", map[string]interface{}{"tenants": rows})
	return rows, nil
}

// ListUsageRecords lists usage records for reconciliation views
func (s *Service) ListUsageRecords(ctx context.Context, opts UsageQueryOptions) ([]UsageRecord, int, error) {
	return s.repo.ListUsageRecords(ctx, opts)
}

// InvalidatePrices clears the catalog cache after an admin price edit
func (s *Service) InvalidatePrices() {
	s.catalog.Invalidate()
}

// IsHealthy checks if the backing store is reachable
func (s *Service) IsHealthy(ctx context.Context) bool {
	return s.repo.Ping(ctx) == nil
}
