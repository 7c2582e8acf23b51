// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

// Package metering turns billable LLM calls into immutable usage records and
// atomically accrued per-tenant monthly cost. It owns the model price catalog
// cache, the pure cost calculator, and the usage recorder whose failures never
// propagate to the request path that produced the event.
package metering

import (
	"time"
)

// FeatureType buckets a billable AI call by what it was used for
type FeatureType string

const (
	FeatureChat              FeatureType = "chat"
	FeatureEmbedding         FeatureType = "embedding"
	FeatureRewrite           FeatureType = "rewrite"
	FeatureContextGeneration FeatureType = "context_generation"
	FeatureRerank            FeatureType = "rerank"
)

// ModelPrice is a price catalog entry for a single model. Prices are USD per
// one million tokens, input and output priced independently.
type ModelPrice struct {
	Provider      string  `json:"provider"`
	ModelID       string  `json:"model_id"`
	DisplayName   string  `json:"display_name"`
	InputPerMTok  float64 `json:"input_per_mtok"`
	OutputPerMTok float64 `json:"output_per_mtok"`
	IsEmbedding   bool    `json:"is_embedding"`
	Active        bool    `json:"active"`
}

// PriceKey builds the catalog lookup key for a provider/model pair
func PriceKey(provider, modelID string) string {
	return provider + ":" + modelID
}

// CostBreakdown is the computed dollar cost of a single call
type CostBreakdown struct {
	InputUSD  float64 `json:"input_usd"`
	OutputUSD float64 `json:"output_usd"`
	TotalUSD  float64 `json:"total_usd"`
}

// UsageEvent is what a call site supplies per billable AI invocation
type UsageEvent struct {
	TenantID       string      `json:"tenant_id"`
	ChatbotID      *string     `json:"chatbot_id,omitempty"`
	ConversationID *string     `json:"conversation_id,omitempty"`
	Provider       string      `json:"provider"`
	ModelID        string      `json:"model_id"`
	Feature        FeatureType `json:"feature"`
	TokensIn       int         `json:"tokens_in"`
	TokensOut      int         `json:"tokens_out"`
}

// UsageRecord is the immutable, append-only row created once per billable
// call. Never mutated; cost records are retained indefinitely.
type UsageRecord struct {
	ID             string        `json:"id"`
	TenantID       string        `json:"tenant_id"`
	ChatbotID      *string       `json:"chatbot_id,omitempty"`
	ConversationID *string       `json:"conversation_id,omitempty"`
	Provider       string        `json:"provider"`
	ModelID        string        `json:"model_id"`
	Feature        FeatureType   `json:"feature"`
	TokensIn       int           `json:"tokens_in"`
	TokensOut      int           `json:"tokens_out"`
	TokensTotal    int           `json:"tokens_total"`
	Cost           CostBreakdown `json:"cost"`
	CreatedAt      time.Time     `json:"created_at"`
}

// BudgetStatus is the single mutable per-tenant row tracking current-month
// accrued cost. Mutated only via atomic increment at the data store.
type BudgetStatus struct {
	TenantID        string    `json:"tenant_id"`
	CurrentMonthUSD float64   `json:"current_month_usd"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// UsageQueryOptions filters usage record listings
type UsageQueryOptions struct {
	TenantID  string    `json:"tenant_id,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	ModelID   string    `json:"model_id,omitempty"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
}

// Validate checks the minimum shape of a usage event
func (e *UsageEvent) Validate() error {
	if e.TenantID == "" {
		return ErrInvalidTenant
	}
	if e.Provider == "" || e.ModelID == "" {
		return ErrInvalidModel
	}
	if e.TokensIn < 0 || e.TokensOut < 0 {
		return ErrInvalidTokens
	}
	if !isValidFeature(e.Feature) {
		return ErrInvalidFeature
	}
	return nil
}

func isValidFeature(f FeatureType) bool {
	switch f {
	case FeatureChat, FeatureEmbedding, FeatureRewrite, FeatureContextGeneration, FeatureRerank:
		return true
	}
	return false
}
