// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package latency

import (
	"context"
	"errors"

	"chatlens/platform/shared/logger"
)

// DefaultThreshold is the compiled-in terminal level of the cascade
var DefaultThreshold = ThresholdConfig{
	P95ThresholdMs:    3000,
	AvgSpikeThreshold: 1.5,
	AlertEnabled:      true,
	CooldownMinutes:   60,
}

// Thresholds resolves alerting thresholds through the scope cascade:
// chatbot-scoped row, then tenant-wide row, then global row, then the
// compiled-in default. Callers never see a "not configured" case.
type Thresholds struct {
	repo Repository
	log  *logger.Logger
	def  ThresholdConfig
}

// NewThresholds creates a threshold resolver. def overrides the compiled-in
// default when non-zero thresholds are configured.
func NewThresholds(repo Repository, def *ThresholdConfig, log *logger.Logger) *Thresholds {
	if log == nil {
		log = logger.New("latency-thresholds")
	}
	resolved := DefaultThreshold
	if def != nil && def.P95ThresholdMs > 0 && def.AvgSpikeThreshold > 0 {
		resolved = *def
	}
	return &Thresholds{repo: repo, log: log, def: resolved}
}

// Resolve walks the cascade for the given scope. A lookup failure at one
// level is logged and the cascade continues, so resolution always terminates
// with a usable config.
func (t *Thresholds) Resolve(ctx context.Context, tenantID, chatbotID *string) ThresholdConfig {
	if tenantID != nil && chatbotID != nil {
		if cfg := t.lookup(ctx, tenantID, chatbotID); cfg != nil {
			return *cfg
		}
	}
	if tenantID != nil {
		if cfg := t.lookup(ctx, tenantID, nil); cfg != nil {
			return *cfg
		}
	}
	if cfg := t.lookup(ctx, nil, nil); cfg != nil {
		return *cfg
	}

	return t.def
}

// Save upserts a threshold row at the given scope. Nil ids widen the scope:
// (nil, nil) writes the global row.
func (t *Thresholds) Save(ctx context.Context, cfg ThresholdConfig, tenantID, chatbotID *string) error {
	if cfg.P95ThresholdMs <= 0 || cfg.AvgSpikeThreshold <= 0 {
		return errors.New("thresholds must be positive")
	}
	if cfg.CooldownMinutes < 0 {
		return errors.New("cooldown must be non-negative")
	}
	if chatbotID != nil && tenantID == nil {
		return errors.New("chatbot-scoped threshold requires a tenant")
	}

	return t.repo.UpsertThreshold(ctx, cfg, tenantID, chatbotID)
}

func (t *Thresholds) lookup(ctx context.Context, tenantID, chatbotID *string) *ThresholdConfig {
	cfg, err := t.repo.GetThreshold(ctx, tenantID, chatbotID)
	if err != nil {
		t.log.ErrorErr(deref(tenantID), "Threshold lookup failed, falling through", err, nil)
		return nil
	}
	return cfg
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
