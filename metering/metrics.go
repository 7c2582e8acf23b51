// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package metering

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	meteringTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatlens_metering_tokens_total",
			Help: "Total LLM tokens metered, by provider, model and direction",
		},
		[]string{"provider", "model", "direction"},
	)

	meteringCostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatlens_metering_cost_usd_total",
			Help: "Total metered LLM cost in USD, by provider and model",
		},
		[]string{"provider", "model"},
	)

	meteringRecordFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatlens_metering_record_failures_total",
			Help: "Usage events that failed to persist and were logged for reconciliation",
		},
	)

	meteringUnpricedModels = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatlens_metering_unpriced_model_total",
			Help: "Usage events recorded at zero cost because no price entry existed",
		},
		[]string{"provider", "model"},
	)
)
