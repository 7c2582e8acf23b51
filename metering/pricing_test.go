// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package metering

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeCost(t *testing.T) {
	price := ModelPrice{
		Provider:      "openai",
		ModelID:       "gpt-4o",
		InputPerMTok:  2.50,
		OutputPerMTok: 10.00,
	}

	tests := []struct {
		name       string
		tokensIn   int
		tokensOut  int
		wantInput  float64
		wantOutput float64
	}{
		{"zero tokens cost nothing", 0, 0, 0, 0},
		{"one million input tokens", 1_000_000, 0, 2.50, 0},
		{"one million output tokens", 0, 1_000_000, 0, 10.00},
		{"mixed call", 500_000, 100_000, 1.25, 1.00},
		{"small call", 1000, 500, 0.0025, 0.005},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cost := ComputeCost(tt.tokensIn, tt.tokensOut, price)
			assert.InDelta(t, tt.wantInput, cost.InputUSD, 1e-12)
			assert.InDelta(t, tt.wantOutput, cost.OutputUSD, 1e-12)
			assert.InDelta(t, cost.InputUSD+cost.OutputUSD, cost.TotalUSD, 1e-12)
		})
	}
}

func TestComputeCost_TotalIdentity(t *testing.T) {
	// total == input + output must hold for any non-negative token inputs
	price := ModelPrice{InputPerMTok: 0.15, OutputPerMTok: 0.60}

	for tokensIn := 0; tokensIn <= 100_000; tokensIn += 33_333 {
		for tokensOut := 0; tokensOut <= 100_000; tokensOut += 41_111 {
			cost := ComputeCost(tokensIn, tokensOut, price)
			assert.Equal(t, cost.InputUSD+cost.OutputUSD, cost.TotalUSD)
			assert.GreaterOrEqual(t, cost.InputUSD, 0.0)
			assert.GreaterOrEqual(t, cost.OutputUSD, 0.0)
		}
	}
}

func TestZeroCost(t *testing.T) {
	cost := ZeroCost()
	assert.Zero(t, cost.InputUSD)
	assert.Zero(t, cost.OutputUSD)
	assert.Zero(t, cost.TotalUSD)
}

func TestUsageEvent_Validate(t *testing.T) {
	valid := UsageEvent{
		TenantID: "tenant-1",
		Provider: "openai",
		ModelID:  "gpt-4o",
		Feature:  FeatureChat,
		TokensIn: 100,
	}

	assert.NoError(t, valid.Validate())

	missingTenant := valid
	missingTenant.TenantID = ""
	assert.ErrorIs(t, missingTenant.Validate(), ErrInvalidTenant)

	missingModel := valid
	missingModel.ModelID = ""
	assert.ErrorIs(t, missingModel.Validate(), ErrInvalidModel)

	negativeTokens := valid
	negativeTokens.TokensOut = -1
	assert.ErrorIs(t, negativeTokens.Validate(), ErrInvalidTokens)

	badFeature := valid
	badFeature.Feature = "training"
	assert.ErrorIs(t, badFeature.Validate(), ErrInvalidFeature)
}
