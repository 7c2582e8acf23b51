// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package metering

// ComputeCost calculates the dollar cost of a call from its token counts and
// a price entry. Pure and deterministic; Total is always Input + Output.
func ComputeCost(tokensIn, tokensOut int, price ModelPrice) CostBreakdown {
	inputCost := float64(tokensIn) / 1e6 * price.InputPerMTok
	outputCost := float64(tokensOut) / 1e6 * price.OutputPerMTok

	return CostBreakdown{
		InputUSD:  inputCost,
		OutputUSD: outputCost,
		TotalUSD:  inputCost + outputCost,
	}
}

// ZeroCost is the breakdown substituted when no price entry exists for a
// model. The usage is still recorded so no event is lost; it bills at $0
// until pricing is fixed.
func ZeroCost() CostBreakdown {
	return CostBreakdown{}
}
