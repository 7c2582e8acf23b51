// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package metering

import "errors"

var (
	// ErrInvalidTenant is returned when a usage event carries no tenant ID
	ErrInvalidTenant = errors.New("invalid tenant ID")

	// ErrInvalidModel is returned when provider or model ID is missing
	ErrInvalidModel = errors.New("invalid provider or model ID")

	// ErrInvalidTokens is returned for negative token counts
	ErrInvalidTokens = errors.New("token counts must be non-negative")

	// ErrInvalidFeature is returned for an unknown feature type
	ErrInvalidFeature = errors.New("invalid feature type")

	// ErrCatalogUnavailable is returned when the price catalog cannot be
	// loaded and no previous cache exists to fall back on
	ErrCatalogUnavailable = errors.New("price catalog unavailable")
)
