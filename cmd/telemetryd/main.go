// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

// Package main is the entry point for the ChatLens telemetry service.
//
// The service meters LLM token cost per tenant/chatbot/feature and serves
// request latency analytics:
// - Records billable AI calls with atomic per-tenant budget accrual
// - Computes realtime percentile latency statistics for SLA dashboards
// - Runs idempotent hourly/daily rollups and raw-log retention cleanup
// - Resolves cascading alert thresholds and month-end cost forecasts
//
// Usage:
//
//	./telemetryd
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8084)
//	DATABASE_URL - PostgreSQL connection string
//	REDIS_URL - Redis connection string (optional dashboard cache)
//	CONFIG_FILE - YAML override file (optional)
package main

import (
	"chatlens/platform/server"
)

func main() {
	server.Run()
}
