// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package latency

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	latencyRecordFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatlens_latency_record_failures_total",
		Help: "Latency record writes that failed and were logged",
	})

	latencyRollupGroups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatlens_latency_rollup_groups_total",
		Help: "Rollup groups processed, by period type",
	}, []string{"period"})

	latencyRollupErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatlens_latency_rollup_errors_total",
		Help: "Rollup groups that failed to upsert, by period type",
	}, []string{"period"})

	latencyCleanupDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatlens_latency_cleanup_deleted_total",
		Help: "Raw latency records purged by retention cleanup",
	})
)
