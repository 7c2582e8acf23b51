// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package latency

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// Handler provides HTTP handlers for latency statistics, rollup triggers and
// alert thresholds
type Handler struct {
	stats         *Stats
	aggregator    *Aggregator
	thresholds    *Thresholds
	retentionDays int
}

// NewHandler creates a new latency handler. retentionDays is the cleanup
// default when the trigger request does not override it.
func NewHandler(stats *Stats, aggregator *Aggregator, thresholds *Thresholds, retentionDays int) *Handler {
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	return &Handler{stats: stats, aggregator: aggregator, thresholds: thresholds, retentionDays: retentionDays}
}

// RegisterRoutes registers latency routes with a gorilla/mux router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/latency/events", h.RecordLatency).Methods("POST")
	r.HandleFunc("/api/v1/latency/realtime", h.GetRealtimeStats).Methods("GET")
	r.HandleFunc("/api/v1/latency/overview", h.GetPerformanceOverview).Methods("GET")
	r.HandleFunc("/api/v1/latency/trend", h.GetResponseTimeTrend).Methods("GET")
	r.HandleFunc("/api/v1/latency/realtime-trend", h.GetRealtimeTrend).Methods("GET")
	r.HandleFunc("/api/v1/latency/breakdown", h.GetBreakdown).Methods("GET")
	r.HandleFunc("/api/v1/latency/slow-chatbots", h.GetTopSlowChatbots).Methods("GET")

	r.HandleFunc("/api/v1/alerts/thresholds", h.GetThreshold).Methods("GET")
	r.HandleFunc("/api/v1/alerts/thresholds", h.SaveThreshold).Methods("PUT")

	// Scheduled triggers, invoked by the external scheduler
	r.HandleFunc("/api/v1/jobs/rollup-hourly", h.RunHourlyRollup).Methods("POST")
	r.HandleFunc("/api/v1/jobs/rollup-daily", h.RunDailyRollup).Methods("POST")
	r.HandleFunc("/api/v1/jobs/cleanup-latency", h.RunCleanup).Methods("POST")
}

// RecordLatency handles POST /api/v1/latency/events. The response is always
// 202: latency logging is fire-and-forget from the producer's perspective.
func (h *Handler) RecordLatency(w http.ResponseWriter, r *http.Request) {
	var event LatencyEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	h.stats.RecordLatency(r.Context(), event)
	w.WriteHeader(http.StatusAccepted)
}

// GetRealtimeStats handles GET /api/v1/latency/realtime
func (h *Handler) GetRealtimeStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Realtime(r.Context(), filterFromQuery(r)))
}

// GetPerformanceOverview handles GET /api/v1/latency/overview
func (h *Handler) GetPerformanceOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.PerformanceOverview(r.Context(), filterFromQuery(r)))
}

// GetResponseTimeTrend handles GET /api/v1/latency/trend
func (h *Handler) GetResponseTimeTrend(w http.ResponseWriter, r *http.Request) {
	period := PeriodType(r.URL.Query().Get("period"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	points := h.stats.ResponseTimeTrend(r.Context(), period, limit, filterFromQuery(r))
	writeJSON(w, http.StatusOK, map[string]interface{}{"points": points})
}

// GetRealtimeTrend handles GET /api/v1/latency/realtime-trend
func (h *Handler) GetRealtimeTrend(w http.ResponseWriter, r *http.Request) {
	hours, _ := strconv.Atoi(r.URL.Query().Get("hours"))

	points := h.stats.RealtimeTrend(r.Context(), hours, filterFromQuery(r))
	writeJSON(w, http.StatusOK, map[string]interface{}{"points": points})
}

// GetBreakdown handles GET /api/v1/latency/breakdown
func (h *Handler) GetBreakdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Breakdown(r.Context(), filterFromQuery(r)))
}

// GetTopSlowChatbots handles GET /api/v1/latency/slow-chatbots
func (h *Handler) GetTopSlowChatbots(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chatbots": h.stats.TopSlowChatbots(r.Context(), limit),
	})
}

// GetThreshold handles GET /api/v1/alerts/thresholds
func (h *Handler) GetThreshold(w http.ResponseWriter, r *http.Request) {
	tenantID, chatbotID := scopeFromQuery(r)
	writeJSON(w, http.StatusOK, h.thresholds.Resolve(r.Context(), tenantID, chatbotID))
}

// SaveThreshold handles PUT /api/v1/alerts/thresholds
func (h *Handler) SaveThreshold(w http.ResponseWriter, r *http.Request) {
	var cfg ThresholdConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tenantID, chatbotID := scopeFromQuery(r)
	if err := h.thresholds.Save(r.Context(), cfg, tenantID, chatbotID); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// RunHourlyRollup handles POST /api/v1/jobs/rollup-hourly
func (h *Handler) RunHourlyRollup(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.aggregator.AggregateHourly(r.Context()))
}

// RunDailyRollup handles POST /api/v1/jobs/rollup-daily
func (h *Handler) RunDailyRollup(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.aggregator.AggregateDaily(r.Context()))
}

// RunCleanup handles POST /api/v1/jobs/cleanup-latency
func (h *Handler) RunCleanup(w http.ResponseWriter, r *http.Request) {
	retentionDays, _ := strconv.Atoi(r.URL.Query().Get("retention_days"))
	if retentionDays <= 0 {
		retentionDays = h.retentionDays
	}

	deleted, err := h.aggregator.CleanupOldRecords(r.Context(), retentionDays)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": deleted})
}

func filterFromQuery(r *http.Request) Filter {
	return Filter{
		TenantID:  r.URL.Query().Get("tenant_id"),
		ChatbotID: r.URL.Query().Get("chatbot_id"),
	}
}

func scopeFromQuery(r *http.Request) (tenantID, chatbotID *string) {
	if v := r.URL.Query().Get("tenant_id"); v != "" {
		tenantID = &v
	}
	if v := r.URL.Query().Get("chatbot_id"); v != "" {
		chatbotID = &v
	}
	return tenantID, chatbotID
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
