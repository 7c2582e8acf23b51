// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package metering

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// Handler provides HTTP handlers for the metering APIs
type Handler struct {
	service *Service
}

// NewHandler creates a new metering handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers metering routes with a gorilla/mux router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/usage/current-month", h.GetCurrentMonthUsage).Methods("GET")
	r.HandleFunc("/api/v1/usage/records", h.ListUsageRecords).Methods("GET")
	r.HandleFunc("/api/v1/usage/events", h.RecordUsageEvent).Methods("POST")
	r.HandleFunc("/api/v1/prices/invalidate", h.InvalidatePrices).Methods("POST")

	// Scheduled trigger, invoked by the external scheduler at month boundaries
	r.HandleFunc("/api/v1/jobs/reset-monthly-usage", h.ResetMonthlyUsage).Methods("POST")
}

// GetCurrentMonthUsage handles GET /api/v1/usage/current-month
func (h *Handler) GetCurrentMonthUsage(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, "tenant_id required", http.StatusBadRequest)
		return
	}

	usage := h.service.CurrentMonthUsage(r.Context(), tenantID)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id":         tenantID,
		"current_month_usd": usage,
	})
}

// ListUsageRecords handles GET /api/v1/usage/records
func (h *Handler) ListUsageRecords(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	opts := UsageQueryOptions{
		TenantID: query.Get("tenant_id"),
		Provider: query.Get("provider"),
		ModelID:  query.Get("model_id"),
	}
	if limit := query.Get("limit"); limit != "" {
		opts.Limit, _ = strconv.Atoi(limit)
	}
	if opts.Limit <= 0 || opts.Limit > 1000 {
		opts.Limit = 50
	}
	if offset := query.Get("offset"); offset != "" {
		opts.Offset, _ = strconv.Atoi(offset)
	}
	if start := query.Get("start"); start != "" {
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			opts.StartTime = t
		}
	}
	if end := query.Get("end"); end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			opts.EndTime = t
		}
	}

	records, total, err := h.service.ListUsageRecords(r.Context(), opts)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"total":   total,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// RecordUsageEvent handles POST /api/v1/usage/events. The response is always
// 202: recording is fire-and-forget from the producer's perspective.
func (h *Handler) RecordUsageEvent(w http.ResponseWriter, r *http.Request) {
	var event UsageEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	h.service.RecordUsage(r.Context(), event)
	w.WriteHeader(http.StatusAccepted)
}

// InvalidatePrices handles POST /api/v1/prices/invalidate
func (h *Handler) InvalidatePrices(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidatePrices()
	w.WriteHeader(http.StatusNoContent)
}

// ResetMonthlyUsage handles POST /api/v1/jobs/reset-monthly-usage
func (h *Handler) ResetMonthlyUsage(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ResetMonthlyUsage(r.Context())
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"tenants_reset": rows})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
