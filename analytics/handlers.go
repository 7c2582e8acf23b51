// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package analytics

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// Handler provides HTTP handlers for the cost analytics APIs
type Handler struct {
	service    *Service
	multiplier float64
}

// NewHandler creates a new analytics handler. multiplier is the anomaly
// ratio default when the request does not override it.
func NewHandler(service *Service, multiplier float64) *Handler {
	if multiplier <= 0 {
		multiplier = defaultAnomalyMultiplier
	}
	return &Handler{service: service, multiplier: multiplier}
}

// RegisterRoutes registers analytics routes with a gorilla/mux router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/analytics/overview", h.GetUsageOverview).Methods("GET")
	r.HandleFunc("/api/v1/analytics/trend", h.GetUsageTrend).Methods("GET")
	r.HandleFunc("/api/v1/analytics/forecast", h.GetForecast).Methods("GET")
	r.HandleFunc("/api/v1/analytics/top-tenants", h.GetTopTenants).Methods("GET")
	r.HandleFunc("/api/v1/analytics/anomalies", h.GetAnomalies).Methods("GET")
}

// GetUsageOverview handles GET /api/v1/analytics/overview
func (h *Handler) GetUsageOverview(w http.ResponseWriter, r *http.Request) {
	period := Period(r.URL.Query().Get("period"))
	writeJSON(w, http.StatusOK, h.service.UsageOverview(r.Context(), period, tenantFromQuery(r)))
}

// GetUsageTrend handles GET /api/v1/analytics/trend
func (h *Handler) GetUsageTrend(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	writeJSON(w, http.StatusOK, h.service.UsageTrend(r.Context(), days, tenantFromQuery(r)))
}

// GetForecast handles GET /api/v1/analytics/forecast
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Forecast(r.Context(), tenantFromQuery(r)))
}

// GetTopTenants handles GET /api/v1/analytics/top-tenants
func (h *Handler) GetTopTenants(w http.ResponseWriter, r *http.Request) {
	period := Period(r.URL.Query().Get("period"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenants": h.service.TopTenants(r.Context(), period, limit),
	})
}

// GetAnomalies handles GET /api/v1/analytics/anomalies
func (h *Handler) GetAnomalies(w http.ResponseWriter, r *http.Request) {
	multiplier, _ := strconv.ParseFloat(r.URL.Query().Get("multiplier"), 64)
	if multiplier <= 0 {
		multiplier = h.multiplier
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": h.service.DetectAnomalies(r.Context(), multiplier),
	})
}

func tenantFromQuery(r *http.Request) *string {
	if v := r.URL.Query().Get("tenant_id"); v != "" {
		return &v
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
