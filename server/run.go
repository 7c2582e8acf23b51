// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

// Package server wires the telemetry service: configuration, PostgreSQL,
// the optional Redis cache, the HTTP surface and the Prometheus endpoint.
package server

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"chatlens/platform/analytics"
	"chatlens/platform/latency"
	"chatlens/platform/metering"
	"chatlens/platform/shared/config"
	"chatlens/platform/shared/logger"
)

// Run starts the telemetry service. It blocks until the HTTP server exits.
//
// Environment variables:
//   - PORT: HTTP server port (default: 8084)
//   - DATABASE_URL: PostgreSQL connection string
//   - REDIS_URL: Redis connection string (optional, enables the dashboard cache)
//   - CONFIG_FILE: optional YAML config file
func Run() {
	appLog := logger.New("telemetryd")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := config.ApplyFile(cfg, path); err != nil {
			log.Fatalf("Failed to apply config file: %v", err)
		}
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	var cache *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			appLog.Warn("", "Invalid REDIS_URL, running without dashboard cache", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			cache = redis.NewClient(opts)
		}
	}

	// Metering
	meteringRepo := metering.NewPostgresRepository(db)
	catalog := metering.NewCatalog(meteringRepo, cfg.PriceCacheTTL)
	meteringService := metering.NewService(meteringRepo, catalog, logger.New("metering"))
	meteringHandler := metering.NewHandler(meteringService)

	// Latency
	latencyRepo := latency.NewPostgresRepository(db)
	stats := latency.NewStats(latencyRepo, cache, cfg.StatsCacheTTL, logger.New("latency"))
	aggregator := latency.NewAggregator(latencyRepo, logger.New("latency-rollup"))
	defaults := latency.ThresholdConfig{
		P95ThresholdMs:    cfg.DefaultP95ThresholdMs,
		AvgSpikeThreshold: cfg.DefaultSpikeThreshold,
		AlertEnabled:      cfg.DefaultAlertEnabled,
		CooldownMinutes:   cfg.DefaultCooldownMinutes,
	}
	thresholds := latency.NewThresholds(latencyRepo, &defaults, logger.New("latency-thresholds"))
	latencyHandler := latency.NewHandler(stats, aggregator, thresholds, cfg.RetentionDays)

	// Analytics
	analyticsRepo := analytics.NewPostgresRepository(db)
	analyticsService := analytics.NewService(analyticsRepo, logger.New("analytics"))
	analyticsHandler := analytics.NewHandler(analyticsService, cfg.AnomalyMultiplier)

	r := mux.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	r.HandleFunc("/health", healthHandler(meteringService)).Methods("GET")
	r.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	meteringHandler.RegisterRoutes(r)
	latencyHandler.RegisterRoutes(r)
	analyticsHandler.RegisterRoutes(r)

	handler := c.Handler(r)
	appLog.Info("", "ChatLens telemetry service listening", map[string]interface{}{
		"port": cfg.Port,
	})
	log.Fatal(http.ListenAndServe(":"+cfg.Port, handler))
}

func healthHandler(svc *metering.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		code := http.StatusOK
		if !svc.IsHealthy(r.Context()) {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  status,
			"service": "chatlens-telemetry",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	}
}
