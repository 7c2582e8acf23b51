// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

// Package config loads telemetry service configuration from environment
// variables, with an optional YAML file for operator overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds everything the telemetry service needs at startup.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	// RetentionDays bounds how long raw latency records are kept.
	RetentionDays int

	// AnomalyMultiplier is the default day-over-day spike ratio that flags a tenant.
	AnomalyMultiplier float64

	// PriceCacheTTL bounds staleness of the in-process model price cache.
	PriceCacheTTL time.Duration

	// StatsCacheTTL bounds staleness of cached realtime dashboard responses.
	StatsCacheTTL time.Duration

	// Compiled-in alert threshold defaults, overridable per scope at runtime.
	DefaultP95ThresholdMs  float64
	DefaultSpikeThreshold  float64
	DefaultAlertEnabled    bool
	DefaultCooldownMinutes int
}

// Load builds a Config from environment variables, applying defaults for
// everything except the database connection.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                   getEnvOrDefault("PORT", "8084"),
		RedisURL:               os.Getenv("REDIS_URL"),
		RetentionDays:          getEnvInt("RETENTION_DAYS", 30),
		AnomalyMultiplier:      getEnvFloat("ANOMALY_MULTIPLIER", 2.0),
		PriceCacheTTL:          getEnvDuration("PRICE_CACHE_TTL", 5*time.Minute),
		StatsCacheTTL:          getEnvDuration("STATS_CACHE_TTL", 30*time.Second),
		DefaultP95ThresholdMs:  getEnvFloat("DEFAULT_P95_THRESHOLD_MS", 3000),
		DefaultSpikeThreshold:  getEnvFloat("DEFAULT_SPIKE_THRESHOLD", 1.5),
		DefaultAlertEnabled:    true,
		DefaultCooldownMinutes: getEnvInt("DEFAULT_ALERT_COOLDOWN_MINUTES", 60),
	}

	dbURL, err := databaseURL()
	if err != nil {
		return nil, err
	}
	cfg.DatabaseURL = dbURL

	return cfg, nil
}

// databaseURL resolves the Postgres connection string. Separate DATABASE_*
// variables take precedence so passwords with special characters survive
// URL encoding; DATABASE_URL remains as a fallback.
func databaseURL() (string, error) {
	dbHost := os.Getenv("DATABASE_HOST")
	dbPassword := os.Getenv("DATABASE_PASSWORD")

	if dbHost != "" && dbPassword != "" {
		dbPort := getEnvOrDefault("DATABASE_PORT", "5432")
		dbName := getEnvOrDefault("DATABASE_NAME", "chatlens")
		dbUser := getEnvOrDefault("DATABASE_USER", "chatlens_app")
		dbSSLMode := getEnvOrDefault("DATABASE_SSLMODE", "require")
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			url.QueryEscape(dbUser), url.QueryEscape(dbPassword),
			dbHost, dbPort, dbName, dbSSLMode), nil
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return dbURL, nil
	}

	return "", fmt.Errorf("no database configuration found (set DATABASE_HOST/DATABASE_PASSWORD or DATABASE_URL)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
