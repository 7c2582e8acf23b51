// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML shape of an operator override file. Zero values mean
// "keep whatever the environment resolved to".
type FileConfig struct {
	Version           string  `yaml:"version"`
	RetentionDays     int     `yaml:"retention_days,omitempty"`
	AnomalyMultiplier float64 `yaml:"anomaly_multiplier,omitempty"`
	PriceCacheTTL     string  `yaml:"price_cache_ttl,omitempty"`
	StatsCacheTTL     string  `yaml:"stats_cache_ttl,omitempty"`

	AlertDefaults struct {
		P95ThresholdMs  float64 `yaml:"p95_threshold_ms,omitempty"`
		SpikeThreshold  float64 `yaml:"spike_threshold,omitempty"`
		CooldownMinutes int     `yaml:"cooldown_minutes,omitempty"`
	} `yaml:"alert_defaults,omitempty"`
}

// ApplyFile merges a YAML override file into cfg. A missing file is not an
// error; a malformed one is.
func ApplyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.RetentionDays > 0 {
		cfg.RetentionDays = fc.RetentionDays
	}
	if fc.AnomalyMultiplier > 0 {
		cfg.AnomalyMultiplier = fc.AnomalyMultiplier
	}
	if fc.PriceCacheTTL != "" {
		d, err := time.ParseDuration(fc.PriceCacheTTL)
		if err != nil {
			return fmt.Errorf("invalid price_cache_ttl: %w", err)
		}
		cfg.PriceCacheTTL = d
	}
	if fc.StatsCacheTTL != "" {
		d, err := time.ParseDuration(fc.StatsCacheTTL)
		if err != nil {
			return fmt.Errorf("invalid stats_cache_ttl: %w", err)
		}
		cfg.StatsCacheTTL = d
	}
	if fc.AlertDefaults.P95ThresholdMs > 0 {
		cfg.DefaultP95ThresholdMs = fc.AlertDefaults.P95ThresholdMs
	}
	if fc.AlertDefaults.SpikeThreshold > 0 {
		cfg.DefaultSpikeThreshold = fc.AlertDefaults.SpikeThreshold
	}
	if fc.AlertDefaults.CooldownMinutes > 0 {
		cfg.DefaultCooldownMinutes = fc.AlertDefaults.CooldownMinutes
	}

	return nil
}
