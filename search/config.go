// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all tunables for a search run.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after
// creation.
type Config struct {
	// MaxDepth is the depth ceiling. Nodes at this depth are finalized on
	// creation and never expanded.
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// MaxNodes caps the store size, checked before each dispatch batch.
	MaxNodes int `json:"max_nodes" yaml:"max_nodes"`

	// BranchingFactor is the maximum candidates requested per expansion.
	BranchingFactor int `json:"branching_factor" yaml:"branching_factor"`

	// PruneThreshold demotes Active nodes scoring below it, subject to
	// MinActiveFloor.
	PruneThreshold float64 `json:"prune_threshold" yaml:"prune_threshold"`

	// MinActiveFloor is the minimum Active count the pruner must leave
	// behind.
	MinActiveFloor int `json:"min_active_floor" yaml:"min_active_floor"`

	// Strategy selects the frontier ordering.
	Strategy Strategy `json:"strategy" yaml:"strategy"`

	// Weights are the evaluator mixing weights.
	Weights Weights `json:"weights" yaml:"weights"`

	// RetryLimit caps expansion attempts per node before it is
	// permanently Exhausted.
	RetryLimit int `json:"retry_limit" yaml:"retry_limit"`

	// ConcurrencyLimit bounds in-flight generator calls per batch.
	ConcurrencyLimit int `json:"concurrency_limit" yaml:"concurrency_limit"`

	// Timeout is the wall clock limit for the whole run.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns the default configuration.
//
// Outputs:
//   - Config: Default configuration with sensible values.
func DefaultConfig() Config {
	return Config{
		MaxDepth:         6,
		MaxNodes:         128,
		BranchingFactor:  3,
		PruneThreshold:   0.4,
		MinActiveFloor:   1,
		Strategy:         StrategyBestFirst,
		Weights:          DefaultWeights(),
		RetryLimit:       3,
		ConcurrencyLimit: 4,
		Timeout:          30 * time.Second,
	}
}

// LoadConfig loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - configPath: Path to YAML/JSON config file (optional, can be empty).
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Non-nil if file exists but is invalid, or validation fails.
func LoadConfig(configPath string) (Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// Load from file if specified
	if configPath != "" {
		if err := loadConfigFile(configPath, &config); err != nil {
			return config, fmt.Errorf("load config file: %w", err)
		}
	}

	// Override from environment variables
	loadConfigFromEnv(&config)

	// Validate
	if err := config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}

func loadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if jsonErr := json.Unmarshal(data, config); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}

	return nil
}

func loadConfigFromEnv(config *Config) {
	if v := os.Getenv("PONDER_MAX_DEPTH"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.MaxDepth = i
		}
	}
	if v := os.Getenv("PONDER_MAX_NODES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.MaxNodes = i
		}
	}
	if v := os.Getenv("PONDER_BRANCHING_FACTOR"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.BranchingFactor = i
		}
	}
	if v := os.Getenv("PONDER_PRUNE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.PruneThreshold = f
		}
	}
	if v := os.Getenv("PONDER_MIN_ACTIVE_FLOOR"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.MinActiveFloor = i
		}
	}
	if v := os.Getenv("PONDER_STRATEGY"); v != "" {
		config.Strategy = Strategy(v)
	}
	if v := os.Getenv("PONDER_RETRY_LIMIT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.RetryLimit = i
		}
	}
	if v := os.Getenv("PONDER_CONCURRENCY_LIMIT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.ConcurrencyLimit = i
		}
	}
	if v := os.Getenv("PONDER_TIMEOUT_SECONDS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Timeout = time.Duration(i) * time.Second
		}
	}
}

// Validate checks that the configuration is valid.
//
// Outputs:
//   - error: Non-nil if configuration is invalid, wrapping
//     ErrInvalidConfig.
func (c Config) Validate() error {
	if c.MaxDepth < 1 {
		return fmt.Errorf("%w: max_depth must be >= 1, got %d", ErrInvalidConfig, c.MaxDepth)
	}
	if c.MaxNodes < 1 {
		return fmt.Errorf("%w: max_nodes must be >= 1, got %d", ErrInvalidConfig, c.MaxNodes)
	}
	if c.BranchingFactor < 1 {
		return fmt.Errorf("%w: branching_factor must be >= 1, got %d", ErrInvalidConfig, c.BranchingFactor)
	}
	if c.PruneThreshold < 0 || c.PruneThreshold > 1 {
		return fmt.Errorf("%w: prune_threshold must be in [0,1], got %.4f", ErrInvalidConfig, c.PruneThreshold)
	}
	if c.MinActiveFloor < 0 {
		return fmt.Errorf("%w: min_active_floor must be >= 0, got %d", ErrInvalidConfig, c.MinActiveFloor)
	}
	if !c.Strategy.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, c.Strategy)
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.RetryLimit < 1 {
		return fmt.Errorf("%w: retry_limit must be >= 1, got %d", ErrInvalidConfig, c.RetryLimit)
	}
	if c.ConcurrencyLimit < 1 {
		return fmt.Errorf("%w: concurrency_limit must be >= 1, got %d", ErrInvalidConfig, c.ConcurrencyLimit)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must be >= 0, got %v", ErrInvalidConfig, c.Timeout)
	}
	return nil
}

// budgetConfig maps the run limits into the budget tracker's view.
func (c Config) budgetConfig() BudgetConfig {
	return BudgetConfig{
		MaxNodes:  c.MaxNodes,
		TimeLimit: c.Timeout,
	}
}
