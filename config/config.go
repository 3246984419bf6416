// Package config defines the simulation's config schema (spec.md §6) and
// its fail-fast validation, following the teacher's config.Config shape.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/saintthor/chainplay/coin"
)

// RangeConfig is the JSON shape of one coin.SerialRange.
type RangeConfig struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Value uint64 `json:"value"`
}

// ChainDefinitionConfig describes the coin chains a run mints (spec §6's
// "chain_definition: description string + ranges").
type ChainDefinitionConfig struct {
	Description string        `json:"description"`
	Ranges      []RangeConfig `json:"ranges"`
}

// ToDefinition builds a coin.Definition from the config, computing its
// fingerprint.
func (c ChainDefinitionConfig) ToDefinition() (*coin.Definition, error) {
	ranges := make([]coin.SerialRange, len(c.Ranges))
	for i, r := range c.Ranges {
		ranges[i] = coin.SerialRange{Start: r.Start, End: r.End, Value: r.Value}
	}
	return coin.NewDefinition(c.Description, ranges)
}

// Config holds every tunable of one simulation run (spec §6).
type Config struct {
	Seed                  int64                 `json:"seed"`
	NodeCount             int                   `json:"node_count"`
	UserCount             int                   `json:"user_count"`
	MaxConnectionsPerNode int                   `json:"max_connections_per_node"`
	FailureRate           float64               `json:"failure_rate"`
	PaymentRate           float64               `json:"payment_rate"`
	TickIntervalMS        int                   `json:"tick_interval_ms"`
	DelayMin              int                   `json:"delay_min"`
	DelayMax              int                   `json:"delay_max"`
	ChainDefinition       ChainDefinitionConfig `json:"chain_definition"`
}

// DefaultConfig returns a small, valid development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeCount:             5,
		UserCount:             10,
		MaxConnectionsPerNode: 3,
		FailureRate:           0.0,
		PaymentRate:           0.05,
		TickIntervalMS:        200,
		DelayMin:              1,
		DelayMax:              9,
		ChainDefinition: ChainDefinitionConfig{
			Description: "dev run",
			Ranges:      []RangeConfig{{Start: 1, End: 20, Value: 1}},
		},
	}
}

// Load reads a JSON config file from path and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate %s: %w", path, err)
	}
	return cfg, nil
}

// Validate enforces every bound spec.md §6 names, failing fast at init
// rather than at some later, harder-to-diagnose point in the run.
func (c *Config) Validate() error {
	if c.NodeCount < 3 || c.NodeCount > 15 {
		return fmt.Errorf("node_count must be 3..15, got %d", c.NodeCount)
	}
	if c.UserCount < 5 || c.UserCount > 50 {
		return fmt.Errorf("user_count must be 5..50, got %d", c.UserCount)
	}
	if c.MaxConnectionsPerNode < 2 || c.MaxConnectionsPerNode > 6 {
		return fmt.Errorf("max_connections_per_node must be 2..6, got %d", c.MaxConnectionsPerNode)
	}
	if c.FailureRate < 0.0 || c.FailureRate > 1.0 {
		return fmt.Errorf("failure_rate must be 0.0..1.0, got %f", c.FailureRate)
	}
	if c.PaymentRate < 0.0 || c.PaymentRate > 1.0 {
		return fmt.Errorf("payment_rate must be 0.0..1.0, got %f", c.PaymentRate)
	}
	if c.TickIntervalMS <= 0 {
		return fmt.Errorf("tick_interval_ms must be positive, got %d", c.TickIntervalMS)
	}
	if c.DelayMin < 1 || c.DelayMin > 9 {
		return fmt.Errorf("delay_min must be 1..9, got %d", c.DelayMin)
	}
	if c.DelayMax < 1 || c.DelayMax > 9 {
		return fmt.Errorf("delay_max must be 1..9, got %d", c.DelayMax)
	}
	if c.DelayMin > c.DelayMax {
		return fmt.Errorf("delay_min (%d) must not exceed delay_max (%d)", c.DelayMin, c.DelayMax)
	}
	if len(c.ChainDefinition.Ranges) == 0 {
		return fmt.Errorf("chain_definition.ranges must not be empty")
	}
	if _, err := c.ChainDefinition.ToDefinition(); err != nil {
		return fmt.Errorf("chain_definition: %w", err)
	}
	return nil
}

// Save writes cfg to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
