package config

import "testing"

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsOutOfRangeNodeCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NodeCount = 2
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for node_count below minimum")
	}
	cfg.NodeCount = 16
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for node_count above maximum")
	}
}

func TestValidateRejectsDelayMinAboveMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DelayMin = 9
	cfg.DelayMax = 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when delay_min exceeds delay_max")
	}
}

func TestValidateRejectsEmptyChainDefinition(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChainDefinition.Ranges = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty chain_definition ranges")
	}
}
