package engine

import (
	"testing"

	"github.com/saintthor/chainplay/config"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.NodeCount = 3
	cfg.UserCount = 5
	cfg.Seed = 7
	return cfg
}

func TestInitBuildsEveryNodeAndUser(t *testing.T) {
	sim := New()
	if err := sim.Init(testConfig()); err != nil {
		t.Fatal(err)
	}
	if len(sim.nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(sim.nodes))
	}
	if len(sim.users) != 5 {
		t.Fatalf("expected 5 users, got %d", len(sim.users))
	}
}

func TestInitSeedsEveryNodeWithEveryChain(t *testing.T) {
	sim := New()
	if err := sim.Init(testConfig()); err != nil {
		t.Fatal(err)
	}
	for chainID := range sim.mgr.Chains() {
		for nodeID, n := range sim.nodes {
			if _, ok := n.GetChain(chainID); !ok {
				t.Fatalf("node %s has no local view of chain %s", nodeID, chainID)
			}
		}
	}
}

func TestManualTickAdvancesWithoutError(t *testing.T) {
	sim := New()
	if err := sim.Init(testConfig()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		sim.ManualTick()
	}
}

func TestInjectDoubleSpendSucceedsForSomeOwner(t *testing.T) {
	sim := New()
	cfg := testConfig()
	cfg.PaymentRate = 0
	if err := sim.Init(cfg); err != nil {
		t.Fatal(err)
	}
	var found bool
	for id := range sim.users {
		if err := sim.InjectAttack(id, DoubleSpend); err == nil {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("expected at least one user to own a chain and successfully double-spend")
	}
}

func TestBlacklistedSinceReflectsInjectedDoubleSpend(t *testing.T) {
	sim := New()
	cfg := testConfig()
	cfg.PaymentRate = 0
	if err := sim.Init(cfg); err != nil {
		t.Fatal(err)
	}
	var offender string
	for id := range sim.users {
		if err := sim.InjectAttack(id, DoubleSpend); err == nil {
			offender = string(sim.users[id].pub)
			break
		}
	}
	if offender == "" {
		t.Fatal("expected at least one user to own a chain and successfully double-spend")
	}
	for i := 0; i < 20; i++ {
		sim.ManualTick()
	}
	if _, blacklisted, err := sim.BlacklistedSince(offender); err != nil {
		t.Fatal(err)
	} else if !blacklisted {
		t.Fatal("expected the indexer to record the double-spender as blacklisted")
	}
}

func TestUpdateConfigRejectsUnknownKey(t *testing.T) {
	sim := New()
	if err := sim.Init(testConfig()); err != nil {
		t.Fatal(err)
	}
	if err := sim.UpdateConfig("not_a_real_key", 1.0); err == nil {
		t.Fatal("expected error for unknown config key")
	}
}
