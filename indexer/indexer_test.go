package indexer

import (
	"testing"

	"github.com/saintthor/chainplay/events"
	"github.com/saintthor/chainplay/storage"
)

func TestChainTransferredIndexesNewOwner(t *testing.T) {
	bus := events.NewEmitter()
	idx := New(storage.NewMemDB(), bus)
	bus.Emit(events.Event{Type: events.ChainTransferred, Tick: 5, Payload: map[string]any{
		"chain_id": "chain-1", "to": "bob",
	}})
	chains, err := idx.ChainsOwnedBy("bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(chains) != 1 || chains[0] != "chain-1" {
		t.Fatalf("expected [chain-1], got %v", chains)
	}
}

func TestBlacklistUpdatedRecordsEarliestTick(t *testing.T) {
	bus := events.NewEmitter()
	idx := New(storage.NewMemDB(), bus)
	bus.Emit(events.Event{Type: events.BlacklistUpdated, Tick: 10, Payload: map[string]any{"offender": "mallory"}})
	bus.Emit(events.Event{Type: events.BlacklistUpdated, Tick: 20, Payload: map[string]any{"offender": "mallory"}})

	tick, ok, err := idx.BlacklistedSince("mallory")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || tick != 10 {
		t.Fatalf("expected tick 10, got %d (ok=%v)", tick, ok)
	}
}

func TestBlacklistedSinceUnknownOffender(t *testing.T) {
	bus := events.NewEmitter()
	idx := New(storage.NewMemDB(), bus)
	_, ok, err := idx.BlacklistedSince("nobody")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected ok=false for unknown offender")
	}
}
