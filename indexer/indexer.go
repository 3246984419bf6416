// Package indexer maintains secondary, non-authoritative lookup tables
// over the simulation's event stream — owner → chains and offender →
// blacklist-since-tick — so a host can query "what does Alice own" or
// "when was this key blacklisted" without walking every Node's local
// state. It is pure observability: nothing in the simulation's own logic
// ever reads from it (spec.md's Non-goals exclude persistence of core
// state; this is a read model built on top of the event stream, not a
// second copy of it).
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/saintthor/chainplay/events"
	"github.com/saintthor/chainplay/storage"
)

const (
	prefixOwnerChains   = "idx:owner:chain:"
	prefixBlacklistedAt = "idx:blacklist:"
)

// Indexer subscribes to the event stream and updates its lookup tables.
type Indexer struct {
	db  storage.DB
	bus *events.Emitter
}

// New creates an Indexer backed by db (typically storage.NewMemDB or a
// storage.LevelDB) and subscribes it to the relevant event types.
func New(db storage.DB, bus *events.Emitter) *Indexer {
	idx := &Indexer{db: db, bus: bus}
	bus.Subscribe(events.ChainTransferred, idx.onChainTransferred)
	bus.Subscribe(events.BlacklistUpdated, idx.onBlacklistUpdated)
	return idx
}

// ChainsOwnedBy returns every chain id indexed under owner.
func (idx *Indexer) ChainsOwnedBy(owner string) ([]string, error) {
	return idx.getList(prefixOwnerChains + owner)
}

// BlacklistedSince returns the tick offender was first blacklisted, and
// whether it has been blacklisted at all.
func (idx *Indexer) BlacklistedSince(offender string) (int64, bool, error) {
	data, err := idx.db.Get([]byte(prefixBlacklistedAt + offender))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var tick int64
	if err := json.Unmarshal(data, &tick); err != nil {
		return 0, false, fmt.Errorf("indexer: unmarshal blacklist tick: %w", err)
	}
	return tick, true, nil
}

func (idx *Indexer) onChainTransferred(ev events.Event) {
	chainID, _ := ev.Payload["chain_id"].(string)
	to, _ := ev.Payload["to"].(string)
	if chainID == "" || to == "" {
		return
	}
	if err := idx.addToList(prefixOwnerChains+to, chainID); err != nil {
		log.Printf("[indexer] chain transfer index write failed (owner=%s chain=%s): %v", to, chainID, err)
	}
}

func (idx *Indexer) onBlacklistUpdated(ev events.Event) {
	offender, _ := ev.Payload["offender"].(string)
	if offender == "" {
		return
	}
	key := []byte(prefixBlacklistedAt + offender)
	if _, err := idx.db.Get(key); err == nil {
		return // already recorded; keep the earliest tick
	}
	data, err := json.Marshal(ev.Tick)
	if err != nil {
		log.Printf("[indexer] blacklist index marshal failed (offender=%s): %v", offender, err)
		return
	}
	if err := idx.db.Set(key, data); err != nil {
		log.Printf("[indexer] blacklist index write failed (offender=%s): %v", offender, err)
	}
}

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer: unmarshal list: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("indexer: read list: %w", err)
	}
	for _, id := range ids {
		if id == value {
			return nil
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
