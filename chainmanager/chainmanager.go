// Package chainmanager builds and audits the simulation's initial Chain
// population from a coin.Definition (spec.md §4.6).
package chainmanager

import (
	"fmt"

	"github.com/saintthor/chainplay/coin"
	"github.com/saintthor/chainplay/crypto"
	"github.com/saintthor/chainplay/simrand"
)

// User is the minimal identity ChainManager needs to mint an Ownership
// block: an id for accounting and the keypair that signs it.
type User struct {
	ID   string
	Priv crypto.PrivateKey
	Pub  crypto.PublicKey
}

// CreateResult is create_from_definition's return value (spec §4.6).
type CreateResult struct {
	TotalCreated  int
	ByUserCounts  map[string]int
	Chains        []*coin.Chain
}

// Manager holds the authority keypair that signs every Root block, and
// the chains it has minted. It does not mutate a Chain after handoff
// (spec §5, "shared resource policy").
type Manager struct {
	authority crypto.PrivateKey
	rnd       *simrand.Source
	chains    map[string]*coin.Chain
}

// New creates a Manager. authority signs every Root block this Manager
// mints; rnd drives (deterministic, replayable) owner assignment.
func New(authority crypto.PrivateKey, rnd *simrand.Source) *Manager {
	return &Manager{authority: authority, rnd: rnd, chains: make(map[string]*coin.Chain)}
}

// CreateFromDefinition mints one Chain per serial number in def, assigning
// an initial owner from users by seeded random draw so two runs with the
// same seed pick the same owners (spec §9, Scenario F).
func (m *Manager) CreateFromDefinition(def *coin.Definition, users []User) (CreateResult, error) {
	if len(users) == 0 {
		return CreateResult{}, fmt.Errorf("chainmanager: no users to assign chains to")
	}
	res := CreateResult{ByUserCounts: make(map[string]int)}
	for _, serial := range def.AllSerials() {
		root := coin.NewRootBlock(def.Fingerprint, serial, m.authority.Public(), 0)
		if err := root.Sign(m.authority); err != nil {
			return CreateResult{}, fmt.Errorf("chainmanager: sign root for serial %d: %w", serial, err)
		}
		chain, err := coin.NewChain(root, def, serial)
		if err != nil {
			return CreateResult{}, fmt.Errorf("chainmanager: new chain for serial %d: %w", serial, err)
		}

		owner := users[m.rnd.Intn(len(users))]
		own := coin.NewOwnershipBlock(root.ID, owner.Pub, 0)
		if err := own.Sign(owner.Priv); err != nil {
			return CreateResult{}, fmt.Errorf("chainmanager: sign ownership for serial %d: %w", serial, err)
		}
		if r := chain.Append(own); !r.Accepted {
			return CreateResult{}, fmt.Errorf("chainmanager: ownership rejected for serial %d: %s", serial, r.Reason)
		}

		m.chains[chain.ChainID()] = chain
		res.Chains = append(res.Chains, chain)
		res.TotalCreated++
		res.ByUserCounts[owner.ID]++
	}
	return res, nil
}

// Transfer is a convenience used by tests: builds, signs and appends a
// Transfer block to this Manager's own copy of chainID, moving it from
// fromUser to toUser's public key, failing if fromUser is not the current
// owner (spec §4.6).
func (m *Manager) Transfer(chainID string, fromUser, toUser User, tick int64) error {
	chain, ok := m.chains[chainID]
	if !ok {
		return fmt.Errorf("chainmanager: unknown chain %s", chainID)
	}
	if chain.GetCurrentOwner() != fromUser.Pub {
		return fmt.Errorf("chainmanager: %s is not the current owner of %s", fromUser.ID, chainID)
	}
	latest := chain.GetLatest()
	b := coin.NewTransferBlock(latest.ID, chainID, fromUser.Pub, toUser.Pub, tick)
	if err := b.Sign(fromUser.Priv); err != nil {
		return fmt.Errorf("chainmanager: sign transfer: %w", err)
	}
	r := chain.Append(b)
	if !r.Accepted {
		return fmt.Errorf("chainmanager: transfer rejected: %s", r.Reason)
	}
	return nil
}

// ValidateIntegrity walks every Chain this Manager minted and re-runs its
// full validation (spec §4.6).
func (m *Manager) ValidateIntegrity() error {
	for id, c := range m.chains {
		if err := c.ValidateFull(); err != nil {
			return fmt.Errorf("chainmanager: chain %s failed integrity check: %w", id, err)
		}
	}
	return nil
}

// Chains returns every Chain this Manager minted.
func (m *Manager) Chains() map[string]*coin.Chain { return m.chains }
