package coin

import (
	"fmt"

	"github.com/saintthor/chainplay/crypto"
)

// AppendReason explains why Chain.Append accepted or rejected a block.
type AppendReason string

const (
	Accepted            AppendReason = "Accepted"
	BadPrevLink          AppendReason = "BadPrevLink"
	BadSignature         AppendReason = "BadSignature"
	WrongCreator         AppendReason = "WrongCreator"
	UnexpectedPayload    AppendReason = "UnexpectedPayload"
)

// AppendResult is the {accepted, reason} pair Chain.Append returns.
type AppendResult struct {
	Accepted bool
	Reason   AppendReason
}

// Chain is an append-only ordered history of Blocks rooted at a Root
// block. ChainID equals the Root block's ID.
type Chain struct {
	definition *Definition
	serial     int64

	blocks []*Block
	byID   map[string]*Block

	currentOwner crypto.PublicKey
}

// NewChain starts a Chain from a validated Root block. The block must carry
// a payload matching def's fingerprint and the given serial number.
func NewChain(root *Block, def *Definition, serial int64) (*Chain, error) {
	if root.PayloadType != PayloadRoot {
		return nil, fmt.Errorf("coin: chain root must be a Root block, got %s", root.PayloadType)
	}
	if root.Root.DefinitionFingerprint != def.Fingerprint {
		return nil, fmt.Errorf("coin: root definition fingerprint mismatch")
	}
	if root.Root.SerialNumber != serial {
		return nil, fmt.Errorf("coin: root serial number mismatch: got %d want %d", root.Root.SerialNumber, serial)
	}
	if ok, err := root.VerifySignature(); err != nil || !ok {
		return nil, fmt.Errorf("coin: root block signature invalid")
	}
	c := &Chain{
		definition: def,
		serial:     serial,
		blocks:     []*Block{root},
		byID:       map[string]*Block{root.ID: root},
	}
	return c, nil
}

// ChainID is the id of the Root block.
func (c *Chain) ChainID() string { return c.blocks[0].ID }

// Definition returns the Definition this chain was minted from.
func (c *Chain) Definition() *Definition { return c.definition }

// SerialNumber returns the chain's serial number.
func (c *Chain) SerialNumber() int64 { return c.serial }

// GetRoot returns the chain's Root block.
func (c *Chain) GetRoot() *Block { return c.blocks[0] }

// GetLatest returns the most recently appended block.
func (c *Chain) GetLatest() *Block { return c.blocks[len(c.blocks)-1] }

// GetCurrentOwner returns the target of the last Transfer, or the
// Ownership block's owner if there have been no Transfers yet. Returns ""
// if the chain has no Ownership block (root only).
func (c *Chain) GetCurrentOwner() crypto.PublicKey { return c.currentOwner }

// GetValue returns the chain's face value, per the Definition's ranges.
func (c *Chain) GetValue() uint64 { return c.definition.ValueOf(c.serial) }

// HasBlock reports whether id is present in this chain.
func (c *Chain) HasBlock(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// FindChildOf returns the already-appended block whose PrevBlockID equals
// prevID, if any. Used by the validator to detect a position conflict
// before Append is attempted.
func (c *Chain) FindChildOf(prevID string) (*Block, bool) {
	for _, b := range c.blocks {
		if b.PrevBlockID == prevID {
			return b, true
		}
	}
	return nil, false
}

// GetBlock returns the block with the given id, if present.
func (c *Chain) GetBlock(id string) (*Block, bool) {
	b, ok := c.byID[id]
	return b, ok
}

// AllBlocks returns the chain's blocks in order. The caller must not mutate
// the returned slice or its elements.
func (c *Chain) AllBlocks() []*Block { return c.blocks }

// Append enforces the structural invariants from spec §3/§4.2:
//   - the second block, if this is the first Append, must be an Ownership
//     block linking to the root;
//   - every subsequent block must be a Transfer linking to the current
//     latest block, created (signed) by the current owner.
//
// It never mutates the chain on rejection.
func (c *Chain) Append(b *Block) AppendResult {
	latest := c.GetLatest()

	if b.PrevBlockID != latest.ID {
		return AppendResult{false, BadPrevLink}
	}

	switch {
	case len(c.blocks) == 1: // expecting the Ownership block
		if b.PayloadType != PayloadOwnership {
			return AppendResult{false, UnexpectedPayload}
		}
	default: // expecting a Transfer block
		if b.PayloadType != PayloadTransfer {
			return AppendResult{false, UnexpectedPayload}
		}
		if b.Transfer.ChainID != c.ChainID() {
			return AppendResult{false, UnexpectedPayload}
		}
		if b.Creator != c.currentOwner {
			return AppendResult{false, WrongCreator}
		}
	}

	ok, err := b.VerifySignature()
	if err != nil || !ok {
		return AppendResult{false, BadSignature}
	}

	c.blocks = append(c.blocks, b)
	c.byID[b.ID] = b
	c.currentOwner = b.TargetOwner()
	return AppendResult{true, Accepted}
}

// ValidateFull re-walks every block in the chain and re-checks every
// append invariant from scratch, independent of how the blocks arrived.
// Used by ChainManager.ValidateIntegrity (spec §4.6) and by tests.
func (c *Chain) ValidateFull() error {
	if len(c.blocks) == 0 {
		return fmt.Errorf("coin: chain has no blocks")
	}
	root := c.blocks[0]
	if root.PayloadType != PayloadRoot {
		return fmt.Errorf("coin: first block is not Root")
	}
	if ok, err := root.VerifySignature(); err != nil || !ok {
		return fmt.Errorf("coin: root block signature invalid")
	}
	if root.Root.DefinitionFingerprint != c.definition.Fingerprint || root.Root.SerialNumber != c.serial {
		return fmt.Errorf("coin: root payload does not match chain definition/serial")
	}

	var owner crypto.PublicKey
	for i := 1; i < len(c.blocks); i++ {
		b := c.blocks[i]
		prev := c.blocks[i-1]
		if b.PrevBlockID != prev.ID {
			return fmt.Errorf("coin: block %d has bad prev link", i)
		}
		if i == 1 {
			if b.PayloadType != PayloadOwnership {
				return fmt.Errorf("coin: second block is not Ownership")
			}
		} else {
			if b.PayloadType != PayloadTransfer {
				return fmt.Errorf("coin: block %d is not Transfer", i)
			}
			if b.Creator != owner {
				return fmt.Errorf("coin: block %d creator does not match current owner", i)
			}
		}
		ok, err := b.VerifySignature()
		if err != nil || !ok {
			return fmt.Errorf("coin: block %d has invalid signature", i)
		}
		owner = b.TargetOwner()
	}
	if owner != c.currentOwner {
		return fmt.Errorf("coin: derived owner does not match cached current owner")
	}
	return nil
}
