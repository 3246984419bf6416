// Package validator implements the stateless predicates a Node runs over
// incoming Blocks: signature validity, link integrity, timing, and fork /
// double-spend detection (spec §4.3).
package validator

import (
	"github.com/saintthor/chainplay/coin"
	"github.com/saintthor/chainplay/crypto"
)

// Reason is the ValidationError taxonomy from spec §7.
type Reason string

const (
	BadSignature       Reason = "BadSignature"
	BadLink            Reason = "BadLink"
	TimingOutOfWindow  Reason = "TimingOutOfWindow"
	UnknownChain       Reason = "UnknownChain"
	BlacklistedCreator Reason = "BlacklistedCreator"
	MalformedPayload   Reason = "MalformedPayload"
)

// ForkKind distinguishes the two ways detect_fork can flag a competing
// block (spec §4.3).
type ForkKind string

const (
	NoFork           ForkKind = "None"
	PositionConflict ForkKind = "PositionConflict"
	DoubleSpend      ForkKind = "DoubleSpend"
)

// ForkResult is the outcome of detect_fork: the kind, and — for anything
// but NoFork — the competing block already occupying that position.
type ForkResult struct {
	Kind      ForkKind
	Competing *coin.Block
}

// View is the read-only slice of a Node's local state the Validator needs:
// its known chains, blacklist, and recent-message cache. Node implements
// this directly.
type View interface {
	GetChain(chainID string) (*coin.Chain, bool)
	IsBlacklisted(pub crypto.PublicKey) bool
	SeenRecently(id string) bool
}

// Validator holds only a bounded, non-authoritative signature-verification
// cache (spec §4.3). It carries no other state.
type Validator struct {
	cache *signatureCache
}

// New creates a Validator with a signature cache capped at capacity
// entries (0 disables caching).
func New(capacity int) *Validator {
	return &Validator{cache: newSignatureCache(capacity)}
}

// VerifySignature recomputes b's id and checks its signature, consulting
// (and populating) the bounded cache keyed by block id.
func (v *Validator) VerifySignature(b *coin.Block) (bool, error) {
	if cached, ok := v.cache.get(b.ID); ok {
		return cached, nil
	}
	ok, err := b.VerifySignature()
	if err == nil {
		v.cache.put(b.ID, ok)
	}
	return ok, err
}

// VerifyLink checks that b.PrevBlockID correctly chains onto chain and
// that b's creator holds the right role for its payload type (spec §4.3).
func (v *Validator) VerifyLink(b *coin.Block, chain *coin.Chain) bool {
	switch b.PayloadType {
	case coin.PayloadOwnership:
		return b.PrevBlockID == chain.GetRoot().ID
	case coin.PayloadTransfer:
		return b.PrevBlockID == chain.GetLatest().ID && b.Creator == chain.GetCurrentOwner()
	default:
		return false
	}
}

// VerifyTiming rejects blocks timestamped in the future or older than
// maxDelay ticks (spec §4.3).
func (v *Validator) VerifyTiming(b *coin.Block, currentTick int64, maxDelay int64) bool {
	if b.Timestamp > currentTick {
		return false
	}
	if currentTick-b.Timestamp > maxDelay {
		return false
	}
	return true
}

// DetectFork implements spec §4.3's detect_fork predicate.
func (v *Validator) DetectFork(newBlock *coin.Block, chain *coin.Chain) ForkResult {
	if newBlock.PrevBlockID == chain.GetLatest().ID {
		if _, exists := chain.FindChildOf(newBlock.PrevBlockID); !exists {
			return ForkResult{Kind: NoFork}
		}
	}
	existing, ok := chain.FindChildOf(newBlock.PrevBlockID)
	if !ok || existing.ID == newBlock.ID {
		return ForkResult{Kind: NoFork}
	}
	if existing.Creator == newBlock.Creator &&
		existing.PayloadType == coin.PayloadTransfer && newBlock.PayloadType == coin.PayloadTransfer &&
		existing.Transfer.Target != newBlock.Transfer.Target {
		return ForkResult{Kind: DoubleSpend, Competing: existing}
	}
	return ForkResult{Kind: PositionConflict, Competing: existing}
}

// ValidateReception is the coarse gate applied before full validation:
// well-formedness, signature, and replay suppression (spec §4.3).
func (v *Validator) ValidateReception(b *coin.Block, broadcastID string, view View) (bool, Reason) {
	if b == nil || b.Creator == "" || !b.VerifyID() {
		return false, MalformedPayload
	}
	if view.SeenRecently(broadcastID) {
		return false, MalformedPayload
	}
	ok, err := v.VerifySignature(b)
	if err != nil || !ok {
		return false, BadSignature
	}
	return true, ""
}

// ValidateBlock runs the full reception pipeline: blacklist → signature →
// chain lookup → link → timing. Fork detection runs only when the link
// check fails, and a detected fork is returned instead of BadLink.
// chainID identifies the Chain b claims to extend/transfer.
func (v *Validator) ValidateBlock(b *coin.Block, chainID string, currentTick, maxDelay int64, view View) (Reason, ForkResult) {
	if view.IsBlacklisted(b.Creator) {
		return BlacklistedCreator, ForkResult{Kind: NoFork}
	}
	ok, err := v.VerifySignature(b)
	if err != nil || !ok {
		return BadSignature, ForkResult{Kind: NoFork}
	}
	chain, known := view.GetChain(chainID)
	if !known {
		return UnknownChain, ForkResult{Kind: NoFork}
	}
	if !v.VerifyLink(b, chain) {
		fr := v.DetectFork(b, chain)
		if fr.Kind != NoFork {
			return "", fr
		}
		return BadLink, ForkResult{Kind: NoFork}
	}
	if !v.VerifyTiming(b, currentTick, maxDelay) {
		return TimingOutOfWindow, ForkResult{Kind: NoFork}
	}
	return "", ForkResult{Kind: NoFork}
}
