package coin

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/saintthor/chainplay/crypto"
)

// PayloadType tags which of the three Block payload variants is present.
type PayloadType string

const (
	PayloadRoot      PayloadType = "root"
	PayloadOwnership PayloadType = "ownership"
	PayloadTransfer  PayloadType = "transfer"
)

// RootPayload anchors a Chain to a Definition and a serial number.
type RootPayload struct {
	DefinitionFingerprint string `json:"definition_fingerprint"`
	SerialNumber          int64  `json:"serial_number"`
}

// OwnershipPayload is the first owner declaration for a freshly minted chain.
type OwnershipPayload struct {
	Owner crypto.PublicKey `json:"owner_public_key"`
}

// TransferPayload moves a chain to a new owner.
type TransferPayload struct {
	ChainID string           `json:"chain_id"`
	Target  crypto.PublicKey `json:"target_public_key"`
}

// Block is an immutable, signed record: one of Root/Ownership/Transfer,
// chained to a predecessor by PrevBlockID, authenticated by Creator's
// signature over ID. Construction is the two-step ritual from spec §4.2:
// build with fields set and ID computed, then Sign attaches the signature.
type Block struct {
	PayloadType PayloadType       `json:"payload_type"`
	Root        *RootPayload      `json:"root,omitempty"`
	Ownership   *OwnershipPayload `json:"ownership,omitempty"`
	Transfer    *TransferPayload  `json:"transfer,omitempty"`

	PrevBlockID string           `json:"prev_block_id,omitempty"` // empty for Root
	Creator     crypto.PublicKey `json:"creator_public_key"`
	Timestamp   int64            `json:"timestamp"` // logical tick

	ID        string          `json:"id"`
	Signature crypto.Signature `json:"signature"`
}

// NewRootBlock builds an unsigned Root block.
func NewRootBlock(definitionFingerprint string, serial int64, creator crypto.PublicKey, tick int64) *Block {
	b := &Block{
		PayloadType: PayloadRoot,
		Root:        &RootPayload{DefinitionFingerprint: definitionFingerprint, SerialNumber: serial},
		Creator:     creator,
		Timestamp:   tick,
	}
	b.ID = b.computeID()
	return b
}

// NewOwnershipBlock builds an unsigned Ownership block.
func NewOwnershipBlock(prevBlockID string, owner crypto.PublicKey, tick int64) *Block {
	b := &Block{
		PayloadType: PayloadOwnership,
		Ownership:   &OwnershipPayload{Owner: owner},
		PrevBlockID: prevBlockID,
		Creator:     owner,
		Timestamp:   tick,
	}
	b.ID = b.computeID()
	return b
}

// NewTransferBlock builds an unsigned Transfer block. creator must be the
// chain's current owner.
func NewTransferBlock(prevBlockID, chainID string, creator, target crypto.PublicKey, tick int64) *Block {
	b := &Block{
		PayloadType: PayloadTransfer,
		Transfer:    &TransferPayload{ChainID: chainID, Target: target},
		PrevBlockID: prevBlockID,
		Creator:     creator,
		Timestamp:   tick,
	}
	b.ID = b.computeID()
	return b
}

// Sign attaches priv's signature over b.ID. priv must belong to b.Creator.
func (b *Block) Sign(priv crypto.PrivateKey) error {
	sig, err := crypto.Sign(priv, []byte(b.ID))
	if err != nil {
		return fmt.Errorf("coin: sign block: %w", err)
	}
	b.Signature = sig
	return nil
}

// computeID returns the canonical SHA-256 hash of (payload, prev_block_id,
// creator_public_key, timestamp), length-prefixing each component so that
// no field boundary is ambiguous. Must be called before Sign and must
// never change once a Block has been constructed.
func (b *Block) computeID() string {
	var buf bytes.Buffer
	writeLenPrefixed(&buf, []byte(b.PayloadType))
	switch b.PayloadType {
	case PayloadRoot:
		writeLenPrefixed(&buf, []byte(b.Root.DefinitionFingerprint))
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(b.Root.SerialNumber))
		buf.Write(n[:])
	case PayloadOwnership:
		writeLenPrefixed(&buf, []byte(b.Ownership.Owner))
	case PayloadTransfer:
		writeLenPrefixed(&buf, []byte(b.Transfer.ChainID))
		writeLenPrefixed(&buf, []byte(b.Transfer.Target))
	}
	writeLenPrefixed(&buf, []byte(b.PrevBlockID))
	writeLenPrefixed(&buf, []byte(b.Creator))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(b.Timestamp))
	buf.Write(ts[:])
	return crypto.Hash(buf.Bytes())
}

// VerifyID reports whether b.ID matches the value computeID would produce
// from b's current fields — i.e. that b has not been tampered with since
// construction.
func (b *Block) VerifyID() bool {
	return b.ID == b.computeID()
}

// VerifySignature reports whether b.Signature is a valid signature by
// b.Creator over b.ID. It recomputes ID first (spec §4.3 verify_signature).
func (b *Block) VerifySignature() (bool, error) {
	if !b.VerifyID() {
		return false, nil
	}
	return crypto.Verify(b.Creator, []byte(b.ID), b.Signature)
}

// TargetOwner returns the new owner this block establishes: the Ownership
// owner, the Transfer target, or "" for a Root block (which establishes no
// owner by itself).
func (b *Block) TargetOwner() crypto.PublicKey {
	switch b.PayloadType {
	case PayloadOwnership:
		return b.Ownership.Owner
	case PayloadTransfer:
		return b.Transfer.Target
	default:
		return ""
	}
}
