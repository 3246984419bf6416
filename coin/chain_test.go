package coin

import (
	"testing"

	"github.com/saintthor/chainplay/crypto"
)

func mustDef(t *testing.T) *Definition {
	t.Helper()
	def, err := NewDefinition("test notes", []SerialRange{{Start: 1, End: 10, Value: 100}})
	if err != nil {
		t.Fatal(err)
	}
	return def
}

func TestChainHappyTransfer(t *testing.T) {
	def := mustDef(t)
	authorityPriv, authorityPub, _ := crypto.GenerateKeyPair()
	alicePriv, alicePub, _ := crypto.GenerateKeyPair()
	_, bobPub, _ := crypto.GenerateKeyPair()

	root := NewRootBlock(def.Fingerprint, 1, authorityPub, 0)
	if err := root.Sign(authorityPriv); err != nil {
		t.Fatal(err)
	}
	chain, err := NewChain(root, def, 1)
	if err != nil {
		t.Fatal(err)
	}

	own := NewOwnershipBlock(root.ID, alicePub, 1)
	if err := own.Sign(alicePriv); err != nil {
		t.Fatal(err)
	}
	res := chain.Append(own)
	if !res.Accepted {
		t.Fatalf("ownership append rejected: %s", res.Reason)
	}
	if chain.GetCurrentOwner() != alicePub {
		t.Error("current owner should be alice")
	}

	transfer := NewTransferBlock(own.ID, chain.ChainID(), alicePub, bobPub, 10)
	if err := transfer.Sign(alicePriv); err != nil {
		t.Fatal(err)
	}
	res = chain.Append(transfer)
	if !res.Accepted {
		t.Fatalf("transfer append rejected: %s", res.Reason)
	}
	if chain.GetCurrentOwner() != bobPub {
		t.Error("current owner should be bob after transfer")
	}
	if chain.GetValue() != 100 {
		t.Errorf("value: got %d want 100", chain.GetValue())
	}
	if err := chain.ValidateFull(); err != nil {
		t.Errorf("ValidateFull: %v", err)
	}
}

func TestChainBadPrevLinkRejected(t *testing.T) {
	def := mustDef(t)
	authorityPriv, authorityPub, _ := crypto.GenerateKeyPair()
	alicePriv, alicePub, _ := crypto.GenerateKeyPair()
	_, bobPub, _ := crypto.GenerateKeyPair()

	root := NewRootBlock(def.Fingerprint, 1, authorityPub, 0)
	_ = root.Sign(authorityPriv)
	chain, _ := NewChain(root, def, 1)

	own := NewOwnershipBlock(root.ID, alicePub, 1)
	_ = own.Sign(alicePriv)
	chain.Append(own)

	// Transfer claims to link to root instead of the ownership block.
	bad := NewTransferBlock(root.ID, chain.ChainID(), alicePub, bobPub, 10)
	_ = bad.Sign(alicePriv)
	res := chain.Append(bad)
	if res.Accepted || res.Reason != BadPrevLink {
		t.Errorf("expected BadPrevLink, got accepted=%v reason=%s", res.Accepted, res.Reason)
	}
}

func TestChainDoubleSpendSecondRejected(t *testing.T) {
	def := mustDef(t)
	authorityPriv, authorityPub, _ := crypto.GenerateKeyPair()
	alicePriv, alicePub, _ := crypto.GenerateKeyPair()
	_, bobPub, _ := crypto.GenerateKeyPair()
	_, carolPub, _ := crypto.GenerateKeyPair()

	root := NewRootBlock(def.Fingerprint, 1, authorityPub, 0)
	_ = root.Sign(authorityPriv)
	chain, _ := NewChain(root, def, 1)
	own := NewOwnershipBlock(root.ID, alicePub, 1)
	_ = own.Sign(alicePriv)
	chain.Append(own)

	t1 := NewTransferBlock(own.ID, chain.ChainID(), alicePub, bobPub, 10)
	_ = t1.Sign(alicePriv)
	if res := chain.Append(t1); !res.Accepted {
		t.Fatalf("first transfer should be accepted: %s", res.Reason)
	}

	t2 := NewTransferBlock(own.ID, chain.ChainID(), alicePub, carolPub, 11)
	_ = t2.Sign(alicePriv)
	res := chain.Append(t2)
	if res.Accepted {
		t.Error("second transfer with same prev_block_id must be rejected by Append")
	}
	if res.Reason != BadPrevLink {
		t.Errorf("expected BadPrevLink (chain's latest moved on), got %s", res.Reason)
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	def := mustDef(t)
	authorityPriv, authorityPub, _ := crypto.GenerateKeyPair()
	alicePriv, alicePub, _ := crypto.GenerateKeyPair()

	root := NewRootBlock(def.Fingerprint, 1, authorityPub, 0)
	_ = root.Sign(authorityPriv)
	chain, _ := NewChain(root, def, 1)
	own := NewOwnershipBlock(root.ID, alicePub, 1)
	_ = own.Sign(alicePriv)
	chain.Append(own)

	data, err := SerializeChain(chain)
	if err != nil {
		t.Fatal(err)
	}
	restored, err := DeserializeChain(data)
	if err != nil {
		t.Fatal(err)
	}
	if restored.ChainID() != chain.ChainID() {
		t.Error("chain id mismatch after round trip")
	}
	if len(restored.AllBlocks()) != len(chain.AllBlocks()) {
		t.Error("block count mismatch after round trip")
	}
	if restored.GetCurrentOwner() != chain.GetCurrentOwner() {
		t.Error("current owner mismatch after round trip")
	}
}
