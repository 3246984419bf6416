package validator

import (
	"testing"

	"github.com/saintthor/chainplay/coin"
	"github.com/saintthor/chainplay/crypto"
)

type fakeView struct {
	chains      map[string]*coin.Chain
	blacklisted map[crypto.PublicKey]bool
	seen        map[string]bool
}

func newFakeView() *fakeView {
	return &fakeView{
		chains:      make(map[string]*coin.Chain),
		blacklisted: make(map[crypto.PublicKey]bool),
		seen:        make(map[string]bool),
	}
}

func (v *fakeView) GetChain(chainID string) (*coin.Chain, bool) { c, ok := v.chains[chainID]; return c, ok }
func (v *fakeView) IsBlacklisted(pub crypto.PublicKey) bool     { return v.blacklisted[pub] }
func (v *fakeView) SeenRecently(id string) bool                 { return v.seen[id] }

func setupChain(t *testing.T) (*coin.Chain, crypto.PrivateKey, crypto.PublicKey) {
	t.Helper()
	def, err := coin.NewDefinition("d", []coin.SerialRange{{Start: 1, End: 1, Value: 100}})
	if err != nil {
		t.Fatal(err)
	}
	authPriv, authPub, _ := crypto.GenerateKeyPair()
	root := coin.NewRootBlock(def.Fingerprint, 1, authPub, 0)
	_ = root.Sign(authPriv)
	chain, err := coin.NewChain(root, def, 1)
	if err != nil {
		t.Fatal(err)
	}
	alicePriv, alicePub, _ := crypto.GenerateKeyPair()
	own := coin.NewOwnershipBlock(root.ID, alicePub, 1)
	_ = own.Sign(alicePriv)
	if res := chain.Append(own); !res.Accepted {
		t.Fatalf("ownership append rejected: %s", res.Reason)
	}
	return chain, alicePriv, alicePub
}

func TestValidateBlockHappyPath(t *testing.T) {
	chain, alicePriv, alicePub := setupChain(t)
	_, bobPub, _ := crypto.GenerateKeyPair()

	view := newFakeView()
	view.chains[chain.ChainID()] = chain

	tr := coin.NewTransferBlock(chain.GetLatest().ID, chain.ChainID(), alicePub, bobPub, 10)
	_ = tr.Sign(alicePriv)

	v := New(128)
	reason, fork := v.ValidateBlock(tr, chain.ChainID(), 10, 9, view)
	if reason != "" || fork.Kind != NoFork {
		t.Fatalf("expected accept, got reason=%s fork=%s", reason, fork.Kind)
	}
}

func TestValidateBlockFutureTimestampRejected(t *testing.T) {
	chain, alicePriv, alicePub := setupChain(t)
	_, bobPub, _ := crypto.GenerateKeyPair()
	view := newFakeView()
	view.chains[chain.ChainID()] = chain

	tr := coin.NewTransferBlock(chain.GetLatest().ID, chain.ChainID(), alicePub, bobPub, 20)
	_ = tr.Sign(alicePriv)

	v := New(128)
	reason, _ := v.ValidateBlock(tr, chain.ChainID(), 10, 9, view)
	if reason != TimingOutOfWindow {
		t.Errorf("expected TimingOutOfWindow, got %s", reason)
	}
}

func TestValidateBlockBlacklistedCreatorRejected(t *testing.T) {
	chain, alicePriv, alicePub := setupChain(t)
	_, bobPub, _ := crypto.GenerateKeyPair()
	view := newFakeView()
	view.chains[chain.ChainID()] = chain
	view.blacklisted[alicePub] = true

	tr := coin.NewTransferBlock(chain.GetLatest().ID, chain.ChainID(), alicePub, bobPub, 10)
	_ = tr.Sign(alicePriv)

	v := New(128)
	reason, _ := v.ValidateBlock(tr, chain.ChainID(), 10, 9, view)
	if reason != BlacklistedCreator {
		t.Errorf("expected BlacklistedCreator, got %s", reason)
	}
}

func TestDetectForkDoubleSpend(t *testing.T) {
	chain, alicePriv, alicePub := setupChain(t)
	_, bobPub, _ := crypto.GenerateKeyPair()
	_, carolPub, _ := crypto.GenerateKeyPair()

	t1 := coin.NewTransferBlock(chain.GetLatest().ID, chain.ChainID(), alicePub, bobPub, 10)
	_ = t1.Sign(alicePriv)
	if res := chain.Append(t1); !res.Accepted {
		t.Fatalf("first transfer should accept: %s", res.Reason)
	}

	t2 := coin.NewTransferBlock(t1.PrevBlockID, chain.ChainID(), alicePub, carolPub, 11)
	_ = t2.Sign(alicePriv)

	v := New(128)
	fr := v.DetectFork(t2, chain)
	if fr.Kind != DoubleSpend {
		t.Errorf("expected DoubleSpend, got %s", fr.Kind)
	}
	if fr.Competing.ID != t1.ID {
		t.Error("competing block should be the first accepted transfer")
	}
}
