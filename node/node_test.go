package node

import (
	"testing"

	"github.com/saintthor/chainplay/coin"
	"github.com/saintthor/chainplay/crypto"
	"github.com/saintthor/chainplay/events"
	"github.com/saintthor/chainplay/router"
	"github.com/saintthor/chainplay/simrand"
)

func setupTwoNodes(t *testing.T) (*Node, *Node, *router.Router, *coin.Chain, crypto.PrivateKey, crypto.PublicKey) {
	t.Helper()
	bus := events.NewEmitter()
	rtr := router.New(router.Config{MinDelay: 1, MaxDelay: 3}, simrand.New(7), bus)

	aPriv, _, _ := crypto.GenerateKeyPair()
	bPriv, _, _ := crypto.GenerateKeyPair()
	a := New("node-a", aPriv, bus, rtr, 6, 50)
	b := New("node-b", bPriv, bus, rtr, 6, 50)
	a.Connect("node-b")
	b.Connect("node-a")

	def, err := coin.NewDefinition("d", []coin.SerialRange{{Start: 1, End: 1, Value: 10}})
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

	a.AdoptChain(chain)
	if err := a.HostUser("alice", alicePriv, "pw"); err != nil {
		t.Fatal(err)
	}
	return a, b, rtr, chain, alicePriv, alicePub
}

func TestTransferPropagatesToPeer(t *testing.T) {
	a, b, rtr, chain, _, _ := setupTwoNodes(t)
	_, bobPub, _ := crypto.GenerateKeyPair()

	wire, err := coin.SerializeChain(chain)
	if err != nil {
		t.Fatal(err)
	}
	bChain, err := coin.DeserializeChain(wire)
	if err != nil {
		t.Fatal(err)
	}
	b.AdoptChain(bChain)

	if err := a.Transfer("alice", "pw", chain.ChainID(), bobPub); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		a.SetTick(int64(i))
		b.SetTick(int64(i))
		rtr.AdvanceTick()
	}
	got, ok := b.GetChain(chain.ChainID())
	if !ok {
		t.Fatal("node-b does not know the chain")
	}
	if got.GetCurrentOwner() != bobPub {
		t.Errorf("expected node-b's view to reflect the transfer, owner=%s", got.GetCurrentOwner())
	}
}
