// Package node implements the per-participant state machine of spec.md
// §4.5: a local, independent view of every Chain it knows about, a local
// blacklist, a loop-suppression cache, and the peer set it gossips with
// over the shared Router.
package node

import (
	"container/list"
	"fmt"
	"log"

	"github.com/saintthor/chainplay/coin"
	"github.com/saintthor/chainplay/crypto"
	"github.com/saintthor/chainplay/events"
	"github.com/saintthor/chainplay/identity"
	"github.com/saintthor/chainplay/router"
	"github.com/saintthor/chainplay/validator"
)

// ForkEvidence is the payload of a FORK_WARNING/BLACKLIST_UPDATE message:
// the two competing blocks that prove a double-spend or position conflict.
type ForkEvidence struct {
	ChainID string
	A       *coin.Block
	B       *coin.Block
	Offender crypto.PublicKey
}

// ConnectionDecision is the payload of a CONNECTION_REQUEST reply.
type ConnectionDecision struct {
	Accepted bool
}

// Node is one participant in the simulation. It is driven entirely by
// synchronous calls from the Scheduler/Router on a single goroutine (spec
// §5) — no internal locking is needed.
type Node struct {
	ID        string
	pub       crypto.PublicKey
	priv      crypto.PrivateKey
	keystore  *identity.Keystore
	router    *router.Router
	validator *validator.Validator
	bus       *events.Emitter

	maxConnections int
	peers          map[string]bool

	chains     map[string]*coin.Chain
	blacklist  map[crypto.PublicKey]bool
	recent     *recentCache
	tick       int64
	maxDelay   int64
}

// New creates a Node identified by id, with its own keypair (used to sign
// node-level, non-User-attributed traffic like CONNECTION_REQUEST).
func New(id string, priv crypto.PrivateKey, bus *events.Emitter, rtr *router.Router, maxConnections int, maxDelay int64) *Node {
	n := &Node{
		ID:             id,
		pub:            priv.Public(),
		priv:           priv,
		keystore:       identity.NewKeystore(),
		router:         rtr,
		validator:      validator.New(1024),
		bus:            bus,
		maxConnections: maxConnections,
		peers:          make(map[string]bool),
		chains:         make(map[string]*coin.Chain),
		blacklist:      make(map[crypto.PublicKey]bool),
		recent:         newRecentCache(4096),
		maxDelay:       maxDelay,
	}
	rtr.Register(id, n)
	return n
}

// HostUser entrusts a User's private key to this Node (spec §4.5).
func (n *Node) HostUser(userID string, priv crypto.PrivateKey, passphrase string) error {
	return n.keystore.Host(userID, priv, passphrase)
}

// AdoptChain seeds this Node's local view with a Chain it already trusts
// (e.g. handed to it at simulation init by ChainManager).
func (n *Node) AdoptChain(c *coin.Chain) {
	n.chains[c.ChainID()] = c
}

// GetChain implements validator.View.
func (n *Node) GetChain(chainID string) (*coin.Chain, bool) {
	c, ok := n.chains[chainID]
	return c, ok
}

// IsBlacklisted implements validator.View.
func (n *Node) IsBlacklisted(pub crypto.PublicKey) bool { return n.blacklist[pub] }

// SeenRecently implements validator.View.
func (n *Node) SeenRecently(id string) bool { return n.recent.seen(id) }

// SetTick updates the Node's notion of current tick; the Scheduler calls
// this once per tick before delivering anything.
func (n *Node) SetTick(tick int64) { n.tick = tick }

// Connect registers a direct peer link both ways are expected to honor;
// the simulation's topology builder is responsible for symmetry.
func (n *Node) Connect(peerID string) bool {
	if len(n.peers) >= n.maxConnections {
		return false
	}
	n.peers[peerID] = true
	return true
}

// Disconnect removes a peer link.
func (n *Node) Disconnect(peerID string) { delete(n.peers, peerID) }

// Peers returns the current peer id set as a slice, for Router.Broadcast's
// connections map.
func (n *Node) Peers() []string {
	out := make([]string, 0, len(n.peers))
	for p := range n.peers {
		out = append(out, p)
	}
	return out
}

// Receive implements router.Receiver — the entry point for every message
// delivered to this Node (spec §4.5).
func (n *Node) Receive(msg router.Message, from string) {
	if creator, ok := creatorOf(msg); ok && n.blacklist[creator] {
		return
	}

	switch msg.Kind {
	case router.KindBlockBroadcast:
		n.handleBlockBroadcast(msg, from)
	case router.KindForkWarning:
		n.handleForkEvidence(msg, from, true)
	case router.KindBlacklistUpdate:
		n.handleForkEvidence(msg, from, false)
	case router.KindConnectionReq:
		n.handleConnectionRequest(msg, from)
	case router.KindHeartbeat:
		// liveness only; no action taken.
	default:
		log.Printf("[node %s] unknown message kind %s", n.ID, msg.Kind)
	}
}

func creatorOf(msg router.Message) (crypto.PublicKey, bool) {
	if b, ok := msg.Payload.(*coin.Block); ok {
		return b.Creator, true
	}
	return "", false
}

func (n *Node) handleBlockBroadcast(msg router.Message, from string) {
	b, ok := msg.Payload.(*coin.Block)
	if !ok {
		return
	}

	// Loop suppression: a broadcast already seen here is dropped silently.
	if msg.BroadcastID != "" && n.recent.seen(msg.BroadcastID) {
		return
	}
	accepted, reason := n.validator.ValidateReception(b, msg.BroadcastID, n)
	if msg.BroadcastID != "" {
		n.recent.remember(msg.BroadcastID)
	}
	if !accepted {
		n.emit(events.BlockRejected, map[string]any{"block_id": b.ID, "reason": string(reason)})
		return
	}

	cid := ""
	if b.Transfer != nil {
		cid = b.Transfer.ChainID
	}
	if cid == "" {
		// Ownership/Root blocks belong to the chain keyed by their own id
		// lineage; the broadcaster tags the chain id out of band via Hops
		// field reuse is avoided — callers always set Payload to a block
		// whose chain is already known locally by root/ownership linkage.
		cid = b.PrevBlockID
	}
	chain, known := n.lookupChainFor(b, cid)
	if !known {
		n.emit(events.BlockRejected, map[string]any{"block_id": b.ID, "reason": string(validator.UnknownChain)})
		return
	}

	reason, fork := n.validator.ValidateBlock(b, chain.ChainID(), n.tick, n.maxDelay, n)
	if fork.Kind != validator.NoFork {
		n.handleDetectedFork(chain, b, fork)
		return
	}
	if reason != "" {
		n.emit(events.BlockRejected, map[string]any{"block_id": b.ID, "reason": string(reason)})
		return
	}
	res := chain.Append(b)
	if !res.Accepted {
		n.emit(events.BlockRejected, map[string]any{"block_id": b.ID, "reason": string(res.Reason)})
		return
	}
	n.emit(events.BlockAccepted, map[string]any{"block_id": b.ID, "chain_id": chain.ChainID()})
	n.rebroadcast(msg, from)
}

func (n *Node) lookupChainFor(b *coin.Block, hint string) (*coin.Chain, bool) {
	if c, ok := n.chains[hint]; ok {
		return c, true
	}
	for _, c := range n.chains {
		if c.HasBlock(b.PrevBlockID) {
			return c, true
		}
	}
	return nil, false
}

func (n *Node) handleDetectedFork(chain *coin.Chain, b *coin.Block, fork validator.ForkResult) {
	n.emit(events.ForkDetected, map[string]any{
		"chain_id": chain.ChainID(), "block_id": b.ID, "competing_id": fork.Competing.ID, "kind": string(fork.Kind),
	})
	n.blacklist[b.Creator] = true
	n.emit(events.BlacklistUpdated, map[string]any{"offender": string(b.Creator)})

	evidence := &ForkEvidence{ChainID: chain.ChainID(), A: fork.Competing, B: b, Offender: b.Creator}
	warn := router.Message{Kind: router.KindForkWarning, Payload: evidence}
	n.router.Broadcast(warn, n.ID, n.peerConnections())
	bl := router.Message{Kind: router.KindBlacklistUpdate, Payload: evidence}
	n.router.Broadcast(bl, n.ID, n.peerConnections())
}

func (n *Node) handleForkEvidence(msg router.Message, from string, forward bool) {
	ev, ok := msg.Payload.(*ForkEvidence)
	if !ok {
		return
	}
	if !n.verifyForkEvidence(ev) {
		return
	}
	if n.blacklist[ev.Offender] {
		return
	}
	n.blacklist[ev.Offender] = true
	n.emit(events.BlacklistUpdated, map[string]any{"offender": string(ev.Offender)})
	n.rebroadcast(msg, from)
}

// verifyForkEvidence checks that both blocks are validly signed and both
// legitimately claim the same prior position (spec §4.5).
func (n *Node) verifyForkEvidence(ev *ForkEvidence) bool {
	okA, errA := n.validator.VerifySignature(ev.A)
	okB, errB := n.validator.VerifySignature(ev.B)
	if errA != nil || errB != nil || !okA || !okB {
		return false
	}
	return ev.A.PrevBlockID == ev.B.PrevBlockID && ev.A.ID != ev.B.ID
}

func (n *Node) handleConnectionRequest(msg router.Message, from string) {
	accepted := n.Connect(from)
	reply := router.Message{Kind: router.KindConnectionReq, Payload: &ConnectionDecision{Accepted: accepted}}
	n.router.Route(reply, n.ID, from)
}

// rebroadcast forwards msg to every peer except the one it arrived from,
// reusing the original broadcast id so recipients can still deduplicate.
func (n *Node) rebroadcast(msg router.Message, from string) {
	fwd := msg
	for peer := range n.peers {
		if peer == from {
			continue
		}
		n.router.Route(fwd, n.ID, peer)
	}
}

func (n *Node) peerConnections() map[string][]string {
	return map[string][]string{n.ID: n.Peers()}
}

func (n *Node) emit(typ events.Type, payload map[string]any) {
	if n.bus == nil {
		return
	}
	payload["node_id"] = n.ID
	n.bus.Emit(events.Event{Type: typ, Tick: n.tick, Payload: payload})
}

// Transfer builds, signs, locally appends, and broadcasts a Transfer Block
// moving chainID from userID (who must be its current owner and whose key
// this Node hosts) to target (spec §4.5's "A Node authors Blocks...").
func (n *Node) Transfer(userID, passphrase, chainID string, target crypto.PublicKey) error {
	chain, ok := n.chains[chainID]
	if !ok {
		return fmt.Errorf("node %s: unknown chain %s", n.ID, chainID)
	}
	priv, err := n.keystore.Unlock(userID, passphrase)
	if err != nil {
		return fmt.Errorf("node %s: unlock %s: %w", n.ID, userID, err)
	}
	if chain.GetCurrentOwner() != priv.Public() {
		return fmt.Errorf("node %s: %s is not the current owner of %s", n.ID, userID, chainID)
	}
	latest := chain.GetLatest()
	b := coin.NewTransferBlock(latest.ID, chainID, priv.Public(), target, n.tick)
	if err := b.Sign(priv); err != nil {
		return fmt.Errorf("node %s: sign transfer: %w", n.ID, err)
	}
	reason, fork := n.validator.ValidateBlock(b, chainID, n.tick, n.maxDelay, n)
	if reason != "" || fork.Kind != validator.NoFork {
		return fmt.Errorf("node %s: local transfer failed validation: reason=%s fork=%s", n.ID, reason, fork.Kind)
	}
	res := chain.Append(b)
	if !res.Accepted {
		return fmt.Errorf("node %s: local append rejected: %s", n.ID, res.Reason)
	}
	n.emit(events.ChainTransferred, map[string]any{"chain_id": chainID, "to": string(target)})
	msg := router.Message{Kind: router.KindBlockBroadcast, Payload: b}
	n.router.Broadcast(msg, n.ID, n.peerConnections())
	return nil
}

// DoubleSpend builds two conflicting Transfer blocks from the same
// position on chainID (one to each of targetA/targetB) and broadcasts both
// without validating or appending them locally — it simulates a
// misbehaving Node, exercised by Simulation.InjectAttack (spec.md §6's
// inject_attack and Scenario B).
func (n *Node) DoubleSpend(userID, passphrase, chainID string, targetA, targetB crypto.PublicKey) error {
	chain, ok := n.chains[chainID]
	if !ok {
		return fmt.Errorf("node %s: unknown chain %s", n.ID, chainID)
	}
	priv, err := n.keystore.Unlock(userID, passphrase)
	if err != nil {
		return fmt.Errorf("node %s: unlock %s: %w", n.ID, userID, err)
	}
	latest := chain.GetLatest()
	a := coin.NewTransferBlock(latest.ID, chainID, priv.Public(), targetA, n.tick)
	if err := a.Sign(priv); err != nil {
		return fmt.Errorf("node %s: sign double-spend a: %w", n.ID, err)
	}
	b := coin.NewTransferBlock(latest.ID, chainID, priv.Public(), targetB, n.tick)
	if err := b.Sign(priv); err != nil {
		return fmt.Errorf("node %s: sign double-spend b: %w", n.ID, err)
	}
	conns := n.peerConnections()
	n.router.Broadcast(router.Message{Kind: router.KindBlockBroadcast, Payload: a}, n.ID, conns)
	n.router.Broadcast(router.Message{Kind: router.KindBlockBroadcast, Payload: b}, n.ID, conns)
	return nil
}

// recentCache is a bounded set used for broadcast-id loop suppression.
type recentCache struct {
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func newRecentCache(capacity int) *recentCache {
	return &recentCache{capacity: capacity, order: list.New(), index: make(map[string]*list.Element)}
}

func (c *recentCache) seen(id string) bool {
	_, ok := c.index[id]
	return ok
}

func (c *recentCache) remember(id string) {
	if _, ok := c.index[id]; ok {
		return
	}
	el := c.order.PushFront(id)
	c.index[id] = el
	if c.order.Len() > c.capacity {
		back := c.order.Back()
		if back != nil {
			c.order.Remove(back)
			delete(c.index, back.Value.(string))
		}
	}
}
