// Package engine implements the simulation's control surface (spec.md
// §6): Simulation wires crypto, coin, validator, router, node,
// chainmanager, scheduler and events together behind init/start/pause/
// resume/stop/set_tick_interval/update_config/inject_attack/manual_tick.
// It owns the only cross-goroutine boundary in the system (spec §5) —
// every component it wires lives entirely inside the Scheduler's single
// tick-loop goroutine.
package engine

import (
	"fmt"
	"sync"

	"github.com/saintthor/chainplay/chainmanager"
	"github.com/saintthor/chainplay/coin"
	"github.com/saintthor/chainplay/config"
	"github.com/saintthor/chainplay/crypto"
	"github.com/saintthor/chainplay/events"
	"github.com/saintthor/chainplay/indexer"
	"github.com/saintthor/chainplay/node"
	"github.com/saintthor/chainplay/router"
	"github.com/saintthor/chainplay/scheduler"
	"github.com/saintthor/chainplay/simrand"
	"github.com/saintthor/chainplay/storage"
)

// AttackKind enumerates the faults inject_attack can trigger.
type AttackKind string

// DoubleSpend is the only attack kind spec.md's Scenario B exercises: a
// User's hosting Node broadcasts two conflicting Transfer blocks.
const DoubleSpend AttackKind = "double_spend"

const defaultPassphrase = "sim"

type userRecord struct {
	id       string
	priv     crypto.PrivateKey
	pub      crypto.PublicKey
	nodeID   string
}

// Simulation is the host-facing control surface and the owner of every
// wired component.
type Simulation struct {
	mu sync.Mutex

	cfg   *config.Config
	bus   *events.Emitter
	rtr   *router.Router
	sched *scheduler.Scheduler
	mgr   *chainmanager.Manager
	idx   *indexer.Indexer

	nodes map[string]*node.Node
	users map[string]*userRecord
}

// New creates an uninitialized Simulation. Call Init before Start.
func New() *Simulation {
	return &Simulation{}
}

// Events returns the channel a host on another goroutine can range over
// to observe the simulation's event stream (SPEC_FULL.md §6).
func (s *Simulation) Events() <-chan events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bus.Events()
}

// ChainsOwnedBy answers the indexer's owner→chains read model (SPEC_FULL.md
// §2's indexer observability surface).
func (s *Simulation) ChainsOwnedBy(owner string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx.ChainsOwnedBy(owner)
}

// BlacklistedSince answers the indexer's offender→blacklist-since-tick
// read model.
func (s *Simulation) BlacklistedSince(offender string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx.BlacklistedSince(offender)
}

// Init builds every component from cfg: keypairs for every Node and User,
// the initial Chain population, a random topology bounded by
// max_connections_per_node (connectivity of the resulting graph is not
// checked), and the Scheduler's autonomous payment driver
// (spec.md §4.6/§6).
func (s *Simulation) Init(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("engine: invalid config: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.bus = events.NewEmitter()
	s.idx = indexer.New(storage.NewMemDB(), s.bus)
	s.sched = scheduler.New(cfg.Seed, cfg.TickIntervalMS, nil, s.bus)
	root := s.sched.RootRand()

	s.rtr = router.New(router.Config{
		MinDelay:    cfg.DelayMin,
		MaxDelay:    cfg.DelayMax,
		FailureRate: cfg.FailureRate,
	}, root.Child(), s.bus)
	s.sched.SetRouter(s.rtr)

	authPriv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("engine: generate authority key: %w", err)
	}
	s.mgr = chainmanager.New(authPriv, root.Child())

	s.nodes = make(map[string]*node.Node, cfg.NodeCount)
	for i := 0; i < cfg.NodeCount; i++ {
		id := fmt.Sprintf("node-%d", i)
		priv, _, err := crypto.GenerateKeyPair()
		if err != nil {
			return fmt.Errorf("engine: generate node key %s: %w", id, err)
		}
		maxDelay := int64(cfg.DelayMax) * 2
		s.nodes[id] = node.New(id, priv, s.bus, s.rtr, cfg.MaxConnectionsPerNode, maxDelay)
	}
	s.wireTopology(root.Child())

	s.users = make(map[string]*userRecord, cfg.UserCount)
	var chainUsers []chainmanager.User
	nodeIDs := s.nodeIDList()
	for i := 0; i < cfg.UserCount; i++ {
		id := fmt.Sprintf("user-%d", i)
		priv, pub, err := crypto.GenerateKeyPair()
		if err != nil {
			return fmt.Errorf("engine: generate user key %s: %w", id, err)
		}
		hostNode := nodeIDs[i%len(nodeIDs)]
		s.users[id] = &userRecord{id: id, priv: priv, pub: pub, nodeID: hostNode}
		if err := s.nodes[hostNode].HostUser(id, priv, defaultPassphrase); err != nil {
			return fmt.Errorf("engine: host user %s on %s: %w", id, hostNode, err)
		}
		chainUsers = append(chainUsers, chainmanager.User{ID: id, Priv: priv, Pub: pub})
	}

	def, err := cfg.ChainDefinition.ToDefinition()
	if err != nil {
		return fmt.Errorf("engine: build chain definition: %w", err)
	}
	created, err := s.mgr.CreateFromDefinition(def, chainUsers)
	if err != nil {
		return fmt.Errorf("engine: mint initial chains: %w", err)
	}
	for _, chain := range created.Chains {
		for _, n := range s.nodes {
			clone, err := cloneChain(chain)
			if err != nil {
				return fmt.Errorf("engine: clone chain %s: %w", chain.ChainID(), err)
			}
			n.AdoptChain(clone)
		}
	}

	paymentRand := root.Child()
	s.sched.OnTick(func(tick int64) {
		for _, n := range s.nodes {
			n.SetTick(tick)
		}
		if cfg.PaymentRate <= 0 {
			return
		}
		if paymentRand.Float64() >= cfg.PaymentRate {
			return
		}
		s.driveRandomPayment(paymentRand)
	})

	return nil
}

// cloneChain gives each Node its own independent Chain value (spec §3/§5:
// every Node holds an independent copy of the authoritative initial
// state), round-tripping through the wire format so no two Nodes ever
// share the same backing slice/struct.
func cloneChain(c *coin.Chain) (*coin.Chain, error) {
	data, err := coin.SerializeChain(c)
	if err != nil {
		return nil, err
	}
	return coin.DeserializeChain(data)
}

func (s *Simulation) nodeIDList() []string {
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	return ids
}

// wireTopology connects each Node to up to MaxConnectionsPerNode distinct
// peers, drawing from rnd so the graph is reproducible given a seed.
func (s *Simulation) wireTopology(rnd *simrand.Source) {
	ids := s.nodeIDList()
	for _, id := range ids {
		target := s.cfg.MaxConnectionsPerNode
		for attempts := 0; attempts < target*4 && len(s.nodes[id].Peers()) < target; attempts++ {
			peer := ids[rnd.Intn(len(ids))]
			if peer == id {
				continue
			}
			if len(s.nodes[peer].Peers()) >= s.cfg.MaxConnectionsPerNode {
				continue
			}
			if s.nodes[id].Connect(peer) {
				s.nodes[peer].Connect(id)
			}
		}
	}
}

func (s *Simulation) driveRandomPayment(rnd *simrand.Source) {
	if len(s.users) == 0 {
		return
	}
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	from := s.users[ids[rnd.Intn(len(ids))]]
	to := s.users[ids[rnd.Intn(len(ids))]]
	if from.id == to.id {
		return
	}
	n := s.nodes[from.nodeID]
	for chainID := range s.mgr.Chains() {
		if chain, ok := n.GetChain(chainID); ok && chain.GetCurrentOwner() == from.pub {
			_ = n.Transfer(from.id, defaultPassphrase, chainID, to.pub)
			return
		}
	}
}

// Start begins the tick loop (spec §6 control surface).
func (s *Simulation) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.Start()
}

// Pause pauses the tick loop.
func (s *Simulation) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.Pause()
}

// Resume resumes the tick loop.
func (s *Simulation) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.Resume()
}

// Stop halts the tick loop.
func (s *Simulation) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sched.Stop()
}

// SetTickInterval changes the wall-clock pacing of the tick loop.
func (s *Simulation) SetTickInterval(ms int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sched.SetTickInterval(ms)
}

// UpdateConfig records a live change to one config field (spec §6's
// update_config(key, value)); only failure_rate and payment_rate are
// accepted. A payment_rate change takes effect on the next tick. A
// failure_rate change is stored in the config only: the Router keeps the
// rate it was constructed with, so routing is not affected.
func (s *Simulation) UpdateConfig(key string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch key {
	case "failure_rate":
		s.cfg.FailureRate = value
	case "payment_rate":
		s.cfg.PaymentRate = value
	default:
		return fmt.Errorf("engine: unsupported live config key %q", key)
	}
	return nil
}

// ManualTick runs exactly one tick synchronously (spec §6, deterministic
// testing / Scenario F replay).
func (s *Simulation) ManualTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sched.ManualTick()
}

// InjectAttack triggers the named fault on behalf of userID (spec §6's
// inject_attack(user_id, attack_kind)).
func (s *Simulation) InjectAttack(userID string, kind AttackKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("engine: unknown user %q", userID)
	}
	switch kind {
	case DoubleSpend:
		return s.injectDoubleSpend(u)
	default:
		return fmt.Errorf("engine: unsupported attack kind %q", kind)
	}
}

func (s *Simulation) injectDoubleSpend(u *userRecord) error {
	n := s.nodes[u.nodeID]
	var chainID string
	for id := range s.mgr.Chains() {
		if chain, ok := n.GetChain(id); ok && chain.GetCurrentOwner() == u.pub {
			chainID = id
			break
		}
	}
	if chainID == "" {
		return fmt.Errorf("engine: user %s owns no chain to double-spend", u.id)
	}
	var other *userRecord
	for _, candidate := range s.users {
		if candidate.id != u.id {
			other = candidate
			break
		}
	}
	if other == nil {
		return fmt.Errorf("engine: need at least two users to double-spend")
	}
	return n.DoubleSpend(u.id, defaultPassphrase, chainID, u.pub, other.pub)
}
