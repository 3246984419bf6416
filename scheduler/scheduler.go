// Package scheduler drives logical time for the simulation (spec.md
// §4.7): a tick loop with stopped/running/paused states, per-tick
// callbacks, and manual-tick support for deterministic tests.
package scheduler

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/saintthor/chainplay/events"
	"github.com/saintthor/chainplay/router"
	"github.com/saintthor/chainplay/simrand"
)

// State is one of the three Scheduler states (spec §4.7).
type State string

const (
	Stopped State = "stopped"
	Running State = "running"
	Paused  State = "paused"
)

// Callback runs once per tick, in registration order.
type Callback func(tick int64)

// Scheduler owns the simulation's root randomness source and the tick
// loop. It is safe to call Start/Pause/Resume/Stop from another goroutine
// while the loop runs; the tick loop itself calls callbacks and
// Router.AdvanceTick synchronously on its own goroutine (spec §5).
type Scheduler struct {
	mu           sync.Mutex
	state        State
	tickInterval time.Duration
	tick         int64

	router    *router.Router
	bus       *events.Emitter
	rootRand  *simrand.Source
	callbacks []Callback

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Scheduler in the stopped state, seeded for deterministic
// replay (spec §9, Scenario F).
func New(seed int64, tickIntervalMS int, rtr *router.Router, bus *events.Emitter) *Scheduler {
	return &Scheduler{
		state:        Stopped,
		tickInterval: time.Duration(tickIntervalMS) * time.Millisecond,
		router:       rtr,
		bus:          bus,
		rootRand:     simrand.New(seed),
	}
}

// RootRand returns the Scheduler's root randomness source. Components
// needing their own draws should call Child() on it once, at wiring time.
func (s *Scheduler) RootRand() *simrand.Source { return s.rootRand }

// SetRouter wires the Router whose AdvanceTick runs at the end of every
// tick. Callers that need the Scheduler's RootRand to seed the Router's
// own randomness source must construct in this order: New, RootRand,
// (build router), SetRouter.
func (s *Scheduler) SetRouter(rtr *router.Router) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.router = rtr
}

// OnTick registers a callback to run once per tick, in registration order.
func (s *Scheduler) OnTick(cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// CurrentTick returns the tick the Scheduler is about to run or just ran.
func (s *Scheduler) CurrentTick() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// State returns the Scheduler's current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetTickInterval changes the wall-clock pacing; semantics depend only on
// tick count, never on wall time (spec §4.7).
func (s *Scheduler) SetTickInterval(ms int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickInterval = time.Duration(ms) * time.Millisecond
}

// Start transitions stopped→running and begins the tick loop on its own
// goroutine. Calling Start while already running is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.state == Running {
		s.mu.Unlock()
		return nil
	}
	if s.state == Stopped {
		s.stopCh = make(chan struct{})
		s.doneCh = make(chan struct{})
		go s.loop(s.stopCh, s.doneCh)
	}
	s.state = Running
	s.mu.Unlock()
	return nil
}

// Pause transitions running→paused; the loop keeps running but skips
// ticking until Resume.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return fmt.Errorf("scheduler: cannot pause from state %s", s.state)
	}
	s.state = Paused
	return nil
}

// Resume transitions paused→running.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Paused {
		return fmt.Errorf("scheduler: cannot resume from state %s", s.state)
	}
	s.state = Running
	return nil
}

// Stop halts the tick loop and waits for it to exit. The loop checks for
// stop only between ticks: a tick already in progress runs all of its
// callbacks and its Router.AdvanceTick before the loop exits, and no
// callback of that tick is skipped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return
	}
	s.state = Stopped
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		s.mu.Lock()
		interval := s.tickInterval
		state := s.state
		s.mu.Unlock()

		select {
		case <-stop:
			return
		case <-time.After(interval):
		}

		if state != Running {
			continue
		}
		s.runTick()
	}
}

// ManualTick runs exactly one tick synchronously, regardless of state —
// the deterministic-testing escape hatch spec §4.7 requires.
func (s *Scheduler) ManualTick() {
	s.runTick()
}

func (s *Scheduler) runTick() {
	s.mu.Lock()
	tick := s.tick
	callbacks := make([]Callback, len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.mu.Unlock()

	for _, cb := range callbacks {
		s.runCallback(cb, tick)
	}
	if s.router != nil {
		s.router.AdvanceTick()
	}

	s.mu.Lock()
	s.tick++
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Emit(events.Event{Type: events.Tick, Tick: tick, Payload: map[string]any{}})
	}
}

func (s *Scheduler) runCallback(cb Callback, tick int64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[scheduler] tick callback panicked at tick %d: %v", tick, r)
			if s.bus != nil {
				s.bus.Emit(events.Event{
					Type:    events.Fatal,
					Tick:    tick,
					Payload: map[string]any{"error": fmt.Sprintf("%v", r)},
				})
			}
		}
	}()
	cb(tick)
}
