// Package events implements the push-only event stream the core exposes
// to its host (spec §6): a synchronous pub/sub broker plus a buffered
// channel fan-out for a host running on its own goroutine.
package events

import (
	"log"
	"sync"
)

// Type labels what happened. The set below is the minimum spec §6
// requires; handlers are free to subscribe to a subset.
type Type string

const (
	Tick               Type = "tick"
	SystemStateChanged Type = "system_state_changed"
	NodeConnected      Type = "node_connected"
	NodeDisconnected   Type = "node_disconnected"
	MessageBroadcast   Type = "message_broadcast"
	BlockAccepted      Type = "block_accepted"
	BlockRejected      Type = "block_rejected"
	ForkDetected       Type = "fork_detected"
	BlacklistUpdated   Type = "blacklist_updated"
	ChainTransferred   Type = "chain_transferred"
	DeliveryFailure    Type = "delivery_failure"
	Fatal              Type = "fatal"
)

// Event carries a typed payload emitted after something of interest
// happens in the simulation (spec §6: "{type, tick, payload}").
type Event struct {
	Type    Type           `json:"type"`
	Tick    int64          `json:"tick"`
	Payload map[string]any `json:"payload"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// streamBuffer is the capacity of the channel returned by Events(). Past
// this many unconsumed events, new ones are dropped rather than blocking
// the simulation — the core is push-only and owes no back-pressure to a
// slow host.
const streamBuffer = 4096

// Emitter is the event bus. Subscribe (in-process) and/or Events()
// (cross-goroutine) before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	stream   chan Event
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[Type][]Handler)}
}

// Subscribe registers h to be called synchronously whenever typ is
// emitted, in the emitting goroutine.
func (e *Emitter) Subscribe(typ Type, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Events returns a channel a host on another goroutine can range over to
// observe every emitted event. The channel is created on first call and
// is never closed by Emit; call Close when done.
func (e *Emitter) Events() <-chan Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream == nil {
		e.stream = make(chan Event, streamBuffer)
	}
	return e.stream
}

// Close releases the Events() channel, if one was created.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream != nil {
		close(e.stream)
		e.stream = nil
	}
}

// Emit delivers ev to all subscribers for ev.Type synchronously, then
// offers it on the Events() channel without blocking. Each handler is
// guarded by panic recovery so a misbehaving subscriber cannot crash the
// node or halt the tick loop.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	stream := e.stream
	e.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[events] handler panicked for %s: %v", ev.Type, r)
				}
			}()
			h(ev)
		}()
	}

	if stream != nil {
		select {
		case stream <- ev:
		default:
			log.Printf("[events] stream buffer full, dropping %s event", ev.Type)
		}
	}
}
