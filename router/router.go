// Package router implements the in-process message delivery substrate
// (spec §4.4): priority-classed queues, tick-indexed delay, BFS broadcast,
// and the delivery-failure/cleanup bookkeeping around them.
package router

import (
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/saintthor/chainplay/events"
	"github.com/saintthor/chainplay/simrand"
)

// Receiver is implemented by anything Router can deliver a Message to —
// Node, in practice.
type Receiver interface {
	Receive(msg Message, from string)
}

type queued struct {
	msg Message
	seq int64
}

// Router is the single in-process delivery substrate shared by every Node
// in a simulation run. It is mutated only by the Scheduler (advance_tick)
// and by whichever Node is currently executing synchronously (route,
// broadcast) — spec §5's "shared resource policy".
type Router struct {
	rnd         *simrand.Source
	bus         *events.Emitter
	minDelay    int
	maxDelay    int
	failureRate float64

	currentTick int64
	seq         int64

	priorityQueue map[int64][]queued
	delayed       map[int64][]queued
	receivers     map[string]Receiver
}

// Config bundles the tunables Router needs at construction, mirroring the
// config schema fields that govern routing (spec §6).
type Config struct {
	MinDelay    int
	MaxDelay    int
	FailureRate float64
}

// New creates a Router at tick 0. rnd must be a dedicated child Source so
// routing draws never perturb any other component's sequence (spec §9).
func New(cfg Config, rnd *simrand.Source, bus *events.Emitter) *Router {
	return &Router{
		rnd:           rnd,
		bus:           bus,
		minDelay:      cfg.MinDelay,
		maxDelay:      cfg.MaxDelay,
		failureRate:   cfg.FailureRate,
		priorityQueue: make(map[int64][]queued),
		delayed:       make(map[int64][]queued),
		receivers:     make(map[string]Receiver),
	}
}

// Register associates a node id with the Receiver that should be invoked
// when a Message addressed to it is delivered.
func (r *Router) Register(nodeID string, rv Receiver) {
	r.receivers[nodeID] = rv
}

// Unregister removes a node id, e.g. on simulated disconnection.
func (r *Router) Unregister(nodeID string) {
	delete(r.receivers, nodeID)
}

// CurrentTick returns the tick Router is currently at.
func (r *Router) CurrentTick() int64 { return r.currentTick }

func (r *Router) nextID() string {
	r.seq++
	return fmt.Sprintf("msg-%d", r.seq)
}

// route enqueues msg for delivery from "from" to "to" per the priority
// rules in spec §4.4, and returns the scheduling decision.
func (r *Router) route(msg Message, from, to string) RouteResult {
	if msg.ID == "" {
		msg.ID = r.nextID()
	}
	if msg.Priority == 0 {
		msg.Priority = PriorityFor(msg.Kind)
	}
	msg.From = from
	msg.To = to
	msg.SentTick = r.currentTick
	msg.Hops = msg.Hops + 1

	var delay int
	if msg.Priority.IsHighPriority() {
		if from == to {
			delay = 0
		} else {
			delay = r.rnd.IntRange(1, 3)
		}
	} else {
		delay = r.rnd.IntRange(r.minDelay, r.maxDelay)
	}
	deliveryTick := r.currentTick + int64(delay)

	if r.failureRate > 0 && r.rnd.Float64() < r.failureRate {
		return RouteResult{MessageID: msg.ID, Delay: int64(delay), DeliveryTick: deliveryTick, Priority: msg.Priority}
	}

	r.seq++
	q := queued{msg: msg, seq: r.seq}
	if msg.Priority.IsHighPriority() {
		r.priorityQueue[deliveryTick] = append(r.priorityQueue[deliveryTick], q)
	} else {
		r.delayed[deliveryTick] = append(r.delayed[deliveryTick], q)
	}
	return RouteResult{MessageID: msg.ID, Delay: int64(delay), DeliveryTick: deliveryTick, Priority: msg.Priority}
}

// Route is the exported entry point a Node uses to send a single message.
func (r *Router) Route(msg Message, from, to string) RouteResult {
	return r.route(msg, from, to)
}

// Broadcast performs a BFS flood of msg over connections starting at
// origin, routing one copy per freshly-discovered edge (spec §4.4).
// connections maps a node id to its directly connected peer ids.
func (r *Router) Broadcast(msg Message, origin string, connections map[string][]string) BroadcastResult {
	if msg.BroadcastID == "" {
		r.seq++
		msg.BroadcastID = fmt.Sprintf("bcast-%d", r.seq)
	}
	visited := map[string]bool{origin: true}
	queue := []string{origin}

	var routes []RouteResult
	var reached []string
	maxDelay := int64(0)

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range connections[u] {
			if visited[v] {
				continue
			}
			visited[v] = true
			reached = append(reached, v)
			copyMsg := msg
			copyMsg.ID = ""
			res := r.route(copyMsg, u, v)
			routes = append(routes, res)
			if res.Delay > maxDelay {
				maxDelay = res.Delay
			}
			queue = append(queue, v)
		}
	}

	est := int64(math.Ceil(float64(maxDelay) * 1.5))
	return BroadcastResult{Routes: routes, ReachedNodes: reached, EstimatedBroadcastTime: est}
}

func (r *Router) deliver(q queued) {
	rv, ok := r.receivers[q.msg.To]
	if !ok {
		log.Printf("[router] drop: unknown node %q", q.msg.To)
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[router] delivery to %q panicked: %v", q.msg.To, rec)
			if r.bus != nil {
				r.bus.Emit(events.Event{
					Type: events.DeliveryFailure,
					Tick: r.currentTick,
					Payload: map[string]any{
						"message_id": q.msg.ID,
						"to":         q.msg.To,
						"error":      fmt.Sprintf("%v", rec),
					},
				})
			}
		}
	}()
	rv.Receive(q.msg, q.msg.From)
}

// AdvanceTick drains this tick's priority queue (FIFO), then this tick's
// delayed queue (priority ascending, then insertion order), and advances
// current_tick (spec §4.4, §4.7).
func (r *Router) AdvanceTick() {
	pq := r.priorityQueue[r.currentTick]
	sort.SliceStable(pq, func(i, j int) bool { return pq[i].seq < pq[j].seq })
	for _, q := range pq {
		r.deliver(q)
	}
	delete(r.priorityQueue, r.currentTick)

	dq := r.delayed[r.currentTick]
	sort.SliceStable(dq, func(i, j int) bool {
		if dq[i].msg.Priority != dq[j].msg.Priority {
			return dq[i].msg.Priority < dq[j].msg.Priority
		}
		return dq[i].seq < dq[j].seq
	})
	for _, q := range dq {
		r.deliver(q)
	}
	delete(r.delayed, r.currentTick)

	r.currentTick++
}

// Cleanup discards any delayed/priority bucket older than maxAge ticks,
// emitting an event for each discarded bucket (spec §4.4).
func (r *Router) Cleanup(maxAge int64) {
	cutoff := r.currentTick - maxAge
	for tick := range r.delayed {
		if tick < cutoff {
			n := len(r.delayed[tick])
			delete(r.delayed, tick)
			r.emitCleanup(tick, n)
		}
	}
	for tick := range r.priorityQueue {
		if tick < cutoff {
			n := len(r.priorityQueue[tick])
			delete(r.priorityQueue, tick)
			r.emitCleanup(tick, n)
		}
	}
}

func (r *Router) emitCleanup(tick int64, dropped int) {
	if r.bus == nil || dropped == 0 {
		return
	}
	r.bus.Emit(events.Event{
		Type: events.DeliveryFailure,
		Tick: r.currentTick,
		Payload: map[string]any{
			"reason":       "stale_bucket_discarded",
			"bucket_tick":  tick,
			"dropped_count": dropped,
		},
	})
}
