package router

// Kind labels the wire-level message types a Node exchanges (spec §4.4/4.5).
type Kind string

const (
	KindBlockBroadcast   Kind = "BLOCK_BROADCAST"
	KindForkWarning      Kind = "FORK_WARNING"
	KindBlacklistUpdate  Kind = "BLACKLIST_UPDATE"
	KindBlockReject      Kind = "BLOCK_REJECT"
	KindConnectionReq    Kind = "CONNECTION_REQUEST"
	KindHeartbeat        Kind = "HEARTBEAT"
)

// Priority is the routing priority class (lower delivers first/sooner).
type Priority int

const (
	PriorityForkWarning     Priority = 1
	PriorityBlacklistUpdate Priority = 2
	PriorityBlockReject     Priority = 3
	PriorityBlockBroadcast  Priority = 4
	PriorityConnectionReq   Priority = 5
	PriorityHeartbeat       Priority = 6
	PriorityDefault         Priority = 10
)

// PriorityFor returns the priority class for a message Kind, defaulting to
// PriorityDefault for anything not named in spec §4.4's table.
func PriorityFor(k Kind) Priority {
	switch k {
	case KindForkWarning:
		return PriorityForkWarning
	case KindBlacklistUpdate:
		return PriorityBlacklistUpdate
	case KindBlockReject:
		return PriorityBlockReject
	case KindBlockBroadcast:
		return PriorityBlockBroadcast
	case KindConnectionReq:
		return PriorityConnectionReq
	case KindHeartbeat:
		return PriorityHeartbeat
	default:
		return PriorityDefault
	}
}

// IsHighPriority reports whether p is one of the "high priority" classes
// (1-3) that get the short 1-3 tick delay rather than the normal range.
func (p Priority) IsHighPriority() bool {
	return p >= PriorityForkWarning && p <= PriorityBlockReject
}

// Message is the envelope routed between Nodes. Payload carries the
// type-specific body (e.g. a *coin.Block, fork evidence, a connection
// decision) as an opaque value — Router never inspects it.
type Message struct {
	ID          string
	BroadcastID string
	Kind        Kind
	Priority    Priority
	From        string
	To          string
	SentTick    int64
	Hops        int
	Payload     any
}

// Delivery is what a Node's receive callback is handed.
type Delivery struct {
	Message      Message
	DeliveryTick int64
}

// RouteResult is route()'s return value (spec §4.4).
type RouteResult struct {
	MessageID    string
	Delay        int64
	DeliveryTick int64
	Priority     Priority
}

// BroadcastResult is broadcast()'s aggregate return value (spec §4.4).
type BroadcastResult struct {
	Routes               []RouteResult
	ReachedNodes         []string
	EstimatedBroadcastTime int64
}
