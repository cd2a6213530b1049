package realtime

import (
	"context"
	"encoding/json"
)

// Operation is the kind of row-level change a filter can match.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
)

// ChangeEvent is one row-level change delivered by the transport. Only the
// new row value is carried; the transport does not guarantee availability of
// the prior row on all operations.
type ChangeEvent struct {
	Operation Operation
	Table     string
	Row       json.RawMessage
}

// Condition is a single column equality predicate. All conditions of a
// filter must match for the filter to fire.
type Condition struct {
	Column string
	Equals string
}

// Filter selects which change events a subscription entry receives.
type Filter struct {
	Event      Operation
	Table      string
	Conditions []Condition
}

// Handler processes one matched change event. Handlers for a single
// subscription are invoked sequentially, in transport delivery order.
type Handler func(ctx context.Context, ev ChangeEvent)

// FilterEntry pairs a filter with the handler it fires. A subscription may
// register several entries on one transport handle; each fires independently
// (used by direct-message topics to react to both directions).
type FilterEntry struct {
	Filter Filter
	Handle Handler
}

// Notification is what the transport pushes into a subscription's feed:
// the event plus the index of the filter entry that matched it.
type Notification struct {
	Entry int
	Event ChangeEvent
}
