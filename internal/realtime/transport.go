package realtime

import (
	"context"

	"github.com/nfrund/studysync/internal/domain"
)

// ChangeFeed is an active change-event stream for one topic. The events
// channel is closed when the feed is closed or the transport shuts down.
type ChangeFeed interface {
	Events() <-chan Notification
	Close(ctx context.Context) error
}

// ChangeSource is the change-event capability this layer consumes: a backing
// store that emits row-level change notifications per table, pre-filtered by
// the given predicates. Implementations: SurrealDB live queries
// (SurrealSource) and the in-process watermill hub (MemorySource).
type ChangeSource interface {
	Subscribe(ctx context.Context, topic string, filters []Filter) (ChangeFeed, error)
}

// PresenceEventKind discriminates the three presence callbacks.
type PresenceEventKind string

const (
	PresenceSync  PresenceEventKind = "sync"
	PresenceJoin  PresenceEventKind = "join"
	PresenceLeave PresenceEventKind = "leave"
)

// PresenceEvent is one presence change on a room topic. A sync event carries
// the complete flattened entry set in Joined; join and leave events carry
// only the delta.
type PresenceEvent struct {
	Kind   PresenceEventKind
	Joined []domain.PresenceEntry
	Left   []domain.PresenceEntry
}

// PresenceFeed is an active presence stream for one room topic. Track
// announces an entry on the shared presence set; Close withdraws it.
type PresenceFeed interface {
	Events() <-chan PresenceEvent
	Track(ctx context.Context, entry domain.PresenceEntry) error
	State() map[string][]domain.PresenceEntry
	Close(ctx context.Context) error
}

// PresenceSource is the presence extension of the change-event source.
type PresenceSource interface {
	SubscribePresence(ctx context.Context, topic string) (PresenceFeed, error)
}
