package realtime

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/nfrund/studysync/internal/domain"
)

// PresenceHandler receives presence entries: the full flattened set on the
// initial sync, the delta only on subsequent joins and leaves.
type PresenceHandler func(entries []domain.PresenceEntry)

// PresenceSubscription is one active presence subscription for a room topic.
// Closing it withdraws the local entry from the shared presence set; the
// transport handles the leave broadcast, no explicit message is sent here.
type PresenceSubscription struct {
	ID    string
	Topic string

	feed   PresenceFeed
	closed atomic.Bool
	logger *slog.Logger
}

// Close is idempotent, like Subscription.Close.
func (p *PresenceSubscription) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.feed.Close(context.Background())
}

// dispatch runs the per-topic state machine: uninitialized until the first
// sync event arrives, synced after. Join and leave events observed before
// the sync are dropped; the sync that follows carries the settled set.
func (p *PresenceSubscription) dispatch(onJoin, onLeave PresenceHandler) {
	synced := false
	for ev := range p.feed.Events() {
		if p.closed.Load() {
			continue
		}
		switch ev.Kind {
		case PresenceSync:
			synced = true
			if onJoin != nil {
				onJoin(ev.Joined)
			}
		case PresenceJoin:
			if synced && onJoin != nil && len(ev.Joined) > 0 {
				onJoin(ev.Joined)
			}
		case PresenceLeave:
			if synced && onLeave != nil && len(ev.Left) > 0 {
				onLeave(ev.Left)
			}
		}
	}
	p.logger.Debug("Presence feed drained", "topic", p.Topic, "sub_id", p.ID)
}

// OpenPresence subscribes to a room's presence stream and announces self on
// it. The announcement is sent only after the transport has confirmed the
// subscription; tracking earlier risks the transport silently dropping it.
func (m *Manager) OpenPresence(ctx context.Context, topic string, self domain.PresenceEntry, onJoin, onLeave PresenceHandler) (*PresenceSubscription, error) {
	feed, err := m.presence.SubscribePresence(ctx, topic)
	if err != nil {
		return nil, &domain.TransportError{Op: "subscribe", Topic: topic, Err: err}
	}

	sub := &PresenceSubscription{
		ID:     uuid.New().String(),
		Topic:  topic,
		feed:   feed,
		logger: m.logger,
	}
	m.track(sub.ID, sub)
	go func() {
		sub.dispatch(onJoin, onLeave)
		m.untrack(sub.ID)
	}()

	if err := feed.Track(ctx, self); err != nil {
		sub.Close()
		return nil, &domain.TransportError{Op: "track", Topic: topic, Err: err}
	}

	m.logger.Debug("Presence subscription opened", "topic", topic, "sub_id", sub.ID, "user_id", self.UserID)
	return sub, nil
}
