package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nfrund/studysync/internal/domain"
)

// Service is the contract surface the page layer depends on: typed,
// topic-scoped subscriptions over the change and presence sources.
type Service struct {
	mgr       *Manager
	logger    *slog.Logger
	opTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithOpTimeout bounds subscription opens when the caller's context has no
// deadline of its own. Zero disables the bound.
func WithOpTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.opTimeout = d
	}
}

// NewService creates the realtime service over explicit sources. No ambient
// client is consulted; test doubles slot in through the two interfaces.
func NewService(source ChangeSource, presence PresenceSource, opts ...Option) *Service {
	svc := &Service{
		mgr:    NewManager(source, presence),
		logger: slog.Default().With("service", "realtime"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// SubscribeToRoomMessages delivers every message inserted into the room.
func (s *Service) SubscribeToRoomMessages(ctx context.Context, roomID string, fn func(domain.Message)) (*Subscription, error) {
	return s.open(ctx, RoomMessagesTopic(roomID), []FilterEntry{
		{
			Filter: Filter{
				Event:      OpInsert,
				Table:      TableMessages,
				Conditions: []Condition{{Column: "room_id", Equals: roomID}},
			},
			Handle: typedHandler(s.logger, fn),
		},
	})
}

// SubscribeToDirectMessages delivers messages between the two users in both
// directions. Both directions ride one subscription, each with its own
// filter entry.
func (s *Service) SubscribeToDirectMessages(ctx context.Context, userID, otherUserID string, fn func(domain.Message)) (*Subscription, error) {
	inbound := FilterEntry{
		Filter: Filter{
			Event: OpInsert,
			Table: TableMessages,
			Conditions: []Condition{
				{Column: "sender_id", Equals: otherUserID},
				{Column: "receiver_id", Equals: userID},
			},
		},
		Handle: typedHandler(s.logger, fn),
	}
	outbound := FilterEntry{
		Filter: Filter{
			Event: OpInsert,
			Table: TableMessages,
			Conditions: []Condition{
				{Column: "sender_id", Equals: userID},
				{Column: "receiver_id", Equals: otherUserID},
			},
		},
		Handle: typedHandler(s.logger, fn),
	}
	return s.open(ctx, DirectMessagesTopic(userID, otherUserID), []FilterEntry{inbound, outbound})
}

// SubscribeToRoomParticipants delivers the updated room row whenever its
// participant list (or anything else on the row) changes.
func (s *Service) SubscribeToRoomParticipants(ctx context.Context, roomID string, fn func(domain.StudyRoom)) (*Subscription, error) {
	return s.open(ctx, RoomParticipantsTopic(roomID), []FilterEntry{
		{
			Filter: Filter{
				Event:      OpUpdate,
				Table:      TableStudyRooms,
				Conditions: []Condition{{Column: "id", Equals: roomID}},
			},
			Handle: typedHandler(s.logger, fn),
		},
	})
}

// SubscribeToNotifications delivers a user's new notifications.
func (s *Service) SubscribeToNotifications(ctx context.Context, userID string, fn func(domain.Notification)) (*Subscription, error) {
	return s.open(ctx, NotificationsTopic(userID), []FilterEntry{
		{
			Filter: Filter{
				Event:      OpInsert,
				Table:      TableNotifications,
				Conditions: []Condition{{Column: "user_id", Equals: userID}},
			},
			Handle: typedHandler(s.logger, fn),
		},
	})
}

// SubscribeToConnectionRequests delivers inbound connection requests and
// status updates on the user's own outbound requests.
func (s *Service) SubscribeToConnectionRequests(ctx context.Context, userID string, fn func(domain.Connection)) (*Subscription, error) {
	inbound := FilterEntry{
		Filter: Filter{
			Event:      OpInsert,
			Table:      TableConnections,
			Conditions: []Condition{{Column: "connected_user_id", Equals: userID}},
		},
		Handle: typedHandler(s.logger, fn),
	}
	responses := FilterEntry{
		Filter: Filter{
			Event:      OpUpdate,
			Table:      TableConnections,
			Conditions: []Condition{{Column: "user_id", Equals: userID}},
		},
		Handle: typedHandler(s.logger, fn),
	}
	return s.open(ctx, ConnectionsTopic(userID), []FilterEntry{inbound, responses})
}

// SubscribeToRoomPresence joins the room's presence set as (userID,
// userName) and reports the set to the callbacks: the full flattened set on
// the first sync, deltas afterwards.
func (s *Service) SubscribeToRoomPresence(ctx context.Context, roomID, userID, userName string, onJoin, onLeave PresenceHandler) (*PresenceSubscription, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	self := domain.PresenceEntry{
		UserID:   userID,
		UserName: userName,
		OnlineAt: time.Now().UTC(),
	}
	sub, err := s.mgr.OpenPresence(ctx, RoomPresenceTopic(roomID), self, onJoin, onLeave)
	if err != nil {
		return nil, domain.WrapTimeout("subscribe", err)
	}
	return sub, nil
}

// Unsubscribe closes a subscription obtained from this service. Passing an
// already-closed handle is a no-op.
func (s *Service) Unsubscribe(h Handle) error {
	return h.Close()
}

// Shutdown closes every subscription still open.
func (s *Service) Shutdown() {
	s.mgr.CloseAll()
}

func (s *Service) open(ctx context.Context, topic string, entries []FilterEntry) (*Subscription, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	sub, err := s.mgr.Open(ctx, topic, entries)
	if err != nil {
		return nil, domain.WrapTimeout("subscribe", err)
	}
	return sub, nil
}

// bound applies the configured open timeout when the caller brought no
// deadline of its own.
func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// typedHandler decodes the new-row payload into T before invoking the
// consumer callback. Undecodable rows are logged and dropped rather than
// delivered half-formed.
func typedHandler[T any](logger *slog.Logger, fn func(T)) Handler {
	return func(ctx context.Context, ev ChangeEvent) {
		var v T
		if err := json.Unmarshal(ev.Row, &v); err != nil {
			logger.Error("Failed to decode change event row",
				"table", ev.Table, "operation", ev.Operation, "error", err)
			return
		}
		fn(v)
	}
}
