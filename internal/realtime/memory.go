package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/nfrund/studysync/internal/domain"
)

const changeTopicPrefix = "changes."

// presenceFeedBuffer bounds how far a slow presence consumer may lag before
// events are dropped. Dropping is acceptable: delivery is at most once and
// the next sync rebuilds the set.
const presenceFeedBuffer = 64

// changeEnvelope is the wire shape change events take on the watermill bus.
type changeEnvelope struct {
	Operation Operation       `json:"operation"`
	Table     string          `json:"table"`
	Row       json.RawMessage `json:"row"`
}

// MemorySource is an in-process transport backed by watermill's GoChannel.
// It implements both ChangeSource and PresenceSource: change events are
// fanned out on the bus, the presence set is held in a local hub. It serves
// single-node presence in production wiring and doubles as the transport for
// tests.
type MemorySource struct {
	pub    message.Publisher
	sub    message.Subscriber
	logger *slog.Logger

	mu    sync.Mutex
	rooms map[string]map[string]*memPresenceFeed // topic -> feed id -> feed
}

// NewMemorySource initializes the in-process transport.
func NewMemorySource() *MemorySource {
	wmLogger := watermill.NewStdLogger(false, false)
	goChannel := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)

	return &MemorySource{
		pub:    goChannel,
		sub:    goChannel,
		logger: slog.Default().With("service", "realtime.memory"),
		rooms:  make(map[string]map[string]*memPresenceFeed),
	}
}

// Emit publishes one change event for every subscriber of the topic. Row is
// marshalled as the new-row value.
func (m *MemorySource) Emit(ctx context.Context, topic string, op Operation, table string, row any) error {
	rawRow, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}
	payload, err := json.Marshal(changeEnvelope{Operation: op, Table: table, Row: rawRow})
	if err != nil {
		return fmt.Errorf("failed to marshal change envelope: %w", err)
	}

	wmMsg := message.NewMessage(watermill.NewUUID(), payload)
	return m.pub.Publish(changeTopicPrefix+topic, wmMsg)
}

// Subscribe implements ChangeSource. Events matching any filter are pushed
// into the feed tagged with the index of the filter that matched; an event
// matching several filters fires each of them.
func (m *MemorySource) Subscribe(ctx context.Context, topic string, filters []Filter) (ChangeFeed, error) {
	feedCtx, cancel := context.WithCancel(context.Background())

	messages, err := m.sub.Subscribe(feedCtx, changeTopicPrefix+topic)
	if err != nil {
		cancel()
		return nil, err
	}

	feed := &memChangeFeed{
		events: make(chan Notification),
		cancel: cancel,
	}

	go func() {
		defer close(feed.events)
		for wmMsg := range messages {
			var env changeEnvelope
			if err := json.Unmarshal(wmMsg.Payload, &env); err != nil {
				m.logger.Error("Failed to unmarshal change envelope", "topic", topic, "error", err)
				wmMsg.Ack()
				continue
			}
			for i, f := range filters {
				if filterMatches(f, env) {
					select {
					case feed.events <- Notification{Entry: i, Event: ChangeEvent{
						Operation: env.Operation,
						Table:     env.Table,
						Row:       env.Row,
					}}:
					case <-feedCtx.Done():
						wmMsg.Ack()
						return
					}
				}
			}
			wmMsg.Ack()
		}
	}()

	return feed, nil
}

// Close shuts down the underlying bus. Open feeds drain and close.
func (m *MemorySource) Close() error {
	return m.sub.Close()
}

func filterMatches(f Filter, env changeEnvelope) bool {
	if f.Event != env.Operation || f.Table != env.Table {
		return false
	}
	if len(f.Conditions) == 0 {
		return true
	}
	var row map[string]any
	if err := json.Unmarshal(env.Row, &row); err != nil {
		return false
	}
	for _, c := range f.Conditions {
		v, ok := row[c.Column]
		if !ok || fmt.Sprint(v) != c.Equals {
			return false
		}
	}
	return true
}

type memChangeFeed struct {
	events chan Notification
	cancel context.CancelFunc
	once   sync.Once
}

func (f *memChangeFeed) Events() <-chan Notification { return f.events }

func (f *memChangeFeed) Close(ctx context.Context) error {
	f.once.Do(f.cancel)
	return nil
}

// SubscribePresence implements PresenceSource. The feed receives a sync
// event with the current flattened set immediately after subscribing, then
// join/leave deltas.
func (m *MemorySource) SubscribePresence(ctx context.Context, topic string) (PresenceFeed, error) {
	feed := &memPresenceFeed{
		id:     uuid.New().String(),
		topic:  topic,
		hub:    m,
		events: make(chan PresenceEvent, presenceFeedBuffer),
	}

	m.mu.Lock()
	if m.rooms[topic] == nil {
		m.rooms[topic] = make(map[string]*memPresenceFeed)
	}
	m.rooms[topic][feed.id] = feed
	state := m.flattenLocked(topic)
	m.mu.Unlock()

	feed.deliver(PresenceEvent{Kind: PresenceSync, Joined: state})
	return feed, nil
}

// track announces an entry for a feed. One feed holds at most one entry;
// re-tracking the same identity overwrites it (last writer wins) without
// emitting a second join.
func (m *MemorySource) track(f *memPresenceFeed, entry domain.PresenceEntry) error {
	if entry.Ref == "" {
		entry.Ref = uuid.New().String()
	}

	m.mu.Lock()
	room := m.rooms[f.topic]
	if room == nil || room[f.id] == nil {
		m.mu.Unlock()
		return fmt.Errorf("presence feed for topic %q is closed", f.topic)
	}
	prev := f.tracked
	f.tracked = &entry
	peers := m.peersLocked(f.topic)
	m.mu.Unlock()

	switch {
	case prev == nil:
		m.broadcast(peers, PresenceEvent{Kind: PresenceJoin, Joined: []domain.PresenceEntry{entry}})
	case prev.UserID != entry.UserID:
		m.broadcast(peers, PresenceEvent{Kind: PresenceLeave, Left: []domain.PresenceEntry{*prev}})
		m.broadcast(peers, PresenceEvent{Kind: PresenceJoin, Joined: []domain.PresenceEntry{entry}})
	default:
		// Duplicate track for the same identity: state updated, no event.
	}
	return nil
}

// untrack withdraws a feed and its entry; remaining subscribers observe the
// leave.
func (m *MemorySource) untrack(f *memPresenceFeed) {
	m.mu.Lock()
	room := m.rooms[f.topic]
	if room == nil || room[f.id] == nil {
		m.mu.Unlock()
		return
	}
	delete(room, f.id)
	if len(room) == 0 {
		delete(m.rooms, f.topic)
	}
	left := f.tracked
	peers := m.peersLocked(f.topic)
	m.mu.Unlock()

	if left != nil {
		m.broadcast(peers, PresenceEvent{Kind: PresenceLeave, Left: []domain.PresenceEntry{*left}})
	}

	f.sendMu.Lock()
	f.draining = true
	close(f.events)
	f.sendMu.Unlock()
}

// flattenLocked returns every tracked entry on the topic. Callers hold m.mu.
func (m *MemorySource) flattenLocked(topic string) []domain.PresenceEntry {
	var entries []domain.PresenceEntry
	for _, peer := range m.rooms[topic] {
		if peer.tracked != nil {
			entries = append(entries, *peer.tracked)
		}
	}
	return entries
}

func (m *MemorySource) peersLocked(topic string) []*memPresenceFeed {
	peers := make([]*memPresenceFeed, 0, len(m.rooms[topic]))
	for _, peer := range m.rooms[topic] {
		peers = append(peers, peer)
	}
	return peers
}

func (m *MemorySource) broadcast(peers []*memPresenceFeed, ev PresenceEvent) {
	for _, peer := range peers {
		peer.deliver(ev)
	}
}

type memPresenceFeed struct {
	id      string
	topic   string
	hub     *MemorySource
	events  chan PresenceEvent
	tracked *domain.PresenceEntry
	once    sync.Once

	sendMu   sync.Mutex // serializes deliver against channel close
	draining bool
}

func (f *memPresenceFeed) Events() <-chan PresenceEvent { return f.events }

func (f *memPresenceFeed) Track(ctx context.Context, entry domain.PresenceEntry) error {
	return f.hub.track(f, entry)
}

func (f *memPresenceFeed) State() map[string][]domain.PresenceEntry {
	f.hub.mu.Lock()
	defer f.hub.mu.Unlock()

	state := make(map[string][]domain.PresenceEntry)
	for _, entry := range f.hub.flattenLocked(f.topic) {
		state[entry.UserID] = append(state[entry.UserID], entry)
	}
	return state
}

func (f *memPresenceFeed) Close(ctx context.Context) error {
	f.once.Do(func() { f.hub.untrack(f) })
	return nil
}

// deliver pushes an event without blocking the hub; a consumer that has
// fallen presenceFeedBuffer events behind loses the event.
func (f *memPresenceFeed) deliver(ev PresenceEvent) {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()

	if f.draining {
		return
	}
	select {
	case f.events <- ev:
	default:
		f.hub.logger.Warn("Presence feed full, dropping event", "topic", f.topic, "kind", ev.Kind)
	}
}
