package realtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/nfrund/studysync/internal/domain"
)

// Handle is the common teardown surface of change and presence
// subscriptions. Close is idempotent on both.
type Handle interface {
	Close() error
}

// Subscription is one active change-event subscription. It owns exactly one
// transport feed and dispatches matched events to the filter entries
// registered at Open. Close is safe to call more than once; teardown paths
// are allowed to race.
type Subscription struct {
	ID    string
	Topic string

	feed    ChangeFeed
	entries []FilterEntry
	closed  atomic.Bool
	logger  *slog.Logger
}

// Close tears down the subscription and releases the transport resource.
// Repeated calls are a no-op. Events the transport already buffered will be
// discarded, not delivered to handlers.
func (s *Subscription) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.feed.Close(context.Background())
}

// dispatch drains the feed until the transport closes it. The closed flag is
// checked before every handler invocation so that a buffered event delivered
// after Close never reaches a stale callback.
func (s *Subscription) dispatch() {
	for n := range s.feed.Events() {
		if s.closed.Load() {
			continue
		}
		if n.Entry < 0 || n.Entry >= len(s.entries) {
			s.logger.Warn("Dropping event for unknown filter entry",
				"topic", s.Topic, "entry", n.Entry)
			continue
		}
		s.entries[n.Entry].Handle(context.Background(), n.Event)
	}
	s.logger.Debug("Subscription feed drained", "topic", s.Topic, "sub_id", s.ID)
}

// Manager opens and closes topic-scoped subscriptions against the change
// event source and the presence source. Both are injected at construction;
// nothing in this package reaches for process-wide state.
type Manager struct {
	source   ChangeSource
	presence PresenceSource
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[string]Handle
}

// NewManager creates a subscription manager over the given sources.
func NewManager(source ChangeSource, presence PresenceSource) *Manager {
	return &Manager{
		source:   source,
		presence: presence,
		logger:   slog.Default().With("service", "realtime"),
		subs:     make(map[string]Handle),
	}
}

// Open establishes a subscription for the topic. Each call returns an
// independent Subscription, even for the same topic. A transport failure is
// surfaced as a domain.TransportError; no retry happens here.
func (m *Manager) Open(ctx context.Context, topic string, entries []FilterEntry) (*Subscription, error) {
	filters := make([]Filter, len(entries))
	for i, e := range entries {
		filters[i] = e.Filter
	}

	feed, err := m.source.Subscribe(ctx, topic, filters)
	if err != nil {
		return nil, &domain.TransportError{Op: "subscribe", Topic: topic, Err: err}
	}

	sub := &Subscription{
		ID:      uuid.New().String(),
		Topic:   topic,
		feed:    feed,
		entries: entries,
		logger:  m.logger,
	}
	m.track(sub.ID, sub)
	go func() {
		sub.dispatch()
		m.untrack(sub.ID)
	}()

	m.logger.Debug("Subscription opened", "topic", topic, "sub_id", sub.ID, "filters", len(entries))
	return sub, nil
}

// Close tears down a subscription obtained from this manager. Passing an
// already-closed subscription is a no-op.
func (m *Manager) Close(h Handle) error {
	return h.Close()
}

// CloseAll tears down every subscription still tracked by the manager.
// Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := make([]Handle, 0, len(m.subs))
	for _, h := range m.subs {
		open = append(open, h)
	}
	m.mu.Unlock()

	for _, h := range open {
		if err := h.Close(); err != nil {
			m.logger.Warn("Failed to close subscription during shutdown", "error", err)
		}
	}
}

func (m *Manager) track(id string, h Handle) {
	m.mu.Lock()
	m.subs[id] = h
	m.mu.Unlock()
}

func (m *Manager) untrack(id string) {
	m.mu.Lock()
	delete(m.subs, id)
	m.mu.Unlock()
}
