package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nfrund/studysync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPresenceFeed is a hand-driven PresenceFeed for testing the presence
// dispatch state machine.
type stubPresenceFeed struct {
	events   chan PresenceEvent
	trackErr error
	closed   atomic.Bool
	once     sync.Once

	mu      sync.Mutex
	tracked []domain.PresenceEntry
}

func newStubPresenceFeed(buffer int) *stubPresenceFeed {
	return &stubPresenceFeed{events: make(chan PresenceEvent, buffer)}
}

func (f *stubPresenceFeed) Events() <-chan PresenceEvent { return f.events }

func (f *stubPresenceFeed) Track(ctx context.Context, entry domain.PresenceEntry) error {
	if f.trackErr != nil {
		return f.trackErr
	}
	f.mu.Lock()
	f.tracked = append(f.tracked, entry)
	f.mu.Unlock()
	return nil
}

func (f *stubPresenceFeed) State() map[string][]domain.PresenceEntry {
	return nil
}

func (f *stubPresenceFeed) Close(ctx context.Context) error {
	f.closed.Store(true)
	f.once.Do(func() { close(f.events) })
	return nil
}

func (f *stubPresenceFeed) trackedEntries() []domain.PresenceEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.PresenceEntry, len(f.tracked))
	copy(out, f.tracked)
	return out
}

// stubPresenceSource hands out a pre-built presence feed, or fails.
type stubPresenceSource struct {
	feed *stubPresenceFeed
	err  error
}

func (s *stubPresenceSource) SubscribePresence(ctx context.Context, topic string) (PresenceFeed, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.feed, nil
}

func entry(userID, userName string) domain.PresenceEntry {
	return domain.PresenceEntry{UserID: userID, UserName: userName, OnlineAt: time.Now().UTC()}
}

func collectPresence(t *testing.T, ch <-chan []domain.PresenceEntry) []domain.PresenceEntry {
	t.Helper()
	select {
	case entries := <-ch:
		return entries
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for presence callback")
		return nil
	}
}

func TestOpenPresenceTracksSelfAfterSubscribe(t *testing.T) {
	feed := newStubPresenceFeed(4)
	source := &stubPresenceSource{feed: feed}
	mgr := NewManager(nil, source)

	self := entry("u1", "Alice")
	sub, err := mgr.OpenPresence(context.Background(), "presence:r1", self, nil, nil)
	require.NoError(t, err)
	defer sub.Close()

	tracked := feed.trackedEntries()
	require.Len(t, tracked, 1)
	assert.Equal(t, "u1", tracked[0].UserID)
	assert.Equal(t, "Alice", tracked[0].UserName)
}

func TestOpenPresenceSyncDeliversFullSet(t *testing.T) {
	feed := newStubPresenceFeed(4)
	source := &stubPresenceSource{feed: feed}
	mgr := NewManager(nil, source)

	joins := make(chan []domain.PresenceEntry, 4)
	sub, err := mgr.OpenPresence(context.Background(), "presence:r1", entry("u1", "Alice"),
		func(entries []domain.PresenceEntry) { joins <- entries }, nil)
	require.NoError(t, err)
	defer sub.Close()

	feed.events <- PresenceEvent{Kind: PresenceSync, Joined: []domain.PresenceEntry{
		entry("u1", "Alice"),
		entry("u2", "Bob"),
	}}

	got := collectPresence(t, joins)
	require.Len(t, got, 2)
	assert.Equal(t, "u1", got[0].UserID)
	assert.Equal(t, "u2", got[1].UserID)
}

func TestOpenPresenceDropsDeltasBeforeSync(t *testing.T) {
	feed := newStubPresenceFeed(8)
	source := &stubPresenceSource{feed: feed}
	mgr := NewManager(nil, source)

	joins := make(chan []domain.PresenceEntry, 4)
	leaves := make(chan []domain.PresenceEntry, 4)
	sub, err := mgr.OpenPresence(context.Background(), "presence:r1", entry("u1", "Alice"),
		func(entries []domain.PresenceEntry) { joins <- entries },
		func(entries []domain.PresenceEntry) { leaves <- entries })
	require.NoError(t, err)
	defer sub.Close()

	// Deltas that race ahead of the initial sync carry state the sync will
	// already contain; they must not be double-reported.
	feed.events <- PresenceEvent{Kind: PresenceJoin, Joined: []domain.PresenceEntry{entry("u2", "Bob")}}
	feed.events <- PresenceEvent{Kind: PresenceLeave, Left: []domain.PresenceEntry{entry("u3", "Cara")}}
	feed.events <- PresenceEvent{Kind: PresenceSync, Joined: []domain.PresenceEntry{entry("u2", "Bob")}}

	got := collectPresence(t, joins)
	require.Len(t, got, 1)
	assert.Equal(t, "u2", got[0].UserID)
	assert.Empty(t, leaves)

	// After the sync, deltas flow through.
	feed.events <- PresenceEvent{Kind: PresenceLeave, Left: []domain.PresenceEntry{entry("u2", "Bob")}}
	left := collectPresence(t, leaves)
	require.Len(t, left, 1)
	assert.Equal(t, "u2", left[0].UserID)
}

func TestOpenPresenceSubscribeFailure(t *testing.T) {
	source := &stubPresenceSource{err: errors.New("bus unavailable")}
	mgr := NewManager(nil, source)

	sub, err := mgr.OpenPresence(context.Background(), "presence:r1", entry("u1", "Alice"), nil, nil)
	require.Error(t, err)
	assert.Nil(t, sub)

	var terr *domain.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "subscribe", terr.Op)
	assert.Equal(t, "presence:r1", terr.Topic)
}

func TestOpenPresenceTrackFailureClosesFeed(t *testing.T) {
	feed := newStubPresenceFeed(1)
	feed.trackErr = errors.New("feed rejected entry")
	source := &stubPresenceSource{feed: feed}
	mgr := NewManager(nil, source)

	sub, err := mgr.OpenPresence(context.Background(), "presence:r1", entry("u1", "Alice"), nil, nil)
	require.Error(t, err)
	assert.Nil(t, sub)

	var terr *domain.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "track", terr.Op)
	assert.True(t, feed.closed.Load())
}

func TestPresenceSubscriptionCloseIsIdempotent(t *testing.T) {
	feed := newStubPresenceFeed(1)
	source := &stubPresenceSource{feed: feed}
	mgr := NewManager(nil, source)

	sub, err := mgr.OpenPresence(context.Background(), "presence:r1", entry("u1", "Alice"), nil, nil)
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
}

func TestPresenceSubscriptionNoDeliveryAfterClose(t *testing.T) {
	feed := newStubPresenceFeed(8)
	source := &stubPresenceSource{feed: feed}
	mgr := NewManager(nil, source)

	var delivered atomic.Int32
	sub, err := mgr.OpenPresence(context.Background(), "presence:r1", entry("u1", "Alice"),
		func(entries []domain.PresenceEntry) { delivered.Add(1) }, nil)
	require.NoError(t, err)

	feed.events <- PresenceEvent{Kind: PresenceSync, Joined: []domain.PresenceEntry{entry("u1", "Alice")}}
	require.Eventually(t, func() bool { return delivered.Load() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, sub.Close())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), delivered.Load())
}
