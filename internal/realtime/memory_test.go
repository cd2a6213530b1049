package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nfrund/studysync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitNotification(t *testing.T, feed ChangeFeed) Notification {
	t.Helper()
	select {
	case n, ok := <-feed.Events():
		require.True(t, ok, "feed closed before delivering an event")
		return n
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change event")
		return Notification{}
	}
}

func waitPresenceEvent(t *testing.T, feed PresenceFeed) PresenceEvent {
	t.Helper()
	select {
	case ev, ok := <-feed.Events():
		require.True(t, ok, "feed closed before delivering an event")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for presence event")
		return PresenceEvent{}
	}
}

func TestMemorySourceRoutesMatchingEvents(t *testing.T) {
	src := NewMemorySource()
	defer src.Close()

	feed, err := src.Subscribe(context.Background(), "room:r1", []Filter{
		{
			Event:      OpInsert,
			Table:      TableMessages,
			Conditions: []Condition{{Column: "room_id", Equals: "r1"}},
		},
	})
	require.NoError(t, err)
	defer feed.Close(context.Background())

	msg := domain.Message{SenderID: "u1", RoomID: "r1", MessageType: domain.MessageText, Content: "hi"}
	require.NoError(t, src.Emit(context.Background(), "room:r1", OpInsert, TableMessages, msg))

	n := waitNotification(t, feed)
	assert.Equal(t, 0, n.Entry)
	assert.Equal(t, OpInsert, n.Event.Operation)
	assert.Equal(t, TableMessages, n.Event.Table)

	var got domain.Message
	require.NoError(t, json.Unmarshal(n.Event.Row, &got))
	assert.Equal(t, "hi", got.Content)
}

func TestMemorySourceFiltersOutNonMatchingEvents(t *testing.T) {
	src := NewMemorySource()
	defer src.Close()

	feed, err := src.Subscribe(context.Background(), "room:r1", []Filter{
		{
			Event:      OpInsert,
			Table:      TableMessages,
			Conditions: []Condition{{Column: "room_id", Equals: "r1"}},
		},
	})
	require.NoError(t, err)
	defer feed.Close(context.Background())

	other := domain.Message{SenderID: "u1", RoomID: "r2", MessageType: domain.MessageText, Content: "elsewhere"}
	require.NoError(t, src.Emit(context.Background(), "room:r1", OpInsert, TableMessages, other))
	wrongOp := domain.Message{SenderID: "u1", RoomID: "r1", MessageType: domain.MessageText, Content: "edited"}
	require.NoError(t, src.Emit(context.Background(), "room:r1", OpUpdate, TableMessages, wrongOp))
	match := domain.Message{SenderID: "u1", RoomID: "r1", MessageType: domain.MessageText, Content: "match"}
	require.NoError(t, src.Emit(context.Background(), "room:r1", OpInsert, TableMessages, match))

	n := waitNotification(t, feed)
	var got domain.Message
	require.NoError(t, json.Unmarshal(n.Event.Row, &got))
	assert.Equal(t, "match", got.Content)
}

func TestMemorySourceTagsEntryPerFilter(t *testing.T) {
	src := NewMemorySource()
	defer src.Close()

	feed, err := src.Subscribe(context.Background(), "dm:u1:u2", []Filter{
		{
			Event: OpInsert,
			Table: TableMessages,
			Conditions: []Condition{
				{Column: "sender_id", Equals: "u2"},
				{Column: "receiver_id", Equals: "u1"},
			},
		},
		{
			Event: OpInsert,
			Table: TableMessages,
			Conditions: []Condition{
				{Column: "sender_id", Equals: "u1"},
				{Column: "receiver_id", Equals: "u2"},
			},
		},
	})
	require.NoError(t, err)
	defer feed.Close(context.Background())

	outbound := domain.Message{SenderID: "u1", ReceiverID: "u2", MessageType: domain.MessageText, Content: "ping"}
	require.NoError(t, src.Emit(context.Background(), "dm:u1:u2", OpInsert, TableMessages, outbound))

	n := waitNotification(t, feed)
	assert.Equal(t, 1, n.Entry)

	inbound := domain.Message{SenderID: "u2", ReceiverID: "u1", MessageType: domain.MessageText, Content: "pong"}
	require.NoError(t, src.Emit(context.Background(), "dm:u1:u2", OpInsert, TableMessages, inbound))

	n = waitNotification(t, feed)
	assert.Equal(t, 0, n.Entry)
}

func TestMemorySourceFeedCloseStopsStream(t *testing.T) {
	src := NewMemorySource()
	defer src.Close()

	feed, err := src.Subscribe(context.Background(), "room:r1", []Filter{
		{Event: OpInsert, Table: TableMessages},
	})
	require.NoError(t, err)

	require.NoError(t, feed.Close(context.Background()))
	require.NoError(t, feed.Close(context.Background()))

	assert.Eventually(t, func() bool {
		_, ok := <-feed.Events()
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestMemorySourcePresenceSyncOnSubscribe(t *testing.T) {
	src := NewMemorySource()
	defer src.Close()

	feedA, err := src.SubscribePresence(context.Background(), "presence:r1")
	require.NoError(t, err)
	defer feedA.Close(context.Background())

	sync := waitPresenceEvent(t, feedA)
	assert.Equal(t, PresenceSync, sync.Kind)
	assert.Empty(t, sync.Joined)

	require.NoError(t, feedA.Track(context.Background(), entry("u1", "Alice")))

	// A later subscriber's sync reflects the tracked entry.
	feedB, err := src.SubscribePresence(context.Background(), "presence:r1")
	require.NoError(t, err)
	defer feedB.Close(context.Background())

	sync = waitPresenceEvent(t, feedB)
	require.Equal(t, PresenceSync, sync.Kind)
	require.Len(t, sync.Joined, 1)
	assert.Equal(t, "u1", sync.Joined[0].UserID)
}

func TestMemorySourcePresenceJoinAndLeave(t *testing.T) {
	src := NewMemorySource()
	defer src.Close()

	feedA, err := src.SubscribePresence(context.Background(), "presence:r1")
	require.NoError(t, err)
	defer feedA.Close(context.Background())
	waitPresenceEvent(t, feedA) // initial sync

	feedB, err := src.SubscribePresence(context.Background(), "presence:r1")
	require.NoError(t, err)
	waitPresenceEvent(t, feedB) // initial sync

	require.NoError(t, feedB.Track(context.Background(), entry("u2", "Bob")))

	join := waitPresenceEvent(t, feedA)
	require.Equal(t, PresenceJoin, join.Kind)
	require.Len(t, join.Joined, 1)
	assert.Equal(t, "u2", join.Joined[0].UserID)

	require.NoError(t, feedB.Close(context.Background()))

	leave := waitPresenceEvent(t, feedA)
	require.Equal(t, PresenceLeave, leave.Kind)
	require.Len(t, leave.Left, 1)
	assert.Equal(t, "u2", leave.Left[0].UserID)
}

func TestMemorySourceDuplicateTrackSameIdentity(t *testing.T) {
	src := NewMemorySource()
	defer src.Close()

	feedA, err := src.SubscribePresence(context.Background(), "presence:r1")
	require.NoError(t, err)
	defer feedA.Close(context.Background())
	waitPresenceEvent(t, feedA) // initial sync

	feedB, err := src.SubscribePresence(context.Background(), "presence:r1")
	require.NoError(t, err)
	defer feedB.Close(context.Background())
	waitPresenceEvent(t, feedB) // initial sync

	require.NoError(t, feedB.Track(context.Background(), entry("u2", "Bob")))
	join := waitPresenceEvent(t, feedA)
	assert.Equal(t, PresenceJoin, join.Kind)

	// Re-tracking the same identity updates state without a second join.
	require.NoError(t, feedB.Track(context.Background(), entry("u2", "Bob")))

	state := feedA.State()
	require.Len(t, state["u2"], 1)

	select {
	case ev := <-feedA.Events():
		t.Fatalf("unexpected presence event after duplicate track: %v", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemorySourceRetrackDifferentIdentity(t *testing.T) {
	src := NewMemorySource()
	defer src.Close()

	feedA, err := src.SubscribePresence(context.Background(), "presence:r1")
	require.NoError(t, err)
	defer feedA.Close(context.Background())
	waitPresenceEvent(t, feedA) // initial sync

	feedB, err := src.SubscribePresence(context.Background(), "presence:r1")
	require.NoError(t, err)
	defer feedB.Close(context.Background())
	waitPresenceEvent(t, feedB) // initial sync

	require.NoError(t, feedB.Track(context.Background(), entry("u2", "Bob")))
	waitPresenceEvent(t, feedA) // join u2

	require.NoError(t, feedB.Track(context.Background(), entry("u3", "Cara")))

	leave := waitPresenceEvent(t, feedA)
	require.Equal(t, PresenceLeave, leave.Kind)
	assert.Equal(t, "u2", leave.Left[0].UserID)

	join := waitPresenceEvent(t, feedA)
	require.Equal(t, PresenceJoin, join.Kind)
	assert.Equal(t, "u3", join.Joined[0].UserID)
}

func TestMemorySourceTrackAfterCloseFails(t *testing.T) {
	src := NewMemorySource()
	defer src.Close()

	feed, err := src.SubscribePresence(context.Background(), "presence:r1")
	require.NoError(t, err)
	require.NoError(t, feed.Close(context.Background()))

	err = feed.Track(context.Background(), entry("u1", "Alice"))
	assert.Error(t, err)
}
