package rooms

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/studysync/internal/domain"
)

// Store is the persistence surface for room membership. AppendParticipant
// must itself refuse to exceed max at commit time; the coordinator's lock
// protects in-process callers, the store condition protects against other
// processes sharing the backing store.
type Store interface {
	Get(ctx context.Context, roomID string) (*domain.StudyRoom, error)
	AppendParticipant(ctx context.Context, roomID, userID string, max int) (*domain.StudyRoom, error)
	RemoveParticipant(ctx context.Context, roomID, userID string) (*domain.StudyRoom, error)
}

// Coordinator executes capacity-checked join/leave against a room's
// participant list. The naive read-then-write would let two joins racing at
// the capacity boundary both succeed; each mutation therefore runs under a
// per-room advisory lock held for the whole read-check-write.
type Coordinator struct {
	store     Store
	logger    *slog.Logger
	opTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithOpTimeout bounds store round-trips when the caller's context carries
// no deadline. Zero disables the bound.
func WithOpTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.opTimeout = d
	}
}

// NewCoordinator creates a membership coordinator over an explicit store.
func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		logger: slog.Default().With("service", "rooms"),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Join adds the user to the room's participant list. Joining a room the
// user is already in returns the room unchanged; joining a full room fails
// with domain.ErrRoomFull and writes nothing.
func (c *Coordinator) Join(ctx context.Context, roomID, userID string) (*domain.StudyRoom, error) {
	if roomID == "" || userID == "" {
		return nil, fmt.Errorf("room id and user id are required: %w", domain.ErrInvalidArgument)
	}

	unlock := c.lockRoom(roomID)
	defer unlock()

	ctx, cancel := c.bound(ctx)
	defer cancel()

	room, err := c.store.Get(ctx, roomID)
	if err != nil {
		return nil, domain.WrapTimeout("join", err)
	}

	if room.HasParticipant(userID) {
		return room, nil
	}
	if room.IsFull() {
		return nil, fmt.Errorf("room %s: %w", roomID, domain.ErrRoomFull)
	}

	updated, err := c.store.AppendParticipant(ctx, roomID, userID, room.MaxParticipants)
	if err != nil {
		return nil, domain.WrapTimeout("join", err)
	}

	c.logger.Debug("User joined room",
		"room_id", roomID, "user_id", userID,
		"participants", len(updated.Participants), "max", updated.MaxParticipants)
	return updated, nil
}

// Leave removes the user from the room's participant list. Removing an
// absent user returns the room unchanged and is not an error.
func (c *Coordinator) Leave(ctx context.Context, roomID, userID string) (*domain.StudyRoom, error) {
	if roomID == "" || userID == "" {
		return nil, fmt.Errorf("room id and user id are required: %w", domain.ErrInvalidArgument)
	}

	unlock := c.lockRoom(roomID)
	defer unlock()

	ctx, cancel := c.bound(ctx)
	defer cancel()

	room, err := c.store.Get(ctx, roomID)
	if err != nil {
		return nil, domain.WrapTimeout("leave", err)
	}

	if !room.HasParticipant(userID) {
		return room, nil
	}

	updated, err := c.store.RemoveParticipant(ctx, roomID, userID)
	if err != nil {
		return nil, domain.WrapTimeout("leave", err)
	}

	c.logger.Debug("User left room", "room_id", roomID, "user_id", userID,
		"participants", len(updated.Participants))
	return updated, nil
}

// lockRoom takes the advisory lock for one room, creating it on first use.
// Locks are never reclaimed; the set of rooms a process touches is small.
func (c *Coordinator) lockRoom(roomID string) func() {
	c.mu.Lock()
	l, ok := c.locks[roomID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[roomID] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (c *Coordinator) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opTimeout)
}
