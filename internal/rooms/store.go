package rooms

import (
	"context"
	"fmt"

	"github.com/nfrund/studysync/internal/database"
	"github.com/nfrund/studysync/internal/domain"
	"github.com/surrealdb/surrealdb.go"
)

// SurrealStore persists room membership in SurrealDB.
type SurrealStore struct {
	db *database.Connection
}

// NewSurrealStore creates a room store over the managed connection.
func NewSurrealStore(db *database.Connection) *SurrealStore {
	return &SurrealStore{db: db}
}

// Get loads a room by id. A missing room is domain.ErrNotFound.
func (s *SurrealStore) Get(ctx context.Context, roomID string) (*domain.StudyRoom, error) {
	query := "SELECT * FROM $room"
	params := map[string]any{"room": roomID}

	var room *domain.StudyRoom
	err := s.db.WithConnection(ctx, func(conn *surrealdb.DB) error {
		var err error
		room, err = database.QueryOne[domain.StudyRoom](ctx, conn, query, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch room: %w", err)
	}
	if room == nil {
		return nil, fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	return room, nil
}

// AppendParticipant adds the user in a single conditional statement: the
// write only commits while the list is still under max, so the capacity
// invariant holds even against writers in other processes. array::union
// keeps the id set duplicate-free.
func (s *SurrealStore) AppendParticipant(ctx context.Context, roomID, userID string, max int) (*domain.StudyRoom, error) {
	query := `
		UPDATE $room SET
			participants = array::union(participants, [$user]),
			updated_at = time::now()
		WHERE array::len(participants) < $max OR participants CONTAINS $user
		RETURN AFTER
	`
	params := map[string]any{
		"room": roomID,
		"user": userID,
		"max":  max,
	}

	var updated *domain.StudyRoom
	err := s.db.WithConnection(ctx, func(conn *surrealdb.DB) error {
		var err error
		updated, err = database.QueryOne[domain.StudyRoom](ctx, conn, query, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append participant: %w", err)
	}
	if updated == nil {
		// The condition refused the write: either the room filled up under
		// us or it no longer exists. Re-read to tell the two apart.
		if _, err := s.Get(ctx, roomID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("room %s: %w", roomID, domain.ErrRoomFull)
	}
	return updated, nil
}

// RemoveParticipant removes the user's id from the list. Removing an absent
// id leaves the row unchanged.
func (s *SurrealStore) RemoveParticipant(ctx context.Context, roomID, userID string) (*domain.StudyRoom, error) {
	query := `
		UPDATE $room SET
			participants -= $user,
			updated_at = time::now()
		RETURN AFTER
	`
	params := map[string]any{
		"room": roomID,
		"user": userID,
	}

	var updated *domain.StudyRoom
	err := s.db.WithConnection(ctx, func(conn *surrealdb.DB) error {
		var err error
		updated, err = database.QueryOne[domain.StudyRoom](ctx, conn, query, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to remove participant: %w", err)
	}
	if updated == nil {
		return nil, fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	return updated, nil
}
