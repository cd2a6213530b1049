package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/nfrund/studysync/internal/database"
	"github.com/nfrund/studysync/internal/domain"
	"github.com/nfrund/studysync/internal/realtime"
	"github.com/surrealdb/surrealdb.go"
)

// SurrealStore persists messages in SurrealDB.
type SurrealStore struct {
	db *database.Connection
}

// NewSurrealStore creates a message store over the managed connection.
func NewSurrealStore(db *database.Connection) *SurrealStore {
	return &SurrealStore{db: db}
}

// Insert creates the message row and returns it as stored.
func (s *SurrealStore) Insert(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	query := fmt.Sprintf("CREATE %s CONTENT $data RETURN AFTER", realtime.TableMessages)
	params := map[string]any{"data": msg}

	var created *domain.Message
	err := s.db.WithConnection(ctx, func(conn *surrealdb.DB) error {
		var err error
		created, err = database.QueryOne[domain.Message](ctx, conn, query, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	if created == nil {
		return nil, fmt.Errorf("message was not created or could not be fetched")
	}
	return created, nil
}

// MarkRead stamps is_read/read_at on the message row. A missing row is
// domain.ErrNotFound.
func (s *SurrealStore) MarkRead(ctx context.Context, messageID string, at time.Time) error {
	query := "UPDATE $id SET is_read = true, read_at = $at RETURN AFTER"
	params := map[string]any{
		"id": messageID,
		"at": at,
	}

	var updated *domain.Message
	err := s.db.WithConnection(ctx, func(conn *surrealdb.DB) error {
		var err error
		updated, err = database.QueryOne[domain.Message](ctx, conn, query, params)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	if updated == nil {
		return fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}
	return nil
}

// RecentRoomMessages returns the latest messages of a room, oldest first.
func (s *SurrealStore) RecentRoomMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE room_id = $room ORDER BY sent_at DESC LIMIT $limit", realtime.TableMessages)
	params := map[string]any{
		"room":  roomID,
		"limit": limit,
	}

	var result []domain.Message
	err := s.db.WithConnection(ctx, func(conn *surrealdb.DB) error {
		var err error
		result, err = database.Query[domain.Message](ctx, conn, query, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	// Reverse to oldest-first for display.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}
