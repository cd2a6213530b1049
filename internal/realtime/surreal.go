package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

// DBConn is the slice of the managed database connection this package needs.
type DBConn interface {
	WithConnection(ctx context.Context, fn func(*surrealdb.DB) error) error
}

// SurrealSource implements ChangeSource over SurrealDB live queries. Each
// filter entry becomes its own LIVE SELECT; all of them feed the same
// subscription channel, tagged with the entry index that matched.
type SurrealSource struct {
	db     DBConn
	logger *slog.Logger
}

// NewSurrealSource creates a change source over the given connection.
func NewSurrealSource(db DBConn) *SurrealSource {
	return &SurrealSource{
		db:     db,
		logger: slog.Default().With("service", "realtime.surreal"),
	}
}

// Subscribe establishes one live query per filter. If any filter fails to
// establish, the ones already running are torn down and the error returned.
func (s *SurrealSource) Subscribe(ctx context.Context, topic string, filters []Filter) (ChangeFeed, error) {
	if len(filters) == 0 {
		return nil, fmt.Errorf("at least one filter is required")
	}

	feedCtx, cancel := context.WithCancel(context.Background())
	feed := &surrealFeed{
		events: make(chan Notification),
		cancel: cancel,
	}

	var wg sync.WaitGroup
	for i, f := range filters {
		if err := s.startLiveQuery(ctx, feedCtx, feed, &wg, i, f, topic); err != nil {
			cancel()
			return nil, err
		}
	}

	go func() {
		wg.Wait()
		close(feed.events)
	}()

	return feed, nil
}

func (s *SurrealSource) startLiveQuery(ctx, feedCtx context.Context, feed *surrealFeed, wg *sync.WaitGroup, entry int, f Filter, topic string) error {
	query, params := buildLiveQuery(f)

	return s.db.WithConnection(ctx, func(dbConn *surrealdb.DB) error {
		s.logger.Debug("Creating live query", "topic", topic, "table", f.Table, "entry", entry)

		results, err := surrealdb.Query[interface{}](ctx, dbConn, query, params)
		if err != nil {
			return fmt.Errorf("failed to execute live query: %w", err)
		}
		if results == nil || len(*results) == 0 {
			return fmt.Errorf("live query returned no results")
		}

		result := (*results)[0]
		if result.Status != "OK" {
			return fmt.Errorf("live query failed with status: %s", result.Status)
		}
		if result.Result == nil {
			return fmt.Errorf("live query returned nil result")
		}

		liveQueryID, err := liveQueryIDFromResult(result.Result)
		if err != nil {
			return err
		}

		notificationChan, err := dbConn.LiveNotifications(liveQueryID)
		if err != nil {
			return fmt.Errorf("failed to get notification channel: %w", err)
		}

		s.logger.Debug("Live query established", "topic", topic, "liveQueryID", liveQueryID, "entry", entry)

		wg.Add(1)
		go s.forward(feedCtx, feed, entry, f.Table, notificationChan, wg)

		// Kill the live query on the database side once the feed closes.
		go func() {
			<-feedCtx.Done()

			cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cleanupCancel()

			if err := dbConn.CloseLiveNotifications(liveQueryID); err != nil {
				s.logger.Warn("Failed to close live notifications", "error", err, "liveQueryID", liveQueryID)
			}

			killParams := map[string]interface{}{"liveQueryID": liveQueryID}
			if _, err := surrealdb.Query[interface{}](cleanupCtx, dbConn, "KILL $liveQueryID", killParams); err != nil {
				s.logger.Warn("Failed to kill live query", "error", err, "liveQueryID", liveQueryID)
			}
		}()

		return nil
	})
}

// forward maps SurrealDB notifications into the feed until the feed closes
// or the notification channel drains.
func (s *SurrealSource) forward(ctx context.Context, feed *surrealFeed, entry int, table string, ch <-chan connection.Notification, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case notification, ok := <-ch:
			if !ok {
				return
			}

			var op Operation
			switch notification.Action {
			case connection.CreateAction:
				op = OpInsert
			case connection.UpdateAction:
				op = OpUpdate
			default:
				// Deletes and unknown actions are not part of the contract.
				continue
			}

			row, err := json.Marshal(notification.Result)
			if err != nil {
				s.logger.Error("Failed to marshal live query row", "error", err, "entry", entry)
				continue
			}

			select {
			case feed.events <- Notification{Entry: entry, Event: ChangeEvent{Operation: op, Table: table, Row: row}}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// buildLiveQuery renders a filter as a parameterized LIVE SELECT.
func buildLiveQuery(f Filter) (string, map[string]interface{}) {
	query := fmt.Sprintf("LIVE SELECT * FROM %s", f.Table)
	params := make(map[string]interface{}, len(f.Conditions))

	for i, c := range f.Conditions {
		name := fmt.Sprintf("p%d", i)
		if i == 0 {
			query += fmt.Sprintf(" WHERE %s = $%s", c.Column, name)
		} else {
			query += fmt.Sprintf(" AND %s = $%s", c.Column, name)
		}
		params[name] = c.Equals
	}
	return query, params
}

// liveQueryIDFromResult extracts the live query UUID, which the SDK may hand
// back as a string, a models.UUID, or wrapped in a map.
func liveQueryIDFromResult(result interface{}) (string, error) {
	switch v := result.(type) {
	case string:
		return v, nil
	case models.UUID:
		return v.String(), nil
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			return id, nil
		}
		if id, ok := v["id"].(models.UUID); ok {
			return id.String(), nil
		}
		return "", fmt.Errorf("live query result map does not contain 'id' field: %+v", v)
	default:
		return "", fmt.Errorf("unexpected live query result type: %T, value: %+v", result, result)
	}
}

type surrealFeed struct {
	events chan Notification
	cancel context.CancelFunc
	once   sync.Once
}

func (f *surrealFeed) Events() <-chan Notification { return f.events }

func (f *surrealFeed) Close(ctx context.Context) error {
	f.once.Do(f.cancel)
	return nil
}
