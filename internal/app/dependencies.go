package app

import (
	"context"
	"fmt"

	"github.com/nfrund/studysync/internal/config"
	"github.com/nfrund/studysync/internal/database"
	"github.com/nfrund/studysync/internal/messaging"
	"github.com/nfrund/studysync/internal/realtime"
	"github.com/nfrund/studysync/internal/registry"
	"github.com/nfrund/studysync/internal/rooms"
)

// Dependencies holds the core services required by the application. The
// struct is built once at the entrypoint and handed to the server; every
// component receives its collaborators explicitly, nothing reaches into
// process-wide state.
type Dependencies struct {
	Config   *config.Config
	DB       *database.Connection
	Hub      *realtime.MemorySource
	Realtime *realtime.Service
	Rooms    *rooms.Coordinator
	Registry *registry.Registry
}

// New wires the full dependency graph: database connection, change/presence
// sources, and the three services, all registered in the registry for the
// server layer.
func New(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	db := database.NewConnection(cfg)
	if err := db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.StartMonitoring()

	// Change events come from SurrealDB live queries; presence is fanned
	// out on the in-process hub.
	hub := realtime.NewMemorySource()
	source := realtime.NewSurrealSource(db)

	rt := realtime.NewService(source, hub, realtime.WithOpTimeout(cfg.OpTimeout))
	msg := messaging.NewService(messaging.NewSurrealStore(db), messaging.WithOpTimeout(cfg.OpTimeout))
	coord := rooms.NewCoordinator(rooms.NewSurrealStore(db), rooms.WithOpTimeout(cfg.OpTimeout))

	reg := registry.New()
	registry.Set(reg, registry.RealtimeServiceKey, rt)
	registry.Set(reg, registry.MessagingServiceKey, msg)
	registry.Set(reg, registry.RoomCoordinatorKey, coord)

	return &Dependencies{
		Config:   cfg,
		DB:       db,
		Hub:      hub,
		Realtime: rt,
		Rooms:    coord,
		Registry: reg,
	}, nil
}

// Close tears down subscriptions, the hub, and the database connection.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Realtime.Shutdown()
	if err := d.Hub.Close(); err != nil {
		return err
	}
	return d.DB.Close(ctx)
}
