package registry

import (
	"github.com/nfrund/studysync/internal/messaging"
	"github.com/nfrund/studysync/internal/realtime"
	"github.com/nfrund/studysync/internal/rooms"
)

// Service keys for dependency wiring. Using constants prevents typos.
var (
	RealtimeServiceKey  = Key[*realtime.Service]("realtime.service")
	MessagingServiceKey = Key[*messaging.Service]("messaging.service")
	RoomCoordinatorKey  = Key[*rooms.Coordinator]("rooms.coordinator")
)
