package domain

import "time"

// ConnectionStatus tracks a connection request through its lifecycle.
type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
	ConnectionRejected ConnectionStatus = "rejected"
	ConnectionBlocked  ConnectionStatus = "blocked"
)

// Connection is a request from UserID to ConnectedUserID.
type Connection struct {
	ID              string           `json:"id,omitempty"`
	UserID          string           `json:"user_id"`
	ConnectedUserID string           `json:"connected_user_id"`
	ConnectionType  string           `json:"connection_type,omitempty"`
	Status          ConnectionStatus `json:"status"`
	Message         string           `json:"message,omitempty"`
	RequestedAt     time.Time        `json:"requested_at"`
	RespondedAt     *time.Time       `json:"responded_at,omitempty"`
}
