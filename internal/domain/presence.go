package domain

import "time"

// PresenceEntry is one announced connection inside a room's presence set.
// A single identity may hold several entries at once (one per tab/device);
// Ref distinguishes them.
type PresenceEntry struct {
	UserID   string    `json:"user_id"`
	UserName string    `json:"user_name"`
	OnlineAt time.Time `json:"online_at"`
	Ref      string    `json:"ref,omitempty"`
}
