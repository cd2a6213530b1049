package domain

import "time"

// RoomStatus tracks a study room through its scheduled lifecycle.
type RoomStatus string

const (
	RoomScheduled RoomStatus = "scheduled"
	RoomLive      RoomStatus = "live"
	RoomEnded     RoomStatus = "ended"
	RoomCancelled RoomStatus = "cancelled"
)

// StudyRoom is a capacity-bounded room. Participants holds unique user ids;
// len(Participants) <= MaxParticipants must hold after every accepted
// membership mutation.
type StudyRoom struct {
	ID              string     `json:"id,omitempty"`
	Title           string     `json:"title"`
	Subject         string     `json:"subject,omitempty"`
	HostID          string     `json:"host_id"`
	Status          RoomStatus `json:"status,omitempty"`
	MaxParticipants int        `json:"max_participants"`
	Participants    []string   `json:"participants"`
	CreatedAt       time.Time  `json:"created_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at,omitempty"`
}

// HasParticipant reports whether the user is already in the room.
func (r *StudyRoom) HasParticipant(userID string) bool {
	for _, id := range r.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// IsFull reports whether another join would violate the capacity bound.
func (r *StudyRoom) IsFull() bool {
	return len(r.Participants) >= r.MaxParticipants
}
