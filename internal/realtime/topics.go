package realtime

import "fmt"

// Table names of the backing store rows this layer observes and writes.
const (
	TableMessages      = "messages"
	TableStudyRooms    = "study_rooms"
	TableNotifications = "notifications"
	TableConnections   = "connections"
)

// Topic builders. Topics are namespaced by kind and by the identifiers that
// scope them; the names match what the rest of the platform subscribes to.

// RoomMessagesTopic scopes a room's message stream.
func RoomMessagesTopic(roomID string) string {
	return fmt.Sprintf("room:%s", roomID)
}

// DirectMessagesTopic scopes the direct-message stream between two users,
// from the subscriber's point of view (the pair is ordered, not sorted).
func DirectMessagesTopic(userID, otherUserID string) string {
	return fmt.Sprintf("dm:%s:%s", userID, otherUserID)
}

// RoomParticipantsTopic scopes a room's participant-update stream.
func RoomParticipantsTopic(roomID string) string {
	return fmt.Sprintf("room-participants:%s", roomID)
}

// NotificationsTopic scopes a user's notification stream.
func NotificationsTopic(userID string) string {
	return fmt.Sprintf("notifications:%s", userID)
}

// ConnectionsTopic scopes a user's connection-request stream.
func ConnectionsTopic(userID string) string {
	return fmt.Sprintf("connections:%s", userID)
}

// RoomPresenceTopic scopes a room's presence stream.
func RoomPresenceTopic(roomID string) string {
	return fmt.Sprintf("presence:%s", roomID)
}
