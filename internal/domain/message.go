package domain

import "time"

// MessageType describes the kind of content a message carries.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageFile  MessageType = "file"
	MessageImage MessageType = "image"
	MessageVideo MessageType = "video"
	MessageAudio MessageType = "audio"
)

// Message is a chat message, scoped either to a study room (RoomID set) or
// to a direct pair (ReceiverID set). Exactly one of the two is ever set.
type Message struct {
	ID          string      `json:"id,omitempty"`
	SenderID    string      `json:"sender_id"`
	ReceiverID  string      `json:"receiver_id,omitempty"`
	RoomID      string      `json:"room_id,omitempty"`
	MessageType MessageType `json:"message_type"`
	Content     string      `json:"content,omitempty"`
	FileURL     string      `json:"file_url,omitempty"`
	FileName    string      `json:"file_name,omitempty"`
	FileSize    int64       `json:"file_size,omitempty"`
	IsRead      bool        `json:"is_read"`
	SentAt      time.Time   `json:"sent_at"`
	ReadAt      *time.Time  `json:"read_at,omitempty"`
}

// FileAttrs carries the optional file metadata for non-text messages.
type FileAttrs struct {
	URL  string `json:"file_url"`
	Name string `json:"file_name"`
	Size int64  `json:"file_size"`
}
