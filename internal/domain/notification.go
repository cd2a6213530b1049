package domain

import "time"

// NotificationType mirrors the notification categories of the platform.
type NotificationType string

const (
	NotifyStudyRoom   NotificationType = "study_room"
	NotifyMessage     NotificationType = "message"
	NotifyConnection  NotificationType = "connection"
	NotifyReminder    NotificationType = "reminder"
	NotifyAchievement NotificationType = "achievement"
	NotifySystem      NotificationType = "system"
)

// Notification is a per-user notification row.
type Notification struct {
	ID        string           `json:"id,omitempty"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	ActionURL string           `json:"action_url,omitempty"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}
