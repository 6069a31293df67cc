package models

import (
	"time"
)

// Notification is a user-facing notice about a lease, payment, or message.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      *string   `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification types
const (
	NotificationTypeLease   = "lease"
	NotificationTypePayment = "payment"
	NotificationTypeMessage = "message"
	NotificationTypeSystem  = "system"
)
