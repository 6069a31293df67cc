package models

import (
	"time"
)

// Conversation is a message thread between a prospective tenant and a landlord about one property.
type Conversation struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"property_id"`
	TenantID   string    `json:"tenant_id"`
	LandlordID string    `json:"landlord_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsParticipant returns true if the user belongs to the conversation.
func (c *Conversation) IsParticipant(userID string) bool {
	return userID != "" && (userID == c.TenantID || userID == c.LandlordID)
}

// Counterpart returns the other participant.
func (c *Conversation) Counterpart(userID string) string {
	if userID == c.TenantID {
		return c.LandlordID
	}
	return c.TenantID
}

// Message is a single chat message in a conversation.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}
