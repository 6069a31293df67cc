package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeLeaseStatusChanged  MessageType = "lease.status_changed"
	TypePaymentCompleted    MessageType = "payment.completed"
	TypeMessageCreated      MessageType = "message.created"
	TypeNotificationCreated MessageType = "notification.created"

	// Client -> Server command types
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
	TypePing        MessageType = "ping"
	TypeSend        MessageType = "send"

	// Server -> Client response types
	TypeSubscribeAck   MessageType = "subscribe.ack"
	TypeUnsubscribeAck MessageType = "unsubscribe.ack"
	TypePong           MessageType = "pong"
	TypeError          MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, channel string, payload any) Message {
	return Message{
		Type:      msgType,
		Channel:   channel,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// Command is a message sent by a client.
type Command struct {
	Type    MessageType     `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SendPayload is the payload of a send command.
type SendPayload struct {
	Body string `json:"body"`
}

// LeaseStatusPayload is the payload for lease.status_changed events.
type LeaseStatusPayload struct {
	LeaseID        string `json:"lease_id"`
	PropertyID     string `json:"property_id"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	PaymentStatus  string `json:"payment_status"`
}

// PaymentCompletedPayload is the payload for payment.completed events.
type PaymentCompletedPayload struct {
	LeaseID string          `json:"lease_id"`
	Amount  decimal.Decimal `json:"amount"`
	PaidAt  time.Time       `json:"paid_at"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}

// Channel kinds
const (
	ChannelKindConversation  = "conversation"
	ChannelKindNotifications = "notifications"
)

// ConversationChannel names the channel carrying a conversation's messages.
func ConversationChannel(conversationID string) string {
	return "conversation:" + conversationID
}

// UserChannel names a user's private notification channel.
func UserChannel(userID string) string {
	return "user:" + userID + ":notifications"
}

// ParseChannel splits a channel name into its kind and the ID it refers to.
func ParseChannel(channel string) (kind, id string, err error) {
	parts := strings.Split(channel, ":")
	switch {
	case len(parts) == 2 && parts[0] == "conversation" && parts[1] != "":
		return ChannelKindConversation, parts[1], nil
	case len(parts) == 3 && parts[0] == "user" && parts[1] != "" && parts[2] == "notifications":
		return ChannelKindNotifications, parts[1], nil
	}
	return "", "", fmt.Errorf("unknown channel %q", channel)
}
