package websocket

import (
	"context"
	"time"

	"github.com/leasehub/backend/internal/storage/models"
)

// EventBroadcaster turns domain changes into push messages on the right channels.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// LeaseStatusChanged tells both parties of a lease about a status change.
func (b *EventBroadcaster) LeaseStatusChanged(ctx context.Context, l models.LeaseAgreement, previousStatus string) {
	payload := LeaseStatusPayload{
		LeaseID:        l.ID,
		PropertyID:     l.PropertyID,
		PreviousStatus: previousStatus,
		NewStatus:      l.Status,
		PaymentStatus:  l.PaymentStatus,
	}

	for _, userID := range []string{l.TenantID, l.LandlordID} {
		b.hub.Publish(ctx, NewMessage(TypeLeaseStatusChanged, UserChannel(userID), payload))
	}
}

// PaymentCompleted tells both parties that a lease was paid.
func (b *EventBroadcaster) PaymentCompleted(ctx context.Context, l models.LeaseAgreement) {
	payload := PaymentCompletedPayload{
		LeaseID: l.ID,
		Amount:  l.PaymentAmount,
	}
	if l.PaidAt != nil {
		payload.PaidAt = *l.PaidAt
	} else {
		payload.PaidAt = time.Now().UTC()
	}

	for _, userID := range []string{l.TenantID, l.LandlordID} {
		b.hub.Publish(ctx, NewMessage(TypePaymentCompleted, UserChannel(userID), payload))
	}
}

// MessageCreated publishes a chat message to its conversation channel.
func (b *EventBroadcaster) MessageCreated(ctx context.Context, m models.Message) {
	b.hub.Publish(ctx, NewMessage(TypeMessageCreated, ConversationChannel(m.ConversationID), m))
}

// NotificationCreated publishes a notification to its owner's channel.
func (b *EventBroadcaster) NotificationCreated(ctx context.Context, n models.Notification) {
	b.hub.Publish(ctx, NewMessage(TypeNotificationCreated, UserChannel(n.UserID), n))
}
