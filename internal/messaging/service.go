// Package messaging manages conversations between tenants and landlords.
package messaging

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/leasehub/backend/internal/apperror"
	"github.com/leasehub/backend/internal/auth"
	"github.com/leasehub/backend/internal/notification"
	"github.com/leasehub/backend/internal/storage/models"
)

// maxBodyLength bounds a single chat message.
const maxBodyLength = 4000

// Errors
var (
	ErrConversationNotFound = apperror.NotFound("conversation not found")
	ErrTenantsOnly          = apperror.Forbidden("only tenants can start conversations")
	ErrEmptyMessage         = apperror.Validation("message body is required")
	ErrMessageTooLong       = apperror.Validation("message body exceeds %d characters", maxBodyLength)
	ErrMissingField         = apperror.Validation("property_id and landlord_id are required")
)

// Store persists conversations and messages.
type Store interface {
	GetOrCreate(ctx context.Context, c *models.Conversation) (*models.Conversation, bool, error)
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	FindByPropertyTenant(ctx context.Context, propertyID, tenantID string) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	AddMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error)
}

// Publisher pushes new messages to the conversation channel.
type Publisher interface {
	MessageCreated(ctx context.Context, m models.Message)
}

// Notifier creates notifications for the other participant.
type Notifier interface {
	Create(ctx context.Context, in notification.Input) (*models.Notification, error)
}

// StartRequest opens a conversation about a property.
type StartRequest struct {
	PropertyID string `json:"property_id"`
	LandlordID string `json:"landlord_id"`
	Message    string `json:"message"`
}

// Service manages conversations.
type Service struct {
	store     Store
	publisher Publisher
	notifier  Notifier
	now       func() time.Time
}

// NewService creates a messaging service. publisher and notifier may be nil.
func NewService(store Store, publisher Publisher, notifier Notifier) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Find returns the tenant's conversation about a property, or nil.
func (s *Service) Find(ctx context.Context, actor auth.Actor, propertyID string) (*models.Conversation, error) {
	if !actor.IsTenant() {
		return nil, nil
	}
	return s.store.FindByPropertyTenant(ctx, propertyID, actor.UserID)
}

// Start opens a conversation between the tenant and a property's landlord.
// An existing conversation for the pair is returned as is. The first message
// is posted when the conversation has none yet, which also covers a retry
// after the message write failed. The bool reports whether it was posted.
func (s *Service) Start(ctx context.Context, actor auth.Actor, req StartRequest) (*models.Conversation, bool, error) {
	if !actor.IsTenant() {
		return nil, false, ErrTenantsOnly
	}
	if strings.TrimSpace(req.PropertyID) == "" || strings.TrimSpace(req.LandlordID) == "" {
		return nil, false, ErrMissingField
	}
	body := strings.TrimSpace(req.Message)
	if err := validateBody(body); err != nil {
		return nil, false, err
	}

	conv, created, err := s.store.GetOrCreate(ctx, &models.Conversation{
		PropertyID: req.PropertyID,
		TenantID:   actor.UserID,
		LandlordID: req.LandlordID,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("starting conversation: %w", err)
	}
	if !created {
		existing, err := s.store.ListMessages(ctx, conv.ID)
		if err != nil {
			return nil, false, fmt.Errorf("loading conversation %s: %w", conv.ID, err)
		}
		if len(existing) > 0 {
			return conv, false, nil
		}
	}

	if _, err := s.post(ctx, conv, actor.UserID, body); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

// Send posts a message to a conversation the actor takes part in.
func (s *Service) Send(ctx context.Context, actor auth.Actor, conversationID, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if err := validateBody(body); err != nil {
		return nil, err
	}

	conv, err := s.participantOf(ctx, actor, conversationID)
	if err != nil {
		return nil, err
	}
	return s.post(ctx, conv, actor.UserID, body)
}

// List returns the actor's conversations, most recently active first.
func (s *Service) List(ctx context.Context, actor auth.Actor) ([]models.Conversation, error) {
	list, err := s.store.ListForUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Conversation{}
	}
	return list, nil
}

// Messages returns a conversation's messages, oldest first.
func (s *Service) Messages(ctx context.Context, actor auth.Actor, conversationID string) ([]models.Message, error) {
	if _, err := s.participantOf(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

// MarkRead marks the messages the actor received in a conversation as read.
func (s *Service) MarkRead(ctx context.Context, actor auth.Actor, conversationID string) (int64, error) {
	if _, err := s.participantOf(ctx, actor, conversationID); err != nil {
		return 0, err
	}
	return s.store.MarkRead(ctx, conversationID, actor.UserID, s.now())
}

// IsParticipant reports whether the user takes part in the conversation.
func (s *Service) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	conv, err := s.store.GetByID(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return conv != nil && conv.IsParticipant(userID), nil
}

// post stores and publishes a message, then notifies the other participant.
// Once the message is stored the send has succeeded, so a failed
// notification is only logged.
func (s *Service) post(ctx context.Context, conv *models.Conversation, senderID, body string) (*models.Message, error) {
	m := &models.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      s.now(),
	}
	if err := s.store.AddMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("saving message: %w", err)
	}

	if s.publisher != nil {
		s.publisher.MessageCreated(ctx, *m)
	}
	if s.notifier != nil {
		_, err := s.notifier.Create(ctx, notification.Input{
			UserID:  conv.Counterpart(senderID),
			Type:    models.NotificationTypeMessage,
			Title:   "New message",
			Message: preview(body),
			Link:    "/conversations/" + conv.ID,
		})
		if err != nil {
			log.Printf("Failed to notify %s of message %s: %v", conv.Counterpart(senderID), m.ID, err)
		}
	}
	return m, nil
}

// participantOf loads a conversation, hiding it from non-participants.
func (s *Service) participantOf(ctx context.Context, actor auth.Actor, conversationID string) (*models.Conversation, error) {
	conv, err := s.store.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil || !conv.IsParticipant(actor.UserID) {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func validateBody(body string) error {
	if body == "" {
		return ErrEmptyMessage
	}
	if len([]rune(body)) > maxBodyLength {
		return ErrMessageTooLong
	}
	return nil
}

func preview(body string) string {
	r := []rune(body)
	if len(r) <= 80 {
		return body
	}
	return string(r[:77]) + "..."
}
