// Package notification stores user notifications and pushes them to the
// owner's realtime channel.
package notification

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/leasehub/backend/internal/apperror"
	"github.com/leasehub/backend/internal/auth"
	"github.com/leasehub/backend/internal/storage/models"
)

// Errors
var (
	ErrNotificationNotFound = apperror.NotFound("notification not found")
	ErrMissingTitle         = apperror.Validation("notification title is required")
	ErrUnknownType          = apperror.Validation("unknown notification type")
)

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id string) error
}

// Publisher pushes a new notification to its owner.
type Publisher interface {
	NotificationCreated(ctx context.Context, n models.Notification)
}

// Input describes a notification to create.
type Input struct {
	UserID  string
	Type    string
	Title   string
	Message string
	Link    string
}

// Service manages notifications.
type Service struct {
	store     Store
	publisher Publisher
}

// NewService creates a notification service. publisher may be nil.
func NewService(store Store, publisher Publisher) *Service {
	return &Service{store: store, publisher: publisher}
}

// Create stores a notification and publishes it to the owner's channel.
func (s *Service) Create(ctx context.Context, in Input) (*models.Notification, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrMissingTitle
	}
	switch in.Type {
	case models.NotificationTypeLease, models.NotificationTypePayment,
		models.NotificationTypeMessage, models.NotificationTypeSystem:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}

	n := &models.Notification{
		UserID:  in.UserID,
		Type:    in.Type,
		Title:   in.Title,
		Message: in.Message,
	}
	if in.Link != "" {
		link := in.Link
		n.Link = &link
	}

	if err := s.store.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("creating notification: %w", err)
	}
	if s.publisher != nil {
		s.publisher.NotificationCreated(ctx, *n)
	}
	return n, nil
}

// List returns the actor's notifications, newest first.
func (s *Service) List(ctx context.Context, actor auth.Actor, unreadOnly bool) ([]models.Notification, error) {
	list, err := s.store.ListByUser(ctx, actor.UserID, unreadOnly)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Notification{}
	}
	return list, nil
}

// UnreadCount returns how many of the actor's notifications are unread.
func (s *Service) UnreadCount(ctx context.Context, actor auth.Actor) (int, error) {
	return s.store.CountUnread(ctx, actor.UserID)
}

// MarkRead marks one of the actor's notifications as read.
func (s *Service) MarkRead(ctx context.Context, actor auth.Actor, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	return s.store.MarkRead(ctx, id)
}

// MarkAllRead marks all of the actor's notifications as read.
func (s *Service) MarkAllRead(ctx context.Context, actor auth.Actor) (int64, error) {
	return s.store.MarkAllRead(ctx, actor.UserID)
}

// Delete removes one of the actor's notifications.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("Notification %s deleted by %s", id, actor.UserID)
	return nil
}

// owned loads a notification and hides other users' notifications as not found.
func (s *Service) owned(ctx context.Context, actor auth.Actor, id string) (*models.Notification, error) {
	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil || n.UserID != actor.UserID {
		return nil, ErrNotificationNotFound
	}
	return n, nil
}
