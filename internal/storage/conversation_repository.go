package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leasehub/backend/internal/storage/models"
)

// ConversationRepository provides data access for conversations and their messages.
type ConversationRepository struct {
	BaseRepository
}

// NewConversationRepository creates a new conversation repository.
func NewConversationRepository(db *DB) *ConversationRepository {
	return &ConversationRepository{BaseRepository: NewBaseRepository(db)}
}

// GetOrCreate inserts c unless a conversation already exists for its
// property and tenant, and returns the stored conversation. created is
// false when an existing one was returned.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, c *models.Conversation) (*models.Conversation, bool, error) {
	if c.ID == "" {
		c.ID = GenerateID()
	}
	now := r.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt

	result, err := r.DB().ExecContext(ctx, `
		INSERT INTO conversations (id, property_id, tenant_id, landlord_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (property_id, tenant_id) DO NOTHING
	`, c.ID, c.PropertyID, c.TenantID, c.LandlordID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("inserting conversation: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 1 {
		return c, true, nil
	}

	existing, err := r.FindByPropertyTenant(ctx, c.PropertyID, c.TenantID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("conversation for property %s vanished after conflict", c.PropertyID)
	}
	return existing, false, nil
}

// GetByID retrieves a conversation. Returns nil if it does not exist.
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT id, property_id, tenant_id, landlord_id, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id)
	return scanConversationRow(row)
}

// FindByPropertyTenant returns the conversation between a tenant and the
// landlord of a property, or nil.
func (r *ConversationRepository) FindByPropertyTenant(ctx context.Context, propertyID, tenantID string) (*models.Conversation, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT id, property_id, tenant_id, landlord_id, created_at, updated_at
		FROM conversations WHERE property_id = ? AND tenant_id = ?
	`, propertyID, tenantID)
	return scanConversationRow(row)
}

// ListForUser returns the user's conversations, most recently active first.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, property_id, tenant_id, landlord_id, created_at, updated_at
		FROM conversations
		WHERE tenant_id = ? OR landlord_id = ?
		ORDER BY updated_at DESC
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.PropertyID, &c.TenantID, &c.LandlordID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddMessage stores a message and bumps the conversation's updated_at.
func (r *ConversationRepository) AddMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = GenerateID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.Now()
	}

	return r.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, body, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, m.ID, m.ConversationID, m.SenderID, m.Body, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE conversations SET updated_at = ? WHERE id = ?", m.CreatedAt, m.ConversationID)
		if err != nil {
			return fmt.Errorf("touching conversation: %w", err)
		}
		return nil
	})
}

// ListMessages returns a conversation's messages, oldest first.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, body, created_at, read_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt, &m.ReadAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkRead stamps every unread message not sent by readerID. It returns
// the number of messages marked.
func (r *ConversationRepository) MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE messages SET read_at = ?
		WHERE conversation_id = ? AND sender_id != ? AND read_at IS NULL
	`, at, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("marking messages read: %w", err)
	}
	return result.RowsAffected()
}

func scanConversationRow(row *sql.Row) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := row.Scan(&c.ID, &c.PropertyID, &c.TenantID, &c.LandlordID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return c, nil
}
