package messaging

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leasehub/backend/internal/apperror"
	"github.com/leasehub/backend/internal/auth"
	"github.com/leasehub/backend/internal/notification"
	"github.com/leasehub/backend/internal/storage"
	"github.com/leasehub/backend/internal/storage/models"
)

var (
	landlord = auth.Actor{UserID: "landlord-1", Role: auth.RoleLandlord}
	tenant   = auth.Actor{UserID: "tenant-1", Role: auth.RoleTenant}
	stranger = auth.Actor{UserID: "tenant-2", Role: auth.RoleTenant}
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []models.Message
}

func (p *recordingPublisher) MessageCreated(_ context.Context, m models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, m)
}

type fixture struct {
	svc           *Service
	pub           *recordingPublisher
	notifications *notification.Service
}

func newTestDB(t *testing.T) *storage.DB {
	t.Helper()

	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = storage.RunMigrations(context.Background(), db)
	require.NoError(t, err)
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	notifications := notification.NewService(storage.NewNotificationRepository(db), nil)
	pub := &recordingPublisher{}
	return &fixture{
		svc:           NewService(storage.NewConversationRepository(db), pub, notifications),
		pub:           pub,
		notifications: notifications,
	}
}

func startRequest() StartRequest {
	return StartRequest{PropertyID: "prop-1", LandlordID: "landlord-1", Message: "Is the flat still available?"}
}

func TestStart_TenantOnly(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Start(context.Background(), landlord, startRequest())
	assert.ErrorIs(t, err, ErrTenantsOnly)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestStart_ReusesExistingConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, created, err := f.svc.Start(ctx, tenant, startRequest())
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := f.svc.Start(ctx, tenant, StartRequest{
		PropertyID: "prop-1", LandlordID: "landlord-1", Message: "Hello again",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)

	msgs, err := f.svc.Messages(ctx, tenant, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Is the flat still available?", msgs[0].Body)
}

func TestStart_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Start(ctx, tenant, StartRequest{PropertyID: "prop-1", LandlordID: "landlord-1", Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, _, err = f.svc.Start(ctx, tenant, StartRequest{LandlordID: "landlord-1", Message: "hi"})
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestSend_PublishesAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, _, err := f.svc.Start(ctx, tenant, startRequest())
	require.NoError(t, err)

	m, err := f.svc.Send(ctx, landlord, conv.ID, "  Yes, viewings on Saturday.  ")
	require.NoError(t, err)
	assert.Equal(t, "Yes, viewings on Saturday.", m.Body)

	require.Len(t, f.pub.messages, 2)
	assert.Equal(t, "landlord-1", f.pub.messages[1].SenderID)

	landlordInbox, err := f.notifications.List(ctx, landlord, false)
	require.NoError(t, err)
	require.Len(t, landlordInbox, 1)
	assert.Equal(t, models.NotificationTypeMessage, landlordInbox[0].Type)

	tenantInbox, err := f.notifications.List(ctx, tenant, false)
	require.NoError(t, err)
	require.Len(t, tenantInbox, 1)
	assert.Equal(t, "Yes, viewings on Saturday.", tenantInbox[0].Message)
}

func TestSend_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, _, err := f.svc.Start(ctx, tenant, startRequest())
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, stranger, conv.ID, "hi")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = f.svc.Send(ctx, tenant, conv.ID, "")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = f.svc.Send(ctx, tenant, conv.ID, strings.Repeat("x", maxBodyLength+1))
	assert.ErrorIs(t, err, ErrMessageTooLong)

	_, err = f.svc.Messages(ctx, stranger, conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestMarkReadAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, _, err := f.svc.Start(ctx, tenant, startRequest())
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, tenant, conv.ID, "Can I bring a cat?")
	require.NoError(t, err)

	n, err := f.svc.MarkRead(ctx, landlord, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = f.svc.MarkRead(ctx, tenant, conv.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	list, err := f.svc.List(ctx, landlord)
	require.NoError(t, err)
	require.Len(t, list, 1)

	empty, err := f.svc.List(ctx, stranger)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	ok, err := f.svc.IsParticipant(ctx, conv.ID, "landlord-1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.svc.IsParticipant(ctx, conv.ID, "tenant-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	flow := f.svc.Contact(ctx, tenant, StartRequest{PropertyID: "prop-1", LandlordID: "landlord-1"})
	assert.Equal(t, ContactCompose, flow.State)
	assert.NotEmpty(t, flow.Error)

	flow = f.svc.Contact(ctx, tenant, startRequest())
	assert.Equal(t, ContactSent, flow.State)
	assert.NotEmpty(t, flow.ConversationID)
	assert.True(t, flow.Done())

	again := f.svc.Contact(ctx, tenant, startRequest())
	assert.Equal(t, ContactExisting, again.State)
	assert.Equal(t, flow.ConversationID, again.ConversationID)

	denied := f.svc.Contact(ctx, landlord, startRequest())
	assert.Equal(t, ContactError, denied.State)
	assert.Equal(t, "only tenants can start conversations", denied.Error)
}

type failingNotifier struct{}

func (failingNotifier) Create(context.Context, notification.Input) (*models.Notification, error) {
	return nil, errors.New("notification store down")
}

// flakyStore fails the next failAdds message writes.
type flakyStore struct {
	Store
	failAdds int
}

func (s *flakyStore) AddMessage(ctx context.Context, m *models.Message) error {
	if s.failAdds > 0 {
		s.failAdds--
		return errors.New("disk I/O error")
	}
	return s.Store.AddMessage(ctx, m)
}

func TestSend_NotifierFailureDoesNotFailSend(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewService(storage.NewConversationRepository(newTestDB(t)), pub, failingNotifier{})
	ctx := context.Background()

	conv, created, err := svc.Start(ctx, tenant, startRequest())
	require.NoError(t, err)
	require.True(t, created)

	m, err := svc.Send(ctx, landlord, conv.ID, "Yes, viewings on Friday")
	require.NoError(t, err)
	require.NotNil(t, m)

	msgs, err := svc.Messages(ctx, tenant, conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Len(t, pub.messages, 2)
}

func TestStart_RetryPostsFirstMessageAfterFailedWrite(t *testing.T) {
	store := &flakyStore{Store: storage.NewConversationRepository(newTestDB(t)), failAdds: 1}
	pub := &recordingPublisher{}
	svc := NewService(store, pub, nil)
	ctx := context.Background()

	_, _, err := svc.Start(ctx, tenant, startRequest())
	require.Error(t, err)
	assert.Empty(t, pub.messages)

	conv, posted, err := svc.Start(ctx, tenant, startRequest())
	require.NoError(t, err)
	assert.True(t, posted)

	msgs, err := svc.Messages(ctx, tenant, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, startRequest().Message, msgs[0].Body)

	_, posted, err = svc.Start(ctx, tenant, startRequest())
	require.NoError(t, err)
	assert.False(t, posted)

	msgs, err = svc.Messages(ctx, tenant, conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
