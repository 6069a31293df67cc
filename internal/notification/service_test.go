package notification

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leasehub/backend/internal/apperror"
	"github.com/leasehub/backend/internal/auth"
	"github.com/leasehub/backend/internal/lease"
	"github.com/leasehub/backend/internal/storage"
	"github.com/leasehub/backend/internal/storage/models"
)

var (
	landlord = auth.Actor{UserID: "landlord-1", Role: auth.RoleLandlord}
	tenant   = auth.Actor{UserID: "tenant-1", Role: auth.RoleTenant}
)

type recordingPublisher struct {
	mu            sync.Mutex
	notifications []models.Notification
	leaseChanges  []string
	payments      []string
}

func (p *recordingPublisher) NotificationCreated(_ context.Context, n models.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, n)
}

func (p *recordingPublisher) LeaseStatusChanged(_ context.Context, l models.LeaseAgreement, previous string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leaseChanges = append(p.leaseChanges, previous+"->"+l.Status)
}

func (p *recordingPublisher) PaymentCompleted(_ context.Context, l models.LeaseAgreement) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments = append(p.payments, l.ID)
}

func newTestService(t *testing.T) (*Service, *recordingPublisher) {
	t.Helper()

	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = storage.RunMigrations(context.Background(), db)
	require.NoError(t, err)

	pub := &recordingPublisher{}
	return NewService(storage.NewNotificationRepository(db), pub), pub
}

func TestCreate_PublishesToOwner(t *testing.T) {
	svc, pub := newTestService(t)

	n, err := svc.Create(context.Background(), Input{
		UserID:  "tenant-1",
		Type:    models.NotificationTypeSystem,
		Title:   "Welcome",
		Message: "Your account is ready.",
		Link:    "/profile",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	require.NotNil(t, n.Link)
	assert.Equal(t, "/profile", *n.Link)

	require.Len(t, pub.notifications, 1)
	assert.Equal(t, "tenant-1", pub.notifications[0].UserID)
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, Input{UserID: "u", Type: models.NotificationTypeSystem, Title: "  "})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.Create(ctx, Input{UserID: "u", Type: "sms", Title: "Hi"})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestOwnerOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	n, err := svc.Create(ctx, Input{UserID: "tenant-1", Type: models.NotificationTypeSystem, Title: "Hi"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.MarkRead(ctx, landlord, n.ID), ErrNotificationNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, landlord, n.ID), ErrNotificationNotFound)

	others, err := svc.List(ctx, landlord, false)
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestReadState(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var ids []string
	for _, title := range []string{"One", "Two", "Three"} {
		n, err := svc.Create(ctx, Input{UserID: "tenant-1", Type: models.NotificationTypeSystem, Title: title})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	count, err := svc.UnreadCount(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, svc.MarkRead(ctx, tenant, ids[0]))
	unread, err := svc.List(ctx, tenant, true)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	marked, err := svc.MarkAllRead(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	count, err = svc.UnreadCount(ctx, tenant)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, svc.Delete(ctx, tenant, ids[1]))
	all, err := svc.List(ctx, tenant, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLeaseEvents(t *testing.T) {
	notifications, pub := newTestService(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	leases := lease.NewService(lease.NewMemoryStore(), NewLeaseEvents(notifications, pub), lease.Config{
		Now: func() time.Time { return now },
	})

	l, err := leases.Create(ctx, landlord, lease.CreateRequest{
		PropertyID:    "prop-1",
		TenantID:      "tenant-1",
		ApplicationID: "app-1",
		Terms: lease.Terms{
			StartDate:       time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
			EndDate:         time.Date(2027, 3, 31, 0, 0, 0, 0, time.UTC),
			MonthlyRent:     decimal.NewFromInt(1800),
			SecurityDeposit: decimal.NewFromInt(3600),
		},
	})
	require.NoError(t, err)

	// Drafts stay private.
	assert.Empty(t, pub.leaseChanges)

	_, err = leases.Send(ctx, landlord, l.ID)
	require.NoError(t, err)

	tenantInbox, err := notifications.List(ctx, tenant, false)
	require.NoError(t, err)
	require.Len(t, tenantInbox, 1)
	assert.Equal(t, "New lease agreement", tenantInbox[0].Title)
	require.NotNil(t, tenantInbox[0].Link)
	assert.Equal(t, "/leases/"+l.ID, *tenantInbox[0].Link)

	_, err = leases.Reject(ctx, tenant, l.ID, "Found cheaper option")
	require.NoError(t, err)

	landlordInbox, err := notifications.List(ctx, landlord, false)
	require.NoError(t, err)
	require.Len(t, landlordInbox, 1)
	assert.Equal(t, "The tenant rejected the lease: Found cheaper option", landlordInbox[0].Message)

	assert.Equal(t, []string{"draft->pending_tenant", "pending_tenant->rejected"}, pub.leaseChanges)
	assert.Empty(t, pub.payments)
}

func TestLeaseEvents_SystemTransitionNotifiesBoth(t *testing.T) {
	notifications, pub := newTestService(t)
	ctx := context.Background()

	paidAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	events := NewLeaseEvents(notifications, pub)
	events.LeaseChanged(ctx, lease.Event{
		Lease: models.LeaseAgreement{
			ID:            "lease-1",
			TenantID:      "tenant-1",
			LandlordID:    "landlord-1",
			Status:        models.LeaseStatusActive,
			PaymentStatus: models.PaymentStatusPaid,
			PaymentAmount: decimal.NewFromInt(5400),
			PaidAt:        &paidAt,
		},
		PreviousStatus: models.LeaseStatusPaymentPending,
	})

	assert.Equal(t, []string{"lease-1"}, pub.payments)
	for _, actor := range []auth.Actor{tenant, landlord} {
		inbox, err := notifications.List(ctx, actor, false)
		require.NoError(t, err)
		require.Len(t, inbox, 1)
		assert.Equal(t, models.NotificationTypePayment, inbox[0].Type)
		assert.Equal(t, "Payment of 5400.00 received. The lease is now active.", inbox[0].Message)
	}
}

func TestLeaseEvents_SameStatusIgnored(t *testing.T) {
	notifications, pub := newTestService(t)

	NewLeaseEvents(notifications, pub).LeaseChanged(context.Background(), lease.Event{
		Lease:          models.LeaseAgreement{ID: "lease-1", TenantID: "t", LandlordID: "l", Status: models.LeaseStatusDraft},
		PreviousStatus: models.LeaseStatusDraft,
	})
	assert.Empty(t, pub.leaseChanges)
	assert.Empty(t, pub.notifications)
}
