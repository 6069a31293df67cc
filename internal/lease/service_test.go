package lease

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leasehub/backend/internal/apperror"
	"github.com/leasehub/backend/internal/auth"
	"github.com/leasehub/backend/internal/storage/models"
)

var (
	landlord = auth.Actor{UserID: "landlord-1", Role: auth.RoleLandlord}
	tenant   = auth.Actor{UserID: "tenant-1", Role: auth.RoleTenant}
	stranger = auth.Actor{UserID: "tenant-2", Role: auth.RoleTenant}
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) LeaseChanged(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Lease.Status)
	}
	return out
}

func newTestService(t *testing.T) (*Service, *fakeClock, *recordingSink) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	sink := &recordingSink{}
	svc := NewService(NewMemoryStore(), sink, Config{Now: clock.Now})
	return svc, clock, sink
}

func validTerms() Terms {
	return Terms{
		StartDate:       time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2027, 3, 31, 0, 0, 0, 0, time.UTC),
		MonthlyRent:     decimal.NewFromInt(1800),
		SecurityDeposit: decimal.NewFromInt(3600),
	}
}

func createRequest() CreateRequest {
	return CreateRequest{
		PropertyID:    "property-1",
		TenantID:      tenant.UserID,
		ApplicationID: "application-1",
		Terms:         validTerms(),
		Documents: []DocumentInput{
			{Name: "Lease.pdf", Kind: models.DocumentKindPDF, URL: "s3://leases/lease.pdf"},
		},
	}
}

func sentLease(t *testing.T, svc *Service) *models.LeaseAgreement {
	t.Helper()
	ctx := context.Background()
	l, err := svc.Create(ctx, landlord, createRequest())
	require.NoError(t, err)
	l, err = svc.Send(ctx, landlord, l.ID)
	require.NoError(t, err)
	return l
}

func TestCreate(t *testing.T) {
	svc, clock, _ := newTestService(t)

	l, err := svc.Create(context.Background(), landlord, createRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, l.ID)
	assert.Equal(t, models.LeaseStatusDraft, l.Status)
	assert.Equal(t, models.PaymentStatusUnpaid, l.PaymentStatus)
	assert.Equal(t, landlord.UserID, l.LandlordID)
	assert.Equal(t, clock.Now(), l.CreatedAt)
	require.Len(t, l.Documents, 1)
	assert.Equal(t, "Lease.pdf", l.Documents[0].Name)
	assert.Equal(t, 1, l.Version)
}

func TestCreate_RejectsEndDateNotAfterStart(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := createRequest()
	req.Terms.EndDate = req.Terms.StartDate
	_, err := svc.Create(context.Background(), landlord, req)
	assert.ErrorIs(t, err, ErrInvalidDates)

	req.Terms.EndDate = req.Terms.StartDate.Add(-24 * time.Hour)
	_, err = svc.Create(context.Background(), landlord, req)
	assert.ErrorIs(t, err, ErrInvalidDates)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	req := createRequest()
	req.Terms.MonthlyRent = decimal.Zero
	_, err := svc.Create(ctx, landlord, req)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	req = createRequest()
	req.ApplicationID = ""
	_, err = svc.Create(ctx, landlord, req)
	assert.ErrorIs(t, err, ErrMissingField)

	req = createRequest()
	req.Documents = []DocumentInput{{Name: "photo", Kind: "docx", URL: "s3://x"}}
	_, err = svc.Create(ctx, landlord, req)
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = svc.Create(ctx, tenant, createRequest())
	assert.ErrorIs(t, err, ErrNotLandlord)
}

func TestDraftHiddenFromTenant(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	l, err := svc.Create(ctx, landlord, createRequest())
	require.NoError(t, err)

	_, err = svc.Get(ctx, tenant, l.ID)
	assert.ErrorIs(t, err, ErrLeaseNotFound)

	leases, err := svc.ListForUser(ctx, tenant, "")
	require.NoError(t, err)
	assert.Empty(t, leases)

	_, err = svc.Send(ctx, landlord, l.ID)
	require.NoError(t, err)

	leases, err = svc.ListForUser(ctx, tenant, models.LeaseStatusPendingTenant)
	require.NoError(t, err)
	assert.Len(t, leases, 1)
}

func TestDocuments(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	l, err := svc.Create(ctx, landlord, createRequest())
	require.NoError(t, err)

	l, err = svc.AddDocument(ctx, landlord, l.ID, DocumentInput{Name: "Floor plan", Kind: models.DocumentKindImage, URL: "s3://plans/1.png"})
	require.NoError(t, err)
	require.Len(t, l.Documents, 2)
	assert.Equal(t, "Floor plan", l.Documents[1].Name)

	l, err = svc.RemoveDocument(ctx, landlord, l.ID, l.Documents[0].ID)
	require.NoError(t, err)
	require.Len(t, l.Documents, 1)
	assert.Equal(t, "Floor plan", l.Documents[0].Name)

	_, err = svc.RemoveDocument(ctx, landlord, l.ID, "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestUpdateTerms_OnlyWhileDraft(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	l, err := svc.Create(ctx, landlord, createRequest())
	require.NoError(t, err)

	terms := validTerms()
	terms.MonthlyRent = decimal.RequireFromString("1750.50")
	l, err = svc.UpdateTerms(ctx, landlord, l.ID, terms)
	require.NoError(t, err)
	assert.True(t, l.MonthlyRent.Equal(decimal.RequireFromString("1750.5")))

	_, err = svc.Send(ctx, landlord, l.ID)
	require.NoError(t, err)

	_, err = svc.UpdateTerms(ctx, landlord, l.ID, validTerms())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSend_OpensResponseWindow(t *testing.T) {
	svc, clock, _ := newTestService(t)

	l := sentLease(t, svc)

	assert.Equal(t, models.LeaseStatusPendingTenant, l.Status)
	require.NotNil(t, l.SentToTenantAt)
	assert.Equal(t, clock.Now(), *l.SentToTenantAt)
	require.NotNil(t, l.ResponseDeadline)
	assert.Equal(t, clock.Now().Add(48*time.Hour), *l.ResponseDeadline)

	_, err := svc.Send(context.Background(), landlord, l.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSend_OnlyLandlord(t *testing.T) {
	svc, _, _ := newTestService(t)
	l, err := svc.Create(context.Background(), landlord, createRequest())
	require.NoError(t, err)

	other := auth.Actor{UserID: "landlord-2", Role: auth.RoleLandlord}
	_, err = svc.Send(context.Background(), other, l.ID)
	assert.ErrorIs(t, err, ErrLeaseNotFound)
}

func TestAccept_OpensPaymentWindow(t *testing.T) {
	svc, clock, sink := newTestService(t)
	l := sentLease(t, svc)

	clock.Advance(2 * time.Hour)
	accepted, err := svc.Accept(context.Background(), tenant, l.ID)
	require.NoError(t, err)

	assert.Equal(t, models.LeaseStatusPaymentPending, accepted.Status)
	require.NotNil(t, accepted.TenantRespondedAt)
	assert.Equal(t, clock.Now(), *accepted.TenantRespondedAt)
	require.NotNil(t, accepted.AcceptanceDeadline)
	assert.Equal(t, clock.Now().Add(48*time.Hour), *accepted.AcceptanceDeadline)
	assert.Nil(t, accepted.RejectionReason)

	assert.Equal(t, []string{
		models.LeaseStatusDraft,
		models.LeaseStatusPendingTenant,
		models.LeaseStatusPaymentPending,
	}, sink.statuses())
}

func TestAccept_OnlyTenant(t *testing.T) {
	svc, _, _ := newTestService(t)
	l := sentLease(t, svc)

	_, err := svc.Accept(context.Background(), landlord, l.ID)
	assert.ErrorIs(t, err, ErrNotTenant)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = svc.Accept(context.Background(), stranger, l.ID)
	assert.ErrorIs(t, err, ErrLeaseNotFound)
}

func TestAcceptThenReject_Conflict(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	l := sentLease(t, svc)

	_, err := svc.Accept(ctx, tenant, l.ID)
	require.NoError(t, err)

	_, err = svc.Reject(ctx, tenant, l.ID, "Changed my mind")
	assert.ErrorIs(t, err, ErrAlreadyResponded)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, err = svc.Accept(ctx, tenant, l.ID)
	assert.ErrorIs(t, err, ErrAlreadyResponded)

	got, err := svc.Get(ctx, tenant, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusPaymentPending, got.Status)
	assert.Nil(t, got.RejectionReason)
}

func TestReject(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	l := sentLease(t, svc)

	rejected, err := svc.Reject(ctx, tenant, l.ID, "  Found cheaper option ")
	require.NoError(t, err)

	assert.Equal(t, models.LeaseStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "Found cheaper option", *rejected.RejectionReason)
	assert.Equal(t, clock.Now(), *rejected.TenantRespondedAt)
	assert.True(t, rejected.IsTerminal())

	_, err = svc.Accept(ctx, tenant, l.ID)
	assert.ErrorIs(t, err, ErrAlreadyResponded)
}

func TestReject_RequiresReason(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	l := sentLease(t, svc)

	_, err := svc.Reject(ctx, tenant, l.ID, "   ")
	assert.ErrorIs(t, err, ErrMissingReason)

	got, err := svc.Get(ctx, tenant, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusPendingTenant, got.Status)
	assert.Nil(t, got.RejectionReason)
}

func TestAccept_AfterDeadlineExpires(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	l := sentLease(t, svc)

	clock.Advance(49 * time.Hour)
	_, err := svc.Accept(ctx, tenant, l.ID)
	assert.ErrorIs(t, err, ErrExpired)

	got, err := svc.Get(ctx, tenant, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusExpired, got.Status)
	assert.Nil(t, got.TenantRespondedAt)

	_, err = svc.Reject(ctx, tenant, l.ID, "too late")
	assert.ErrorIs(t, err, ErrExpired)
}

func TestAccept_ExactlyAtDeadline(t *testing.T) {
	svc, clock, _ := newTestService(t)
	l := sentLease(t, svc)

	clock.Advance(48 * time.Hour)
	accepted, err := svc.Accept(context.Background(), tenant, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusPaymentPending, accepted.Status)
}

func TestConcurrentResponses(t *testing.T) {
	svc, _, _ := newTestService(t)
	l := sentLease(t, svc)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.Accept(context.Background(), tenant, l.ID)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.Reject(context.Background(), tenant, l.ID, "Found cheaper option")
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperror.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)

	got, err := svc.Get(context.Background(), tenant, l.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Status == models.LeaseStatusRejected, got.RejectionReason != nil)
}

func TestTerminate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	l := sentLease(t, svc)

	_, err := svc.Terminate(ctx, tenant, l.ID, "moving abroad")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Settlement happens in the payment package; activate directly in the store.
	active, err := svc.store.Get(ctx, l.ID)
	require.NoError(t, err)
	active.Status = models.LeaseStatusActive
	active.PaymentStatus = models.PaymentStatusPaid
	require.NoError(t, svc.store.Put(ctx, active))

	_, err = svc.Terminate(ctx, landlord, l.ID, "")
	assert.ErrorIs(t, err, ErrMissingReason)

	terminated, err := svc.Terminate(ctx, landlord, l.ID, "Sale of property")
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusTerminated, terminated.Status)
	require.NotNil(t, terminated.TerminationReason)
	assert.Equal(t, "Sale of property", *terminated.TerminationReason)
	assert.NotNil(t, terminated.TerminatedAt)

	_, err = svc.Terminate(ctx, tenant, l.ID, "again")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestExpireOverdue(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()

	awaitingResponse := sentLease(t, svc)
	awaitingPayment := sentLease(t, svc)
	_, err := svc.Accept(ctx, tenant, awaitingPayment.ID)
	require.NoError(t, err)

	expired, err := svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)

	clock.Advance(48*time.Hour + time.Minute)
	expired, err = svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 2)

	for _, id := range []string{awaitingResponse.ID, awaitingPayment.ID} {
		got, err := svc.Get(ctx, landlord, id)
		require.NoError(t, err)
		assert.Equal(t, models.LeaseStatusExpired, got.Status)
	}

	expired, err = svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestSetWindows(t *testing.T) {
	svc, clock, _ := newTestService(t)
	svc.SetWindows(24*time.Hour, 0)

	response, payment := svc.Windows()
	assert.Equal(t, 24*time.Hour, response)
	assert.Equal(t, DefaultWindow, payment)

	l := sentLease(t, svc)
	assert.Equal(t, clock.Now().Add(24*time.Hour), *l.ResponseDeadline)
}

func TestDelete_OnlyDrafts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	draft, err := svc.Create(ctx, landlord, createRequest())
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, landlord, draft.ID))

	_, err = svc.Get(ctx, landlord, draft.ID)
	assert.ErrorIs(t, err, ErrLeaseNotFound)

	sent := sentLease(t, svc)
	assert.ErrorIs(t, svc.Delete(ctx, landlord, sent.ID), ErrInvalidTransition)
}
