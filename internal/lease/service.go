// Package lease implements the lease agreement lifecycle: drafting, sending,
// tenant acceptance or rejection, expiry and termination.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/leasehub/backend/internal/auth"
	"github.com/leasehub/backend/internal/metrics"
	"github.com/leasehub/backend/internal/storage/models"
)

// DefaultWindow is both the tenant's response window and the payment window.
const DefaultWindow = 48 * time.Hour

// maxAttempts bounds retries after a concurrent write.
const maxAttempts = 3

// Config configures a lease Service.
type Config struct {
	ResponseWindow time.Duration
	PaymentWindow  time.Duration
	Now            func() time.Time
}

// Service applies lease lifecycle transitions.
type Service struct {
	store  Store
	events EventSink
	now    func() time.Time

	mu             sync.RWMutex
	responseWindow time.Duration
	paymentWindow  time.Duration
}

// NewService creates a lease service backed by the given store.
func NewService(store Store, events EventSink, cfg Config) *Service {
	if events == nil {
		events = nopSink{}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.ResponseWindow <= 0 {
		cfg.ResponseWindow = DefaultWindow
	}
	if cfg.PaymentWindow <= 0 {
		cfg.PaymentWindow = DefaultWindow
	}

	return &Service{
		store:          store,
		events:         events,
		now:            cfg.Now,
		responseWindow: cfg.ResponseWindow,
		paymentWindow:  cfg.PaymentWindow,
	}
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// Windows returns the response and payment windows.
func (s *Service) Windows() (response, payment time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.responseWindow, s.paymentWindow
}

// SetWindows changes the windows applied to leases sent or accepted from now on.
func (s *Service) SetWindows(response, payment time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if response > 0 {
		s.responseWindow = response
	}
	if payment > 0 {
		s.paymentWindow = payment
	}
}

// Terms are the landlord-controlled financial terms of a lease.
type Terms struct {
	StartDate       time.Time       `json:"start_date"`
	EndDate         time.Time       `json:"end_date"`
	MonthlyRent     decimal.Decimal `json:"monthly_rent"`
	SecurityDeposit decimal.Decimal `json:"security_deposit"`
}

// Validate checks the term invariants.
func (t Terms) Validate() error {
	if t.StartDate.IsZero() || t.EndDate.IsZero() || !t.EndDate.After(t.StartDate) {
		return ErrInvalidDates
	}
	if !t.MonthlyRent.IsPositive() || !t.SecurityDeposit.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// DocumentInput describes a document to attach to a lease.
type DocumentInput struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

func (d DocumentInput) validate() error {
	if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.URL) == "" {
		return ErrInvalidDocument
	}
	if d.Kind != models.DocumentKindPDF && d.Kind != models.DocumentKindImage {
		return ErrInvalidDocument
	}
	return nil
}

// CreateRequest holds the fields a landlord supplies when drafting a lease
// from an approved application.
type CreateRequest struct {
	PropertyID    string          `json:"property_id"`
	TenantID      string          `json:"tenant_id"`
	ApplicationID string          `json:"application_id"`
	Terms         Terms           `json:"terms"`
	Documents     []DocumentInput `json:"documents"`
}

// Create drafts a new lease owned by the acting landlord.
func (s *Service) Create(ctx context.Context, actor auth.Actor, req CreateRequest) (*models.LeaseAgreement, error) {
	if !actor.IsLandlord() {
		return nil, ErrNotLandlord
	}
	if req.PropertyID == "" || req.TenantID == "" || req.ApplicationID == "" {
		return nil, ErrMissingField
	}
	if err := req.Terms.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	l := &models.LeaseAgreement{
		ID:              uuid.NewString(),
		PropertyID:      req.PropertyID,
		TenantID:        req.TenantID,
		LandlordID:      actor.UserID,
		ApplicationID:   req.ApplicationID,
		StartDate:       req.Terms.StartDate,
		EndDate:         req.Terms.EndDate,
		MonthlyRent:     req.Terms.MonthlyRent,
		SecurityDeposit: req.Terms.SecurityDeposit,
		Documents:       []models.LeaseDocument{},
		Status:          models.LeaseStatusDraft,
		PaymentStatus:   models.PaymentStatusUnpaid,
		PaymentAmount:   decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for _, d := range req.Documents {
		if err := d.validate(); err != nil {
			return nil, err
		}
		l.Documents = append(l.Documents, newDocument(d, now))
	}

	if err := s.store.Put(ctx, l); err != nil {
		return nil, fmt.Errorf("creating lease: %w", err)
	}

	log.Printf("Lease %s drafted by landlord %s for tenant %s", l.ID, l.LandlordID, l.TenantID)
	s.publish(ctx, l, "", actor.UserID)
	return l, nil
}

// Get returns a lease visible to the actor. Tenants do not see drafts.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id string) (*models.LeaseAgreement, error) {
	l, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visibleTo(l, actor) {
		return nil, ErrLeaseNotFound
	}
	return l, nil
}

// ListForUser returns the leases the actor takes part in, optionally filtered by status.
func (s *Service) ListForUser(ctx context.Context, actor auth.Actor, status string) ([]models.LeaseAgreement, error) {
	leases, err := s.store.List(ctx, func(l *models.LeaseAgreement) bool {
		if status != "" && l.Status != status {
			return false
		}
		return visibleTo(l, actor)
	})
	if err != nil {
		return nil, fmt.Errorf("listing leases: %w", err)
	}
	return leases, nil
}

// UpdateTerms replaces the terms of a draft lease.
func (s *Service) UpdateTerms(ctx context.Context, actor auth.Actor, id string, terms Terms) (*models.LeaseAgreement, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, actor.UserID, func(l *models.LeaseAgreement, now time.Time) (bool, error) {
		if err := s.requireDraftLandlord(l, actor); err != nil {
			return false, err
		}
		l.StartDate = terms.StartDate
		l.EndDate = terms.EndDate
		l.MonthlyRent = terms.MonthlyRent
		l.SecurityDeposit = terms.SecurityDeposit
		return true, nil
	})
}

// AddDocument attaches a document to a draft lease.
func (s *Service) AddDocument(ctx context.Context, actor auth.Actor, id string, doc DocumentInput) (*models.LeaseAgreement, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, actor.UserID, func(l *models.LeaseAgreement, now time.Time) (bool, error) {
		if err := s.requireDraftLandlord(l, actor); err != nil {
			return false, err
		}
		l.Documents = append(l.Documents, newDocument(doc, now))
		return true, nil
	})
}

// RemoveDocument detaches a document from a draft lease.
func (s *Service) RemoveDocument(ctx context.Context, actor auth.Actor, id, documentID string) (*models.LeaseAgreement, error) {
	return s.mutate(ctx, id, actor.UserID, func(l *models.LeaseAgreement, now time.Time) (bool, error) {
		if err := s.requireDraftLandlord(l, actor); err != nil {
			return false, err
		}
		for i, d := range l.Documents {
			if d.ID == documentID {
				l.Documents = append(l.Documents[:i], l.Documents[i+1:]...)
				return true, nil
			}
		}
		return false, ErrDocumentNotFound
	})
}

// Delete removes a draft lease.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id string) error {
	l, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireDraftLandlord(l, actor); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting lease: %w", err)
	}
	return nil
}

// Send offers a draft lease to the tenant and opens the response window.
func (s *Service) Send(ctx context.Context, actor auth.Actor, id string) (*models.LeaseAgreement, error) {
	return s.mutate(ctx, id, actor.UserID, func(l *models.LeaseAgreement, now time.Time) (bool, error) {
		if err := s.requireDraftLandlord(l, actor); err != nil {
			return false, err
		}
		terms := Terms{
			StartDate:       l.StartDate,
			EndDate:         l.EndDate,
			MonthlyRent:     l.MonthlyRent,
			SecurityDeposit: l.SecurityDeposit,
		}
		if err := terms.Validate(); err != nil {
			return false, err
		}
		response, _ := s.Windows()
		deadline := now.Add(response)
		l.Status = models.LeaseStatusPendingTenant
		l.SentToTenantAt = &now
		l.ResponseDeadline = &deadline
		return true, nil
	})
}

// Accept records the tenant's acceptance and opens the payment window.
// The lease passes through tenant_accepted and is stored as payment_pending.
func (s *Service) Accept(ctx context.Context, actor auth.Actor, id string) (*models.LeaseAgreement, error) {
	return s.mutate(ctx, id, actor.UserID, func(l *models.LeaseAgreement, now time.Time) (bool, error) {
		if expired, err := s.checkResponse(l, actor, now); err != nil {
			return expired, err
		}
		_, payment := s.Windows()
		deadline := now.Add(payment)
		l.Status = models.LeaseStatusTenantAccepted
		l.TenantRespondedAt = &now
		l.AcceptanceDeadline = &deadline
		l.Status = models.LeaseStatusPaymentPending
		return true, nil
	})
}

// Reject records the tenant's rejection with a mandatory reason.
func (s *Service) Reject(ctx context.Context, actor auth.Actor, id, reason string) (*models.LeaseAgreement, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrMissingReason
	}
	return s.mutate(ctx, id, actor.UserID, func(l *models.LeaseAgreement, now time.Time) (bool, error) {
		if expired, err := s.checkResponse(l, actor, now); err != nil {
			return expired, err
		}
		l.Status = models.LeaseStatusRejected
		l.RejectionReason = &reason
		l.TenantRespondedAt = &now
		return true, nil
	})
}

// Terminate ends an active tenancy at the request of either party.
func (s *Service) Terminate(ctx context.Context, actor auth.Actor, id, reason string) (*models.LeaseAgreement, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrMissingReason
	}
	return s.mutate(ctx, id, actor.UserID, func(l *models.LeaseAgreement, now time.Time) (bool, error) {
		if !l.IsParticipant(actor.UserID) {
			return false, ErrLeaseNotFound
		}
		if l.Status != models.LeaseStatusActive {
			return false, ErrInvalidTransition
		}
		l.Status = models.LeaseStatusTerminated
		l.TerminationReason = &reason
		l.TerminatedAt = &now
		return true, nil
	})
}

// Expire marks a single lease expired if its current window has elapsed.
// It returns the lease and whether it was changed.
func (s *Service) Expire(ctx context.Context, id string) (*models.LeaseAgreement, bool, error) {
	changed := false
	l, err := s.mutate(ctx, id, "", func(l *models.LeaseAgreement, now time.Time) (bool, error) {
		changed = expireIfDue(l, now)
		return changed, nil
	})
	return l, changed, err
}

// ExpireOverdue expires every pending lease whose window has elapsed.
func (s *Service) ExpireOverdue(ctx context.Context) ([]models.LeaseAgreement, error) {
	now := s.now()
	due, err := s.store.List(ctx, func(l *models.LeaseAgreement) bool {
		switch l.Status {
		case models.LeaseStatusPendingTenant:
			return l.ResponseWindowElapsed(now)
		case models.LeaseStatusPaymentPending, models.LeaseStatusTenantAccepted:
			return l.PaymentWindowElapsed(now)
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("listing overdue leases: %w", err)
	}

	var expired []models.LeaseAgreement
	for _, candidate := range due {
		l, changed, err := s.Expire(ctx, candidate.ID)
		if err != nil {
			log.Printf("Failed to expire lease %s: %v", candidate.ID, err)
			continue
		}
		if changed {
			expired = append(expired, *l)
		}
	}
	return expired, nil
}

// Notify publishes a change persisted outside this service, such as payment settlement.
func (s *Service) Notify(ctx context.Context, l *models.LeaseAgreement, previousStatus, actorID string) {
	s.publish(ctx, l, previousStatus, actorID)
}

// checkResponse guards tenant accept/reject. A late response expires the
// lease in place, reports true so the caller persists it, and fails with ErrExpired.
func (s *Service) checkResponse(l *models.LeaseAgreement, actor auth.Actor, now time.Time) (bool, error) {
	if l.TenantID != actor.UserID || !actor.IsTenant() {
		if l.IsParticipant(actor.UserID) && l.Status != models.LeaseStatusDraft {
			return false, ErrNotTenant
		}
		return false, ErrLeaseNotFound
	}

	switch l.Status {
	case models.LeaseStatusPendingTenant:
		if expireIfDue(l, now) {
			return true, ErrExpired
		}
		return false, nil
	case models.LeaseStatusExpired:
		return false, ErrExpired
	case models.LeaseStatusDraft:
		return false, ErrLeaseNotFound
	}

	if l.TenantRespondedAt != nil {
		return false, ErrAlreadyResponded
	}
	return false, ErrInvalidTransition
}

func (s *Service) requireDraftLandlord(l *models.LeaseAgreement, actor auth.Actor) error {
	if l.LandlordID != actor.UserID || !actor.IsLandlord() {
		if l.IsParticipant(actor.UserID) && l.Status != models.LeaseStatusDraft {
			return ErrNotLandlord
		}
		return ErrLeaseNotFound
	}
	if l.Status != models.LeaseStatusDraft {
		return ErrInvalidTransition
	}
	return nil
}

// mutate loads a lease, applies fn and persists the result if fn asks for it.
// A concurrent write causes a reload so fn's guards see the winner's state.
func (s *Service) mutate(
	ctx context.Context,
	id, actorID string,
	fn func(l *models.LeaseAgreement, now time.Time) (bool, error),
) (*models.LeaseAgreement, error) {
	for attempt := 0; ; attempt++ {
		l, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		previous := l.Status
		now := s.now()

		persist, fnErr := fn(l, now)
		if !persist {
			if fnErr != nil {
				return nil, fnErr
			}
			return l, nil
		}

		l.UpdatedAt = now
		if err := s.store.Put(ctx, l); err != nil {
			if errors.Is(err, ErrStaleVersion) && attempt+1 < maxAttempts {
				continue
			}
			return nil, fmt.Errorf("saving lease %s: %w", id, err)
		}

		if previous != l.Status {
			log.Printf("Lease %s: %s -> %s", l.ID, previous, l.Status)
		}
		s.publish(ctx, l, previous, actorID)

		if fnErr != nil {
			return nil, fnErr
		}
		return l, nil
	}
}

func (s *Service) load(ctx context.Context, id string) (*models.LeaseAgreement, error) {
	l, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading lease %s: %w", id, err)
	}
	if l == nil {
		return nil, ErrLeaseNotFound
	}
	return l, nil
}

func (s *Service) publish(ctx context.Context, l *models.LeaseAgreement, previous, actorID string) {
	if previous != l.Status {
		metrics.RecordLeaseTransition(previous, l.Status)
	}
	s.events.LeaseChanged(ctx, Event{
		Lease:          *l.Clone(),
		PreviousStatus: previous,
		ActorID:        actorID,
		At:             l.UpdatedAt,
	})
}

// expireIfDue moves a pending lease to expired once its window has elapsed.
func expireIfDue(l *models.LeaseAgreement, now time.Time) bool {
	switch l.Status {
	case models.LeaseStatusPendingTenant:
		if !l.ResponseWindowElapsed(now) {
			return false
		}
	case models.LeaseStatusPaymentPending, models.LeaseStatusTenantAccepted:
		if !l.PaymentWindowElapsed(now) || l.PaymentStatus == models.PaymentStatusPaid {
			return false
		}
	default:
		return false
	}
	l.Status = models.LeaseStatusExpired
	return true
}

func visibleTo(l *models.LeaseAgreement, actor auth.Actor) bool {
	if actor.IsAdmin() {
		return true
	}
	if l.LandlordID == actor.UserID {
		return true
	}
	return l.TenantID == actor.UserID && l.Status != models.LeaseStatusDraft
}

func newDocument(d DocumentInput, now time.Time) models.LeaseDocument {
	return models.LeaseDocument{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(d.Name),
		Kind:       d.Kind,
		URL:        strings.TrimSpace(d.URL),
		UploadedAt: now,
	}
}
