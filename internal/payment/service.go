// Package payment settles lease payments: it computes what is due, enforces
// the payment deadline, and activates a lease once full payment clears.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/leasehub/backend/internal/apperror"
	"github.com/leasehub/backend/internal/auth"
	"github.com/leasehub/backend/internal/lease"
	"github.com/leasehub/backend/internal/metrics"
	"github.com/leasehub/backend/internal/storage/models"
)

// Payment errors
var (
	ErrInsufficientAmount = apperror.Validation("amount is less than the total due; partial payments are not accepted")
	ErrInvalidMethod      = apperror.Validation("unsupported payment method")
	ErrNoPaymentDue       = apperror.Conflict("lease has no payment step")
	ErrPropertyOccupied   = apperror.Conflict("another lease is already active for this property")
)

const maxAttempts = 3

// Service settles lease payments.
type Service struct {
	leases     *lease.Service
	leaseStore lease.Store
	payments   Store
}

// NewService creates a payment service.
func NewService(leases *lease.Service, leaseStore lease.Store, payments Store) *Service {
	return &Service{
		leases:     leases,
		leaseStore: leaseStore,
		payments:   payments,
	}
}

// ComputeSummary derives the payment view of a lease at the given time.
// Hours remaining are whole hours, floored, and the summary counts as
// expired once none are left.
func ComputeSummary(l *models.LeaseAgreement, now time.Time) (*models.PaymentSummary, error) {
	if l.AcceptanceDeadline == nil {
		return nil, ErrNoPaymentDue
	}
	deadline := *l.AcceptanceDeadline

	hours := int64(math.Floor(deadline.Sub(now).Hours()))
	if hours < 0 {
		hours = 0
	}
	paid := l.PaymentStatus == models.PaymentStatusPaid

	return &models.PaymentSummary{
		LeaseID:         l.ID,
		MonthlyRent:     l.MonthlyRent,
		SecurityDeposit: l.SecurityDeposit,
		TotalDue:        l.TotalDue(),
		Deadline:        deadline,
		HoursRemaining:  hours,
		IsExpired:       !paid && hours <= 0,
		PaymentStatus:   l.PaymentStatus,
	}, nil
}

// Summary returns the payment summary of a lease visible to the actor.
func (s *Service) Summary(ctx context.Context, actor auth.Actor, leaseID string) (*models.PaymentSummary, error) {
	l, err := s.leases.Get(ctx, actor, leaseID)
	if err != nil {
		return nil, err
	}
	return ComputeSummary(l, s.leases.Now())
}

// Submit settles the lease with a single full payment. Submitting again for an
// already settled lease returns the original result without charging twice.
func (s *Service) Submit(ctx context.Context, actor auth.Actor, leaseID string, amount decimal.Decimal, method string) (*models.PaymentResult, error) {
	if !models.ValidPaymentMethod(method) {
		return nil, ErrInvalidMethod
	}

	for attempt := 0; ; attempt++ {
		result, err := s.trySubmit(ctx, actor, leaseID, amount, method)
		if errors.Is(err, lease.ErrStaleVersion) && attempt+1 < maxAttempts {
			continue
		}
		switch {
		case err == nil && result.Duplicate:
			metrics.RecordPayment("duplicate")
		case err == nil:
			metrics.RecordPayment("settled")
		case errors.Is(err, lease.ErrExpired):
			metrics.RecordPayment("expired")
		default:
			metrics.RecordPayment("rejected")
		}
		return result, err
	}
}

func (s *Service) trySubmit(ctx context.Context, actor auth.Actor, leaseID string, amount decimal.Decimal, method string) (*models.PaymentResult, error) {
	l, err := s.leases.Get(ctx, actor, leaseID)
	if err != nil {
		return nil, err
	}
	if l.TenantID != actor.UserID || !actor.IsTenant() {
		return nil, lease.ErrNotTenant
	}

	if l.PaymentStatus == models.PaymentStatusPaid {
		return s.existingResult(ctx, l)
	}

	switch l.Status {
	case models.LeaseStatusPaymentPending, models.LeaseStatusTenantAccepted:
	case models.LeaseStatusExpired:
		return nil, lease.ErrExpired
	default:
		return nil, lease.ErrInvalidTransition
	}

	now := s.leases.Now()
	summary, err := ComputeSummary(l, now)
	if err != nil {
		return nil, err
	}
	if summary.IsExpired {
		// The lease itself only expires once the deadline has passed.
		if l.PaymentWindowElapsed(now) {
			if _, _, err := s.leases.Expire(ctx, l.ID); err != nil {
				log.Printf("Failed to expire lease %s after late payment: %v", l.ID, err)
			}
		}
		return nil, lease.ErrExpired
	}

	if amount.LessThan(summary.TotalDue) {
		return nil, ErrInsufficientAmount
	}

	occupied, err := s.leaseStore.List(ctx, func(other *models.LeaseAgreement) bool {
		return other.PropertyID == l.PropertyID && other.ID != l.ID && other.Status == models.LeaseStatusActive
	})
	if err != nil {
		return nil, fmt.Errorf("checking property occupancy: %w", err)
	}
	if len(occupied) > 0 {
		return nil, ErrPropertyOccupied
	}

	previous := l.Status
	l.Status = models.LeaseStatusActive
	l.PaymentStatus = models.PaymentStatusPaid
	l.PaymentAmount = amount
	l.PaidAt = &now
	l.UpdatedAt = now

	p := &models.Payment{
		ID:      uuid.NewString(),
		LeaseID: l.ID,
		PayerID: actor.UserID,
		Amount:  amount,
		Method:  method,
		PaidAt:  now,
	}
	if err := s.payments.Settle(ctx, l, p); err != nil {
		if errors.Is(err, lease.ErrStaleVersion) {
			return nil, err
		}
		return nil, fmt.Errorf("settling lease %s: %w", l.ID, err)
	}

	log.Printf("Lease %s settled: %s paid by %s via %s", l.ID, amount.StringFixed(2), actor.UserID, method)
	s.leases.Notify(ctx, l, previous, actor.UserID)

	return &models.PaymentResult{
		Payment: *p,
		LeaseID: l.ID,
		Status:  l.Status,
	}, nil
}

func (s *Service) existingResult(ctx context.Context, l *models.LeaseAgreement) (*models.PaymentResult, error) {
	p, err := s.payments.GetByLease(ctx, l.ID)
	if err != nil {
		return nil, fmt.Errorf("loading payment for lease %s: %w", l.ID, err)
	}
	if p == nil {
		return nil, fmt.Errorf("lease %s is marked paid but has no payment record", l.ID)
	}
	return &models.PaymentResult{
		Payment:   *p,
		LeaseID:   l.ID,
		Status:    l.Status,
		Duplicate: true,
	}, nil
}
