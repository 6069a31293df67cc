package notification

import (
	"context"
	"fmt"
	"log"

	"github.com/leasehub/backend/internal/lease"
	"github.com/leasehub/backend/internal/storage/models"
)

// LeasePublisher pushes lease changes to both parties.
type LeasePublisher interface {
	LeaseStatusChanged(ctx context.Context, l models.LeaseAgreement, previousStatus string)
	PaymentCompleted(ctx context.Context, l models.LeaseAgreement)
}

// LeaseEvents turns lease status changes into pushes and notifications.
// It implements lease.EventSink.
type LeaseEvents struct {
	notifications *Service
	publisher     LeasePublisher
}

var _ lease.EventSink = (*LeaseEvents)(nil)

// NewLeaseEvents creates a lease event dispatcher. publisher may be nil.
func NewLeaseEvents(notifications *Service, publisher LeasePublisher) *LeaseEvents {
	return &LeaseEvents{notifications: notifications, publisher: publisher}
}

// LeaseChanged implements lease.EventSink. Edits that keep the status are ignored.
func (d *LeaseEvents) LeaseChanged(ctx context.Context, ev lease.Event) {
	l := ev.Lease
	if ev.PreviousStatus == l.Status {
		return
	}

	// Drafts are private to the landlord.
	if l.Status == models.LeaseStatusDraft {
		return
	}

	if d.publisher != nil {
		d.publisher.LeaseStatusChanged(ctx, l, ev.PreviousStatus)
		if l.Status == models.LeaseStatusActive {
			d.publisher.PaymentCompleted(ctx, l)
		}
	}

	in, ok := describe(l)
	if !ok {
		return
	}
	for _, userID := range recipients(l, ev.ActorID) {
		in.UserID = userID
		if _, err := d.notifications.Create(ctx, in); err != nil {
			log.Printf("Failed to notify %s about lease %s: %v", userID, l.ID, err)
		}
	}
}

// recipients returns the counterpart of the actor, or both parties for
// system transitions.
func recipients(l models.LeaseAgreement, actorID string) []string {
	if actorID == "" || !l.IsParticipant(actorID) {
		return []string{l.TenantID, l.LandlordID}
	}
	return []string{l.Counterpart(actorID)}
}

func describe(l models.LeaseAgreement) (Input, bool) {
	in := Input{
		Type: models.NotificationTypeLease,
		Link: "/leases/" + l.ID,
	}

	switch l.Status {
	case models.LeaseStatusPendingTenant:
		in.Title = "New lease agreement"
		in.Message = "A lease agreement is waiting for your response."
		if l.ResponseDeadline != nil {
			in.Message = fmt.Sprintf("A lease agreement is waiting for your response until %s.",
				l.ResponseDeadline.Format("Jan 2, 15:04 MST"))
		}
	case models.LeaseStatusPaymentPending, models.LeaseStatusTenantAccepted:
		in.Title = "Lease accepted"
		in.Message = "The tenant accepted the lease. Payment is due within the payment window."
	case models.LeaseStatusRejected:
		in.Title = "Lease rejected"
		in.Message = "The tenant rejected the lease."
		if l.RejectionReason != nil {
			in.Message = "The tenant rejected the lease: " + *l.RejectionReason
		}
	case models.LeaseStatusActive:
		in.Type = models.NotificationTypePayment
		in.Title = "Payment received"
		in.Message = fmt.Sprintf("Payment of %s received. The lease is now active.", l.PaymentAmount.StringFixed(2))
	case models.LeaseStatusExpired:
		in.Title = "Lease expired"
		in.Message = "The lease expired before it was completed."
	case models.LeaseStatusTerminated:
		in.Title = "Lease terminated"
		in.Message = "The lease was terminated."
		if l.TerminationReason != nil {
			in.Message = "The lease was terminated: " + *l.TerminationReason
		}
	default:
		return Input{}, false
	}
	return in, true
}
