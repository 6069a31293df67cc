// Package models contains the domain models for the application.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LeaseAgreement is a proposed or executed tenancy contract between one
// landlord and one tenant for one property.
type LeaseAgreement struct {
	ID            string `json:"id"`
	PropertyID    string `json:"property_id"`
	TenantID      string `json:"tenant_id"`
	LandlordID    string `json:"landlord_id"`
	ApplicationID string `json:"application_id"`

	StartDate       time.Time       `json:"start_date"`
	EndDate         time.Time       `json:"end_date"`
	MonthlyRent     decimal.Decimal `json:"monthly_rent"`
	SecurityDeposit decimal.Decimal `json:"security_deposit"`

	Documents []LeaseDocument `json:"documents"`

	Status            string     `json:"status"`
	RejectionReason   *string    `json:"rejection_reason,omitempty"`
	TerminationReason *string    `json:"termination_reason,omitempty"`
	TerminatedAt      *time.Time `json:"terminated_at,omitempty"`

	PaymentStatus string          `json:"payment_status"`
	PaymentAmount decimal.Decimal `json:"payment_amount"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`

	ResponseDeadline   *time.Time `json:"response_deadline,omitempty"`
	AcceptanceDeadline *time.Time `json:"acceptance_deadline,omitempty"`
	SentToTenantAt     *time.Time `json:"sent_to_tenant_at,omitempty"`
	TenantRespondedAt  *time.Time `json:"tenant_responded_at,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lease status constants
const (
	LeaseStatusDraft          = "draft"
	LeaseStatusPendingTenant  = "pending_tenant"
	LeaseStatusTenantAccepted = "tenant_accepted"
	LeaseStatusPaymentPending = "payment_pending"
	LeaseStatusActive         = "active"
	LeaseStatusRejected       = "rejected"
	LeaseStatusExpired        = "expired"
	LeaseStatusTerminated     = "terminated"
)

// Payment status constants
const (
	PaymentStatusUnpaid     = "unpaid"
	PaymentStatusProcessing = "processing"
	PaymentStatusPaid       = "paid"
)

// LeaseDocument is a file attached to a lease by the landlord.
type LeaseDocument struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Document kinds
const (
	DocumentKindPDF   = "pdf"
	DocumentKindImage = "image"
)

// IsTerminal reports whether no further transition can leave the current status.
func (l *LeaseAgreement) IsTerminal() bool {
	switch l.Status {
	case LeaseStatusRejected, LeaseStatusExpired, LeaseStatusTerminated:
		return true
	}
	return false
}

// IsParticipant returns true if the user is the lease's landlord or tenant.
func (l *LeaseAgreement) IsParticipant(userID string) bool {
	return userID != "" && (userID == l.LandlordID || userID == l.TenantID)
}

// Counterpart returns the other party of the lease for the given user.
func (l *LeaseAgreement) Counterpart(userID string) string {
	if userID == l.LandlordID {
		return l.TenantID
	}
	return l.LandlordID
}

// TotalDue is the amount that activates the lease: deposit plus the first month of rent.
func (l *LeaseAgreement) TotalDue() decimal.Decimal {
	return l.SecurityDeposit.Add(l.MonthlyRent)
}

// ResponseWindowElapsed returns true if the tenant's window to accept or reject has passed.
func (l *LeaseAgreement) ResponseWindowElapsed(now time.Time) bool {
	return l.ResponseDeadline != nil && now.After(*l.ResponseDeadline)
}

// PaymentWindowElapsed returns true if the payment deadline has passed.
func (l *LeaseAgreement) PaymentWindowElapsed(now time.Time) bool {
	return l.AcceptanceDeadline != nil && now.After(*l.AcceptanceDeadline)
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (l *LeaseAgreement) Clone() *LeaseAgreement {
	c := *l
	if l.Documents != nil {
		c.Documents = append([]LeaseDocument(nil), l.Documents...)
	}
	c.RejectionReason = cloneString(l.RejectionReason)
	c.TerminationReason = cloneString(l.TerminationReason)
	c.TerminatedAt = cloneTime(l.TerminatedAt)
	c.PaidAt = cloneTime(l.PaidAt)
	c.ResponseDeadline = cloneTime(l.ResponseDeadline)
	c.AcceptanceDeadline = cloneTime(l.AcceptanceDeadline)
	c.SentToTenantAt = cloneTime(l.SentToTenantAt)
	c.TenantRespondedAt = cloneTime(l.TenantRespondedAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
