package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is the settled payment that activated a lease.
type Payment struct {
	ID      string          `json:"id"`
	LeaseID string          `json:"lease_id"`
	PayerID string          `json:"payer_id"`
	Amount  decimal.Decimal `json:"amount"`
	Method  string          `json:"method"`
	PaidAt  time.Time       `json:"paid_at"`
}

// Payment method constants
const (
	PaymentMethodCard         = "card"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodWallet       = "wallet"
)

// ValidPaymentMethod returns true for a supported payment method.
func ValidPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodWallet:
		return true
	}
	return false
}

// PaymentSummary is the derived view for the payment step. It is never persisted.
type PaymentSummary struct {
	LeaseID         string          `json:"lease_id"`
	MonthlyRent     decimal.Decimal `json:"monthly_rent"`
	SecurityDeposit decimal.Decimal `json:"security_deposit"`
	TotalDue        decimal.Decimal `json:"total_due"`
	Deadline        time.Time       `json:"deadline"`
	HoursRemaining  int64           `json:"hours_remaining"`
	IsExpired       bool            `json:"is_expired"`
	PaymentStatus   string          `json:"payment_status"`
}

// PaymentResult is returned by a successful (or replayed) payment submission.
type PaymentResult struct {
	Payment   Payment `json:"payment"`
	LeaseID   string  `json:"lease_id"`
	Status    string  `json:"status"`
	Duplicate bool    `json:"duplicate"`
}
