package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/leasehub/backend/internal/api/middleware"
	"github.com/leasehub/backend/internal/payment"
)

// PaymentRequest is the body of a payment submission. Amount accepts a JSON
// number or a decimal string.
type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
}

// GetPaymentSummary returns the amount due and the payment deadline.
func GetPaymentSummary(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		summary, err := svc.Summary(r.Context(), actor, mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// SubmitPayment settles a lease. Repeating a settled payment returns the
// original result with 200 instead of 201.
func SubmitPayment(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var req PaymentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		result, err := svc.Submit(r.Context(), actor, mux.Vars(r)["id"], req.Amount, req.Method)
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}

		status := http.StatusCreated
		if result.Duplicate {
			status = http.StatusOK
		}
		writeJSON(w, status, result)
	}
}
