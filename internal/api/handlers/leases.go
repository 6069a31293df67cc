package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/leasehub/backend/internal/api/middleware"
	"github.com/leasehub/backend/internal/lease"
	"github.com/leasehub/backend/internal/storage/models"
)

// ListLeases returns the caller's leases, optionally filtered by ?status=.
func ListLeases(svc *lease.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		leases, err := svc.ListForUser(r.Context(), actor, r.URL.Query().Get("status"))
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		if leases == nil {
			leases = []models.LeaseAgreement{}
		}
		writeJSON(w, http.StatusOK, leases)
	}
}

// CreateLease drafts a new lease from an approved application.
func CreateLease(svc *lease.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var req lease.CreateRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		l, err := svc.Create(r.Context(), actor, req)
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, l)
	}
}

// GetLease returns a single lease.
func GetLease(svc *lease.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		l, err := svc.Get(r.Context(), actor, mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// UpdateLease replaces the terms of a draft lease.
func UpdateLease(svc *lease.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var terms lease.Terms
		if !decodeJSON(w, r, &terms) {
			return
		}

		l, err := svc.UpdateTerms(r.Context(), actor, mux.Vars(r)["id"], terms)
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// DeleteLease removes a draft lease.
func DeleteLease(svc *lease.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// AddLeaseDocument attaches a document to a draft lease.
func AddLeaseDocument(svc *lease.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var doc lease.DocumentInput
		if !decodeJSON(w, r, &doc) {
			return
		}

		l, err := svc.AddDocument(r.Context(), actor, mux.Vars(r)["id"], doc)
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, l)
	}
}

// RemoveLeaseDocument detaches a document from a draft lease.
func RemoveLeaseDocument(svc *lease.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		vars := mux.Vars(r)
		l, err := svc.RemoveDocument(r.Context(), actor, vars["id"], vars["docID"])
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// SendLease sends a draft lease to the tenant.
func SendLease(svc *lease.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		l, err := svc.Send(r.Context(), actor, mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// AcceptLease records the tenant's acceptance and opens the payment window.
func AcceptLease(svc *lease.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		l, err := svc.Accept(r.Context(), actor, mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// RejectLease records the tenant's rejection with a reason.
func RejectLease(svc *lease.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var req reasonRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		l, err := svc.Reject(r.Context(), actor, mux.Vars(r)["id"], req.Reason)
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// TerminateLease ends an active lease.
func TerminateLease(svc *lease.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var req reasonRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		l, err := svc.Terminate(r.Context(), actor, mux.Vars(r)["id"], req.Reason)
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}
