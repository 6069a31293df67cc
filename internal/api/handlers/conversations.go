package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/leasehub/backend/internal/api/middleware"
	"github.com/leasehub/backend/internal/messaging"
	"github.com/leasehub/backend/internal/storage/models"
)

// MessageRequest is the body of a posted chat message.
type MessageRequest struct {
	Body string `json:"body"`
}

// ListConversations returns the caller's conversations. With
// ?property_id= it returns only the tenant's conversation about that
// property, which is how clients check before offering "contact landlord".
func ListConversations(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		if propertyID := r.URL.Query().Get("property_id"); propertyID != "" {
			conv, err := svc.Find(r.Context(), actor, propertyID)
			if err != nil {
				middleware.WriteDomainError(w, r, err)
				return
			}
			list := []models.Conversation{}
			if conv != nil {
				list = append(list, *conv)
			}
			writeJSON(w, http.StatusOK, list)
			return
		}

		list, err := svc.List(r.Context(), actor)
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// StartConversation opens a conversation with a landlord and answers 201
// when the first message was posted, or returns the existing one with 200.
func StartConversation(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var req messaging.StartRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		conv, posted, err := svc.Start(r.Context(), actor, req)
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}

		status := http.StatusOK
		if posted {
			status = http.StatusCreated
		}
		writeJSON(w, status, conv)
	}
}

// ContactLandlord runs the contact-landlord flow and returns its resulting
// state. A newly sent first message answers 201; every other state,
// including error, answers 200 and is read from the flow's state field.
func ContactLandlord(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var req messaging.StartRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		flow := svc.Contact(r.Context(), actor, req)
		status := http.StatusOK
		if flow.State == messaging.ContactSent {
			status = http.StatusCreated
		}
		writeJSON(w, status, flow)
	}
}

// ListMessages returns a conversation's messages, oldest first.
func ListMessages(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		msgs, err := svc.Messages(r.Context(), actor, mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

// PostMessage sends a message. This is also the REST fallback used by push
// channel clients when the socket is down.
func PostMessage(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var req MessageRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		m, err := svc.Send(r.Context(), actor, mux.Vars(r)["id"], req.Body)
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

// MarkConversationRead marks received messages as read.
func MarkConversationRead(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		n, err := svc.MarkRead(r.Context(), actor, mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
	}
}
