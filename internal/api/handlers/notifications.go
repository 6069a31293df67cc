package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/leasehub/backend/internal/api/middleware"
	"github.com/leasehub/backend/internal/notification"
)

// ListNotifications returns the caller's notifications; ?unread=true limits
// the list to unread ones.
func ListNotifications(svc *notification.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		unreadOnly := r.URL.Query().Get("unread") == "true"
		list, err := svc.List(r.Context(), actor, unreadOnly)
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// UnreadNotificationCount returns the number of unread notifications.
func UnreadNotificationCount(svc *notification.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		n, err := svc.UnreadCount(r.Context(), actor)
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"count": n})
	}
}

// MarkNotificationRead marks one notification as read.
func MarkNotificationRead(svc *notification.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		if err := svc.MarkRead(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// MarkAllNotificationsRead marks every notification of the caller as read.
func MarkAllNotificationsRead(svc *notification.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		n, err := svc.MarkAllRead(r.Context(), actor)
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
	}
}

// DeleteNotification removes a notification.
func DeleteNotification(svc *notification.Service) http.HandlerFunc {
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
