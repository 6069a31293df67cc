// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"github.com/gorilla/mux"

	"github.com/leasehub/backend/internal/api/handlers"
	"github.com/leasehub/backend/internal/api/middleware"
	"github.com/leasehub/backend/internal/auth"
	"github.com/leasehub/backend/internal/lease"
	"github.com/leasehub/backend/internal/messaging"
	"github.com/leasehub/backend/internal/metrics"
	"github.com/leasehub/backend/internal/notification"
	"github.com/leasehub/backend/internal/payment"
	"github.com/leasehub/backend/internal/storage"
	"github.com/leasehub/backend/internal/websocket"
)

// Services are the dependencies the HTTP API routes to.
type Services struct {
	DB            *storage.DB
	Hub           *websocket.Hub
	Tokens        *auth.Tokens
	Leases        *lease.Service
	Payments      *payment.Service
	Messaging     *messaging.Service
	Notifications *notification.Service
	Settings      *storage.SettingsRepository

	// PaymentLimiter throttles payment submissions per user. Optional.
	PaymentLimiter *middleware.RateLimiter
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(s Services) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	// API subrouter
	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(s.DB)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(s.DB, s.Hub, s.Leases)).Methods("GET")

	// Everything below requires a session token
	authed := api.NewRoute().Subrouter()
	authed.Use(middleware.Authenticate(s.Tokens))

	// WebSocket endpoint
	authed.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub, s.Messaging)).Methods("GET")

	// Lease endpoints
	authed.HandleFunc("/leases", handlers.ListLeases(s.Leases)).Methods("GET")
	authed.HandleFunc("/leases", handlers.CreateLease(s.Leases)).Methods("POST")
	authed.HandleFunc("/leases/{id}", handlers.GetLease(s.Leases)).Methods("GET")
	authed.HandleFunc("/leases/{id}", handlers.UpdateLease(s.Leases)).Methods("PUT")
	authed.HandleFunc("/leases/{id}", handlers.DeleteLease(s.Leases)).Methods("DELETE")
	authed.HandleFunc("/leases/{id}/documents", handlers.AddLeaseDocument(s.Leases)).Methods("POST")
	authed.HandleFunc("/leases/{id}/documents/{docID}", handlers.RemoveLeaseDocument(s.Leases)).Methods("DELETE")
	authed.HandleFunc("/leases/{id}/send", handlers.SendLease(s.Leases)).Methods("POST")
	authed.HandleFunc("/leases/{id}/accept", handlers.AcceptLease(s.Leases)).Methods("POST")
	authed.HandleFunc("/leases/{id}/reject", handlers.RejectLease(s.Leases)).Methods("POST")
	authed.HandleFunc("/leases/{id}/terminate", handlers.TerminateLease(s.Leases)).Methods("POST")

	// Payment endpoints
	authed.HandleFunc("/leases/{id}/payment-summary", handlers.GetPaymentSummary(s.Payments)).Methods("GET")
	submit := handlers.SubmitPayment(s.Payments)
	if s.PaymentLimiter != nil {
		authed.Handle("/leases/{id}/payments", s.PaymentLimiter.Handler(submit)).Methods("POST")
	} else {
		authed.Handle("/leases/{id}/payments", submit).Methods("POST")
	}

	// Conversation endpoints
	authed.HandleFunc("/conversations", handlers.ListConversations(s.Messaging)).Methods("GET")
	authed.HandleFunc("/conversations", handlers.StartConversation(s.Messaging)).Methods("POST")
	authed.HandleFunc("/conversations/contact", handlers.ContactLandlord(s.Messaging)).Methods("POST")
	authed.HandleFunc("/conversations/{id}/messages", handlers.ListMessages(s.Messaging)).Methods("GET")
	authed.HandleFunc("/conversations/{id}/messages", handlers.PostMessage(s.Messaging)).Methods("POST")
	authed.HandleFunc("/conversations/{id}/read", handlers.MarkConversationRead(s.Messaging)).Methods("POST")

	// Notification endpoints
	authed.HandleFunc("/notifications", handlers.ListNotifications(s.Notifications)).Methods("GET")
	authed.HandleFunc("/notifications/unread-count", handlers.UnreadNotificationCount(s.Notifications)).Methods("GET")
	authed.HandleFunc("/notifications/read-all", handlers.MarkAllNotificationsRead(s.Notifications)).Methods("POST")
	authed.HandleFunc("/notifications/{id}/read", handlers.MarkNotificationRead(s.Notifications)).Methods("POST")
	authed.HandleFunc("/notifications/{id}", handlers.DeleteNotification(s.Notifications)).Methods("DELETE")

	// Settings endpoints
	authed.HandleFunc("/settings", handlers.GetSettings(s.Leases)).Methods("GET")
	authed.HandleFunc("/settings", handlers.UpdateSettings(s.Settings, s.Leases)).Methods("PUT")

	return r
}
