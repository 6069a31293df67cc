// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/leasehub/backend/internal/lease"
	"github.com/leasehub/backend/internal/storage"
	"github.com/leasehub/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status := "healthy"
		if !dbConnected {
			status = "degraded"
		}

		response := HealthResponse{
			Status:      status,
			DBConnected: dbConnected,
		}

		w.Header().Set("Content-Type", "application/json")
		if status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(response)
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	LeasesByStatus      map[string]int `json:"leases_by_status"`
	Conversations       int            `json:"conversations"`
	ConnectedClients    int            `json:"connected_clients"`
	ResponseWindowHours int            `json:"response_window_hours"`
	PaymentWindowHours  int            `json:"payment_window_hours"`
}

// Status returns a handler that provides system status information.
func Status(db *storage.DB, hub *websocket.Hub, leases *lease.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		byStatus := make(map[string]int)
		rows, err := db.QueryContext(ctx, "SELECT status, COUNT(*) FROM leases GROUP BY status")
		if err == nil {
			for rows.Next() {
				var status string
				var n int
				if rows.Scan(&status, &n) == nil {
					byStatus[status] = n
				}
			}
			rows.Close()
		}

		var conversations int
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations").Scan(&conversations)

		settings := currentSettings(leases)
		response := StatusResponse{
			LeasesByStatus:      byStatus,
			Conversations:       conversations,
			ConnectedClients:    hub.ClientCount(),
			ResponseWindowHours: settings.ResponseWindowHours,
			PaymentWindowHours:  settings.PaymentWindowHours,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}
