package handlers

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/leasehub/backend/internal/api/middleware"
	"github.com/leasehub/backend/internal/lease"
	"github.com/leasehub/backend/internal/storage"
)

// maxWindowHours caps the configurable response and payment windows.
const maxWindowHours = 720

// SettingsResponse represents settings in API responses.
type SettingsResponse struct {
	ResponseWindowHours int `json:"response_window_hours"`
	PaymentWindowHours  int `json:"payment_window_hours"`
}

// SettingsRequest is a partial settings update.
type SettingsRequest struct {
	ResponseWindowHours *int `json:"response_window_hours,omitempty"`
	PaymentWindowHours  *int `json:"payment_window_hours,omitempty"`
}

// GetSettings returns the windows currently applied to new leases.
func GetSettings(svc *lease.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actorFrom(w, r); !ok {
			return
		}
		writeJSON(w, http.StatusOK, currentSettings(svc))
	}
}

// UpdateSettings persists new window lengths and applies them to leases
// sent or accepted from now on. Admin only.
func UpdateSettings(repo *storage.SettingsRepository, svc *lease.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		if !actor.IsAdmin() {
			middleware.WriteError(w, http.StatusForbidden, middleware.ErrForbidden, "Only administrators can change settings")
			return
		}

		var req SettingsRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		updates := make(map[string]string)
		for key, v := range map[string]*int{
			storage.SettingResponseWindowHours: req.ResponseWindowHours,
			storage.SettingPaymentWindowHours:  req.PaymentWindowHours,
		} {
			if v == nil {
				continue
			}
			if *v < 1 || *v > maxWindowHours {
				middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrValidation,
					"Window must be between 1 and 720 hours", map[string]any{"field": key, "value": *v})
				return
			}
			updates[key] = strconv.Itoa(*v)
		}

		if err := repo.Update(r.Context(), updates); err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}

		var response, payment time.Duration
		if req.ResponseWindowHours != nil {
			response = time.Duration(*req.ResponseWindowHours) * time.Hour
		}
		if req.PaymentWindowHours != nil {
			payment = time.Duration(*req.PaymentWindowHours) * time.Hour
		}
		svc.SetWindows(response, payment)
		log.Printf("Settings updated by %s: %v", actor.UserID, updates)

		writeJSON(w, http.StatusOK, currentSettings(svc))
	}
}

func currentSettings(svc *lease.Service) SettingsResponse {
	response, payment := svc.Windows()
	return SettingsResponse{
		ResponseWindowHours: int(response / time.Hour),
		PaymentWindowHours:  int(payment / time.Hour),
	}
}
