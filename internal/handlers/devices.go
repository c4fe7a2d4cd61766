package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/nearlist/nearlist/internal/db"
	"github.com/nearlist/nearlist/internal/middleware"
	"github.com/nearlist/nearlist/internal/models"
)

// DeviceHandler handles device registration requests.
type DeviceHandler struct {
	registrations db.RegistrationCollection
}

// NewDeviceHandler creates a new device registration handler.
func NewDeviceHandler(registrations db.RegistrationCollection) *DeviceHandler {
	return &DeviceHandler{registrations: registrations}
}

// Register opts a device in for proximity notifications. Upserts are
// idempotent by token, so re-registering refreshes location and radius.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var req models.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		http.Error(w, "Token is required", http.StatusBadRequest)
		return
	}
	if req.Radius < 0 {
		http.Error(w, "Radius must be positive", http.StatusBadRequest)
		return
	}

	reg := models.Registration{
		Token:    req.Token,
		OwnerID:  claims.UserID,
		Location: req.Location,
		Radius:   req.Radius,
	}
	if err := h.registrations.Upsert(r.Context(), reg); err != nil {
		log.WithError(err).Error("Failed to upsert registration")
		http.Error(w, "Failed to register device", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"status": "registered"})
}

// Device dispatches /api/devices/{token} and /api/devices/{token}/location.
func (h *DeviceHandler) Device(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/devices/")
	if rest == "" {
		http.Error(w, "Token is required", http.StatusBadRequest)
		return
	}

	if token, found := strings.CutSuffix(rest, "/location"); found {
		h.updateLocation(w, r, token)
		return
	}
	h.unregister(w, r, rest)
}

// unregister opts a device out; every record holding the token is removed.
func (h *DeviceHandler) unregister(w http.ResponseWriter, r *http.Request, token string) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	deleted, err := h.registrations.DeleteByToken(r.Context(), token)
	if err != nil {
		log.WithError(err).Error("Failed to delete registration")
		http.Error(w, "Failed to unregister device", http.StatusInternalServerError)
		return
	}
	if deleted == 0 {
		http.Error(w, "Registration not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// updateLocation refreshes a device's last-known location.
func (h *DeviceHandler) updateLocation(w http.ResponseWriter, r *http.Request, token string) {
	if r.Method != http.MethodPatch {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.UpdateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := h.registrations.UpdateLocation(r.Context(), token, req.Location); err != nil {
		http.Error(w, "Registration not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
