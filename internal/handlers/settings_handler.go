package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mezaapp/meza/internal/models"
	"github.com/mezaapp/meza/internal/services"
	"github.com/mezaapp/meza/pkg/middleware"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SettingsHandler struct {
	Service *services.SettingsService
}

func NewSettingsHandler(service *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{Service: service}
}

// GetSettingsHandler returns the user settings, creating defaults on first access.
func (h *SettingsHandler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, _ := primitive.ObjectIDFromHex(claims.UserID)
	settings, err := h.Service.GetSettings(r.Context(), userID)
	if err != nil {
		logrus.WithError(err).Error("Failed to fetch settings")
		http.Error(w, "Failed to fetch settings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}

// PUT /settings
func (h *SettingsHandler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var settings models.UserSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	userID, _ := primitive.ObjectIDFromHex(claims.UserID)
	updated, err := h.Service.UpdateSettings(r.Context(), userID, &settings)
	if err != nil {
		writeError(w, err)
		return
	}

	logrus.WithField("userID", claims.UserID).Info("Settings updated")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}
