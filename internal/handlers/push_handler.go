package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mezaapp/meza/internal/services"
	"github.com/mezaapp/meza/pkg/apperrors"
	"github.com/mezaapp/meza/pkg/middleware"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PushHandler struct {
	Service *services.PushService
}

func NewPushHandler(service *services.PushService) *PushHandler {
	return &PushHandler{Service: service}
}

// GET /push/public-key
func (h *PushHandler) PublicKeyHandler(w http.ResponseWriter, r *http.Request) {
	if !h.Service.Configured() {
		http.Error(w, "Push notifications are not configured", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"public_key": h.Service.PublicKey()})
}

// SubscribeHandler accepts the browser PushSubscription JSON shape.
func (h *PushHandler) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	userID, _ := primitive.ObjectIDFromHex(claims.UserID)
	if err := h.Service.Subscribe(r.Context(), userID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth, r.UserAgent()); err != nil {
		logrus.WithError(err).Warn("Failed to store push subscription")
		http.Error(w, "Failed to subscribe", http.StatusBadRequest)
		return
	}

	logrus.WithField("userID", claims.UserID).Info("Push subscription stored")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"message": "Subscribed"})
}

// POST /push/unsubscribe
func (h *PushHandler) UnsubscribeHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	userID, _ := primitive.ObjectIDFromHex(claims.UserID)
	if err := h.Service.Unsubscribe(r.Context(), userID, req.Endpoint); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			http.Error(w, "Subscription not found", http.StatusNotFound)
			return
		}
		logrus.WithError(err).Error("Failed to remove push subscription")
		http.Error(w, "Failed to unsubscribe", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Unsubscribed"})
}
