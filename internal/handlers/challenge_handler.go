package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mezaapp/meza/internal/models"
	"github.com/mezaapp/meza/internal/services"
	"github.com/mezaapp/meza/pkg/apperrors"
	"github.com/mezaapp/meza/pkg/middleware"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChallengeHandler handles HTTP requests related to challenges.
type ChallengeHandler struct {
	Service *services.ChallengeService
}

// NewChallengeHandler creates a new instance of ChallengeHandler.
func NewChallengeHandler(service *services.ChallengeService) *ChallengeHandler {
	return &ChallengeHandler{Service: service}
}

// challengeResponse decorates a challenge with its derived remaining time.
type challengeResponse struct {
	*models.Challenge
	SecondsRemaining *int64 `json:"seconds_remaining,omitempty"`
}

func (h *ChallengeHandler) respond(w http.ResponseWriter, challenge *models.Challenge) {
	resp := challengeResponse{Challenge: challenge}
	if challenge.Status == models.StatusActive {
		remaining := h.Service.TimeRemaining(challenge)
		resp.SecondsRemaining = &remaining
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var ve *apperrors.ValidationError
	switch {
	case errors.As(err, &ve):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":  "validation failed",
			"field":  ve.Field,
			"reason": ve.Reason,
		})
	case errors.Is(err, apperrors.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrActiveChallengeExists):
		http.Error(w, "You already have an active challenge", http.StatusConflict)
	case errors.Is(err, apperrors.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// CreateChallengeHandler handles the creation of a new challenge.
func (h *ChallengeHandler) CreateChallengeHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		logrus.Warn("Unauthorized access attempt during challenge creation")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var input models.ChallengeInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		logrus.WithError(err).Warn("Invalid request payload during challenge creation")
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		logrus.WithError(err).Error("Failed to convert user ID")
		http.Error(w, "Invalid user ID", http.StatusInternalServerError)
		return
	}

	challenge, err := h.Service.CreateChallenge(r.Context(), userID, &input)
	if err != nil {
		logrus.WithError(err).Warn("Failed to create challenge")
		writeError(w, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"userID":      claims.UserID,
		"challengeID": challenge.ID.Hex(),
	}).Info("Challenge successfully created")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(challenge)
}

// GetChallengesHandler lists the user's challenges with an optional
// status filter.
func (h *ChallengeHandler) GetChallengesHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusInternalServerError)
		return
	}

	status := models.ChallengeStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.StatusPending, models.StatusActive, models.StatusCompleted, models.StatusFailed:
	default:
		http.Error(w, "Invalid status filter", http.StatusBadRequest)
		return
	}

	challenges, err := h.Service.GetChallenges(r.Context(), userID, status)
	if err != nil {
		logrus.WithError(err).Error("Failed to retrieve challenges")
		http.Error(w, "Failed to retrieve challenges", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(challenges)
}

// GetActiveChallengeHandler returns the user's active challenge, or null.
func (h *ChallengeHandler) GetActiveChallengeHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusInternalServerError)
		return
	}

	challenge, err := h.Service.GetActiveChallenge(r.Context(), userID)
	if err != nil {
		logrus.WithError(err).Error("Failed to retrieve active challenge")
		http.Error(w, "Failed to retrieve active challenge", http.StatusInternalServerError)
		return
	}

	if challenge == nil {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("null\n"))
		return
	}
	h.respond(w, challenge)
}

// GetChallengeHandler fetches a single challenge by its ID.
func (h *ChallengeHandler) GetChallengeHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusInternalServerError)
		return
	}

	challenge, err := h.Service.GetChallenge(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.respond(w, challenge)
}

// UpdateChallengeHandler edits a pending challenge.
func (h *ChallengeHandler) UpdateChallengeHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusInternalServerError)
		return
	}

	var input models.ChallengeInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	challenge, err := h.Service.UpdateChallenge(r.Context(), mux.Vars(r)["id"], userID, &input)
	if err != nil {
		writeError(w, err)
		return
	}

	logrus.WithField("challengeID", challenge.ID.Hex()).Info("Challenge successfully updated")
	h.respond(w, challenge)
}

// DeleteChallengeHandler deletes a pending challenge.
func (h *ChallengeHandler) DeleteChallengeHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusInternalServerError)
		return
	}

	if err := h.Service.DeleteChallenge(r.Context(), mux.Vars(r)["id"], userID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StartChallengeHandler activates a pending challenge. The body may carry
// an explicit deadline or a timezone for resolving the target time.
func (h *ChallengeHandler) StartChallengeHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusInternalServerError)
		return
	}

	var req struct {
		EndsAt   *time.Time `json:"ends_at,omitempty"`
		Timezone string     `json:"timezone,omitempty"`
	}
	if r.Body != nil {
		// An empty body means "next occurrence of target time, UTC".
		_ = json.NewDecoder(r.Body).Decode(&req)
		defer r.Body.Close()
	}

	challenge, err := h.Service.StartChallenge(r.Context(), mux.Vars(r)["id"], userID, req.EndsAt, req.Timezone)
	if err != nil {
		logrus.WithError(err).Warn("Failed to start challenge")
		writeError(w, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"userID":      claims.UserID,
		"challengeID": challenge.ID.Hex(),
	}).Info("Challenge started")
	h.respond(w, challenge)
}

// CompleteChallengeHandler confirms arrival at the target location.
func (h *ChallengeHandler) CompleteChallengeHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusInternalServerError)
		return
	}

	var req struct {
		Lat     float64 `json:"lat"`
		Lng     float64 `json:"lng"`
		Address string  `json:"address,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	challenge, err := h.Service.ConfirmArrival(r.Context(), mux.Vars(r)["id"], userID, req.Lat, req.Lng, req.Address)
	if err != nil {
		logrus.WithError(err).Warn("Arrival confirmation rejected")
		writeError(w, err)
		return
	}

	logrus.WithField("challengeID", challenge.ID.Hex()).Info("Challenge completed")
	h.respond(w, challenge)
}

// GiveUpChallengeHandler concedes an active challenge.
func (h *ChallengeHandler) GiveUpChallengeHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusInternalServerError)
		return
	}

	challenge, err := h.Service.GiveUp(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		writeError(w, err)
		return
	}

	logrus.WithField("challengeID", challenge.ID.Hex()).Info("Challenge conceded")
	h.respond(w, challenge)
}
