package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/mezaapp/meza/internal/models"
	"github.com/mezaapp/meza/internal/services"
	"github.com/mezaapp/meza/pkg/apperrors"
	jwtutil "github.com/mezaapp/meza/pkg/jwt"
	"github.com/mezaapp/meza/pkg/middleware"
	"github.com/mezaapp/meza/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testJWTSecret = "test-secret"

// memoryStore is an in-memory services.ChallengeStore with the same
// conditional write behavior as the Mongo repository.
type memoryStore struct {
	mu         sync.Mutex
	challenges map[primitive.ObjectID]*models.Challenge
}

func newMemoryStore() *memoryStore {
	return &memoryStore{challenges: make(map[primitive.ObjectID]*models.Challenge)}
}

func (s *memoryStore) CreateChallenge(_ context.Context, challenge *models.Challenge) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *challenge
	c.ID = primitive.NewObjectID()
	c.Status = models.StatusPending
	s.challenges[c.ID] = &c
	out := c
	return &out, nil
}

func (s *memoryStore) GetChallengeByID(_ context.Context, id, userID primitive.ObjectID) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok || c.UserID != userID {
		return nil, apperrors.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *memoryStore) GetChallenges(_ context.Context, userID primitive.ObjectID, status models.ChallengeStatus) ([]models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Challenge{}
	for _, c := range s.challenges {
		if c.UserID == userID && (status == "" || c.Status == status) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *memoryStore) GetActiveChallenge(_ context.Context, userID primitive.ObjectID) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.challenges {
		if c.UserID == userID && c.Status == models.StatusActive {
			out := *c
			return &out, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *memoryStore) GetExpiredActive(_ context.Context, now time.Time) ([]models.Challenge, error) {
	return nil, nil
}

func (s *memoryStore) GetActiveEndingBetween(_ context.Context, from, to time.Time) ([]models.Challenge, error) {
	return nil, nil
}

func (s *memoryStore) UpdatePending(_ context.Context, id, userID primitive.ObjectID, in *models.ChallengeInput) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok || c.UserID != userID || c.Status != models.StatusPending {
		return nil, apperrors.ErrInvalidTransition
	}
	c.TargetTime = in.TargetTime
	c.PenaltyAmount = in.PenaltyAmount
	out := *c
	return &out, nil
}

func (s *memoryStore) DeletePending(_ context.Context, id, userID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok || c.UserID != userID || c.Status != models.StatusPending {
		return apperrors.ErrInvalidTransition
	}
	delete(s.challenges, id)
	return nil
}

func (s *memoryStore) TransitionToActive(_ context.Context, id, userID primitive.ObjectID, startedAt, endsAt time.Time) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok || c.UserID != userID || c.Status != models.StatusPending {
		return nil, apperrors.ErrInvalidTransition
	}
	for _, other := range s.challenges {
		if other.UserID == userID && other.Status == models.StatusActive {
			return nil, apperrors.ErrActiveChallengeExists
		}
	}
	c.Status = models.StatusActive
	c.StartedAt = &startedAt
	c.EndsAt = &endsAt
	out := *c
	return &out, nil
}

func (s *memoryStore) TransitionToCompleted(_ context.Context, id primitive.ObjectID, completedAt time.Time, lat, lng float64, address string, distance float64) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok || c.Status != models.StatusActive {
		return nil, apperrors.ErrInvalidTransition
	}
	c.Status = models.StatusCompleted
	c.CompletedAt = &completedAt
	c.DistanceToTarget = &distance
	out := *c
	return &out, nil
}

func (s *memoryStore) TransitionToFailed(_ context.Context, id primitive.ObjectID, completedAt time.Time) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok || c.Status != models.StatusActive {
		return nil, apperrors.ErrInvalidTransition
	}
	c.Status = models.StatusFailed
	c.CompletedAt = &completedAt
	out := *c
	return &out, nil
}

func (s *memoryStore) SetPaymentIntent(_ context.Context, id primitive.ObjectID, intentID string) error {
	return nil
}

type noopCharger struct{}

func (noopCharger) ChargePenalty(_ context.Context, _ primitive.ObjectID, _ int64) (string, error) {
	return "pi_noop", nil
}

type noopDispatcher struct{}

func (noopDispatcher) Notify(_ context.Context, _ primitive.ObjectID, _, _, _ string, _ *primitive.ObjectID) error {
	return nil
}

func newTestRouter(t *testing.T) (*mux.Router, primitive.ObjectID, string) {
	t.Helper()

	clock := timeutil.FixedClock{Instant: time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)}
	service := services.NewChallengeService(newMemoryStore(), noopCharger{}, noopDispatcher{}, clock, 100)
	handler := NewChallengeHandler(service)

	userID := primitive.NewObjectID()
	token, err := jwtutil.GenerateToken(userID.Hex(), "user@example.com", testJWTSecret, time.Hour)
	require.NoError(t, err)

	router := mux.NewRouter()
	protected := router.PathPrefix("/challenges").Subrouter()
	protected.Use(middleware.AuthMiddleware(testJWTSecret))
	protected.HandleFunc("", handler.CreateChallengeHandler).Methods("POST")
	protected.HandleFunc("", handler.GetChallengesHandler).Methods("GET")
	protected.HandleFunc("/active", handler.GetActiveChallengeHandler).Methods("GET")
	protected.HandleFunc("/{id}", handler.GetChallengeHandler).Methods("GET")
	protected.HandleFunc("/{id}", handler.DeleteChallengeHandler).Methods("DELETE")
	protected.HandleFunc("/{id}/start", handler.StartChallengeHandler).Methods("POST")
	protected.HandleFunc("/{id}/complete", handler.CompleteChallengeHandler).Methods("POST")
	protected.HandleFunc("/{id}/give-up", handler.GiveUpChallengeHandler).Methods("POST")

	return router, userID, token
}

func doJSON(t *testing.T, router *mux.Router, token, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func validChallengeBody() map[string]interface{} {
	return map[string]interface{}{
		"target_time":    "07:00",
		"penalty_amount": 500,
		"home_lat":       35.68,
		"home_lng":       139.76,
		"target_lat":     35.65,
		"target_lng":     139.70,
		"target_address": "Shibuya, Tokyo",
	}
}

func TestCreateChallengeEndpoint(t *testing.T) {
	router, _, token := newTestRouter(t)

	rec := doJSON(t, router, token, http.MethodPost, "/challenges", validChallengeBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Challenge
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, models.StatusPending, created.Status)
	assert.False(t, created.ID.IsZero())
}

func TestCreateChallengeEndpointRequiresAuth(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, "", http.MethodPost, "/challenges", validChallengeBody())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateChallengeEndpointValidation(t *testing.T) {
	router, _, token := newTestRouter(t)

	body := validChallengeBody()
	body["home_lat"] = 200

	rec := doJSON(t, router, token, http.MethodPost, "/challenges", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "home_latitude", resp["field"])
}

func TestStartAndCompleteChallengeFlow(t *testing.T) {
	router, _, token := newTestRouter(t)

	rec := doJSON(t, router, token, http.MethodPost, "/challenges", validChallengeBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Challenge
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	// Start with an explicit deadline one hour out.
	endsAt := time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)
	rec = doJSON(t, router, token, http.MethodPost,
		fmt.Sprintf("/challenges/%s/start", created.ID.Hex()),
		map[string]interface{}{"ends_at": endsAt})
	require.Equal(t, http.StatusOK, rec.Code)

	var started struct {
		models.Challenge
		SecondsRemaining *int64 `json:"seconds_remaining"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&started))
	assert.Equal(t, models.StatusActive, started.Status)
	require.NotNil(t, started.SecondsRemaining)
	assert.Equal(t, int64(3600), *started.SecondsRemaining)

	// The active endpoint now returns it.
	rec = doJSON(t, router, token, http.MethodGet, "/challenges/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, "null\n", rec.Body.String())

	// Arriving at the target completes it.
	rec = doJSON(t, router, token, http.MethodPost,
		fmt.Sprintf("/challenges/%s/complete", created.ID.Hex()),
		map[string]interface{}{"lat": 35.65, "lng": 139.70, "address": "Shibuya Station"})
	require.Equal(t, http.StatusOK, rec.Code)

	var completed models.Challenge
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&completed))
	assert.Equal(t, models.StatusCompleted, completed.Status)
}

func TestCompleteTooFarReturnsConflict(t *testing.T) {
	router, _, token := newTestRouter(t)

	rec := doJSON(t, router, token, http.MethodPost, "/challenges", validChallengeBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Challenge
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	endsAt := time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)
	rec = doJSON(t, router, token, http.MethodPost,
		fmt.Sprintf("/challenges/%s/start", created.ID.Hex()),
		map[string]interface{}{"ends_at": endsAt})
	require.Equal(t, http.StatusOK, rec.Code)

	// Still at home, kilometers from the target.
	rec = doJSON(t, router, token, http.MethodPost,
		fmt.Sprintf("/challenges/%s/complete", created.ID.Hex()),
		map[string]interface{}{"lat": 35.68, "lng": 139.76})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartNonPendingReturnsConflict(t *testing.T) {
	router, _, token := newTestRouter(t)

	rec := doJSON(t, router, token, http.MethodPost, "/challenges", validChallengeBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Challenge
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	endsAt := time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)
	startPath := fmt.Sprintf("/challenges/%s/start", created.ID.Hex())

	rec = doJSON(t, router, token, http.MethodPost, startPath, map[string]interface{}{"ends_at": endsAt})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, token, http.MethodPost, startPath, map[string]interface{}{"ends_at": endsAt})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetUnknownChallengeReturns404(t *testing.T) {
	router, _, token := newTestRouter(t)

	rec := doJSON(t, router, token, http.MethodGet, "/challenges/"+primitive.NewObjectID().Hex(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetActiveChallengeNullWhenNone(t *testing.T) {
	router, _, token := newTestRouter(t)

	rec := doJSON(t, router, token, http.MethodGet, "/challenges/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())
}

func TestDeleteActiveChallengeReturnsConflict(t *testing.T) {
	router, _, token := newTestRouter(t)

	rec := doJSON(t, router, token, http.MethodPost, "/challenges", validChallengeBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Challenge
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	endsAt := time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)
	rec = doJSON(t, router, token, http.MethodPost,
		fmt.Sprintf("/challenges/%s/start", created.ID.Hex()),
		map[string]interface{}{"ends_at": endsAt})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, token, http.MethodDelete, "/challenges/"+created.ID.Hex(), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
