package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mezaapp/meza/internal/models"
	"github.com/mezaapp/meza/pkg/apperrors"
	"github.com/mezaapp/meza/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// testClock is a mutable clock for driving deadlines in tests.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now.UTC() }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeChallengeStore mimics the repository's conditional write semantics in
// memory: every transition re-checks the source status and misses with
// ErrInvalidTransition, and at most one active challenge per user is allowed.
type fakeChallengeStore struct {
	mu         sync.Mutex
	challenges map[primitive.ObjectID]*models.Challenge
}

func newFakeChallengeStore() *fakeChallengeStore {
	return &fakeChallengeStore{challenges: make(map[primitive.ObjectID]*models.Challenge)}
}

func (s *fakeChallengeStore) CreateChallenge(_ context.Context, challenge *models.Challenge) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *challenge
	c.ID = primitive.NewObjectID()
	c.Status = models.StatusPending
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	s.challenges[c.ID] = &c

	out := c
	return &out, nil
}

func (s *fakeChallengeStore) GetChallengeByID(_ context.Context, id, userID primitive.ObjectID) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok || c.UserID != userID {
		return nil, apperrors.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *fakeChallengeStore) GetChallenges(_ context.Context, userID primitive.ObjectID, status models.ChallengeStatus) ([]models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Challenge
	for _, c := range s.challenges {
		if c.UserID != userID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (s *fakeChallengeStore) GetActiveChallenge(_ context.Context, userID primitive.ObjectID) (*models.Challenge, error) {
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

func (s *fakeChallengeStore) GetExpiredActive(_ context.Context, now time.Time) ([]models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Challenge
	for _, c := range s.challenges {
		if c.Status == models.StatusActive && c.EndsAt != nil && timeutil.IsExpired(*c.EndsAt, now) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *fakeChallengeStore) GetActiveEndingBetween(_ context.Context, from, to time.Time) ([]models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Challenge
	for _, c := range s.challenges {
		if c.Status == models.StatusActive && c.EndsAt != nil && c.EndsAt.After(from) && !c.EndsAt.After(to) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *fakeChallengeStore) UpdatePending(_ context.Context, id, userID primitive.ObjectID, in *models.ChallengeInput) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok || c.UserID != userID || c.Status != models.StatusPending {
		return nil, apperrors.ErrInvalidTransition
	}
	c.TargetTime = in.TargetTime
	c.PenaltyAmount = in.PenaltyAmount
	c.HomeLat, c.HomeLng, c.HomeAddress = in.HomeLat, in.HomeLng, in.HomeAddress
	c.TargetLat, c.TargetLng, c.TargetAddress = in.TargetLat, in.TargetLng, in.TargetAddress
	c.WakeupLat, c.WakeupLng, c.WakeupAddress = in.WakeupLat, in.WakeupLng, in.WakeupAddress
	c.UpdatedAt = time.Now().UTC()

	out := *c
	return &out, nil
}

func (s *fakeChallengeStore) DeletePending(_ context.Context, id, userID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok || c.UserID != userID || c.Status != models.StatusPending {
		return apperrors.ErrInvalidTransition
	}
	delete(s.challenges, id)
	return nil
}

func (s *fakeChallengeStore) TransitionToActive(_ context.Context, id, userID primitive.ObjectID, startedAt, endsAt time.Time) (*models.Challenge, error) {
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
	c.UpdatedAt = time.Now().UTC()

	out := *c
	return &out, nil
}

func (s *fakeChallengeStore) TransitionToCompleted(_ context.Context, id primitive.ObjectID, completedAt time.Time, lat, lng float64, address string, distance float64) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok || c.Status != models.StatusActive {
		return nil, apperrors.ErrInvalidTransition
	}
	c.Status = models.StatusCompleted
	c.CompletedAt = &completedAt
	c.CompletionLat = &lat
	c.CompletionLng = &lng
	c.CompletionAddress = address
	c.DistanceToTarget = &distance
	c.UpdatedAt = time.Now().UTC()

	out := *c
	return &out, nil
}

func (s *fakeChallengeStore) TransitionToFailed(_ context.Context, id primitive.ObjectID, completedAt time.Time) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok || c.Status != models.StatusActive {
		return nil, apperrors.ErrInvalidTransition
	}
	c.Status = models.StatusFailed
	c.CompletedAt = &completedAt
	c.UpdatedAt = time.Now().UTC()

	out := *c
	return &out, nil
}

func (s *fakeChallengeStore) SetPaymentIntent(_ context.Context, id primitive.ObjectID, intentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	c.PaymentIntentID = intentID
	return nil
}

type chargeCall struct {
	userID primitive.ObjectID
	amount int64
}

type fakeCharger struct {
	calls []chargeCall
	err   error
}

func (c *fakeCharger) ChargePenalty(_ context.Context, userID primitive.ObjectID, amount int64) (string, error) {
	c.calls = append(c.calls, chargeCall{userID: userID, amount: amount})
	if c.err != nil {
		return "", c.err
	}
	return "pi_test_123", nil
}

type dispatchCall struct {
	userID    primitive.ObjectID
	notifType string
}

type fakeDispatcher struct {
	calls []dispatchCall
}

func (d *fakeDispatcher) Notify(_ context.Context, userID primitive.ObjectID, notifType, title, body string, targetID *primitive.ObjectID) error {
	d.calls = append(d.calls, dispatchCall{userID: userID, notifType: notifType})
	return nil
}

type fixture struct {
	store      *fakeChallengeStore
	charger    *fakeCharger
	dispatcher *fakeDispatcher
	clock      *testClock
	service    *ChallengeService
	userID     primitive.ObjectID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:      newFakeChallengeStore(),
		charger:    &fakeCharger{},
		dispatcher: &fakeDispatcher{},
		clock:      &testClock{now: time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)},
		userID:     primitive.NewObjectID(),
	}
	f.service = NewChallengeService(f.store, f.charger, f.dispatcher, f.clock, 100)
	return f
}

func tokyoInput() *models.ChallengeInput {
	return &models.ChallengeInput{
		TargetTime:    "07:00",
		PenaltyAmount: 500,
		HomeLat:       35.68,
		HomeLng:       139.76,
		HomeAddress:   "Chiyoda, Tokyo",
		TargetLat:     35.65,
		TargetLng:     139.70,
		TargetAddress: "Shibuya, Tokyo",
	}
}

// createAndStart creates a pending challenge and starts it with an explicit
// deadline one hour out.
func (f *fixture) createAndStart(t *testing.T) *models.Challenge {
	t.Helper()

	created, err := f.service.CreateChallenge(context.Background(), f.userID, tokyoInput())
	require.NoError(t, err)

	deadline := f.clock.Now().Add(time.Hour)
	started, err := f.service.StartChallenge(context.Background(), created.ID.Hex(), f.userID, &deadline, "")
	require.NoError(t, err)
	return started
}

func TestCreateChallenge(t *testing.T) {
	f := newFixture(t)

	created, err := f.service.CreateChallenge(context.Background(), f.userID, tokyoInput())
	require.NoError(t, err)

	assert.False(t, created.ID.IsZero())
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Nil(t, created.StartedAt)
	assert.Nil(t, created.EndsAt)
}

func TestCreateChallengeRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)

	in := tokyoInput()
	in.HomeLat = 200

	_, err := f.service.CreateChallenge(context.Background(), f.userID, in)
	var ve *apperrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "home_latitude", ve.Field)
}

func TestStartChallengeExplicitDeadline(t *testing.T) {
	f := newFixture(t)
	started := f.createAndStart(t)

	assert.Equal(t, models.StatusActive, started.Status)
	require.NotNil(t, started.StartedAt)
	assert.True(t, started.StartedAt.Equal(f.clock.Now()))
	require.NotNil(t, started.EndsAt)
	assert.Equal(t, int64(3600), f.service.TimeRemaining(started))

	require.Len(t, f.dispatcher.calls, 1)
	assert.Equal(t, models.NotifTypeChallengeStarted, f.dispatcher.calls[0].notifType)
}

func TestStartChallengeComputesDeadlineFromTargetTime(t *testing.T) {
	f := newFixture(t)
	// 06:00 in Tokyo; target time 07:00 resolves to 22:00 UTC the same day.
	f.clock.now = time.Date(2025, 5, 31, 21, 0, 0, 0, time.UTC)

	created, err := f.service.CreateChallenge(context.Background(), f.userID, tokyoInput())
	require.NoError(t, err)

	started, err := f.service.StartChallenge(context.Background(), created.ID.Hex(), f.userID, nil, "Asia/Tokyo")
	require.NoError(t, err)

	require.NotNil(t, started.EndsAt)
	assert.True(t, started.EndsAt.Equal(time.Date(2025, 5, 31, 22, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(3600), f.service.TimeRemaining(started))
}

func TestStartChallengeRollsPastTargetTimeToTomorrow(t *testing.T) {
	f := newFixture(t)
	// 08:00 in Tokyo is already past a 07:00 target, so the deadline is
	// 07:00 tomorrow.
	f.clock.now = time.Date(2025, 5, 31, 23, 0, 0, 0, time.UTC)

	created, err := f.service.CreateChallenge(context.Background(), f.userID, tokyoInput())
	require.NoError(t, err)

	started, err := f.service.StartChallenge(context.Background(), created.ID.Hex(), f.userID, nil, "Asia/Tokyo")
	require.NoError(t, err)

	require.NotNil(t, started.EndsAt)
	assert.True(t, started.EndsAt.Equal(time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC)))
}

func TestStartChallengeRejectsPastDeadline(t *testing.T) {
	f := newFixture(t)

	created, err := f.service.CreateChallenge(context.Background(), f.userID, tokyoInput())
	require.NoError(t, err)

	past := f.clock.Now().Add(-time.Minute)
	_, err = f.service.StartChallenge(context.Background(), created.ID.Hex(), f.userID, &past, "")

	var ve *apperrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "ends_at", ve.Field)
}

func TestStartChallengeRejectsUnknownTimezone(t *testing.T) {
	f := newFixture(t)

	created, err := f.service.CreateChallenge(context.Background(), f.userID, tokyoInput())
	require.NoError(t, err)

	_, err = f.service.StartChallenge(context.Background(), created.ID.Hex(), f.userID, nil, "Mars/Olympus")

	var ve *apperrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "timezone", ve.Field)
}

func TestStartChallengeRequiresPending(t *testing.T) {
	f := newFixture(t)
	started := f.createAndStart(t)

	deadline := f.clock.Now().Add(time.Hour)
	_, err := f.service.StartChallenge(context.Background(), started.ID.Hex(), f.userID, &deadline, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestStartChallengeSingleActivePerUser(t *testing.T) {
	f := newFixture(t)
	f.createAndStart(t)

	second, err := f.service.CreateChallenge(context.Background(), f.userID, tokyoInput())
	require.NoError(t, err)

	deadline := f.clock.Now().Add(time.Hour)
	_, err = f.service.StartChallenge(context.Background(), second.ID.Hex(), f.userID, &deadline, "")
	assert.ErrorIs(t, err, apperrors.ErrActiveChallengeExists)

	got, err := f.service.GetChallenge(context.Background(), second.ID.Hex(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestConfirmArrivalWithinRadius(t *testing.T) {
	f := newFixture(t)
	started := f.createAndStart(t)

	f.clock.Advance(55 * time.Minute)

	completed, err := f.service.ConfirmArrival(context.Background(), started.ID.Hex(), f.userID, 35.65, 139.70, "Shibuya Station")
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	assert.True(t, completed.CompletedAt.Equal(f.clock.Now()))
	require.NotNil(t, completed.DistanceToTarget)
	assert.Less(t, *completed.DistanceToTarget, 100.0)

	assert.Empty(t, f.charger.calls, "completion never charges")

	require.Len(t, f.dispatcher.calls, 2)
	assert.Equal(t, models.NotifTypeChallengeCompleted, f.dispatcher.calls[1].notifType)
}

func TestConfirmArrivalTooFar(t *testing.T) {
	f := newFixture(t)
	started := f.createAndStart(t)

	// Reporting from home, kilometers away from the target.
	_, err := f.service.ConfirmArrival(context.Background(), started.ID.Hex(), f.userID, 35.68, 139.76, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	got, err := f.service.GetChallenge(context.Background(), started.ID.Hex(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status, "failed confirmation leaves the challenge active")
	assert.Empty(t, f.charger.calls)
}

func TestConfirmArrivalAfterDeadlineExpires(t *testing.T) {
	f := newFixture(t)
	started := f.createAndStart(t)

	f.clock.Advance(time.Hour + time.Second)

	_, err := f.service.ConfirmArrival(context.Background(), started.ID.Hex(), f.userID, 35.65, 139.70, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	got, err := f.service.GetChallenge(context.Background(), started.ID.Hex(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status, "late arrival settles the challenge as failed")

	require.Len(t, f.charger.calls, 1)
	assert.Equal(t, int64(500), f.charger.calls[0].amount)
}

func TestConfirmArrivalRejectsInvalidCoordinates(t *testing.T) {
	f := newFixture(t)
	started := f.createAndStart(t)

	_, err := f.service.ConfirmArrival(context.Background(), started.ID.Hex(), f.userID, 200, 139.70, "")

	var ve *apperrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "completion_location", ve.Field)
}

func TestExpireChargesPenalty(t *testing.T) {
	f := newFixture(t)
	started := f.createAndStart(t)

	f.clock.Advance(time.Hour + time.Second)

	active, err := f.service.GetChallenge(context.Background(), started.ID.Hex(), f.userID)
	require.NoError(t, err)
	require.NoError(t, f.service.Expire(context.Background(), active))

	got, err := f.service.GetChallenge(context.Background(), started.ID.Hex(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "pi_test_123", got.PaymentIntentID)

	require.Len(t, f.charger.calls, 1)
	assert.Equal(t, f.userID, f.charger.calls[0].userID)
	assert.Equal(t, int64(500), f.charger.calls[0].amount)

	require.Len(t, f.dispatcher.calls, 2)
	assert.Equal(t, models.NotifTypeChallengeFailed, f.dispatcher.calls[1].notifType)
}

func TestExpireBeforeDeadlineRejected(t *testing.T) {
	f := newFixture(t)
	started := f.createAndStart(t)

	active, err := f.service.GetChallenge(context.Background(), started.ID.Hex(), f.userID)
	require.NoError(t, err)

	err = f.service.Expire(context.Background(), active)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Empty(t, f.charger.calls)
}

func TestExpireIsIdempotent(t *testing.T) {
	f := newFixture(t)
	started := f.createAndStart(t)

	f.clock.Advance(time.Hour + time.Second)

	// Two callers holding the same still-active snapshot race to expire.
	first, err := f.service.GetChallenge(context.Background(), started.ID.Hex(), f.userID)
	require.NoError(t, err)
	second := *first

	require.NoError(t, f.service.Expire(context.Background(), first))
	err = f.service.Expire(context.Background(), &second)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	assert.Len(t, f.charger.calls, 1, "loser of the race must not double-charge")

	got, err := f.service.GetChallenge(context.Background(), started.ID.Hex(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
}

func TestExpireChargeFailureLeavesChallengeFailed(t *testing.T) {
	f := newFixture(t)
	f.charger.err = errors.New("card declined")
	started := f.createAndStart(t)

	f.clock.Advance(time.Hour + time.Second)

	active, err := f.service.GetChallenge(context.Background(), started.ID.Hex(), f.userID)
	require.NoError(t, err)
	require.NoError(t, f.service.Expire(context.Background(), active))

	got, err := f.service.GetChallenge(context.Background(), started.ID.Hex(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Empty(t, got.PaymentIntentID)
}

func TestGiveUp(t *testing.T) {
	f := newFixture(t)
	started := f.createAndStart(t)

	failed, err := f.service.GiveUp(context.Background(), started.ID.Hex(), f.userID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, failed.Status)
	require.Len(t, f.charger.calls, 1)
	assert.Equal(t, int64(500), f.charger.calls[0].amount)
}

func TestGiveUpRequiresActive(t *testing.T) {
	f := newFixture(t)

	created, err := f.service.CreateChallenge(context.Background(), f.userID, tokyoInput())
	require.NoError(t, err)

	_, err = f.service.GiveUp(context.Background(), created.ID.Hex(), f.userID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Empty(t, f.charger.calls)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	f.createAndStart(t)

	// A second user with a later deadline stays untouched by the sweep.
	otherUser := primitive.NewObjectID()
	other, err := f.service.CreateChallenge(context.Background(), otherUser, tokyoInput())
	require.NoError(t, err)
	farOut := f.clock.Now().Add(12 * time.Hour)
	_, err = f.service.StartChallenge(context.Background(), other.ID.Hex(), otherUser, &farOut, "")
	require.NoError(t, err)

	f.clock.Advance(time.Hour + time.Second)

	count, err := f.service.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stillActive, err := f.service.GetActiveChallenge(context.Background(), otherUser)
	require.NoError(t, err)
	require.NotNil(t, stillActive)
	assert.Equal(t, models.StatusActive, stillActive.Status)

	// Re-running immediately finds nothing new.
	count, err = f.service.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Len(t, f.charger.calls, 1)
}

func TestUpdateChallengeOnlyPending(t *testing.T) {
	f := newFixture(t)
	started := f.createAndStart(t)

	in := tokyoInput()
	in.PenaltyAmount = 1000

	_, err := f.service.UpdateChallenge(context.Background(), started.ID.Hex(), f.userID, in)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestUpdateChallengePending(t *testing.T) {
	f := newFixture(t)

	created, err := f.service.CreateChallenge(context.Background(), f.userID, tokyoInput())
	require.NoError(t, err)

	in := tokyoInput()
	in.PenaltyAmount = 1000

	updated, err := f.service.UpdateChallenge(context.Background(), created.ID.Hex(), f.userID, in)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), updated.PenaltyAmount)
	assert.Equal(t, models.StatusPending, updated.Status)
}

func TestDeleteChallenge(t *testing.T) {
	f := newFixture(t)

	created, err := f.service.CreateChallenge(context.Background(), f.userID, tokyoInput())
	require.NoError(t, err)
	require.NoError(t, f.service.DeleteChallenge(context.Background(), created.ID.Hex(), f.userID))

	_, err = f.service.GetChallenge(context.Background(), created.ID.Hex(), f.userID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeleteChallengeOnlyPending(t *testing.T) {
	f := newFixture(t)
	started := f.createAndStart(t)

	err := f.service.DeleteChallenge(context.Background(), started.ID.Hex(), f.userID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestGetChallengeUnknownID(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.GetChallenge(context.Background(), "not-a-hex-id", f.userID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.service.GetChallenge(context.Background(), primitive.NewObjectID().Hex(), f.userID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetChallengeWrongOwner(t *testing.T) {
	f := newFixture(t)

	created, err := f.service.CreateChallenge(context.Background(), f.userID, tokyoInput())
	require.NoError(t, err)

	_, err = f.service.GetChallenge(context.Background(), created.ID.Hex(), primitive.NewObjectID())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetActiveChallengeNone(t *testing.T) {
	f := newFixture(t)

	active, err := f.service.GetActiveChallenge(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Nil(t, active)
}
