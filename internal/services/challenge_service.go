package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mezaapp/meza/internal/metrics"
	"github.com/mezaapp/meza/internal/models"
	"github.com/mezaapp/meza/pkg/apperrors"
	"github.com/mezaapp/meza/pkg/geo"
	"github.com/mezaapp/meza/pkg/logger"
	"github.com/mezaapp/meza/pkg/timeutil"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChallengeStore is the datastore contract the lifecycle engine needs. The
// transition methods are status-guarded conditional writes: they return
// apperrors.ErrInvalidTransition when the document is no longer in the
// expected source state.
type ChallengeStore interface {
	CreateChallenge(ctx context.Context, challenge *models.Challenge) (*models.Challenge, error)
	GetChallengeByID(ctx context.Context, id, userID primitive.ObjectID) (*models.Challenge, error)
	GetChallenges(ctx context.Context, userID primitive.ObjectID, status models.ChallengeStatus) ([]models.Challenge, error)
	GetActiveChallenge(ctx context.Context, userID primitive.ObjectID) (*models.Challenge, error)
	GetExpiredActive(ctx context.Context, now time.Time) ([]models.Challenge, error)
	GetActiveEndingBetween(ctx context.Context, from, to time.Time) ([]models.Challenge, error)
	UpdatePending(ctx context.Context, id, userID primitive.ObjectID, in *models.ChallengeInput) (*models.Challenge, error)
	DeletePending(ctx context.Context, id, userID primitive.ObjectID) error
	TransitionToActive(ctx context.Context, id, userID primitive.ObjectID, startedAt, endsAt time.Time) (*models.Challenge, error)
	TransitionToCompleted(ctx context.Context, id primitive.ObjectID, completedAt time.Time, lat, lng float64, address string, distance float64) (*models.Challenge, error)
	TransitionToFailed(ctx context.Context, id primitive.ObjectID, completedAt time.Time) (*models.Challenge, error)
	SetPaymentIntent(ctx context.Context, id primitive.ObjectID, intentID string) error
}

// PenaltyCharger requests a penalty charge from the payment processor and
// returns a charge reference.
type PenaltyCharger interface {
	ChargePenalty(ctx context.Context, userID primitive.ObjectID, amount int64) (string, error)
}

// NotificationDispatcher is the fire-and-forget side channel invoked on
// state transitions. Failures are never fatal to the transition.
type NotificationDispatcher interface {
	Notify(ctx context.Context, userID primitive.ObjectID, notifType, title, body string, targetID *primitive.ObjectID) error
}

const (
	chargeTimeout   = 10 * time.Second
	dispatchTimeout = 5 * time.Second
)

// ChallengeService is the challenge lifecycle engine. Every mutation past
// the pending state goes through its transition methods; the store's
// conditional writes re-validate each guard at write time, so concurrent
// transition attempts on one challenge serialize.
type ChallengeService struct {
	store         ChallengeStore
	charger       PenaltyCharger
	dispatcher    NotificationDispatcher
	clock         timeutil.Clock
	arrivalRadius float64
}

// NewChallengeService creates a new instance of ChallengeService.
// arrivalRadius is the maximum distance from the target, in meters, still
// counted as arrived.
func NewChallengeService(store ChallengeStore, charger PenaltyCharger, dispatcher NotificationDispatcher, clock timeutil.Clock, arrivalRadius float64) *ChallengeService {
	return &ChallengeService{
		store:         store,
		charger:       charger,
		dispatcher:    dispatcher,
		clock:         clock,
		arrivalRadius: arrivalRadius,
	}
}

// CreateChallenge validates the input and stores a new pending challenge.
func (s *ChallengeService) CreateChallenge(ctx context.Context, userID primitive.ObjectID, in *models.ChallengeInput) (*models.Challenge, error) {
	if err := in.Validate(); err != nil {
		logger.Log.WithError(err).Warn("Challenge input rejected")
		return nil, err
	}

	challenge := &models.Challenge{
		UserID:        userID,
		TargetTime:    in.TargetTime,
		PenaltyAmount: in.PenaltyAmount,
		HomeLat:       in.HomeLat,
		HomeLng:       in.HomeLng,
		HomeAddress:   in.HomeAddress,
		TargetLat:     in.TargetLat,
		TargetLng:     in.TargetLng,
		TargetAddress: in.TargetAddress,
		WakeupLat:     in.WakeupLat,
		WakeupLng:     in.WakeupLng,
		WakeupAddress: in.WakeupAddress,
	}

	created, err := s.store.CreateChallenge(ctx, challenge)
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	metrics.RecordTransition(string(models.StatusPending))
	return created, nil
}

// GetChallenge retrieves a challenge owned by the user.
func (s *ChallengeService) GetChallenge(ctx context.Context, id string, userID primitive.ObjectID) (*models.Challenge, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.ErrNotFound
	}
	return s.store.GetChallengeByID(ctx, objID, userID)
}

// GetChallenges lists the user's challenges with an optional status filter.
func (s *ChallengeService) GetChallenges(ctx context.Context, userID primitive.ObjectID, status models.ChallengeStatus) ([]models.Challenge, error) {
	return s.store.GetChallenges(ctx, userID, status)
}

// GetActiveChallenge returns the user's active challenge, or nil when the
// user has none.
func (s *ChallengeService) GetActiveChallenge(ctx context.Context, userID primitive.ObjectID) (*models.Challenge, error) {
	challenge, err := s.store.GetActiveChallenge(ctx, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return challenge, nil
}

// TimeRemaining returns the whole seconds until the challenge deadline,
// zero for anything without one still in the future.
func (s *ChallengeService) TimeRemaining(challenge *models.Challenge) int64 {
	if challenge.EndsAt == nil {
		return 0
	}
	return timeutil.SecondsRemaining(*challenge.EndsAt, s.clock.Now())
}

// UpdateChallenge edits a pending challenge. Active and terminal
// challenges are immutable outside the transition table.
func (s *ChallengeService) UpdateChallenge(ctx context.Context, id string, userID primitive.ObjectID, in *models.ChallengeInput) (*models.Challenge, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.ErrNotFound
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	// Existence and ownership first so an unknown id reads as NotFound,
	// not as a transition failure.
	if _, err := s.store.GetChallengeByID(ctx, objID, userID); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdatePending(ctx, objID, userID, in)
	if errors.Is(err, apperrors.ErrInvalidTransition) {
		return nil, fmt.Errorf("%w: only pending challenges can be edited", apperrors.ErrInvalidTransition)
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteChallenge removes a pending challenge.
func (s *ChallengeService) DeleteChallenge(ctx context.Context, id string, userID primitive.ObjectID) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperrors.ErrNotFound
	}

	if _, err := s.store.GetChallengeByID(ctx, objID, userID); err != nil {
		return err
	}

	if err := s.store.DeletePending(ctx, objID, userID); err != nil {
		if errors.Is(err, apperrors.ErrInvalidTransition) {
			return fmt.Errorf("%w: only pending challenges can be deleted", apperrors.ErrInvalidTransition)
		}
		return err
	}
	return nil
}

// StartChallenge transitions pending -> active, computing the absolute
// deadline. When endsAt is nil the deadline is the next occurrence of the
// challenge's target time in the given timezone (UTC when empty). A user
// may hold at most one active challenge.
func (s *ChallengeService) StartChallenge(ctx context.Context, id string, userID primitive.ObjectID, endsAt *time.Time, timezone string) (*models.Challenge, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.ErrNotFound
	}

	challenge, err := s.store.GetChallengeByID(ctx, objID, userID)
	if err != nil {
		return nil, err
	}
	if challenge.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: challenge is %s, not pending", apperrors.ErrInvalidTransition, challenge.Status)
	}

	if active, err := s.store.GetActiveChallenge(ctx, userID); err == nil && active != nil {
		return nil, apperrors.ErrActiveChallengeExists
	}

	now := s.clock.Now()
	deadline, err := s.resolveDeadline(challenge, now, endsAt, timezone)
	if err != nil {
		return nil, err
	}

	// The guard is re-validated by the conditional write: a concurrent
	// start, edit or delete in between makes this miss.
	started, err := s.store.TransitionToActive(ctx, objID, userID, now, deadline)
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition(string(models.StatusActive))
	logger.Log.WithFields(logrus.Fields{
		"challenge_id": started.ID.Hex(),
		"ends_at":      deadline,
	}).Info("Challenge started")

	s.notify(started.UserID, models.NotifTypeChallengeStarted,
		"Challenge started",
		fmt.Sprintf("Reach %s by %s or pay up!", displayTarget(started), deadline.Format("15:04 MST")),
		&started.ID)

	return started, nil
}

// ConfirmArrival transitions active -> completed when the reported
// location is within the arrival radius and the deadline has not passed.
// A confirmation after the deadline expires the challenge instead.
func (s *ChallengeService) ConfirmArrival(ctx context.Context, id string, userID primitive.ObjectID, lat, lng float64, address string) (*models.Challenge, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.ErrNotFound
	}

	challenge, err := s.store.GetChallengeByID(ctx, objID, userID)
	if err != nil {
		return nil, err
	}
	if challenge.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: challenge is %s, not active", apperrors.ErrInvalidTransition, challenge.Status)
	}

	now := s.clock.Now()
	if challenge.EndsAt != nil && timeutil.IsExpired(*challenge.EndsAt, now) {
		if err := s.Expire(ctx, challenge); err != nil && !errors.Is(err, apperrors.ErrInvalidTransition) {
			logger.Log.WithError(err).Error("Failed to expire challenge on late arrival")
		}
		return nil, fmt.Errorf("%w: deadline has passed", apperrors.ErrInvalidTransition)
	}

	location := geo.Coordinate{Lat: lat, Lng: lng}
	distance, err := geo.Distance(location, challenge.Target())
	if err != nil {
		return nil, &apperrors.ValidationError{Field: "completion_location", Reason: "invalid coordinates"}
	}
	if distance > s.arrivalRadius {
		return nil, fmt.Errorf("%w: %.0fm from target, arrival radius is %.0fm",
			apperrors.ErrInvalidTransition, distance, s.arrivalRadius)
	}

	completed, err := s.store.TransitionToCompleted(ctx, objID, now, lat, lng, address, distance)
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition(string(models.StatusCompleted))
	logger.Log.WithFields(logrus.Fields{
		"challenge_id": completed.ID.Hex(),
		"distance_m":   distance,
	}).Info("Challenge completed")

	s.notify(completed.UserID, models.NotifTypeChallengeCompleted,
		"Challenge completed",
		fmt.Sprintf("You made it to %s with %d seconds to spare.", displayTarget(completed), timeutil.SecondsRemaining(*completed.EndsAt, now)),
		&completed.ID)

	return completed, nil
}

// Expire transitions active -> failed once the deadline has passed, then
// requests the penalty charge. The charge is a side effect of the already
// durable transition: a charge failure leaves the challenge failed with no
// payment reference. Redundant calls return ErrInvalidTransition, which
// idempotent callers (the sweep) treat as a no-op.
func (s *ChallengeService) Expire(ctx context.Context, challenge *models.Challenge) error {
	if challenge.Status != models.StatusActive {
		return fmt.Errorf("%w: challenge is %s, not active", apperrors.ErrInvalidTransition, challenge.Status)
	}

	now := s.clock.Now()
	if challenge.EndsAt == nil || !timeutil.IsExpired(*challenge.EndsAt, now) {
		return fmt.Errorf("%w: deadline has not passed", apperrors.ErrInvalidTransition)
	}

	failed, err := s.store.TransitionToFailed(ctx, challenge.ID, now)
	if err != nil {
		return err
	}

	metrics.RecordTransition(string(models.StatusFailed))
	logger.Log.WithField("challenge_id", failed.ID.Hex()).Info("Challenge failed on expiry")

	s.chargePenalty(failed)

	s.notify(failed.UserID, models.NotifTypeChallengeFailed,
		"Challenge failed",
		fmt.Sprintf("You didn't reach %s in time. The %d penalty will be charged.", displayTarget(failed), failed.PenaltyAmount),
		&failed.ID)

	return nil
}

// GiveUp lets the owner concede an active challenge immediately. Same
// terminal state and penalty as expiry.
func (s *ChallengeService) GiveUp(ctx context.Context, id string, userID primitive.ObjectID) (*models.Challenge, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.ErrNotFound
	}

	challenge, err := s.store.GetChallengeByID(ctx, objID, userID)
	if err != nil {
		return nil, err
	}
	if challenge.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: challenge is %s, not active", apperrors.ErrInvalidTransition, challenge.Status)
	}

	failed, err := s.store.TransitionToFailed(ctx, objID, s.clock.Now())
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition(string(models.StatusFailed))
	logger.Log.WithField("challenge_id", failed.ID.Hex()).Info("Challenge conceded by owner")

	s.chargePenalty(failed)

	s.notify(failed.UserID, models.NotifTypeChallengeFailed,
		"Challenge failed",
		fmt.Sprintf("You gave up on reaching %s. The %d penalty will be charged.", displayTarget(failed), failed.PenaltyAmount),
		&failed.ID)

	return failed, nil
}

// SweepExpired expires every active challenge whose deadline has passed.
// Safe to run redundantly: a challenge another trigger already settled
// just misses the conditional write.
func (s *ChallengeService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.store.GetExpiredActive(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to fetch expired challenges: %w", err)
	}

	count := 0
	for i := range expired {
		if err := s.Expire(ctx, &expired[i]); err != nil {
			if errors.Is(err, apperrors.ErrInvalidTransition) {
				continue
			}
			logger.Log.WithError(err).WithField("challenge_id", expired[i].ID.Hex()).Error("Sweep failed to expire challenge")
			continue
		}
		count++
	}
	return count, nil
}

// ListActiveEndingBetween returns active challenges with a deadline in
// (from, to]. Used by the reminder job.
func (s *ChallengeService) ListActiveEndingBetween(ctx context.Context, from, to time.Time) ([]models.Challenge, error) {
	return s.store.GetActiveEndingBetween(ctx, from, to)
}

// chargePenalty requests the penalty charge after a failed transition. The
// transition is already committed; the charge runs on its own bounded
// context so a slow processor cannot stall the caller's request.
func (s *ChallengeService) chargePenalty(challenge *models.Challenge) {
	ctx, cancel := context.WithTimeout(context.Background(), chargeTimeout)
	defer cancel()

	intentID, err := s.charger.ChargePenalty(ctx, challenge.UserID, challenge.PenaltyAmount)
	if err != nil {
		metrics.RecordCharge("failed")
		logger.Log.WithError(err).WithField("challenge_id", challenge.ID.Hex()).Error("Penalty charge failed")
		return
	}

	metrics.RecordCharge("succeeded")
	challenge.PaymentIntentID = intentID
	if err := s.store.SetPaymentIntent(ctx, challenge.ID, intentID); err != nil {
		logger.Log.WithError(err).WithField("challenge_id", challenge.ID.Hex()).Error("Failed to record payment intent")
	}
}

// notify dispatches a notification after a committed transition. Dispatch
// failures are logged, never propagated.
func (s *ChallengeService) notify(userID primitive.ObjectID, notifType, title, body string, targetID *primitive.ObjectID) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if err := s.dispatcher.Notify(ctx, userID, notifType, title, body, targetID); err != nil {
		logger.Log.WithError(err).WithField("type", notifType).Warn("Notification dispatch failed")
	}
}

// resolveDeadline picks the challenge deadline: an explicit one when given,
// otherwise the next occurrence of the target wall-clock time.
func (s *ChallengeService) resolveDeadline(challenge *models.Challenge, now time.Time, endsAt *time.Time, timezone string) (time.Time, error) {
	if endsAt != nil {
		deadline := endsAt.UTC()
		if !deadline.After(now) {
			return time.Time{}, &apperrors.ValidationError{Field: "ends_at", Reason: "must be in the future"}
		}
		return deadline, nil
	}

	loc := time.UTC
	if timezone != "" {
		parsed, err := time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, &apperrors.ValidationError{Field: "timezone", Reason: "unknown timezone"}
		}
		loc = parsed
	}

	target, err := time.Parse("15:04", challenge.TargetTime)
	if err != nil {
		return time.Time{}, &apperrors.ValidationError{Field: "target_time", Reason: "must be HH:MM"}
	}

	local := now.In(loc)
	deadline := time.Date(local.Year(), local.Month(), local.Day(), target.Hour(), target.Minute(), 0, 0, loc)
	if !deadline.After(local) {
		deadline = deadline.AddDate(0, 0, 1)
	}
	return deadline.UTC(), nil
}

func displayTarget(challenge *models.Challenge) string {
	if challenge.TargetAddress != "" {
		return challenge.TargetAddress
	}
	return "your target"
}
