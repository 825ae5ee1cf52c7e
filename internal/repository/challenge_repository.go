package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mezaapp/meza/internal/models"
	"github.com/mezaapp/meza/pkg/apperrors"
	"github.com/mezaapp/meza/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ChallengeRepository handles database operations related to challenges.
// All state transitions are status-guarded conditional writes, so two
// concurrent transitions can never both succeed from the same source state.
type ChallengeRepository struct {
	collection *mongo.Collection
}

// NewChallengeRepository creates a new instance of ChallengeRepository.
func NewChallengeRepository(db *mongo.Database) *ChallengeRepository {
	return &ChallengeRepository{
		collection: db.Collection("challenges"),
	}
}

// EnsureIndexes creates the partial unique index that enforces at most one
// active challenge per user at the datastore level.
func (r *ChallengeRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().
				SetName("one_active_challenge_per_user").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": models.StatusActive}),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "ends_at", Value: 1}},
			Options: options.Index().
				SetName("status_ends_at"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create challenge indexes: %v", err)
	}
	return nil
}

// CreateChallenge inserts a new challenge in pending state.
func (r *ChallengeRepository) CreateChallenge(ctx context.Context, challenge *models.Challenge) (*models.Challenge, error) {
	challenge.Status = models.StatusPending
	challenge.CreatedAt = time.Now()
	challenge.UpdatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, challenge)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to insert challenge")
		return nil, fmt.Errorf("failed to insert challenge: %v", err)
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		logger.Log.Error("Failed to cast inserted ID")
		return nil, fmt.Errorf("failed to cast inserted ID")
	}
	challenge.ID = insertedID

	logger.Log.WithField("challenge_id", challenge.ID.Hex()).Info("Challenge created successfully")
	return challenge, nil
}

// GetChallengeByID fetches a challenge owned by the given user.
func (r *ChallengeRepository) GetChallengeByID(ctx context.Context, id, userID primitive.ObjectID) (*models.Challenge, error) {
	var challenge models.Challenge

	err := r.collection.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&challenge)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		logger.Log.WithError(err).WithField("challenge_id", id.Hex()).Error("Failed to find challenge by ID")
		return nil, fmt.Errorf("failed to find challenge: %v", err)
	}

	return &challenge, nil
}

// GetChallenges fetches a user's challenges, newest first, with an optional
// status filter.
func (r *ChallengeRepository) GetChallenges(ctx context.Context, userID primitive.ObjectID, status models.ChallengeStatus) ([]models.Challenge, error) {
	filter := bson.M{"user_id": userID}
	if status != "" {
		filter["status"] = status
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		logger.Log.WithError(err).WithField("user_id", userID.Hex()).Error("Failed to fetch challenges")
		return nil, fmt.Errorf("failed to fetch challenges: %v", err)
	}
	defer cursor.Close(ctx)

	var challenges []models.Challenge
	if err := cursor.All(ctx, &challenges); err != nil {
		return nil, fmt.Errorf("failed to decode challenges: %v", err)
	}
	return challenges, nil
}

// GetActiveChallenge returns the user's active challenge, or ErrNotFound
// when there is none. The partial unique index guarantees at most one.
func (r *ChallengeRepository) GetActiveChallenge(ctx context.Context, userID primitive.ObjectID) (*models.Challenge, error) {
	var challenge models.Challenge

	err := r.collection.FindOne(ctx, bson.M{"user_id": userID, "status": models.StatusActive}).Decode(&challenge)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		logger.Log.WithError(err).WithField("user_id", userID.Hex()).Error("Failed to find active challenge")
		return nil, fmt.Errorf("failed to find active challenge: %v", err)
	}

	return &challenge, nil
}

// GetExpiredActive returns active challenges whose deadline lies strictly
// before now. Used by the expiry sweep.
func (r *ChallengeRepository) GetExpiredActive(ctx context.Context, now time.Time) ([]models.Challenge, error) {
	filter := bson.M{
		"status":  models.StatusActive,
		"ends_at": bson.M{"$lt": now},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to fetch expired challenges")
		return nil, fmt.Errorf("failed to fetch expired challenges: %v", err)
	}
	defer cursor.Close(ctx)

	var challenges []models.Challenge
	if err := cursor.All(ctx, &challenges); err != nil {
		return nil, fmt.Errorf("failed to decode expired challenges: %v", err)
	}
	return challenges, nil
}

// GetActiveEndingBetween returns active challenges whose deadline falls in
// (from, to]. Used by the reminder job.
func (r *ChallengeRepository) GetActiveEndingBetween(ctx context.Context, from, to time.Time) ([]models.Challenge, error) {
	filter := bson.M{
		"status":  models.StatusActive,
		"ends_at": bson.M{"$gt": from, "$lte": to},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch challenges ending soon: %v", err)
	}
	defer cursor.Close(ctx)

	var challenges []models.Challenge
	if err := cursor.All(ctx, &challenges); err != nil {
		return nil, fmt.Errorf("failed to decode challenges ending soon: %v", err)
	}
	return challenges, nil
}

// UpdatePending replaces the editable fields of a pending challenge. The
// write is conditional on the challenge still being pending and owned by
// the user; ErrInvalidTransition otherwise.
func (r *ChallengeRepository) UpdatePending(ctx context.Context, id, userID primitive.ObjectID, in *models.ChallengeInput) (*models.Challenge, error) {
	filter := bson.M{"_id": id, "user_id": userID, "status": models.StatusPending}
	update := bson.M{"$set": bson.M{
		"target_time":    in.TargetTime,
		"penalty_amount": in.PenaltyAmount,
		"home_lat":       in.HomeLat,
		"home_lng":       in.HomeLng,
		"home_address":   in.HomeAddress,
		"target_lat":     in.TargetLat,
		"target_lng":     in.TargetLng,
		"target_address": in.TargetAddress,
		"wakeup_lat":     in.WakeupLat,
		"wakeup_lng":     in.WakeupLng,
		"wakeup_address": in.WakeupAddress,
		"updated_at":     time.Now(),
	}}

	return r.findOneAndUpdate(ctx, filter, update)
}

// DeletePending removes a pending challenge owned by the user.
func (r *ChallengeRepository) DeletePending(ctx context.Context, id, userID primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID, "status": models.StatusPending})
	if err != nil {
		logger.Log.WithError(err).WithField("challenge_id", id.Hex()).Error("Failed to delete challenge")
		return fmt.Errorf("failed to delete challenge: %v", err)
	}
	if result.DeletedCount == 0 {
		return apperrors.ErrInvalidTransition
	}

	logger.Log.WithField("challenge_id", id.Hex()).Info("Challenge deleted successfully")
	return nil
}

// TransitionToActive atomically moves a pending challenge to active,
// setting started_at and the absolute deadline. The partial unique index
// turns a concurrent second activation into ErrActiveChallengeExists.
func (r *ChallengeRepository) TransitionToActive(ctx context.Context, id, userID primitive.ObjectID, startedAt, endsAt time.Time) (*models.Challenge, error) {
	filter := bson.M{"_id": id, "user_id": userID, "status": models.StatusPending}
	update := bson.M{"$set": bson.M{
		"status":     models.StatusActive,
		"started_at": startedAt,
		"ends_at":    endsAt,
		"updated_at": time.Now(),
	}}

	challenge, err := r.findOneAndUpdate(ctx, filter, update)
	if mongo.IsDuplicateKeyError(err) {
		return nil, apperrors.ErrActiveChallengeExists
	}
	return challenge, err
}

// TransitionToCompleted atomically moves an active challenge to completed,
// recording the confirmed arrival location and its distance to the target.
func (r *ChallengeRepository) TransitionToCompleted(ctx context.Context, id primitive.ObjectID, completedAt time.Time, lat, lng float64, address string, distance float64) (*models.Challenge, error) {
	filter := bson.M{"_id": id, "status": models.StatusActive}
	update := bson.M{"$set": bson.M{
		"status":             models.StatusCompleted,
		"completed_at":       completedAt,
		"completion_lat":     lat,
		"completion_lng":     lng,
		"completion_address": address,
		"distance_to_target": distance,
		"updated_at":         time.Now(),
	}}

	return r.findOneAndUpdate(ctx, filter, update)
}

// TransitionToFailed atomically moves an active challenge to failed.
func (r *ChallengeRepository) TransitionToFailed(ctx context.Context, id primitive.ObjectID, completedAt time.Time) (*models.Challenge, error) {
	filter := bson.M{"_id": id, "status": models.StatusActive}
	update := bson.M{"$set": bson.M{
		"status":       models.StatusFailed,
		"completed_at": completedAt,
		"updated_at":   time.Now(),
	}}

	return r.findOneAndUpdate(ctx, filter, update)
}

// SetPaymentIntent records the charge reference on a failed challenge.
func (r *ChallengeRepository) SetPaymentIntent(ctx context.Context, id primitive.ObjectID, intentID string) error {
	filter := bson.M{"_id": id, "status": models.StatusFailed}
	update := bson.M{"$set": bson.M{"payment_intent_id": intentID, "updated_at": time.Now()}}

	_, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		logger.Log.WithError(err).WithField("challenge_id", id.Hex()).Error("Failed to record payment intent")
		return fmt.Errorf("failed to record payment intent: %v", err)
	}
	return nil
}

// findOneAndUpdate runs a guarded update and returns the updated document.
// A guard miss (no matching document) surfaces as ErrInvalidTransition;
// callers that need NotFound semantics check existence first.
func (r *ChallengeRepository) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*models.Challenge, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var challenge models.Challenge
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&challenge)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.ErrInvalidTransition
	}
	if err != nil {
		logger.Log.WithError(err).Error("Challenge conditional update failed")
		return nil, err
	}
	return &challenge, nil
}
