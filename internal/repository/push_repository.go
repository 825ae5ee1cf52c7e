package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mezaapp/meza/internal/models"
	"github.com/mezaapp/meza/pkg/apperrors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type PushRepository struct {
	collection *mongo.Collection
}

func NewPushRepository(db *mongo.Database) *PushRepository {
	return &PushRepository{
		collection: db.Collection("push_subscriptions"),
	}
}

// EnsureIndexes enforces one subscription document per (user, endpoint).
func (r *PushRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "endpoint", Value: 1}},
		Options: options.Index().SetName("user_endpoint").SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create push subscription index: %v", err)
	}
	return nil
}

// UpsertSubscription inserts or refreshes the subscription for an endpoint.
func (r *PushRepository) UpsertSubscription(ctx context.Context, sub *models.PushSubscription) error {
	filter := bson.M{"user_id": sub.UserID, "endpoint": sub.Endpoint}
	update := bson.M{
		"$set": bson.M{
			"p256dh":     sub.P256dh,
			"auth":       sub.Auth,
			"user_agent": sub.UserAgent,
			"active":     true,
			"updated_at": time.Now(),
		},
		"$setOnInsert": bson.M{
			"user_id":    sub.UserID,
			"endpoint":   sub.Endpoint,
			"created_at": time.Now(),
		},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		logrus.WithError(err).Error("Failed to upsert push subscription")
		return fmt.Errorf("failed to upsert push subscription: %v", err)
	}
	return nil
}

// GetActiveSubscriptions returns the user's active delivery endpoints.
func (r *PushRepository) GetActiveSubscriptions(ctx context.Context, userID primitive.ObjectID) ([]models.PushSubscription, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID, "active": true})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch push subscriptions: %v", err)
	}
	defer cursor.Close(ctx)

	var subs []models.PushSubscription
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, fmt.Errorf("failed to decode push subscriptions: %v", err)
	}
	return subs, nil
}

// DeactivateSubscription marks an endpoint inactive. Used both for explicit
// unsubscribes and for endpoints the push service reports as gone.
func (r *PushRepository) DeactivateSubscription(ctx context.Context, userID primitive.ObjectID, endpoint string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": userID, "endpoint": endpoint},
		bson.M{"$set": bson.M{"active": false, "updated_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate push subscription: %v", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
