package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mezaapp/meza/internal/models"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SettingsRepository struct {
	collection *mongo.Collection
}

func NewSettingsRepository(db *mongo.Database) *SettingsRepository {
	return &SettingsRepository{
		collection: db.Collection("user_settings"),
	}
}

// GetOrCreate returns the user's settings, inserting the defaults on first
// access. The upsert keeps concurrent first reads from double-inserting.
func (r *SettingsRepository) GetOrCreate(ctx context.Context, userID primitive.ObjectID) (*models.UserSettings, error) {
	var settings models.UserSettings

	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&settings)
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to fetch settings: %v", err)
	}

	defaults := models.DefaultSettings(userID)
	defaults.CreatedAt = time.Now()
	defaults.UpdatedAt = time.Now()

	filter := bson.M{"user_id": userID}
	update := bson.M{"$setOnInsert": defaults}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&settings); err != nil {
		logrus.WithError(err).WithField("user_id", userID.Hex()).Error("Failed to create default settings")
		return nil, fmt.Errorf("failed to create default settings: %v", err)
	}
	return &settings, nil
}

// Update replaces the user's preference fields.
func (r *SettingsRepository) Update(ctx context.Context, userID primitive.ObjectID, settings *models.UserSettings) (*models.UserSettings, error) {
	filter := bson.M{"user_id": userID}
	update := bson.M{"$set": bson.M{
		"push_enabled":          settings.PushEnabled,
		"email_enabled":         settings.EmailEnabled,
		"reminder_lead_minutes": settings.ReminderLeadMinute,
		"theme":                 settings.Theme,
		"timezone":              settings.Timezone,
		"updated_at":            time.Now(),
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var updated models.UserSettings
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated); err != nil {
		logrus.WithError(err).WithField("user_id", userID.Hex()).Error("Failed to update settings")
		return nil, fmt.Errorf("failed to update settings: %v", err)
	}
	return &updated, nil
}
