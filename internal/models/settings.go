package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserSettings holds per-user preferences, 1:1 with User. Created lazily
// with defaults on first access.
type UserSettings struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID             primitive.ObjectID `bson:"user_id" json:"user_id"`
	PushEnabled        bool               `bson:"push_enabled" json:"push_enabled"`
	EmailEnabled       bool               `bson:"email_enabled" json:"email_enabled"`
	ReminderLeadMinute int                `bson:"reminder_lead_minutes" json:"reminder_lead_minutes"`
	Theme              string             `bson:"theme" json:"theme"` // "light", "dark", "system"
	Timezone           string             `bson:"timezone" json:"timezone"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at" json:"updated_at"`
}

// DefaultSettings returns the settings a user starts with.
func DefaultSettings(userID primitive.ObjectID) *UserSettings {
	return &UserSettings{
		UserID:             userID,
		PushEnabled:        true,
		EmailEnabled:       false,
		ReminderLeadMinute: 30,
		Theme:              "system",
		Timezone:           "UTC",
	}
}
