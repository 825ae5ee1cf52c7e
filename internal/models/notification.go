package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification types emitted by the challenge lifecycle.
const (
	NotifTypeChallengeStarted   = "challenge_started"
	NotifTypeChallengeCompleted = "challenge_completed"
	NotifTypeChallengeFailed    = "challenge_failed"
	NotifTypeChallengeReminder  = "challenge_reminder"
)

type Notification struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID       primitive.ObjectID  `bson:"user_id" json:"user_id"`
	Type         string              `bson:"type" json:"type"`
	Title        string              `bson:"title" json:"title"`
	Body         string              `bson:"body" json:"body"`
	Read         bool                `bson:"read" json:"read"`
	PushSent     bool                `bson:"push_sent" json:"push_sent"`
	TargetID     *primitive.ObjectID `bson:"target_id,omitempty" json:"target_id,omitempty"` // related challenge
	ScheduledFor *time.Time          `bson:"scheduled_for,omitempty" json:"scheduled_for,omitempty"`
	CreatedAt    time.Time           `bson:"created_at" json:"created_at"`
	ExpiresAt    time.Time           `bson:"expires_at" json:"expires_at"` // For auto-deletion after 7 days
}
