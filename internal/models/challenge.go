package models

import (
	"math"
	"time"

	"github.com/mezaapp/meza/pkg/apperrors"
	"github.com/mezaapp/meza/pkg/geo"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChallengeStatus enumerates the lifecycle states of a challenge.
type ChallengeStatus string

const (
	StatusPending   ChallengeStatus = "pending"
	StatusActive    ChallengeStatus = "active"
	StatusCompleted ChallengeStatus = "completed"
	StatusFailed    ChallengeStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s ChallengeStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Challenge is a user's commitment to travel from home to a target location
// by a target time, with a monetary penalty charged on failure.
//
// Invariants: StartedAt is set iff status is active/completed/failed;
// CompletedAt is set iff status is completed/failed; PaymentIntentID is set
// only on a failed challenge whose penalty charge succeeded.
type Challenge struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID primitive.ObjectID `bson:"user_id" json:"user_id"`

	HomeLat     float64 `bson:"home_lat" json:"home_lat"`
	HomeLng     float64 `bson:"home_lng" json:"home_lng"`
	HomeAddress string  `bson:"home_address,omitempty" json:"home_address,omitempty"`

	TargetLat     float64 `bson:"target_lat" json:"target_lat"`
	TargetLng     float64 `bson:"target_lng" json:"target_lng"`
	TargetAddress string  `bson:"target_address,omitempty" json:"target_address,omitempty"`

	// Where the user actually woke up, when reported. Distinct from home.
	WakeupLat     *float64 `bson:"wakeup_lat,omitempty" json:"wakeup_lat,omitempty"`
	WakeupLng     *float64 `bson:"wakeup_lng,omitempty" json:"wakeup_lng,omitempty"`
	WakeupAddress string   `bson:"wakeup_address,omitempty" json:"wakeup_address,omitempty"`

	TargetTime  string     `bson:"target_time" json:"target_time"` // wall clock, e.g. "07:00"
	StartedAt   *time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	EndsAt      *time.Time `bson:"ends_at,omitempty" json:"ends_at,omitempty"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`

	PenaltyAmount   int64  `bson:"penalty_amount" json:"penalty_amount"` // smallest currency unit
	PaymentIntentID string `bson:"payment_intent_id,omitempty" json:"payment_intent_id,omitempty"`

	CompletionLat     *float64 `bson:"completion_lat,omitempty" json:"completion_lat,omitempty"`
	CompletionLng     *float64 `bson:"completion_lng,omitempty" json:"completion_lng,omitempty"`
	CompletionAddress string   `bson:"completion_address,omitempty" json:"completion_address,omitempty"`
	DistanceToTarget  *float64 `bson:"distance_to_target,omitempty" json:"distance_to_target,omitempty"` // meters

	Status    ChallengeStatus `bson:"status" json:"status"`
	CreatedAt time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time       `bson:"updated_at" json:"updated_at"`
}

// Home returns the home coordinate pair.
func (c *Challenge) Home() geo.Coordinate {
	return geo.Coordinate{Lat: c.HomeLat, Lng: c.HomeLng}
}

// Target returns the target coordinate pair.
func (c *Challenge) Target() geo.Coordinate {
	return geo.Coordinate{Lat: c.TargetLat, Lng: c.TargetLng}
}

// ChallengeInput is the payload accepted when creating or editing a
// pending challenge.
type ChallengeInput struct {
	TargetTime    string `json:"target_time"`
	PenaltyAmount int64  `json:"penalty_amount"`

	HomeLat     float64 `json:"home_lat"`
	HomeLng     float64 `json:"home_lng"`
	HomeAddress string  `json:"home_address"`

	TargetLat     float64 `json:"target_lat"`
	TargetLng     float64 `json:"target_lng"`
	TargetAddress string  `json:"target_address"`

	WakeupLat     *float64 `json:"wakeup_lat,omitempty"`
	WakeupLng     *float64 `json:"wakeup_lng,omitempty"`
	WakeupAddress string   `json:"wakeup_address,omitempty"`
}

// Validate checks the input field by field in a fixed order and returns the
// first violation: target_time, penalty_amount, home_latitude, home_longitude,
// target_latitude, target_longitude, wakeup_latitude, wakeup_longitude.
func (in *ChallengeInput) Validate() error {
	if in.TargetTime == "" {
		return &apperrors.ValidationError{Field: "target_time", Reason: "required"}
	}
	if _, err := time.Parse("15:04", in.TargetTime); err != nil {
		return &apperrors.ValidationError{Field: "target_time", Reason: "must be HH:MM"}
	}
	if in.PenaltyAmount <= 0 {
		return &apperrors.ValidationError{Field: "penalty_amount", Reason: "must be a positive integer"}
	}
	if err := checkLatitude("home_latitude", in.HomeLat); err != nil {
		return err
	}
	if err := checkLongitude("home_longitude", in.HomeLng); err != nil {
		return err
	}
	if err := checkLatitude("target_latitude", in.TargetLat); err != nil {
		return err
	}
	if err := checkLongitude("target_longitude", in.TargetLng); err != nil {
		return err
	}
	if in.WakeupLat != nil {
		if err := checkLatitude("wakeup_latitude", *in.WakeupLat); err != nil {
			return err
		}
	}
	if in.WakeupLng != nil {
		if err := checkLongitude("wakeup_longitude", *in.WakeupLng); err != nil {
			return err
		}
	}
	return nil
}

func checkLatitude(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &apperrors.ValidationError{Field: field, Reason: "must be a finite number"}
	}
	if v < -90 || v > 90 {
		return &apperrors.ValidationError{Field: field, Reason: "must be between -90 and 90"}
	}
	return nil
}

func checkLongitude(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &apperrors.ValidationError{Field: field, Reason: "must be a finite number"}
	}
	if v < -180 || v > 180 {
		return &apperrors.ValidationError{Field: field, Reason: "must be between -180 and 180"}
	}
	return nil
}
