package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mezaapp/meza/internal/repository"
	"github.com/sirupsen/logrus"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PaymentService charges challenge penalties through Stripe. It implements
// PenaltyCharger for the lifecycle engine.
type PaymentService struct {
	api      *client.API
	userRepo *repository.UserRepository
	currency string
}

func NewPaymentService(secretKey string, userRepo *repository.UserRepository, currency string) *PaymentService {
	api := &client.API{}
	api.Init(secretKey, nil)

	return &PaymentService{
		api:      api,
		userRepo: userRepo,
		currency: currency,
	}
}

// ChargePenalty creates and confirms an off-session PaymentIntent against
// the user's saved payment method and returns the intent id. The uuid
// idempotency key keeps a retried call from double-charging.
func (s *PaymentService) ChargePenalty(ctx context.Context, userID primitive.ObjectID, amount int64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("penalty amount must be positive, got %d", amount)
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load user for charge: %w", err)
	}
	if user.StripeCustomerID == "" || user.DefaultPaymentMethodID == "" {
		return "", fmt.Errorf("user %s has no payment method on file", userID.Hex())
	}

	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(s.currency),
		Customer:      stripe.String(user.StripeCustomerID),
		PaymentMethod: stripe.String(user.DefaultPaymentMethodID),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
		Description:   stripe.String("Meza challenge penalty"),
	}
	params.SetIdempotencyKey(uuid.NewString())

	intent, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return "", fmt.Errorf("payment intent creation failed: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"userID":    userID.Hex(),
		"amount":    amount,
		"intent_id": intent.ID,
	}).Info("Penalty charge requested")

	return intent.ID, nil
}
