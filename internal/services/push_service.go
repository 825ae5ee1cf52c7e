package services

import (
	"context"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/mezaapp/meza/internal/metrics"
	"github.com/mezaapp/meza/internal/models"
	"github.com/mezaapp/meza/internal/repository"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PushService delivers Web Push messages to a user's stored subscriptions.
type PushService struct {
	repo         *repository.PushRepository
	vapidPublic  string
	vapidPrivate string
	subscriber   string
}

func NewPushService(repo *repository.PushRepository, vapidPublic, vapidPrivate, subscriber string) *PushService {
	return &PushService{
		repo:         repo,
		vapidPublic:  vapidPublic,
		vapidPrivate: vapidPrivate,
		subscriber:   subscriber,
	}
}

// Configured reports whether VAPID keys are present.
func (s *PushService) Configured() bool {
	return s.vapidPublic != "" && s.vapidPrivate != ""
}

// PublicKey returns the VAPID public key clients subscribe with.
func (s *PushService) PublicKey() string {
	return s.vapidPublic
}

// Subscribe upserts a push subscription for the user.
func (s *PushService) Subscribe(ctx context.Context, userID primitive.ObjectID, endpoint, p256dh, auth, userAgent string) error {
	if endpoint == "" || p256dh == "" || auth == "" {
		return fmt.Errorf("endpoint, p256dh and auth are required")
	}

	sub := &models.PushSubscription{
		UserID:    userID,
		Endpoint:  endpoint,
		P256dh:    p256dh,
		Auth:      auth,
		UserAgent: userAgent,
	}
	return s.repo.UpsertSubscription(ctx, sub)
}

// Unsubscribe deactivates a user's endpoint.
func (s *PushService) Unsubscribe(ctx context.Context, userID primitive.ObjectID, endpoint string) error {
	return s.repo.DeactivateSubscription(ctx, userID, endpoint)
}

// SendToUser pushes the payload to every active subscription of the user
// and returns how many deliveries succeeded. Endpoints the push service
// reports as gone are deactivated along the way.
func (s *PushService) SendToUser(ctx context.Context, userID primitive.ObjectID, payload []byte) int {
	if !s.Configured() {
		return 0
	}

	subs, err := s.repo.GetActiveSubscriptions(ctx, userID)
	if err != nil {
		logrus.WithError(err).Warn("Failed to load push subscriptions")
		return 0
	}

	sent := 0
	for _, sub := range subs {
		target := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256dh,
				Auth:   sub.Auth,
			},
		}

		resp, err := webpush.SendNotificationWithContext(ctx, payload, target, &webpush.Options{
			Subscriber:      s.subscriber,
			VAPIDPublicKey:  s.vapidPublic,
			VAPIDPrivateKey: s.vapidPrivate,
			TTL:             3600,
		})
		if err != nil {
			metrics.RecordPush("failed")
			logrus.WithError(err).WithField("endpoint", sub.Endpoint).Warn("Push delivery failed")
			continue
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			metrics.RecordPush("gone")
			if err := s.repo.DeactivateSubscription(ctx, sub.UserID, sub.Endpoint); err != nil {
				logrus.WithError(err).Warn("Failed to deactivate dead push endpoint")
			}
			continue
		}

		metrics.RecordPush("sent")
		sent++
	}
	return sent
}
