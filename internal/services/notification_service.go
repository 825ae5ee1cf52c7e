package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mezaapp/meza/internal/models"
	"github.com/mezaapp/meza/internal/repository"
	"github.com/mezaapp/meza/pkg/email"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationStreamer pushes a notification to connected live clients.
// Implemented by the websocket hub; nil when the stream is disabled.
type NotificationStreamer interface {
	Broadcast(userID string, notif *models.Notification)
}

// NotificationService records notifications and fans them out to the
// channels the user has enabled. Fan-out is best-effort: the record is
// durable before any delivery is attempted, and delivery failures only log.
type NotificationService struct {
	repo         *repository.NotificationRepository
	settingsRepo *repository.SettingsRepository
	userRepo     *repository.UserRepository
	push         *PushService
	streamer     NotificationStreamer
}

func NewNotificationService(repo *repository.NotificationRepository, settingsRepo *repository.SettingsRepository, userRepo *repository.UserRepository, push *PushService) *NotificationService {
	return &NotificationService{
		repo:         repo,
		settingsRepo: settingsRepo,
		userRepo:     userRepo,
		push:         push,
	}
}

// SetStreamer attaches the live notification stream. Optional.
func (s *NotificationService) SetStreamer(streamer NotificationStreamer) {
	s.streamer = streamer
}

// Notify stores a notification for the user and delivers it over push,
// email and the live stream according to their settings.
func (s *NotificationService) Notify(ctx context.Context, userID primitive.ObjectID, notifType, title, body string, targetID *primitive.ObjectID) error {
	notif := &models.Notification{
		UserID:   userID,
		Type:     notifType,
		Title:    title,
		Body:     body,
		Read:     false,
		TargetID: targetID,
	}
	if err := s.repo.CreateNotification(ctx, notif); err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}

	settings, err := s.settingsRepo.GetOrCreate(ctx, userID)
	if err != nil {
		logrus.WithError(err).Warn("Failed to load settings, skipping notification fan-out")
		return nil
	}

	if settings.PushEnabled && s.push != nil {
		payload, _ := json.Marshal(map[string]string{
			"title": title,
			"body":  body,
			"type":  notifType,
		})
		if sent := s.push.SendToUser(ctx, userID, payload); sent > 0 {
			if err := s.repo.MarkPushSent(ctx, notif.ID); err != nil {
				logrus.WithError(err).Warn("Failed to flag notification as pushed")
			}
		}
	}

	if settings.EmailEnabled {
		if user, err := s.userRepo.GetUserByID(ctx, userID); err == nil {
			if err := email.SendEmail(user.Email, title, body); err != nil {
				logrus.WithError(err).Warn("Failed to send notification email")
			}
		}
	}

	if s.streamer != nil {
		s.streamer.Broadcast(userID.Hex(), notif)
	}

	return nil
}

// GetUserNotifications returns all unexpired notifications for a user.
func (s *NotificationService) GetUserNotifications(ctx context.Context, userID primitive.ObjectID) ([]models.Notification, error) {
	return s.repo.GetUserNotifications(ctx, userID)
}

// MarkNotificationAsRead sets the "read" status of a notification to true.
func (s *NotificationService) MarkNotificationAsRead(ctx context.Context, notifID, userID primitive.ObjectID) error {
	return s.repo.MarkAsRead(ctx, notifID, userID)
}

// DeleteNotification deletes a specific notification.
func (s *NotificationService) DeleteNotification(ctx context.Context, notifID, userID primitive.ObjectID) error {
	return s.repo.DeleteNotification(ctx, notifID, userID)
}

// GetLatestByType returns the newest notification of a type for reminder
// deduplication.
func (s *NotificationService) GetLatestByType(ctx context.Context, userID primitive.ObjectID, notifType string) (*models.Notification, error) {
	return s.repo.GetLatestNotificationByType(ctx, userID, notifType)
}

// DeleteExpiredNotifications is called periodically by cron to drop old ones.
func (s *NotificationService) DeleteExpiredNotifications(ctx context.Context) error {
	return s.repo.DeleteExpiredNotifications(ctx)
}
