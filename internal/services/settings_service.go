package services

import (
	"context"
	"time"

	"github.com/mezaapp/meza/internal/models"
	"github.com/mezaapp/meza/internal/repository"
	"github.com/mezaapp/meza/pkg/apperrors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var allowedThemes = map[string]bool{
	"light":  true,
	"dark":   true,
	"system": true,
}

// SettingsService manages per-user preferences.
type SettingsService struct {
	repo *repository.SettingsRepository
}

func NewSettingsService(repo *repository.SettingsRepository) *SettingsService {
	return &SettingsService{repo: repo}
}

// GetSettings returns the user's settings, creating defaults on first access.
func (s *SettingsService) GetSettings(ctx context.Context, userID primitive.ObjectID) (*models.UserSettings, error) {
	return s.repo.GetOrCreate(ctx, userID)
}

// UpdateSettings validates and stores new preferences.
func (s *SettingsService) UpdateSettings(ctx context.Context, userID primitive.ObjectID, settings *models.UserSettings) (*models.UserSettings, error) {
	if !allowedThemes[settings.Theme] {
		return nil, &apperrors.ValidationError{Field: "theme", Reason: "must be light, dark or system"}
	}
	if settings.ReminderLeadMinute < 0 || settings.ReminderLeadMinute > 24*60 {
		return nil, &apperrors.ValidationError{Field: "reminder_lead_minutes", Reason: "must be between 0 and 1440"}
	}
	if _, err := time.LoadLocation(settings.Timezone); err != nil {
		return nil, &apperrors.ValidationError{Field: "timezone", Reason: "unknown timezone"}
	}

	return s.repo.Update(ctx, userID, settings)
}
