package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/mezaapp/meza/internal/metrics"
	"github.com/mezaapp/meza/internal/models"
	"github.com/mezaapp/meza/internal/services"
	"github.com/mezaapp/meza/pkg/timeutil"
	"github.com/sirupsen/logrus"
)

// ExpirySweeper periodically fails active challenges whose deadline has
// passed and reminds users whose deadline is closing in.
type ExpirySweeper struct {
	ChallengeService    *services.ChallengeService
	SettingsService     *services.SettingsService
	NotificationService *services.NotificationService
	Clock               timeutil.Clock
}

// NewExpirySweeper creates a new instance of ExpirySweeper.
func NewExpirySweeper(challengeService *services.ChallengeService, settingsService *services.SettingsService, notifService *services.NotificationService, clock timeutil.Clock) *ExpirySweeper {
	return &ExpirySweeper{
		ChallengeService:    challengeService,
		SettingsService:     settingsService,
		NotificationService: notifService,
		Clock:               clock,
	}
}

// RunSweep expires overdue active challenges. Redundant with any expiry
// evaluated on read paths; every expire call is idempotent.
func (s *ExpirySweeper) RunSweep(ctx context.Context) error {
	start := time.Now()

	count, err := s.ChallengeService.SweepExpired(ctx)
	metrics.ObserveSweep(time.Since(start))
	if err != nil {
		return fmt.Errorf("expiry sweep failed: %w", err)
	}

	if count > 0 {
		logrus.WithField("expired", count).Info("Expiry sweep settled challenges")
	}
	return nil
}

// RunReminderScan notifies users whose active challenge ends within their
// reminder lead time. Deduplicated per challenge via the latest reminder.
func (s *ExpirySweeper) RunReminderScan(ctx context.Context) error {
	now := s.Clock.Now()

	// Widest lead time any user can configure is 24h.
	challenges, err := s.ChallengeService.ListActiveEndingBetween(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		return fmt.Errorf("failed to fetch challenges ending soon: %w", err)
	}

	for _, challenge := range challenges {
		settings, err := s.SettingsService.GetSettings(ctx, challenge.UserID)
		if err != nil {
			logrus.WithError(err).Warn("Failed to load settings during reminder scan")
			continue
		}

		lead := time.Duration(settings.ReminderLeadMinute) * time.Minute
		if lead == 0 || challenge.EndsAt == nil || challenge.EndsAt.Sub(now) > lead {
			continue
		}

		existing, err := s.NotificationService.GetLatestByType(ctx, challenge.UserID, models.NotifTypeChallengeReminder)
		if err == nil && existing != nil && existing.TargetID != nil && *existing.TargetID == challenge.ID {
			continue // already reminded for this challenge
		}

		err = s.NotificationService.Notify(
			ctx,
			challenge.UserID,
			models.NotifTypeChallengeReminder,
			"Time to get moving",
			fmt.Sprintf("Your challenge ends at %s. Get to your target!", challenge.EndsAt.Format("15:04 MST")),
			&challenge.ID,
		)
		if err != nil {
			logrus.WithError(err).Warnf("Failed to send reminder for challenge %s", challenge.ID.Hex())
		}
	}

	return nil
}
