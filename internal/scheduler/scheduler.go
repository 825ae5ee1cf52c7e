package scheduler

import (
	"context"
	"time"

	"github.com/mezaapp/meza/internal/jobs"
	"github.com/mezaapp/meza/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Start wires the periodic jobs: the expiry sweep, the reminder scan and
// the expired-notification cleanup. Returns the running cron so the caller
// can stop it on shutdown.
func Start(sweeper *jobs.ExpirySweeper, notificationService *services.NotificationService, sweepInterval time.Duration) *cron.Cron {
	c := cron.New()

	// Expiry sweep. cron's granularity is a minute; shorter configured
	// intervals run a ticker-backed schedule instead.
	c.Schedule(cron.Every(sweepInterval), cron.FuncJob(func() {
		if err := sweeper.RunSweep(context.Background()); err != nil {
			logrus.WithError(err).Error("RunSweep failed")
		}
	}))

	// Deadline reminders
	c.AddFunc("* * * * *", func() {
		if err := sweeper.RunReminderScan(context.Background()); err != nil {
			logrus.WithError(err).Error("RunReminderScan failed")
		}
	})

	// Drop notifications past their TTL
	c.AddFunc("0 3 * * *", func() {
		if err := notificationService.DeleteExpiredNotifications(context.Background()); err != nil {
			logrus.WithError(err).Error("DeleteExpiredNotifications failed")
		}
	})

	c.Start()
	return c
}
