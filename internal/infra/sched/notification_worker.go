package sched

import (
	"context"
	"errors"
	"time"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/ports/adapter"
	"telegram-vpn-subscription/internal/usecase"

	"github.com/rs/zerolog"
)

const reminderLockKey = "lock:sched:expiry_reminders"

type NotificationWorker struct {
	interval   time.Duration
	thresholds []int
	reminders  usecase.ReminderUseCase
	locker     adapter.Locker
	log        *zerolog.Logger
}

func NewNotificationWorker(interval time.Duration, thresholds []int, reminders usecase.ReminderUseCase, locker adapter.Locker, logger *zerolog.Logger) *NotificationWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	compLog := logger.With().Str("component", "NotificationWorker").Logger()
	return &NotificationWorker{
		interval:   interval,
		thresholds: thresholds,
		reminders:  reminders,
		locker:     locker,
		log:        &compLog,
	}
}

func (w *NotificationWorker) Run(ctx context.Context) error {
	w.log.Info().Ints("thresholds_days", w.thresholds).Msg("Starting notification worker")
	// Run once on startup, then on every tick
	w.runCheck(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping notification worker")
			return ctx.Err()
		case <-ticker.C:
			w.runCheck(ctx)
		}
	}
}

func (w *NotificationWorker) runCheck(ctx context.Context) int {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, reminderLockKey, w.interval)
		if errors.Is(err, domain.ErrLockNotAcquired) {
			return 0
		}
		if err != nil {
			w.log.Warn().Err(err).Msg("reminder lock unavailable")
			return 0
		}
		defer func() { _ = w.locker.Unlock(context.Background(), reminderLockKey, token) }()
	}

	sent, err := w.reminders.SendExpiryReminders(ctx, w.thresholds)
	if err != nil {
		w.log.Error().Err(err).Msg("expiry reminder run failed")
	}
	if sent > 0 {
		w.log.Info().Int("count", sent).Msg("expiry reminders sent")
	}
	return sent
}
