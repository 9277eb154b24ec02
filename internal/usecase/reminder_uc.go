package usecase

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"telegram-vpn-subscription/internal/domain/ports/adapter"
	"telegram-vpn-subscription/internal/domain/ports/repository"
	"telegram-vpn-subscription/internal/infra/i18n"
	"telegram-vpn-subscription/internal/infra/logging"
	"telegram-vpn-subscription/internal/infra/metrics"
)

// Compile-time check
var _ ReminderUseCase = (*reminderUC)(nil)

const reminderBatch = 500

type ReminderUseCase interface {
	// SendExpiryReminders notifies users whose entitlement ends within one of thresholdDays.
	// Each (user, expiry, threshold) is notified at most once. It returns the number of messages sent.
	SendExpiryReminders(ctx context.Context, thresholdDays []int) (int, error)
}

type reminderUC struct {
	accounts repository.AccountRepository
	sent     repository.NotificationLogRepository
	bot      adapter.TelegramBotAdapter
	t        *i18n.Translator
	log      *zerolog.Logger
	now      func() time.Time
}

func NewReminderUseCase(accounts repository.AccountRepository, sent repository.NotificationLogRepository, bot adapter.TelegramBotAdapter, t *i18n.Translator, logger *zerolog.Logger) *reminderUC {
	return &reminderUC{accounts: accounts, sent: sent, bot: bot, t: t, log: logger, now: time.Now}
}

func (u *reminderUC) SendExpiryReminders(ctx context.Context, thresholdDays []int) (int, error) {
	defer logging.TraceDuration(u.log, "ReminderUC.SendExpiryReminders")()

	thresholds := append([]int(nil), thresholdDays...)
	sort.Ints(thresholds)

	now := u.now().UTC()
	sentCount, lower := 0, 0
	for _, d := range thresholds {
		if d <= lower {
			continue
		}
		// Windows do not overlap, so an account near expiry gets only the tightest reminder.
		from := now.Add(time.Duration(lower) * 24 * time.Hour)
		to := now.Add(time.Duration(d) * 24 * time.Hour)
		lower = d

		accounts, err := u.accounts.ListExpiringBetween(ctx, repository.NoTX, from, to, reminderBatch)
		if err != nil {
			return sentCount, err
		}
		for _, a := range accounts {
			if a.EntitlementExpiry == nil {
				continue
			}
			expiry := *a.EntitlementExpiry
			seen, err := u.sent.Exists(ctx, repository.NoTX, a.UserID, expiry, d)
			if err != nil {
				return sentCount, err
			}
			if seen {
				continue
			}
			left := int(math.Ceil(expiry.Sub(now).Hours() / 24))
			if err := u.bot.SendMessage(ctx, a.UserID, u.t.T("reminder_expiring", left, expiry.Format(dateLayout))); err != nil {
				u.log.Warn().Err(err).Int64("user_id", a.UserID).Msg("failed to send expiry reminder")
				continue
			}
			if err := u.sent.Save(ctx, repository.NoTX, a.UserID, expiry, d); err != nil {
				return sentCount, err
			}
			metrics.IncReminderSent(strconv.Itoa(d))
			sentCount++
		}
	}
	return sentCount, nil
}
