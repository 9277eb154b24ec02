package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/ports/adapter"
)

const dateLayout = "2006-01-02"

type commandHandler func(ctx context.Context, msg *tgbotapi.Message) error

func (b *Bot) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start": b.handleStart,
		"buy": func(ctx context.Context, msg *tgbotapi.Message) error {
			return b.sendDurations(ctx, msg.From.ID)
		},
		"trial": func(ctx context.Context, msg *tgbotapi.Message) error {
			return b.activateTrial(ctx, msg.From.ID)
		},
		"status": func(ctx context.Context, msg *tgbotapi.Message) error {
			return b.sendStatus(ctx, msg.From.ID)
		},
		"help": func(ctx context.Context, msg *tgbotapi.Message) error {
			return b.SendMessage(ctx, msg.From.ID, b.h.T.T("help_text"))
		},
	}
}

// handleStart registers the user and, for "/start <referrerID>", records who invited them.
func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	user := msg.From
	if _, err := b.h.Accounts.Register(ctx, user.ID, user.UserName); err != nil {
		b.log.Error().Err(err).Int64("user_id", user.ID).Msg("register failed")
		return b.SendMessage(ctx, user.ID, b.h.T.T("generic_error"))
	}

	name := strings.TrimSpace(user.FirstName)
	if name == "" {
		name = user.UserName
	}
	text := b.h.T.T("start_welcome", name)

	if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" && b.h.Referrals != nil {
		referrerID, err := strconv.ParseInt(arg, 10, 64)
		if err == nil && referrerID > 0 {
			attributed, err := b.h.Referrals.Attribute(ctx, user.ID, referrerID)
			if err != nil {
				b.log.Warn().Err(err).Int64("user_id", user.ID).Int64("referrer_id", referrerID).Msg("referral attribution failed")
			} else if attributed {
				text += "\n\n" + b.h.T.T("start_referred")
			}
		}
	}
	return b.SendButtons(ctx, user.ID, text, b.mainMenu())
}

func (b *Bot) mainMenu() [][]adapter.InlineButton {
	return [][]adapter.InlineButton{
		{{Text: b.h.T.T("menu_buy"), Data: "menu:buy"}},
		{{Text: b.h.T.T("menu_trial"), Data: "menu:trial"}},
		{{Text: b.h.T.T("menu_status"), Data: "menu:status"}},
	}
}

func (b *Bot) activateTrial(ctx context.Context, userID int64) error {
	res, err := b.h.Trial.Activate(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrTrialUnavailable):
		return b.SendMessage(ctx, userID, b.h.T.T("trial_unavailable"))
	case errors.Is(err, domain.ErrNotFound):
		return b.SendMessage(ctx, userID, b.h.T.T("status_none"))
	case err != nil:
		b.log.Error().Err(err).Int64("user_id", userID).Msg("trial activation failed")
		return b.SendMessage(ctx, userID, b.h.T.T("generic_error"))
	}
	text := b.h.T.T("trial_success", res.Expiry.Format(dateLayout))
	if res.AccessURL != "" {
		text += "\n" + b.h.T.T("payment_access_url", res.AccessURL)
	}
	return b.SendMessage(ctx, userID, text)
}

func (b *Bot) sendStatus(ctx context.Context, userID int64) error {
	st, err := b.h.Accounts.Status(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return b.SendMessage(ctx, userID, b.h.T.T("status_none"))
	}
	if err != nil {
		b.log.Error().Err(err).Int64("user_id", userID).Msg("status failed")
		return b.SendMessage(ctx, userID, b.h.T.T("generic_error"))
	}

	var text string
	switch exp := st.Account.EntitlementExpiry; {
	case exp == nil:
		text = b.h.T.T("status_none")
	case exp.After(time.Now()):
		text = b.h.T.T("status_active", exp.Format(dateLayout))
	default:
		text = b.h.T.T("status_expired", exp.Format(dateLayout))
	}
	text += "\n\n" + b.h.T.T("status_referrals", st.ReferralsTotal, st.ReferralsGranted, b.inviteLink(userID))
	return b.SendMessage(ctx, userID, text)
}

func (b *Bot) inviteLink(userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", b.username, userID)
}
