package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/adapter"
	"telegram-vpn-subscription/internal/domain/ports/repository"
	"telegram-vpn-subscription/internal/infra/adapters/payment"
	"telegram-vpn-subscription/internal/usecase"
)

const stepAwaitingPromo = "awaiting_promo"

type cbHandler func(ctx context.Context, userID int64, data string) error

type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

// Exact-match callbacks
func (b *Bot) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		"menu:buy":    func(ctx context.Context, id int64, _ string) error { return b.sendDurations(ctx, id) },
		"menu:trial":  func(ctx context.Context, id int64, _ string) error { return b.activateTrial(ctx, id) },
		"menu:status": func(ctx context.Context, id int64, _ string) error { return b.sendStatus(ctx, id) },
		"promo:skip": func(ctx context.Context, id int64, _ string) error {
			st, err := b.h.States.GetState(ctx, id)
			if err != nil {
				return err
			}
			if st == nil || st.Step != stepAwaitingPromo {
				return b.sendDurations(ctx, id)
			}
			return b.issueFromState(ctx, id, st, "")
		},
	}
}

// Prefix-match callbacks
func (b *Bot) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: "buy:", Fn: b.chooseDuration},
		{Prefix: "rail:", Fn: b.chooseRail},
		{Prefix: "check:", Fn: b.checkPayment},
	}
}

// sendDurations lists the purchasable periods priced on the first enabled rail.
func (b *Bot) sendDurations(ctx context.Context, userID int64) error {
	rails := b.h.Invoices.Rails()
	if len(rails) == 0 {
		return b.SendMessage(ctx, userID, b.h.T.T("invoice_failed"))
	}
	prices := b.h.Invoices.Prices(rails[0])

	months := make([]int, 0, len(prices))
	for m, p := range prices {
		if p > 0 {
			months = append(months, m)
		}
	}
	if len(months) == 0 {
		return b.SendMessage(ctx, userID, b.h.T.T("invoice_invalid_duration"))
	}
	sort.Ints(months)

	// A base quote carries the rail currency.
	var currency string
	if q, err := b.h.Invoices.Quote(ctx, rails[0], months[0], ""); err == nil {
		currency = q.Currency
	}

	rows := make([][]adapter.InlineButton, 0, len(months))
	for _, m := range months {
		label := b.h.T.T("buy_month_button", m, formatPrice(prices[m], currency))
		rows = append(rows, []adapter.InlineButton{{Text: label, Data: "buy:" + strconv.Itoa(m)}})
	}
	return b.SendButtons(ctx, userID, b.h.T.T("buy_choose_duration"), rows)
}

func (b *Bot) chooseDuration(ctx context.Context, userID int64, data string) error {
	months, err := strconv.Atoi(strings.TrimPrefix(data, "buy:"))
	if err != nil {
		return b.SendMessage(ctx, userID, b.h.T.T("invoice_invalid_duration"))
	}
	rails := b.h.Invoices.Rails()
	if len(rails) == 1 {
		return b.askPromo(ctx, userID, months, rails[0])
	}
	rows := make([][]adapter.InlineButton, 0, len(rails))
	for _, r := range rails {
		rows = append(rows, []adapter.InlineButton{{
			Text: b.h.T.T("rail_" + string(r)),
			Data: fmt.Sprintf("rail:%d:%s", months, r),
		}})
	}
	return b.SendButtons(ctx, userID, b.h.T.T("buy_choose_rail"), rows)
}

func (b *Bot) chooseRail(ctx context.Context, userID int64, data string) error {
	parts := strings.SplitN(strings.TrimPrefix(data, "rail:"), ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("malformed rail callback %q", data)
	}
	months, err := strconv.Atoi(parts[0])
	if err != nil {
		return b.SendMessage(ctx, userID, b.h.T.T("invoice_invalid_duration"))
	}
	return b.askPromo(ctx, userID, months, model.Rail(parts[1]))
}

func (b *Bot) askPromo(ctx context.Context, userID int64, months int, rail model.Rail) error {
	st := &repository.ConversationState{
		Step: stepAwaitingPromo,
		Data: map[string]string{"months": strconv.Itoa(months), "rail": string(rail)},
	}
	if err := b.h.States.SetState(ctx, userID, st); err != nil {
		b.log.Error().Err(err).Int64("user_id", userID).Msg("save conversation state failed")
		return b.SendMessage(ctx, userID, b.h.T.T("generic_error"))
	}
	rows := [][]adapter.InlineButton{{{Text: b.h.T.T("promo_skip"), Data: "promo:skip"}}}
	return b.SendButtons(ctx, userID, b.h.T.T("promo_ask"), rows)
}

// handleText treats free text as the promo code when a purchase is waiting for one.
func (b *Bot) handleText(ctx context.Context, userID int64, text string) error {
	st, err := b.h.States.GetState(ctx, userID)
	if err != nil {
		return err
	}
	if st == nil || st.Step != stepAwaitingPromo {
		return b.SendMessage(ctx, userID, b.h.T.T("unknown_command"))
	}
	return b.issueFromState(ctx, userID, st, strings.TrimSpace(text))
}

func (b *Bot) issueFromState(ctx context.Context, userID int64, st *repository.ConversationState, promoCode string) error {
	months, err := strconv.Atoi(st.Data["months"])
	if err != nil {
		_ = b.h.States.ClearState(ctx, userID)
		return b.sendDurations(ctx, userID)
	}
	rail := model.Rail(st.Data["rail"])

	q, err := b.h.Invoices.Quote(ctx, rail, months, promoCode)
	if err != nil {
		return b.replyIssueError(ctx, userID, promoCode, err)
	}
	inv, err := b.h.Invoices.Issue(ctx, usecase.IssueRequest{
		UserID:      userID,
		Rail:        rail,
		Months:      months,
		PromoCode:   promoCode,
		Title:       b.h.T.T("invoice_title", months),
		Description: b.h.T.T("invoice_description", q.Days),
	})
	if err != nil {
		return b.replyIssueError(ctx, userID, promoCode, err)
	}
	if err := b.h.States.ClearState(ctx, userID); err != nil {
		b.log.Warn().Err(err).Int64("user_id", userID).Msg("clear conversation state failed")
	}
	return b.sendInvoice(ctx, userID, inv)
}

// replyIssueError keeps the conversation open on a bad promo code so the user can retry or skip.
func (b *Bot) replyIssueError(ctx context.Context, userID int64, promoCode string, err error) error {
	var promoErr *domain.PromoError
	if errors.As(err, &promoErr) {
		rows := [][]adapter.InlineButton{{{Text: b.h.T.T("promo_skip"), Data: "promo:skip"}}}
		return b.SendButtons(ctx, userID, b.h.T.T("promo_invalid", promoCode, promoErr.Reason), rows)
	}
	if clearErr := b.h.States.ClearState(ctx, userID); clearErr != nil {
		b.log.Warn().Err(clearErr).Int64("user_id", userID).Msg("clear conversation state failed")
	}
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return b.SendMessage(ctx, userID, b.h.T.T("invoice_rate_limited"))
	case errors.Is(err, domain.ErrInvalidDuration), errors.Is(err, domain.ErrInvalidArgument):
		return b.SendMessage(ctx, userID, b.h.T.T("invoice_invalid_duration"))
	case errors.Is(err, domain.ErrProviderUnavailable):
		return b.SendMessage(ctx, userID, b.h.T.T("invoice_failed"))
	default:
		b.log.Error().Err(err).Int64("user_id", userID).Msg("invoice issue failed")
		return b.SendMessage(ctx, userID, b.h.T.T("generic_error"))
	}
}

func (b *Bot) sendInvoice(ctx context.Context, userID int64, inv *usecase.Invoice) error {
	p := inv.Payment
	text := b.h.T.T("invoice_ready", formatPrice(p.Amount, p.Currency), p.EntitlementDays)
	if len(inv.QRCode) > 0 {
		if err := b.SendPhoto(ctx, userID, inv.QRCode, text); err != nil {
			b.log.Warn().Err(err).Str("payment_id", p.ID).Msg("send invoice qr failed")
		}
	}
	rows := [][]adapter.InlineButton{{{Text: b.h.T.T("invoice_pay_button"), URL: inv.PayURL}}}
	if p.Rail == model.RailProcessor {
		rows = append(rows, []adapter.InlineButton{{Text: b.h.T.T("invoice_check_button"), Data: "check:" + p.ID}})
	}
	return b.SendButtons(ctx, userID, text, rows)
}

// checkPayment polls the processor on the user's request.
func (b *Bot) checkPayment(ctx context.Context, userID int64, data string) error {
	id := strings.TrimPrefix(data, "check:")
	p, err := b.h.Reconcile.GetPayment(ctx, id)
	if err != nil || p.UserID != userID {
		return b.SendMessage(ctx, userID, b.h.T.T("generic_error"))
	}
	res, err := b.h.Reconcile.CheckStatus(ctx, id)
	if errors.Is(err, domain.ErrProviderUnavailable) {
		return b.SendMessage(ctx, userID, b.h.T.T("invoice_failed"))
	}
	if err != nil {
		b.log.Error().Err(err).Str("payment_id", id).Msg("status check failed")
		return b.SendMessage(ctx, userID, b.h.T.T("generic_error"))
	}
	return b.settled(ctx, userID, res)
}

func formatPrice(amount int64, currency string) string {
	if currency == payment.StarsCurrency {
		return strconv.FormatInt(amount, 10) + " ⭐"
	}
	return strings.TrimSpace(payment.FormatAmount(amount) + " " + currency)
}
