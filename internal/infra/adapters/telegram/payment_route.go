package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/infra/adapters/payment"
	"telegram-vpn-subscription/internal/usecase"
)

// handlePreCheckout answers Telegram's last check before a Stars charge. Telegram waits at most
// ten seconds, so this only reads the ledger.
func (b *Bot) handlePreCheckout(ctx context.Context, q *tgbotapi.PreCheckoutQuery) error {
	var err error
	if q.Currency != payment.StarsCurrency {
		err = fmt.Errorf("%w: currency %q", domain.ErrAmountMismatch, q.Currency)
	} else {
		err = b.h.Reconcile.Precheck(ctx, model.RailInPlatform, q.InvoicePayload, int64(q.TotalAmount))
	}

	answer := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: q.ID, OK: err == nil}
	if err != nil {
		answer.ErrorMessage = b.h.T.T("precheckout_rejected")
		var userID int64
		if q.From != nil {
			userID = q.From.ID
		}
		b.log.Warn().Err(err).Int64("user_id", userID).Int("amount", q.TotalAmount).Msg("pre-checkout rejected")
	}
	_, reqErr := b.api.Request(answer)
	return reqErr
}

// handleSuccessfulPayment settles a completed Stars charge.
func (b *Bot) handleSuccessfulPayment(ctx context.Context, userID int64, sp *tgbotapi.SuccessfulPayment) error {
	res, err := b.h.Reconcile.Reconcile(ctx, usecase.Completion{
		Rail:              model.RailInPlatform,
		LookupKey:         sp.InvoicePayload,
		Amount:            int64(sp.TotalAmount),
		Currency:          sp.Currency,
		ExternalReference: sp.TelegramPaymentChargeID,
	})
	if err != nil {
		// The charge id is what support needs to settle this by hand.
		b.log.Error().Err(err).
			Int64("user_id", userID).
			Str("charge_id", sp.TelegramPaymentChargeID).
			Msg("stars payment could not be reconciled")
		return b.SendMessage(ctx, userID, b.h.T.T("generic_error"))
	}
	return b.settled(ctx, userID, res)
}
