package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/ports/adapter"
	"telegram-vpn-subscription/internal/infra/i18n"
)

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

const dateLayout = "2006-01-02"

// NotificationUseCase turns settlement results into user and operator messages.
type NotificationUseCase interface {
	PaymentResult(ctx context.Context, userID int64, res *ReconcileResult) error
	ReferralBonus(ctx context.Context, credit *ReferralCredit) error
	// OperatorPurchase posts to the operator chat; it is a no-op when none is configured.
	OperatorPurchase(ctx context.Context, res *ReconcileResult) error
	// Settled fans one reconciliation out to the payer, the operator feed and the referrer.
	Settled(ctx context.Context, res *ReconcileResult) error
}

type notificationUC struct {
	bot            adapter.TelegramBotAdapter
	t              *i18n.Translator
	operatorChatID int64
	log            *zerolog.Logger
}

func NewNotificationUseCase(bot adapter.TelegramBotAdapter, t *i18n.Translator, operatorChatID int64, logger *zerolog.Logger) *notificationUC {
	return &notificationUC{bot: bot, t: t, operatorChatID: operatorChatID, log: logger}
}

// PaymentMessage renders the user-facing text for a settlement result.
func PaymentMessage(t *i18n.Translator, res *ReconcileResult) string {
	switch res.Outcome {
	case OutcomeProvisioned:
		msg := t.T("payment_success", res.Expiry.Format(dateLayout))
		if res.AccessURL != "" {
			msg += "\n" + t.T("payment_access_url", res.AccessURL)
		}
		return msg
	case OutcomeAlreadyCompleted:
		return t.T("payment_already", completedExpiry(res))
	case OutcomePending:
		return t.T("payment_pending")
	default:
		return t.T("payment_failed", failureText(res.Reason))
	}
}

func completedExpiry(res *ReconcileResult) string {
	if res.Expiry != nil {
		return res.Expiry.Format(dateLayout)
	}
	if res.Payment != nil && res.Payment.CompletedAt != nil {
		return res.Payment.CompletedAt.AddDate(0, 0, res.Payment.EntitlementDays).Format(dateLayout)
	}
	return "-"
}

func failureText(reason error) string {
	switch {
	case reason == nil:
		return "unknown"
	case errors.Is(reason, domain.ErrAmountMismatch):
		return "amount mismatch"
	case errors.Is(reason, domain.ErrProvisioningFailed):
		return "account setup failed"
	case errors.Is(reason, domain.ErrPaymentNotFound):
		return "payment not found"
	case errors.Is(reason, domain.ErrPaymentFailed):
		return "payment failed"
	default:
		return strings.SplitN(reason.Error(), ":", 2)[0]
	}
}

func (n *notificationUC) PaymentResult(ctx context.Context, userID int64, res *ReconcileResult) error {
	return n.bot.SendMessage(ctx, userID, PaymentMessage(n.t, res))
}

func (n *notificationUC) ReferralBonus(ctx context.Context, credit *ReferralCredit) error {
	if credit == nil {
		return nil
	}
	return n.bot.SendMessage(ctx, credit.ReferrerID, n.t.T("referral_bonus", credit.BonusDays, credit.NewExpiry.Format(dateLayout)))
}

func (n *notificationUC) OperatorPurchase(ctx context.Context, res *ReconcileResult) error {
	if n.operatorChatID == 0 || res == nil || res.Outcome != OutcomeProvisioned || res.Payment == nil {
		return nil
	}
	p := res.Payment
	promo := "-"
	if p.PromoCode != nil {
		promo = *p.PromoCode
	}
	text := n.t.T("operator_purchase", p.UserID, n.t.T("rail_"+string(p.Rail)), p.Amount, p.Currency, p.EntitlementMonths, promo)
	if err := n.bot.SendMessage(ctx, n.operatorChatID, text); err != nil {
		n.log.Warn().Err(err).Msg("operator purchase feed failed")
		return err
	}
	return nil
}

func (n *notificationUC) Settled(ctx context.Context, res *ReconcileResult) error {
	if res == nil || res.Payment == nil {
		return nil
	}
	var errs []error
	if err := n.PaymentResult(ctx, res.Payment.UserID, res); err != nil {
		errs = append(errs, err)
	}
	if err := n.OperatorPurchase(ctx, res); err != nil {
		errs = append(errs, err)
	}
	if err := n.ReferralBonus(ctx, res.Referral); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
