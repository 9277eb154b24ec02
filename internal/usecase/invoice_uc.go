package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/adapter"
	"telegram-vpn-subscription/internal/domain/ports/repository"
	"telegram-vpn-subscription/internal/infra/logging"
	"telegram-vpn-subscription/internal/infra/metrics"
)

// Compile-time check
var _ InvoiceUseCase = (*invoiceUC)(nil)

type IssueRequest struct {
	UserID      int64
	Rail        model.Rail
	Months      int
	PromoCode   string
	Title       string
	Description string
}

// Invoice is the payable handle returned to the user.
type Invoice struct {
	Payment *model.Payment
	PayURL  string
	QRCode  []byte
}

// Quote is a priced offer before any ledger row exists.
type Quote struct {
	Months    int
	Amount    int64
	Currency  string
	Days      int
	PromoCode *string
}

type InvoiceUseCase interface {
	Quote(ctx context.Context, rail model.Rail, months int, promoCode string) (*Quote, error)
	Issue(ctx context.Context, req IssueRequest) (*Invoice, error)
	Rails() []model.Rail
	Prices(rail model.Rail) model.PriceTable
}

// InvoiceLimit throttles issuance per user. A zero Limit disables it.
type InvoiceLimit struct {
	Limit  int
	Window time.Duration
}

type invoiceUC struct {
	payments repository.PaymentRepository
	promos   repository.PromoCodeRepository
	rails    map[model.Rail]adapter.PaymentRail
	order    []model.Rail
	prices   map[model.Rail]model.PriceTable
	limiter  adapter.RateLimiter
	limit    InvoiceLimit
	log      *zerolog.Logger
	now      func() time.Time
}

func NewInvoiceUseCase(
	payments repository.PaymentRepository,
	promos repository.PromoCodeRepository,
	rails []adapter.PaymentRail,
	prices map[model.Rail]model.PriceTable,
	limiter adapter.RateLimiter,
	limit InvoiceLimit,
	logger *zerolog.Logger,
) *invoiceUC {
	uc := &invoiceUC{
		payments: payments,
		promos:   promos,
		rails:    make(map[model.Rail]adapter.PaymentRail, len(rails)),
		prices:   prices,
		limiter:  limiter,
		limit:    limit,
		log:      logger,
		now:      time.Now,
	}
	for _, r := range rails {
		uc.rails[r.Name()] = r
		uc.order = append(uc.order, r.Name())
	}
	return uc
}

func (u *invoiceUC) Rails() []model.Rail { return u.order }

func (u *invoiceUC) Prices(rail model.Rail) model.PriceTable { return u.prices[rail] }

// Quote validates the duration and promo code and prices the offer. It never writes.
func (u *invoiceUC) Quote(ctx context.Context, railName model.Rail, months int, promoCode string) (*Quote, error) {
	rail, ok := u.rails[railName]
	if !ok {
		return nil, fmt.Errorf("%w: unknown rail %q", domain.ErrInvalidArgument, railName)
	}
	base, err := u.prices[railName].Price(months)
	if err != nil {
		return nil, err
	}

	q := &Quote{Months: months, Amount: base, Currency: rail.Currency(), Days: months * model.DaysPerMonth}
	if promoCode == "" {
		return q, nil
	}

	code := model.NormalizePromoCode(promoCode)
	promo, err := u.promos.FindByCode(ctx, repository.NoTX, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.PromoError{Code: code, Reason: "not found"}
	}
	if err != nil {
		return nil, err
	}
	if err := promo.CanUse(u.now()); err != nil {
		return nil, err
	}
	amount, bonus := promo.Apply(base)
	if amount <= 0 {
		return nil, &domain.PromoError{Code: code, Reason: "discount leaves nothing to charge"}
	}
	q.Amount, q.Days, q.PromoCode = amount, q.Days+bonus, &promo.Code
	return q, nil
}

func (u *invoiceUC) Issue(ctx context.Context, req IssueRequest) (*Invoice, error) {
	defer logging.TraceDuration(u.log, "InvoiceUC.Issue")()
	ctx = logging.WithUserID(ctx, req.UserID)
	log := logging.With(ctx, u.log)

	if err := u.allow(ctx, req.UserID); err != nil {
		metrics.IncInvoice(string(req.Rail), "rate_limited")
		return nil, err
	}

	q, err := u.Quote(ctx, req.Rail, req.Months, req.PromoCode)
	if err != nil {
		metrics.IncInvoice(string(req.Rail), "invalid")
		return nil, err
	}

	rail := u.rails[req.Rail]
	p, err := model.NewPendingPayment(req.UserID, req.Rail, q.Amount, q.Currency, q.Months, q.Days, q.PromoCode)
	if err != nil {
		return nil, err
	}
	if q.PromoCode != nil {
		// The use is held by this pending payment until it completes or fails.
		ok, err := u.promos.Reserve(ctx, repository.NoTX, *q.PromoCode)
		if err != nil {
			return nil, err
		}
		if !ok {
			metrics.IncInvoice(string(req.Rail), "invalid")
			return nil, &domain.PromoError{Code: *q.PromoCode, Reason: "usage limit reached"}
		}
	}
	p.CreatedAt = u.now().UTC()
	p.UpdatedAt = p.CreatedAt
	if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
		u.releasePromo(ctx, p)
		return nil, err
	}
	pl := log.With().Str("payment_id", p.ID).Logger()
	log = &pl

	title, desc := req.Title, req.Description
	if title == "" {
		title = fmt.Sprintf("VPN subscription, %d months", q.Months)
	}
	if desc == "" {
		desc = fmt.Sprintf("%d days of VPN access", q.Days)
	}

	intent, err := rail.CreateIntent(ctx, p, title, desc)
	if err != nil {
		reason := fmt.Sprintf("rail %s: %v", req.Rail, err)
		if ok, ferr := u.payments.FailIfPending(ctx, repository.NoTX, p.ID, reason); ferr != nil {
			log.Error().Err(ferr).Msg("could not fail payment after rail error")
		} else if ok {
			u.releasePromo(ctx, p)
		}
		log.Error().Err(err).Msg("payment intent creation failed")
		metrics.IncInvoice(string(req.Rail), "provider_error")
		metrics.IncPayment(string(req.Rail), string(model.PaymentStatusFailed))
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	var extRef *string
	if intent.ExternalReference != "" {
		extRef = &intent.ExternalReference
	}
	if err := u.payments.SetLookupKey(ctx, repository.NoTX, p.ID, intent.LookupKey, extRef); err != nil {
		// Without its key no completion can find the payment.
		if ok, ferr := u.payments.FailIfPending(ctx, repository.NoTX, p.ID, "lookup key not stored"); ferr == nil && ok {
			u.releasePromo(ctx, p)
		}
		return nil, err
	}
	p.LookupKey, p.ExternalReference = intent.LookupKey, extRef

	metrics.IncInvoice(string(req.Rail), "ok")
	metrics.IncPayment(string(req.Rail), string(model.PaymentStatusPending))
	log.Info().Int64("amount", p.Amount).Str("currency", p.Currency).Int("days", p.EntitlementDays).Msg("invoice issued")
	return &Invoice{Payment: p, PayURL: intent.PayURL, QRCode: intent.QRCode}, nil
}

// releasePromo is best effort; a leaked use only makes the code run out early.
func (u *invoiceUC) releasePromo(ctx context.Context, p *model.Payment) {
	if p.PromoCode == nil {
		return
	}
	if err := u.promos.Release(ctx, repository.NoTX, *p.PromoCode); err != nil {
		u.log.Warn().Err(err).Str("code", *p.PromoCode).Str("payment_id", p.ID).Msg("could not release promo use")
	}
}

// allow fails open when the limiter itself is unavailable.
func (u *invoiceUC) allow(ctx context.Context, userID int64) error {
	if u.limiter == nil || u.limit.Limit <= 0 {
		return nil
	}
	ok, err := u.limiter.Allow(ctx, fmt.Sprintf("rate_limit:%d:invoice", userID), u.limit.Limit, u.limit.Window)
	if err != nil {
		u.log.Warn().Err(err).Msg("rate limiter unavailable")
		return nil
	}
	if !ok {
		metrics.IncRateLimitTriggered()
		return domain.ErrRateLimited
	}
	return nil
}
