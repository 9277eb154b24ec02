package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/adapter"
	"telegram-vpn-subscription/internal/domain/ports/repository"
	"telegram-vpn-subscription/internal/infra/logging"
	"telegram-vpn-subscription/internal/infra/metrics"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

type Outcome string

const (
	OutcomeProvisioned      Outcome = "provisioned"
	OutcomeAlreadyCompleted Outcome = "already_completed"
	OutcomeFailed           Outcome = "failed"
	// OutcomePending is only produced by status polls; reconciliation itself always resolves.
	OutcomePending Outcome = "pending"
)

// ReconcileResult is the tagged result of settling one payment.
// Reason is set for OutcomeFailed and is one of the domain payment errors.
type ReconcileResult struct {
	Outcome   Outcome
	Payment   *model.Payment
	AccountID string
	Expiry    *time.Time
	AccessURL string
	Reason    error
	Referral  *ReferralCredit
}

func (r *ReconcileResult) Success() bool {
	return r.Outcome == OutcomeProvisioned || r.Outcome == OutcomeAlreadyCompleted
}

func (r *ReconcileResult) AlreadyCompleted() bool { return r.Outcome == OutcomeAlreadyCompleted }

// Completion is a rail's claim that a payment was paid.
type Completion struct {
	Rail              model.Rail
	LookupKey         string
	Amount            int64
	Currency          string // empty skips the currency check
	ExternalReference string // e.g. the platform charge id
}

type ReconcileUseCase interface {
	// Reconcile settles the payment behind c.LookupKey. The error is reserved for infrastructure
	// faults; business outcomes come back in the result.
	Reconcile(ctx context.Context, c Completion) (*ReconcileResult, error)
	// Precheck returns nil when a payment with this key is pending and the amount matches.
	Precheck(ctx context.Context, rail model.Rail, lookupKey string, amount int64) error
	// CheckStatus polls the processor for a processor-rail payment and settles it when it resolved.
	CheckStatus(ctx context.Context, paymentID string) (*ReconcileResult, error)
	// Confirm settles the payment behind lookupKey from the processor's own view of it,
	// for notifications whose body cannot be trusted.
	Confirm(ctx context.Context, rail model.Rail, lookupKey string) (*ReconcileResult, error)
	GetPayment(ctx context.Context, paymentID string) (*model.Payment, error)
}

type reconcileUC struct {
	payments    repository.PaymentRepository
	promos      repository.PromoCodeRepository
	provisioner ProvisionUseCase
	referrals   ReferralUseCase
	status      adapter.PaymentStatusSource
	tm          repository.TransactionManager
	log         *zerolog.Logger
	now         func() time.Time
}

// NewReconcileUseCase wires the engine. status may be nil when no processor rail is configured.
func NewReconcileUseCase(
	payments repository.PaymentRepository,
	promos repository.PromoCodeRepository,
	provisioner ProvisionUseCase,
	referrals ReferralUseCase,
	status adapter.PaymentStatusSource,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *reconcileUC {
	return &reconcileUC{
		payments:    payments,
		promos:      promos,
		provisioner: provisioner,
		referrals:   referrals,
		status:      status,
		tm:          tm,
		log:         logger,
		now:         time.Now,
	}
}

func failed(p *model.Payment, reason error) *ReconcileResult {
	return &ReconcileResult{Outcome: OutcomeFailed, Payment: p, Reason: reason}
}

func alreadyCompleted(p *model.Payment) *ReconcileResult {
	res := &ReconcileResult{Outcome: OutcomeAlreadyCompleted, Payment: p}
	if p.ProvisionedAccountID != nil {
		res.AccountID = *p.ProvisionedAccountID
	}
	return res
}

func (u *reconcileUC) Reconcile(ctx context.Context, c Completion) (*ReconcileResult, error) {
	defer logging.TraceDuration(u.log, "ReconcileUC.Reconcile")()
	start := time.Now()

	var res *ReconcileResult
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		res = nil
		// The row stays locked until commit, so redeliveries queue up behind us.
		p, err := u.payments.FindByLookupKey(ctx, tx, c.Rail, c.LookupKey)
		if errors.Is(err, domain.ErrNotFound) {
			res = failed(nil, domain.ErrPaymentNotFound)
			return nil
		}
		if err != nil {
			return err
		}
		ctx = logging.WithPaymentID(logging.WithUserID(ctx, p.UserID), p.ID)
		log := logging.With(ctx, u.log)

		switch {
		case p.IsCompleted():
			res = alreadyCompleted(p)
			return nil
		case p.IsFailed():
			res = failed(p, domain.ErrPaymentFailed)
			return nil
		}

		if c.Amount != p.Amount || (c.Currency != "" && c.Currency != p.Currency) {
			reason := fmt.Sprintf("claimed %d %s, expected %d %s", c.Amount, c.Currency, p.Amount, p.Currency)
			ok, err := u.payments.FailIfPending(ctx, tx, p.ID, reason)
			if err != nil {
				return err
			}
			if ok {
				if err := u.releasePromo(ctx, tx, p); err != nil {
					return err
				}
			}
			log.Warn().Str("reason", reason).Msg("amount mismatch, payment failed")
			p.Status, p.FailureReason = model.PaymentStatusFailed, &reason
			res = failed(p, domain.ErrAmountMismatch)
			return nil
		}

		prov, err := u.provisioner.Provision(ctx, p.UserID, p.EntitlementDays, p.ID)
		if errors.Is(err, domain.ErrLockNotAcquired) {
			// Someone else is provisioning this user; leave the payment pending for a retry.
			return fmt.Errorf("provision user %d: %w", p.UserID, err)
		}
		if err != nil {
			reason := err.Error()
			ok, ferr := u.payments.FailIfPending(ctx, tx, p.ID, reason)
			if ferr != nil {
				return ferr
			}
			if ok {
				if ferr := u.releasePromo(ctx, tx, p); ferr != nil {
					return ferr
				}
			}
			log.Error().Err(err).Msg("provisioning failed, payment failed")
			p.Status, p.FailureReason = model.PaymentStatusFailed, &reason
			if !errors.Is(err, domain.ErrProvisioningFailed) {
				err = fmt.Errorf("%w: %v", domain.ErrProvisioningFailed, err)
			}
			res = failed(p, err)
			return nil
		}

		var extRef *string
		if c.ExternalReference != "" {
			extRef = &c.ExternalReference
		}
		now := u.now().UTC()
		ok, err := u.payments.CompleteIfPending(ctx, tx, p.ID, prov.AccountID, extRef, now)
		if err != nil {
			return err
		}
		if !ok {
			// Only reachable without a row lock; someone else settled it first.
			fresh, err := u.payments.FindByID(ctx, tx, p.ID)
			if err != nil {
				return err
			}
			res = alreadyCompleted(fresh)
			return nil
		}

		if p.PromoCode != nil {
			if _, err := u.promos.Consume(ctx, tx, *p.PromoCode, p.UserID, p.ID); err != nil {
				return fmt.Errorf("consume promo %s: %w", *p.PromoCode, err)
			}
		}

		p.Status, p.ProvisionedAccountID, p.CompletedAt = model.PaymentStatusCompleted, &prov.AccountID, &now
		if extRef != nil {
			p.ExternalReference = extRef
		}
		expiry := prov.Expiry
		res = &ReconcileResult{
			Outcome:   OutcomeProvisioned,
			Payment:   p,
			AccountID: prov.AccountID,
			Expiry:    &expiry,
			AccessURL: prov.AccessURL,
		}
		return nil
	})
	if err != nil {
		metrics.ObserveReconcile(string(c.Rail), "error", time.Since(start))
		return nil, err
	}

	metrics.ObserveReconcile(string(c.Rail), string(res.Outcome), time.Since(start))
	if res.Outcome == OutcomeProvisioned {
		metrics.IncPayment(string(c.Rail), string(model.PaymentStatusCompleted))
		metrics.AddPaymentRevenue(res.Payment.Currency, res.Payment.Amount)
		res.Referral = u.creditReferrer(ctx, res.Payment.UserID)
	} else if res.Outcome == OutcomeFailed && res.Payment != nil {
		metrics.IncPayment(string(c.Rail), string(model.PaymentStatusFailed))
	}
	return res, nil
}

// releasePromo returns the use a failed payment reserved at issue time.
func (u *reconcileUC) releasePromo(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if p.PromoCode == nil {
		return nil
	}
	if err := u.promos.Release(ctx, tx, *p.PromoCode); err != nil {
		return fmt.Errorf("release promo %s: %w", *p.PromoCode, err)
	}
	return nil
}

// creditReferrer runs after commit; its failure never touches the payment.
func (u *reconcileUC) creditReferrer(ctx context.Context, userID int64) *ReferralCredit {
	if u.referrals == nil {
		return nil
	}
	credit, err := u.referrals.CreditIfEligible(ctx, userID)
	if err != nil {
		u.log.Error().Err(err).Int64("user_id", userID).Msg("referral credit failed; it can be retried")
		return nil
	}
	return credit
}

func (u *reconcileUC) Precheck(ctx context.Context, rail model.Rail, lookupKey string, amount int64) error {
	p, err := u.payments.FindByLookupKey(ctx, repository.NoTX, rail, lookupKey)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrPaymentNotFound
	}
	if err != nil {
		return err
	}
	if !p.IsPending() {
		return domain.ErrPaymentFailed
	}
	if p.Amount != amount {
		return domain.ErrAmountMismatch
	}
	return nil
}

func (u *reconcileUC) GetPayment(ctx context.Context, paymentID string) (*model.Payment, error) {
	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	return p, err
}

func (u *reconcileUC) CheckStatus(ctx context.Context, paymentID string) (*ReconcileResult, error) {
	defer logging.TraceDuration(u.log, "ReconcileUC.CheckStatus")()

	p, err := u.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	switch {
	case p.IsCompleted():
		return alreadyCompleted(p), nil
	case p.IsFailed():
		return failed(p, domain.ErrPaymentFailed), nil
	case p.Rail != model.RailProcessor || u.status == nil || p.LookupKey == "":
		return &ReconcileResult{Outcome: OutcomePending, Payment: p}, nil
	}

	remote, err := u.status.FetchPayment(ctx, p.LookupKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	switch {
	case remote.Status == adapter.RemoteStatusSucceeded && remote.Paid:
		return u.Reconcile(ctx, Completion{
			Rail:      p.Rail,
			LookupKey: p.LookupKey,
			Amount:    remote.Amount,
			Currency:  remote.Currency,
		})
	case remote.Status == adapter.RemoteStatusCanceled:
		reason := "canceled by processor"
		ok, err := u.payments.FailIfPending(ctx, repository.NoTX, p.ID, reason)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Settled concurrently; report what the ledger holds now.
			return u.CheckStatus(ctx, paymentID)
		}
		if err := u.releasePromo(ctx, repository.NoTX, p); err != nil {
			u.log.Warn().Err(err).Str("payment_id", p.ID).Msg("could not release promo use")
		}
		metrics.IncPayment(string(p.Rail), string(model.PaymentStatusFailed))
		p.Status, p.FailureReason = model.PaymentStatusFailed, &reason
		return failed(p, domain.ErrPaymentFailed), nil
	default:
		return &ReconcileResult{Outcome: OutcomePending, Payment: p}, nil
	}
}

func (u *reconcileUC) Confirm(ctx context.Context, rail model.Rail, lookupKey string) (*ReconcileResult, error) {
	p, err := u.payments.FindByLookupKey(ctx, repository.NoTX, rail, lookupKey)
	if errors.Is(err, domain.ErrNotFound) {
		return failed(nil, domain.ErrPaymentNotFound), nil
	}
	if err != nil {
		return nil, err
	}
	return u.CheckStatus(ctx, p.ID)
}
