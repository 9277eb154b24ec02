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
var _ ReferralUseCase = (*referralUC)(nil)

const referralLockTTL = time.Minute

// ReferralCredit describes a bonus that was granted.
type ReferralCredit struct {
	ReferrerID int64
	BonusDays  int
	NewExpiry  time.Time
}

type ReferralUseCase interface {
	// Attribute links referredID to referrerID once. Self-referrals are ignored.
	Attribute(ctx context.Context, referredID, referrerID int64) (bool, error)
	// CreditIfEligible rewards the referrer of referredID at most once.
	CreditIfEligible(ctx context.Context, referredID int64) (*ReferralCredit, error)
	Stats(ctx context.Context, referrerID int64) (total, granted int, err error)
}

type referralUC struct {
	accounts    repository.AccountRepository
	referrals   repository.ReferralRepository
	provisioner ProvisionUseCase
	locker      adapter.Locker
	tm          repository.TransactionManager
	bonusDays   int
	log         *zerolog.Logger
}

func NewReferralUseCase(
	accounts repository.AccountRepository,
	referrals repository.ReferralRepository,
	provisioner ProvisionUseCase,
	locker adapter.Locker,
	tm repository.TransactionManager,
	bonusDays int,
	logger *zerolog.Logger,
) *referralUC {
	return &referralUC{
		accounts:    accounts,
		referrals:   referrals,
		provisioner: provisioner,
		locker:      locker,
		tm:          tm,
		bonusDays:   bonusDays,
		log:         logger,
	}
}

func (u *referralUC) Attribute(ctx context.Context, referredID, referrerID int64) (bool, error) {
	defer logging.TraceDuration(u.log, "ReferralUC.Attribute")()
	if referrerID <= 0 || referredID == referrerID {
		return false, nil
	}

	var attributed bool
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.accounts.SetReferrerIfEmpty(ctx, tx, referredID, referrerID)
		if err != nil || !ok {
			return err
		}
		attributed = true
		return u.referrals.Create(ctx, tx, &model.Referral{
			ReferrerID: referrerID,
			ReferredID: referredID,
			CreatedAt:  time.Now().UTC(),
		})
	})
	if err != nil {
		return false, err
	}
	if attributed {
		u.log.Info().Int64("referred_id", referredID).Int64("referrer_id", referrerID).Msg("referral attributed")
	}
	return attributed, nil
}

// CreditIfEligible returns nil, nil when nothing was granted.
// A failure before the grant is recorded leaves the referral retryable.
func (u *referralUC) CreditIfEligible(ctx context.Context, referredID int64) (*ReferralCredit, error) {
	defer logging.TraceDuration(u.log, "ReferralUC.CreditIfEligible")()

	key := fmt.Sprintf("lock:referral:%d", referredID)
	token, err := u.locker.TryLock(ctx, key, referralLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = u.locker.Unlock(context.WithoutCancel(ctx), key, token) }()

	acct, err := u.accounts.FindByUserID(ctx, repository.NoTX, referredID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if acct.ReferrerID == nil {
		return nil, nil
	}
	referrerID := *acct.ReferrerID

	ref, err := u.referrals.FindByReferred(ctx, repository.NoTX, referredID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// Attributed before the edge existed; recreate it so the grant flag has a home.
		if err := u.referrals.Create(ctx, repository.NoTX, &model.Referral{
			ReferrerID: referrerID, ReferredID: referredID, CreatedAt: time.Now().UTC(),
		}); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case ref.BonusGranted:
		metrics.IncReferralCredit("already_granted")
		return nil, nil
	}

	res, err := u.provisioner.AddBonusDays(ctx, referrerID, u.bonusDays, fmt.Sprintf("referral:%d", referredID))
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncReferralCredit("no_account")
		u.log.Info().Int64("referrer_id", referrerID).Msg("referrer has no account yet; bonus deferred")
		return nil, nil
	}
	if err != nil {
		metrics.IncReferralCredit("error")
		return nil, err
	}

	granted, err := u.referrals.MarkGranted(ctx, repository.NoTX, referredID, u.bonusDays, time.Now().UTC())
	if err != nil {
		metrics.IncReferralCredit("error")
		return nil, fmt.Errorf("bonus applied for referrer %d but not recorded: %w", referrerID, err)
	}
	if !granted {
		u.log.Warn().Int64("referred_id", referredID).Msg("referral already marked granted by another writer")
		return nil, nil
	}

	metrics.IncReferralCredit("granted")
	u.log.Info().Int64("referrer_id", referrerID).Int64("referred_id", referredID).
		Time("expiry", res.Expiry).Msg("referral bonus granted")
	return &ReferralCredit{ReferrerID: referrerID, BonusDays: u.bonusDays, NewExpiry: res.Expiry}, nil
}

func (u *referralUC) Stats(ctx context.Context, referrerID int64) (int, int, error) {
	return u.referrals.CountByReferrer(ctx, repository.NoTX, referrerID)
}
