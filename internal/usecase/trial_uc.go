package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/ports/repository"
	"telegram-vpn-subscription/internal/infra/logging"
)

// Compile-time check
var _ TrialUseCase = (*trialUC)(nil)

type TrialUseCase interface {
	// Activate provisions the free trial once per user, before any purchase.
	Activate(ctx context.Context, userID int64) (*ProvisionResult, error)
}

type trialUC struct {
	accounts    repository.AccountRepository
	provisioner ProvisionUseCase
	referrals   ReferralUseCase
	days        int
	log         *zerolog.Logger
}

func NewTrialUseCase(accounts repository.AccountRepository, provisioner ProvisionUseCase, referrals ReferralUseCase, days int, logger *zerolog.Logger) *trialUC {
	return &trialUC{accounts: accounts, provisioner: provisioner, referrals: referrals, days: days, log: logger}
}

func (u *trialUC) Activate(ctx context.Context, userID int64) (*ProvisionResult, error) {
	defer logging.TraceDuration(u.log, "TrialUC.Activate")()
	if u.days <= 0 {
		return nil, domain.ErrTrialUnavailable
	}

	acct, err := u.accounts.FindByUserID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	if acct.TrialUsed || acct.IsProvisioned() {
		return nil, domain.ErrTrialUnavailable
	}
	// Claim first so two taps cannot both provision.
	claimed, err := u.accounts.MarkTrialUsed(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, domain.ErrTrialUnavailable
	}

	res, err := u.provisioner.Provision(ctx, userID, u.days, fmt.Sprintf("trial:%d", userID))
	if err != nil {
		u.log.Error().Err(err).Int64("user_id", userID).Msg("trial provisioning failed")
		return nil, err
	}
	u.log.Info().Int64("user_id", userID).Time("expiry", res.Expiry).Msg("trial activated")

	if u.referrals != nil {
		if _, err := u.referrals.CreditIfEligible(ctx, userID); err != nil {
			u.log.Error().Err(err).Int64("user_id", userID).Msg("referral credit after trial failed")
		}
	}
	return res, nil
}
