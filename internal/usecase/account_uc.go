package usecase

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/repository"
	"telegram-vpn-subscription/internal/infra/logging"
)

// Compile-time check
var _ AccountUseCase = (*accountUC)(nil)

// AccountStatus is what /status shows.
type AccountStatus struct {
	Account          *model.Account
	ReferralsTotal   int
	ReferralsGranted int
}

type AccountUseCase interface {
	// Register mirrors the Telegram user locally, refreshing the username.
	Register(ctx context.Context, userID int64, username string) (*model.Account, error)
	Status(ctx context.Context, userID int64) (*AccountStatus, error)
}

type accountUC struct {
	accounts  repository.AccountRepository
	referrals repository.ReferralRepository
	tm        repository.TransactionManager
	log       *zerolog.Logger
}

func NewAccountUseCase(accounts repository.AccountRepository, referrals repository.ReferralRepository, tm repository.TransactionManager, logger *zerolog.Logger) *accountUC {
	return &accountUC{accounts: accounts, referrals: referrals, tm: tm, log: logger}
}

func (u *accountUC) Register(ctx context.Context, userID int64, username string) (*model.Account, error) {
	defer logging.TraceDuration(u.log, "AccountUC.Register")()

	a, err := model.NewAccount(userID, username)
	if err != nil {
		return nil, err
	}
	var stored *model.Account
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		stored, err = u.accounts.Ensure(ctx, tx, a)
		return err
	})
	if err != nil {
		u.log.Error().Err(err).Int64("user_id", userID).Msg("failed to register account")
		return nil, err
	}
	return stored, nil
}

func (u *accountUC) Status(ctx context.Context, userID int64) (*AccountStatus, error) {
	defer logging.TraceDuration(u.log, "AccountUC.Status")()

	a, err := u.accounts.FindByUserID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	total, granted, err := u.referrals.CountByReferrer(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	return &AccountStatus{Account: a, ReferralsTotal: total, ReferralsGranted: granted}, nil
}
