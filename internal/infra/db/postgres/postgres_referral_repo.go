package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/repository"
)

var _ repository.ReferralRepository = (*referralRepo)(nil)

type referralRepo struct {
	pool *pgxpool.Pool
}

func NewReferralRepo(pool *pgxpool.Pool) *referralRepo {
	return &referralRepo{pool: pool}
}

func (r *referralRepo) Create(ctx context.Context, tx repository.Tx, ref *model.Referral) error {
	const q = `
INSERT INTO referrals (referred_id, referrer_id, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (referred_id) DO NOTHING;`
	_, err := execSQL(ctx, r.pool, tx, q, ref.ReferredID, ref.ReferrerID, ref.CreatedAt)
	return mapExecErr(err)
}

func (r *referralRepo) FindByReferred(ctx context.Context, tx repository.Tx, referredID int64) (*model.Referral, error) {
	q := forUpdate(`SELECT referrer_id, referred_id, bonus_granted, bonus_days, created_at, granted_at FROM referrals WHERE referred_id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, referredID)
	if err != nil {
		return nil, err
	}
	ref := &model.Referral{}
	if err := row.Scan(&ref.ReferrerID, &ref.ReferredID, &ref.BonusGranted, &ref.BonusDays, &ref.CreatedAt, &ref.GrantedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return ref, nil
}

// MarkGranted flips bonus_granted exactly once.
func (r *referralRepo) MarkGranted(ctx context.Context, tx repository.Tx, referredID int64, bonusDays int, at time.Time) (bool, error) {
	const q = `
UPDATE referrals
   SET bonus_granted = TRUE, bonus_days = $2, granted_at = $3
 WHERE referred_id = $1 AND bonus_granted = FALSE;`
	cmd, err := execSQL(ctx, r.pool, tx, q, referredID, bonusDays, at)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *referralRepo) CountByReferrer(ctx context.Context, tx repository.Tx, referrerID int64) (int, int, error) {
	const q = `SELECT COUNT(*), COUNT(*) FILTER (WHERE bonus_granted) FROM referrals WHERE referrer_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, referrerID)
	if err != nil {
		return 0, 0, err
	}
	var total, granted int
	if err := row.Scan(&total, &granted); err != nil {
		return 0, 0, domain.ErrReadDatabaseRow
	}
	return total, granted, nil
}
