package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/repository"
)

var _ repository.PromoCodeRepository = (*promoCodeRepo)(nil)

type promoCodeRepo struct {
	pool *pgxpool.Pool
}

func NewPromoCodeRepo(pool *pgxpool.Pool) *promoCodeRepo {
	return &promoCodeRepo{pool: pool}
}

const promoColumns = `code, discount_percent, bonus_days, max_uses, uses_count, active, expires_at, created_at`

func scanPromo(row pgx.Row) (*model.PromoCode, error) {
	p := &model.PromoCode{}
	if err := row.Scan(&p.Code, &p.DiscountPercent, &p.BonusDays, &p.MaxUses, &p.UsesCount, &p.Active, &p.ExpiresAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *promoCodeRepo) Save(ctx context.Context, tx repository.Tx, p *model.PromoCode) error {
	const q = `
INSERT INTO promo_codes (code, discount_percent, bonus_days, max_uses, uses_count, active, expires_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`
	_, err := execSQL(ctx, r.pool, tx, q, p.Code, p.DiscountPercent, p.BonusDays, p.MaxUses, p.UsesCount, p.Active, p.ExpiresAt, p.CreatedAt)
	return mapExecErr(err)
}

func (r *promoCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.PromoCode, error) {
	q := forUpdate(`SELECT `+promoColumns+` FROM promo_codes WHERE code=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, model.NormalizePromoCode(code))
	if err != nil {
		return nil, err
	}
	p, err := scanPromo(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}

// Reserve is a single conditional increment, so concurrent invoices cannot overshoot max_uses.
func (r *promoCodeRepo) Reserve(ctx context.Context, tx repository.Tx, code string) (bool, error) {
	const q = `
UPDATE promo_codes SET uses_count = uses_count + 1
WHERE code = $1 AND active AND (max_uses = 0 OR uses_count < max_uses);`
	cmd, err := execSQL(ctx, r.pool, tx, q, model.NormalizePromoCode(code))
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *promoCodeRepo) Release(ctx context.Context, tx repository.Tx, code string) error {
	const q = `UPDATE promo_codes SET uses_count = uses_count - 1 WHERE code = $1 AND uses_count > 0;`
	_, err := execSQL(ctx, r.pool, tx, q, model.NormalizePromoCode(code))
	return mapExecErr(err)
}

// Consume only logs the redemption; the use was counted by Reserve.
func (r *promoCodeRepo) Consume(ctx context.Context, tx repository.Tx, code string, userID int64, paymentID string) (bool, error) {
	const redeem = `
INSERT INTO promo_redemptions (code, user_id, payment_id)
VALUES ($1, $2, $3)
ON CONFLICT (payment_id) DO NOTHING;`
	cmd, err := execSQL(ctx, r.pool, tx, redeem, model.NormalizePromoCode(code), userID, paymentID)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *promoCodeRepo) List(ctx context.Context, tx repository.Tx) ([]*model.PromoCode, error) {
	const q = `SELECT ` + promoColumns + ` FROM promo_codes ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.PromoCode
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, nil
}
