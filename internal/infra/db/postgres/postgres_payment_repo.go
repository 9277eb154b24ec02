package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, rail, COALESCE(lookup_key, ''), external_reference, amount, currency,
  entitlement_months, entitlement_days, promo_code, status, provisioned_account_id, failure_reason,
  created_at, updated_at, completed_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	if err := row.Scan(&p.ID, &p.UserID, &p.Rail, &p.LookupKey, &p.ExternalReference, &p.Amount, &p.Currency,
		&p.EntitlementMonths, &p.EntitlementDays, &p.PromoCode, &p.Status, &p.ProvisionedAccountID, &p.FailureReason,
		&p.CreatedAt, &p.UpdatedAt, &p.CompletedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (
  id, user_id, rail, lookup_key, external_reference, amount, currency, entitlement_months, entitlement_days,
  promo_code, status, provisioned_account_id, failure_reason, created_at, updated_at, completed_at
) VALUES (
  $1,$2,$3,NULLIF($4,''),$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
) ON CONFLICT (id) DO UPDATE SET
  lookup_key=NULLIF($4,''), external_reference=$5, status=$11, provisioned_account_id=$12, failure_reason=$13,
  updated_at=$15, completed_at=$16;`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.UserID, p.Rail, p.LookupKey, p.ExternalReference, p.Amount, p.Currency,
		p.EntitlementMonths, p.EntitlementDays, p.PromoCode, p.Status, p.ProvisionedAccountID, p.FailureReason,
		p.CreatedAt, p.UpdatedAt, p.CompletedAt)
	return mapExecErr(err)
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := forUpdate(`SELECT `+paymentColumns+` FROM payments WHERE id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}

func (r *paymentRepo) FindByLookupKey(ctx context.Context, tx repository.Tx, rail model.Rail, key string) (*model.Payment, error) {
	q := forUpdate(`SELECT `+paymentColumns+` FROM payments WHERE rail=$1 AND lookup_key=$2`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, rail, key)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}

func (r *paymentRepo) SetLookupKey(ctx context.Context, tx repository.Tx, id, key string, externalRef *string) error {
	const q = `UPDATE payments SET lookup_key=$2, external_reference=COALESCE($3, external_reference), updated_at=NOW() WHERE id=$1 AND status='pending';`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, key, externalRef)
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CompleteIfPending atomically completes the payment only while its status is still 'pending'.
func (r *paymentRepo) CompleteIfPending(ctx context.Context, tx repository.Tx, id, accountID string, externalRef *string, completedAt time.Time) (bool, error) {
	const q = `
    UPDATE payments
       SET status = 'completed',
           provisioned_account_id = $2,
           external_reference = COALESCE($3, external_reference),
           completed_at = $4,
           updated_at = NOW()
     WHERE id = $1
       AND status = 'pending'`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, accountID, externalRef, completedAt)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) FailIfPending(ctx context.Context, tx repository.Tx, id, reason string) (bool, error) {
	const q = `
    UPDATE payments
       SET status = 'failed',
           failure_reason = $2,
           updated_at = NOW()
     WHERE id = $1
       AND status = 'pending'`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, reason)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, rail model.Rail, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments
 WHERE status='pending' AND rail=$1 AND lookup_key IS NOT NULL AND created_at < $2
 ORDER BY created_at ASC LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, rail, olderThan, limit)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}
