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

var _ repository.AccountRepository = (*accountRepo)(nil)

type accountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *accountRepo {
	return &accountRepo{pool: pool}
}

const accountColumns = `user_id, username, provisioned_account_id, short_id, referrer_id, trial_used, entitlement_expiry, created_at, updated_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	a := &model.Account{}
	if err := row.Scan(&a.UserID, &a.Username, &a.ProvisionedAccountID, &a.ShortID, &a.ReferrerID,
		&a.TrialUsed, &a.EntitlementExpiry, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *accountRepo) Ensure(ctx context.Context, tx repository.Tx, a *model.Account) (*model.Account, error) {
	const q = `
INSERT INTO accounts (user_id, username, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (user_id) DO UPDATE SET
  username = CASE WHEN EXCLUDED.username <> '' THEN EXCLUDED.username ELSE accounts.username END,
  updated_at = NOW()
RETURNING ` + accountColumns + `;`
	row, err := pickRow(ctx, r.pool, tx, q, a.UserID, a.Username, a.CreatedAt)
	if err != nil {
		return nil, err
	}
	out, err := scanAccount(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return out, nil
}

func (r *accountRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID int64) (*model.Account, error) {
	q := forUpdate(`SELECT `+accountColumns+` FROM accounts WHERE user_id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	a, err := scanAccount(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return a, nil
}

func (r *accountRepo) SetProvisioned(ctx context.Context, tx repository.Tx, userID int64, accountID string, shortID *string, expiry time.Time, grantID string) error {
	const q = `
WITH grant_row AS (
  INSERT INTO provision_grants (grant_id, user_id, account_id, expiry)
  SELECT $5::text, $1::bigint, $2::text, $4::timestamptz WHERE $5::text <> ''
  ON CONFLICT (grant_id) DO NOTHING
)
INSERT INTO accounts (user_id, provisioned_account_id, short_id, entitlement_expiry)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE SET
  provisioned_account_id = $2,
  short_id = COALESCE($3, accounts.short_id),
  entitlement_expiry = $4,
  updated_at = NOW();`
	_, err := execSQL(ctx, r.pool, tx, q, userID, accountID, shortID, expiry, grantID)
	return mapExecErr(err)
}

func (r *accountRepo) FindGrant(ctx context.Context, tx repository.Tx, grantID string) (*model.ProvisionGrant, error) {
	const q = `SELECT grant_id, user_id, account_id, expiry, created_at FROM provision_grants WHERE grant_id=$1`
	row, err := pickRow(ctx, r.pool, tx, q, grantID)
	if err != nil {
		return nil, err
	}
	g := &model.ProvisionGrant{}
	if err := row.Scan(&g.GrantID, &g.UserID, &g.AccountID, &g.Expiry, &g.CreatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return g, nil
}

func (r *accountRepo) UpdateExpiry(ctx context.Context, tx repository.Tx, userID int64, expiry time.Time) error {
	const q = `UPDATE accounts SET entitlement_expiry=$2, updated_at=NOW() WHERE user_id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, userID, expiry)
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *accountRepo) SetReferrerIfEmpty(ctx context.Context, tx repository.Tx, userID, referrerID int64) (bool, error) {
	const q = `UPDATE accounts SET referrer_id=$2, updated_at=NOW() WHERE user_id=$1 AND referrer_id IS NULL AND user_id <> $2;`
	cmd, err := execSQL(ctx, r.pool, tx, q, userID, referrerID)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *accountRepo) MarkTrialUsed(ctx context.Context, tx repository.Tx, userID int64) (bool, error) {
	const q = `UPDATE accounts SET trial_used=TRUE, updated_at=NOW() WHERE user_id=$1 AND trial_used=FALSE;`
	cmd, err := execSQL(ctx, r.pool, tx, q, userID)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *accountRepo) ListExpiringBetween(ctx context.Context, tx repository.Tx, from, to time.Time, limit int) ([]*model.Account, error) {
	if limit <= 0 {
		limit = 500
	}
	const q = `SELECT ` + accountColumns + ` FROM accounts
 WHERE provisioned_account_id IS NOT NULL AND entitlement_expiry > $1 AND entitlement_expiry <= $2
 ORDER BY entitlement_expiry ASC LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, from, to, limit)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}
