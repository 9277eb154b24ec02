package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/ports/repository"
)

var _ repository.NotificationLogRepository = (*notificationLogRepo)(nil)

type notificationLogRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationLogRepo(pool *pgxpool.Pool) *notificationLogRepo {
	return &notificationLogRepo{pool: pool}
}

func (r *notificationLogRepo) Save(ctx context.Context, tx repository.Tx, userID int64, expiresAt time.Time, thresholdDays int) error {
	// The primary key on (user_id, expires_at, threshold_days) handles duplicate prevention.
	const q = `
INSERT INTO expiry_notifications (user_id, expires_at, threshold_days)
VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING`
	_, err := execSQL(ctx, r.pool, tx, q, userID, expiresAt, thresholdDays)
	return mapExecErr(err)
}

func (r *notificationLogRepo) Exists(ctx context.Context, tx repository.Tx, userID int64, expiresAt time.Time, thresholdDays int) (bool, error) {
	const q = `
SELECT EXISTS(
    SELECT 1 FROM expiry_notifications
    WHERE user_id = $1 AND expires_at = $2 AND threshold_days = $3
)`
	row, err := pickRow(ctx, r.pool, tx, q, userID, expiresAt, thresholdDays)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}
