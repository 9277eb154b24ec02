package repository

import (
	"context"
	"time"
)

// -----------------------------
// Notifications Log
// -----------------------------

type NotificationLogRepository interface {
	// Save records that a reminder was sent; the (user, expiry, threshold) triple is unique.
	Save(ctx context.Context, tx Tx, userID int64, expiresAt time.Time, thresholdDays int) error
	// Exists checks if a specific reminder has already been sent.
	Exists(ctx context.Context, tx Tx, userID int64, expiresAt time.Time, thresholdDays int) (bool, error)
}
