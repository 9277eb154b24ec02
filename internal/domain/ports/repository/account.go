package repository

import (
	"context"
	"time"

	"telegram-vpn-subscription/internal/domain/model"
)

// -----------------------------
// Accounts (local user mirror)
// -----------------------------

type AccountRepository interface {
	// Ensure inserts the account if missing and refreshes the username; it returns the stored row.
	Ensure(ctx context.Context, tx Tx, a *model.Account) (*model.Account, error)
	FindByUserID(ctx context.Context, tx Tx, userID int64) (*model.Account, error)
	// SetProvisioned stores the user -> panel account mapping and the mirrored expiry.
	// A non-empty grantID is recorded in the same statement, so a grant is visible exactly when its mapping is.
	SetProvisioned(ctx context.Context, tx Tx, userID int64, accountID string, shortID *string, expiry time.Time, grantID string) error
	// FindGrant returns domain.ErrNotFound when grantID was never applied.
	FindGrant(ctx context.Context, tx Tx, grantID string) (*model.ProvisionGrant, error)
	UpdateExpiry(ctx context.Context, tx Tx, userID int64, expiry time.Time) error
	// SetReferrerIfEmpty attributes the user to a referrer exactly once.
	SetReferrerIfEmpty(ctx context.Context, tx Tx, userID, referrerID int64) (bool, error)
	// MarkTrialUsed flips trial_used to true; false when it already was.
	MarkTrialUsed(ctx context.Context, tx Tx, userID int64) (bool, error)
	ListExpiringBetween(ctx context.Context, tx Tx, from, to time.Time, limit int) ([]*model.Account, error)
}
