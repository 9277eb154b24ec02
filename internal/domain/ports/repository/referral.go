package repository

import (
	"context"
	"time"

	"telegram-vpn-subscription/internal/domain/model"
)

// -----------------------------
// Referrals
// -----------------------------

type ReferralRepository interface {
	// Create inserts the referral edge; an existing edge for the referred user is left untouched.
	Create(ctx context.Context, tx Tx, r *model.Referral) error
	FindByReferred(ctx context.Context, tx Tx, referredID int64) (*model.Referral, error)
	// MarkGranted sets bonus_granted only if it was still false.
	MarkGranted(ctx context.Context, tx Tx, referredID int64, bonusDays int, at time.Time) (bool, error)
	CountByReferrer(ctx context.Context, tx Tx, referrerID int64) (total int, granted int, err error)
}
