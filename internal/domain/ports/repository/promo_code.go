package repository

import (
	"context"

	"telegram-vpn-subscription/internal/domain/model"
)

// -----------------------------
// Promo codes
// -----------------------------

type PromoCodeRepository interface {
	// Save inserts a new code; an existing code yields domain.ErrAlreadyExists.
	Save(ctx context.Context, tx Tx, p *model.PromoCode) error
	FindByCode(ctx context.Context, tx Tx, code string) (*model.PromoCode, error)
	// Reserve takes one use for a pending payment. It returns false when the code is inactive or
	// max_uses is already reached, so uses_count never exceeds max_uses.
	Reserve(ctx context.Context, tx Tx, code string) (bool, error)
	// Release gives back a use reserved by a payment that failed.
	Release(ctx context.Context, tx Tx, code string) error
	// Consume records the redemption of a reserved use by a completed payment.
	// A payment redeems at most once; a repeat call returns false.
	Consume(ctx context.Context, tx Tx, code string, userID int64, paymentID string) (bool, error)
	List(ctx context.Context, tx Tx) ([]*model.PromoCode, error)
}
