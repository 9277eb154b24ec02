package model

import (
	"strings"
	"time"

	"telegram-vpn-subscription/internal/domain"
)

// PromoCode grants either a percentage discount or extra entitlement days, never both.
type PromoCode struct {
	Code            string
	DiscountPercent int
	BonusDays       int
	MaxUses         int // 0 = unlimited
	UsesCount       int
	Active          bool
	ExpiresAt       *time.Time
	CreatedAt       time.Time
}

const (
	maxPromoCodeLen = 16
	// MaxDiscountPercent keeps every discounted price above zero.
	MaxDiscountPercent = 99
)

// NormalizePromoCode upper-cases and trims user input.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func NewPromoCode(code string, discountPercent, bonusDays, maxUses int, expiresAt *time.Time) (*PromoCode, error) {
	code = NormalizePromoCode(code)
	if code == "" || len(code) > maxPromoCodeLen {
		return nil, domain.ErrInvalidArgument
	}
	if discountPercent < 0 || discountPercent > MaxDiscountPercent || bonusDays < 0 || maxUses < 0 {
		return nil, domain.ErrInvalidArgument
	}
	if (discountPercent > 0) == (bonusDays > 0) {
		return nil, domain.ErrInvalidArgument
	}
	return &PromoCode{
		Code:            code,
		DiscountPercent: discountPercent,
		BonusDays:       bonusDays,
		MaxUses:         maxUses,
		Active:          true,
		ExpiresAt:       expiresAt,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// CanUse reports whether the code may be applied right now; the error is a *domain.PromoError.
func (p *PromoCode) CanUse(now time.Time) error {
	switch {
	case !p.Active:
		return &domain.PromoError{Code: p.Code, Reason: "inactive"}
	case p.ExpiresAt != nil && !now.Before(*p.ExpiresAt):
		return &domain.PromoError{Code: p.Code, Reason: "expired"}
	case p.MaxUses > 0 && p.UsesCount >= p.MaxUses:
		return &domain.PromoError{Code: p.Code, Reason: "usage limit reached"}
	}
	return nil
}

// Apply returns the discounted price and the extra days the code grants.
// Discounts truncate toward zero.
func (p *PromoCode) Apply(base int64) (price int64, bonusDays int) {
	if p == nil {
		return base, 0
	}
	if p.DiscountPercent > 0 {
		return base * int64(100-p.DiscountPercent) / 100, 0
	}
	return base, p.BonusDays
}
