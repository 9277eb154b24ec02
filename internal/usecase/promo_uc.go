package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/repository"
	"telegram-vpn-subscription/internal/infra/logging"
)

// Compile-time check
var _ PromoUseCase = (*promoUC)(nil)

type CreatePromoRequest struct {
	Code            string     `json:"code"`
	DiscountPercent int        `json:"discount_percent"`
	BonusDays       int        `json:"bonus_days"`
	MaxUses         int        `json:"max_uses"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

type PromoUseCase interface {
	Create(ctx context.Context, req CreatePromoRequest) (*model.PromoCode, error)
	List(ctx context.Context) ([]*model.PromoCode, error)
}

type promoUC struct {
	promos repository.PromoCodeRepository
	log    *zerolog.Logger
}

func NewPromoUseCase(promos repository.PromoCodeRepository, logger *zerolog.Logger) *promoUC {
	return &promoUC{promos: promos, log: logger}
}

func (u *promoUC) Create(ctx context.Context, req CreatePromoRequest) (*model.PromoCode, error) {
	defer logging.TraceDuration(u.log, "PromoUC.Create")()
	p, err := model.NewPromoCode(req.Code, req.DiscountPercent, req.BonusDays, req.MaxUses, req.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := u.promos.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	u.log.Info().Str("code", p.Code).Int("discount", p.DiscountPercent).Int("bonus_days", p.BonusDays).Msg("promo code saved")
	return p, nil
}

func (u *promoUC) List(ctx context.Context) ([]*model.PromoCode, error) {
	return u.promos.List(ctx, repository.NoTX)
}
