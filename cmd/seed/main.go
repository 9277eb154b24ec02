package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"telegram-vpn-subscription/internal/config"
	"telegram-vpn-subscription/internal/domain"
	pg "telegram-vpn-subscription/internal/infra/db/postgres"
	"telegram-vpn-subscription/internal/infra/logging"
	"telegram-vpn-subscription/internal/usecase"
)

// seed inserts the launch promo codes. Codes that already exist are left alone.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	promoUC := usecase.NewPromoUseCase(pg.NewPromoCodeRepo(pool), logger)

	seed := []usecase.CreatePromoRequest{
		{Code: "WELCOME10", DiscountPercent: 10},
		{Code: "FRIENDS", BonusDays: 7, MaxUses: 500},
		{Code: "LAUNCH50", DiscountPercent: 50, MaxUses: 100},
	}

	created := 0
	for _, req := range seed {
		p, err := promoUC.Create(ctx, req)
		if errors.Is(err, domain.ErrAlreadyExists) {
			fmt.Printf("exists:  %s\n", req.Code)
			continue
		}
		if err != nil {
			logger.Fatal().Err(err).Str("code", req.Code).Msg("create promo code")
		}
		created++
		fmt.Printf("seeded:  %s (discount=%d%%, bonus_days=%d, max_uses=%d)\n", p.Code, p.DiscountPercent, p.BonusDays, p.MaxUses)
	}
	fmt.Printf("Seeding complete: %d new promo codes.\n", created)
}
