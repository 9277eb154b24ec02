package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"telegram-vpn-subscription/internal/config"
	"telegram-vpn-subscription/internal/infra/api"
	"telegram-vpn-subscription/internal/infra/db/postgres"
	"telegram-vpn-subscription/internal/infra/logging"
	"telegram-vpn-subscription/internal/infra/redis"
	"telegram-vpn-subscription/internal/usecase"
)

// This tool prepares a predictable state for manual end-to-end testing and prints an admin
// token for the HTTP API.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	reset := flag.Bool("reset", false, "wipe Redis and all ledger tables, then seed test promo codes")
	subject := flag.String("subject", "e2e", "subject of the minted admin token")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *reset {
		resetState(ctx, cfg, logger)
	}

	token, err := api.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL).Mint(*subject)
	if err != nil {
		logger.Fatal().Err(err).Msg("mint admin token (is admin.jwt_secret set?)")
	}
	fmt.Println(token)
}

func resetState(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	// --- Connect to Postgres ---
	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer pool.Close()

	// --- Connect to Redis ---
	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisClient.Close()

	logger.Info().Msg("[1/3] wiping Redis (conversation state, rate limits, locks)")
	if err := redisClient.FlushDB(ctx); err != nil {
		logger.Fatal().Err(err).Msg("flush redis")
	}

	logger.Info().Msg("[2/3] wiping ledger tables")
	_, err = pool.Exec(ctx, `
		TRUNCATE
			expiry_notifications, webhook_events, promo_redemptions, promo_codes,
			referrals, payments, provision_grants, accounts
		RESTART IDENTITY CASCADE;
	`)
	if err != nil {
		logger.Fatal().Err(err).Msg("truncate tables")
	}

	logger.Info().Msg("[3/3] seeding test promo codes")
	promoUC := usecase.NewPromoUseCase(postgres.NewPromoCodeRepo(pool), logger)
	for _, req := range []usecase.CreatePromoRequest{
		{Code: "E2E50", DiscountPercent: 50},
		{Code: "E2EBONUS", BonusDays: 10, MaxUses: 1},
	} {
		if _, err := promoUC.Create(ctx, req); err != nil {
			logger.Error().Err(err).Str("code", req.Code).Msg("seed promo code")
		}
	}
	logger.Info().Msg("e2e environment ready")
}
