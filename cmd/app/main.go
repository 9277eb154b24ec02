// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"telegram-vpn-subscription/internal/config"
	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/adapter"
	"telegram-vpn-subscription/internal/infra/adapters/panel"
	"telegram-vpn-subscription/internal/infra/adapters/payment"
	tele "telegram-vpn-subscription/internal/infra/adapters/telegram"
	"telegram-vpn-subscription/internal/infra/api"
	pg "telegram-vpn-subscription/internal/infra/db/postgres"
	"telegram-vpn-subscription/internal/infra/i18n"
	"telegram-vpn-subscription/internal/infra/logging"
	"telegram-vpn-subscription/internal/infra/metrics"
	red "telegram-vpn-subscription/internal/infra/redis"
	"telegram-vpn-subscription/internal/infra/sched"
	"telegram-vpn-subscription/internal/infra/security"
	"telegram-vpn-subscription/internal/infra/worker"
	"telegram-vpn-subscription/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: console logs, bot token optional")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("app stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	// ---- Postgres ----
	db, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer db.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)
	states := red.NewStateRepo(redisClient, cfg.Redis.TTL)

	// ---- Repositories ----
	accountRepo := pg.NewAccountRepo(db)
	paymentRepo := pg.NewPaymentRepo(db)
	promoRepo := pg.NewPromoCodeRepo(db)
	referralRepo := pg.NewReferralRepo(db)
	eventRepo := pg.NewWebhookEventRepo(db)
	notifLogRepo := pg.NewNotificationLogRepo(db)
	tm := pg.NewTxManager(db)

	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Locale)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}

	// ---- Telegram ----
	var (
		botAPI   *tgbotapi.BotAPI
		bot      *tele.Bot
		outbound adapter.TelegramBotAdapter
	)
	if cfg.Bot.Token != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.Bot.Token)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		username := cfg.Bot.Username
		if username == "" {
			username = botAPI.Self.UserName
		}
		bot = tele.NewBot(botAPI, username, cfg.Bot.Workers, logger)
		outbound = bot
	} else {
		logger.Warn().Msg("no bot token: outbound messages are logged only, Stars rail disabled")
		outbound = tele.NewNoopBotAdapter(logger)
	}

	// ---- Payment rails ----
	var (
		rails  []adapter.PaymentRail
		prices = map[model.Rail]model.PriceTable{}
		status adapter.PaymentStatusSource
	)
	if botAPI != nil {
		rails = append(rails, payment.NewStarsRail(botAPI, logger))
		prices[model.RailInPlatform] = model.PriceTable(cfg.Payment.Stars.Prices)
	}
	if cfg.Payment.Processor.Enabled {
		proc, err := payment.NewProcessorRail(cfg.Payment.Processor, logger)
		if err != nil {
			return fmt.Errorf("processor: %w", err)
		}
		logger.Info().
			Str("processor", cfg.Payment.Processor.Name).
			Str("shop_id", logging.Redact(cfg.Payment.Processor.ShopID, cfg.Runtime.Dev)).
			Msg("processor rail enabled")
		rails = append(rails, proc)
		prices[model.RailProcessor] = model.PriceTable(cfg.Payment.Processor.Prices)
		status = proc
	}

	panelClient := panel.NewRemnawaveClient(cfg.Panel, logger)

	// ---- Use cases ----
	provisionUC := usecase.NewProvisionUseCase(accountRepo, panelClient, locker, cfg.Panel.Description, cfg.Panel.Timeout, logger)
	referralUC := usecase.NewReferralUseCase(accountRepo, referralRepo, provisionUC, locker, tm, cfg.Referral.BonusDays, logger)
	accountUC := usecase.NewAccountUseCase(accountRepo, referralRepo, tm, logger)
	invoiceUC := usecase.NewInvoiceUseCase(paymentRepo, promoRepo, rails, prices, rateLimiter,
		usecase.InvoiceLimit{Limit: cfg.Payment.InvoiceLimit, Window: cfg.Payment.InvoiceWindow}, logger)
	reconcileUC := usecase.NewReconcileUseCase(paymentRepo, promoRepo, provisionUC, referralUC, status, tm, logger)
	trialUC := usecase.NewTrialUseCase(accountRepo, provisionUC, referralUC, cfg.Trial.Days, logger)
	promoUC := usecase.NewPromoUseCase(promoRepo, logger)
	notifUC := usecase.NewNotificationUseCase(outbound, tr, cfg.Bot.NotificationsChatID, logger)
	reminderUC := usecase.NewReminderUseCase(accountRepo, notifLogRepo, outbound, tr, logger)

	// Notification tasks drain on shutdown, so the pool outlives the signal context.
	pool := worker.NewPool(cfg.Workers, logger)
	pool.Start(context.Background())
	defer pool.Stop()

	// ---- HTTP: webhook, health, metrics, admin ----
	deps := api.Deps{
		Reconcile:      reconcileUC,
		Promos:         promoUC,
		Referrals:      referralUC,
		Notifier:       notifUC,
		Events:         eventRepo,
		Auth:           api.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL),
		Pool:           pool,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	}
	if p := cfg.Payment.Processor; p.Enabled {
		if p.WebhookSecret == "" {
			logger.Warn().Msg("payment.processor.webhook_secret is empty: webhooks are confirmed with the processor instead")
		}
		deps.Verifier = security.NewSignatureVerifier(p.WebhookSecret, logger)
		deps.Processor = p.Name
		deps.SignatureHeader = p.SignatureHeader
	}
	srv := api.NewServer(deps, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return srv.Run(gctx, cfg.HTTP.Port) })

	if bot != nil {
		bot.SetHandlers(tele.Handlers{
			Accounts:  accountUC,
			Invoices:  invoiceUC,
			Reconcile: reconcileUC,
			Trial:     trialUC,
			Referrals: referralUC,
			Notifier:  notifUC,
			States:    states,
			Limiter:   rateLimiter,
			Pool:      pool,
			T:         tr,
		})
		g.Go(func() error { return ignoreCanceled(bot.StartPolling(gctx)) })
	}

	// ---- Background jobs ----
	if status != nil {
		reconciler := sched.NewPaymentReconciler(reconcileUC, paymentRepo, notifUC, pool, locker,
			cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, logger)
		g.Go(func() error { return ignoreCanceled(reconciler.Run(gctx)) })
	}
	reminders := sched.NewNotificationWorker(cfg.Reminders.Interval, cfg.Reminders.ThresholdsDays, reminderUC, locker, logger)
	g.Go(func() error { return ignoreCanceled(reminders.Run(gctx)) })

	g.Go(func() error { return ignoreCanceled(observeDB(gctx, db)) })

	logger.Info().
		Int("http_port", cfg.HTTP.Port).
		Int("rails", len(rails)).
		Str("locale", tr.Lang()).
		Bool("processor", cfg.Payment.Processor.Enabled).
		Msg("app started")
	return g.Wait()
}

// observeDB exports connection pool gauges until ctx ends.
func observeDB(ctx context.Context, db *pgxpool.Pool) error {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		metrics.ObservePool(db.Stat())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
