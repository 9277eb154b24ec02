package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/adapter"
	"telegram-vpn-subscription/internal/domain/ports/repository"
	"telegram-vpn-subscription/internal/infra/worker"
	"telegram-vpn-subscription/internal/usecase"
)

const (
	reconcilerLockKey = "lock:sched:payment_reconciler"
	reconcileBatch    = 200
)

// TaskQueue accepts background work; *worker.Pool satisfies it.
type TaskQueue interface {
	Submit(task worker.Task) error
}

// PaymentReconciler periodically polls the processor for stale pending payments. It covers
// webhooks that never arrived and users who never pressed "check status".
type PaymentReconciler struct {
	uc         usecase.ReconcileUseCase
	payments   repository.PaymentRepository
	notifier   usecase.NotificationUseCase
	pool       TaskQueue
	locker     adapter.Locker
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending payment must be to poll
	log        *zerolog.Logger
}

func NewPaymentReconciler(
	uc usecase.ReconcileUseCase,
	payments repository.PaymentRepository,
	notifier usecase.NotificationUseCase,
	pool TaskQueue,
	locker adapter.Locker,
	interval, staleAfter time.Duration,
	logger *zerolog.Logger,
) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	compLog := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{
		uc:         uc,
		payments:   payments,
		notifier:   notifier,
		pool:       pool,
		locker:     locker,
		interval:   interval,
		staleAfter: staleAfter,
		log:        &compLog,
	}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("stale_after", w.staleAfter).Msg("starting payment reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping payment reconciler")
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		}
	}
}

// tick returns how many payments reached a terminal state.
func (w *PaymentReconciler) tick(ctx context.Context) int {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, reconcilerLockKey, w.interval)
		if errors.Is(err, domain.ErrLockNotAcquired) {
			w.log.Debug().Msg("another instance is reconciling")
			return 0
		}
		if err != nil {
			w.log.Warn().Err(err).Msg("reconciler lock unavailable")
			return 0
		}
		defer func() { _ = w.locker.Unlock(context.Background(), reconcilerLockKey, token) }()
	}

	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.payments.ListPendingOlderThan(ctx, repository.NoTX, model.RailProcessor, cutoff, reconcileBatch)
	if err != nil {
		w.log.Error().Err(err).Msg("list pending payments failed")
		return 0
	}

	settled := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			break
		}
		if p.LookupKey == "" {
			continue
		}
		res, err := w.uc.CheckStatus(ctx, p.ID)
		if err != nil {
			w.log.Warn().Err(err).Str("payment_id", p.ID).Msg("status poll failed")
			continue
		}
		if res.Outcome == usecase.OutcomePending {
			continue
		}
		settled++
		w.log.Info().Str("payment_id", p.ID).Str("outcome", string(res.Outcome)).Msg("stale payment resolved")
		if res.Outcome != usecase.OutcomeAlreadyCompleted {
			w.notify(res)
		}
	}
	return settled
}

func (w *PaymentReconciler) notify(res *usecase.ReconcileResult) {
	if w.notifier == nil || w.pool == nil {
		return
	}
	if err := w.pool.Submit(func(ctx context.Context) error { return w.notifier.Settled(ctx, res) }); err != nil {
		w.log.Warn().Err(err).Msg("settlement notification dropped")
	}
}
