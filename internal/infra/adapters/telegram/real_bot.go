package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-vpn-subscription/internal/domain/ports/adapter"
	"telegram-vpn-subscription/internal/domain/ports/repository"
	"telegram-vpn-subscription/internal/infra/i18n"
	"telegram-vpn-subscription/internal/infra/logging"
	"telegram-vpn-subscription/internal/infra/metrics"
	red "telegram-vpn-subscription/internal/infra/redis"
	"telegram-vpn-subscription/internal/infra/worker"
	"telegram-vpn-subscription/internal/usecase"
)

var _ adapter.TelegramBotAdapter = (*Bot)(nil)

const (
	commandLimit  = 20
	callbackLimit = 30
)

// API is the part of *tgbotapi.BotAPI the bot talks to.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// TaskQueue accepts background work; *worker.Pool satisfies it.
type TaskQueue interface {
	Submit(task worker.Task) error
}

// Handlers are the use cases behind the bot's conversations. Limiter and Pool are optional.
type Handlers struct {
	Accounts  usecase.AccountUseCase
	Invoices  usecase.InvoiceUseCase
	Reconcile usecase.ReconcileUseCase
	Trial     usecase.TrialUseCase
	Referrals usecase.ReferralUseCase
	Notifier  usecase.NotificationUseCase
	States    repository.StateRepository
	Limiter   adapter.RateLimiter
	Pool      TaskQueue
	T         *i18n.Translator
}

// Bot polls Telegram updates and fans them out to a fixed number of workers.
// It is also the outbound messaging port used by notifications.
type Bot struct {
	api           API
	h             Handlers
	username      string
	updateWorkers int
	log           *zerolog.Logger
}

func NewBot(api API, username string, updateWorkers int, logger *zerolog.Logger) *Bot {
	if updateWorkers <= 0 {
		updateWorkers = 5
	}
	compLog := logger.With().Str("component", "TelegramBot").Logger()
	return &Bot{
		api:           api,
		username:      strings.TrimPrefix(username, "@"),
		updateWorkers: updateWorkers,
		log:           &compLog,
	}
}

// SetHandlers wires the use cases. Notifications depend on the bot, so this happens after NewBot.
func (b *Bot) SetHandlers(h Handlers) { b.h = h }

func (b *Bot) StartPolling(ctx context.Context) error {
	if b.h.T == nil {
		return errors.New("telegram: handlers are not set")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "callback_query", "pre_checkout_query"}
	updates := b.api.GetUpdatesChan(u)

	defer b.api.StopReceivingUpdates()

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < b.updateWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for up := range updateChan {
				if err := b.handleUpdate(ctx, up); err != nil {
					b.log.Error().Err(err).Int("worker", id).Int("update_id", up.UpdateID).Msg("update failed")
				}
			}
		}(i)
	}

	b.log.Info().Int("workers", b.updateWorkers).Str("bot", b.username).Msg("polling started")
	for {
		select {
		case <-ctx.Done():
			close(updateChan)
			wg.Wait()
			b.log.Info().Msg("polling stopped")
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				close(updateChan)
				wg.Wait()
				return nil
			}
			updateChan <- up
		}
	}
}

func (b *Bot) SendMessage(ctx context.Context, telegramID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.api.Send(tgbotapi.NewMessage(telegramID, text))
	return err
}

// SendButtons sends a message with an inline keyboard. A button with a URL opens a link,
// otherwise it sends its Data (or its label) back as a callback.
func (b *Bot) SendButtons(ctx context.Context, telegramID int64, text string, rows [][]adapter.InlineButton) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, r)
	}

	msg := tgbotapi.NewMessage(telegramID, text)
	if len(kbRows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	}
	_, err := b.api.Send(msg)
	return err
}

// SendPhoto sends an in-memory PNG with a caption.
func (b *Bot) SendPhoto(ctx context.Context, telegramID int64, png []byte, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(telegramID, tgbotapi.FileBytes{Name: "invoice.png", Bytes: png})
	photo.Caption = caption
	_, err := b.api.Send(photo)
	return err
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	ctx = logging.WithTraceID(ctx, uuid.NewString())

	switch {
	case update.PreCheckoutQuery != nil:
		return b.handlePreCheckout(ctx, update.PreCheckoutQuery)
	case update.CallbackQuery != nil:
		return b.handleQuery(ctx, update.CallbackQuery)
	case update.Message == nil || update.Message.From == nil:
		return nil
	}

	msg := update.Message
	userID := msg.From.ID
	ctx = logging.WithUserID(ctx, userID)

	if msg.SuccessfulPayment != nil {
		return b.handleSuccessfulPayment(ctx, userID, msg.SuccessfulPayment)
	}

	if msg.IsCommand() {
		command := msg.Command()
		metrics.IncTelegramCommand(command)
		if !b.allow(ctx, userID, "/"+command, commandLimit) {
			return b.SendMessage(ctx, userID, b.h.T.T("rate_limited"))
		}
		if fn, ok := b.commandRoutes()[command]; ok {
			return fn(ctx, msg)
		}
		return b.SendMessage(ctx, userID, b.h.T.T("unknown_command"))
	}

	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	if !b.allow(ctx, userID, "message", commandLimit) {
		return b.SendMessage(ctx, userID, b.h.T.T("rate_limited"))
	}
	return b.handleText(ctx, userID, msg.Text)
}

func (b *Bot) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}

	// Stop the client spinner when we return.
	defer func() { _, _ = b.api.Request(tgbotapi.NewCallback(query.ID, "")) }()

	userID := query.From.ID
	data := strings.TrimSpace(query.Data)

	if !b.allow(ctx, userID, "cb:"+data, callbackLimit) {
		return b.SendMessage(ctx, userID, b.h.T.T("rate_limited"))
	}

	if fn, ok := b.cbRoutes()[data]; ok {
		return fn(ctx, userID, data)
	}
	for _, pr := range b.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			return pr.Fn(ctx, userID, data)
		}
	}
	return errors.New("unknown callback data")
}

// allow applies the per-user rate limit. Limiter failures let the request through.
func (b *Bot) allow(ctx context.Context, userID int64, command string, limit int) bool {
	if b.h.Limiter == nil {
		return true
	}
	ok, err := b.h.Limiter.Allow(ctx, red.UserCommandKey(userID, command), limit, time.Minute)
	if err != nil {
		b.log.Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		metrics.IncRateLimitTriggered()
	}
	return ok
}

// settled reports a settlement to the payer. Provisioned results also reach the operator and the
// referrer, so they go through the notifier on the worker pool.
func (b *Bot) settled(ctx context.Context, userID int64, res *usecase.ReconcileResult) error {
	if res.Outcome != usecase.OutcomeProvisioned || b.h.Notifier == nil {
		return b.SendMessage(ctx, userID, usecase.PaymentMessage(b.h.T, res))
	}
	if b.h.Pool == nil {
		return b.h.Notifier.Settled(ctx, res)
	}
	tid := logging.TraceIDFrom(ctx)
	err := b.h.Pool.Submit(func(ctx context.Context) error {
		ctx = logging.WithTraceID(ctx, tid)
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return b.h.Notifier.Settled(ctx, res)
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("settlement notification queue unavailable, sending inline")
		return b.h.Notifier.Settled(ctx, res)
	}
	return nil
}
