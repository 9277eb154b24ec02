package payment

import (
	"context"
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/adapter"
)

// StarsCurrency is the Telegram Stars currency code; invoices in it carry no provider token.
const StarsCurrency = "XTR"

var _ adapter.PaymentRail = (*StarsRail)(nil)

// BotRequester is the slice of *tgbotapi.BotAPI the Stars rail needs.
type BotRequester interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// StarsRail issues Telegram Stars invoice links. Settlement arrives through the bot
// as a successful_payment update whose invoice payload is the lookup key.
type StarsRail struct {
	bot BotRequester
	log *zerolog.Logger
}

func NewStarsRail(bot BotRequester, logger *zerolog.Logger) *StarsRail {
	compLog := logger.With().Str("component", "StarsRail").Logger()
	return &StarsRail{bot: bot, log: &compLog}
}

func (r *StarsRail) Name() model.Rail { return model.RailInPlatform }
func (r *StarsRail) Currency() string { return StarsCurrency }

type labeledPrice struct {
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

func (r *StarsRail) CreateIntent(ctx context.Context, p *model.Payment, title, description string) (*adapter.Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := model.EncodeInvoicePayload(model.NewInvoicePayload(p))
	if err != nil {
		return nil, err
	}

	params := tgbotapi.Params{}
	params["title"] = truncate(title, 32)
	params["description"] = truncate(description, 255)
	params["payload"] = payload
	params["provider_token"] = ""
	params["currency"] = StarsCurrency
	if err := params.AddInterface("prices", []labeledPrice{{Label: truncate(title, 32), Amount: p.Amount}}); err != nil {
		return nil, err
	}

	resp, err := r.bot.MakeRequest("createInvoiceLink", params)
	if err != nil {
		return nil, fmt.Errorf("%w: createInvoiceLink: %v", domain.ErrProviderUnavailable, err)
	}
	if !resp.Ok {
		return nil, fmt.Errorf("%w: createInvoiceLink: %s", domain.ErrProviderUnavailable, resp.Description)
	}
	var link string
	if err := json.Unmarshal(resp.Result, &link); err != nil || link == "" {
		return nil, fmt.Errorf("%w: createInvoiceLink returned no link", domain.ErrProviderUnavailable)
	}

	r.log.Debug().Str("payment_id", p.ID).Int64("amount", p.Amount).Msg("stars invoice link created")
	return &adapter.Intent{LookupKey: payload, PayURL: link}, nil
}
