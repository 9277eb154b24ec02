package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"

	"telegram-vpn-subscription/internal/config"
	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/adapter"
)

var (
	_ adapter.PaymentRail         = (*ProcessorRail)(nil)
	_ adapter.PaymentStatusSource = (*ProcessorRail)(nil)
)

// ProcessorRail talks to a YooKassa-compatible card processor over REST.
type ProcessorRail struct {
	baseURL   string
	shopID    string
	secretKey string
	returnURL string
	currency  string
	client    *http.Client
	log       *zerolog.Logger
}

func NewProcessorRail(cfg config.ProcessorConfig, logger *zerolog.Logger) (*ProcessorRail, error) {
	if cfg.ShopID == "" || cfg.SecretKey == "" {
		return nil, errors.New("processor shop id and secret key are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	compLog := logger.With().Str("component", "ProcessorRail").Logger()
	return &ProcessorRail{
		baseURL:   strings.TrimRight(cfg.APIURL, "/"),
		shopID:    cfg.ShopID,
		secretKey: cfg.SecretKey,
		returnURL: cfg.ReturnURL,
		currency:  cfg.Currency,
		client:    &http.Client{Timeout: timeout},
		log:       &compLog,
	}, nil
}

func (r *ProcessorRail) Name() model.Rail { return model.RailProcessor }
func (r *ProcessorRail) Currency() string { return r.currency }

type processorAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type processorPayment struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	Amount       processorAmount   `json:"amount"`
	Metadata     map[string]string `json:"metadata"`
	Confirmation struct {
		Type            string `json:"type"`
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation"`
}

type processorError struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// CreateIntent registers the payment with the processor. The payment id doubles as the
// Idempotence-Key, so a retried call cannot open a second charge.
func (r *ProcessorRail) CreateIntent(ctx context.Context, p *model.Payment, title, description string) (*adapter.Intent, error) {
	payload := map[string]any{
		"amount":  processorAmount{Value: FormatAmount(p.Amount), Currency: p.Currency},
		"capture": true,
		"confirmation": map[string]string{
			"type":       "redirect",
			"return_url": r.returnURL,
		},
		"description": truncate(title+". "+description, 128),
		"metadata": map[string]string{
			"user_id":            strconv.FormatInt(p.UserID, 10),
			"entitlement_months": strconv.Itoa(p.EntitlementMonths),
			"payment_id":         p.ID,
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var out processorPayment
	if err := r.do(ctx, http.MethodPost, "/payments", p.ID, b, &out); err != nil {
		return nil, err
	}
	if out.ID == "" || out.Confirmation.ConfirmationURL == "" {
		return nil, fmt.Errorf("%w: processor returned no confirmation url", domain.ErrProviderUnavailable)
	}

	intent := &adapter.Intent{LookupKey: out.ID, ExternalReference: out.ID, PayURL: out.Confirmation.ConfirmationURL}
	if png, err := qrcode.Encode(intent.PayURL, qrcode.Medium, 256); err != nil {
		r.log.Warn().Err(err).Str("payment_id", p.ID).Msg("qr code rendering failed")
	} else {
		intent.QRCode = png
	}
	return intent, nil
}

func (r *ProcessorRail) FetchPayment(ctx context.Context, id string) (*adapter.RemotePayment, error) {
	var out processorPayment
	if err := r.do(ctx, http.MethodGet, "/payments/"+id, "", nil, &out); err != nil {
		return nil, err
	}
	amount, err := ParseAmount(out.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("processor amount %q: %w", out.Amount.Value, err)
	}
	return &adapter.RemotePayment{
		ID:       out.ID,
		Status:   adapter.RemoteStatus(out.Status),
		Paid:     out.Paid,
		Amount:   amount,
		Currency: out.Amount.Currency,
		Metadata: out.Metadata,
	}, nil
}

func (r *ProcessorRail) do(ctx context.Context, method, path, idemKey string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.SetBasicAuth(r.shopID, r.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idemKey != "" {
		req.Header.Set("Idempotence-Key", idemKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", domain.ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("processor %s %s: %w", method, path, domain.ErrNotFound)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: processor http %d", domain.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 300:
		var pe processorError
		_ = json.Unmarshal(raw, &pe)
		return fmt.Errorf("processor http %d: %s %s", resp.StatusCode, pe.Code, pe.Description)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode processor response: %w", err)
	}
	return nil
}

// FormatAmount renders minor units as a decimal string with two fractional digits.
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// ParseAmount converts a decimal string such as "250.00" to minor units.
// More than two fractional digits are rejected rather than rounded.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" || len(frac) > 2 {
		return 0, fmt.Errorf("%w: amount %q", domain.ErrInvalidArgument, s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseUint(whole, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q", domain.ErrInvalidArgument, s)
	}
	f, err := strconv.ParseUint(frac, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q", domain.ErrInvalidArgument, s)
	}
	return int64(w)*100 + int64(f), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
