package model

import (
	"encoding/json"
	"fmt"
	"time"

	"telegram-vpn-subscription/internal/domain"
)

// MaxInvoicePayloadLen is Telegram's limit for invoice payloads.
const MaxInvoicePayloadLen = 128

// InvoicePayload is the opaque string attached to an in-platform invoice.
// It is echoed back in pre-checkout and successful_payment updates and serves as the lookup key.
type InvoicePayload struct {
	PaymentID string `json:"p"`
	UserID    int64  `json:"u"`
	Days      int    `json:"d"`
	Amount    int64  `json:"a"`
	PromoCode string `json:"c,omitempty"`
	IssuedAt  int64  `json:"t"`
}

func NewInvoicePayload(p *Payment) InvoicePayload {
	ip := InvoicePayload{
		PaymentID: p.ID,
		UserID:    p.UserID,
		Days:      p.EntitlementDays,
		Amount:    p.Amount,
		IssuedAt:  p.CreatedAt.Unix(),
	}
	if p.PromoCode != nil {
		ip.PromoCode = *p.PromoCode
	}
	return ip
}

func EncodeInvoicePayload(ip InvoicePayload) (string, error) {
	b, err := json.Marshal(ip)
	if err != nil {
		return "", err
	}
	if len(b) > MaxInvoicePayloadLen {
		return "", fmt.Errorf("%w: invoice payload is %d bytes", domain.ErrInvalidArgument, len(b))
	}
	return string(b), nil
}

func DecodeInvoicePayload(s string) (InvoicePayload, error) {
	var ip InvoicePayload
	if err := json.Unmarshal([]byte(s), &ip); err != nil {
		return ip, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if ip.PaymentID == "" || ip.UserID <= 0 {
		return ip, domain.ErrInvalidArgument
	}
	return ip, nil
}

func (ip InvoicePayload) IssuedTime() time.Time { return time.Unix(ip.IssuedAt, 0).UTC() }
