package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"telegram-vpn-subscription/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // invoice issued; awaiting the rail's completion signal
	PaymentStatusCompleted PaymentStatus = "completed" // entitlement granted; terminal
	PaymentStatusFailed    PaymentStatus = "failed"    // rail error, amount mismatch or provisioning failure; terminal
)

// Rail is the settlement channel a payment travels through.
type Rail string

const (
	RailInPlatform Rail = "in_platform"        // Telegram Stars invoice
	RailProcessor  Rail = "external_processor" // card processor with webhook
)

func (r Rail) Valid() bool { return r == RailInPlatform || r == RailProcessor }

// DaysPerMonth converts a purchased month into entitlement days.
const DaysPerMonth = 30

// Payment is one ledger row: a purchase attempt and its terminal outcome.
type Payment struct {
	ID                   string // ULID
	UserID               int64  // Telegram user id
	Rail                 Rail
	LookupKey            string  // invoice payload (in-platform) or processor payment id
	ExternalReference    *string // processor charge id, when known
	Amount               int64   // minor units: stars or kopecks
	Currency             string
	EntitlementMonths    int
	EntitlementDays      int
	PromoCode            *string
	Status               PaymentStatus
	ProvisionedAccountID *string
	FailureReason        *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	CompletedAt          *time.Time
}

// NewPaymentID returns a time-sortable ledger id.
func NewPaymentID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}

// NewPendingPayment builds a PENDING ledger row. The lookup key is filled in once the rail answers.
func NewPendingPayment(userID int64, rail Rail, amount int64, currency string, months, days int, promo *string) (*Payment, error) {
	if userID <= 0 || !rail.Valid() || amount < 0 || days <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Payment{
		ID:                NewPaymentID(now),
		UserID:            userID,
		Rail:              rail,
		Amount:            amount,
		Currency:          currency,
		EntitlementMonths: months,
		EntitlementDays:   days,
		PromoCode:         promo,
		Status:            PaymentStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (p *Payment) IsPending() bool   { return p.Status == PaymentStatusPending }
func (p *Payment) IsCompleted() bool { return p.Status == PaymentStatusCompleted }
func (p *Payment) IsFailed() bool    { return p.Status == PaymentStatusFailed }
