package adapter

import (
	"context"

	"telegram-vpn-subscription/internal/domain/model"
)

// Intent is what a rail returns after creating a payment request.
type Intent struct {
	LookupKey         string // key the rail's completion signal will carry
	ExternalReference string // provider-side id, if different from LookupKey
	PayURL            string
	QRCode            []byte // PNG, optional
}

// PaymentRail is the hex port shared by every settlement channel.
type PaymentRail interface {
	Name() model.Rail
	Currency() string
	// CreateIntent asks the rail for a payable invoice for an already-persisted PENDING payment.
	CreateIntent(ctx context.Context, p *model.Payment, title, description string) (*Intent, error)
}

// RemoteStatus is the processor-side state of a payment.
type RemoteStatus string

const (
	RemoteStatusPending   RemoteStatus = "pending"
	RemoteStatusWaiting   RemoteStatus = "waiting_for_capture"
	RemoteStatusSucceeded RemoteStatus = "succeeded"
	RemoteStatusCanceled  RemoteStatus = "canceled"
)

// RemotePayment is a processor's view of one payment.
type RemotePayment struct {
	ID       string
	Status   RemoteStatus
	Paid     bool
	Amount   int64 // minor units
	Currency string
	Metadata map[string]string
}

// PaymentStatusSource is implemented by rails that can be polled.
type PaymentStatusSource interface {
	FetchPayment(ctx context.Context, id string) (*RemotePayment, error)
}
