package repository

import (
	"context"
	"time"

	"telegram-vpn-subscription/internal/domain/model"
)

// -----------------------------
// Payments (ledger)
// -----------------------------

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	// FindByLookupKey locks the row when tx is a live transaction.
	FindByLookupKey(ctx context.Context, tx Tx, rail model.Rail, key string) (*model.Payment, error)
	// SetLookupKey binds the rail's identifier to a PENDING row.
	SetLookupKey(ctx context.Context, tx Tx, id, key string, externalRef *string) error
	// CompleteIfPending moves PENDING -> COMPLETED; false when the row was no longer pending.
	CompleteIfPending(ctx context.Context, tx Tx, id, accountID string, externalRef *string, completedAt time.Time) (bool, error)
	// FailIfPending moves PENDING -> FAILED; false when the row was no longer pending.
	FailIfPending(ctx context.Context, tx Tx, id, reason string) (bool, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, rail model.Rail, olderThan time.Time, limit int) ([]*model.Payment, error)
}
