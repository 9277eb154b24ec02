package repository

import (
	"context"

	"telegram-vpn-subscription/internal/domain/model"
)

type WebhookEventRepository interface {
	// Record stores the delivery; false means the same (processor, event, object) was seen before.
	Record(ctx context.Context, tx Tx, e *model.WebhookEvent) (bool, error)
	SetResult(ctx context.Context, tx Tx, id, result string) error
}
