package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/repository"
)

var _ repository.WebhookEventRepository = (*webhookEventRepo)(nil)

type webhookEventRepo struct {
	pool *pgxpool.Pool
}

func NewWebhookEventRepo(pool *pgxpool.Pool) *webhookEventRepo {
	return &webhookEventRepo{pool: pool}
}

func (r *webhookEventRepo) Record(ctx context.Context, tx repository.Tx, e *model.WebhookEvent) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	// the (processor, event, object_id) unique key turns redeliveries into no-ops
	const q = `
INSERT INTO webhook_events (id, processor, event, object_id, result, received_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (processor, event, object_id) DO NOTHING;`
	cmd, err := execSQL(ctx, r.pool, tx, q, e.ID, e.Processor, e.Event, e.ObjectID, e.Result, e.ReceivedAt)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *webhookEventRepo) SetResult(ctx context.Context, tx repository.Tx, id, result string) error {
	const q = `UPDATE webhook_events SET result=$2 WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, result)
	return mapExecErr(err)
}
