package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"saas-billing-core/internal/domain"
	"saas-billing-core/internal/domain/model"
	"saas-billing-core/internal/domain/ports/repository"
)

var _ repository.WebhookLogRepository = (*webhookLogRepo)(nil)

type webhookLogRepo struct{ pool *pgxpool.Pool }

func NewWebhookLogRepo(pool *pgxpool.Pool) *webhookLogRepo {
	return &webhookLogRepo{pool: pool}
}

// UpsertIfAbsent claims the idempotency key in one statement. The unique index
// on idempotency_key is what makes concurrent duplicate deliveries safe: the
// INSERT either lands (first delivery) or conflicts (duplicate), and the
// duplicate path reads the original row.
func (r *webhookLogRepo) UpsertIfAbsent(ctx context.Context, tx repository.Tx, key, eventType string, payload []byte) (*model.WebhookLogEntry, bool, error) {
	const ins = `
INSERT INTO webhook_logs (id, idempotency_key, event_type, payload, status, created_at)
VALUES ($1,$2,$3,$4,'pending',NOW())
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING id, created_at;`

	entry := &model.WebhookLogEntry{
		IdempotencyKey: key,
		EventType:      eventType,
		Payload:        payload,
		Status:         model.WebhookStatusPending,
	}
	row, err := pickRow(ctx, r.pool, tx, ins, uuid.NewString(), key, eventType, payload)
	if err != nil {
		return nil, false, err
	}
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err == nil {
		return entry, true, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, domain.ErrReadDatabaseRow
	}

	// Conflict: this key was seen before. Return the stored entry.
	const sel = `SELECT id, idempotency_key, event_type, payload, status, error, processed_at, created_at FROM webhook_logs WHERE idempotency_key=$1;`
	row, err = pickRow(ctx, r.pool, tx, sel, key)
	if err != nil {
		return nil, false, err
	}
	existing := &model.WebhookLogEntry{}
	if err := row.Scan(&existing.ID, &existing.IdempotencyKey, &existing.EventType, &existing.Payload, &existing.Status, &existing.Error, &existing.ProcessedAt, &existing.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, domain.ErrNotFound
		}
		return nil, false, domain.ErrReadDatabaseRow
	}
	return existing, false, nil
}

func (r *webhookLogRepo) MarkResult(ctx context.Context, tx repository.Tx, id string, status model.WebhookStatus, errMsg string, at time.Time) error {
	const q = `UPDATE webhook_logs SET status=$2, error=$3, processed_at=$4 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, status, errMsg, at)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
