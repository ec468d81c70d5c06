package repository

import (
	"context"
	"time"

	"saas-billing-core/internal/domain/model"
)

type WebhookLogRepository interface {
	// UpsertIfAbsent inserts a pending entry for the idempotency key and returns
	// (entry, true) when this is a first delivery. For a duplicate key it returns
	// the original entry and false without mutating it. Single atomic statement.
	UpsertIfAbsent(ctx context.Context, tx Tx, key, eventType string, payload []byte) (*model.WebhookLogEntry, bool, error)
	// MarkResult finalizes the entry after routing.
	MarkResult(ctx context.Context, tx Tx, id string, status model.WebhookStatus, errMsg string, at time.Time) error
}
