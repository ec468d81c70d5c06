package repository

import (
	"context"
	"time"

	"saas-billing-core/internal/domain/model"
)

// CompensationRepository is append-mostly: records are created on
// gateway-committed/DB-uncommitted failures and only ever move to processed.
type CompensationRepository interface {
	Save(ctx context.Context, tx Tx, rec *model.CompensationRecord) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.CompensationRecord, error)
	ListPending(ctx context.Context, tx Tx, manualOnly bool, limit int) ([]*model.CompensationRecord, error)
	MarkProcessed(ctx context.Context, tx Tx, id string, at time.Time) error
}
