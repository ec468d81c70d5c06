package repository

import (
	"context"

	"saas-billing-core/internal/domain/model"
)

type BillingKeyRepository interface {
	Save(ctx context.Context, tx Tx, k *model.BillingKey) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.BillingKey, error)
	FindDefaultByUser(ctx context.Context, tx Tx, userID string) (*model.BillingKey, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.BillingKey, error)
	// SetDefault marks the given key default and clears the flag on the user's
	// other keys in the same statement.
	SetDefault(ctx context.Context, tx Tx, userID, keyID string) error
	Delete(ctx context.Context, tx Tx, id string) error
	CountByUser(ctx context.Context, tx Tx, userID string) (int, error)
}
