package repository

import (
	"context"

	"saas-billing-core/internal/domain/model"
)

type PlanRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Plan, error)
	List(ctx context.Context, tx Tx) ([]*model.Plan, error)
}
