package repository

import (
	"context"

	"saas-billing-core/internal/domain/model"
)

type RefundRequestRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.RefundRequest, error)
	ListByStatus(ctx context.Context, tx Tx, status model.RefundStatus, offset, limit int) ([]*model.RefundRequest, error)
	ListByUser(ctx context.Context, tx Tx, userID string, offset, limit int) ([]*model.RefundRequest, error)
}
