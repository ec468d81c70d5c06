package repository

import (
	"context"
	"time"

	"saas-billing-core/internal/domain/model"
)

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByOrderID(ctx context.Context, tx Tx, orderID string) (*model.Payment, error)
	FindByPaymentKey(ctx context.Context, tx Tx, paymentKey string) (*model.Payment, error)

	// UpdateStatusIfPending transitions a pending payment to the given status and
	// reports whether a row changed. Concurrent confirm attempts resolve to
	// exactly one true here; the loser sees false and must not re-apply effects.
	UpdateStatusIfPending(ctx context.Context, tx Tx, id string, status model.PaymentStatus, paymentKey *string, confirmedAt *time.Time, failReason string) (bool, error)

	ListByUser(ctx context.Context, tx Tx, userID string, offset, limit int) ([]*model.Payment, error)
}
