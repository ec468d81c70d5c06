package repository

import (
	"context"
	"time"

	"saas-billing-core/internal/domain/model"
)

type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	// FindActiveByUser returns the single active (or past_due) subscription for
	// a user, or domain.ErrNotFound.
	FindActiveByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)
	// ListDueForRenewal returns active subscriptions whose period ends (or whose
	// next retry is due) before the cutoff.
	ListDueForRenewal(ctx context.Context, tx Tx, cutoff time.Time, limit int) ([]*model.Subscription, error)
	// CountActiveByBillingKey reports how many active, non-cancel-pending
	// subscriptions reference a billing key. Guards default-key deletion.
	CountActiveByBillingKey(ctx context.Context, tx Tx, billingKeyID string) (int, error)
}
