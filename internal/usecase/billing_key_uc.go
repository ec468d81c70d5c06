package usecase

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"saas-billing-core/internal/domain"
	"saas-billing-core/internal/domain/model"
	"saas-billing-core/internal/domain/ports/repository"
)

// Compile-time check
var _ BillingKeyUseCase = (*billingKeyUC)(nil)

type BillingKeyUseCase interface {
	ListPaymentMethods(ctx context.Context, userID string) ([]*model.BillingKey, error)
	SetDefaultPaymentMethod(ctx context.Context, userID, keyID string) error
	// DeletePaymentMethod removes a stored key. The default key cannot be
	// deleted while it backs an active subscription.
	DeletePaymentMethod(ctx context.Context, userID, keyID string) error
}

type billingKeyUC struct {
	keys repository.BillingKeyRepository
	subs repository.SubscriptionRepository
	txm  repository.TransactionManager
	log  *zerolog.Logger
}

func NewBillingKeyUseCase(
	keys repository.BillingKeyRepository,
	subs repository.SubscriptionRepository,
	txm repository.TransactionManager,
	log *zerolog.Logger,
) *billingKeyUC {
	return &billingKeyUC{keys: keys, subs: subs, txm: txm, log: log}
}

func (u *billingKeyUC) ListPaymentMethods(ctx context.Context, userID string) ([]*model.BillingKey, error) {
	return u.keys.ListByUser(ctx, repository.NoTX, userID)
}

func (u *billingKeyUC) SetDefaultPaymentMethod(ctx context.Context, userID, keyID string) error {
	key, err := u.keys.FindByID(ctx, repository.NoTX, keyID)
	if err != nil {
		return err
	}
	if key.UserID != userID {
		return domain.ErrNotOwner
	}
	return u.keys.SetDefault(ctx, repository.NoTX, userID, keyID)
}

// DeletePaymentMethod removes a key and, when it was the default, promotes a
// replacement in the same transaction. Delete and promotion commit or roll
// back together so a user never ends up with keys but no charge target.
func (u *billingKeyUC) DeletePaymentMethod(ctx context.Context, userID, keyID string) error {
	return u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		key, err := u.keys.FindByID(ctx, tx, keyID)
		if err != nil {
			return err
		}
		if key.UserID != userID {
			return domain.ErrNotOwner
		}

		active, err := u.subs.CountActiveByBillingKey(ctx, tx, keyID)
		if err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("%w: key backs %d active subscription(s)", domain.ErrBillingKeyInUse, active)
		}

		if err := u.keys.Delete(ctx, tx, keyID); err != nil {
			return err
		}

		if !key.IsDefault {
			return nil
		}
		remaining, err := u.keys.ListByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			return nil
		}
		if err := u.keys.SetDefault(ctx, tx, userID, remaining[0].ID); err != nil {
			return err
		}
		u.log.Info().
			Str("user_id", userID).
			Str("promoted_key_id", remaining[0].ID).
			Msg("replacement default billing key promoted")
		return nil
	})
}
