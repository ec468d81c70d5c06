package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"saas-billing-core/internal/domain"
	"saas-billing-core/internal/domain/model"
	"saas-billing-core/internal/domain/ports/repository"
)

var _ repository.BillingKeyRepository = (*billingKeyRepo)(nil)

type billingKeyRepo struct{ pool *pgxpool.Pool }

func NewBillingKeyRepo(pool *pgxpool.Pool) *billingKeyRepo {
	return &billingKeyRepo{pool: pool}
}

const billingKeyColumns = `id, user_id, customer_key, encrypted_key, card_company, card_number, card_type, is_default, created_at, updated_at`

func scanBillingKey(row pgx.Row) (*model.BillingKey, error) {
	k := &model.BillingKey{}
	if err := row.Scan(&k.ID, &k.UserID, &k.CustomerKey, &k.EncryptedKey, &k.CardCompany, &k.CardNumber, &k.CardType, &k.IsDefault, &k.CreatedAt, &k.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return k, nil
}

func (r *billingKeyRepo) Save(ctx context.Context, tx repository.Tx, k *model.BillingKey) error {
	const q = `
INSERT INTO billing_keys (
  id, user_id, customer_key, encrypted_key, card_company, card_number, card_type, is_default, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
) ON CONFLICT (id) DO UPDATE SET
  encrypted_key=$4, card_company=$5, card_number=$6, card_type=$7, is_default=$8, updated_at=$10;`

	_, err := execSQL(ctx, r.pool, tx, q, k.ID, k.UserID, k.CustomerKey, k.EncryptedKey, k.CardCompany, k.CardNumber, k.CardType, k.IsDefault, k.CreatedAt, k.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *billingKeyRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.BillingKey, error) {
	const q = `SELECT ` + billingKeyColumns + ` FROM billing_keys WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanBillingKey(row)
}

func (r *billingKeyRepo) FindDefaultByUser(ctx context.Context, tx repository.Tx, userID string) (*model.BillingKey, error) {
	const q = `SELECT ` + billingKeyColumns + ` FROM billing_keys WHERE user_id=$1 AND is_default LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanBillingKey(row)
}

func (r *billingKeyRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.BillingKey, error) {
	const q = `SELECT ` + billingKeyColumns + ` FROM billing_keys WHERE user_id=$1 ORDER BY created_at;`
	rows, err := pickRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.BillingKey
	for rows.Next() {
		k := &model.BillingKey{}
		if err := rows.Scan(&k.ID, &k.UserID, &k.CustomerKey, &k.EncryptedKey, &k.CardCompany, &k.CardNumber, &k.CardType, &k.IsDefault, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// SetDefault flips the flag in one statement so there is never a moment with
// two defaults visible.
func (r *billingKeyRepo) SetDefault(ctx context.Context, tx repository.Tx, userID, keyID string) error {
	const q = `UPDATE billing_keys SET is_default=(id=$2), updated_at=NOW() WHERE user_id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, userID, keyID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *billingKeyRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	const q = `DELETE FROM billing_keys WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *billingKeyRepo) CountByUser(ctx context.Context, tx repository.Tx, userID string) (int, error) {
	const q = `SELECT COUNT(*) FROM billing_keys WHERE user_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}
