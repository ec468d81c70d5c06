package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"saas-billing-core/internal/domain"
	"saas-billing-core/internal/domain/model"
	"saas-billing-core/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, order_id, type, status, amount, refunded_amount, payment_key, method, receipt_url, fail_reason, created_at, updated_at, confirmed_at, meta`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	if err := row.Scan(&p.ID, &p.UserID, &p.OrderID, &p.Type, &p.Status, &p.Amount, &p.RefundedAmount, &p.PaymentKey, &p.Method, &p.ReceiptURL, &p.FailReason, &p.CreatedAt, &p.UpdatedAt, &p.ConfirmedAt, &p.Meta); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (
  id, user_id, order_id, type, status, amount, refunded_amount, payment_key, method, receipt_url, fail_reason, created_at, updated_at, confirmed_at, meta
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
) ON CONFLICT (id) DO UPDATE SET
  status=$5, amount=$6, refunded_amount=$7, payment_key=$8, method=$9, receipt_url=$10, fail_reason=$11, updated_at=$13, confirmed_at=$14, meta=$15;`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.UserID, p.OrderID, p.Type, p.Status, p.Amount, p.RefundedAmount, p.PaymentKey, p.Method, p.ReceiptURL, p.FailReason, p.CreatedAt, p.UpdatedAt, p.ConfirmedAt, p.Meta)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByPaymentKey(ctx context.Context, tx repository.Tx, paymentKey string) (*model.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE payment_key=$1 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, paymentKey)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

// UpdateStatusIfPending is the single guarded transition out of pending. The
// WHERE clause carries the guard, so concurrent callers race on one row update
// and exactly one of them sees a row affected.
func (r *paymentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, paymentKey *string, confirmedAt *time.Time, failReason string) (bool, error) {
	const q = `
UPDATE payments
SET status=$2, payment_key=COALESCE($3, payment_key), confirmed_at=COALESCE($4, confirmed_at), fail_reason=$5, updated_at=NOW()
WHERE id=$1 AND status='pending';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, status, paymentKey, confirmedAt, failReason)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() > 0, nil
}

func (r *paymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE user_id=$1 ORDER BY created_at DESC OFFSET $2 LIMIT $3;`
	rows, err := pickRows(ctx, r.pool, tx, q, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p := &model.Payment{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.OrderID, &p.Type, &p.Status, &p.Amount, &p.RefundedAmount, &p.PaymentKey, &p.Method, &p.ReceiptURL, &p.FailReason, &p.CreatedAt, &p.UpdatedAt, &p.ConfirmedAt, &p.Meta); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
