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

var _ repository.RefundRequestRepository = (*refundRequestRepo)(nil)

// refundRequestRepo is read-only: writes go through the atomic procedures
// (create_refund_request, update_refund_request_status) so state transitions
// stay guarded server-side.
type refundRequestRepo struct{ pool *pgxpool.Pool }

func NewRefundRequestRepo(pool *pgxpool.Pool) *refundRequestRepo {
	return &refundRequestRepo{pool: pool}
}

const refundRequestColumns = `id, payment_id, user_id, requested_amount, approved_amount, type, status, reason, admin_note, rejection_reason, processed_at, retry_count, created_at, updated_at`

func scanRefundRequest(row pgx.Row) (*model.RefundRequest, error) {
	req := &model.RefundRequest{}
	if err := row.Scan(&req.ID, &req.PaymentID, &req.UserID, &req.RequestedAmount, &req.ApprovedAmount, &req.Type, &req.Status, &req.Reason, &req.AdminNote, &req.RejectionReason, &req.ProcessedAt, &req.RetryCount, &req.CreatedAt, &req.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return req, nil
}

func (r *refundRequestRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.RefundRequest, error) {
	q := `SELECT ` + refundRequestColumns + ` FROM refund_requests WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanRefundRequest(row)
}

func (r *refundRequestRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.RefundStatus, offset, limit int) ([]*model.RefundRequest, error) {
	const q = `SELECT ` + refundRequestColumns + ` FROM refund_requests WHERE status=$1 ORDER BY created_at OFFSET $2 LIMIT $3;`
	return r.list(ctx, tx, q, status, offset, limit)
}

func (r *refundRequestRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.RefundRequest, error) {
	const q = `SELECT ` + refundRequestColumns + ` FROM refund_requests WHERE user_id=$1 ORDER BY created_at DESC OFFSET $2 LIMIT $3;`
	return r.list(ctx, tx, q, userID, offset, limit)
}

func (r *refundRequestRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.RefundRequest, error) {
	rows, err := pickRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.RefundRequest
	for rows.Next() {
		req := &model.RefundRequest{}
		if err := rows.Scan(&req.ID, &req.PaymentID, &req.UserID, &req.RequestedAmount, &req.ApprovedAmount, &req.Type, &req.Status, &req.Reason, &req.AdminNote, &req.RejectionReason, &req.ProcessedAt, &req.RetryCount, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, req)
	}
	return out, rows.Err()
}
