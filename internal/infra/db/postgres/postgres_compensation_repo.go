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

var _ repository.CompensationRepository = (*compensationRepo)(nil)

type compensationRepo struct{ pool *pgxpool.Pool }

func NewCompensationRepo(pool *pgxpool.Pool) *compensationRepo {
	return &compensationRepo{pool: pool}
}

const compensationColumns = `id, payment_id, user_id, op, amount, error_message, requires_manual_intervention, status, processed_at, created_at`

func (r *compensationRepo) Save(ctx context.Context, tx repository.Tx, rec *model.CompensationRecord) error {
	const q = `
INSERT INTO compensation_records (
  id, payment_id, user_id, op, amount, error_message, requires_manual_intervention, status, processed_at, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`

	_, err := execSQL(ctx, r.pool, tx, q, rec.ID, rec.PaymentID, rec.UserID, rec.Op, rec.Amount, rec.ErrorMessage, rec.RequiresManualIntervention, rec.Status, rec.ProcessedAt, rec.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *compensationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.CompensationRecord, error) {
	const q = `SELECT ` + compensationColumns + ` FROM compensation_records WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	rec := &model.CompensationRecord{}
	if err := row.Scan(&rec.ID, &rec.PaymentID, &rec.UserID, &rec.Op, &rec.Amount, &rec.ErrorMessage, &rec.RequiresManualIntervention, &rec.Status, &rec.ProcessedAt, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return rec, nil
}

func (r *compensationRepo) ListPending(ctx context.Context, tx repository.Tx, manualOnly bool, limit int) ([]*model.CompensationRecord, error) {
	const q = `
SELECT ` + compensationColumns + `
FROM compensation_records
WHERE status='pending' AND ($1::bool IS FALSE OR requires_manual_intervention)
ORDER BY created_at
LIMIT $2;`
	rows, err := pickRows(ctx, r.pool, tx, q, manualOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.CompensationRecord
	for rows.Next() {
		rec := &model.CompensationRecord{}
		if err := rows.Scan(&rec.ID, &rec.PaymentID, &rec.UserID, &rec.Op, &rec.Amount, &rec.ErrorMessage, &rec.RequiresManualIntervention, &rec.Status, &rec.ProcessedAt, &rec.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *compensationRepo) MarkProcessed(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	const q = `UPDATE compensation_records SET status='processed', processed_at=$2 WHERE id=$1 AND status='pending';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, at)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
