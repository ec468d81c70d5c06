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

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, user_id, plan_id, billing_cycle, status, current_period_start, current_period_end, cancel_at_period_end, canceled_at, billing_key_id, scheduled_plan_id, scheduled_billing_cycle, scheduled_change_at, renewal_retry_count, next_renewal_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	if err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.BillingCycle, &s.Status, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &s.CanceledAt, &s.BillingKeyID, &s.ScheduledPlanID, &s.ScheduledBillingCycle, &s.ScheduledChangeAt, &s.RenewalRetryCount, &s.NextRenewalAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (
  id, user_id, plan_id, billing_cycle, status, current_period_start, current_period_end, cancel_at_period_end, canceled_at, billing_key_id, scheduled_plan_id, scheduled_billing_cycle, scheduled_change_at, renewal_retry_count, next_renewal_at, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
) ON CONFLICT (id) DO UPDATE SET
  plan_id=$3, billing_cycle=$4, status=$5, current_period_start=$6, current_period_end=$7, cancel_at_period_end=$8, canceled_at=$9, billing_key_id=$10, scheduled_plan_id=$11, scheduled_billing_cycle=$12, scheduled_change_at=$13, renewal_retry_count=$14, next_renewal_at=$15, updated_at=$17;`

	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.UserID, s.PlanID, s.BillingCycle, s.Status, s.CurrentPeriodStart, s.CurrentPeriodEnd, s.CancelAtPeriodEnd, s.CanceledAt, s.BillingKeyID, s.ScheduledPlanID, s.ScheduledBillingCycle, s.ScheduledChangeAt, s.RenewalRetryCount, s.NextRenewalAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id=$1 AND status IN ('active','past_due') LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

// ListDueForRenewal picks subscriptions whose period has ended, or whose
// scheduled retry has come due, skipping anything a retry counter has pushed
// into the future.
func (r *subscriptionRepo) ListDueForRenewal(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
FROM subscriptions
WHERE status='active'
  AND COALESCE(next_renewal_at, current_period_end) <= $1
ORDER BY current_period_end
LIMIT $2;`
	rows, err := pickRows(ctx, r.pool, tx, q, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s := &model.Subscription{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.PlanID, &s.BillingCycle, &s.Status, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &s.CanceledAt, &s.BillingKeyID, &s.ScheduledPlanID, &s.ScheduledBillingCycle, &s.ScheduledChangeAt, &s.RenewalRetryCount, &s.NextRenewalAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *subscriptionRepo) CountActiveByBillingKey(ctx context.Context, tx repository.Tx, billingKeyID string) (int, error) {
	const q = `SELECT COUNT(*) FROM subscriptions WHERE billing_key_id=$1 AND status='active' AND NOT cancel_at_period_end;`
	row, err := pickRow(ctx, r.pool, tx, q, billingKeyID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}
