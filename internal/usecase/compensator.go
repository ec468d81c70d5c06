package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"saas-billing-core/internal/domain/model"
	"saas-billing-core/internal/domain/ports/adapter"
	"saas-billing-core/internal/domain/ports/repository"
	"saas-billing-core/internal/infra/metrics"
)

// Compensator is the single funnel for the gateway-committed/DB-uncommitted
// failure class. Every orchestrator path that has already moved money at the
// gateway and then fails to record it routes through Record: one compensation
// row, one best-effort admin alert, never an error back to the caller.
type Compensator struct {
	records repository.CompensationRepository
	alerter adapter.AdminAlerter
	log     *zerolog.Logger
}

func NewCompensator(records repository.CompensationRepository, alerter adapter.AdminAlerter, log *zerolog.Logger) *Compensator {
	return &Compensator{records: records, alerter: alerter, log: log}
}

// Record persists a compensation record and fires the admin alert. Both are
// best-effort: a failure here is logged loudly but not propagated, because the
// caller is about to report success for a refund/charge the gateway did apply.
func (c *Compensator) Record(ctx context.Context, op model.CompensationOp, paymentID, userID string, amount int64, cause error) {
	rec, err := model.NewCompensationRecord(uuid.NewString(), paymentID, userID, op, amount, cause.Error(), !op.Replayable())
	if err != nil {
		c.log.Error().Err(err).Str("payment_id", paymentID).Msg("compensation record construction failed")
		return
	}
	if err := c.records.Save(ctx, repository.NoTX, rec); err != nil {
		// Worst case: gateway committed, DB failed, and even the compensation
		// write failed. The log line is the last trace, so it carries everything.
		c.log.Error().Err(err).
			Str("payment_id", paymentID).
			Str("user_id", userID).
			Str("op", string(op)).
			Int64("amount", amount).
			Str("cause", cause.Error()).
			Msg("CRITICAL: compensation record write failed")
		return
	}
	metrics.IncCompensation(string(op))
	c.log.Warn().
		Str("compensation_id", rec.ID).
		Str("payment_id", paymentID).
		Str("op", string(op)).
		Int64("amount", amount).
		Msg("gateway committed but ledger update failed; compensation recorded")

	if c.alerter == nil {
		return
	}
	subject := "Manual intervention required: ledger out of sync"
	body := fmt.Sprintf("op=%s payment=%s user=%s amount=%d error=%s", op, paymentID, userID, amount, cause.Error())
	if err := c.alerter.Alert(ctx, subject, body); err != nil {
		c.log.Warn().Err(err).Str("compensation_id", rec.ID).Msg("admin alert failed")
	}
}
