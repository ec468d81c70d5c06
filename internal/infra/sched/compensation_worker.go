package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"saas-billing-core/internal/domain/model"
	"saas-billing-core/internal/domain/ports/repository"
	"saas-billing-core/internal/infra/metrics"
)

// CompensationWorker replays pending compensation records whose interrupted
// procedure is safe to re-run: the refund-class ledger procedures are
// idempotent per payment, so re-invoking them settles the books without
// touching the gateway again. Records flagged for manual intervention are
// left for an operator and only counted here.
type CompensationWorker struct {
	records  repository.CompensationRepository
	procs    repository.LedgerProcedures
	interval time.Duration
	batch    int
	log      *zerolog.Logger
}

func NewCompensationWorker(
	records repository.CompensationRepository,
	procs repository.LedgerProcedures,
	interval time.Duration,
	batch int,
	logger *zerolog.Logger,
) *CompensationWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if batch <= 0 {
		batch = 50
	}
	return &CompensationWorker{
		records:  records,
		procs:    procs,
		interval: interval,
		batch:    batch,
		log:      logger,
	}
}

func (w *CompensationWorker) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *CompensationWorker) tick(ctx context.Context) {
	pending, err := w.records.ListPending(ctx, repository.NoTX, false, w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("compensation-worker: list pending failed")
		return
	}
	metrics.SetCompensationPending(len(pending))
	if len(pending) == 0 {
		return
	}

	var replayed, skipped int
	for _, rec := range pending {
		if ctx.Err() != nil {
			return
		}
		if rec.RequiresManualIntervention {
			skipped++
			continue
		}
		if err := w.replay(ctx, rec); err != nil {
			w.log.Warn().Err(err).
				Str("record_id", rec.ID).
				Str("operation", string(rec.Op)).
				Msg("compensation-worker: replay failed, will retry next pass")
			continue
		}
		if err := w.records.MarkProcessed(ctx, repository.NoTX, rec.ID, time.Now()); err != nil {
			w.log.Error().Err(err).Str("record_id", rec.ID).Msg("compensation-worker: mark processed failed")
			continue
		}
		replayed++
		w.log.Info().
			Str("record_id", rec.ID).
			Str("payment_id", rec.PaymentID).
			Str("operation", string(rec.Op)).
			Msg("compensation-worker: record resolved")
	}
	if replayed > 0 || skipped > 0 {
		w.log.Info().Int("replayed", replayed).Int("manual", skipped).Msg("compensation-worker: pass complete")
	}
}

func (w *CompensationWorker) replay(ctx context.Context, rec *model.CompensationRecord) error {
	args := repository.RefundArgs{
		PaymentID: rec.PaymentID,
		UserID:    rec.UserID,
		Amount:    rec.Amount,
		Reason:    "automated compensation replay",
	}
	switch rec.Op {
	case model.CompensationOpSimpleRefund:
		return w.procs.ProcessSimpleRefund(ctx, repository.NoTX, args)
	case model.CompensationOpCreditRefund:
		return w.procs.ProcessCreditRefund(ctx, repository.NoTX, args)
	case model.CompensationOpSubscriptionRefund:
		return w.procs.ProcessSubscriptionRefund(ctx, repository.NoTX, args)
	default:
		// Charge-side procedures need fields a record does not carry; those
		// records are created with the manual flag set, so reaching here means
		// a record was mis-filed. Leave it pending for an operator.
		w.log.Error().Str("record_id", rec.ID).Str("operation", string(rec.Op)).
			Msg("compensation-worker: no automated replay for operation")
		skipErr := &repository.ProcedureFailure{Procedure: string(rec.Op), Code: "NO_AUTOMATED_REPLAY", Message: "manual resolution required"}
		return skipErr
	}
}
