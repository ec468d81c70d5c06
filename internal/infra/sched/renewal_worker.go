package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"saas-billing-core/internal/domain"
	"saas-billing-core/internal/domain/ports/repository"
	"saas-billing-core/internal/infra/redis"
	"saas-billing-core/internal/usecase"
)

const renewalLockKey = "billing:renewal-scan"

// RenewalWorker periodically scans subscriptions whose period has ended (or
// whose retry is due) and charges them through the subscription use case. A
// Redis lease keeps concurrent instances from running the same scan; the
// single-statement renewal procedure makes a lost lease harmless anyway.
type RenewalWorker struct {
	uc       usecase.SubscriptionUseCase
	subs     repository.SubscriptionRepository
	locker   redis.Locker
	interval time.Duration
	batch    int
	lockTTL  time.Duration
	log      *zerolog.Logger
}

func NewRenewalWorker(
	uc usecase.SubscriptionUseCase,
	subs repository.SubscriptionRepository,
	locker redis.Locker,
	interval time.Duration,
	batch int,
	lockTTL time.Duration,
	logger *zerolog.Logger,
) *RenewalWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	if batch <= 0 {
		batch = 100
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &RenewalWorker{
		uc:       uc,
		subs:     subs,
		locker:   locker,
		interval: interval,
		batch:    batch,
		lockTTL:  lockTTL,
		log:      logger,
	}
}

func (w *RenewalWorker) Start(ctx context.Context) {
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

func (w *RenewalWorker) tick(ctx context.Context) {
	token, err := w.locker.TryLock(ctx, renewalLockKey, w.lockTTL)
	if err != nil {
		if !errors.Is(err, domain.ErrLockNotAcquired) {
			w.log.Warn().Err(err).Msg("renewal-worker: lock attempt failed")
		}
		return
	}
	defer func() {
		if err := w.locker.Unlock(ctx, renewalLockKey, token); err != nil {
			w.log.Warn().Err(err).Msg("renewal-worker: unlock failed")
		}
	}()

	due, err := w.subs.ListDueForRenewal(ctx, repository.NoTX, time.Now(), w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("renewal-worker: list due failed")
		return
	}
	if len(due) == 0 {
		return
	}
	w.log.Info().Int("count", len(due)).Msg("renewal-worker: scan")

	var renewed, retried, exhausted int
	for _, sub := range due {
		if ctx.Err() != nil {
			return
		}
		err := w.uc.RenewSubscription(ctx, sub.ID)
		switch {
		case err == nil:
			renewed++
		case errors.Is(err, domain.ErrRenewalRetryLater):
			retried++
			w.log.Warn().Err(err).Str("subscription_id", sub.ID).Msg("renewal-worker: charge failed, retry scheduled")
		case errors.Is(err, domain.ErrRenewalExhausted):
			exhausted++
			w.log.Error().Str("subscription_id", sub.ID).Msg("renewal-worker: retries exhausted, subscription past due")
		default:
			w.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("renewal-worker: renewal failed")
		}
	}
	w.log.Info().
		Int("renewed", renewed).
		Int("retry_scheduled", retried).
		Int("exhausted", exhausted).
		Msg("renewal-worker: scan complete")
}
