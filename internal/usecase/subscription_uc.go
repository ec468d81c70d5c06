package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"saas-billing-core/internal/domain"
	"saas-billing-core/internal/domain/model"
	"saas-billing-core/internal/domain/ports/adapter"
	"saas-billing-core/internal/domain/ports/repository"
	"saas-billing-core/internal/infra/metrics"
)

// Encryptor guards the billing key at rest: the plaintext key exists only
// between gateway issuance and Encrypt, or between Decrypt and the charge call.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

type ConfirmSubscriptionInput struct {
	AuthKey     string
	CustomerKey string
	OrderID     string
	PlanID      string
	Cycle       model.BillingCycle
}

type SubscriptionUseCase interface {
	// PrepareSubscription pre-creates a pending payment for the plan's
	// server-side price. Client-submitted amounts are never trusted.
	PrepareSubscription(ctx context.Context, userID, planID string, cycle model.BillingCycle) (*model.Payment, error)

	// ConfirmSubscription issues the billing key, charges the first period, and
	// creates the subscription in one atomic procedure.
	ConfirmSubscription(ctx context.Context, userID string, in ConfirmSubscriptionInput) (*model.Subscription, error)

	// RenewSubscription charges the stored billing key for the next period.
	// Invoked by the renewal worker. Failure escalates through the retry policy
	// before the past_due transition.
	RenewSubscription(ctx context.Context, subscriptionID string) error

	CancelSubscription(ctx context.Context, userID string, atPeriodEnd bool) error
}

type subscriptionUC struct {
	plans    repository.PlanRepository
	subs     repository.SubscriptionRepository
	payments repository.PaymentRepository
	keys     repository.BillingKeyRepository
	procs    repository.LedgerProcedures
	gateway  adapter.PaymentGateway
	enc      Encryptor
	comp     *Compensator
	retry    RetryPolicy
	log      *zerolog.Logger
	now      func() time.Time
}

func NewSubscriptionUseCase(
	plans repository.PlanRepository,
	subs repository.SubscriptionRepository,
	payments repository.PaymentRepository,
	keys repository.BillingKeyRepository,
	procs repository.LedgerProcedures,
	gateway adapter.PaymentGateway,
	enc Encryptor,
	comp *Compensator,
	log *zerolog.Logger,
) *subscriptionUC {
	return &subscriptionUC{
		plans:    plans,
		subs:     subs,
		payments: payments,
		keys:     keys,
		procs:    procs,
		gateway:  gateway,
		enc:      enc,
		comp:     comp,
		retry:    RetryPolicy{MaxAttempts: model.RenewalMaxAttempts, Interval: model.RenewalRetryInterval},
		log:      log,
		now:      time.Now,
	}
}

func newOrderID() string { return ulid.Make().String() }

func (u *subscriptionUC) PrepareSubscription(ctx context.Context, userID, planID string, cycle model.BillingCycle) (*model.Payment, error) {
	plan, err := u.plans.FindByID(ctx, repository.NoTX, planID)
	if err != nil {
		return nil, err
	}
	existing, err := u.subs.FindActiveByUser(ctx, repository.NoTX, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.PlanID == planID {
			return nil, domain.ErrSamePlan
		}
		return nil, domain.ErrActiveSubscriptionExists
	}

	p, err := model.NewPayment(uuid.NewString(), userID, newOrderID(), model.PaymentTypeSubscription, plan.Price(cycle), model.PaymentMeta{
		PlanID:       planID,
		BillingCycle: string(cycle),
	})
	if err != nil {
		return nil, err
	}
	if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	metrics.IncPayment("pending")
	return p, nil
}

func (u *subscriptionUC) ConfirmSubscription(ctx context.Context, userID string, in ConfirmSubscriptionInput) (*model.Subscription, error) {
	p, err := u.payments.FindByOrderID(ctx, repository.NoTX, in.OrderID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrNotOwner
	}
	plan, err := u.plans.FindByID(ctx, repository.NoTX, in.PlanID)
	if err != nil {
		return nil, err
	}
	// Re-validate the pending payment against server-side truth.
	if p.Status != model.PaymentStatusPending ||
		p.Meta.PlanID != in.PlanID ||
		p.Meta.BillingCycle != string(in.Cycle) ||
		p.Amount != plan.Price(in.Cycle) {
		return nil, domain.ErrInvalidArgument
	}

	info, err := u.gateway.IssueBillingKey(ctx, in.AuthKey, in.CustomerKey)
	if err != nil {
		u.failPayment(ctx, p.ID, err)
		return nil, err
	}

	encKey, err := u.enc.Encrypt(info.BillingKey)
	if err != nil {
		u.failPayment(ctx, p.ID, err)
		return nil, err
	}
	key, err := model.NewBillingKey(uuid.NewString(), userID, info.CustomerKey, encKey)
	if err != nil {
		return nil, err
	}
	key.CardCompany = info.CardCompany
	key.CardNumber = info.CardNumber
	key.CardType = info.CardType
	if n, err := u.keys.CountByUser(ctx, repository.NoTX, userID); err == nil && n == 0 {
		key.IsDefault = true
	}
	if err := u.keys.Save(ctx, repository.NoTX, key); err != nil {
		u.failPayment(ctx, p.ID, err)
		return nil, err
	}

	orderName := fmt.Sprintf("%s (%s)", plan.Name, in.Cycle)
	receipt, err := u.gateway.ChargeBilling(ctx, info.BillingKey, info.CustomerKey, p.Amount, p.OrderID, orderName)
	if err != nil {
		var gwErr *adapter.GatewayError
		if !errors.As(err, &gwErr) {
			// Unknown outcome: the charge may have applied. Keep the key, record
			// for manual reconciliation, surface the error.
			u.comp.Record(ctx, model.CompensationOpConfirmSubscription, p.ID, userID, p.Amount, fmt.Errorf("gateway outcome unknown: %w", err))
			return nil, err
		}
		// Declined: a registered key that cannot charge must not linger.
		u.failPayment(ctx, p.ID, err)
		u.deleteKey(ctx, key.ID)
		return nil, err
	}

	// Exact amount cross-check against the gateway response. A mismatch is a
	// hard failure even though the charge nominally succeeded; the charged
	// amount is flagged for reconciliation rather than silently accepted.
	if receipt.TotalAmount != p.Amount {
		mismatch := fmt.Errorf("%w: expected %d, gateway charged %d", domain.ErrAmountMismatch, p.Amount, receipt.TotalAmount)
		u.comp.Record(ctx, model.CompensationOpConfirmSubscription, p.ID, userID, receipt.TotalAmount, mismatch)
		u.failPayment(ctx, p.ID, mismatch)
		u.deleteKey(ctx, key.ID)
		return nil, mismatch
	}

	sub, err := model.NewSubscription(uuid.NewString(), userID, in.PlanID, in.Cycle, key.ID)
	if err != nil {
		return nil, err
	}
	args := repository.ConfirmSubscriptionArgs{
		PaymentID:      p.ID,
		UserID:         userID,
		PlanID:         in.PlanID,
		BillingCycle:   in.Cycle,
		BillingKeyID:   key.ID,
		PaymentKey:     receipt.PaymentKey,
		Amount:         receipt.TotalAmount,
		PeriodStart:    sub.CurrentPeriodStart,
		PeriodEnd:      sub.CurrentPeriodEnd,
		SubscriptionID: sub.ID,
	}
	if err := u.procs.ConfirmSubscription(ctx, repository.NoTX, args); err != nil {
		// Gateway committed, ledger did not: same compensation funnel as
		// refunds. The customer was charged, so the key stays and the caller
		// sees success; the confirm procedure is replayed during reconciliation.
		u.comp.Record(ctx, model.CompensationOpConfirmSubscription, p.ID, userID, receipt.TotalAmount, err)
		metrics.IncSubscription("confirm_compensated")
		return sub, nil
	}

	metrics.IncPayment("completed")
	metrics.IncSubscription("created")
	u.log.Info().
		Str("subscription_id", sub.ID).
		Str("plan_id", in.PlanID).
		Str("cycle", string(in.Cycle)).
		Msg("subscription created")
	return sub, nil
}

func (u *subscriptionUC) RenewSubscription(ctx context.Context, subscriptionID string) error {
	sub, err := u.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != model.SubscriptionStatusActive {
		return domain.ErrNoActiveSubscription
	}
	if sub.CancelAtPeriodEnd {
		if err := sub.Cancel(); err != nil {
			return err
		}
		if err := u.subs.Save(ctx, repository.NoTX, sub); err != nil {
			return err
		}
		metrics.IncSubscription("canceled_at_period_end")
		return nil
	}
	if sub.BillingKeyID == nil {
		return domain.ErrNoDefaultBillingKey
	}

	// A scheduled downgrade takes effect with this renewal.
	planID := sub.PlanID
	cycle := sub.BillingCycle
	if sub.HasScheduledChange() && sub.ScheduledChangeAt != nil && !u.now().Before(*sub.ScheduledChangeAt) {
		planID = *sub.ScheduledPlanID
		if sub.ScheduledBillingCycle != nil {
			cycle = *sub.ScheduledBillingCycle
		}
	}
	plan, err := u.plans.FindByID(ctx, repository.NoTX, planID)
	if err != nil {
		return err
	}
	amount := plan.Price(cycle)

	key, err := u.keys.FindByID(ctx, repository.NoTX, *sub.BillingKeyID)
	if err != nil {
		return err
	}
	plainKey, err := u.enc.Decrypt(key.EncryptedKey)
	if err != nil {
		return err
	}

	p, err := model.NewPayment(uuid.NewString(), sub.UserID, newOrderID(), model.PaymentTypeSubscription, amount, model.PaymentMeta{
		PlanID:         planID,
		BillingCycle:   string(cycle),
		SubscriptionID: sub.ID,
	})
	if err != nil {
		return err
	}
	if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
		return err
	}

	orderName := fmt.Sprintf("%s renewal (%s)", plan.Name, cycle)
	receipt, err := u.gateway.ChargeBilling(ctx, plainKey, key.CustomerKey, amount, p.OrderID, orderName)
	if err != nil {
		var gwErr *adapter.GatewayError
		if !errors.As(err, &gwErr) {
			u.comp.Record(ctx, model.CompensationOpRenewSubscription, p.ID, sub.UserID, amount, fmt.Errorf("gateway outcome unknown: %w", err))
			return err
		}
		return u.scheduleRenewalRetry(ctx, sub, p.ID, gwErr)
	}

	if receipt.TotalAmount != amount {
		mismatch := fmt.Errorf("%w: expected %d, gateway charged %d", domain.ErrAmountMismatch, amount, receipt.TotalAmount)
		u.comp.Record(ctx, model.CompensationOpRenewSubscription, p.ID, sub.UserID, receipt.TotalAmount, mismatch)
		u.failPayment(ctx, p.ID, mismatch)
		return mismatch
	}

	start := sub.CurrentPeriodEnd
	if start.Before(u.now()) {
		start = u.now()
	}
	args := repository.RenewSubscriptionArgs{
		SubscriptionID: sub.ID,
		PaymentID:      p.ID,
		PaymentKey:     receipt.PaymentKey,
		Amount:         receipt.TotalAmount,
		NewPeriodStart: start,
		NewPeriodEnd:   start.Add(cycle.PeriodDuration()),
	}
	if err := u.procs.RenewSubscription(ctx, repository.NoTX, args); err != nil {
		u.comp.Record(ctx, model.CompensationOpRenewSubscription, p.ID, sub.UserID, receipt.TotalAmount, err)
		metrics.IncSubscription("renew_compensated")
		return nil
	}

	metrics.IncSubscription("renewed")
	u.log.Info().Str("subscription_id", sub.ID).Int64("amount", receipt.TotalAmount).Msg("subscription renewed")
	return nil
}

// scheduleRenewalRetry applies the bounded retry policy: under the limit the
// subscription stays active with a counter bump and a next attempt time; at
// the limit it transitions to past_due.
func (u *subscriptionUC) scheduleRenewalRetry(ctx context.Context, sub *model.Subscription, paymentID string, cause error) error {
	u.failPayment(ctx, paymentID, cause)

	attempts, nextAt, exhausted := u.retry.Next(sub.RenewalRetryCount, u.now())
	if exhausted {
		if err := sub.MarkPastDue(); err != nil {
			return err
		}
		sub.RenewalRetryCount = attempts
		if err := u.subs.Save(ctx, repository.NoTX, sub); err != nil {
			return err
		}
		metrics.IncSubscription("past_due")
		u.log.Warn().Str("subscription_id", sub.ID).Msg("renewal retries exhausted; subscription past due")
		return fmt.Errorf("renewal charge failed (%d/%d), subscription past due: %w", attempts, u.retry.MaxAttempts, domain.ErrRenewalExhausted)
	}

	sub.RenewalRetryCount = attempts
	sub.NextRenewalAt = &nextAt
	sub.UpdatedAt = u.now()
	if err := u.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return err
	}
	metrics.IncRenewalRetry()
	return fmt.Errorf("renewal charge failed (%d/%d), next attempt at %s: %w",
		attempts, u.retry.MaxAttempts, nextAt.Format(time.RFC3339), domain.ErrRenewalRetryLater)
}

func (u *subscriptionUC) CancelSubscription(ctx context.Context, userID string, atPeriodEnd bool) error {
	sub, err := u.subs.FindActiveByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return err
	}
	if atPeriodEnd {
		sub.CancelAtPeriodEnd = true
		sub.UpdatedAt = u.now()
		return u.subs.Save(ctx, repository.NoTX, sub)
	}
	if err := sub.Cancel(); err != nil {
		return err
	}
	if err := u.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return err
	}
	metrics.IncSubscription("canceled")
	return nil
}

// failPayment is a best-effort transition of a pending payment to failed with
// the gateway's error code recorded; the status guard makes it a no-op when
// another path already finalized the payment.
func (u *subscriptionUC) failPayment(ctx context.Context, paymentID string, cause error) {
	reason := cause.Error()
	var gwErr *adapter.GatewayError
	if errors.As(cause, &gwErr) {
		reason = gwErr.Code
	}
	if _, err := u.payments.UpdateStatusIfPending(ctx, repository.NoTX, paymentID, model.PaymentStatusFailed, nil, nil, reason); err != nil {
		u.log.Warn().Err(err).Str("payment_id", paymentID).Msg("failed to mark payment failed")
	}
	metrics.IncPayment("failed")
}

func (u *subscriptionUC) deleteKey(ctx context.Context, keyID string) {
	if err := u.keys.Delete(ctx, repository.NoTX, keyID); err != nil {
		u.log.Warn().Err(err).Str("billing_key_id", keyID).Msg("failed to delete billing key after charge failure")
	}
}
