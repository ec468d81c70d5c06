package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"saas-billing-core/internal/domain"
	"saas-billing-core/internal/domain/model"
	"saas-billing-core/internal/domain/ports/adapter"
	"saas-billing-core/internal/domain/ports/repository"
	"saas-billing-core/internal/infra/metrics"
)

// Compile-time check
var _ PlanChangeUseCase = (*planChangeUC)(nil)

// PlanChangeQuote is what the caller sees before confirming: the
// classification, the prorated amount, and (for upgrades) the pending payment
// to route through checkout.
type PlanChangeQuote struct {
	Proration Proration
	NewPlanID string
	NewCycle  model.BillingCycle
	Payment   *model.Payment // nil unless an immediate charge is required
}

type ConfirmPlanChangeInput struct {
	NewPlanID string
	NewCycle  model.BillingCycle
	OrderID   string // required for upgrades, ignored for downgrades
}

type PlanChangeUseCase interface {
	// PreparePlanChange computes proration against the current subscription and,
	// for upgrades, pre-creates the pending payment for the prorated amount.
	PreparePlanChange(ctx context.Context, userID, newPlanID string, newCycle model.BillingCycle) (*PlanChangeQuote, error)

	// ConfirmPlanChange charges the stored billing key and swaps the plan
	// atomically (upgrade), or schedules the change for period end (downgrade).
	ConfirmPlanChange(ctx context.Context, userID string, in ConfirmPlanChangeInput) error

	CancelScheduledChange(ctx context.Context, userID string) error
}

type planChangeUC struct {
	plans    repository.PlanRepository
	subs     repository.SubscriptionRepository
	payments repository.PaymentRepository
	keys     repository.BillingKeyRepository
	procs    repository.LedgerProcedures
	gateway  adapter.PaymentGateway
	enc      Encryptor
	comp     *Compensator
	log      *zerolog.Logger
	now      func() time.Time
}

func NewPlanChangeUseCase(
	plans repository.PlanRepository,
	subs repository.SubscriptionRepository,
	payments repository.PaymentRepository,
	keys repository.BillingKeyRepository,
	procs repository.LedgerProcedures,
	gateway adapter.PaymentGateway,
	enc Encryptor,
	comp *Compensator,
	log *zerolog.Logger,
) *planChangeUC {
	return &planChangeUC{
		plans:    plans,
		subs:     subs,
		payments: payments,
		keys:     keys,
		procs:    procs,
		gateway:  gateway,
		enc:      enc,
		comp:     comp,
		log:      log,
		now:      time.Now,
	}
}

// prorate loads the current subscription and both plans and computes the quote
// server-side; nothing from the client beyond the target plan is trusted.
func (u *planChangeUC) prorate(ctx context.Context, userID, newPlanID string, newCycle model.BillingCycle) (*model.Subscription, Proration, error) {
	sub, err := u.subs.FindActiveByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, Proration{}, err
	}
	current, err := u.plans.FindByID(ctx, repository.NoTX, sub.PlanID)
	if err != nil {
		return nil, Proration{}, err
	}
	next, err := u.plans.FindByID(ctx, repository.NoTX, newPlanID)
	if err != nil {
		return nil, Proration{}, err
	}
	same := sub.PlanID == newPlanID && sub.BillingCycle == newCycle
	pr := Prorate(
		current.Price(sub.BillingCycle),
		next.Price(newCycle),
		remainingDays(u.now(), sub.CurrentPeriodEnd),
		periodTotalDays(sub.BillingCycle),
		sub.CurrentPeriodEnd,
		same,
	)
	return sub, pr, nil
}

func (u *planChangeUC) PreparePlanChange(ctx context.Context, userID, newPlanID string, newCycle model.BillingCycle) (*PlanChangeQuote, error) {
	sub, pr, err := u.prorate(ctx, userID, newPlanID, newCycle)
	if err != nil {
		return nil, err
	}
	if pr.Kind == PlanChangeSame {
		return nil, domain.ErrSamePlan
	}

	quote := &PlanChangeQuote{Proration: pr, NewPlanID: newPlanID, NewCycle: newCycle}
	if pr.Kind == PlanChangeDowngrade {
		return quote, nil
	}

	p, err := model.NewPayment(uuid.NewString(), userID, newOrderID(), model.PaymentTypePlanChange, pr.Amount, model.PaymentMeta{
		PlanID:         newPlanID,
		BillingCycle:   string(newCycle),
		SubscriptionID: sub.ID,
	})
	if err != nil {
		return nil, err
	}
	if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	metrics.IncPayment("pending")
	quote.Payment = p
	return quote, nil
}

func (u *planChangeUC) ConfirmPlanChange(ctx context.Context, userID string, in ConfirmPlanChangeInput) error {
	sub, pr, err := u.prorate(ctx, userID, in.NewPlanID, in.NewCycle)
	if err != nil {
		return err
	}
	switch pr.Kind {
	case PlanChangeSame:
		return domain.ErrSamePlan
	case PlanChangeDowngrade:
		err := u.procs.SchedulePlanChange(ctx, repository.NoTX, repository.SchedulePlanChangeArgs{
			SubscriptionID: sub.ID,
			NewPlanID:      in.NewPlanID,
			NewCycle:       in.NewCycle,
			EffectiveAt:    sub.CurrentPeriodEnd,
		})
		if err == nil {
			metrics.IncPlanChange("scheduled")
		}
		return err
	}

	// Upgrade: charge the prorated amount against the stored billing key, then
	// swap the plan in one atomic step.
	p, err := u.payments.FindByOrderID(ctx, repository.NoTX, in.OrderID)
	if err != nil {
		return err
	}
	if p.UserID != userID || p.Type != model.PaymentTypePlanChange || p.Status != model.PaymentStatusPending {
		return domain.ErrInvalidArgument
	}
	if sub.BillingKeyID == nil {
		return domain.ErrNoDefaultBillingKey
	}
	key, err := u.keys.FindByID(ctx, repository.NoTX, *sub.BillingKeyID)
	if err != nil {
		return err
	}
	plainKey, err := u.enc.Decrypt(key.EncryptedKey)
	if err != nil {
		return err
	}

	next, err := u.plans.FindByID(ctx, repository.NoTX, in.NewPlanID)
	if err != nil {
		return err
	}
	orderName := fmt.Sprintf("upgrade to %s (%s)", next.Name, in.NewCycle)
	receipt, err := u.gateway.ChargeBilling(ctx, plainKey, key.CustomerKey, p.Amount, p.OrderID, orderName)
	if err != nil {
		var gwErr *adapter.GatewayError
		if !errors.As(err, &gwErr) {
			u.comp.Record(ctx, model.CompensationOpChangePlan, p.ID, userID, p.Amount, fmt.Errorf("gateway outcome unknown: %w", err))
			return err
		}
		if _, uerr := u.payments.UpdateStatusIfPending(ctx, repository.NoTX, p.ID, model.PaymentStatusFailed, nil, nil, gwErr.Code); uerr != nil {
			u.log.Warn().Err(uerr).Str("payment_id", p.ID).Msg("failed to mark payment failed")
		}
		metrics.IncPlanChange("charge_failed")
		return err
	}

	// The gateway's reported total must equal the expected prorated amount
	// exactly; anything else refuses the plan mutation.
	if receipt.TotalAmount != p.Amount {
		mismatch := fmt.Errorf("%w: expected %d, gateway charged %d", domain.ErrAmountMismatch, p.Amount, receipt.TotalAmount)
		u.comp.Record(ctx, model.CompensationOpChangePlan, p.ID, userID, receipt.TotalAmount, mismatch)
		metrics.IncPlanChange("amount_mismatch")
		return mismatch
	}

	args := repository.ChangePlanImmediateArgs{
		SubscriptionID: sub.ID,
		PaymentID:      p.ID,
		PaymentKey:     receipt.PaymentKey,
		Amount:         receipt.TotalAmount,
		NewPlanID:      in.NewPlanID,
		NewCycle:       in.NewCycle,
	}
	if err := u.procs.ChangePlanImmediate(ctx, repository.NoTX, args); err != nil {
		u.comp.Record(ctx, model.CompensationOpChangePlan, p.ID, userID, receipt.TotalAmount, err)
		metrics.IncPlanChange("compensated")
		return nil
	}

	metrics.IncPlanChange("upgraded")
	u.log.Info().
		Str("subscription_id", sub.ID).
		Str("new_plan_id", in.NewPlanID).
		Int64("amount", receipt.TotalAmount).
		Msg("plan upgraded")
	return nil
}

func (u *planChangeUC) CancelScheduledChange(ctx context.Context, userID string) error {
	sub, err := u.subs.FindActiveByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return err
	}
	if !sub.HasScheduledChange() {
		return domain.ErrNotFound
	}
	return u.procs.CancelScheduledPlanChange(ctx, repository.NoTX, sub.ID)
}
