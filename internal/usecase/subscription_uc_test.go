//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"saas-billing-core/internal/domain"
	"saas-billing-core/internal/domain/model"
	"saas-billing-core/internal/domain/ports/adapter"
	"saas-billing-core/internal/domain/ports/repository"
	"saas-billing-core/internal/usecase"
)

type subUCTestDeps struct {
	plans    *MockPlanRepo
	subs     *MockSubscriptionRepo
	payments *MockPaymentRepo
	keys     *MockBillingKeyRepo
	procs    *MockProcedures
	gateway  *MockGateway
	comps    *MockCompensationRepo
	uc       usecase.SubscriptionUseCase
}

func newSubUCDeps() *subUCTestDeps {
	d := &subUCTestDeps{
		plans:    NewMockPlanRepo(),
		subs:     NewMockSubscriptionRepo(),
		payments: NewMockPaymentRepo(),
		keys:     NewMockBillingKeyRepo(),
		procs:    NewMockProcedures(),
		gateway:  &MockGateway{},
		comps:    NewMockCompensationRepo(),
	}
	comp := usecase.NewCompensator(d.comps, &MockAlerter{}, newTestLogger())
	d.uc = usecase.NewSubscriptionUseCase(d.plans, d.subs, d.payments, d.keys, d.procs, d.gateway, MockEncryptor{}, comp, newTestLogger())
	return d
}

func basicPlan() *model.Plan {
	p, _ := model.NewPlan("plan-basic", "Basic", 29900, 299000, 1000)
	return p
}

// seedRenewableSub stores an active monthly subscription with a stored key.
func seedRenewableSub(ctx context.Context, d *subUCTestDeps, retryCount int) *model.Subscription {
	key, _ := model.NewBillingKey("key-1", "user-1", "cust-1", "enc:bk-plain")
	key.IsDefault = true
	d.keys.Save(ctx, nil, key)

	sub, _ := model.NewSubscription("sub-1", "user-1", "plan-basic", model.BillingCycleMonthly, "key-1")
	sub.RenewalRetryCount = retryCount
	d.subs.Save(ctx, nil, sub)
	return sub
}

func TestSubscriptionUseCase_Prepare(t *testing.T) {
	ctx := context.Background()

	t.Run("should create a pending payment priced server-side", func(t *testing.T) {
		deps := newSubUCDeps()
		deps.plans.Put(basicPlan())

		p, err := deps.uc.PrepareSubscription(ctx, "user-1", "plan-basic", model.BillingCycleMonthly)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Amount != 29900 {
			t.Errorf("expected server-side price 29900, got %d", p.Amount)
		}
		if p.Status != model.PaymentStatusPending {
			t.Errorf("expected pending payment, got %s", p.Status)
		}
		if p.OrderID == "" {
			t.Error("expected a generated order id")
		}
	})

	t.Run("should reject a second subscription for the same user", func(t *testing.T) {
		deps := newSubUCDeps()
		deps.plans.Put(basicPlan())
		pro, _ := model.NewPlan("plan-pro", "Pro", 99000, 990000, 5000)
		deps.plans.Put(pro)
		seedRenewableSub(ctx, deps, 0)

		_, err := deps.uc.PrepareSubscription(ctx, "user-1", "plan-pro", model.BillingCycleMonthly)
		if !errors.Is(err, domain.ErrActiveSubscriptionExists) {
			t.Fatalf("expected ErrActiveSubscriptionExists, got %v", err)
		}

		_, err = deps.uc.PrepareSubscription(ctx, "user-1", "plan-basic", model.BillingCycleMonthly)
		if !errors.Is(err, domain.ErrSamePlan) {
			t.Fatalf("expected ErrSamePlan, got %v", err)
		}
	})
}

func TestSubscriptionUseCase_Confirm(t *testing.T) {
	ctx := context.Background()

	prepare := func(t *testing.T, deps *subUCTestDeps) *model.Payment {
		t.Helper()
		deps.plans.Put(basicPlan())
		p, err := deps.uc.PrepareSubscription(ctx, "user-1", "plan-basic", model.BillingCycleMonthly)
		if err != nil {
			t.Fatalf("prepare failed: %v", err)
		}
		return p
	}
	input := func(p *model.Payment) usecase.ConfirmSubscriptionInput {
		return usecase.ConfirmSubscriptionInput{
			AuthKey:     "auth-1",
			CustomerKey: "cust-1",
			OrderID:     p.OrderID,
			PlanID:      "plan-basic",
			Cycle:       model.BillingCycleMonthly,
		}
	}

	t.Run("should issue a key, charge, and confirm atomically", func(t *testing.T) {
		deps := newSubUCDeps()
		p := prepare(t, deps)

		sub, err := deps.uc.ConfirmSubscription(ctx, "user-1", input(p))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sub.PlanID != "plan-basic" || sub.Status != model.SubscriptionStatusActive {
			t.Errorf("unexpected subscription: %+v", sub)
		}
		if !deps.procs.Called("confirm_subscription") {
			t.Error("expected confirm procedure to run")
		}

		keys, _ := deps.keys.ListByUser(ctx, nil, "user-1")
		if len(keys) != 1 {
			t.Fatalf("expected one stored key, got %d", len(keys))
		}
		if !strings.HasPrefix(keys[0].EncryptedKey, "enc:") {
			t.Error("billing key must be stored encrypted")
		}
		if !keys[0].IsDefault {
			t.Error("first key must become the default")
		}
	})

	t.Run("should reject confirmation by a non-owner", func(t *testing.T) {
		deps := newSubUCDeps()
		p := prepare(t, deps)

		_, err := deps.uc.ConfirmSubscription(ctx, "user-2", input(p))
		if !errors.Is(err, domain.ErrNotOwner) {
			t.Fatalf("expected ErrNotOwner, got %v", err)
		}
	})

	t.Run("should fail the payment and drop the key when the charge is declined", func(t *testing.T) {
		deps := newSubUCDeps()
		p := prepare(t, deps)
		deps.gateway.ChargeBillingFunc = func(ctx context.Context, billingKey, customerKey string, amount int64, orderID, orderName string) (*adapter.Receipt, error) {
			return nil, &adapter.GatewayError{Code: "INSUFFICIENT_FUNDS", Message: "declined"}
		}

		_, err := deps.uc.ConfirmSubscription(ctx, "user-1", input(p))
		var gwErr *adapter.GatewayError
		if !errors.As(err, &gwErr) {
			t.Fatalf("expected a GatewayError, got %v", err)
		}
		stored, _ := deps.payments.FindByID(ctx, nil, p.ID)
		if stored.Status != model.PaymentStatusFailed {
			t.Errorf("expected failed payment, got %s", stored.Status)
		}
		if stored.FailReason != "INSUFFICIENT_FUNDS" {
			t.Errorf("expected gateway code as fail reason, got %q", stored.FailReason)
		}
		if n, _ := deps.keys.CountByUser(ctx, nil, "user-1"); n != 0 {
			t.Error("a key that cannot charge must not be kept")
		}
	})

	t.Run("should return success and compensate when the ledger write fails after the charge", func(t *testing.T) {
		deps := newSubUCDeps()
		p := prepare(t, deps)
		deps.procs.ConfirmSubscriptionFunc = func(ctx context.Context, tx repository.Tx, args repository.ConfirmSubscriptionArgs) error {
			return errors.New("database is down")
		}

		sub, err := deps.uc.ConfirmSubscription(ctx, "user-1", input(p))
		if err != nil {
			t.Fatalf("the charge committed, so caller must see success; got %v", err)
		}
		if sub == nil {
			t.Fatal("expected the subscription back despite the ledger failure")
		}
		if deps.comps.Count() != 1 {
			t.Fatalf("expected one compensation record, got %d", deps.comps.Count())
		}
		if deps.comps.Records[0].Op != model.CompensationOpConfirmSubscription {
			t.Errorf("unexpected compensation op: %s", deps.comps.Records[0].Op)
		}
		if !deps.comps.Records[0].RequiresManualIntervention {
			t.Error("a charge-class record has no automated replay and must go to an operator")
		}
		if n, _ := deps.keys.CountByUser(ctx, nil, "user-1"); n != 1 {
			t.Error("the key must survive: the customer was charged")
		}
	})

	t.Run("should refuse a gateway amount that differs from the expected charge", func(t *testing.T) {
		deps := newSubUCDeps()
		p := prepare(t, deps)
		deps.gateway.ChargeBillingFunc = func(ctx context.Context, billingKey, customerKey string, amount int64, orderID, orderName string) (*adapter.Receipt, error) {
			return &adapter.Receipt{PaymentKey: "pk-x", OrderID: orderID, TotalAmount: amount + 1, ApprovedAt: time.Now()}, nil
		}

		_, err := deps.uc.ConfirmSubscription(ctx, "user-1", input(p))
		if !errors.Is(err, domain.ErrAmountMismatch) {
			t.Fatalf("expected ErrAmountMismatch, got %v", err)
		}
		if deps.procs.Called("confirm_subscription") {
			t.Error("the confirm procedure must not run on an amount mismatch")
		}
		if deps.comps.Count() != 1 {
			t.Errorf("the unexpected charge must be flagged for reconciliation, got %d records", deps.comps.Count())
		}
	})
}

func TestSubscriptionUseCase_Renew(t *testing.T) {
	ctx := context.Background()

	t.Run("should charge the stored key and extend the period", func(t *testing.T) {
		deps := newSubUCDeps()
		deps.plans.Put(basicPlan())
		seedRenewableSub(ctx, deps, 0)

		var chargedKey string
		deps.gateway.ChargeBillingFunc = func(ctx context.Context, billingKey, customerKey string, amount int64, orderID, orderName string) (*adapter.Receipt, error) {
			chargedKey = billingKey
			return &adapter.Receipt{PaymentKey: "pk-renew", OrderID: orderID, TotalAmount: amount, ApprovedAt: time.Now()}, nil
		}

		if err := deps.uc.RenewSubscription(ctx, "sub-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if chargedKey != "bk-plain" {
			t.Errorf("expected the decrypted key at the gateway, got %q", chargedKey)
		}
		if !deps.procs.Called("renew_subscription") {
			t.Error("expected renew procedure to run")
		}
	})

	t.Run("should schedule a retry on the first declined charge", func(t *testing.T) {
		deps := newSubUCDeps()
		deps.plans.Put(basicPlan())
		seedRenewableSub(ctx, deps, 0)
		deps.gateway.ChargeBillingFunc = func(ctx context.Context, billingKey, customerKey string, amount int64, orderID, orderName string) (*adapter.Receipt, error) {
			return nil, &adapter.GatewayError{Code: "INSUFFICIENT_FUNDS", Message: "declined"}
		}

		err := deps.uc.RenewSubscription(ctx, "sub-1")
		if !errors.Is(err, domain.ErrRenewalRetryLater) {
			t.Fatalf("expected ErrRenewalRetryLater, got %v", err)
		}
		if !strings.Contains(err.Error(), "1/3") {
			t.Errorf("expected the attempt count 1/3 in the error, got %q", err.Error())
		}

		sub, _ := deps.subs.FindByID(ctx, nil, "sub-1")
		if sub.Status != model.SubscriptionStatusActive {
			t.Errorf("subscription must stay active under the retry limit, got %s", sub.Status)
		}
		if sub.RenewalRetryCount != 1 {
			t.Errorf("expected retry count 1, got %d", sub.RenewalRetryCount)
		}
		if sub.NextRenewalAt == nil {
			t.Error("expected a next attempt time")
		}
	})

	t.Run("should move to past_due when the retry limit is reached", func(t *testing.T) {
		deps := newSubUCDeps()
		deps.plans.Put(basicPlan())
		seedRenewableSub(ctx, deps, model.RenewalMaxAttempts-1)
		deps.gateway.ChargeBillingFunc = func(ctx context.Context, billingKey, customerKey string, amount int64, orderID, orderName string) (*adapter.Receipt, error) {
			return nil, &adapter.GatewayError{Code: "INSUFFICIENT_FUNDS", Message: "declined"}
		}

		err := deps.uc.RenewSubscription(ctx, "sub-1")
		if !errors.Is(err, domain.ErrRenewalExhausted) {
			t.Fatalf("expected ErrRenewalExhausted, got %v", err)
		}
		sub, _ := deps.subs.FindByID(ctx, nil, "sub-1")
		if sub.Status != model.SubscriptionStatusPastDue {
			t.Errorf("expected past_due after exhausted retries, got %s", sub.Status)
		}
	})

	t.Run("should return success and compensate when the renewal ledger write fails", func(t *testing.T) {
		deps := newSubUCDeps()
		deps.plans.Put(basicPlan())
		seedRenewableSub(ctx, deps, 0)
		deps.procs.RenewSubscriptionFunc = func(ctx context.Context, tx repository.Tx, args repository.RenewSubscriptionArgs) error {
			return errors.New("deadlock detected")
		}

		if err := deps.uc.RenewSubscription(ctx, "sub-1"); err != nil {
			t.Fatalf("charge committed, so renewal must not report failure; got %v", err)
		}
		if deps.comps.Count() != 1 {
			t.Errorf("expected one compensation record, got %d", deps.comps.Count())
		}
	})

	t.Run("should cancel instead of charging when cancel-at-period-end is set", func(t *testing.T) {
		deps := newSubUCDeps()
		deps.plans.Put(basicPlan())
		sub := seedRenewableSub(ctx, deps, 0)
		sub.CancelAtPeriodEnd = true
		deps.subs.Save(ctx, nil, sub)

		if err := deps.uc.RenewSubscription(ctx, "sub-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if deps.gateway.ChargeCalls != 0 {
			t.Error("no charge may happen for a cancel-at-period-end renewal")
		}
		got, _ := deps.subs.FindByID(ctx, nil, "sub-1")
		if got.Status != model.SubscriptionStatusCanceled {
			t.Errorf("expected canceled, got %s", got.Status)
		}
	})

	t.Run("should apply a due scheduled downgrade at renewal", func(t *testing.T) {
		deps := newSubUCDeps()
		deps.plans.Put(basicPlan())
		cheap, _ := model.NewPlan("plan-lite", "Lite", 9900, 99000, 300)
		deps.plans.Put(cheap)

		sub := seedRenewableSub(ctx, deps, 0)
		litePlan := "plan-lite"
		liteCycle := model.BillingCycleMonthly
		past := time.Now().Add(-time.Hour)
		sub.ScheduledPlanID = &litePlan
		sub.ScheduledBillingCycle = &liteCycle
		sub.ScheduledChangeAt = &past
		deps.subs.Save(ctx, nil, sub)

		var charged int64
		deps.gateway.ChargeBillingFunc = func(ctx context.Context, billingKey, customerKey string, amount int64, orderID, orderName string) (*adapter.Receipt, error) {
			charged = amount
			return &adapter.Receipt{PaymentKey: "pk-renew", OrderID: orderID, TotalAmount: amount, ApprovedAt: time.Now()}, nil
		}

		if err := deps.uc.RenewSubscription(ctx, "sub-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if charged != 9900 {
			t.Errorf("expected the downgraded plan's price 9900, got %d", charged)
		}
	})
}
