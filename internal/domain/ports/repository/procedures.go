package repository

import (
	"context"
	"fmt"
	"time"

	"saas-billing-core/internal/domain/model"
)

// ProcedureFailure is an atomic procedure's explicit `success=false` envelope,
// as opposed to a transport/DB error. Both mean the mutation did not apply;
// callers on a gateway-committed path treat either as a compensation trigger.
type ProcedureFailure struct {
	Procedure string
	Code      string
	Message   string
}

func (e *ProcedureFailure) Error() string {
	return fmt.Sprintf("%s failed: %s (%s)", e.Procedure, e.Message, e.Code)
}

// ConfirmSubscriptionArgs feeds confirm_subscription_atomic: one statement that
// marks the payment completed, creates the subscription row, and updates the
// user's plan.
type ConfirmSubscriptionArgs struct {
	PaymentID      string
	UserID         string
	PlanID         string
	BillingCycle   model.BillingCycle
	BillingKeyID   string
	PaymentKey     string
	Amount         int64
	PeriodStart    time.Time
	PeriodEnd      time.Time
	SubscriptionID string
}

// RenewSubscriptionArgs feeds renew_subscription_atomic: extends the period,
// marks the triggering payment completed, clears retry counters, and applies
// any scheduled plan change that has come due.
type RenewSubscriptionArgs struct {
	SubscriptionID string
	PaymentID      string
	PaymentKey     string
	Amount         int64
	NewPeriodStart time.Time
	NewPeriodEnd   time.Time
}

// ChangePlanImmediateArgs feeds change_plan_immediate_atomic: marks the
// prorated payment completed and swaps the plan in the same statement.
type ChangePlanImmediateArgs struct {
	SubscriptionID string
	PaymentID      string
	PaymentKey     string
	Amount         int64
	NewPlanID      string
	NewCycle       model.BillingCycle
}

// SchedulePlanChangeArgs feeds schedule_plan_change_atomic: records a deferred
// downgrade with no gateway interaction.
type SchedulePlanChangeArgs struct {
	SubscriptionID string
	NewPlanID      string
	NewCycle       model.BillingCycle
	EffectiveAt    time.Time
}

// RefundArgs feeds the three refund variants. Amount is the gateway-confirmed
// amount, never the requested one.
type RefundArgs struct {
	PaymentID string
	UserID    string
	Amount    int64
	Reason    string
}

// RefundRequestUpdateArgs feeds update_refund_request_status.
type RefundRequestUpdateArgs struct {
	RequestID       string
	Status          model.RefundStatus
	ApprovedAmount  *int64
	AdminNote       string
	RejectionReason string
	ProcessedAt     *time.Time
}

// LedgerProcedures is the port over the database's atomic procedures. Each
// call is one single-statement server-side function returning a
// {success, data|error} envelope; implementations decode it strictly and fail
// closed on shape mismatch. Every procedure is safe to invoke more than once
// for the same ids without double-applying effects.
type LedgerProcedures interface {
	ConfirmSubscription(ctx context.Context, tx Tx, args ConfirmSubscriptionArgs) error
	RenewSubscription(ctx context.Context, tx Tx, args RenewSubscriptionArgs) error
	ChangePlanImmediate(ctx context.Context, tx Tx, args ChangePlanImmediateArgs) error
	SchedulePlanChange(ctx context.Context, tx Tx, args SchedulePlanChangeArgs) error
	CancelScheduledPlanChange(ctx context.Context, tx Tx, subscriptionID string) error

	ProcessSimpleRefund(ctx context.Context, tx Tx, args RefundArgs) error
	ProcessCreditRefund(ctx context.Context, tx Tx, args RefundArgs) error
	ProcessSubscriptionRefund(ctx context.Context, tx Tx, args RefundArgs) error
	// DeductCreditForRefund handles gateway-originated cancellations pushed by
	// webhook, deducting credits proportionally to the canceled amount.
	DeductCreditForRefund(ctx context.Context, tx Tx, args RefundArgs) error

	CreateRefundRequest(ctx context.Context, tx Tx, req *model.RefundRequest) error
	UpdateRefundRequestStatus(ctx context.Context, tx Tx, args RefundRequestUpdateArgs) error

	// CalculateProratedRefund computes the refundable remainder of a
	// subscription payment server-side.
	CalculateProratedRefund(ctx context.Context, tx Tx, paymentID string) (int64, error)

	// DeactivateSubscriptionsByBillingKey handles billing-key expiry pushed by
	// webhook.
	DeactivateSubscriptionsByBillingKey(ctx context.Context, tx Tx, billingKeyID string) error
}
