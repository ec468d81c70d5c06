package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v4/pgxpool"

	"saas-billing-core/internal/domain"
	"saas-billing-core/internal/domain/model"
	"saas-billing-core/internal/domain/ports/repository"
)

var _ repository.LedgerProcedures = (*ledgerProcedures)(nil)

// ledgerProcedures calls the server-side atomic functions. Each procedure is a
// single SELECT returning a jsonb envelope:
//
//	{"success": true,  "data": {...}}
//	{"success": false, "error": {"code": "...", "message": "..."}}
//
// The envelope is decoded strictly: unknown fields, a missing success flag, or
// an error object without a code all fail closed rather than being guessed at.
type ledgerProcedures struct {
	pool     *pgxpool.Pool
	validate *validator.Validate
}

func NewLedgerProcedures(pool *pgxpool.Pool) *ledgerProcedures {
	return &ledgerProcedures{pool: pool, validate: validator.New()}
}

type procError struct {
	Code    string `json:"code" validate:"required"`
	Message string `json:"message"`
}

type procEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *procError      `json:"error,omitempty"`
}

// call invokes one procedure and returns its data payload on success.
func (p *ledgerProcedures) call(ctx context.Context, tx repository.Tx, procedure string, args interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal args: %w", procedure, err)
	}

	row, err := pickRow(ctx, p.pool, tx, `SELECT `+procedure+`($1::jsonb);`, payload)
	if err != nil {
		return nil, err
	}
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		return nil, fmt.Errorf("%s: %w", procedure, domain.ErrOperationFailed)
	}
	return decodeEnvelope(procedure, raw, p.validate)
}

// decodeEnvelope parses a procedure result. An unparseable envelope, a failure
// without an error object, or an error object without a code are all treated
// as operation failures rather than silently tolerated.
func decodeEnvelope(procedure string, raw []byte, validate *validator.Validate) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var env procEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%s: malformed envelope: %w", procedure, err)
	}
	if !env.Success {
		if env.Error == nil {
			return nil, fmt.Errorf("%s: failure envelope without error object: %w", procedure, domain.ErrOperationFailed)
		}
		if err := validate.Struct(env.Error); err != nil {
			return nil, fmt.Errorf("%s: invalid error object: %w", procedure, domain.ErrOperationFailed)
		}
		return nil, &repository.ProcedureFailure{Procedure: procedure, Code: env.Error.Code, Message: env.Error.Message}
	}
	return env.Data, nil
}

type confirmSubscriptionPayload struct {
	PaymentID      string `json:"payment_id"`
	UserID         string `json:"user_id"`
	PlanID         string `json:"plan_id"`
	BillingCycle   string `json:"billing_cycle"`
	BillingKeyID   string `json:"billing_key_id"`
	PaymentKey     string `json:"payment_key"`
	Amount         int64  `json:"amount"`
	PeriodStart    string `json:"period_start"`
	PeriodEnd      string `json:"period_end"`
	SubscriptionID string `json:"subscription_id"`
}

func (p *ledgerProcedures) ConfirmSubscription(ctx context.Context, tx repository.Tx, args repository.ConfirmSubscriptionArgs) error {
	_, err := p.call(ctx, tx, "confirm_subscription_atomic", confirmSubscriptionPayload{
		PaymentID:      args.PaymentID,
		UserID:         args.UserID,
		PlanID:         args.PlanID,
		BillingCycle:   string(args.BillingCycle),
		BillingKeyID:   args.BillingKeyID,
		PaymentKey:     args.PaymentKey,
		Amount:         args.Amount,
		PeriodStart:    args.PeriodStart.UTC().Format(time.RFC3339Nano),
		PeriodEnd:      args.PeriodEnd.UTC().Format(time.RFC3339Nano),
		SubscriptionID: args.SubscriptionID,
	})
	return err
}

type renewSubscriptionPayload struct {
	SubscriptionID string `json:"subscription_id"`
	PaymentID      string `json:"payment_id"`
	PaymentKey     string `json:"payment_key"`
	Amount         int64  `json:"amount"`
	NewPeriodStart string `json:"new_period_start"`
	NewPeriodEnd   string `json:"new_period_end"`
}

func (p *ledgerProcedures) RenewSubscription(ctx context.Context, tx repository.Tx, args repository.RenewSubscriptionArgs) error {
	_, err := p.call(ctx, tx, "renew_subscription_atomic", renewSubscriptionPayload{
		SubscriptionID: args.SubscriptionID,
		PaymentID:      args.PaymentID,
		PaymentKey:     args.PaymentKey,
		Amount:         args.Amount,
		NewPeriodStart: args.NewPeriodStart.UTC().Format(time.RFC3339Nano),
		NewPeriodEnd:   args.NewPeriodEnd.UTC().Format(time.RFC3339Nano),
	})
	return err
}

type changePlanImmediatePayload struct {
	SubscriptionID string `json:"subscription_id"`
	PaymentID      string `json:"payment_id"`
	PaymentKey     string `json:"payment_key"`
	Amount         int64  `json:"amount"`
	NewPlanID      string `json:"new_plan_id"`
	NewCycle       string `json:"new_cycle"`
}

func (p *ledgerProcedures) ChangePlanImmediate(ctx context.Context, tx repository.Tx, args repository.ChangePlanImmediateArgs) error {
	_, err := p.call(ctx, tx, "change_plan_immediate_atomic", changePlanImmediatePayload{
		SubscriptionID: args.SubscriptionID,
		PaymentID:      args.PaymentID,
		PaymentKey:     args.PaymentKey,
		Amount:         args.Amount,
		NewPlanID:      args.NewPlanID,
		NewCycle:       string(args.NewCycle),
	})
	return err
}

type schedulePlanChangePayload struct {
	SubscriptionID string `json:"subscription_id"`
	NewPlanID      string `json:"new_plan_id"`
	NewCycle       string `json:"new_cycle"`
	EffectiveAt    string `json:"effective_at"`
}

func (p *ledgerProcedures) SchedulePlanChange(ctx context.Context, tx repository.Tx, args repository.SchedulePlanChangeArgs) error {
	_, err := p.call(ctx, tx, "schedule_plan_change_atomic", schedulePlanChangePayload{
		SubscriptionID: args.SubscriptionID,
		NewPlanID:      args.NewPlanID,
		NewCycle:       string(args.NewCycle),
		EffectiveAt:    args.EffectiveAt.UTC().Format(time.RFC3339Nano),
	})
	return err
}

func (p *ledgerProcedures) CancelScheduledPlanChange(ctx context.Context, tx repository.Tx, subscriptionID string) error {
	_, err := p.call(ctx, tx, "cancel_scheduled_plan_change", map[string]string{
		"subscription_id": subscriptionID,
	})
	return err
}

type refundPayload struct {
	PaymentID string `json:"payment_id"`
	UserID    string `json:"user_id"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
}

func refundArgsPayload(args repository.RefundArgs) refundPayload {
	return refundPayload{PaymentID: args.PaymentID, UserID: args.UserID, Amount: args.Amount, Reason: args.Reason}
}

func (p *ledgerProcedures) ProcessSimpleRefund(ctx context.Context, tx repository.Tx, args repository.RefundArgs) error {
	_, err := p.call(ctx, tx, "process_simple_refund_atomic", refundArgsPayload(args))
	return err
}

func (p *ledgerProcedures) ProcessCreditRefund(ctx context.Context, tx repository.Tx, args repository.RefundArgs) error {
	_, err := p.call(ctx, tx, "process_credit_refund_atomic", refundArgsPayload(args))
	return err
}

func (p *ledgerProcedures) ProcessSubscriptionRefund(ctx context.Context, tx repository.Tx, args repository.RefundArgs) error {
	_, err := p.call(ctx, tx, "process_subscription_refund_atomic", refundArgsPayload(args))
	return err
}

func (p *ledgerProcedures) DeductCreditForRefund(ctx context.Context, tx repository.Tx, args repository.RefundArgs) error {
	_, err := p.call(ctx, tx, "deduct_credit_for_refund_atomic", refundArgsPayload(args))
	return err
}

type createRefundRequestPayload struct {
	ID              string `json:"id"`
	PaymentID       string `json:"payment_id"`
	UserID          string `json:"user_id"`
	RequestedAmount int64  `json:"requested_amount"`
	Type            string `json:"type"`
	Reason          string `json:"reason"`
}

func (p *ledgerProcedures) CreateRefundRequest(ctx context.Context, tx repository.Tx, req *model.RefundRequest) error {
	_, err := p.call(ctx, tx, "create_refund_request", createRefundRequestPayload{
		ID:              req.ID,
		PaymentID:       req.PaymentID,
		UserID:          req.UserID,
		RequestedAmount: req.RequestedAmount,
		Type:            string(req.Type),
		Reason:          req.Reason,
	})
	return err
}

type updateRefundRequestPayload struct {
	RequestID       string `json:"request_id"`
	Status          string `json:"status"`
	ApprovedAmount  *int64 `json:"approved_amount,omitempty"`
	AdminNote       string `json:"admin_note,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	ProcessedAt     string `json:"processed_at,omitempty"`
}

func (p *ledgerProcedures) UpdateRefundRequestStatus(ctx context.Context, tx repository.Tx, args repository.RefundRequestUpdateArgs) error {
	payload := updateRefundRequestPayload{
		RequestID:       args.RequestID,
		Status:          string(args.Status),
		ApprovedAmount:  args.ApprovedAmount,
		AdminNote:       args.AdminNote,
		RejectionReason: args.RejectionReason,
	}
	if args.ProcessedAt != nil {
		payload.ProcessedAt = args.ProcessedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := p.call(ctx, tx, "update_refund_request_status", payload)
	return err
}

type proratedRefundResult struct {
	RefundAmount *int64 `json:"refund_amount" validate:"required"`
}

func (p *ledgerProcedures) CalculateProratedRefund(ctx context.Context, tx repository.Tx, paymentID string) (int64, error) {
	data, err := p.call(ctx, tx, "calculate_prorated_refund", map[string]string{"payment_id": paymentID})
	if err != nil {
		return 0, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var res proratedRefundResult
	if err := dec.Decode(&res); err != nil {
		return 0, fmt.Errorf("calculate_prorated_refund: malformed data: %w", err)
	}
	if err := p.validate.Struct(&res); err != nil {
		return 0, fmt.Errorf("calculate_prorated_refund: missing refund_amount: %w", domain.ErrOperationFailed)
	}
	if *res.RefundAmount < 0 {
		return 0, fmt.Errorf("calculate_prorated_refund: negative amount %d: %w", *res.RefundAmount, domain.ErrOperationFailed)
	}
	return *res.RefundAmount, nil
}

func (p *ledgerProcedures) DeactivateSubscriptionsByBillingKey(ctx context.Context, tx repository.Tx, billingKeyID string) error {
	_, err := p.call(ctx, tx, "deactivate_subscriptions_by_billing_key", map[string]string{
		"billing_key_id": billingKeyID,
	})
	return err
}
