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

// RefundWindow bounds the self-service refund path. The admin-approval path
// (CreateRefundRequest) is not subject to it.
const RefundWindow = 7 * 24 * time.Hour

// Compile-time check
var _ RefundUseCase = (*refundUC)(nil)

// RefundResult reports the actually effective amount (post-gateway), not the
// requested one. Compensated is set when the gateway committed but the ledger
// write did not keep up; the money moved either way.
type RefundResult struct {
	PaymentID   string
	Amount      int64
	RefundedAt  time.Time
	Compensated bool
}

type RefundUseCase interface {
	// RequestRefund is the self-service path: gateway cancel first, then the
	// type-appropriate atomic refund procedure. A nil amount refunds the full
	// refundable remainder.
	RequestRefund(ctx context.Context, userID, paymentID string, amount *int64, reason string) (*RefundResult, error)

	// CreateRefundRequest opens an admin-approval request; bypasses the window
	// but moves no money until approved.
	CreateRefundRequest(ctx context.Context, userID, paymentID string, amount int64, typ model.RefundType, reason string) (*model.RefundRequest, error)
	CancelRefundRequest(ctx context.Context, userID, requestID string) error
	ApproveRefundRequest(ctx context.Context, requestID, adminNote string) (*RefundResult, error)
	RejectRefundRequest(ctx context.Context, requestID, reason string) error
}

type refundUC struct {
	payments repository.PaymentRepository
	requests repository.RefundRequestRepository
	procs    repository.LedgerProcedures
	gateway  adapter.PaymentGateway
	comp     *Compensator
	log      *zerolog.Logger
	now      func() time.Time
}

func NewRefundUseCase(
	payments repository.PaymentRepository,
	requests repository.RefundRequestRepository,
	procs repository.LedgerProcedures,
	gateway adapter.PaymentGateway,
	comp *Compensator,
	log *zerolog.Logger,
) *refundUC {
	return &refundUC{
		payments: payments,
		requests: requests,
		procs:    procs,
		gateway:  gateway,
		comp:     comp,
		log:      log,
		now:      time.Now,
	}
}

func (u *refundUC) RequestRefund(ctx context.Context, userID, paymentID string, amount *int64, reason string) (*RefundResult, error) {
	if userID == "" || paymentID == "" || reason == "" {
		return nil, domain.ErrInvalidArgument
	}
	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrNotOwner
	}

	// Status guard runs before any gateway call: a payment already refunded or
	// otherwise terminal is rejected here, never retried against the gateway.
	refundable := p.RefundableAmount()
	if refundable <= 0 {
		return nil, domain.ErrPaymentNotRefundable
	}
	effective := refundable
	if amount != nil {
		if *amount <= 0 || *amount > refundable {
			return nil, domain.ErrRefundAmountExceeded
		}
		effective = *amount
	}
	if u.now().Sub(p.CreatedAt) > RefundWindow {
		return nil, domain.ErrRefundWindowExpired
	}
	if p.PaymentKey == nil {
		return nil, domain.ErrPaymentNotRefundable
	}

	return u.executeRefund(ctx, p, effective, reason)
}

// executeRefund runs the gateway-then-DB sequence shared by the self-service
// and admin paths. The return value reflects gateway truth: once the gateway
// has committed the cancellation, the caller gets success even if the ledger
// write fails, and the lag is reconciled via the compensation ledger.
func (u *refundUC) executeRefund(ctx context.Context, p *model.Payment, amount int64, reason string) (*RefundResult, error) {
	receipt, err := u.gateway.CancelPayment(ctx, *p.PaymentKey, reason, &amount)
	if err != nil {
		var gwErr *adapter.GatewayError
		if errors.As(err, &gwErr) {
			// Provider rejected the cancel: nothing moved, nothing to compensate.
			metrics.IncRefund("gateway_rejected")
			return nil, err
		}
		// Transport-level ambiguity (timeout, connection reset): the cancel may
		// or may not have applied. Unknown outcome is handled like a committed
		// gateway action with a failed ledger write: record compensation for
		// manual reconciliation and report success for the requested amount.
		u.comp.Record(ctx, refundOpForType(p.Type), p.ID, p.UserID, amount, fmt.Errorf("gateway outcome unknown: %w", err))
		metrics.IncRefund("outcome_unknown")
		return &RefundResult{PaymentID: p.ID, Amount: amount, RefundedAt: u.now(), Compensated: true}, nil
	}

	confirmed := receipt.CancelAmount
	args := repository.RefundArgs{PaymentID: p.ID, UserID: p.UserID, Amount: confirmed, Reason: reason}
	switch p.Type {
	case model.PaymentTypeCreditPurchase:
		err = u.procs.ProcessCreditRefund(ctx, repository.NoTX, args)
	case model.PaymentTypeSubscription:
		err = u.procs.ProcessSubscriptionRefund(ctx, repository.NoTX, args)
	default:
		err = u.procs.ProcessSimpleRefund(ctx, repository.NoTX, args)
	}
	if err != nil {
		// The critical class: refunded at the gateway, unrecorded in the ledger.
		u.comp.Record(ctx, refundOpForType(p.Type), p.ID, p.UserID, confirmed, err)
		metrics.IncRefund("compensated")
		return &RefundResult{PaymentID: p.ID, Amount: confirmed, RefundedAt: receipt.CanceledAt, Compensated: true}, nil
	}

	metrics.IncRefund("completed")
	metrics.AddRefundedAmount(confirmed)
	u.log.Info().
		Str("payment_id", p.ID).
		Int64("amount", confirmed).
		Msg("refund completed")
	return &RefundResult{PaymentID: p.ID, Amount: confirmed, RefundedAt: receipt.CanceledAt}, nil
}

func refundOpForType(t model.PaymentType) model.CompensationOp {
	switch t {
	case model.PaymentTypeCreditPurchase:
		return model.CompensationOpCreditRefund
	case model.PaymentTypeSubscription:
		return model.CompensationOpSubscriptionRefund
	default:
		return model.CompensationOpSimpleRefund
	}
}

func (u *refundUC) CreateRefundRequest(ctx context.Context, userID, paymentID string, amount int64, typ model.RefundType, reason string) (*model.RefundRequest, error) {
	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrNotOwner
	}
	if p.RefundableAmount() <= 0 {
		return nil, domain.ErrPaymentNotRefundable
	}
	if typ == model.RefundTypeFull {
		amount = p.RefundableAmount()
	}
	if amount <= 0 || amount > p.RefundableAmount() {
		return nil, domain.ErrRefundAmountExceeded
	}
	req, err := model.NewRefundRequest(uuid.NewString(), paymentID, userID, amount, typ, reason)
	if err != nil {
		return nil, err
	}
	if err := u.procs.CreateRefundRequest(ctx, repository.NoTX, req); err != nil {
		return nil, err
	}
	metrics.IncRefundRequest("created")
	return req, nil
}

func (u *refundUC) CancelRefundRequest(ctx context.Context, userID, requestID string) error {
	req, err := u.requests.FindByID(ctx, repository.NoTX, requestID)
	if err != nil {
		return err
	}
	if req.UserID != userID {
		return domain.ErrNotOwner
	}
	if !req.Status.CanTransition(model.RefundStatusCanceled) {
		return domain.ErrRefundRequestImmutable
	}
	err = u.procs.UpdateRefundRequestStatus(ctx, repository.NoTX, repository.RefundRequestUpdateArgs{
		RequestID: requestID,
		Status:    model.RefundStatusCanceled,
	})
	if err == nil {
		metrics.IncRefundRequest("canceled")
	}
	return err
}

func (u *refundUC) RejectRefundRequest(ctx context.Context, requestID, reason string) error {
	req, err := u.requests.FindByID(ctx, repository.NoTX, requestID)
	if err != nil {
		return err
	}
	if !req.Status.CanTransition(model.RefundStatusRejected) {
		return domain.ErrRefundRequestImmutable
	}
	err = u.procs.UpdateRefundRequestStatus(ctx, repository.NoTX, repository.RefundRequestUpdateArgs{
		RequestID:       requestID,
		Status:          model.RefundStatusRejected,
		RejectionReason: reason,
	})
	if err == nil {
		metrics.IncRefundRequest("rejected")
	}
	return err
}

func (u *refundUC) ApproveRefundRequest(ctx context.Context, requestID, adminNote string) (*RefundResult, error) {
	req, err := u.requests.FindByID(ctx, repository.NoTX, requestID)
	if err != nil {
		return nil, err
	}
	if !req.Status.CanTransition(model.RefundStatusProcessing) {
		return nil, domain.ErrRefundRequestImmutable
	}
	p, err := u.payments.FindByID(ctx, repository.NoTX, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if p.RefundableAmount() <= 0 || p.PaymentKey == nil {
		return nil, domain.ErrPaymentNotRefundable
	}

	effective := req.RequestedAmount
	if req.Type == model.RefundTypeProrated {
		effective, err = u.procs.CalculateProratedRefund(ctx, repository.NoTX, p.ID)
		if err != nil {
			return nil, err
		}
	}
	if effective <= 0 || effective > p.RefundableAmount() {
		return nil, domain.ErrRefundAmountExceeded
	}

	if err := u.procs.UpdateRefundRequestStatus(ctx, repository.NoTX, repository.RefundRequestUpdateArgs{
		RequestID: requestID,
		Status:    model.RefundStatusProcessing,
		AdminNote: adminNote,
	}); err != nil {
		return nil, err
	}

	res, err := u.executeRefund(ctx, p, effective, req.Reason)
	now := u.now()
	if err != nil {
		// Gateway rejected the cancel before anything moved; put the request
		// back to pending so the admin can retry.
		if uerr := u.procs.UpdateRefundRequestStatus(ctx, repository.NoTX, repository.RefundRequestUpdateArgs{
			RequestID: requestID,
			Status:    model.RefundStatusPending,
		}); uerr != nil {
			u.log.Error().Err(uerr).Str("request_id", requestID).Msg("failed to reset refund request to pending")
		}
		return nil, err
	}

	// The gateway step committed. completed/failed now only describes whether
	// the ledger sync kept up; executeRefund already compensated if it did not,
	// and a compensated refund resolves failed so the admin sees the lag.
	final := model.RefundStatusCompleted
	if res.Compensated {
		final = model.RefundStatusFailed
	}
	if uerr := u.procs.UpdateRefundRequestStatus(ctx, repository.NoTX, repository.RefundRequestUpdateArgs{
		RequestID:      requestID,
		Status:         final,
		ApprovedAmount: &res.Amount,
		AdminNote:      adminNote,
		ProcessedAt:    &now,
	}); uerr != nil {
		u.log.Error().Err(uerr).Str("request_id", requestID).Msg("refund request final status update failed")
	}
	metrics.IncRefundRequest("approved")
	return res, nil
}
