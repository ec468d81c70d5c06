package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"saas-billing-core/internal/domain"
	"saas-billing-core/internal/domain/model"
	"saas-billing-core/internal/domain/ports/repository"
	"saas-billing-core/internal/infra/metrics"
)

type WebhookOutcome string

const (
	WebhookProcessed WebhookOutcome = "processed"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

type WebhookUseCase interface {
	// Process deduplicates and routes one verified gateway delivery. The
	// signature has already been checked by the transport layer; Process owns
	// payload validation, idempotency, and routing to the atomic procedures.
	Process(ctx context.Context, rawBody []byte, transmissionID string) (WebhookOutcome, error)
}

// webhookEnvelope is the provider's outer event shape. Parsing fails closed:
// anything that does not validate is rejected before any side effect.
type webhookEnvelope struct {
	EventType string          `json:"eventType" validate:"required"`
	CreatedAt string          `json:"createdAt"`
	Data      json.RawMessage `json:"data" validate:"required"`
}

type paymentEventData struct {
	PaymentKey  string `json:"paymentKey" validate:"required"`
	OrderID     string `json:"orderId" validate:"required"`
	Status      string `json:"status" validate:"required"`
	TotalAmount int64  `json:"totalAmount"`
}

type depositEventData struct {
	OrderID string `json:"orderId" validate:"required"`
	Status  string `json:"status" validate:"required"`
	Amount  int64  `json:"amount"`
}

type billingKeyEventData struct {
	BillingKeyID string `json:"billingKeyId" validate:"required"`
	Status       string `json:"status" validate:"required"`
}

type webhookUC struct {
	logs     repository.WebhookLogRepository
	payments repository.PaymentRepository
	procs    repository.LedgerProcedures
	validate *validator.Validate
	log      *zerolog.Logger
	now      func() time.Time
}

func NewWebhookUseCase(
	logs repository.WebhookLogRepository,
	payments repository.PaymentRepository,
	procs repository.LedgerProcedures,
	log *zerolog.Logger,
) *webhookUC {
	return &webhookUC{
		logs:     logs,
		payments: payments,
		procs:    procs,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
}

func (u *webhookUC) Process(ctx context.Context, rawBody []byte, transmissionID string) (WebhookOutcome, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return "", fmt.Errorf("%w: malformed webhook body: %v", domain.ErrInvalidArgument, err)
	}
	if err := u.validate.Struct(&env); err != nil {
		return "", fmt.Errorf("%w: invalid webhook envelope: %v", domain.ErrInvalidArgument, err)
	}

	key := transmissionID
	if key == "" {
		key = model.PayloadIdempotencyKey(rawBody)
	}

	// At-least-once delivery becomes exactly-once effect here: the upsert is
	// atomic, and a duplicate key short-circuits once the stored entry reached
	// the processed state. A failed entry must not short-circuit: the 5xx we
	// answered is what triggered this redelivery, so routing runs again.
	entry, isNew, err := u.logs.UpsertIfAbsent(ctx, repository.NoTX, key, env.EventType, rawBody)
	if err != nil {
		return "", err
	}
	if !isNew {
		if !entry.RetryEligible(u.now()) {
			metrics.IncWebhook(env.EventType, "duplicate")
			u.log.Debug().Str("idempotency_key", key).Str("event_type", env.EventType).Msg("duplicate webhook delivery ignored")
			return WebhookDuplicate, nil
		}
		u.log.Info().
			Str("idempotency_key", key).
			Str("event_type", env.EventType).
			Str("previous_status", string(entry.Status)).
			Msg("redelivery of an unprocessed webhook; routing again")
	}

	outcome, routeErr := u.route(ctx, env)
	now := u.now()
	if routeErr != nil {
		if merr := u.logs.MarkResult(ctx, repository.NoTX, entry.ID, model.WebhookStatusFailed, routeErr.Error(), now); merr != nil {
			u.log.Error().Err(merr).Str("webhook_id", entry.ID).Msg("failed to record webhook failure")
		}
		metrics.IncWebhook(env.EventType, "failed")
		return "", routeErr
	}
	if merr := u.logs.MarkResult(ctx, repository.NoTX, entry.ID, model.WebhookStatusProcessed, "", now); merr != nil {
		u.log.Error().Err(merr).Str("webhook_id", entry.ID).Msg("failed to record webhook result")
	}
	metrics.IncWebhook(env.EventType, string(outcome))
	return outcome, nil
}

func (u *webhookUC) route(ctx context.Context, env webhookEnvelope) (WebhookOutcome, error) {
	switch env.EventType {
	case "PAYMENT_STATUS_CHANGED":
		var data paymentEventData
		if err := u.decodeData(env.Data, &data); err != nil {
			return "", err
		}
		return u.handlePaymentStatus(ctx, data)
	case "DEPOSIT_CALLBACK":
		var data depositEventData
		if err := u.decodeData(env.Data, &data); err != nil {
			return "", err
		}
		return u.handleDeposit(ctx, data)
	case "BILLING_KEY_STATUS_CHANGED":
		var data billingKeyEventData
		if err := u.decodeData(env.Data, &data); err != nil {
			return "", err
		}
		return u.handleBillingKeyStatus(ctx, data)
	default:
		u.log.Info().Str("event_type", env.EventType).Msg("unrecognized webhook event type; logged only")
		return WebhookIgnored, nil
	}
}

func (u *webhookUC) decodeData(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: malformed event data: %v", domain.ErrInvalidArgument, err)
	}
	if err := u.validate.Struct(out); err != nil {
		return fmt.Errorf("%w: invalid event data: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

func (u *webhookUC) handlePaymentStatus(ctx context.Context, data paymentEventData) (WebhookOutcome, error) {
	p, err := u.payments.FindByOrderID(ctx, repository.NoTX, data.OrderID)
	if err != nil {
		return "", err
	}

	switch data.Status {
	case "DONE":
		if p.Status == model.PaymentStatusCompleted {
			return WebhookIgnored, nil // orchestrator path won the race
		}
		// The stored amount is authoritative; a webhook reporting a different
		// one is refused and flagged, never applied.
		if data.TotalAmount != p.Amount {
			u.log.Error().
				Str("payment_id", p.ID).
				Int64("stored_amount", p.Amount).
				Int64("webhook_amount", data.TotalAmount).
				Msg("SECURITY: webhook amount mismatch; update refused")
			return "", fmt.Errorf("%w: payment %s", domain.ErrAmountMismatch, p.ID)
		}
		now := u.now()
		updated, err := u.payments.UpdateStatusIfPending(ctx, repository.NoTX, p.ID, model.PaymentStatusCompleted, &data.PaymentKey, &now, "")
		if err != nil {
			return "", err
		}
		if !updated {
			return WebhookIgnored, nil
		}
		metrics.IncPayment("completed")
		return WebhookProcessed, nil

	case "CANCELED", "PARTIAL_CANCELED":
		// The cancellation may not have originated from our own refund flow, so
		// credits are deducted through the dedicated procedure.
		if data.TotalAmount > p.Amount {
			u.log.Error().
				Str("payment_id", p.ID).
				Int64("stored_amount", p.Amount).
				Int64("webhook_amount", data.TotalAmount).
				Msg("SECURITY: webhook cancel amount exceeds payment; update refused")
			return "", fmt.Errorf("%w: payment %s", domain.ErrAmountMismatch, p.ID)
		}
		amount := data.TotalAmount
		if amount == 0 {
			amount = p.RefundableAmount()
		}
		err := u.procs.DeductCreditForRefund(ctx, repository.NoTX, repository.RefundArgs{
			PaymentID: p.ID,
			UserID:    p.UserID,
			Amount:    amount,
			Reason:    "gateway-originated cancellation",
		})
		if err != nil {
			return "", err
		}
		return WebhookProcessed, nil

	case "EXPIRED", "ABORTED":
		if _, err := u.payments.UpdateStatusIfPending(ctx, repository.NoTX, p.ID, model.PaymentStatusFailed, nil, nil, data.Status); err != nil {
			return "", err
		}
		return WebhookProcessed, nil

	default:
		u.log.Info().Str("status", data.Status).Str("payment_id", p.ID).Msg("unhandled payment status; logged only")
		return WebhookIgnored, nil
	}
}

// handleDeposit mirrors the confirm-payment path for virtual-account and
// deferred deposit callbacks; idempotent against already-completed payments.
func (u *webhookUC) handleDeposit(ctx context.Context, data depositEventData) (WebhookOutcome, error) {
	if data.Status != "DONE" {
		return WebhookIgnored, nil
	}
	p, err := u.payments.FindByOrderID(ctx, repository.NoTX, data.OrderID)
	if err != nil {
		return "", err
	}
	if p.Status == model.PaymentStatusCompleted {
		return WebhookIgnored, nil
	}
	if data.Amount != 0 && data.Amount != p.Amount {
		u.log.Error().
			Str("payment_id", p.ID).
			Int64("stored_amount", p.Amount).
			Int64("webhook_amount", data.Amount).
			Msg("SECURITY: deposit amount mismatch; update refused")
		return "", fmt.Errorf("%w: payment %s", domain.ErrAmountMismatch, p.ID)
	}
	now := u.now()
	updated, err := u.payments.UpdateStatusIfPending(ctx, repository.NoTX, p.ID, model.PaymentStatusCompleted, nil, &now, "")
	if err != nil {
		return "", err
	}
	if !updated {
		return WebhookIgnored, nil
	}
	metrics.IncPayment("completed")
	return WebhookProcessed, nil
}

func (u *webhookUC) handleBillingKeyStatus(ctx context.Context, data billingKeyEventData) (WebhookOutcome, error) {
	if data.Status != "EXPIRED" {
		return WebhookIgnored, nil
	}
	if err := u.procs.DeactivateSubscriptionsByBillingKey(ctx, repository.NoTX, data.BillingKeyID); err != nil {
		return "", err
	}
	return WebhookProcessed, nil
}

// retryablePatterns marks transient failure classes where the provider should
// redeliver; everything else is acknowledged to avoid a retry storm on a
// permanently failing payload.
var retryablePatterns = []string{
	"network",
	"timeout",
	"timed out",
	"connection",
	"deadline exceeded",
	"database",
	"deadlock",
	"temporarily unavailable",
	"too many clients",
	"operation failed",
}

// IsRetryableWebhookError classifies a routing failure by message pattern.
func IsRetryableWebhookError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pat := range retryablePatterns {
		if strings.Contains(msg, pat) {
			return true
		}
	}
	return false
}
