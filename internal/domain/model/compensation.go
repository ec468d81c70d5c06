package model

import (
	"time"

	"saas-billing-core/internal/domain"
)

type CompensationStatus string

const (
	CompensationStatusPending   CompensationStatus = "pending"
	CompensationStatusProcessed CompensationStatus = "processed"
)

// CompensationOp names the atomic procedure whose failure produced the record,
// so an automated pass knows what to replay.
type CompensationOp string

const (
	CompensationOpSimpleRefund        CompensationOp = "process_simple_refund_atomic"
	CompensationOpCreditRefund        CompensationOp = "process_credit_refund_atomic"
	CompensationOpSubscriptionRefund  CompensationOp = "process_subscription_refund_atomic"
	CompensationOpConfirmSubscription CompensationOp = "confirm_subscription_atomic"
	CompensationOpRenewSubscription   CompensationOp = "renew_subscription_atomic"
	CompensationOpChangePlan          CompensationOp = "change_plan_immediate_atomic"
)

// Replayable reports whether the background worker may re-run the procedure.
// The refund-class procedures are idempotent per payment and carry everything
// a record stores; the charge-class ones need request context (auth keys,
// order ids) a record does not, so those stay with an operator.
func (op CompensationOp) Replayable() bool {
	switch op {
	case CompensationOpSimpleRefund, CompensationOpCreditRefund, CompensationOpSubscriptionRefund:
		return true
	}
	return false
}

// CompensationRecord is an append-only entry created exactly when the gateway
// committed a money movement but the corresponding atomic DB procedure failed.
// It is the source queue for manual and automated reconciliation; the
// customer-visible result of the originating request was already success.
type CompensationRecord struct {
	ID                         string // UUID
	PaymentID                  string
	UserID                     string
	Op                         CompensationOp
	Amount                     int64
	ErrorMessage               string
	RequiresManualIntervention bool
	Status                     CompensationStatus
	ProcessedAt                *time.Time
	CreatedAt                  time.Time
}

func NewCompensationRecord(id, paymentID, userID string, op CompensationOp, amount int64, errMsg string, manual bool) (*CompensationRecord, error) {
	if id == "" || paymentID == "" || userID == "" || op == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &CompensationRecord{
		ID:                         id,
		PaymentID:                  paymentID,
		UserID:                     userID,
		Op:                         op,
		Amount:                     amount,
		ErrorMessage:               errMsg,
		RequiresManualIntervention: manual,
		Status:                     CompensationStatusPending,
		CreatedAt:                  time.Now(),
	}, nil
}
