package model

import (
	"time"

	"saas-billing-core/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending        PaymentStatus = "pending"         // created at prepare time; awaiting gateway outcome
	PaymentStatusCompleted      PaymentStatus = "completed"       // confirmed at gateway and in ledger
	PaymentStatusFailed         PaymentStatus = "failed"          // gateway declined or confirm flow aborted
	PaymentStatusCanceled       PaymentStatus = "canceled"        // canceled before completion
	PaymentStatusRefunded       PaymentStatus = "refunded"        // fully refunded
	PaymentStatusPartialRefunded PaymentStatus = "partial_refunded"
)

type PaymentType string

const (
	PaymentTypeSubscription   PaymentType = "subscription"
	PaymentTypeCreditPurchase PaymentType = "credit_purchase"
	PaymentTypePlanChange     PaymentType = "plan_change"
)

// paymentTransitions is the closed set of legal status moves. Everything not
// listed is rejected at the model layer before any repo or gateway call.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:         {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCanceled},
	PaymentStatusCompleted:       {PaymentStatusRefunded, PaymentStatusPartialRefunded},
	PaymentStatusPartialRefunded: {PaymentStatusRefunded, PaymentStatusPartialRefunded},
	PaymentStatusFailed:          {},
	PaymentStatusCanceled:        {},
	PaymentStatusRefunded:        {},
}

// CanTransition reports whether moving a payment from -> to is legal.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, next := range paymentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s PaymentStatus) Terminal() bool { return len(paymentTransitions[s]) == 0 }

// Payment records a money movement intent against the gateway.
// Amount is in the smallest currency unit (KRW has no minor unit).
type Payment struct {
	ID             string // UUID
	UserID         string // UUID
	OrderID        string // ULID, unique, client-correlatable
	Type           PaymentType
	Status         PaymentStatus
	Amount         int64
	RefundedAmount int64
	PaymentKey     *string // gateway payment key, nil until confirmed
	Method         string  // card, transfer, virtual_account
	ReceiptURL     *string
	FailReason     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ConfirmedAt    *time.Time
	Meta           PaymentMeta
}

// PaymentMeta carries type-specific context (serialized as JSONB).
type PaymentMeta struct {
	PlanID         string `json:"plan_id,omitempty"`
	BillingCycle   string `json:"billing_cycle,omitempty"`
	CreditCount    int64  `json:"credit_count,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

// NewPayment validates and constructs a pending payment.
func NewPayment(id, userID, orderID string, typ PaymentType, amount int64, meta PaymentMeta) (*Payment, error) {
	if id == "" || userID == "" || orderID == "" || amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	switch typ {
	case PaymentTypeSubscription, PaymentTypeCreditPurchase, PaymentTypePlanChange:
	default:
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Payment{
		ID:        id,
		UserID:    userID,
		OrderID:   orderID,
		Type:      typ,
		Status:    PaymentStatusPending,
		Amount:    amount,
		CreatedAt: now,
		UpdatedAt: now,
		Meta:      meta,
	}, nil
}

// RefundableAmount is what can still be refunded against this payment.
func (p *Payment) RefundableAmount() int64 {
	if p.Status != PaymentStatusCompleted && p.Status != PaymentStatusPartialRefunded {
		return 0
	}
	return p.Amount - p.RefundedAmount
}

// ApplyRefund moves the payment to refunded/partial_refunded for the given
// confirmed amount; the refunded_amount <= amount invariant is enforced here.
func (p *Payment) ApplyRefund(amount int64) error {
	if amount <= 0 || amount > p.RefundableAmount() {
		return domain.ErrRefundAmountExceeded
	}
	next := PaymentStatusPartialRefunded
	if p.RefundedAmount+amount == p.Amount {
		next = PaymentStatusRefunded
	}
	if !p.Status.CanTransition(next) {
		return domain.ErrInvalidTransition
	}
	p.RefundedAmount += amount
	p.Status = next
	p.UpdatedAt = time.Now()
	return nil
}
