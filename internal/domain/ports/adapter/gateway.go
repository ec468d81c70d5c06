package adapter

import (
	"context"
	"fmt"
	"time"
)

// GatewayError is a provider-side failure with a stable code (declined card,
// invalid key, rate limit...). The code is mapped to a localized user-facing
// message by a side table in the gateway package; the raw message is for logs.
type GatewayError struct {
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}

// Receipt is the normalized result of a confirmed or billing-key charge.
type Receipt struct {
	PaymentKey  string
	OrderID     string
	TotalAmount int64
	Method      string
	ReceiptURL  string
	ApprovedAt  time.Time
}

// CancelReceipt is the normalized result of a cancellation/refund.
type CancelReceipt struct {
	PaymentKey   string
	CancelAmount int64
	CanceledAt   time.Time
}

// BillingKeyInfo is returned when a billing key is issued for a saved card.
// BillingKey is plaintext here and must be encrypted before persistence.
type BillingKeyInfo struct {
	BillingKey  string
	CustomerKey string
	CardCompany string
	CardNumber  string // masked by the provider
	CardType    string
}

// PaymentGateway is the port for the external payment provider. Implementations
// hold no local state beyond the HTTP client; every call is one remote round
// trip. A timeout must surface as an error the caller treats as unknown
// outcome, not as a definite failure.
type PaymentGateway interface {
	Name() string

	// ConfirmPayment finalizes a checkout payment the client authorized.
	ConfirmPayment(ctx context.Context, paymentKey, orderID string, amount int64) (*Receipt, error)

	// CancelPayment cancels/refunds a confirmed payment. A nil amount cancels
	// the full remaining balance.
	CancelPayment(ctx context.Context, paymentKey, reason string, amount *int64) (*CancelReceipt, error)

	// IssueBillingKey exchanges a client auth key for a reusable billing key.
	IssueBillingKey(ctx context.Context, authKey, customerKey string) (*BillingKeyInfo, error)

	// ChargeBilling charges a stored billing key off-session.
	ChargeBilling(ctx context.Context, billingKey, customerKey string, amount int64, orderID, orderName string) (*Receipt, error)
}
