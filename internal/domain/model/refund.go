package model

import (
	"time"

	"saas-billing-core/internal/domain"
)

type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusCompleted  RefundStatus = "completed"
	RefundStatusFailed     RefundStatus = "failed"
	RefundStatusRejected   RefundStatus = "rejected"
	RefundStatusCanceled   RefundStatus = "canceled"
)

var refundTransitions = map[RefundStatus][]RefundStatus{
	RefundStatusPending: {RefundStatusProcessing, RefundStatusRejected, RefundStatusCanceled},
	// processing -> pending: the gateway rejected the cancel before anything
	// moved, so the request goes back to the admin queue for a retry.
	RefundStatusProcessing: {RefundStatusCompleted, RefundStatusFailed, RefundStatusPending},
	RefundStatusCompleted:  {},
	RefundStatusFailed:     {},
	RefundStatusRejected:   {},
	RefundStatusCanceled:   {},
}

func (s RefundStatus) CanTransition(to RefundStatus) bool {
	for _, next := range refundTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type RefundType string

const (
	RefundTypeFull     RefundType = "full"
	RefundTypePartial  RefundType = "partial"
	RefundTypeProrated RefundType = "prorated"
)

// RefundRequest is the admin-approval refund path: created pending, then
// approved (processing -> completed/failed) or rejected. Only pending
// requests may be canceled by the owner or rejected by an admin.
type RefundRequest struct {
	ID              string // UUID
	PaymentID       string
	UserID          string
	RequestedAmount int64
	ApprovedAmount  *int64 // nil until processed
	Type            RefundType
	Status          RefundStatus
	Reason          string
	AdminNote       string
	RejectionReason string
	ProcessedAt     *time.Time
	RetryCount      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewRefundRequest(id, paymentID, userID string, amount int64, typ RefundType, reason string) (*RefundRequest, error) {
	if id == "" || paymentID == "" || userID == "" || amount <= 0 || reason == "" {
		return nil, domain.ErrInvalidArgument
	}
	switch typ {
	case RefundTypeFull, RefundTypePartial, RefundTypeProrated:
	default:
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &RefundRequest{
		ID:              id,
		PaymentID:       paymentID,
		UserID:          userID,
		RequestedAmount: amount,
		Type:            typ,
		Status:          RefundStatusPending,
		Reason:          reason,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}
