package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid query execution context")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrNotOwner           = errors.New("caller does not own this resource")
	ErrInvalidTransition  = errors.New("illegal status transition")
	ErrLockNotAcquired    = errors.New("lock not acquired")

	// Payment / refund errors
	ErrPaymentNotRefundable   = errors.New("payment is not in a refundable status")
	ErrRefundAmountExceeded   = errors.New("requested amount exceeds refundable amount")
	ErrRefundWindowExpired    = errors.New("refund window has expired")
	ErrRefundRequestImmutable = errors.New("refund request is no longer pending")
	ErrAmountMismatch         = errors.New("gateway amount does not match expected amount")

	// Subscription errors
	ErrActiveSubscriptionExists = errors.New("user already has an active subscription")
	ErrNoActiveSubscription     = errors.New("no active subscription")
	ErrSamePlan                 = errors.New("already subscribed to this plan")
	ErrRenewalRetryLater        = errors.New("renewal charge failed; retry scheduled")
	ErrRenewalExhausted         = errors.New("renewal retries exhausted; subscription past due")

	// Billing key errors
	ErrBillingKeyInUse     = errors.New("billing key is referenced by an active subscription")
	ErrNoDefaultBillingKey = errors.New("no default billing key on file")
)
