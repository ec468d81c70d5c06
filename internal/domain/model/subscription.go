package model

import (
	"time"

	"saas-billing-core/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusPaused   SubscriptionStatus = "paused"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusTrialing: {SubscriptionStatusActive, SubscriptionStatusCanceled},
	SubscriptionStatusActive:   {SubscriptionStatusPastDue, SubscriptionStatusPaused, SubscriptionStatusCanceled},
	SubscriptionStatusPastDue:  {SubscriptionStatusActive, SubscriptionStatusCanceled},
	SubscriptionStatusPaused:   {SubscriptionStatusActive, SubscriptionStatusCanceled},
	SubscriptionStatusCanceled: {},
}

func (s SubscriptionStatus) CanTransition(to SubscriptionStatus) bool {
	for _, next := range subscriptionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// RenewalMaxAttempts bounds how many times a failed renewal charge is retried
// before the subscription is moved to past_due.
const RenewalMaxAttempts = 3

// RenewalRetryInterval is the spacing between renewal attempts.
const RenewalRetryInterval = 24 * time.Hour

// Subscription is a user's entitlement period backed by a stored billing key.
// At most one active subscription exists per user.
type Subscription struct {
	ID                 string // UUID
	UserID             string // UUID
	PlanID             string
	BillingCycle       BillingCycle
	Status             SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	BillingKeyID       *string

	// Deferred downgrade, applied by the renewal path at period end.
	ScheduledPlanID       *string
	ScheduledBillingCycle *BillingCycle
	ScheduledChangeAt     *time.Time

	// Renewal retry bookkeeping.
	RenewalRetryCount int
	NextRenewalAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSubscription constructs an active subscription for the first paid period.
func NewSubscription(id, userID, planID string, cycle BillingCycle, billingKeyID string) (*Subscription, error) {
	if id == "" || userID == "" || planID == "" || billingKeyID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if cycle != BillingCycleMonthly && cycle != BillingCycleYearly {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Subscription{
		ID:                 id,
		UserID:             userID,
		PlanID:             planID,
		BillingCycle:       cycle,
		Status:             SubscriptionStatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.Add(cycle.PeriodDuration()),
		BillingKeyID:       &billingKeyID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// PeriodDuration returns the wall-clock length of one billing period.
func (c BillingCycle) PeriodDuration() time.Duration {
	if c == BillingCycleYearly {
		return 365 * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}

// HasScheduledChange reports whether a deferred plan change is pending.
func (s *Subscription) HasScheduledChange() bool { return s.ScheduledPlanID != nil }

// MarkPastDue transitions out of active after renewal retries are exhausted.
func (s *Subscription) MarkPastDue() error {
	if !s.Status.CanTransition(SubscriptionStatusPastDue) {
		return domain.ErrInvalidTransition
	}
	s.Status = SubscriptionStatusPastDue
	s.NextRenewalAt = nil
	s.UpdatedAt = time.Now()
	return nil
}

// Cancel transitions to canceled; immediate regardless of period end.
func (s *Subscription) Cancel() error {
	if !s.Status.CanTransition(SubscriptionStatusCanceled) {
		return domain.ErrInvalidTransition
	}
	now := time.Now()
	s.Status = SubscriptionStatusCanceled
	s.CanceledAt = &now
	s.UpdatedAt = now
	return nil
}
