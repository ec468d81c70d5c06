package usecase

import (
	"time"

	"saas-billing-core/internal/domain/model"
)

// PlanChangeKind classifies a requested plan change.
type PlanChangeKind string

const (
	PlanChangeUpgrade   PlanChangeKind = "upgrade"   // prorated amount > 0, charged immediately
	PlanChangeDowngrade PlanChangeKind = "downgrade" // deferred to period end, no charge
	PlanChangeSame      PlanChangeKind = "same"      // rejected
)

// Proration is the outcome of comparing the remaining value of the current
// plan against the cost of the new plan for the rest of the period.
type Proration struct {
	Kind            PlanChangeKind
	Amount          int64 // immediate charge for upgrades, 0 otherwise
	RequiresPayment bool
	EffectiveDate   time.Time
	DaysRemaining   int
	TotalDays       int
}

// Prorate computes the mid-period charge for switching plans. The remaining
// value of the new plan is offset by what the user has already consumed of the
// current one; all arithmetic is integer floor division.
func Prorate(currentPrice, newPrice int64, daysRemaining, totalDays int, periodEnd time.Time, samePlan bool) Proration {
	if samePlan {
		return Proration{Kind: PlanChangeSame, EffectiveDate: periodEnd, DaysRemaining: daysRemaining, TotalDays: totalDays}
	}
	if totalDays <= 0 {
		totalDays = 1
	}
	if daysRemaining < 0 {
		daysRemaining = 0
	}
	if daysRemaining > totalDays {
		daysRemaining = totalDays
	}

	newRemaining := newPrice * int64(daysRemaining) / int64(totalDays)
	currentUsed := currentPrice - currentPrice*int64(daysRemaining)/int64(totalDays)
	amount := newRemaining - currentUsed

	if amount > 0 {
		return Proration{
			Kind:            PlanChangeUpgrade,
			Amount:          amount,
			RequiresPayment: true,
			EffectiveDate:   time.Now(),
			DaysRemaining:   daysRemaining,
			TotalDays:       totalDays,
		}
	}
	return Proration{
		Kind:          PlanChangeDowngrade,
		EffectiveDate: periodEnd,
		DaysRemaining: daysRemaining,
		TotalDays:     totalDays,
	}
}

// remainingDays is the whole-day count between now and the period end.
func remainingDays(now, periodEnd time.Time) int {
	d := int(periodEnd.Sub(now).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// periodTotalDays derives the nominal day count of a billing cycle.
func periodTotalDays(cycle model.BillingCycle) int {
	return int(cycle.PeriodDuration().Hours() / 24)
}
