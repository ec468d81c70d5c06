package model

import (
	"time"

	"saas-billing-core/internal/domain"
)

// Plan defines a purchasable subscription tier. Prices are server-side truth;
// a client-submitted amount is never trusted.
type Plan struct {
	ID           string
	Name         string
	PriceMonthly int64
	PriceYearly  int64
	Credits      int64
	CreatedAt    time.Time
}

func NewPlan(id, name string, priceMonthly, priceYearly, credits int64) (*Plan, error) {
	if id == "" || name == "" || priceMonthly < 0 || priceYearly < 0 || credits < 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Plan{
		ID:           id,
		Name:         name,
		PriceMonthly: priceMonthly,
		PriceYearly:  priceYearly,
		Credits:      credits,
		CreatedAt:    time.Now(),
	}, nil
}

// Price returns the charge amount for the given cycle.
func (p *Plan) Price(cycle BillingCycle) int64 {
	if cycle == BillingCycleYearly {
		return p.PriceYearly
	}
	return p.PriceMonthly
}
