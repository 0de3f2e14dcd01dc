// Package billing implements plan classification and webhook-driven
// subscription reconciliation.
package billing

import (
	"fmt"

	"mindgarden/internal/types"
)

// PlanCatalog maps Stripe price ids to plan tiers. It is built once at
// startup from configuration; an unknown price id at classification time
// therefore means the Stripe dashboard and this deployment disagree.
type PlanCatalog struct {
	byPrice map[string]types.PlanTier
	byPlan  map[types.PlanTier]string
}

// NewPlanCatalog builds the catalog from the two configured price ids.
// Empty or duplicate ids are a deployment misconfiguration and fail
// construction so the process refuses to start.
func NewPlanCatalog(monthlyPriceID, yearlyPriceID string) (*PlanCatalog, error) {
	if monthlyPriceID == "" || yearlyPriceID == "" {
		return nil, fmt.Errorf("plan catalog: price ids must be non-empty (monthly=%q, yearly=%q)",
			monthlyPriceID, yearlyPriceID)
	}
	if monthlyPriceID == yearlyPriceID {
		return nil, fmt.Errorf("plan catalog: monthly and yearly price ids are both %q", monthlyPriceID)
	}

	return &PlanCatalog{
		byPrice: map[string]types.PlanTier{
			monthlyPriceID: types.PlanPremiumMonthly,
			yearlyPriceID:  types.PlanPremiumYearly,
		},
		byPlan: map[types.PlanTier]string{
			types.PlanPremiumMonthly: monthlyPriceID,
			types.PlanPremiumYearly:  yearlyPriceID,
		},
	}, nil
}

// ClassifyPrice returns the plan tier for a Stripe price id. The boolean
// is false for ids outside the catalog.
func (c *PlanCatalog) ClassifyPrice(priceID string) (types.PlanTier, bool) {
	tier, ok := c.byPrice[priceID]
	return tier, ok
}

// PriceFor returns the Stripe price id for a plan tier.
func (c *PlanCatalog) PriceFor(plan types.PlanTier) (string, bool) {
	priceID, ok := c.byPlan[plan]
	return priceID, ok
}
