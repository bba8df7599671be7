package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

type priceKey struct {
	plan     Plan
	cycle    BillingCycle
	currency string
}

// PricingTable maps plan/cycle/currency to a price and plan to a credit grant.
// It is loaded once at startup and immutable afterwards; both the order
// initiator and the credit allocator read from the same injected value so the
// server-side price check and the grant can never drift apart.
type PricingTable struct {
	prices  map[priceKey]decimal.Decimal
	credits map[Plan]int
}

func NewPricingTable() *PricingTable {
	return &PricingTable{
		prices:  make(map[priceKey]decimal.Decimal),
		credits: make(map[Plan]int),
	}
}

func (t *PricingTable) SetPrice(plan Plan, cycle BillingCycle, currency string, price decimal.Decimal) *PricingTable {
	t.prices[priceKey{plan, cycle, strings.ToUpper(currency)}] = price
	return t
}

func (t *PricingTable) SetCredits(plan Plan, credits int) *PricingTable {
	t.credits[plan] = credits
	return t
}

// Price returns the catalog price for a plan/cycle/currency combination.
func (t *PricingTable) Price(plan Plan, cycle BillingCycle, currency string) (decimal.Decimal, bool) {
	p, ok := t.prices[priceKey{plan, cycle, strings.ToUpper(currency)}]
	return p, ok
}

// Credits returns the credit allotment granted on a successful payment for the
// plan. Grants overwrite the user's balance, they are not additive.
func (t *PricingTable) Credits(plan Plan) int {
	return t.credits[plan]
}

// priceMatchTolerance absorbs client-side float rounding in quoted amounts.
var priceMatchTolerance = decimal.NewFromFloat(0.01)

// PriceMatches reports whether a client-quoted amount agrees with the catalog
// price within the rounding tolerance.
func (t *PricingTable) PriceMatches(plan Plan, cycle BillingCycle, currency string, quoted decimal.Decimal) bool {
	expected, ok := t.Price(plan, cycle, currency)
	if !ok {
		return false
	}
	return expected.Sub(quoted).Abs().LessThanOrEqual(priceMatchTolerance)
}

// DefaultPricingTable is the shipped catalog. Deployments override it through
// the PLAN_PRICING_JSON environment variable.
func DefaultPricingTable() *PricingTable {
	t := NewPricingTable()

	t.SetCredits(PlanFree, 0)
	t.SetCredits(PlanPilot, 1000)
	t.SetCredits(PlanScale, 5000)
	t.SetCredits(PlanEnterprise, 20000)

	t.SetPrice(PlanPilot, CycleMonthly, "USD", decimal.NewFromInt(49))
	t.SetPrice(PlanPilot, CycleYearly, "USD", decimal.NewFromInt(490))
	t.SetPrice(PlanScale, CycleMonthly, "USD", decimal.NewFromInt(199))
	t.SetPrice(PlanScale, CycleYearly, "USD", decimal.NewFromInt(1990))
	t.SetPrice(PlanEnterprise, CycleMonthly, "USD", decimal.NewFromInt(999))
	t.SetPrice(PlanEnterprise, CycleYearly, "USD", decimal.NewFromInt(9990))

	t.SetPrice(PlanPilot, CycleMonthly, "INR", decimal.NewFromInt(3999))
	t.SetPrice(PlanPilot, CycleYearly, "INR", decimal.NewFromInt(39990))
	t.SetPrice(PlanScale, CycleMonthly, "INR", decimal.NewFromInt(15999))
	t.SetPrice(PlanScale, CycleYearly, "INR", decimal.NewFromInt(159990))
	t.SetPrice(PlanEnterprise, CycleMonthly, "INR", decimal.NewFromInt(79999))
	t.SetPrice(PlanEnterprise, CycleYearly, "INR", decimal.NewFromInt(799990))

	return t
}
