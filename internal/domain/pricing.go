package domain

import "github.com/shopspring/decimal"

// Pricing is the result of applying discounts to a plan
type Pricing struct {
	// Discount is the discount that won, nil when neither applied.
	Discount *Discount
	Amount   decimal.Decimal
}

// BestDiscount picks whichever discount deducts more from base.
// Ties go to the account discount.
func BestDiscount(base decimal.Decimal, accountDiscount, planDiscount *Discount) *Discount {
	switch {
	case accountDiscount == nil:
		return planDiscount
	case planDiscount == nil:
		return accountDiscount
	case planDiscount.Deduction(base).GreaterThan(accountDiscount.Deduction(base)):
		return planDiscount
	default:
		return accountDiscount
	}
}

// ComputeAmount returns max(0, base - best discount). Absent discounts
// count as zero.
func ComputeAmount(base decimal.Decimal, accountDiscount, planDiscount *Discount) decimal.Decimal {
	return PriceFor(base, accountDiscount, planDiscount).Amount
}

// PriceFor applies the best discount to base
func PriceFor(base decimal.Decimal, accountDiscount, planDiscount *Discount) Pricing {
	best := BestDiscount(base, accountDiscount, planDiscount)
	amount := base.Sub(best.Deduction(base))
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return Pricing{Amount: amount, Discount: best}
}

// PricePlan prices plan for an account holding accountDiscount
func PricePlan(plan *Plan, accountDiscount *Discount) Pricing {
	return PriceFor(plan.Amount, accountDiscount, plan.Discount)
}

// TrialExtension returns the winning discount's trial extension length
func (p Pricing) TrialExtension() int {
	if p.Discount == nil || p.Discount.TrialPeriodExtension < 0 {
		return 0
	}
	return p.Discount.TrialPeriodExtension
}
