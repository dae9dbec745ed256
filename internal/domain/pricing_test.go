package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func flat(amount string) *Discount {
	return &Discount{Kind: DiscountKindFlat, Amount: decimal.RequireFromString(amount)}
}

func TestComputeAmount(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		account  *Discount
		plan     *Discount
		expected string
	}{
		{"no discounts", "50", nil, nil, "50"},
		{"plan discount only", "50", nil, flat("2"), "48"},
		{"account discount only", "50", flat("3"), nil, "47"},
		{"account discount larger", "50", flat("3"), flat("2"), "47"},
		{"plan discount larger", "50", flat("1"), flat("2"), "48"},
		{"equal discounts", "50", flat("5"), flat("5"), "45"},
		{"discount exceeds amount", "10", flat("25"), nil, "0"},
		{"free plan", "0", flat("5"), flat("1"), "0"},
		{"fractional", "19.99", flat("0.50"), nil, "19.49"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeAmount(decimal.RequireFromString(tt.base), tt.account, tt.plan)
			assert.True(t, decimal.RequireFromString(tt.expected).Equal(got), "got %s, want %s", got, tt.expected)
		})
	}
}

func TestComputeAmount_NeverNegative(t *testing.T) {
	for base := int64(0); base <= 20; base++ {
		for off := int64(0); off <= 25; off += 5 {
			got := ComputeAmount(decimal.NewFromInt(base), flat(decimal.NewFromInt(off).String()), nil)
			assert.False(t, got.IsNegative(), "base %d off %d", base, off)
		}
	}
}

func TestBestDiscount_TieGoesToAccount(t *testing.T) {
	account := flat("5")
	account.Code = "account"
	plan := flat("5")
	plan.Code = "plan"

	best := BestDiscount(decimal.NewFromInt(50), account, plan)
	assert.Equal(t, "account", best.Code)
}

func TestBestDiscount_ComparesPercentAgainstFlat(t *testing.T) {
	percent := &Discount{Kind: DiscountKindPercent, Amount: decimal.NewFromInt(10), Code: "ten-off"}
	fixed := flat("4")
	fixed.Code = "four"

	// 10% of 50 = 5 beats 4
	assert.Equal(t, "ten-off", BestDiscount(decimal.NewFromInt(50), fixed, percent).Code)
	// 10% of 30 = 3 loses to 4
	assert.Equal(t, "four", BestDiscount(decimal.NewFromInt(30), fixed, percent).Code)
}

func TestDiscount_Deduction(t *testing.T) {
	var nilDiscount *Discount
	assert.True(t, nilDiscount.Deduction(decimal.NewFromInt(10)).IsZero())

	percent := &Discount{Kind: DiscountKindPercent, Amount: decimal.NewFromInt(15)}
	assert.Equal(t, "7.5", percent.Deduction(decimal.NewFromInt(50)).String())
}

func TestPricePlan_TrialExtensionFromWinningDiscount(t *testing.T) {
	plan := &Plan{
		Amount:   decimal.NewFromInt(50),
		Discount: &Discount{Amount: decimal.NewFromInt(2), TrialPeriodExtension: 2},
	}

	pricing := PricePlan(plan, nil)
	assert.Equal(t, "48", pricing.Amount.String())
	assert.Equal(t, 2, pricing.TrialExtension())

	bigger := &Discount{Amount: decimal.NewFromInt(5)}
	pricing = PricePlan(plan, bigger)
	assert.Equal(t, "45", pricing.Amount.String())
	assert.Equal(t, 0, pricing.TrialExtension())

	assert.Equal(t, 0, PricePlan(&Plan{Amount: decimal.NewFromInt(5)}, nil).TrialExtension())
}
