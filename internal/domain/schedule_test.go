package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func intPtr(n int) *int { return &n }

func TestComputeNextRenewal(t *testing.T) {
	now := time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		plan      *Plan
		extension int
		expected  time.Time
	}{
		{
			name:     "defaults to one month",
			plan:     &Plan{},
			expected: time.Date(2024, 4, 10, 14, 30, 0, 0, time.UTC),
		},
		{
			name:     "renewal period without trial",
			plan:     &Plan{RenewalPeriod: 3},
			expected: time.Date(2024, 6, 10, 14, 30, 0, 0, time.UTC),
		},
		{
			name:     "trial period in months",
			plan:     &Plan{TrialPeriod: intPtr(2)},
			expected: time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC),
		},
		{
			name:     "trial period in days",
			plan:     &Plan{TrialPeriod: intPtr(15), TrialInterval: IntervalUnitDay},
			expected: time.Date(2024, 3, 25, 14, 30, 0, 0, time.UTC),
		},
		{
			name:      "discount extension in months",
			plan:      &Plan{},
			extension: 2,
			expected:  time.Date(2024, 6, 10, 14, 30, 0, 0, time.UTC),
		},
		{
			name:      "extension uses trial interval",
			plan:      &Plan{TrialPeriod: intPtr(10), TrialInterval: IntervalUnitDay},
			extension: 5,
			expected:  time.Date(2024, 3, 25, 14, 30, 0, 0, time.UTC),
		},
		{
			name:     "zero trial period is due now",
			plan:     &Plan{TrialPeriod: intPtr(0)},
			expected: now,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeNextRenewal(now, tt.plan, tt.extension)
			assert.True(t, tt.expected.Equal(got), "got %v, want %v", got, tt.expected)
		})
	}
}

func TestComputeNextRenewal_DiscountScenario(t *testing.T) {
	now := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	plan := &Plan{
		Amount:   decimal.NewFromInt(50),
		Discount: &Discount{Amount: decimal.NewFromInt(2), TrialPeriodExtension: 2},
	}

	pricing := PricePlan(plan, nil)
	got := ComputeNextRenewal(now, plan, pricing.TrialExtension())

	assert.Equal(t, "48", pricing.Amount.String())
	assert.Equal(t, time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC), got)
}

func TestComputeNextRenewal_ClampsMonthEnd(t *testing.T) {
	now := time.Date(2023, 1, 31, 8, 0, 0, 0, time.UTC)
	got := ComputeNextRenewal(now, &Plan{}, 0)
	assert.Equal(t, time.Date(2023, 2, 28, 8, 0, 0, 0, time.UTC), got)
}

func TestAdvanceRenewal(t *testing.T) {
	from := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), AdvanceRenewal(from, &Subscription{}))
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		AdvanceRenewal(from, &Subscription{RenewalPeriod: 1, RenewalInterval: IntervalUnitYear}))
	assert.Equal(t, time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC),
		AdvanceRenewal(from, &Subscription{RenewalPeriod: 2, RenewalInterval: IntervalUnitWeek}))
}

func TestExpiringTrialWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 18, 45, 0, 0, time.UTC)
	start, end := ExpiringTrialWindow(now)

	assert.Equal(t, time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 6, 8, 23, 59, 59, 999999999, time.UTC), end)
}

func TestDueWindow(t *testing.T) {
	asOf := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)
	start, end := DueWindow(asOf)

	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 6, 1, 23, 59, 59, 999999999, time.UTC), end)
}
