package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntervalUnit(t *testing.T) {
	tests := []struct {
		input    string
		expected IntervalUnit
		wantErr  bool
	}{
		{"", IntervalUnitMonth, false},
		{"months", IntervalUnitMonth, false},
		{"Month", IntervalUnitMonth, false},
		{"days", IntervalUnitDay, false},
		{"week", IntervalUnitWeek, false},
		{"years", IntervalUnitYear, false},
		{"fortnight", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseIntervalUnit(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidInterval)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestIntervalUnit_Describe(t *testing.T) {
	assert.Equal(t, "month", IntervalUnit("").Describe(1))
	assert.Equal(t, "3 months", IntervalUnitMonth.Describe(3))
	assert.Equal(t, "15 days", IntervalUnitDay.Describe(15))
}

func TestSubscription_NeedsPaymentInfo(t *testing.T) {
	tests := []struct {
		name      string
		amount    int64
		billingID string
		expected  bool
	}{
		{"paid without card", 10, "", true},
		{"paid with card", 10, "vault-1", false},
		{"free without card", 0, "", false},
		{"free with card", 0, "vault-1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &Subscription{Amount: decimal.NewFromInt(tt.amount), BillingID: tt.billingID}
			assert.Equal(t, tt.expected, sub.NeedsPaymentInfo())
		})
	}
}

func TestSubscription_AmountInPennies(t *testing.T) {
	assert.Equal(t, int64(1000), (&Subscription{Amount: decimal.NewFromInt(10)}).AmountInPennies())
	assert.Equal(t, int64(1999), (&Subscription{Amount: decimal.RequireFromString("19.99")}).AmountInPennies())
	assert.Equal(t, int64(0), (&Subscription{}).AmountInPennies())
}

func TestSubscription_IsDue(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&Subscription{}).IsDue(now))
	assert.True(t, (&Subscription{NextRenewalAt: &past}).IsDue(now))
	assert.True(t, (&Subscription{NextRenewalAt: &now}).IsDue(now))
	assert.False(t, (&Subscription{NextRenewalAt: &future}).IsDue(now))
}

func TestSubscription_CloneIsDeep(t *testing.T) {
	renewal := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limit := 5
	sub := &Subscription{ID: "s1", NextRenewalAt: &renewal, UserLimit: &limit}

	c := sub.Clone()
	*c.NextRenewalAt = renewal.AddDate(0, 1, 0)
	*c.UserLimit = 9

	assert.Equal(t, renewal, *sub.NextRenewalAt)
	assert.Equal(t, 5, *sub.UserLimit)
}

func TestPlan_AllowsUsers(t *testing.T) {
	assert.True(t, (&Plan{}).AllowsUsers(1000))
	assert.True(t, (&Plan{UserLimit: intPtr(3)}).AllowsUsers(3))
	assert.False(t, (&Plan{UserLimit: intPtr(2)}).AllowsUsers(3))
}

func TestAffiliate_Commission(t *testing.T) {
	a := &Affiliate{Rate: decimal.RequireFromString("0.1")}
	assert.True(t, decimal.NewFromInt(10).Equal(a.Commission(decimal.NewFromInt(100))))
}

func TestCard_DisplayFragments(t *testing.T) {
	card := &Card{Number: "4111111111111111", ExpirationMonth: 5, ExpirationYear: 2012}
	assert.Equal(t, "1111", card.LastFour())
	assert.Equal(t, "05-2012", card.Expiration())
}

func TestCard_IsExpired(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	assert.False(t, (&Card{ExpirationMonth: 6, ExpirationYear: 2024}).IsExpired(now))
	assert.True(t, (&Card{ExpirationMonth: 5, ExpirationYear: 2024}).IsExpired(now))
	assert.True(t, (&Card{ExpirationMonth: 12, ExpirationYear: 2023}).IsExpired(now))
	assert.False(t, (&Card{ExpirationMonth: 1, ExpirationYear: 2025}).IsExpired(now))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(50000), ToMinorUnits(decimal.NewFromInt(500)))
}
